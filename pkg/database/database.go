package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"forest/pkg/logging"
	"forest/pkg/metrics"
)

// MemoryLocation opens an ephemeral SQLite store that lives as long as the DB.
const MemoryLocation = ":memory:"

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func init() {
	// modernc.org/sqlite registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DialectFor picks the dialect from a store location.
func DialectFor(location string) Dialect {
	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// Config holds database connection configuration
type Config struct {
	// Location is a SQLite file path, ":memory:", or a postgres:// URL.
	Location        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
}

// DefaultConfig returns pool settings suited to the dialect of location.
func DefaultConfig(location string) *Config {
	return &Config{
		Location:        location,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}

// Queryer is the instrumented query surface shared by DB and Tx.
type Queryer interface {
	ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error
}

// DB wraps sqlx.DB with logging and metrics. It is the session handle
// every component receives explicitly.
type DB struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
	config  *Config
}

// Open connects to the store at cfg.Location, creating it if needed.
func Open(ctx context.Context, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) (*DB, error) {
	if cfg == nil || cfg.Location == "" {
		return nil, errors.New("database location is required")
	}

	dialect := DialectFor(cfg.Location)

	db, err := sqlx.Open(string(dialect), cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	switch dialect {
	case SQLite:
		// One connection: a second one would see a different :memory: database,
		// and SQLite allows a single writer anyway.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	default:
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if dialect == SQLite {
		if err := configureSQLite(ctx, db, cfg); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info(ctx, "[DB_INIT] Database connection established", logging.Fields{
		"dialect":  string(dialect),
		"location": redact(cfg.Location),
	})

	return &DB{
		db:      db,
		dialect: dialect,
		logger:  logger,
		metrics: metricsCollector,
		config:  cfg,
	}, nil
}

func configureSQLite(ctx context.Context, db *sqlx.DB, cfg *Config) error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
	}
	if cfg.Location != MemoryLocation {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return nil
}

// WithDB opens a DB, hands it to fn and always closes it afterwards, also
// when fn fails or panics.
func WithDB(ctx context.Context, cfg *Config, logger *logging.StructuredLogger, metricsCollector *metrics.Collector, fn func(*DB) error) (err error) {
	db, err := Open(ctx, cfg, logger, metricsCollector)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close database: %w", cerr)
		}
	}()

	return fn(db)
}

// Close releases the connection. Indexing commits per file, so nothing
// is pending by the time Close runs.
func (p *DB) Close() error {
	p.logger.Info(context.Background(), "[DB_CLOSE] Closing database connection", logging.Fields{
		"dialect":  string(p.dialect),
		"location": redact(p.config.Location),
	})
	return p.db.Close()
}

// DB returns the underlying sqlx.DB instance
func (p *DB) DB() *sqlx.DB {
	return p.db
}

// Dialect reports which SQL flavour the connection speaks.
func (p *DB) Dialect() Dialect {
	return p.dialect
}

// ExecContext executes a command with context and metrics
func (p *DB) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	return p.runner(p.db).ExecContext(ctx, queryType, query, args...)
}

// GetContext executes a query that returns a single row
func (p *DB) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return p.runner(p.db).GetContext(ctx, queryType, dest, query, args...)
}

// SelectContext executes a query that returns multiple rows
func (p *DB) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	return p.runner(p.db).SelectContext(ctx, queryType, dest, query, args...)
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (p *DB) WithTx(ctx context.Context, fn func(Queryer) error) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		p.metrics.RecordDBError("transaction_begin_error")
		p.logger.Error(ctx, "[DB_TX_ERROR] Failed to begin transaction", logging.Fields{}, err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(p.runner(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		p.metrics.RecordDBError("transaction_commit_error")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck performs a database health check
func (p *DB) HealthCheck(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := p.db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}

	stats := p.db.Stats()
	p.metrics.UpdateDBConnectionPool(stats.InUse, stats.Idle, stats.OpenConnections)

	return nil
}

func (p *DB) runner(ext sqlx.ExtContext) *Tx {
	return &Tx{ext: ext, db: p}
}

// Tx is a Queryer bound to either the pool or an open transaction.
type Tx struct {
	ext sqlx.ExtContext
	db  *DB
}

// ExecContext executes a command with context and metrics
func (t *Tx) ExecContext(ctx context.Context, queryType, query string, args ...interface{}) (sql.Result, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		t.db.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		t.db.logger.Debug(ctx, "[DB_EXEC] Command executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	result, err := t.ext.ExecContext(ctx, t.ext.Rebind(query), args...)
	if err != nil {
		t.db.metrics.RecordDBError("exec_error")
		t.db.logger.Error(ctx, "[DB_EXEC_ERROR] Command failed", logging.Fields{
			"query_type": queryType,
		}, err)
		return nil, err
	}

	return result, nil
}

// GetContext executes a query that returns a single row
func (t *Tx) GetContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		t.db.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(time.Since(timer).Seconds())
	}()

	err := sqlx.GetContext(ctx, t.ext, dest, t.ext.Rebind(query), args...)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		t.db.metrics.RecordDBError("get_error")
		t.db.logger.Error(ctx, "[DB_GET_ERROR] Get query failed", logging.Fields{
			"query_type": queryType,
		}, err)
	}

	return err
}

// SelectContext executes a query that returns multiple rows
func (t *Tx) SelectContext(ctx context.Context, queryType string, dest interface{}, query string, args ...interface{}) error {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		t.db.metrics.DBQueryDuration.WithLabelValues(queryType).Observe(duration.Seconds())

		t.db.logger.Debug(ctx, "[DB_QUERY] Query executed", logging.Fields{
			"query_type":  queryType,
			"duration_ms": duration.Milliseconds(),
			"query":       query,
		})
	}()

	err := sqlx.SelectContext(ctx, t.ext, dest, t.ext.Rebind(query), args...)
	if err != nil {
		t.db.metrics.RecordDBError("select_error")
		t.db.logger.Error(ctx, "[DB_SELECT_ERROR] Select query failed", logging.Fields{
			"query_type": queryType,
			"query":      query,
		}, err)
		return err
	}

	return nil
}

// redact hides credentials in postgres URLs before they reach the logs.
func redact(location string) string {
	at := strings.LastIndex(location, "@")
	scheme := strings.Index(location, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return location
	}
	return location[:scheme+3] + "***" + location[at:]
}

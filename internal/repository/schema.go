package repository

import (
	"context"
	"fmt"

	"forest/pkg/database"
	"forest/pkg/logging"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS file (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		reference TEXT,
		UNIQUE(name))`,
	`CREATE TABLE IF NOT EXISTS variable (
		id INTEGER PRIMARY KEY,
		name TEXT,
		file_id INTEGER,
		time_axis INTEGER,
		pressure_axis INTEGER,
		FOREIGN KEY(file_id) REFERENCES file(id),
		UNIQUE(name, file_id))`,
	`CREATE TABLE IF NOT EXISTS pressure (
		id INTEGER PRIMARY KEY,
		i INTEGER,
		value REAL,
		UNIQUE(i, value))`,
	`CREATE TABLE IF NOT EXISTS variable_to_pressure (
		variable_id INTEGER,
		pressure_id INTEGER,
		PRIMARY KEY(variable_id, pressure_id))`,
	`CREATE TABLE IF NOT EXISTS time (
		id INTEGER PRIMARY KEY,
		i INTEGER,
		value TEXT,
		UNIQUE(i, value))`,
	`CREATE TABLE IF NOT EXISTS variable_to_time (
		variable_id INTEGER,
		time_id INTEGER,
		PRIMARY KEY(variable_id, time_id))`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS file (
		id SERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		reference TEXT,
		UNIQUE(name))`,
	`CREATE TABLE IF NOT EXISTS variable (
		id SERIAL PRIMARY KEY,
		name TEXT,
		file_id INTEGER REFERENCES file(id),
		time_axis INTEGER,
		pressure_axis INTEGER,
		UNIQUE(name, file_id))`,
	`CREATE TABLE IF NOT EXISTS pressure (
		id SERIAL PRIMARY KEY,
		i INTEGER,
		value DOUBLE PRECISION,
		UNIQUE(i, value))`,
	`CREATE TABLE IF NOT EXISTS variable_to_pressure (
		variable_id INTEGER,
		pressure_id INTEGER,
		PRIMARY KEY(variable_id, pressure_id))`,
	`CREATE TABLE IF NOT EXISTS time (
		id SERIAL PRIMARY KEY,
		i INTEGER,
		value TEXT,
		UNIQUE(i, value))`,
	`CREATE TABLE IF NOT EXISTS variable_to_time (
		variable_id INTEGER,
		time_id INTEGER,
		PRIMARY KEY(variable_id, time_id))`,
}

// Schema returns the DDL statements for dialect.
func Schema(dialect database.Dialect) []string {
	if dialect == database.Postgres {
		return postgresSchema
	}
	return sqliteSchema
}

// EnsureSchema creates any missing table. Existing tables are left as they
// are, so calling it on every start is safe.
func (r *forecastRepository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range Schema(r.db.Dialect()) {
		if _, err := r.q.ExecContext(ctx, "create_table", stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	r.logger.Info(ctx, "[REPO_SCHEMA] Schema ready", logging.Fields{
		"dialect": string(r.db.Dialect()),
	})
	return nil
}

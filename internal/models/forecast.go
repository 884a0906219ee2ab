package models

import (
	"fmt"
	"time"
)

// TimeLayout is the canonical text form of every stored timestamp.
// Lexical order of this layout equals chronological order.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders t in the stored canonical form (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime reads a timestamp stored by FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, &ValidationError{
			Field:   "time",
			Value:   s,
			Message: fmt.Sprintf("invalid timestamp %q, expected %q", s, TimeLayout),
		}
	}
	return t, nil
}

// inputLayouts are the timestamp forms accepted from users, tried in order.
var inputLayouts = []string{
	TimeLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseInputTime reads a user supplied timestamp. Values without a zone
// are UTC.
func ParseInputTime(s string) (time.Time, error) {
	for _, layout := range inputLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &ValidationError{
		Field:   "time",
		Value:   s,
		Message: fmt.Sprintf("invalid timestamp %q, expected %q or RFC 3339", s, TimeLayout),
	}
}

// File is an indexed forecast file.
type File struct {
	ID        int64   `json:"id" db:"id"`
	Name      string  `json:"name" db:"name"`
	Reference *string `json:"reference,omitempty" db:"reference"`
}

// Variable is a forecast diagnostic inside a File. TimeAxis and
// PressureAxis hold the storage dimension of each coordinate, nil when the
// variable has no such coordinate or the coordinate is scalar.
type Variable struct {
	ID           int64  `json:"id" db:"id"`
	Name         string `json:"name" db:"name"`
	FileID       int64  `json:"file_id" db:"file_id"`
	TimeAxis     *int   `json:"time_axis,omitempty" db:"time_axis"`
	PressureAxis *int   `json:"pressure_axis,omitempty" db:"pressure_axis"`
}

// Time is a deduplicated (positional index, timestamp) coordinate point.
type Time struct {
	ID    int64  `json:"id" db:"id"`
	I     int    `json:"i" db:"i"`
	Value string `json:"value" db:"value"`
}

// Pressure is a deduplicated (positional index, level) coordinate point.
type Pressure struct {
	ID    int64   `json:"id" db:"id"`
	I     int     `json:"i" db:"i"`
	Value float64 `json:"value" db:"value"`
}

// Match pairs a file with a positional index, as returned by the
// single-coordinate finders.
type Match struct {
	Path  string `json:"path" db:"path"`
	Index int    `json:"index" db:"i"`
}

// LocateQuery selects one field of one forecast run.
type LocateQuery struct {
	Variable    string
	InitialTime time.Time
	ValidTime   time.Time
	// Pressure is the target level; the nearest stored level wins.
	// Nil skips pressure matching entirely.
	Pressure *float64
	// Pattern optionally restricts candidate files by glob.
	Pattern string
}

// Location is where a LocateQuery's data lives on disk.
type Location struct {
	Path  string `json:"path"`
	Index []int  `json:"index"`
}

// CatalogFilter narrows catalog listings. Empty fields are ignored.
type CatalogFilter struct {
	Variable string
	Pattern  string
}

// IndexSummary counts the rows of every table.
type IndexSummary struct {
	Files              int `json:"files" db:"files"`
	Variables          int `json:"variables" db:"variables"`
	Times              int `json:"times" db:"times"`
	Pressures          int `json:"pressures" db:"pressures"`
	VariableTimes      int `json:"variable_times" db:"variable_times"`
	VariablePressures  int `json:"variable_pressures" db:"variable_pressures"`
	DistinctVariables  int `json:"distinct_variables" db:"distinct_variables"`
	DistinctReferences int `json:"distinct_references" db:"distinct_references"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// Float64Ptr returns a pointer to v.
func Float64Ptr(v float64) *float64 { return &v }

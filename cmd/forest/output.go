package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"

	"forest/internal/models"
)

var (
	heading = color.New(color.FgCyan, color.Bold)
	success = color.New(color.FgGreen, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	muted   = color.New(color.FgHiBlack)
)

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// printList writes one item per line, or a JSON array.
func (a *app) printList(items []string) error {
	if a.json {
		return printJSON(a.out, items)
	}
	if len(items) == 0 {
		muted.Fprintln(a.out, "(none)")
		return nil
	}
	for _, item := range items {
		fmt.Fprintln(a.out, item)
	}
	return nil
}

func formatTimes(times []time.Time) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = models.FormatTime(t)
	}
	return out
}

func formatLevels(levels []float64) []string {
	out := make([]string, len(levels))
	for i, p := range levels {
		out[i] = strconv.FormatFloat(p, 'f', -1, 64)
	}
	return out
}

func formatIndex(index []int) string {
	parts := make([]string, len(index))
	for i, v := range index {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

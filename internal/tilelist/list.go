// Package tilelist renders stored cells for the operator CLI.
package tilelist

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/songgrid/pkg/grid"
)

// OutputFormat specifies how to format the tile list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete cells as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ParseOutputFormat validates the --output flag.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", OutputFormatDefault:
		return OutputFormatDefault, nil
	case OutputFormatJSONL:
		return OutputFormatJSONL, nil
	}
	return "", fmt.Errorf("unsupported output format %q (use 'default' or 'jsonl')", s)
}

// Source lists stored cells. cellstore.Store implements it.
type Source interface {
	All(ctx context.Context) ([]grid.Cell, error)
}

// Filter selects cells. All criteria are ANDed; zero values disable a criterion.
// Empty cells are never listed.
type Filter struct {
	Since    time.Time
	Until    time.Time
	Username string
}

// Matches reports whether cell passes every criterion.
func (f Filter) Matches(cell grid.Cell) bool {
	if cell.IsEmpty() {
		return false
	}
	if !f.Since.IsZero() || !f.Until.IsZero() {
		if cell.LastUpdated == nil {
			return false
		}
		if !f.Since.IsZero() && cell.LastUpdated.Before(f.Since) {
			return false
		}
		if !f.Until.IsZero() && cell.LastUpdated.After(f.Until) {
			return false
		}
	}
	if f.Username != "" && cell.Username != f.Username {
		return false
	}
	return true
}

// List writes the cells of src that match filter to w in the given format.
// Returns the number of cells written.
func List(ctx context.Context, src Source, w io.Writer, filter Filter, format OutputFormat, now time.Time) (int, error) {
	cells, err := src.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list tiles: %w", err)
	}

	matched := make([]grid.Cell, 0, len(cells))
	for _, c := range cells {
		if filter.Matches(c) {
			matched = append(matched, c.Normalized())
		}
	}

	if format == OutputFormatJSONL {
		if err := FormatJSONL(w, matched); err != nil {
			return 0, err
		}
		return len(matched), nil
	}
	return FormatTable(w, matched, now), nil
}

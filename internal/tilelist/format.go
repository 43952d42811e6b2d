package tilelist

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/songgrid/internal/enrich"
	"github.com/dyluth/songgrid/pkg/grid"
)

// FormatTable writes cells as a table with columns TILE, USER, AGE and TRACK.
// Returns the number of cells formatted.
func FormatTable(w io.Writer, cells []grid.Cell, now time.Time) int {
	if len(cells) == 0 {
		fmt.Fprintln(w, "No tiles found")
		return 0
	}

	fmt.Fprintf(w, "%-9s %-15s %-8s %s\n", "TILE", "USER", "AGE", "TRACK")
	fmt.Fprintf(w, "%-9s %-15s %-8s %s\n", "---------", "---------------", "--------", "----------------------")

	for _, c := range cells {
		fmt.Fprintf(w, "%-9s %-15s %-8s %s\n",
			c.Coord.String(),
			formatUsername(c.Username),
			formatAge(c.LastUpdated, now),
			formatTrack(c.Link),
		)
	}

	noun := "tile"
	if len(cells) != 1 {
		noun = "tiles"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(cells), noun)
	return len(cells)
}

// FormatJSONL writes one JSON object per cell per line, for piping into jq.
func FormatJSONL(w io.Writer, cells []grid.Cell) error {
	for _, c := range cells {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal tile to JSON: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

// FormatSingleJSON writes one cell as indented JSON.
func FormatSingleJSON(w io.Writer, cell grid.Cell) error {
	data, err := json.MarshalIndent(cell, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tile to JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	fmt.Fprintln(w)
	return nil
}

func formatUsername(username string) string {
	if username == "" {
		return "-"
	}
	return username
}

// formatTrack shows the track id when the link carries one, else the raw link.
func formatTrack(link string) string {
	if link == "" {
		return "-"
	}
	if id, ok := enrich.ExtractTrackID(link); ok {
		return id
	}
	if len(link) > 40 {
		return link[:37] + "..."
	}
	return link
}

// formatAge renders the time since the last edit, like "5m ago".
func formatAge(ts *time.Time, now time.Time) string {
	if ts == nil {
		return "-"
	}
	diff := now.Sub(*ts)
	switch {
	case diff < 0:
		return "0s ago"
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}

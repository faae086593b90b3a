// Package cli provides CLI output helpers for chikai.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/chikai/internal/models"
)

// OutputFormat is the format for neighbor result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one tab-separated line per neighbor.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact, OutputJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use text, compact, or json)", s)
	}
}

// WriteNeighbors writes a neighbor response to w in the given format.
func WriteNeighbors(w io.Writer, response *models.NeighborResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, n := range response.Results {
			if _, err := fmt.Fprintf(w, "%d\t%s\t%.6f\t%s\n", n.Rank, n.ID, n.Distance, title(n.Event)); err != nil {
				return err
			}
		}
		return nil
	default:
		writeNeighborsText(w, response)
		return nil
	}
}

func writeNeighborsText(w io.Writer, response *models.NeighborResponse) {
	fmt.Fprintf(w, "\nFound %d neighbors of %s in %dms\n\n", response.Total, describeQuery(&response.Query), response.QueryTime)
	for _, n := range response.Results {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Distance: %.4f\n", n.Rank, n.Distance)
		fmt.Fprintf(w, "ID: %s\n", n.ID)
		if n.Event == nil {
			fmt.Fprintln(w)
			continue
		}
		if n.Event.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", n.Event.Title)
		}
		if n.Event.Venue != "" {
			fmt.Fprintf(w, "Venue: %s\n", n.Event.Venue)
		}
		if n.Event.Category != "" {
			fmt.Fprintf(w, "Category: %s\n", n.Event.Category)
		}
		if n.Event.StartsAt != nil {
			fmt.Fprintf(w, "Starts: %s\n", n.Event.StartsAt.Format("2006-01-02 15:04"))
		}
		if n.Event.Description != "" {
			fmt.Fprintf(w, "\n%s\n", Truncate(n.Event.Description, 200))
		}
		fmt.Fprintln(w)
	}
}

func describeQuery(q *models.NeighborQuery) string {
	switch q.Mode() {
	case "id":
		return "event " + q.ID
	case "vector":
		return fmt.Sprintf("a %d-dimension vector", len(q.Vector))
	default:
		return fmt.Sprintf("%q", TruncateWords(q.Text, 8))
	}
}

// WriteCatalogHits writes catalog search hits to w.
func WriteCatalogHits(w io.Writer, hits []*models.CatalogHit, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, hits)
	}
	for _, h := range hits {
		if _, err := fmt.Fprintf(w, "%s\t%.4f\t%s\n", h.ID, h.Score, title(h.Event)); err != nil {
			return err
		}
	}
	return nil
}

// WriteStatus writes a service status summary to w.
func WriteStatus(w io.Writer, st *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, st)
	}
	fmt.Fprintf(w, "Events:          %d\n", st.Events)
	fmt.Fprintf(w, "Index type:      %s\n", st.IndexType)
	fmt.Fprintf(w, "Registered:      %d\n", st.Registered)
	fmt.Fprintf(w, "Indexed:         %d\n", st.IndexedItems)
	fmt.Fprintf(w, "Built:           %t\n", st.Built)
	if st.TreeCount > 0 {
		fmt.Fprintf(w, "Trees:           %d (max depth %d)\n", st.TreeCount, st.MaxDepth)
	}
	if st.LastBuild != "" {
		fmt.Fprintf(w, "Last build:      %s\n", st.LastBuild)
	}
	if st.LastBuildError != "" {
		fmt.Fprintf(w, "Last error:      %s\n", st.LastBuildError)
	}
	fmt.Fprintf(w, "Catalog docs:    %d\n", st.CatalogDocs)
	if st.DiskUsage > 0 {
		fmt.Fprintf(w, "Disk usage:      %s\n", FormatBytes(st.DiskUsage))
	}
	return nil
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func title(e *models.Event) string {
	if e == nil {
		return ""
	}
	return e.Title
}

// FormatBytes renders n bytes with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// TruncateWords returns up to maxWords from the space-separated string.
func TruncateWords(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) <= maxWords {
		return s
	}
	return strings.Join(words[:maxWords], " ") + "..."
}

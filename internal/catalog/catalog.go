// Package catalog provides a full-text index over event text so callers can
// find an event id before asking for its neighbors.
package catalog

import (
	"context"

	"github.com/hyperjump/chikai/internal/models"
)

// Catalog defines event text lookup operations.
type Catalog interface {
	Index(ctx context.Context, event *models.Event) error
	// Search returns up to limit hits ordered by descending score.
	Search(ctx context.Context, query string, limit int) ([]*Hit, error)
	Delete(ctx context.Context, id string) error
	DocCount() (uint64, error)
	Close() error
}

// Hit is a single catalog match.
type Hit struct {
	ID    string
	Score float64
	// Fuzzy is set when the hit came from the typo-tolerant retry.
	Fuzzy bool
}

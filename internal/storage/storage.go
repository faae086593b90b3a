// Package storage defines the persistence interface for events and their vectors.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/chikai/internal/models"
)

// ErrNotFound is returned when an event does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines event and vector persistence operations.
type Storage interface {
	// Event operations
	UpsertEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context, offset, limit int) ([]*models.Event, error)
	// FindEvent returns the oldest event with the same title, venue, and start
	// time. A nil startsAt matches only events without one.
	FindEvent(ctx context.Context, title, venue string, startsAt *time.Time) (*models.Event, error)

	// Vector operations
	PutVector(ctx context.Context, id string, vec []float32) error
	GetVector(ctx context.Context, id string) ([]float32, error)
	// ListVectors calls fn for every stored vector in id order, stopping at the first error.
	ListVectors(ctx context.Context, fn func(id string, vec []float32) error) error

	// Stats
	CountEvents(ctx context.Context) (int64, error)

	Close() error
}

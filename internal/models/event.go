// Package models defines core data structures for events, neighbor queries, and results.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent is returned when an event input fails validation.
var ErrInvalidEvent = errors.New("invalid event")

// Event represents a stored catalog event.
type Event struct {
	ID          string                 `json:"id" db:"id"`
	Title       string                 `json:"title" db:"title"`
	Venue       string                 `json:"venue,omitempty" db:"venue"`
	Description string                 `json:"description,omitempty" db:"description"`
	Category    string                 `json:"category,omitempty" db:"category"`
	StartsAt    *time.Time             `json:"starts_at,omitempty" db:"starts_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// EventInput is the input for registering or updating an event.
// Vector is optional; when empty the event text is embedded.
type EventInput struct {
	ID          string                 `json:"id,omitempty"`
	Title       string                 `json:"title,omitempty"`
	Venue       string                 `json:"venue,omitempty"`
	Description string                 `json:"description,omitempty"`
	Category    string                 `json:"category,omitempty"`
	StartsAt    *time.Time             `json:"starts_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Vector      []float32              `json:"vector,omitempty"`
}

// Validate checks that the input carries something to index and assigns an ID when missing.
func (in *EventInput) Validate() error {
	in.ID = strings.TrimSpace(in.ID)
	if strings.TrimSpace(in.Title) == "" && len(in.Vector) == 0 {
		return fmt.Errorf("%w: title or vector is required", ErrInvalidEvent)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	return nil
}

// Event converts the input into an Event stamped with now.
func (in *EventInput) Event(now time.Time) *Event {
	return &Event{
		ID:          in.ID,
		Title:       in.Title,
		Venue:       in.Venue,
		Description: in.Description,
		Category:    in.Category,
		StartsAt:    in.StartsAt,
		Metadata:    in.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

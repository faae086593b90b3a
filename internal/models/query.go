package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidQuery is returned when a neighbor query fails validation.
var ErrInvalidQuery = errors.New("invalid query")

// NeighborQuery asks for the K nearest events to an anchor. Exactly one of
// ID, Vector, or Text must be set.
type NeighborQuery struct {
	ID     string    `json:"id,omitempty"`
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text,omitempty"`
	K      int       `json:"k,omitempty"`
}

// Mode names the anchor kind of a validated query: "id", "vector", or "text".
func (q *NeighborQuery) Mode() string {
	switch {
	case q.ID != "":
		return "id"
	case len(q.Vector) > 0:
		return "vector"
	default:
		return "text"
	}
}

// Validate ensures exactly one anchor is set and normalizes K into [1, maxK],
// using defaultK when K is not positive.
func (q *NeighborQuery) Validate(defaultK, maxK int) error {
	q.ID = strings.TrimSpace(q.ID)
	q.Text = strings.TrimSpace(q.Text)
	set := 0
	if q.ID != "" {
		set++
	}
	if len(q.Vector) > 0 {
		set++
	}
	if q.Text != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("%w: exactly one of id, vector, or text is required", ErrInvalidQuery)
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}

package forest

import "time"

// Observer receives operational measurements from a Forest.
// Implementations must be safe for concurrent use.
type Observer interface {
	// ObserveBuild is called once per Build with the number of trees and items
	// that went into the new tree set.
	ObserveBuild(trees, items int, d time.Duration, err error)
	// ObserveQuery is called once per query with the requested k and the number
	// of distinct candidates the trees produced before truncation.
	ObserveQuery(k, candidates int, d time.Duration, err error)
}

// NoopObserver discards all measurements.
type NoopObserver struct{}

func (NoopObserver) ObserveBuild(int, int, time.Duration, error) {}
func (NoopObserver) ObserveQuery(int, int, time.Duration, error) {}

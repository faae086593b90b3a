package forest

import "errors"

var (
	// ErrUnknownItem is returned by QueryByID when the id was never registered.
	ErrUnknownItem = errors.New("unknown item")
	// ErrDimensionMismatch is returned when a vector's length differs from the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrIndexNotBuilt is returned by queries issued before the first successful Build.
	ErrIndexNotBuilt = errors.New("index not built")
	// ErrEmptyIndex is returned by Build when the store holds no items. It is not fatal:
	// the forest is built with empty trees and every query returns an empty result.
	ErrEmptyIndex = errors.New("empty index")
)

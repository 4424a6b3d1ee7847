/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package swrcache

import (
	"encoding/json"
	"fmt"
)

// SizeEstimator converts a cached value into an approximate byte count.
// Estimation strategy can be swapped without touching the eviction logic.
type SizeEstimator interface {
	SizeOf(value interface{}) (int, error)
}

// SizeEstimatorFunc is an adapter to allow the use of ordinary functions as SizeEstimator.
type SizeEstimatorFunc func(value interface{}) (int, error)

// SizeOf implements SizeEstimator.
func (f SizeEstimatorFunc) SizeOf(value interface{}) (int, error) {
	return f(value)
}

// JSONSizeEstimator estimates a value's size as the length of its JSON representation.
// Values must be JSON-serializable.
type JSONSizeEstimator struct{}

// SizeOf implements SizeEstimator.
func (JSONSizeEstimator) SizeOf(value interface{}) (int, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return 0, fmt.Errorf("estimate value size: %w", err)
	}
	return len(data), nil
}

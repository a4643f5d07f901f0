// Package store keeps the sensor values referenced by rule conditions,
// and persists controller state across restarts. The in-memory store is
// the default; the Redis store survives restarts.
package store

import (
	"context"

	"shadecontrol/internal/rules/condition"
)

// Store holds sensor values and arbitrary JSON state blobs. Lookup (the
// condition.Source side) is synchronous since it runs inside an
// evaluation cycle.
type Store interface {
	condition.Source
	// Set stores a sensor value.
	Set(ctx context.Context, key, value string) error
	// SaveJSON persists a state blob under the given key.
	SaveJSON(ctx context.Context, key string, value any) error
	// LoadJSON restores a state blob. The bool reports whether the key
	// existed.
	LoadJSON(ctx context.Context, key string, value any) (bool, error)
}

// Package kvstore provides the key-value stores feed configuration is persisted in.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
)

const errMessageUnavailable = "storage unavailable"

// ErrUnavailable indicates that no storage backend is reachable.
var ErrUnavailable = errors.New(errMessageUnavailable)

// Change describes a key written or removed by another context. A nil NewValue
// marks a removal.
type Change struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// Listener receives the changes of one write, keyed by storage key.
type Listener func(changes map[string]Change)

// Store is a JSON key-value store shared between execution contexts.
type Store interface {
	// Get returns the stored values of keys; missing keys are absent from the result.
	Get(ctx context.Context, keys []string) (map[string]json.RawMessage, error)
	// Set writes every value, replacing what is stored.
	Set(ctx context.Context, values map[string]json.RawMessage) error
	// Remove deletes keys.
	Remove(ctx context.Context, keys []string) error
	// Watch reports writes made by other contexts until the returned function is called.
	Watch(listener Listener) (func(), error)
}

// Unavailable is a store that is never reachable.
type Unavailable struct{}

// Get always fails with ErrUnavailable.
func (Unavailable) Get(context.Context, []string) (map[string]json.RawMessage, error) {
	return nil, ErrUnavailable
}

// Set always fails with ErrUnavailable.
func (Unavailable) Set(context.Context, map[string]json.RawMessage) error {
	return ErrUnavailable
}

// Remove always fails with ErrUnavailable.
func (Unavailable) Remove(context.Context, []string) error {
	return ErrUnavailable
}

// Watch always fails with ErrUnavailable.
func (Unavailable) Watch(Listener) (func(), error) {
	return nil, ErrUnavailable
}

func cloneRaw(value json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	cloned := make(json.RawMessage, len(value))
	copy(cloned, value)
	return cloned
}

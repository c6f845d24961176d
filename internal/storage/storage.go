// Package storage persists JSON documents in two tiers: a primary
// structured store and a simple key/value fallback.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key holds no readable value.
	ErrNotFound = errors.New("storage: not found")
	// ErrUnavailable is returned when no tier could serve a write or delete.
	ErrUnavailable = errors.New("storage: no tier available")
	// ErrPartial is returned by Purge when some tiers deleted the key and
	// others did not.
	ErrPartial = errors.New("storage: key left in some tier")
)

// Backend is a single storage tier. Get returns ErrNotFound for missing keys.
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}

// Tier names reported by Status.
const (
	TierPrimary  = "primary"
	TierFallback = "fallback"
	TierNone     = "none"
)

type TierStatus struct {
	Backend   string `json:"backend" yaml:"backend"`
	Available bool   `json:"available" yaml:"available"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Status is a diagnostic snapshot. It is not meant for control flow.
type Status struct {
	Primary  TierStatus `json:"primary" yaml:"primary"`
	Fallback TierStatus `json:"fallback" yaml:"fallback"`
	// Active is the tier currently treated as authoritative.
	Active string `json:"active" yaml:"active"`
	// Breaker is the state of the primary tier circuit breaker.
	Breaker string `json:"breaker" yaml:"breaker"`
}

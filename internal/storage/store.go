package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizzard/internal/telemetry"
)

const (
	defaultMaxFailures    = 3
	defaultBreakerTimeout = 30 * time.Second
)

type Config struct {
	// Primary is the structured tier. It may be nil when the host has none.
	Primary Backend
	// Fallback is the simple key/value tier. It may be nil.
	Fallback Backend

	// MaxFailures consecutive primary failures trip the breaker, after which
	// the primary tier is skipped for BreakerTimeout.
	MaxFailures    uint32
	BreakerTimeout time.Duration

	Metrics *telemetry.Metrics
}

// Store is the two-tier store. Tier failures are logged and turned into
// fallback behaviour; they never escape as panics.
type Store struct {
	primary  Backend
	fallback Backend
	breaker  *gobreaker.CircuitBreaker
	metrics  *telemetry.Metrics
}

func New(c Config) *Store {
	if c.MaxFailures == 0 {
		c.MaxFailures = defaultMaxFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}

	s := &Store{
		primary:  c.Primary,
		fallback: c.Fallback,
		metrics:  c.Metrics,
	}

	s.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "storage-primary",
		Timeout: c.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= c.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("storage: primary tier breaker changed state",
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return s
}

// Save writes value to the primary tier and mirrors it to the fallback.
// When the primary fails the fallback alone is written.
func (s *Store) Save(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", key, err)
	}

	var primaryErr error
	if s.primary != nil {
		primaryErr = s.onPrimary(func() error { return s.primary.Set(ctx, key, b) })
		s.metrics.StorageOp(TierPrimary, "save", primaryErr)
		if primaryErr == nil {
			if s.fallback != nil {
				if err := s.fallback.Set(ctx, key, b); err != nil {
					slog.WarnContext(ctx, "storage: fallback mirror write failed", "key", key, "error", err)
				}
				s.metrics.StorageOp(TierFallback, "mirror", err)
			}
			return nil
		}
		slog.WarnContext(ctx, "storage: primary save failed, using fallback", "key", key, "error", primaryErr)
	}

	if s.fallback == nil {
		return errors.Join(ErrUnavailable, primaryErr)
	}

	err = s.fallback.Set(ctx, key, b)
	s.metrics.StorageOp(TierFallback, "save", err)
	if err != nil {
		slog.ErrorContext(ctx, "storage: fallback save failed", "key", key, "error", err)
		return errors.Join(ErrUnavailable, primaryErr, err)
	}

	return nil
}

// Load decodes the value stored at key into dst. It returns ErrNotFound when
// no tier holds a decodable value, including when the tiers are unreachable.
func (s *Store) Load(ctx context.Context, key string, dst any) error {
	if s.primary != nil {
		var b []byte
		err := s.onPrimary(func() (err error) {
			b, err = s.primary.Get(ctx, key)
			return err
		})
		s.metrics.StorageOp(TierPrimary, "load", ignoreNotFound(err))

		switch {
		case err == nil:
			uerr := json.Unmarshal(b, dst)
			if uerr == nil {
				return nil
			}
			slog.WarnContext(ctx, "storage: primary value is corrupt", "key", key, "error", uerr)
		case errors.Is(err, ErrNotFound):
		default:
			slog.WarnContext(ctx, "storage: primary load failed, using fallback", "key", key, "error", err)
		}
	}

	if s.fallback == nil {
		return ErrNotFound
	}

	b, err := s.fallback.Get(ctx, key)
	s.metrics.StorageOp(TierFallback, "load", ignoreNotFound(err))
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.WarnContext(ctx, "storage: fallback load failed", "key", key, "error", err)
		}
		return ErrNotFound
	}

	if err := json.Unmarshal(b, dst); err != nil {
		slog.WarnContext(ctx, "storage: fallback value is corrupt", "key", key, "error", err)
		return ErrNotFound
	}

	return nil
}

// Delete removes key from both tiers regardless of which one is active, so
// no copy survives. It fails only when every configured tier failed.
func (s *Store) Delete(ctx context.Context, key string) error {
	errs, succeeded := s.deleteAll(ctx, key)
	if !succeeded {
		return errors.Join(append([]error{ErrUnavailable}, errs...)...)
	}
	return nil
}

// Purge is Delete that also fails when any single tier failed, for keys
// whose leftover copy must not be read back.
func (s *Store) Purge(ctx context.Context, key string) error {
	errs, succeeded := s.deleteAll(ctx, key)
	switch {
	case !succeeded:
		return errors.Join(append([]error{ErrUnavailable}, errs...)...)
	case len(errs) > 0:
		return errors.Join(append([]error{ErrPartial}, errs...)...)
	}
	return nil
}

func (s *Store) deleteAll(ctx context.Context, key string) ([]error, bool) {
	var (
		errs      []error
		succeeded bool
	)

	// The breaker is bypassed here: skipping a tier would leave residue.
	for _, t := range s.tiers() {
		err := t.backend.Delete(ctx, key)
		s.metrics.StorageOp(t.name, "delete", err)
		if err != nil {
			slog.WarnContext(ctx, "storage: delete failed", "tier", t.name, "key", key, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
			continue
		}
		succeeded = true
	}

	return errs, succeeded
}

// Keys lists the keys with the given prefix held by either tier.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		seen = make(map[string]struct{})
		errs []error
		ok   bool
	)

	for _, t := range s.tiers() {
		keys, err := t.backend.Keys(ctx, prefix)
		if err != nil {
			slog.WarnContext(ctx, "storage: list keys failed", "tier", t.name, "prefix", prefix, "error", err)
			errs = append(errs, err)
			continue
		}
		ok = true
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}

	if !ok && len(errs) > 0 {
		return nil, errors.Join(append([]error{ErrUnavailable}, errs...)...)
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Migrate copies a fallback-only record into the primary tier.
func (s *Store) Migrate(ctx context.Context, key string) error {
	if s.primary == nil || s.fallback == nil {
		return ErrUnavailable
	}

	if _, err := s.primary.Get(ctx, key); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("storage: migrate %s: read primary: %w", key, err)
	}

	b, err := s.fallback.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("storage: migrate %s: read fallback: %w", key, err)
	}

	if !json.Valid(b) {
		return fmt.Errorf("storage: migrate %s: %w", key, ErrNotFound)
	}

	if err := s.primary.Set(ctx, key, b); err != nil {
		return fmt.Errorf("storage: migrate %s: write primary: %w", key, err)
	}

	slog.InfoContext(ctx, "storage: migrated record to primary tier", "key", key)
	return nil
}

// MigrateAll migrates every fallback record under prefix and returns how
// many records were copied.
func (s *Store) MigrateAll(ctx context.Context, prefix string) (int, error) {
	if s.primary == nil || s.fallback == nil {
		return 0, ErrUnavailable
	}

	keys, err := s.fallback.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("storage: migrate: list fallback: %w", err)
	}

	existing, err := s.primary.Keys(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("storage: migrate: list primary: %w", err)
	}
	inPrimary := make(map[string]struct{}, len(existing))
	for _, k := range existing {
		inPrimary[k] = struct{}{}
	}

	var (
		n    int
		errs []error
	)
	for _, k := range keys {
		if _, ok := inPrimary[k]; ok {
			continue
		}
		if err := s.Migrate(ctx, k); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}

	return n, errors.Join(errs...)
}

// Status probes both tiers.
func (s *Store) Status(ctx context.Context) Status {
	st := Status{
		Primary:  TierStatus{Backend: TierNone},
		Fallback: TierStatus{Backend: TierNone},
		Active:   TierNone,
		Breaker:  s.breaker.State().String(),
	}

	var eg errgroup.Group
	if s.primary != nil {
		eg.Go(func() error {
			st.Primary = probe(ctx, s.primary)
			return nil
		})
	}
	if s.fallback != nil {
		eg.Go(func() error {
			st.Fallback = probe(ctx, s.fallback)
			return nil
		})
	}
	_ = eg.Wait()

	switch {
	case st.Primary.Available && s.breaker.State() != gobreaker.StateOpen:
		st.Active = TierPrimary
	case st.Fallback.Available:
		st.Active = TierFallback
	}

	return st
}

func probe(ctx context.Context, b Backend) TierStatus {
	ts := TierStatus{Backend: b.Name(), Available: true}
	if err := b.Ping(ctx); err != nil {
		ts.Available = false
		ts.Error = err.Error()
	}
	return ts
}

func (s *Store) onPrimary(f func() error) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, f()
	})
	return err
}

type namedTier struct {
	name    string
	backend Backend
}

func (s *Store) tiers() []namedTier {
	var out []namedTier
	if s.primary != nil {
		out = append(out, namedTier{TierPrimary, s.primary})
	}
	if s.fallback != nil {
		out = append(out, namedTier{TierFallback, s.fallback})
	}
	return out
}

func ignoreNotFound(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

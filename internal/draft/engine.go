// Package draft owns the lifecycle of the single quiz draft being edited:
// creation, merge updates, debounced autosave, recovery and deletion.
package draft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/event"
	"github.com/victornm/quizzard/internal/schedule"
	"github.com/victornm/quizzard/internal/storage"
	"github.com/victornm/quizzard/internal/telemetry"
)

const (
	DefaultAutoSaveDelay = 30 * time.Second
	DefaultKeyPrefix     = "quizzard:draft:"

	autoSaveTimeout = 10 * time.Second
)

// Store is the subset of the two-tier store the engine needs.
type Store interface {
	Save(ctx context.Context, key string, value any) error
	Load(ctx context.Context, key string, dst any) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type Config struct {
	Store    Store
	EventBus *event.Bus
	Clock    clock.Clock
	Metrics  *telemetry.Metrics

	// AutoSaveDelay is the debounce window between the last update and the
	// autosave write.
	AutoSaveDelay time.Duration
	KeyPrefix     string
}

type Engine struct {
	store   Store
	eb      *event.Bus
	clock   clock.Clock
	metrics *telemetry.Metrics
	delay   time.Duration
	prefix  string
	timer   *schedule.Timer

	// ioMu serializes storage writes and deletes so a delete can never be
	// overtaken by a write of the same draft.
	ioMu sync.Mutex

	mu          sync.Mutex
	draft       domain.Draft
	initialized bool
	// epoch changes whenever the in-memory draft is replaced. An autosave
	// armed in an older epoch is dropped.
	epoch uint64
}

func NewEngine(c Config) *Engine {
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.AutoSaveDelay <= 0 {
		c.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}

	return &Engine{
		store:   c.Store,
		eb:      c.EventBus,
		clock:   c.Clock,
		metrics: c.Metrics,
		delay:   c.AutoSaveDelay,
		prefix:  c.KeyPrefix,
		timer:   schedule.NewTimer(c.Clock),
		draft:   domain.NewDraft(c.Clock.Now()),
	}
}

// Initialize prepares the draft for a wizard session. Editing an existing
// quiz keeps its ID. Without one, an abandoned untitled draft is reused if
// storage holds one, else a new draft is started. Later calls are no-ops
// until the session ends with Clear or Reset.
func (e *Engine) Initialize(ctx context.Context, existing *domain.Quiz) domain.Draft {
	e.mu.Lock()
	if e.initialized {
		d := e.draft.Clone()
		e.mu.Unlock()
		return d
	}
	e.initialized = true
	e.mu.Unlock()

	var d domain.Draft
	switch {
	case existing != nil:
		d = domain.DraftFromQuiz(*existing, e.clock.Now())
		slog.InfoContext(ctx, "draft: editing existing quiz", "id", d.ID)
	default:
		if abandoned, ok := e.findAbandoned(ctx); ok {
			d = abandoned
			slog.InfoContext(ctx, "draft: reusing abandoned draft", "id", d.ID)
		} else {
			d = domain.NewDraft(e.clock.Now())
		}
	}

	e.replace(d)
	return d.Clone()
}

// Draft returns a copy of the current draft.
func (e *Engine) Draft() domain.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft.Clone()
}

// Update merges p into the current draft and re-arms the autosave timer.
// The returned draft is already committed in memory; persistence follows
// later and is reported through draft.saved / draft.save_failed events.
func (e *Engine) Update(p domain.DraftPatch) domain.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.draft = p.Apply(e.draft, e.clock.Now())
	epoch := e.epoch
	e.timer.Arm(e.delay, func() { e.autoSave(epoch) })

	return e.draft.Clone()
}

// Save persists the current draft now, dropping any pending autosave.
func (e *Engine) Save(ctx context.Context) error {
	e.timer.Cancel()

	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	return e.persist(ctx, e.Draft(), false)
}

// Flush writes the draft if an autosave is pending. Hosts call it before
// shutting down.
func (e *Engine) Flush(ctx context.Context) error {
	if !e.timer.Cancel() {
		return nil
	}

	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	return e.persist(ctx, e.Draft(), true)
}

// Pending reports whether an autosave is armed.
func (e *Engine) Pending() bool {
	return e.timer.Pending()
}

// Clear cancels the pending autosave, deletes the stored draft and starts
// over with a fresh one. The in-memory reset happens even if the delete
// fails.
func (e *Engine) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.timer.Cancel()
	id := e.draft.ID
	e.epoch++
	e.draft = domain.NewDraft(e.clock.Now())
	e.initialized = false
	e.mu.Unlock()

	return e.delete(ctx, id)
}

// Reset starts over with a fresh draft without touching storage.
func (e *Engine) Reset() domain.Draft {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timer.Cancel()
	e.epoch++
	e.draft = domain.NewDraft(e.clock.Now())
	e.initialized = false
	return e.draft.Clone()
}

// Recover adopts the most recently updated stored draft. It reports
// whether a draft was found.
func (e *Engine) Recover(ctx context.Context) (bool, error) {
	drafts, err := e.List(ctx)
	if err != nil {
		return false, err
	}

	for _, d := range drafts {
		if d.Status != domain.StatusDraft {
			continue
		}
		e.replace(d)
		e.mu.Lock()
		e.initialized = true
		e.mu.Unlock()
		slog.InfoContext(ctx, "draft: recovered", "id", d.ID, "updated_at", d.UpdatedAt)
		return true, nil
	}

	return false, nil
}

// List returns the stored drafts, most recently updated first. Unreadable
// records are skipped.
func (e *Engine) List(ctx context.Context) ([]domain.Draft, error) {
	keys, err := e.store.Keys(ctx, e.prefix)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}

	drafts := make([]domain.Draft, 0, len(keys))
	for _, k := range keys {
		var d domain.Draft
		if err := e.store.Load(ctx, k, &d); err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				slog.WarnContext(ctx, "draft: load failed", "key", k, "error", err)
			}
			continue
		}
		if d.ID == "" {
			d.ID = strings.TrimPrefix(k, e.prefix)
		}
		drafts = append(drafts, d)
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt)
	})

	return drafts, nil
}

// Load returns the stored draft with the given ID.
func (e *Engine) Load(ctx context.Context, id string) (domain.Draft, error) {
	var d domain.Draft
	if err := e.store.Load(ctx, e.key(id), &d); err != nil {
		return domain.Draft{}, fmt.Errorf("load draft %s: %w", id, err)
	}
	return d, nil
}

// Discard deletes a stored draft. Discarding the current draft is the same
// as Clear.
func (e *Engine) Discard(ctx context.Context, id string) error {
	e.mu.Lock()
	current := e.draft.ID == id
	e.mu.Unlock()

	if current {
		return e.Clear(ctx)
	}
	return e.delete(ctx, id)
}

func (e *Engine) autoSave(epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), autoSaveTimeout)
	defer cancel()

	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	e.mu.Lock()
	if epoch != e.epoch {
		e.mu.Unlock()
		return
	}
	d := e.draft.Clone()
	e.mu.Unlock()

	// Failures are reported by persist; autosave has no caller to return to.
	_ = e.persist(ctx, d, true)
}

// persist writes d. Callers hold ioMu.
func (e *Engine) persist(ctx context.Context, d domain.Draft, auto bool) error {
	err := e.store.Save(ctx, e.key(d.ID), d)
	e.metrics.DraftSave(trigger(auto), err)

	if err != nil {
		slog.ErrorContext(ctx, "draft: save failed", "id", d.ID, "auto", auto, "error", err)
		e.eb.Publish(ctx, domain.EventDraftSaveFailed{DraftID: d.ID, Err: err})
		return fmt.Errorf("save draft %s: %w", d.ID, err)
	}

	slog.DebugContext(ctx, "draft: saved", "id", d.ID, "auto", auto)
	e.eb.Publish(ctx, domain.EventDraftSaved{Draft: d, Auto: auto})
	return nil
}

func (e *Engine) delete(ctx context.Context, id string) error {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()

	if err := e.store.Delete(ctx, e.key(id)); err != nil {
		slog.ErrorContext(ctx, "draft: delete failed", "id", id, "error", err)
		return fmt.Errorf("delete draft %s: %w", id, err)
	}

	e.eb.Publish(ctx, domain.EventDraftDeleted{DraftID: id})
	return nil
}

func (e *Engine) replace(d domain.Draft) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.timer.Cancel()
	e.epoch++
	e.draft = d
}

func (e *Engine) findAbandoned(ctx context.Context) (domain.Draft, bool) {
	drafts, err := e.List(ctx)
	if err != nil {
		slog.WarnContext(ctx, "draft: cannot look for abandoned drafts", "error", err)
		return domain.Draft{}, false
	}

	for _, d := range drafts {
		if d.Status == domain.StatusDraft && strings.TrimSpace(d.Title) == "" && domain.IsDraftID(d.ID) {
			return d, true
		}
	}
	return domain.Draft{}, false
}

func (e *Engine) key(id string) string {
	return e.prefix + id
}

func trigger(auto bool) string {
	if auto {
		return "auto"
	}
	return "manual"
}

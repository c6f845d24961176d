package draft_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizzard/internal/domain"
	"github.com/victornm/quizzard/internal/draft"
	"github.com/victornm/quizzard/internal/event"
	"github.com/victornm/quizzard/internal/storage"
	"github.com/victornm/quizzard/internal/storage/memory"
)

const delay = 30 * time.Second

// countingStore records writes on top of a real two-tier store.
type countingStore struct {
	*storage.Store

	mu     sync.Mutex
	saves  []domain.Draft
	failOn atomic.Bool
}

func (s *countingStore) Save(ctx context.Context, key string, value any) error {
	if s.failOn.Load() {
		return storage.ErrUnavailable
	}

	s.mu.Lock()
	if d, ok := value.(domain.Draft); ok {
		s.saves = append(s.saves, d)
	}
	s.mu.Unlock()

	return s.Store.Save(ctx, key, value)
}

func (s *countingStore) writes() []domain.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Draft(nil), s.saves...)
}

type fixture struct {
	engine *draft.Engine
	store  *countingStore
	clock  *clock.Mock
	bus    *event.Bus
}

func makeEngine(t *testing.T) fixture {
	t.Helper()

	mc := clock.NewMock()
	mc.Set(time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC))

	st := &countingStore{Store: storage.New(storage.Config{
		Primary:  memory.NewBackend(),
		Fallback: memory.NewBackend(),
	})}

	bus := event.NewBus()
	t.Cleanup(bus.Stop)

	return fixture{
		engine: draft.NewEngine(draft.Config{
			Store:         st,
			EventBus:      bus,
			Clock:         mc,
			AutoSaveDelay: delay,
		}),
		store: st,
		clock: mc,
		bus:   bus,
	}
}

func (f fixture) stored(t *testing.T, id string) (domain.Draft, bool) {
	t.Helper()
	d, err := f.engine.Load(context.Background(), id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Draft{}, false
	}
	require.NoError(t, err)
	return d, true
}

func TestEngine_Initialize(t *testing.T) {
	ctx := context.Background()

	t.Run("edit keeps the quiz ID", func(t *testing.T) {
		f := makeEngine(t)

		d := f.engine.Initialize(ctx, &domain.Quiz{ID: "quiz_42", Title: "Pub night"})
		assert.Equal(t, "quiz_42", d.ID)
		assert.Equal(t, domain.StatusDraft, d.Status)
		assert.Equal(t, "Pub night", d.Title)
	})

	t.Run("new draft gets a temporary ID", func(t *testing.T) {
		f := makeEngine(t)

		d := f.engine.Initialize(ctx, nil)
		assert.True(t, domain.IsDraftID(d.ID))
		assert.Empty(t, d.Title)
		require.NotNil(t, d.Settings)
	})

	t.Run("second call is a no-op", func(t *testing.T) {
		f := makeEngine(t)

		first := f.engine.Initialize(ctx, nil)
		second := f.engine.Initialize(ctx, &domain.Quiz{ID: "quiz_1"})
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("clear and reset end the session", func(t *testing.T) {
		f := makeEngine(t)

		f.engine.Initialize(ctx, nil)
		require.NoError(t, f.engine.Clear(ctx))
		d := f.engine.Initialize(ctx, &domain.Quiz{ID: "quiz_1"})
		assert.Equal(t, "quiz_1", d.ID)

		f.engine.Reset()
		d = f.engine.Initialize(ctx, &domain.Quiz{ID: "quiz_2"})
		assert.Equal(t, "quiz_2", d.ID)
	})

	t.Run("reuses an abandoned untitled draft", func(t *testing.T) {
		f := makeEngine(t)

		abandoned := domain.NewDraft(f.clock.Now())
		titled := domain.NewDraft(f.clock.Now().Add(time.Minute))
		titled.Title = "Keep me"
		require.NoError(t, f.store.Save(ctx, draft.DefaultKeyPrefix+abandoned.ID, abandoned))
		require.NoError(t, f.store.Save(ctx, draft.DefaultKeyPrefix+titled.ID, titled))

		d := f.engine.Initialize(ctx, nil)
		assert.Equal(t, abandoned.ID, d.ID)
	})
}

func TestEngine_UpdateMergesSettings(t *testing.T) {
	f := makeEngine(t)
	f.engine.Initialize(context.Background(), nil)

	f.engine.Update(domain.DraftPatch{Settings: &domain.SettingsPatch{AllowHints: domain.Ptr(true)}})
	d := f.engine.Update(domain.DraftPatch{Settings: &domain.SettingsPatch{DefaultTimeLimit: domain.Ptr(45)}})

	require.NotNil(t, d.Settings)
	assert.Equal(t, 45, d.Settings.DefaultTimeLimit)
	assert.True(t, d.Settings.AllowHints)
}

func TestEngine_UpdateReplacesRounds(t *testing.T) {
	f := makeEngine(t)
	f.engine.Initialize(context.Background(), nil)

	roundA := domain.Round{ID: "a", Title: "A"}
	roundB := domain.Round{ID: "b", Title: "B"}

	f.engine.Update(domain.DraftPatch{Rounds: []domain.Round{roundA}})
	d := f.engine.Update(domain.DraftPatch{Rounds: []domain.Round{roundB}})
	require.Equal(t, []domain.Round{roundB}, d.Rounds)

	d = f.engine.Update(domain.DraftPatch{Title: domain.Ptr("only title")})
	require.Equal(t, []domain.Round{roundB}, d.Rounds, "rounds untouched when not in the patch")
}

func TestEngine_AutoSaveDebounce(t *testing.T) {
	f := makeEngine(t)
	f.engine.Initialize(context.Background(), nil)

	saved := make(chan domain.EventDraftSaved, 4)
	f.bus.Subscribe(domain.EventNameDraftSaved, func(_ context.Context, e event.Event) error {
		saved <- e.(domain.EventDraftSaved)
		return nil
	})

	for _, title := range []string{"C", "Ca", "Cap", "Capitals"} {
		f.engine.Update(domain.DraftPatch{Title: domain.Ptr(title)})
		f.clock.Add(time.Second)
	}
	assert.Empty(t, f.store.writes(), "nothing is written inside the window")
	assert.True(t, f.engine.Pending())

	f.clock.Add(delay)

	require.Eventually(t, func() bool { return len(f.store.writes()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, "Capitals", f.store.writes()[0].Title)

	select {
	case e := <-saved:
		assert.True(t, e.Auto)
		assert.Equal(t, "Capitals", e.Draft.Title)
	case <-time.After(time.Second):
		t.Fatal("draft.saved was not published")
	}

	f.clock.Add(delay)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, f.store.writes(), 1, "no further writes without updates")
	assert.False(t, f.engine.Pending())
}

func TestEngine_ClearCancelsAutoSave(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	d := f.engine.Initialize(ctx, nil)

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("gone soon")})
	require.NoError(t, f.engine.Clear(ctx))

	f.clock.Add(2 * delay)
	time.Sleep(10 * time.Millisecond)

	_, ok := f.stored(t, d.ID)
	assert.False(t, ok, "cleared draft must not come back")
	assert.Empty(t, f.store.writes())
	assert.NotEqual(t, d.ID, f.engine.Draft().ID)
}

func TestEngine_ClearDeletesStoredDraft(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	d := f.engine.Initialize(ctx, nil)

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("x")})
	require.NoError(t, f.engine.Save(ctx))
	_, ok := f.stored(t, d.ID)
	require.True(t, ok)

	require.NoError(t, f.engine.Clear(ctx))
	_, ok = f.stored(t, d.ID)
	assert.False(t, ok)
}

func TestEngine_Save(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	d := f.engine.Initialize(ctx, nil)

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("manual")})
	require.NoError(t, f.engine.Save(ctx))
	assert.False(t, f.engine.Pending(), "explicit save drops the pending autosave")

	got, ok := f.stored(t, d.ID)
	require.True(t, ok)
	assert.Equal(t, "manual", got.Title)

	f.store.failOn.Store(true)
	require.ErrorIs(t, f.engine.Save(ctx), storage.ErrUnavailable)
}

func TestEngine_Flush(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	f.engine.Initialize(ctx, nil)

	require.NoError(t, f.engine.Flush(ctx))
	assert.Empty(t, f.store.writes(), "nothing pending, nothing written")

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("flushed")})
	require.NoError(t, f.engine.Flush(ctx))
	require.Len(t, f.store.writes(), 1)
	assert.Equal(t, "flushed", f.store.writes()[0].Title)
}

func TestEngine_Reset(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	d := f.engine.Initialize(ctx, nil)

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("keep stored")})
	require.NoError(t, f.engine.Save(ctx))

	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("pending")})
	nd := f.engine.Reset()
	assert.NotEqual(t, d.ID, nd.ID)
	assert.Empty(t, nd.Title)
	assert.False(t, f.engine.Pending())

	got, ok := f.stored(t, d.ID)
	require.True(t, ok, "reset leaves storage alone")
	assert.Equal(t, "keep stored", got.Title)
}

func TestEngine_Recover(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()

	ok, err := f.engine.Recover(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	older := domain.NewDraft(f.clock.Now())
	older.Title = "older"
	newer := domain.NewDraft(f.clock.Now().Add(time.Hour))
	newer.Title = "newer"
	published := domain.NewDraft(f.clock.Now().Add(2 * time.Hour))
	published.Status = domain.StatusPublished

	for _, d := range []domain.Draft{older, newer, published} {
		require.NoError(t, f.store.Save(ctx, draft.DefaultKeyPrefix+d.ID, d))
	}

	ok, err = f.engine.Recover(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, newer.ID, f.engine.Draft().ID)
}

func TestEngine_ListAndDiscard(t *testing.T) {
	f := makeEngine(t)
	ctx := context.Background()
	current := f.engine.Initialize(ctx, nil)

	other := domain.NewDraft(f.clock.Now().Add(time.Minute))
	require.NoError(t, f.store.Save(ctx, draft.DefaultKeyPrefix+other.ID, other))
	require.NoError(t, f.engine.Save(ctx))

	list, err := f.engine.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, other.ID, list[0].ID, "most recent first")

	require.NoError(t, f.engine.Discard(ctx, other.ID))
	_, ok := f.stored(t, other.ID)
	assert.False(t, ok)
	assert.Equal(t, current.ID, f.engine.Draft().ID)

	require.NoError(t, f.engine.Discard(ctx, current.ID))
	assert.NotEqual(t, current.ID, f.engine.Draft().ID, "discarding the current draft starts a new one")
}

func TestEngine_AutoSaveFailurePublishesEvent(t *testing.T) {
	f := makeEngine(t)
	d := f.engine.Initialize(context.Background(), nil)

	failed := make(chan domain.EventDraftSaveFailed, 1)
	f.bus.Subscribe(domain.EventNameDraftSaveFailed, func(_ context.Context, e event.Event) error {
		failed <- e.(domain.EventDraftSaveFailed)
		return nil
	})

	f.store.failOn.Store(true)
	f.engine.Update(domain.DraftPatch{Title: domain.Ptr("doomed")})
	f.clock.Add(delay)

	select {
	case e := <-failed:
		assert.Equal(t, d.ID, e.DraftID)
		assert.ErrorIs(t, e.Err, storage.ErrUnavailable)
	case <-time.After(time.Second):
		t.Fatal("draft.save_failed was not published")
	}
}

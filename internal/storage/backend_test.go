package storage_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizzard/internal/storage"
	"github.com/victornm/quizzard/internal/storage/file"
	"github.com/victornm/quizzard/internal/storage/memory"
	"github.com/victornm/quizzard/internal/storage/redis"
	"github.com/victornm/quizzard/internal/storage/sqlite"
)

func backends(t *testing.T) map[string]storage.Backend {
	t.Helper()

	fb, err := file.NewBackend(t.TempDir())
	require.NoError(t, err)

	sb, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sb.Close() })

	mr := miniredis.RunT(t)
	rb := redis.NewBackend(redis.Config{
		Redis:  goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}}),
		Prefix: "quizzard",
	})

	return map[string]storage.Backend{
		"memory": memory.NewBackend(),
		"file":   fb,
		"sqlite": sb,
		"redis":  rb,
	}
}

func TestBackends(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := b.Get(ctx, "draft_1")
			require.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, b.Set(ctx, "draft_1", []byte(`{"v":1}`)))
			require.NoError(t, b.Set(ctx, "draft_1", []byte(`{"v":2}`)))
			require.NoError(t, b.Set(ctx, "draft_2", []byte(`{}`)))
			require.NoError(t, b.Set(ctx, "quiz/with:odd*chars", []byte(`{}`)))

			v, err := b.Get(ctx, "draft_1")
			require.NoError(t, err)
			require.JSONEq(t, `{"v":2}`, string(v))

			keys, err := b.Keys(ctx, "draft_")
			require.NoError(t, err)
			require.ElementsMatch(t, []string{"draft_1", "draft_2"}, keys)

			keys, err = b.Keys(ctx, "quiz/")
			require.NoError(t, err)
			require.Equal(t, []string{"quiz/with:odd*chars"}, keys)

			require.NoError(t, b.Delete(ctx, "draft_1"))
			require.NoError(t, b.Delete(ctx, "draft_1"), "deleting a missing key is not an error")

			_, err = b.Get(ctx, "draft_1")
			require.ErrorIs(t, err, storage.ErrNotFound)

			require.NoError(t, b.Ping(ctx))
		})
	}
}

func TestRedisBackend_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	b := redis.NewBackend(redis.Config{
		Redis: goredis.NewUniversalClient(&goredis.UniversalOptions{Addrs: []string{mr.Addr()}}),
	})
	mr.Close()

	ctx := context.Background()
	require.Error(t, b.Ping(ctx))

	_, err := b.Get(ctx, "k")
	require.Error(t, err)
	require.NotErrorIs(t, err, storage.ErrNotFound)
}

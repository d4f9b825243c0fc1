package session_test

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/homecloud/pkg/session"
)

func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}

	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	store := session.NewRedisStore(client, "homecloud-test:"+t.Name()+":")

	s := session.New("id-1", "token-1", time.Now().Add(time.Minute))
	s.SetUser("carol")
	s.SetValue("theme", "dark")
	require.NoError(t, store.Create(ctx, s))

	got, err := store.Get(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, "carol", got.User())
	require.Equal(t, "dark", session.ValueOr(got, "theme", ""))

	s.Token = "token-2"
	require.NoError(t, store.Update(ctx, s, "token-1"))
	_, err = store.Get(ctx, "token-1")
	require.ErrorIs(t, err, session.ErrNotFound)

	tokens, err := store.DeleteByUserID(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, []string{"token-2"}, tokens)

	require.ErrorIs(t, store.Delete(ctx, "token-2"), session.ErrNotFound)
}

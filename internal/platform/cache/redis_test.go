package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "v", got)
}

func TestNewAcceptsURLAndDB(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), Options{Addr: "redis://" + mr.Addr() + "/0", DB: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	mr.Select(2)
	require.True(t, mr.Exists("k"))
}

func TestNewFailsWithoutServer(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), Options{Addr: addr})
	require.Error(t, err)

	_, err = New(context.Background(), Options{})
	require.ErrorContains(t, err, "address required")
}

func TestAsynqOptionsFollowClient(t *testing.T) {
	opt, err := Options{Addr: "redis://:pw@cache.internal:6380/3"}.Asynq()
	require.NoError(t, err)
	require.Equal(t, "cache.internal:6380", opt.Addr)
	require.Equal(t, "pw", opt.Password)
	require.Equal(t, 3, opt.DB)

	opt, err = Options{Addr: "127.0.0.1:6379", Password: "x", DB: 1}.Asynq()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", opt.Addr)
	require.Equal(t, "x", opt.Password)
	require.Equal(t, 1, opt.DB)
}

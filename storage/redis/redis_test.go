package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/oauth-par/internal/testutil"
	"github.com/giantswarm/oauth-par/security"
	"github.com/giantswarm/oauth-par/storage"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewWithClient(client, "test:", nil), mr
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)

	mr := miniredis.RunT(t)
	store, err := New(context.Background(), Config{Addrs: []string{mr.Addr()}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	assert.Equal(t, DefaultKeyPrefix, store.prefix)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestStore_SaveGetConsume(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))

	assert.True(t, mr.Exists("test:par:"+req.Reference))
	assert.Equal(t, time.Minute, mr.TTL("test:par:"+req.Reference))

	got, err := store.GetParRequest(ctx, req.Reference)
	require.NoError(t, err)
	assert.Equal(t, req.ClientID, got.ClientID)
	assert.Equal(t, req.Parameters, got.Parameters)

	consumed, err := store.ConsumeParRequest(ctx, req.Reference)
	require.NoError(t, err)
	assert.Equal(t, req.Reference, consumed.Reference)
	assert.False(t, mr.Exists("test:par:"+req.Reference))

	_, err = store.ConsumeParRequest(ctx, req.Reference)
	assert.ErrorIs(t, err, storage.ErrParRequestNotFound)
}

func TestStore_SaveParRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(t *testing.T, s *Store) *storage.ParRequest
		wantErr error
	}{
		{
			name: "fresh reference",
			setup: func(_ *testing.T, _ *Store) *storage.ParRequest {
				return testutil.GenerateTestParRequest(time.Now(), time.Minute)
			},
		},
		{
			name: "live reference",
			setup: func(t *testing.T, s *Store) *storage.ParRequest {
				req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
				require.NoError(t, s.SaveParRequest(context.Background(), req))
				return req
			},
			wantErr: storage.ErrParRequestExists,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store, _ := newTestStore(t)

			err := store.SaveParRequest(context.Background(), tt.setup(t, store))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStore_SaveParRequest_Invalid(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, store.SaveParRequest(ctx, nil))
	assert.Error(t, store.SaveParRequest(ctx, testutil.GenerateTestParRequest(time.Now(), 0)))
}

func TestStore_TTLExpiry(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))

	mr.FastForward(time.Minute)

	_, err := store.GetParRequest(ctx, req.Reference)
	assert.ErrorIs(t, err, storage.ErrParRequestNotFound)

	// The reference is free again once the entry has expired.
	require.NoError(t, store.SaveParRequest(ctx, req))
}

func TestStore_ReadSideExpiry(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	req := testutil.GenerateTestParRequest(now, time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))

	store.SetClock(func() time.Time { return now.Add(time.Minute) })

	_, err := store.ConsumeParRequest(ctx, req.Reference)
	assert.ErrorIs(t, err, storage.ErrParRequestNotFound)
}

func TestStore_ConsumeParRequest_Concurrent(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.ConsumeParRequest(ctx, req.Reference); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
}

func TestStore_DeleteParRequest(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))
	require.NoError(t, store.DeleteParRequest(ctx, req.Reference))
	require.NoError(t, store.DeleteParRequest(ctx, req.Reference))

	assert.False(t, mr.Exists("test:par:"+req.Reference))
}

func TestStore_Encryption(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	key, err := security.GenerateKey()
	require.NoError(t, err)
	enc, err := security.NewEncryptor(key)
	require.NoError(t, err)
	store.SetEncryptor(enc)

	req := testutil.GenerateTestParRequest(time.Now(), time.Minute)
	require.NoError(t, store.SaveParRequest(ctx, req))

	raw, err := mr.Get("test:par:" + req.Reference)
	require.NoError(t, err)
	assert.NotContains(t, raw, testutil.TestRedirectURI)

	got, err := store.GetParRequest(ctx, req.Reference)
	require.NoError(t, err)
	assert.Equal(t, testutil.TestRedirectURI, got.Parameters["redirect_uri"])
}

func TestStore_BackendError(t *testing.T) {
	t.Parallel()
	store, mr := newTestStore(t)
	ctx := context.Background()

	mr.SetError("ERR simulated backend failure")
	t.Cleanup(func() { mr.SetError("") })

	err := store.SaveParRequest(ctx, testutil.GenerateTestParRequest(time.Now(), time.Minute))
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrParRequestExists)

	_, err = store.ConsumeParRequest(ctx, "anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrParRequestNotFound)
}

func TestStore_Clients(t *testing.T) {
	t.Parallel()
	store, _ := newTestStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	require.NoError(t, store.SaveClient(ctx, client))

	got, err := store.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.RedirectURIs, got.RedirectURIs)

	_, err = store.GetClient(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrClientNotFound)

	assert.NoError(t, store.ValidateClientSecret(ctx, client.ClientID, testutil.TestClientSecret))
	assert.ErrorIs(t, store.ValidateClientSecret(ctx, client.ClientID, "wrong"), storage.ErrInvalidClientCredentials)
	assert.ErrorIs(t, store.ValidateClientSecret(ctx, "missing", "x"), storage.ErrInvalidClientCredentials)

	assert.Error(t, store.SaveClient(ctx, nil))
}

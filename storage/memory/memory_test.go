package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/giantswarm/oauth-par/instrumentation"
	"github.com/giantswarm/oauth-par/internal/testutil"
	"github.com/giantswarm/oauth-par/storage"
)

const testTTL = 10 * time.Minute

func newTestStore(t *testing.T) (*Store, *testutil.MockTime) {
	t.Helper()

	clock := testutil.NewMockTime(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	store := New()
	store.SetClock(clock.Now)
	t.Cleanup(store.Stop)
	return store, clock
}

// ============================================================
// ParRequestStore Tests
// ============================================================

func TestStore_SaveAndGetParRequest(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	got, err := store.GetParRequest(ctx, req.Reference)
	testutil.AssertNoError(t, err)

	if got.ClientID != req.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, req.ClientID)
	}
	if got.Parameters["redirect_uri"] != req.Parameters["redirect_uri"] {
		t.Errorf("redirect_uri = %q, want %q", got.Parameters["redirect_uri"], req.Parameters["redirect_uri"])
	}

	// Get does not consume.
	if _, err := store.GetParRequest(ctx, req.Reference); err != nil {
		t.Errorf("second GetParRequest() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
}

func TestStore_SaveParRequest_Invalid(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveParRequest(ctx, nil); err == nil {
		t.Error("SaveParRequest(nil) should return error")
	}
	if err := store.SaveParRequest(ctx, &storage.ParRequest{}); err == nil {
		t.Error("SaveParRequest() with empty reference should return error")
	}
}

func TestStore_SaveParRequest_StoresCopy(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	req.Parameters["scope"] = "admin"

	got, err := store.GetParRequest(ctx, req.Reference)
	testutil.AssertNoError(t, err)
	if got.Parameters["scope"] != "openid profile" {
		t.Errorf("stored scope = %q, caller mutation leaked into the store", got.Parameters["scope"])
	}

	got.Parameters["scope"] = "admin"
	again, _ := store.GetParRequest(ctx, req.Reference)
	if again.Parameters["scope"] != "openid profile" {
		t.Error("mutating a returned request changed the stored one")
	}
}

func TestStore_SaveParRequest_DuplicateReference(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	dup := req.Clone()
	dup.ClientID = "other-client"
	err := store.SaveParRequest(ctx, dup)
	if !errors.Is(err, storage.ErrParRequestExists) {
		t.Fatalf("SaveParRequest() duplicate error = %v, want ErrParRequestExists", err)
	}

	got, _ := store.GetParRequest(ctx, req.Reference)
	if got.ClientID != testutil.TestClientID {
		t.Errorf("duplicate save overwrote the live entry (client %q)", got.ClientID)
	}
}

func TestStore_SaveParRequest_ReplacesExpired(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), time.Minute)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	clock.Advance(time.Minute)

	fresh := req.Clone()
	fresh.CreatedAt = clock.Now()
	fresh.ExpiresAt = clock.Now().Add(time.Minute)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, fresh))

	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after replacing an expired entry", store.Len())
	}
}

func TestStore_ConsumeParRequest_SingleUse(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	got, err := store.ConsumeParRequest(ctx, req.Reference)
	testutil.AssertNoError(t, err)
	if got.Reference != req.Reference {
		t.Errorf("Reference = %q, want %q", got.Reference, req.Reference)
	}

	if _, err := store.ConsumeParRequest(ctx, req.Reference); !errors.Is(err, storage.ErrParRequestNotFound) {
		t.Errorf("second ConsumeParRequest() error = %v, want ErrParRequestNotFound", err)
	}
	if _, err := store.GetParRequest(ctx, req.Reference); !errors.Is(err, storage.ErrParRequestNotFound) {
		t.Errorf("GetParRequest() after consume error = %v, want ErrParRequestNotFound", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestStore_ConsumeParRequest_Concurrent(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	const goroutines = 1000
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		start     = make(chan struct{})
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := store.ConsumeParRequest(ctx, req.Reference); err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("successful consumers = %d, want exactly 1", got)
	}
}

func TestStore_SaveParRequest_ConcurrentSameReference(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	base := testutil.GenerateTestParRequest(clock.Now(), testTTL)

	const goroutines = 200
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.SaveParRequest(ctx, base.Clone())
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, storage.ErrParRequestExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != goroutines-1 {
		t.Errorf("successes = %d, conflicts = %d; want 1 and %d", successes.Load(), conflicts.Load(), goroutines-1)
	}
}

func TestStore_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		wantErr bool
	}{
		{name: "just before expiry", advance: testTTL - time.Nanosecond, wantErr: false},
		{name: "exactly at expiry", advance: testTTL, wantErr: true},
		{name: "after expiry", advance: testTTL + time.Second, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, clock := newTestStore(t)
			ctx := context.Background()

			req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
			testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

			clock.Advance(tt.advance)

			_, getErr := store.GetParRequest(ctx, req.Reference)
			_, consumeErr := store.ConsumeParRequest(ctx, req.Reference)

			for name, err := range map[string]error{"get": getErr, "consume": consumeErr} {
				if tt.wantErr && !errors.Is(err, storage.ErrParRequestNotFound) {
					t.Errorf("%s error = %v, want ErrParRequestNotFound", name, err)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("%s error = %v, want nil", name, err)
				}
			}
		})
	}
}

func TestStore_DeleteParRequest(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))

	testutil.AssertNoError(t, store.DeleteParRequest(ctx, req.Reference))
	testutil.AssertNoError(t, store.DeleteParRequest(ctx, req.Reference))

	if _, err := store.GetParRequest(ctx, req.Reference); !errors.Is(err, storage.ErrParRequestNotFound) {
		t.Errorf("GetParRequest() after delete error = %v, want ErrParRequestNotFound", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

func TestStore_Cleanup(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()

	short := testutil.GenerateTestParRequest(clock.Now(), time.Minute)
	long := testutil.GenerateTestParRequest(clock.Now(), time.Hour)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, short))
	testutil.AssertNoError(t, store.SaveParRequest(ctx, long))

	if removed := store.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() before expiry removed %d, want 0", removed)
	}

	clock.Advance(2 * time.Minute)

	if removed := store.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1", removed)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}
	if _, err := store.GetParRequest(ctx, long.Reference); err != nil {
		t.Errorf("live request was swept: %v", err)
	}
}

func TestStore_CleanupLoop(t *testing.T) {
	store := NewWithInterval(10 * time.Millisecond)
	defer store.Stop()

	clock := testutil.NewMockTime(time.Now())
	store.SetClock(clock.Now)

	req := testutil.GenerateTestParRequest(clock.Now(), time.Second)
	testutil.AssertNoError(t, store.SaveParRequest(context.Background(), req))

	clock.Advance(time.Hour)

	deadline := time.Now().Add(2 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("background cleanup did not remove the expired request")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStore_StopTwice(t *testing.T) {
	store := New()
	store.Stop()
	store.Stop()
}

// ============================================================
// ClientStore Tests
// ============================================================

func TestStore_Clients(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	client := testutil.GenerateTestClient()
	testutil.AssertNoError(t, store.SaveClient(ctx, client))

	got, err := store.GetClient(ctx, client.ClientID)
	testutil.AssertNoError(t, err)
	if got.ClientName != client.ClientName {
		t.Errorf("ClientName = %q, want %q", got.ClientName, client.ClientName)
	}

	if _, err := store.GetClient(ctx, "unknown"); !errors.Is(err, storage.ErrClientNotFound) {
		t.Errorf("GetClient(unknown) error = %v, want ErrClientNotFound", err)
	}
	if err := store.SaveClient(ctx, &storage.Client{}); err == nil {
		t.Error("SaveClient() with empty ID should return error")
	}
}

func TestStore_ValidateClientSecret(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	testutil.AssertNoError(t, store.SaveClient(ctx, testutil.GenerateTestClient()))
	testutil.AssertNoError(t, store.SaveClient(ctx, testutil.GenerateTestPublicClient()))

	tests := []struct {
		name     string
		clientID string
		secret   string
		wantErr  bool
	}{
		{"correct secret", testutil.TestClientID, testutil.TestClientSecret, false},
		{"wrong secret", testutil.TestClientID, "wrong", true},
		{"empty secret", testutil.TestClientID, "", true},
		{"unknown client", "nobody", testutil.TestClientSecret, true},
		{"public client", testutil.TestPublicClientID, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.ValidateClientSecret(ctx, tt.clientID, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateClientSecret() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, storage.ErrInvalidClientCredentials) {
				t.Errorf("error = %v, want ErrInvalidClientCredentials", err)
			}
		})
	}
}

// ============================================================
// Instrumentation Tests
// ============================================================

func TestStore_SetInstrumentation(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, MetricReader: reader})
	testutil.AssertNoError(t, err)
	defer func() { _ = inst.Shutdown(context.Background()) }()

	store, clock := newTestStore(t)
	store.SetInstrumentation(inst)

	ctx := context.Background()
	req := testutil.GenerateTestParRequest(clock.Now(), testTTL)
	testutil.AssertNoError(t, store.SaveParRequest(ctx, req))
	_, _ = store.ConsumeParRequest(ctx, req.Reference)
	_, _ = store.ConsumeParRequest(ctx, req.Reference)

	// Recording must not disturb store behavior; the recorded values are
	// covered by the instrumentation package tests.
	if store.Len() != 0 {
		t.Errorf("Len() = %d, want 0", store.Len())
	}
}

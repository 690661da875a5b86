package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestReconciler(t *testing.T) (*Reconciler, Store) {
	t.Helper()
	store := NewMemoryStore()
	r := NewReconciler(Params{
		Store:    store,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Settings: config.NewStaticRestaurantHolder(config.DefaultRestaurantConfig()),
	})
	return r, store
}

type samplePayload struct {
	Name string `json:"name"`
}

func TestDrainReplaysQueuedEntries(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx := context.Background()

	var seen []string
	r.Register(KindOrderCreate, func(ctx context.Context, payload json.RawMessage) error {
		var p samplePayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return err
		}
		seen = append(seen, p.Name)
		return nil
	})

	_, err := r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "first"})
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "second"})
	require.NoError(t, err)

	result, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Replayed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, []string{"first", "second"}, seen)
}

func TestDrainRequeuesFailures(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	calls := 0
	r.Register(KindOrderCreate, func(ctx context.Context, payload json.RawMessage) error {
		calls++
		if calls == 1 {
			return errors.New("database unavailable")
		}
		return nil
	})

	_, err := r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "late"})
	require.NoError(t, err)

	result, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(1), result.Remaining)

	claim, err := store.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 1, claim.Entry.Attempts)
	assert.Equal(t, "database unavailable", claim.Entry.LastError)
	require.NoError(t, store.Requeue(ctx, claim, claim.Entry))

	result, err = r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	assert.Equal(t, int64(0), result.Remaining)
}

func TestDrainRecoversEntriesClaimedBeforeACrash(t *testing.T) {
	r, store := newTestReconciler(t)
	ctx := context.Background()

	var seen []string
	r.Register(KindOrderCreate, func(ctx context.Context, payload json.RawMessage) error {
		var p samplePayload
		require.NoError(t, json.Unmarshal(payload, &p))
		seen = append(seen, p.Name)
		return nil
	})

	_, err := r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "interrupted"})
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "waiting"})
	require.NoError(t, err)

	// A previous process claimed the first entry and died before replaying it.
	claim, err := store.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, claim)

	result, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Replayed)
	assert.Equal(t, int64(0), result.Remaining)
	assert.Equal(t, []string{"interrupted", "waiting"}, seen)
}

// cancelAwareStore refuses calls on a cancelled context the way a network
// client does.
type cancelAwareStore struct {
	Store
}

func (s cancelAwareStore) Ack(ctx context.Context, claim *Claim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Ack(ctx, claim)
}

func (s cancelAwareStore) Requeue(ctx context.Context, claim *Claim, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Requeue(ctx, claim, entry)
}

func (s cancelAwareStore) Bury(ctx context.Context, claim *Claim, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.Bury(ctx, claim, entry)
}

func TestDrainKeepsEntryWhenShutdownInterruptsReplay(t *testing.T) {
	store := cancelAwareStore{Store: NewMemoryStore()}
	r := NewReconciler(Params{
		Store:    store,
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Settings: config.NewStaticRestaurantHolder(config.DefaultRestaurantConfig()),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r.Register(KindOrderCreate, func(ctx context.Context, payload json.RawMessage) error {
		cancel()
		return ctx.Err()
	})
	_, err := r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "checkout"})
	require.NoError(t, err)

	result, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, int64(1), result.Remaining)

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 1, Dead: 0}, stats)

	claim, err := store.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claim)
	assert.Equal(t, 1, claim.Entry.Attempts)
}

func TestDrainBuriesExhaustedAndUnknownEntries(t *testing.T) {
	r, _ := newTestReconciler(t)
	r.maxAttempts = 2
	ctx := context.Background()

	r.Register(KindOrderCreate, func(ctx context.Context, payload json.RawMessage) error {
		return errors.New("still down")
	})

	_, err := r.Enqueue(ctx, KindOrderCreate, samplePayload{Name: "doomed"})
	require.NoError(t, err)
	_, err = r.Enqueue(ctx, "unknown.kind", samplePayload{Name: "orphan"})
	require.NoError(t, err)

	first, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Failed)
	assert.Equal(t, 1, first.Buried)

	second, err := r.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Buried)

	stats, err := r.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Pending: 0, Dead: 2}, stats)
}

func TestRunForeverStopsOnCancel(t *testing.T) {
	r, _ := newTestReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.RunForever(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}

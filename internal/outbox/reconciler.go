package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	obsmetrics "github.com/smallbiznis/comanda/internal/observability/metrics"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	KindOrderCreate = "order.create"

	defaultMaxAttempts = 10
	drainLockKey       = "comanda:lock:outbox"
	drainLockTTL       = time.Minute
)

var ErrUnknownKind = errors.New("unknown_outbox_kind")

type Handler func(ctx context.Context, payload json.RawMessage) error

type DrainResult struct {
	Replayed  int   `json:"replayed"`
	Failed    int   `json:"failed"`
	Buried    int   `json:"buried"`
	Remaining int64 `json:"remaining"`
}

type Stats struct {
	Pending int64 `json:"pending"`
	Dead    int64 `json:"dead"`
}

type Params struct {
	fx.In

	Store    Store
	Log      *zap.Logger
	Clock    clock.Clock
	Settings *config.RestaurantConfigHolder
	Locker   *ratelimit.Locker `optional:"true"`
}

type Reconciler struct {
	store       Store
	log         *zap.Logger
	clock       clock.Clock
	settings    *config.RestaurantConfigHolder
	locker      *ratelimit.Locker
	maxAttempts int

	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewReconciler(p Params) *Reconciler {
	return &Reconciler{
		store:       p.Store,
		log:         p.Log.Named("outbox"),
		clock:       p.Clock,
		settings:    p.Settings,
		locker:      p.Locker,
		maxAttempts: defaultMaxAttempts,
		handlers:    make(map[string]Handler),
	}
}

func (r *Reconciler) Register(kind string, handler Handler) {
	r.mu.Lock()
	r.handlers[kind] = handler
	r.mu.Unlock()
}

func (r *Reconciler) Enqueue(ctx context.Context, kind string, payload any) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:         uuid.NewString(),
		Kind:       kind,
		Payload:    raw,
		EnqueuedAt: r.clock.Now(),
	}
	if err := r.store.Push(ctx, entry); err != nil {
		return Entry{}, fmt.Errorf("outbox push: %w", err)
	}
	r.refreshDepth(ctx)
	r.log.Warn("write queued for replay", zap.String("entry_id", entry.ID), zap.String("kind", kind))
	return entry, nil
}

// Drain replays every entry queued when the pass starts. Failed entries go
// back to the tail until they exhaust their attempts.
func (r *Reconciler) Drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	err := r.locker.WithLock(ctx, drainLockKey, drainLockTTL, func(ctx context.Context) error {
		var err error
		result, err = r.drain(ctx)
		return err
	})
	return result, err
}

func (r *Reconciler) drain(ctx context.Context) (DrainResult, error) {
	var result DrainResult
	// Bookkeeping outlives a cancelled pass so a claimed entry always lands
	// back in a list.
	keep := context.WithoutCancel(ctx)

	recovered, err := r.store.Recover(ctx)
	if err != nil {
		return result, err
	}
	if recovered > 0 {
		r.log.Warn("recovered unfinished replays", zap.Int64("entries", recovered))
	}

	queued, err := r.store.Len(ctx)
	if err != nil {
		return result, err
	}

	metrics := obsmetrics.Floor()
	for i := int64(0); i < queued; i++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		claim, err := r.store.Claim(ctx)
		if err != nil {
			return result, err
		}
		if claim == nil {
			break
		}
		entry := claim.Entry

		handleErr := r.handle(ctx, entry)
		if handleErr == nil {
			if err := r.store.Ack(keep, claim); err != nil {
				return result, err
			}
			result.Replayed++
			metrics.IncOutboxReplay("replayed")
			r.log.Info("queued write replayed", zap.String("entry_id", entry.ID), zap.String("kind", entry.Kind))
			continue
		}

		entry.Attempts++
		entry.LastError = handleErr.Error()
		if entry.Attempts >= r.maxAttempts || errors.Is(handleErr, ErrUnknownKind) {
			if err := r.store.Bury(keep, claim, entry); err != nil {
				return result, err
			}
			result.Buried++
			metrics.IncOutboxReplay("buried")
			r.log.Error("queued write abandoned",
				zap.String("entry_id", entry.ID),
				zap.Int("attempts", entry.Attempts),
				zap.Error(handleErr),
			)
			continue
		}

		if err := r.store.Requeue(keep, claim, entry); err != nil {
			return result, err
		}
		result.Failed++
		metrics.IncOutboxReplay("failed")
		r.log.Warn("queued write replay failed",
			zap.String("entry_id", entry.ID),
			zap.Int("attempts", entry.Attempts),
			zap.Error(handleErr),
		)
	}

	remaining, err := r.store.Len(keep)
	if err != nil {
		return result, err
	}
	result.Remaining = remaining
	metrics.SetOutboxDepth(remaining)
	return result, nil
}

func (r *Reconciler) handle(ctx context.Context, entry Entry) error {
	r.mu.RLock()
	handler, ok := r.handlers[entry.Kind]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownKind
	}
	return handler(ctx, entry.Payload)
}

func (r *Reconciler) Stats(ctx context.Context) (Stats, error) {
	pending, err := r.store.Len(ctx)
	if err != nil {
		return Stats{}, err
	}
	dead, err := r.store.DeadLen(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pending: pending, Dead: dead}, nil
}

func (r *Reconciler) RunForever(ctx context.Context) {
	interval := r.settings.Get().OutboxInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil && !errors.Is(err, ratelimit.ErrLockHeld) && ctx.Err() == nil {
			r.log.Warn("outbox drain failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (r *Reconciler) refreshDepth(ctx context.Context) {
	depth, err := r.store.Len(ctx)
	if err != nil {
		return
	}
	obsmetrics.Floor().SetOutboxDepth(depth)
}

package telegram

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/comanda/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultDispatchTimeout = 15 * time.Second

type DispatcherParams struct {
	fx.In

	Provider Provider
	Log      *zap.Logger
	Metrics  *metrics.Metrics `optional:"true"`
}

// Dispatcher sends kitchen notifications off the request path. A failed send
// is logged and counted; it never fails the order that triggered it.
type Dispatcher struct {
	provider Provider
	log      *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(p DispatcherParams) *Dispatcher {
	return &Dispatcher{
		provider: p.Provider,
		log:      p.Log.Named("notifier"),
		metrics:  p.Metrics,
		timeout:  defaultDispatchTimeout,
	}
}

func (d *Dispatcher) Notify(ctx context.Context, msg Message) {
	if d == nil || d.provider == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		if err := d.provider.SendOrder(sendCtx, msg); err != nil {
			d.metrics.RecordNotifierFailure(sendCtx, "telegram")
			d.log.Warn("order notification failed",
				zap.String("order_number", msg.OrderNumber),
				zap.Bool("addition", msg.IsAddition),
				zap.Error(err),
			)
			return
		}
		d.log.Debug("order notification sent", zap.String("order_number", msg.OrderNumber))
	}()
}

// Wait blocks until in-flight notifications finish.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

package dashboard

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("dashboard",
	fx.Provide(New),
	fx.Invoke(StartMonitor),
)

func StartMonitor(lc fx.Lifecycle, monitor *Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			go func() {
				defer close(done)
				_ = monitor.Run(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})

			return nil
		},
	})
}

package outbox

import (
	"context"

	"go.uber.org/fx"
)

var Module = fx.Module("outbox",
	fx.Provide(NewStore),
	fx.Provide(NewReconciler),
	fx.Invoke(StartReconciler),
)

func StartReconciler(lc fx.Lifecycle, reconciler *Reconciler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go reconciler.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}

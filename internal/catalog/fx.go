package catalog

import (
	"context"

	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/catalog/repository"
	"github.com/smallbiznis/comanda/internal/catalog/service"
	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerMenuSeed),
)

// registerMenuSeed fills an empty catalog with the house menu on startup.
func registerMenuSeed(lc fx.Lifecycle, svc domain.Service, settings *config.RestaurantConfigHolder, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !settings.Get().SeedMenu {
				return nil
			}
			inserted, err := svc.SeedDefaults(ctx)
			if err != nil {
				return err
			}
			if inserted > 0 {
				log.Named("catalog").Info("seeded default menu", zap.Int("products", inserted))
			}
			return nil
		},
	})
}

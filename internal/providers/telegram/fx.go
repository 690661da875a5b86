package telegram

import (
	"context"

	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.telegram",
	fx.Provide(NewFromConfig),
	fx.Provide(NewDispatcher),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				d.Wait()
				return nil
			},
		})
	}),
)

func NewFromConfig(cfg config.Config, settings *config.RestaurantConfigHolder, log *zap.Logger) Provider {
	if !cfg.Telegram.Enabled() {
		log.Named("providers.telegram").Warn("telegram not configured, order notifications disabled")
		return &NoOpProvider{}
	}
	return NewBot(Config{
		BotToken: cfg.Telegram.BotToken,
		ChatID:   cfg.Telegram.ChatID,
		APIBase:  cfg.Telegram.APIBase,
	}, settings)
}

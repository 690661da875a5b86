package webhook

import (
	"github.com/smallbiznis/comanda/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("providers.webhook",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg config.Config) Forwarder {
	return NewHTTPForwarder(cfg.OrderWebhookURL, 0)
}

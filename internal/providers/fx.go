package providers

import (
	"github.com/smallbiznis/comanda/internal/providers/telegram"
	"github.com/smallbiznis/comanda/internal/providers/webhook"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	telegram.Module,
	webhook.Module,
)

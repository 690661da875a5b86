package waiter

import (
	"github.com/smallbiznis/comanda/internal/waiter/repository"
	"github.com/smallbiznis/comanda/internal/waiter/service"
	"go.uber.org/fx"
)

var Module = fx.Module("waiter.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

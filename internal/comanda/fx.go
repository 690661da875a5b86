package comanda

import (
	"github.com/smallbiznis/comanda/internal/comanda/repository"
	"github.com/smallbiznis/comanda/internal/comanda/service"
	"go.uber.org/fx"
)

var Module = fx.Module("comanda.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

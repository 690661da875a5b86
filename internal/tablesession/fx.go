package tablesession

import "go.uber.org/fx"

var Module = fx.Module("tablesession",
	fx.Provide(New),
)

package migration

import (
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		log = log.Named("migration")
		if cfg.DBType != db.TypePostgres {
			log.Info("applying embedded schema", zap.String("dialect", cfg.DBType))
			return ApplySchema(conn, cfg.DBType)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		log.Info("running postgres migrations")
		return RunMigrations(sqlDB)
	}),
)

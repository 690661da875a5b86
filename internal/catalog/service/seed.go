package service

import (
	"context"

	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type seedProduct struct {
	name       string
	priceCents int64
}

var defaultMenu = []seedProduct{
	{name: "PIRARUCU FRITO", priceCents: 2000},
	{name: "BIFE DE FIGADO", priceCents: 1800},
	{name: "LINGUA GUISADA", priceCents: 1800},
	{name: "PORCO GUISADO", priceCents: 1800},
	{name: "CARNEIRO GUISADO", priceCents: 1800},
	{name: "COSTELA GUISADA", priceCents: 1800},
	{name: "COZIDAO DE CARNE", priceCents: 1800},
	{name: "FRANGO A PASSARINHO", priceCents: 1800},
	{name: "CARNE DE SOL", priceCents: 1800},
}

func (s *Service) SeedDefaults(ctx context.Context) (int, error) {
	inserted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := s.repo.Count(ctx, tx)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := s.clock.Now()
		for _, item := range defaultMenu {
			p := &domain.Product{
				ID:         s.genID.Generate().Int64(),
				Name:       item.name,
				PriceCents: item.priceCents,
				Category:   domain.CategoryFood,
				Available:  true,
				CreatedAt:  now,
				UpdatedAt:  now,
			}
			if err := s.repo.Create(ctx, tx, p); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		s.menu.Purge()
		s.log.Info("default menu seeded", zap.Int("products", inserted))
	}
	return inserted, nil
}

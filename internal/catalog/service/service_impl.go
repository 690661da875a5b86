package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/cache"
	"github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Settings *config.RestaurantConfigHolder
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	settings *config.RestaurantConfigHolder
	menu     cache.Cache[string, []domain.Response]
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("catalog.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		settings: p.Settings,
		menu:     cache.NewTTLCache[string, []domain.Response](p.Clock.Now),
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	category, err := parseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	available := true
	if req.Available != nil {
		available = *req.Available
	}
	if err := validatePrice(req.Price, available); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	p := &domain.Product{
		ID:         s.genID.Generate().Int64(),
		Name:       name,
		PriceCents: money.ToCents(req.Price),
		Category:   category,
		Available:  available,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, s.db, p); err != nil {
		return nil, err
	}
	s.menu.Purge()

	resp := toResponse(p)
	return &resp, nil
}

func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (*domain.Response, error) {
	item, err := s.find(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrInvalidName
		}
		item.Name = name
	}
	if req.Category != nil {
		category, err := parseCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		item.Category = category
	}
	if req.Available != nil {
		item.Available = *req.Available
	}
	price := money.FromCents(item.PriceCents)
	if req.Price != nil {
		price = *req.Price
	}
	if err := validatePrice(price, item.Available); err != nil {
		return nil, err
	}
	item.PriceCents = money.ToCents(price)

	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	s.menu.Purge()

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	productID, err := parseID(id)
	if err != nil {
		return err
	}
	rows, err := s.repo.Delete(ctx, s.db, productID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	s.menu.Purge()
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{Available: req.Available}
	if strings.TrimSpace(req.Category) != "" {
		category, err := parseCategory(req.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = category
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) ToggleAvailability(ctx context.Context, id string) (*domain.Response, error) {
	item, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	item.Available = !item.Available
	if err := validatePrice(money.FromCents(item.PriceCents), item.Available); err != nil {
		return nil, err
	}
	item.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, s.db, item); err != nil {
		return nil, err
	}
	s.menu.Purge()

	s.log.Info("product availability toggled",
		zap.String("product_id", snowflake.ID(item.ID).String()),
		zap.Bool("available", item.Available),
	)
	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) Menu(ctx context.Context, category string) ([]domain.Response, error) {
	key := strings.ToLower(strings.TrimSpace(category))
	if cached, ok := s.menu.Get(key); ok {
		return append([]domain.Response(nil), cached...), nil
	}

	available := true
	products, err := s.List(ctx, domain.ListRequest{Category: key, Available: &available})
	if err != nil {
		return nil, err
	}
	s.menu.Set(key, products, s.settings.Get().MenuCacheTTL)
	return products, nil
}

func (s *Service) find(ctx context.Context, id string) (*domain.Product, error) {
	productID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func parseID(id string) (int64, error) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed == 0 {
		return 0, domain.ErrInvalidID
	}
	return parsed.Int64(), nil
}

func parseCategory(raw string) (domain.Category, error) {
	category := domain.Category(strings.ToLower(strings.TrimSpace(raw)))
	if !category.Valid() {
		return "", domain.ErrInvalidCategory
	}
	return category, nil
}

func validatePrice(price decimal.Decimal, available bool) error {
	if price.IsNegative() {
		return domain.ErrInvalidPrice
	}
	if available && !price.IsPositive() {
		return domain.ErrInvalidPrice
	}
	return nil
}

func toResponse(p *domain.Product) domain.Response {
	return domain.Response{
		ID:        snowflake.ID(p.ID).String(),
		Name:      p.Name,
		Price:     money.FromCents(p.PriceCents),
		Category:  p.Category,
		Available: p.Available,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

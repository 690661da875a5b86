package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/waiter/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("waiter.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateWaiterRequest) (domain.Waiter, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Waiter{}, domain.ErrInvalidName
	}

	waiter := domain.Waiter{
		ID:        s.genID.Generate(),
		Name:      name,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &waiter); err != nil {
		return domain.Waiter{}, err
	}
	return waiter, nil
}

func (s *Service) List(ctx context.Context, req domain.ListWaitersRequest) ([]domain.Waiter, error) {
	waiters, err := s.repo.List(ctx, s.db, req.ActiveOnly)
	if err != nil {
		return nil, err
	}
	if waiters == nil {
		waiters = []domain.Waiter{}
	}
	return waiters, nil
}

func (s *Service) Get(ctx context.Context, id string) (domain.Waiter, error) {
	waiterID, err := parseID(id)
	if err != nil {
		return domain.Waiter{}, err
	}
	waiter, err := s.repo.FindByID(ctx, s.db, waiterID)
	if err != nil {
		return domain.Waiter{}, err
	}
	if waiter == nil {
		return domain.Waiter{}, domain.ErrNotFound
	}
	return *waiter, nil
}

func (s *Service) Toggle(ctx context.Context, id string) (domain.Waiter, error) {
	waiter, err := s.Get(ctx, id)
	if err != nil {
		return domain.Waiter{}, err
	}

	waiter.Active = !waiter.Active
	rows, err := s.repo.SetActive(ctx, s.db, waiter.ID, waiter.Active)
	if err != nil {
		return domain.Waiter{}, err
	}
	if rows == 0 {
		return domain.Waiter{}, domain.ErrNotFound
	}

	s.log.Info("waiter toggled", zap.String("waiter_id", waiter.ID.String()), zap.Bool("active", waiter.Active))
	return waiter, nil
}

// Delete removes the waiter; open tabs keep running without an assignee.
func (s *Service) Delete(ctx context.Context, id string) error {
	waiterID, err := parseID(id)
	if err != nil {
		return err
	}
	rows, err := s.repo.Delete(ctx, s.db, waiterID)
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

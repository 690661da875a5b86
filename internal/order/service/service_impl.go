package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	"github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// recentLimit bounds the customer history endpoint.
const recentLimit = 2

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Settings *config.RestaurantConfigHolder
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	clock    clock.Clock
	settings *config.RestaurantConfigHolder
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("order.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		clock:    p.Clock,
		settings: p.Settings,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Response, error) {
	var resp *domain.Response
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resp, err = s.CreateIn(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) CreateIn(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (*domain.Response, error) {
	order, err := s.build(req)
	if err != nil {
		return nil, err
	}

	// Table rounds stay on the ledger until the tab is settled; only
	// delivery and pickup history is capped per email.
	if order.CustomerEmail != nil && order.Source != domain.SourceTable {
		if err := s.prune(ctx, tx, *order.CustomerEmail); err != nil {
			return nil, err
		}
	}
	if err := s.repo.Insert(ctx, tx, order); err != nil {
		return nil, err
	}

	s.metrics.RecordOrderCreated(ctx, string(order.Source), string(order.PaymentMethod))
	s.log.Info("order recorded",
		zap.String("order_id", order.ID.String()),
		zap.String("order_number", order.OrderNumber),
		zap.String("source", string(order.Source)),
		zap.String("total", money.FormatCents(order.TotalCents)),
	)
	resp := toResponse(order)
	return &resp, nil
}

// prune keeps room for exactly one more entry within the retention window.
func (s *Service) prune(ctx context.Context, tx *gorm.DB, email string) error {
	keep := s.settings.Get().LedgerRetention - 1
	if keep < 0 {
		keep = 0
	}
	ids, err := s.repo.IDsByEmail(ctx, tx, email)
	if err != nil {
		return err
	}
	if len(ids) <= keep {
		return nil
	}
	removed, err := s.repo.DeleteByIDs(ctx, tx, ids[keep:])
	if err != nil {
		return err
	}
	s.log.Debug("ledger pruned", zap.Int64("removed", removed))
	return nil
}

func (s *Service) build(req domain.CreateRequest) (*domain.Order, error) {
	if !req.PaymentMethod.Valid() {
		return nil, domain.ErrInvalidPaymentMethod
	}
	if !req.Source.Valid() {
		return nil, domain.ErrInvalidSource
	}
	if (req.Source == domain.SourceTable) != (req.PaymentMethod == domain.PaymentComanda) {
		return nil, domain.ErrInvalidPaymentMethod
	}
	if len(req.Items) == 0 {
		return nil, domain.ErrInvalidItems
	}

	items := make(datatypes.JSONSlice[domain.LineItem], 0, len(req.Items))
	total := decimal.Zero
	for _, item := range req.Items {
		name := strings.TrimSpace(item.Name)
		if name == "" || item.Quantity <= 0 || item.Price.IsNegative() {
			return nil, domain.ErrInvalidItems
		}
		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(subtotal)
		items = append(items, domain.LineItem{
			Name:     name,
			Quantity: item.Quantity,
			Price:    item.Price,
			Subtotal: subtotal,
		})
	}

	now := s.clock.Now()
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		number = domain.NewOrderNumber(now)
	}

	order := &domain.Order{
		ID:            s.genID.Generate(),
		CustomerID:    req.CustomerID,
		CustomerEmail: optionalString(strings.ToLower(req.CustomerEmail)),
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: optionalString(req.CustomerPhone),
		OrderNumber:   number,
		Items:         items,
		TotalCents:    money.ToCents(total),
		PaymentMethod: req.PaymentMethod,
		Address:       strings.TrimSpace(req.Address),
		Observation:   optionalString(req.Observation),
		Status:        domain.StatusPending,
		Source:        req.Source,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.ChangeFor != nil {
		change := money.ToCents(*req.ChangeFor)
		order.ChangeForCents = &change
	}
	return order, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	resp := toResponse(order)
	return &resp, nil
}

func (s *Service) AdvanceStatus(ctx context.Context, id string, next domain.Status) (*domain.Response, error) {
	if !next.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	orderID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrNotFound
	}
	if !domain.CanTransition(order.Status, next) {
		return nil, domain.ErrInvalidTransition
	}

	now := s.clock.Now()
	rows, err := s.repo.UpdateStatus(ctx, s.db, orderID, order.Status, next, now)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		// Another device moved the order first.
		return nil, domain.ErrInvalidTransition
	}

	s.log.Info("order status changed",
		zap.String("order_id", order.ID.String()),
		zap.String("from", string(order.Status)),
		zap.String("to", string(next)),
	)
	order.Status = next
	order.UpdatedAt = now
	resp := toResponse(order)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.Response, error) {
	filter := domain.ListFilter{From: req.From, To: req.To}
	if status := strings.TrimSpace(req.Status); status != "" {
		filter.Status = domain.Status(strings.ToLower(status))
		if !filter.Status.Valid() {
			return nil, domain.ErrInvalidStatus
		}
	}
	if source := strings.TrimSpace(req.Source); source != "" {
		filter.Source = domain.Source(strings.ToLower(source))
		if !filter.Source.Valid() {
			return nil, domain.ErrInvalidSource
		}
	}

	orders, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	return toResponses(orders), nil
}

func (s *Service) ListPendingSince(ctx context.Context, since time.Time) ([]domain.Response, error) {
	orders, err := s.repo.ListPendingSince(ctx, s.db, since)
	if err != nil {
		return nil, err
	}
	return toResponses(orders), nil
}

func (s *Service) RecentByEmail(ctx context.Context, email string) ([]domain.Response, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrInvalidEmail
	}
	orders, err := s.repo.ListByEmail(ctx, s.db, email, recentLimit)
	if err != nil {
		return nil, err
	}
	return toResponses(orders), nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func toResponses(orders []domain.Order) []domain.Response {
	resp := make([]domain.Response, 0, len(orders))
	for i := range orders {
		resp = append(resp, toResponse(&orders[i]))
	}
	return resp
}

func toResponse(order *domain.Order) domain.Response {
	resp := domain.Response{
		ID:            order.ID.String(),
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
		CustomerPhone: order.CustomerPhone,
		OrderNumber:   order.OrderNumber,
		Items:         []domain.LineItem(order.Items),
		Total:         money.FromCents(order.TotalCents),
		PaymentMethod: order.PaymentMethod,
		Address:       order.Address,
		Observation:   order.Observation,
		Status:        order.Status,
		Source:        order.Source,
		NextStatuses:  domain.NextStatuses(order.Status),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if resp.Items == nil {
		resp.Items = []domain.LineItem{}
	}
	if order.CustomerID != nil {
		customerID := snowflake.ID(*order.CustomerID).String()
		resp.CustomerID = &customerID
	}
	if order.ChangeForCents != nil {
		change := money.FromCents(*order.ChangeForCents)
		resp.ChangeFor = &change
	}
	return resp
}

package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/events"
	"github.com/smallbiznis/comanda/internal/observability/metrics"
	waiterdomain "github.com/smallbiznis/comanda/internal/waiter/domain"
	"github.com/smallbiznis/comanda/pkg/db"
	"github.com/smallbiznis/comanda/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const sourceStaff = "staff"

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Settings   *config.RestaurantConfigHolder
	CatalogSvc catalogdomain.Service
	WaiterSvc  waiterdomain.Service
	Events     events.Publisher `optional:"true"`
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	settings   *config.RestaurantConfigHolder
	catalogSvc catalogdomain.Service
	waiterSvc  waiterdomain.Service
	events     events.Publisher
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("comanda.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      p.Clock,
		settings:   p.Settings,
		catalogSvc: p.CatalogSvc,
		waiterSvc:  p.WaiterSvc,
		events:     p.Events,
		metrics:    p.Metrics,
	}
}

func (s *Service) Open(ctx context.Context, req domain.OpenRequest) (*domain.Tab, error) {
	var waiterID *int64
	if strings.TrimSpace(req.WaiterID) != "" {
		waiter, err := s.activeWaiter(ctx, req.WaiterID)
		if err != nil {
			return nil, err
		}
		id := waiter.ID.Int64()
		waiterID = &id
	}

	var tab *domain.Comanda
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tab, err = s.open(ctx, tx, req, waiterID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTabOpened(ctx, sourceStaff)
	s.log.Info("tab opened",
		zap.String("tab_id", tab.ID.String()),
		zap.Int("table", tab.TableNumber),
	)
	resp := toTab(tab, nil)
	s.publish(events.TypeTabUpdated, resp)
	return &resp, nil
}

func (s *Service) FindOpenIn(ctx context.Context, tx *gorm.DB, table int) (*domain.Comanda, error) {
	if err := s.validateTable(table); err != nil {
		return nil, err
	}
	return s.repo.FindOpenByTable(ctx, tx, table)
}

func (s *Service) OpenIn(ctx context.Context, tx *gorm.DB, req domain.OpenRequest) (*domain.Comanda, error) {
	return s.open(ctx, tx, req, nil)
}

func (s *Service) open(ctx context.Context, tx *gorm.DB, req domain.OpenRequest, waiterID *int64) (*domain.Comanda, error) {
	if err := s.validateTable(req.TableNumber); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindOpenByTable(ctx, tx, req.TableNumber)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrTabAlreadyOpen
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = fmt.Sprintf("Mesa %d", req.TableNumber)
	}

	tab := &domain.Comanda{
		ID:           s.genID.Generate(),
		TableNumber:  req.TableNumber,
		CustomerName: &name,
		Status:       domain.StatusOpen,
		WaiterID:     waiterID,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, tx, tab); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrTabAlreadyOpen
		}
		return nil, err
	}
	return tab, nil
}

func (s *Service) AddItems(ctx context.Context, tabID string, lines []domain.LineInput) (*domain.Tab, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.AddItemsIn(ctx, tx, id, lines)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTabItems(ctx, len(lines))
	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeTabUpdated, *tab)
	return tab, nil
}

// AddItemsIn increments the tab total before inserting the lines so the row
// lock taken by the conditional update serializes concurrent writers.
func (s *Service) AddItemsIn(ctx context.Context, tx *gorm.DB, tabID snowflake.ID, lines []domain.LineInput) ([]domain.Item, error) {
	if len(lines) == 0 {
		return nil, domain.ErrInvalidItem
	}

	now := s.clock.Now()
	items := make([]domain.Item, 0, len(lines))
	var sum int64
	for _, line := range lines {
		name := strings.TrimSpace(line.ProductName)
		if name == "" || line.Quantity <= 0 || !line.Price.IsPositive() {
			return nil, domain.ErrInvalidItem
		}
		price := money.ToCents(line.Price)
		total := price * int64(line.Quantity)
		sum += total
		items = append(items, domain.Item{
			ID:          s.genID.Generate(),
			ComandaID:   tabID,
			ProductName: name,
			Quantity:    line.Quantity,
			PriceCents:  price,
			TotalCents:  total,
			Status:      domain.ItemPending,
			CreatedAt:   now,
		})
	}

	rows, err := s.repo.IncrementTotal(ctx, tx, tabID, sum)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, s.notOpenReason(ctx, tx, tabID)
	}

	for i := range items {
		if err := s.repo.InsertItem(ctx, tx, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Service) AddProduct(ctx context.Context, req domain.AddProductRequest) (*domain.Tab, error) {
	if req.Quantity <= 0 {
		return nil, domain.ErrInvalidItem
	}
	product, err := s.catalogSvc.Get(ctx, req.ProductID)
	if err != nil {
		return nil, err
	}
	if !product.Available {
		return nil, catalogdomain.ErrProductUnavailable
	}

	return s.AddItems(ctx, req.TabID, []domain.LineInput{{
		ProductName: product.Name,
		Quantity:    req.Quantity,
		Price:       product.Price,
	}})
}

func (s *Service) RequestClose(ctx context.Context, tabID string) (*domain.Tab, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.MarkClosingRequested(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Some drivers report zero rows when the flag was already set.
	if rows == 0 && tab.Status != domain.StatusOpen {
		return nil, domain.ErrTabNotOpen
	}

	s.log.Info("bill requested", zap.String("tab_id", tab.ID), zap.Int("table", tab.TableNumber))
	s.publish(events.TypeTabBillRequested, *tab)
	return tab, nil
}

func (s *Service) Settle(ctx context.Context, tabID string) (*domain.Tab, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.MarkPaid(ctx, s.db, id, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, s.notOpenReason(ctx, s.db, id)
	}

	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTabSettled(ctx)
	s.log.Info("tab settled",
		zap.String("tab_id", tab.ID),
		zap.Int("table", tab.TableNumber),
		zap.String("total", tab.Total.StringFixed(2)),
	)
	s.publish(events.TypeTabSettled, *tab)
	return tab, nil
}

func (s *Service) AssignWaiter(ctx context.Context, tabID, waiterID string) (*domain.Tab, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}
	waiter, err := s.activeWaiter(ctx, waiterID)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.AssignWaiter(ctx, s.db, id, waiter.ID.Int64())
	if err != nil {
		return nil, err
	}
	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if rows == 0 && tab.Status != domain.StatusOpen {
		return nil, domain.ErrTabNotOpen
	}
	s.publish(events.TypeTabUpdated, *tab)
	return tab, nil
}

// UpdateItemStatus moves a pending item to delivered or cancelled. Cancelling
// takes the item total off the tab in the same transaction.
func (s *Service) UpdateItemStatus(ctx context.Context, tabID, itemID string, status domain.ItemStatus) (*domain.Tab, error) {
	if status != domain.ItemDelivered && status != domain.ItemCancelled {
		return nil, domain.ErrInvalidItemTransition
	}
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}
	itemKey, err := parseID(itemID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindItem(ctx, tx, id, itemKey)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		rows, err := s.repo.TransitionItem(ctx, tx, id, itemKey, domain.ItemPending, status)
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrInvalidItemTransition
		}

		if status == domain.ItemCancelled {
			rows, err := s.repo.IncrementTotal(ctx, tx, id, -item.TotalCents)
			if err != nil {
				return err
			}
			if rows == 0 {
				return domain.ErrTabNotOpen
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(events.TypeTabUpdated, *tab)
	return tab, nil
}

func (s *Service) Get(ctx context.Context, tabID string) (*domain.Tab, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}
	return s.load(ctx, id)
}

func (s *Service) FindOpenByTable(ctx context.Context, table int) (*domain.Tab, error) {
	tab, err := s.FindOpenIn(ctx, s.db, table)
	if err != nil || tab == nil {
		return nil, err
	}
	tabs, err := s.withItems(ctx, []domain.Comanda{*tab})
	if err != nil {
		return nil, err
	}
	return &tabs[0], nil
}

func (s *Service) ListOpen(ctx context.Context) ([]domain.Tab, error) {
	tabs, err := s.repo.ListOpen(ctx, s.db, false)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, tabs)
}

func (s *Service) ListBillRequests(ctx context.Context) ([]domain.Tab, error) {
	tabs, err := s.repo.ListOpen(ctx, s.db, true)
	if err != nil {
		return nil, err
	}
	return s.withItems(ctx, tabs)
}

func (s *Service) Board(ctx context.Context) ([]domain.TableSlot, error) {
	open, err := s.ListOpen(ctx)
	if err != nil {
		return nil, err
	}

	byTable := make(map[int]*domain.Tab, len(open))
	for i := range open {
		byTable[open[i].TableNumber] = &open[i]
	}

	size := s.settings.Get().TablePoolSize
	slots := make([]domain.TableSlot, 0, size)
	for table := 1; table <= size; table++ {
		slots = append(slots, domain.TableSlot{TableNumber: table, Tab: byTable[table]})
	}
	return slots, nil
}

func (s *Service) Reconcile(ctx context.Context, tabID string) (*domain.ReconcileResult, error) {
	id, err := parseID(tabID)
	if err != nil {
		return nil, err
	}

	var drift int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tab, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if tab == nil {
			return domain.ErrNotFound
		}
		sum, err := s.repo.SumActiveItems(ctx, tx, id)
		if err != nil {
			return err
		}
		drift = tab.TotalCents - sum
		if drift == 0 {
			return nil
		}
		return s.repo.SetTotal(ctx, tx, id, sum)
	})
	if err != nil {
		return nil, err
	}

	tab, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if drift != 0 {
		s.log.Warn("tab total repaired",
			zap.String("tab_id", tab.ID),
			zap.String("drift", money.FromCents(drift).StringFixed(2)),
		)
		s.publish(events.TypeTabUpdated, *tab)
	}
	return &domain.ReconcileResult{Tab: tab, Drift: money.FromCents(drift)}, nil
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*domain.Tab, error) {
	tab, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if tab == nil {
		return nil, domain.ErrNotFound
	}
	tabs, err := s.withItems(ctx, []domain.Comanda{*tab})
	if err != nil {
		return nil, err
	}
	return &tabs[0], nil
}

func (s *Service) withItems(ctx context.Context, tabs []domain.Comanda) ([]domain.Tab, error) {
	ids := make([]snowflake.ID, 0, len(tabs))
	for _, tab := range tabs {
		ids = append(ids, tab.ID)
	}
	items, err := s.repo.ListItems(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}

	grouped := make(map[snowflake.ID][]domain.Item, len(tabs))
	for _, item := range items {
		grouped[item.ComandaID] = append(grouped[item.ComandaID], item)
	}

	resp := make([]domain.Tab, 0, len(tabs))
	for i := range tabs {
		resp = append(resp, toTab(&tabs[i], grouped[tabs[i].ID]))
	}
	return resp, nil
}

func (s *Service) notOpenReason(ctx context.Context, tx *gorm.DB, id snowflake.ID) error {
	tab, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return err
	}
	if tab == nil {
		return domain.ErrNotFound
	}
	return domain.ErrTabNotOpen
}

func (s *Service) activeWaiter(ctx context.Context, id string) (waiterdomain.Waiter, error) {
	waiter, err := s.waiterSvc.Get(ctx, id)
	if err != nil {
		return waiterdomain.Waiter{}, err
	}
	if !waiter.Active {
		return waiterdomain.Waiter{}, waiterdomain.ErrInactive
	}
	return waiter, nil
}

func (s *Service) validateTable(table int) error {
	if table < 1 || table > s.settings.Get().TablePoolSize {
		return domain.ErrInvalidTable
	}
	return nil
}

func (s *Service) publish(eventType string, tab domain.Tab) {
	if s.events == nil {
		return
	}
	s.events.PublishTable(tab.TableNumber, events.Event{Type: eventType, TabID: tab.ID, Payload: tab, At: s.clock.Now()})
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

func toTab(tab *domain.Comanda, items []domain.Item) domain.Tab {
	resp := domain.Tab{
		ID:               tab.ID.String(),
		TableNumber:      tab.TableNumber,
		CustomerName:     tab.CustomerName,
		Status:           tab.Status,
		Total:            money.FromCents(tab.TotalCents),
		ClosingRequested: tab.ClosingRequested,
		CreatedAt:        tab.CreatedAt,
		ClosedAt:         tab.ClosedAt,
		Items:            make([]domain.TabItem, 0, len(items)),
	}
	if tab.WaiterID != nil {
		waiterID := snowflake.ID(*tab.WaiterID).String()
		resp.WaiterID = &waiterID
	}
	for _, item := range items {
		resp.Items = append(resp.Items, domain.TabItem{
			ID:          item.ID.String(),
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       money.FromCents(item.PriceCents),
			Total:       money.FromCents(item.TotalCents),
			Status:      item.Status,
			CreatedAt:   item.CreatedAt,
		})
	}
	return resp
}

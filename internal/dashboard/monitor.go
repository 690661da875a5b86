package dashboard

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smallbiznis/comanda/internal/clock"
	comandadomain "github.com/smallbiznis/comanda/internal/comanda/domain"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/events"
	obsmetrics "github.com/smallbiznis/comanda/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type TabsSnapshot struct {
	Generation   uint64              `json:"generation"`
	FetchedAt    time.Time           `json:"fetched_at"`
	Open         []comandadomain.Tab `json:"open"`
	BillRequests []comandadomain.Tab `json:"bill_requests"`
}

type OrdersSnapshot struct {
	Generation uint64                 `json:"generation"`
	FetchedAt  time.Time              `json:"fetched_at"`
	Orders     []orderdomain.Response `json:"orders"`
	Pending    int                    `json:"pending"`
}

type Snapshot struct {
	Tabs   TabsSnapshot   `json:"tabs"`
	Orders OrdersSnapshot `json:"orders"`
}

// Notification is the oldest unacknowledged pending order.
type Notification struct {
	Order     orderdomain.Response `json:"order"`
	Remaining int                  `json:"remaining"`
}

type Params struct {
	fx.In

	Log        *zap.Logger
	Clock      clock.Clock
	Settings   *config.RestaurantConfigHolder
	ComandaSvc comandadomain.Service
	OrderSvc   orderdomain.Service
	Events     events.Publisher `optional:"true"`
}

// Monitor keeps the staff view of tabs and orders fresh. Every fetch takes a
// generation number and only the newest completed fetch is applied.
type Monitor struct {
	log        *zap.Logger
	clock      clock.Clock
	settings   *config.RestaurantConfigHolder
	comandaSvc comandadomain.Service
	orderSvc   orderdomain.Service
	events     events.Publisher

	tabGen   atomic.Uint64
	orderGen atomic.Uint64

	mu     sync.RWMutex
	tabs   TabsSnapshot
	orders OrdersSnapshot

	ackMu sync.Mutex
	since time.Time
	acked map[string]struct{}
}

func New(p Params) *Monitor {
	return &Monitor{
		log:        p.Log.Named("dashboard"),
		clock:      p.Clock,
		settings:   p.Settings,
		comandaSvc: p.ComandaSvc,
		orderSvc:   p.OrderSvc,
		events:     p.Events,
		since:      p.Clock.Now(),
		acked:      make(map[string]struct{}),
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	cfg := m.settings.Get()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		m.poll(ctx, obsmetrics.PollTabs, cfg.TabPollInterval, m.RefreshTabs)
		return nil
	})
	g.Go(func() error {
		m.poll(ctx, obsmetrics.PollOrders, cfg.OrderPollInterval, m.RefreshOrders)
		return nil
	})
	return g.Wait()
}

func (m *Monitor) poll(ctx context.Context, name string, interval time.Duration, refresh func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := refresh(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn("dashboard refresh failed", zap.String("poller", name), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches both snapshots concurrently.
func (m *Monitor) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.RefreshTabs(ctx) })
	g.Go(func() error { return m.RefreshOrders(ctx) })
	return g.Wait()
}

func (m *Monitor) RefreshTabs(ctx context.Context) error {
	gen := m.tabGen.Add(1)
	start := time.Now()
	open, err := m.comandaSvc.ListOpen(ctx)
	obsmetrics.Floor().ObservePoll(obsmetrics.PollTabs, time.Since(start), err)
	if err != nil {
		return err
	}

	snap := TabsSnapshot{
		Generation:   gen,
		FetchedAt:    m.clock.Now(),
		Open:         open,
		BillRequests: make([]comandadomain.Tab, 0),
	}
	for _, tab := range open {
		if tab.ClosingRequested {
			snap.BillRequests = append(snap.BillRequests, tab)
		}
	}

	m.mu.Lock()
	if gen <= m.tabs.Generation {
		m.mu.Unlock()
		obsmetrics.Floor().IncPollDiscarded(obsmetrics.PollTabs)
		return nil
	}
	m.tabs = snap
	m.mu.Unlock()

	obsmetrics.Floor().SetTabGauges(len(snap.Open), len(snap.BillRequests))
	m.publish(events.TypeDashboardTabs, snap)
	return nil
}

func (m *Monitor) RefreshOrders(ctx context.Context) error {
	gen := m.orderGen.Add(1)
	start := time.Now()
	orders, err := m.orderSvc.List(ctx, orderdomain.ListRequest{})
	obsmetrics.Floor().ObservePoll(obsmetrics.PollOrders, time.Since(start), err)
	if err != nil {
		return err
	}

	snap := OrdersSnapshot{
		Generation: gen,
		FetchedAt:  m.clock.Now(),
		Orders:     orders,
		Pending:    countPending(orders),
	}

	m.mu.Lock()
	if gen <= m.orders.Generation {
		m.mu.Unlock()
		obsmetrics.Floor().IncPollDiscarded(obsmetrics.PollOrders)
		return nil
	}
	m.orders = snap
	m.mu.Unlock()

	obsmetrics.Floor().SetPendingOrders(snap.Pending)
	m.publish(events.TypeDashboardOrders, snap)
	return nil
}

func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Tabs:   copyTabs(m.tabs),
		Orders: copyOrders(m.orders),
	}
}

// BillRequests returns every open tab that asked for the bill in the latest snapshot.
func (m *Monitor) BillRequests() []comandadomain.Tab {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]comandadomain.Tab, len(m.tabs.BillRequests))
	copy(out, m.tabs.BillRequests)
	return out
}

// AdvanceStatus moves the order through the ledger and patches the snapshot
// only when the ledger accepted the change. The patch takes a fresh
// generation so a poll that started before it cannot overwrite it.
func (m *Monitor) AdvanceStatus(ctx context.Context, orderID string, next orderdomain.Status) (*orderdomain.Response, error) {
	updated, err := m.orderSvc.AdvanceStatus(ctx, orderID, next)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	orders := make([]orderdomain.Response, len(m.orders.Orders))
	copy(orders, m.orders.Orders)
	for i := range orders {
		if orders[i].ID == updated.ID {
			orders[i] = *updated
			break
		}
	}
	m.orders.Generation = m.orderGen.Add(1)
	m.orders.Orders = orders
	m.orders.Pending = countPending(orders)
	pending := m.orders.Pending
	m.mu.Unlock()

	obsmetrics.Floor().SetPendingOrders(pending)
	if m.events != nil {
		m.events.Publish(events.TopicStaff, events.Event{
			Type:    events.TypeOrderStatus,
			OrderID: updated.ID,
			Payload: updated,
			At:      m.clock.Now(),
		})
	}
	return updated, nil
}

// NextNotification returns the oldest pending order placed since the monitor
// started that the staff has not acknowledged yet, or nil when there is none.
func (m *Monitor) NextNotification(ctx context.Context) (*Notification, error) {
	pending, err := m.orderSvc.List(ctx, orderdomain.ListRequest{
		From:   &m.since,
		Status: string(orderdomain.StatusPending),
	})
	if err != nil {
		return nil, err
	}

	m.ackMu.Lock()
	stillPending := make(map[string]struct{}, len(pending))
	unseen := make([]orderdomain.Response, 0, len(pending))
	for _, order := range pending {
		stillPending[order.ID] = struct{}{}
		if _, ok := m.acked[order.ID]; ok {
			continue
		}
		unseen = append(unseen, order)
	}
	// Orders leave pending for good, so their acks are no longer needed.
	for id := range m.acked {
		if _, ok := stillPending[id]; !ok {
			delete(m.acked, id)
		}
	}
	m.ackMu.Unlock()

	if len(unseen) == 0 {
		return nil, nil
	}
	sort.SliceStable(unseen, func(i, j int) bool {
		if unseen[i].CreatedAt.Equal(unseen[j].CreatedAt) {
			return unseen[i].ID < unseen[j].ID
		}
		return unseen[i].CreatedAt.Before(unseen[j].CreatedAt)
	})
	return &Notification{Order: unseen[0], Remaining: len(unseen) - 1}, nil
}

// Acknowledge marks one order as seen. Other unseen orders, older or newer,
// keep their place in the queue.
func (m *Monitor) Acknowledge(ctx context.Context, orderID string) error {
	order, err := m.orderSvc.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return orderdomain.ErrNotFound
	}

	m.ackMu.Lock()
	m.acked[order.ID] = struct{}{}
	m.ackMu.Unlock()
	return nil
}

func (m *Monitor) publish(eventType string, payload any) {
	if m.events == nil {
		return
	}
	m.events.Publish(events.TopicStaff, events.Event{Type: eventType, Payload: payload, At: m.clock.Now()})
}

func countPending(orders []orderdomain.Response) int {
	n := 0
	for _, order := range orders {
		if order.Status == orderdomain.StatusPending {
			n++
		}
	}
	return n
}

func copyTabs(s TabsSnapshot) TabsSnapshot {
	s.Open = append([]comandadomain.Tab(nil), s.Open...)
	s.BillRequests = append([]comandadomain.Tab(nil), s.BillRequests...)
	return s
}

func copyOrders(s OrdersSnapshot) OrdersSnapshot {
	s.Orders = append([]orderdomain.Response(nil), s.Orders...)
	return s
}

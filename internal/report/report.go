package report

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidDate  = errors.New("invalid_date")
	ErrInvalidRange = errors.New("invalid_range")
)

type ProductLine struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type SourceLine struct {
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// Report summarises the ledger entries created in [From, To).
type Report struct {
	From        time.Time                         `json:"from"`
	To          time.Time                         `json:"to"`
	TotalOrders int                               `json:"total_orders"`
	Revenue     decimal.Decimal                   `json:"revenue"`
	Delivered   int                               `json:"delivered"`
	Pending     int                               `json:"pending"`
	ByStatus    map[orderdomain.Status]int        `json:"by_status"`
	BySource    map[orderdomain.Source]SourceLine `json:"by_source"`
	Products    []ProductLine                     `json:"products"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Settings *config.RestaurantConfigHolder
	OrderSvc orderdomain.Service
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	settings *config.RestaurantConfigHolder
	orderSvc orderdomain.Service
}

func New(p Params) *Service {
	return &Service{
		log:      p.Log.Named("report"),
		clock:    p.Clock,
		settings: p.Settings,
		orderSvc: p.OrderSvc,
	}
}

// ParseDate reads YYYY-MM-DD in the restaurant timezone; empty means today.
func (s *Service) ParseDate(value string) (time.Time, error) {
	loc := s.settings.Get().Location()
	value = strings.TrimSpace(value)
	if value == "" {
		now := s.clock.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	day, err := time.ParseInLocation(dateLayout, value, loc)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return day, nil
}

// Daily reports the local calendar day containing day.
func (s *Service) Daily(ctx context.Context, day time.Time) (*Report, error) {
	loc := s.settings.Get().Location()
	local := day.In(loc)
	from := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return s.build(ctx, from, from.AddDate(0, 0, 1))
}

// Range reports every local day from the first through the last, inclusive.
func (s *Service) Range(ctx context.Context, first, last time.Time) (*Report, error) {
	loc := s.settings.Get().Location()
	first, last = first.In(loc), last.In(loc)
	from := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	to := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	return s.build(ctx, from, to)
}

func (s *Service) build(ctx context.Context, from, to time.Time) (*Report, error) {
	orders, err := s.orderSvc.List(ctx, orderdomain.ListRequest{From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	return Summarize(orders, from, to), nil
}

func Summarize(orders []orderdomain.Response, from, to time.Time) *Report {
	r := &Report{
		From:     from,
		To:       to,
		Revenue:  decimal.Zero,
		ByStatus: make(map[orderdomain.Status]int),
		BySource: make(map[orderdomain.Source]SourceLine),
		Products: make([]ProductLine, 0),
	}

	products := make(map[string]*ProductLine)
	for _, order := range orders {
		r.TotalOrders++
		r.Revenue = r.Revenue.Add(order.Total)
		r.ByStatus[order.Status]++
		switch order.Status {
		case orderdomain.StatusDelivered:
			r.Delivered++
		case orderdomain.StatusPending:
			r.Pending++
		}

		source := r.BySource[order.Source]
		source.Orders++
		source.Revenue = source.Revenue.Add(order.Total)
		r.BySource[order.Source] = source

		for _, item := range order.Items {
			line, ok := products[item.Name]
			if !ok {
				line = &ProductLine{Name: item.Name, Revenue: decimal.Zero}
				products[item.Name] = line
			}
			line.Quantity += item.Quantity
			line.Revenue = line.Revenue.Add(item.Subtotal)
		}
	}

	for _, line := range products {
		r.Products = append(r.Products, *line)
	}
	sort.Slice(r.Products, func(i, j int) bool {
		if r.Products[i].Quantity == r.Products[j].Quantity {
			return r.Products[i].Name < r.Products[j].Name
		}
		return r.Products[i].Quantity > r.Products[j].Quantity
	})
	return r
}

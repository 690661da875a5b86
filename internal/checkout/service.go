package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/comanda/internal/catalog/domain"
	"github.com/smallbiznis/comanda/internal/clock"
	"github.com/smallbiznis/comanda/internal/config"
	customerdomain "github.com/smallbiznis/comanda/internal/customer/domain"
	"github.com/smallbiznis/comanda/internal/events"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/outbox"
	"github.com/smallbiznis/comanda/internal/providers/telegram"
	"github.com/smallbiznis/comanda/internal/tablesession"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type DeliveryType string

const (
	DeliveryTypeDelivery DeliveryType = "delivery"
	DeliveryTypePickup   DeliveryType = "pickup"
)

var (
	ErrEmptyCart           = errors.New("empty_cart")
	ErrNameRequired        = errors.New("name_required")
	ErrInvalidPhone        = errors.New("invalid_phone")
	ErrAddressRequired     = errors.New("address_required")
	ErrInvalidDeliveryType = errors.New("invalid_delivery_type")
	ErrInvalidChange       = errors.New("invalid_change")
)

type Item struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Payment struct {
	Method       orderdomain.PaymentMethod `json:"method"`
	ChangeFor    *decimal.Decimal          `json:"change_for,omitempty"`
	Name         string                    `json:"name"`
	Phone        string                    `json:"phone"`
	Email        string                    `json:"email"`
	Address      string                    `json:"address"`
	Observation  string                    `json:"observation"`
	DeliveryType DeliveryType              `json:"delivery_type"`
}

type Request struct {
	Items   []Item  `json:"items"`
	Payment Payment `json:"payment"`
}

// Result reports the accepted order. Queued means the ledger write is waiting
// in the outbox and Order is nil.
type Result struct {
	OrderNumber string                `json:"order_number"`
	Total       decimal.Decimal       `json:"total"`
	Order       *orderdomain.Response `json:"order,omitempty"`
	Queued      bool                  `json:"queued"`
	OutboxID    string                `json:"outbox_id,omitempty"`
}

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	Settings    *config.RestaurantConfigHolder
	CatalogSvc  catalogdomain.Service
	OrderSvc    orderdomain.Service
	CustomerSvc customerdomain.Service
	Outbox      *outbox.Reconciler
	Notifier    *telegram.Dispatcher
	Events      events.Publisher `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	clock       clock.Clock
	settings    *config.RestaurantConfigHolder
	catalogSvc  catalogdomain.Service
	orderSvc    orderdomain.Service
	customerSvc customerdomain.Service
	outbox      *outbox.Reconciler
	notifier    *telegram.Dispatcher
	events      events.Publisher
}

func New(p Params) *Service {
	s := &Service{
		log:         p.Log.Named("checkout"),
		clock:       p.Clock,
		settings:    p.Settings,
		catalogSvc:  p.CatalogSvc,
		orderSvc:    p.OrderSvc,
		customerSvc: p.CustomerSvc,
		outbox:      p.Outbox,
		notifier:    p.Notifier,
		events:      p.Events,
	}
	p.Outbox.Register(outbox.KindOrderCreate, s.replay)
	return s
}

func (s *Service) Submit(ctx context.Context, req Request) (*Result, error) {
	cart, err := s.buildCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	total := cart.Total()

	payment, err := s.validatePayment(req.Payment, total)
	if err != nil {
		return nil, err
	}

	lines := cart.Lines()
	items := make([]orderdomain.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, orderdomain.LineItem{
			Name:     line.Name,
			Quantity: line.Quantity,
			Price:    line.Price,
			Subtotal: line.Subtotal(),
		})
	}

	source := orderdomain.SourceDelivery
	if payment.DeliveryType == DeliveryTypePickup {
		source = orderdomain.SourcePickup
	}

	now := s.clock.Now()
	entry := orderdomain.CreateRequest{
		CustomerEmail: payment.Email,
		CustomerName:  payment.Name,
		CustomerPhone: payment.Phone,
		OrderNumber:   orderdomain.NewOrderNumber(now),
		Items:         items,
		PaymentMethod: payment.Method,
		Address:       payment.Address,
		Observation:   payment.Observation,
		Source:        source,
	}
	if payment.Method == orderdomain.PaymentCash {
		entry.ChangeFor = payment.ChangeFor
	}
	entry.CustomerID = s.linkCustomer(ctx, payment.Email)

	result := &Result{OrderNumber: entry.OrderNumber, Total: total}
	order, err := s.orderSvc.Create(ctx, entry)
	switch {
	case err == nil:
		result.Order = order
		s.publish(order)
	case isInputError(err):
		return nil, err
	default:
		s.log.Warn("ledger write failed, queueing for replay",
			zap.String("order_number", entry.OrderNumber),
			zap.Error(err),
		)
		queued, qErr := s.outbox.Enqueue(context.WithoutCancel(ctx), outbox.KindOrderCreate, entry)
		if qErr != nil {
			return nil, errors.Join(err, qErr)
		}
		result.Queued = true
		result.OutboxID = queued.ID
	}

	s.notifier.Notify(ctx, notification(entry, total, now))
	return result, nil
}

func (s *Service) replay(ctx context.Context, payload json.RawMessage) error {
	var entry orderdomain.CreateRequest
	if err := json.Unmarshal(payload, &entry); err != nil {
		return err
	}
	order, err := s.orderSvc.Create(ctx, entry)
	if err != nil {
		return err
	}
	s.publish(order)
	return nil
}

func (s *Service) buildCart(ctx context.Context, items []Item) (*tablesession.Cart, error) {
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	cart := &tablesession.Cart{}
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, orderdomain.ErrInvalidItems
		}
		product, err := s.catalogSvc.Get(ctx, item.ProductID)
		if err != nil {
			return nil, err
		}
		if !product.Available {
			return nil, catalogdomain.ErrProductUnavailable
		}
		cart.Add(*product, item.Quantity)
	}
	return cart, nil
}

func (s *Service) validatePayment(p Payment, total decimal.Decimal) (Payment, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, ErrNameRequired
	}
	p.Phone = strings.TrimSpace(p.Phone)
	if digits := len(digitsOnly(p.Phone)); digits < 10 || digits > 11 {
		return p, ErrInvalidPhone
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	p.Observation = strings.TrimSpace(p.Observation)

	if p.DeliveryType == "" {
		p.DeliveryType = DeliveryTypeDelivery
	}
	switch p.DeliveryType {
	case DeliveryTypeDelivery:
		p.Address = strings.TrimSpace(p.Address)
		if p.Address == "" {
			return p, ErrAddressRequired
		}
	case DeliveryTypePickup:
		p.Address = s.settings.Get().PickupAddress
	default:
		return p, ErrInvalidDeliveryType
	}

	switch p.Method {
	case orderdomain.PaymentCard, orderdomain.PaymentPix:
	case orderdomain.PaymentCash:
		if p.ChangeFor == nil || p.ChangeFor.LessThan(total) {
			return p, ErrInvalidChange
		}
	default:
		return p, orderdomain.ErrInvalidPaymentMethod
	}
	return p, nil
}

// linkCustomer attaches a known customer to the ledger entry. Lookup failures
// leave the entry anonymous.
func (s *Service) linkCustomer(ctx context.Context, email string) *int64 {
	if email == "" {
		return nil
	}
	customer, err := s.customerSvc.FindByEmail(ctx, email)
	if err != nil {
		s.log.Debug("customer lookup failed", zap.Error(err))
		return nil
	}
	if customer == nil {
		return nil
	}
	id := customer.ID.Int64()
	return &id
}

func (s *Service) publish(order *orderdomain.Response) {
	if s.events == nil || order == nil {
		return
	}
	s.events.Publish(events.TopicStaff, events.Event{
		Type:    events.TypeOrderCreated,
		OrderID: order.ID,
		Payload: order,
		At:      s.clock.Now(),
	})
}

func isInputError(err error) bool {
	return errors.Is(err, orderdomain.ErrInvalidItems) ||
		errors.Is(err, orderdomain.ErrInvalidPaymentMethod) ||
		errors.Is(err, orderdomain.ErrInvalidSource) ||
		errors.Is(err, orderdomain.ErrInvalidEmail)
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func notification(entry orderdomain.CreateRequest, total decimal.Decimal, placedAt time.Time) telegram.Message {
	msg := telegram.Message{
		OrderNumber: entry.OrderNumber,
		PlacedAt:    placedAt,
		Customer: telegram.Customer{
			Name:    entry.CustomerName,
			Phone:   entry.CustomerPhone,
			Address: entry.Address,
			Email:   entry.CustomerEmail,
		},
		Payment: telegram.Payment{
			Method:    string(entry.PaymentMethod),
			ChangeFor: entry.ChangeFor,
		},
		Total:       total,
		Observation: entry.Observation,
	}
	for _, item := range entry.Items {
		msg.Items = append(msg.Items, telegram.Item{
			Name:     item.Name,
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}
	return msg
}

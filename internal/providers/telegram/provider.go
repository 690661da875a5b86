package telegram

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Provider interface {
	SendOrder(ctx context.Context, msg Message) error
}

type NoOpProvider struct{}

func (p *NoOpProvider) SendOrder(ctx context.Context, msg Message) error {
	return nil
}

// Message is the order summary pushed to the kitchen chat. IsAddition marks
// items appended to a tab that was already open.
type Message struct {
	OrderNumber string
	PlacedAt    time.Time
	IsAddition  bool
	Customer    Customer
	Items       []Item
	Payment     Payment
	Total       decimal.Decimal
	Observation string
}

type Customer struct {
	Name    string
	Phone   string
	Address string
	Email   string
}

type Item struct {
	Name     string
	Quantity int
	Subtotal decimal.Decimal
}

type Payment struct {
	Method    string
	ChangeFor *decimal.Decimal
}

package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var forward = map[Status]Status{
	StatusPending:   StatusConfirmed,
	StatusConfirmed: StatusPreparing,
	StatusPreparing: StatusReady,
	StatusReady:     StatusDelivered,
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// NextStatuses lists the legal targets from s: one step forward, or cancellation.
func NextStatuses(s Status) []Status {
	if s.Terminal() || !s.Valid() {
		return []Status{}
	}
	return []Status{forward[s], StatusCancelled}
}

func CanTransition(from, to Status) bool {
	for _, next := range NextStatuses(from) {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentMethod string

const (
	PaymentCard    PaymentMethod = "card"
	PaymentCash    PaymentMethod = "cash"
	PaymentPix     PaymentMethod = "pix"
	PaymentComanda PaymentMethod = "comanda"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentCash, PaymentPix, PaymentComanda:
		return true
	}
	return false
}

type Source string

const (
	SourceDelivery Source = "delivery"
	SourcePickup   Source = "pickup"
	SourceTable    Source = "table"
)

func (s Source) Valid() bool {
	return s == SourceDelivery || s == SourcePickup || s == SourceTable
}

// LineItem is the item snapshot stored with a ledger entry.
type LineItem struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Order struct {
	ID             snowflake.ID                  `gorm:"primaryKey" json:"id"`
	CustomerID     *int64                        `json:"customer_id,omitempty"`
	CustomerEmail  *string                       `json:"customer_email,omitempty"`
	CustomerName   string                        `gorm:"not null;default:''" json:"customer_name"`
	CustomerPhone  *string                       `json:"customer_phone,omitempty"`
	OrderNumber    string                        `gorm:"not null" json:"order_number"`
	Items          datatypes.JSONSlice[LineItem] `gorm:"type:jsonb;not null" json:"items"`
	TotalCents     int64                         `gorm:"column:total_cents;not null" json:"total_cents"`
	PaymentMethod  PaymentMethod                 `gorm:"not null" json:"payment_method"`
	ChangeForCents *int64                        `gorm:"column:change_for_cents" json:"change_for_cents,omitempty"`
	Address        string                        `gorm:"not null;default:''" json:"address"`
	Observation    *string                       `json:"observation,omitempty"`
	Status         Status                        `gorm:"not null" json:"status"`
	Source         Source                        `gorm:"not null" json:"source"`
	CreatedAt      time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time                     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// NewOrderNumber derives the human-readable number from the last six digits
// of the millisecond timestamp.
func NewOrderNumber(now time.Time) string {
	return fmt.Sprintf("SB%06d", now.UnixMilli()%1000000)
}

package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusOpen Status = "open"
	StatusPaid Status = "paid"
)

type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemDelivered ItemStatus = "delivered"
	ItemCancelled ItemStatus = "cancelled"
)

// Comanda is the running tab of one table. At most one per table is open.
type Comanda struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	TableNumber      int          `gorm:"not null" json:"table_number"`
	CustomerName     *string      `json:"customer_name,omitempty"`
	Status           Status       `gorm:"not null" json:"status"`
	TotalCents       int64        `gorm:"column:total_cents;not null;default:0" json:"total_cents"`
	ClosingRequested bool         `gorm:"not null;default:false" json:"closing_requested"`
	WaiterID         *int64       `json:"waiter_id,omitempty"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
}

func (Comanda) TableName() string { return "comandas" }

// Item is a tab line item. Name and price are copied from the catalog at insert time.
type Item struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	ComandaID   snowflake.ID `gorm:"not null" json:"comanda_id"`
	ProductName string       `gorm:"not null" json:"product_name"`
	Quantity    int          `gorm:"not null" json:"quantity"`
	PriceCents  int64        `gorm:"column:price_cents;not null" json:"price_cents"`
	TotalCents  int64        `gorm:"column:total_cents;not null" json:"total_cents"`
	Status      ItemStatus   `gorm:"not null" json:"status"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Item) TableName() string { return "comanda_items" }

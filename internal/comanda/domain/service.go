package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OpenRequest struct {
	TableNumber  int    `json:"table_number"`
	CustomerName string `json:"customer_name"`
	WaiterID     string `json:"waiter_id"`
}

// LineInput is one priced line appended to a tab.
type LineInput struct {
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

type AddProductRequest struct {
	TabID     string `json:"-"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type Service interface {
	Open(ctx context.Context, req OpenRequest) (*Tab, error)
	AddItems(ctx context.Context, tabID string, lines []LineInput) (*Tab, error)
	AddProduct(ctx context.Context, req AddProductRequest) (*Tab, error)
	RequestClose(ctx context.Context, tabID string) (*Tab, error)
	Settle(ctx context.Context, tabID string) (*Tab, error)
	AssignWaiter(ctx context.Context, tabID, waiterID string) (*Tab, error)
	UpdateItemStatus(ctx context.Context, tabID, itemID string, status ItemStatus) (*Tab, error)
	Get(ctx context.Context, tabID string) (*Tab, error)
	// FindOpenByTable returns nil when the table has no open tab.
	FindOpenByTable(ctx context.Context, table int) (*Tab, error)
	ListOpen(ctx context.Context) ([]Tab, error)
	ListBillRequests(ctx context.Context) ([]Tab, error)
	Board(ctx context.Context) ([]TableSlot, error)
	Reconcile(ctx context.Context, tabID string) (*ReconcileResult, error)

	// OpenIn and AddItemsIn run inside a caller-owned transaction.
	FindOpenIn(ctx context.Context, tx *gorm.DB, table int) (*Comanda, error)
	OpenIn(ctx context.Context, tx *gorm.DB, req OpenRequest) (*Comanda, error)
	AddItemsIn(ctx context.Context, tx *gorm.DB, tabID snowflake.ID, lines []LineInput) ([]Item, error)
}

type Tab struct {
	ID               string          `json:"id"`
	TableNumber      int             `json:"table_number"`
	CustomerName     *string         `json:"customer_name,omitempty"`
	Status           Status          `json:"status"`
	Total            decimal.Decimal `json:"total"`
	ClosingRequested bool            `json:"closing_requested"`
	WaiterID         *string         `json:"waiter_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ClosedAt         *time.Time      `json:"closed_at,omitempty"`
	Items            []TabItem       `json:"items"`
}

type TabItem struct {
	ID          string          `json:"id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
	Status      ItemStatus      `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableSlot is one entry of the fixed table pool; Tab is nil when the table is free.
type TableSlot struct {
	TableNumber int  `json:"table_number"`
	Tab         *Tab `json:"tab"`
}

type ReconcileResult struct {
	Tab *Tab `json:"tab"`
	// Drift is the stored total minus the recomputed one, before repair.
	Drift decimal.Decimal `json:"drift"`
}

var (
	ErrInvalidTable          = errors.New("invalid_table")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidItem           = errors.New("invalid_item")
	ErrNotFound              = errors.New("not_found")
	ErrTabAlreadyOpen        = errors.New("tab_already_open")
	ErrTabNotOpen            = errors.New("tab_not_open")
	ErrInvalidItemTransition = errors.New("invalid_item_transition")
)

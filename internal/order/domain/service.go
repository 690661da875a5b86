package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateRequest struct {
	CustomerID    *int64           `json:"customer_id,omitempty"`
	CustomerEmail string           `json:"customer_email"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone string           `json:"customer_phone"`
	OrderNumber   string           `json:"order_number"`
	Items         []LineItem       `json:"items"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	ChangeFor     *decimal.Decimal `json:"change_for,omitempty"`
	Address       string           `json:"address"`
	Observation   string           `json:"observation"`
	Source        Source           `json:"source"`
}

type ListRequest struct {
	From   *time.Time
	To     *time.Time
	Status string
	Source string
}

type Service interface {
	// Create prunes the customer's older entries and inserts the new one in one transaction.
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	CreateIn(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	AdvanceStatus(ctx context.Context, id string, next Status) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	ListPendingSince(ctx context.Context, since time.Time) ([]Response, error)
	RecentByEmail(ctx context.Context, email string) ([]Response, error)
}

type Response struct {
	ID            string           `json:"id"`
	CustomerID    *string          `json:"customer_id,omitempty"`
	CustomerEmail *string          `json:"customer_email,omitempty"`
	CustomerName  string           `json:"customer_name"`
	CustomerPhone *string          `json:"customer_phone,omitempty"`
	OrderNumber   string           `json:"order_number"`
	Items         []LineItem       `json:"items"`
	Total         decimal.Decimal  `json:"total"`
	PaymentMethod PaymentMethod    `json:"payment_method"`
	ChangeFor     *decimal.Decimal `json:"change_for,omitempty"`
	Address       string           `json:"address"`
	Observation   *string          `json:"observation,omitempty"`
	Status        Status           `json:"status"`
	Source        Source           `json:"source"`
	NextStatuses  []Status         `json:"next_statuses"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

var (
	ErrInvalidID            = errors.New("invalid_id")
	ErrInvalidItems         = errors.New("invalid_items")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrInvalidSource        = errors.New("invalid_source")
	ErrInvalidStatus        = errors.New("invalid_status")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidTransition    = errors.New("invalid_status_transition")
	ErrNotFound             = errors.New("not_found")
)

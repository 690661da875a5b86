package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	ToggleAvailability(ctx context.Context, id string) (*Response, error)
	// Menu lists available products, served from a short-lived cache.
	Menu(ctx context.Context, category string) ([]Response, error)
	// SeedDefaults inserts the house menu when the catalog is empty.
	SeedDefaults(ctx context.Context) (int, error)
}

type ListRequest struct {
	Category  string
	Available *bool
}

type CreateRequest struct {
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  string          `json:"category"`
	Available *bool           `json:"available"`
}

type UpdateRequest struct {
	ID        string           `json:"-"`
	Name      *string          `json:"name"`
	Price     *decimal.Decimal `json:"price"`
	Category  *string          `json:"category"`
	Available *bool            `json:"available"`
}

type Response struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Category  Category        `json:"category"`
	Available bool            `json:"available"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

var (
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidPrice       = errors.New("invalid_price")
	ErrInvalidCategory    = errors.New("invalid_category")
	ErrInvalidID          = errors.New("invalid_id")
	ErrNotFound           = errors.New("not_found")
	ErrProductUnavailable = errors.New("product_unavailable")
)

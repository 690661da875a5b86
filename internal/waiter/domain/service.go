package domain

import (
	"context"
	"errors"
)

type CreateWaiterRequest struct {
	Name string `json:"name"`
}

type ListWaitersRequest struct {
	ActiveOnly bool
}

type Service interface {
	Create(ctx context.Context, req CreateWaiterRequest) (Waiter, error)
	List(ctx context.Context, req ListWaitersRequest) ([]Waiter, error)
	Get(ctx context.Context, id string) (Waiter, error)
	Toggle(ctx context.Context, id string) (Waiter, error)
	Delete(ctx context.Context, id string) error
}

var (
	ErrInvalidName = errors.New("invalid_name")
	ErrInvalidID   = errors.New("invalid_id")
	ErrNotFound    = errors.New("not_found")
	ErrInactive    = errors.New("waiter_inactive")
)

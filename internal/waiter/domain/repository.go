package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, waiter *Waiter) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Waiter, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Waiter, error)
	SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) (int64, error)
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
}

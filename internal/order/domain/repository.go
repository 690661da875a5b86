package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	From   *time.Time
	To     *time.Time
	Status Status
	Source Source
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	// IDsByEmail returns the customer's entries, newest first.
	IDsByEmail(ctx context.Context, db *gorm.DB, email string) ([]snowflake.ID, error)
	DeleteByIDs(ctx context.Context, db *gorm.DB, ids []snowflake.ID) (int64, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, updatedAt time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Order, error)
	ListPendingSince(ctx context.Context, db *gorm.DB, since time.Time) ([]Order, error)
	ListByEmail(ctx context.Context, db *gorm.DB, email string, limit int) ([]Order, error)
}

package domain

import (
	"context"

	"gorm.io/gorm"
)

type ListFilter struct {
	Category  Category
	Available *bool
}

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, product *Product) error
	FindByID(ctx context.Context, db *gorm.DB, id int64) (*Product, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Product, error)
	Update(ctx context.Context, db *gorm.DB, product *Product) error
	Delete(ctx context.Context, db *gorm.DB, id int64) (int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}

package domain

import "time"

type Category string

const (
	CategoryFood  Category = "food"
	CategoryDrink Category = "drink"
)

func (c Category) Valid() bool {
	return c == CategoryFood || c == CategoryDrink
}

type Product struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	Name       string    `json:"name" gorm:"type:text;not null"`
	PriceCents int64     `json:"price_cents" gorm:"column:price_cents;not null"`
	Category   Category  `json:"category" gorm:"type:text;not null"`
	Available  bool      `json:"available" gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Product) TableName() string { return "products" }

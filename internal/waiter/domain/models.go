package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Waiter is a staff member that can be assigned to an open tab.
type Waiter struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"not null" json:"name"`
	Active    bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Waiter) TableName() string { return "waiters" }

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tab *Comanda) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Comanda, error)
	FindOpenByTable(ctx context.Context, db *gorm.DB, table int) (*Comanda, error)
	ListOpen(ctx context.Context, db *gorm.DB, closingRequestedOnly bool) ([]Comanda, error)

	// IncrementTotal adds delta to an open tab; zero rows means the tab is not open.
	IncrementTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, deltaCents int64) (int64, error)
	SetTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, totalCents int64) error
	MarkClosingRequested(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, closedAt time.Time) (int64, error)
	AssignWaiter(ctx context.Context, db *gorm.DB, id snowflake.ID, waiterID int64) (int64, error)

	InsertItem(ctx context.Context, db *gorm.DB, item *Item) error
	FindItem(ctx context.Context, db *gorm.DB, tabID, itemID snowflake.ID) (*Item, error)
	ListItems(ctx context.Context, db *gorm.DB, tabIDs []snowflake.ID) ([]Item, error)
	TransitionItem(ctx context.Context, db *gorm.DB, tabID, itemID snowflake.ID, from, to ItemStatus) (int64, error)
	SumActiveItems(ctx context.Context, db *gorm.DB, tabID snowflake.ID) (int64, error)
}

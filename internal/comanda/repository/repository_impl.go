package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/comanda/domain"
	"gorm.io/gorm"
)

const tabColumns = `id, table_number, customer_name, status, total_cents, closing_requested, waiter_id, created_at, closed_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tab *domain.Comanda) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO comandas (id, table_number, customer_name, status, total_cents, closing_requested, waiter_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tab.ID,
		tab.TableNumber,
		tab.CustomerName,
		tab.Status,
		tab.TotalCents,
		tab.ClosingRequested,
		tab.WaiterID,
		tab.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Comanda, error) {
	var tab domain.Comanda
	err := db.WithContext(ctx).Raw(
		`SELECT `+tabColumns+` FROM comandas WHERE id = ?`,
		id,
	).Scan(&tab).Error
	if err != nil {
		return nil, err
	}
	if tab.ID == 0 {
		return nil, nil
	}
	return &tab, nil
}

func (r *repo) FindOpenByTable(ctx context.Context, db *gorm.DB, table int) (*domain.Comanda, error) {
	var tab domain.Comanda
	err := db.WithContext(ctx).Raw(
		`SELECT `+tabColumns+` FROM comandas WHERE table_number = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		table,
		domain.StatusOpen,
	).Scan(&tab).Error
	if err != nil {
		return nil, err
	}
	if tab.ID == 0 {
		return nil, nil
	}
	return &tab, nil
}

func (r *repo) ListOpen(ctx context.Context, db *gorm.DB, closingRequestedOnly bool) ([]domain.Comanda, error) {
	var tabs []domain.Comanda
	stmt := db.WithContext(ctx).
		Model(&domain.Comanda{}).
		Where("status = ?", domain.StatusOpen)
	if closingRequestedOnly {
		stmt = stmt.Where("closing_requested = ?", true)
	}
	if err := stmt.Order("table_number ASC").Find(&tabs).Error; err != nil {
		return nil, err
	}
	return tabs, nil
}

func (r *repo) IncrementTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, deltaCents int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE comandas SET total_cents = total_cents + ? WHERE id = ? AND status = ?`,
		deltaCents,
		id,
		domain.StatusOpen,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SetTotal(ctx context.Context, db *gorm.DB, id snowflake.ID, totalCents int64) error {
	return db.WithContext(ctx).Exec(
		`UPDATE comandas SET total_cents = ? WHERE id = ?`,
		totalCents,
		id,
	).Error
}

func (r *repo) MarkClosingRequested(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE comandas SET closing_requested = ? WHERE id = ? AND status = ?`,
		true,
		id,
		domain.StatusOpen,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, closedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE comandas SET status = ?, closed_at = ? WHERE id = ? AND status = ?`,
		domain.StatusPaid,
		closedAt,
		id,
		domain.StatusOpen,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) AssignWaiter(ctx context.Context, db *gorm.DB, id snowflake.ID, waiterID int64) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE comandas SET waiter_id = ? WHERE id = ? AND status = ?`,
		waiterID,
		id,
		domain.StatusOpen,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) InsertItem(ctx context.Context, db *gorm.DB, item *domain.Item) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO comanda_items (id, comanda_id, product_name, quantity, price_cents, total_cents, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.ComandaID,
		item.ProductName,
		item.Quantity,
		item.PriceCents,
		item.TotalCents,
		item.Status,
		item.CreatedAt,
	).Error
}

func (r *repo) FindItem(ctx context.Context, db *gorm.DB, tabID, itemID snowflake.ID) (*domain.Item, error) {
	var item domain.Item
	err := db.WithContext(ctx).Raw(
		`SELECT id, comanda_id, product_name, quantity, price_cents, total_cents, status, created_at
		 FROM comanda_items WHERE id = ? AND comanda_id = ?`,
		itemID,
		tabID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListItems(ctx context.Context, db *gorm.DB, tabIDs []snowflake.ID) ([]domain.Item, error) {
	if len(tabIDs) == 0 {
		return nil, nil
	}
	var items []domain.Item
	err := db.WithContext(ctx).
		Model(&domain.Item{}).
		Where("comanda_id IN ?", tabIDs).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) TransitionItem(ctx context.Context, db *gorm.DB, tabID, itemID snowflake.ID, from, to domain.ItemStatus) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE comanda_items SET status = ? WHERE id = ? AND comanda_id = ? AND status = ?`,
		to,
		itemID,
		tabID,
		from,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SumActiveItems(ctx context.Context, db *gorm.DB, tabID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(total_cents), 0) FROM comanda_items WHERE comanda_id = ? AND status <> ?`,
		tabID,
		domain.ItemCancelled,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

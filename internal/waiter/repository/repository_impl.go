package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/comanda/internal/waiter/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, waiter *domain.Waiter) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO waiters (id, name, active, created_at) VALUES (?, ?, ?, ?)`,
		waiter.ID,
		waiter.Name,
		waiter.Active,
		waiter.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Waiter, error) {
	var waiter domain.Waiter
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, active, created_at FROM waiters WHERE id = ?`,
		id,
	).Scan(&waiter).Error
	if err != nil {
		return nil, err
	}
	if waiter.ID == 0 {
		return nil, nil
	}
	return &waiter, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Waiter, error) {
	var waiters []domain.Waiter
	stmt := db.WithContext(ctx).Model(&domain.Waiter{})
	if activeOnly {
		stmt = stmt.Where("active = ?", true)
	}
	if err := stmt.Order("name ASC").Find(&waiters).Error; err != nil {
		return nil, err
	}
	return waiters, nil
}

func (r *repo) SetActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) (int64, error) {
	res := db.WithContext(ctx).Exec(`UPDATE waiters SET active = ? WHERE id = ?`, active, id)
	return res.RowsAffected, res.Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(`DELETE FROM waiters WHERE id = ?`, id)
	return res.RowsAffected, res.Error
}

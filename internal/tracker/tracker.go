// Package tracker keeps a durable ledger of realized option premium, so the
// running total survives restarts and is queryable outside the process.
package tracker

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

// PremiumRecord is one filled order's net premium. Credit received is
// positive; debit paid is negative.
type PremiumRecord struct {
	ID         uint            `gorm:"primaryKey"`
	Account    string          `gorm:"size:64;index:idx_premium_account_filled"`
	OrderID    string          `gorm:"size:64;uniqueIndex"`
	Underlying string          `gorm:"size:16"`
	Premium    decimal.Decimal `gorm:"type:numeric(12,2)"`
	Quantity   int
	FilledAt   time.Time `gorm:"index:idx_premium_account_filled"`
}

func (PremiumRecord) TableName() string { return "premium_records" }

type Tracker struct {
	db *gorm.DB
}

// New migrates the ledger table and returns the tracker.
func New(db *gorm.DB) (*Tracker, error) {
	if err := db.AutoMigrate(&PremiumRecord{}); err != nil {
		return nil, errors.Wrap(err, "migrate premium records")
	}
	return &Tracker{db: db}, nil
}

// Record appends one fill. Recording the same order id twice is a no-op, so
// a retried status poll cannot double-count.
func (t *Tracker) Record(ctx context.Context, rec PremiumRecord) error {
	if rec.FilledAt.IsZero() {
		rec.FilledAt = time.Now().UTC()
	}

	err := t.db.WithContext(ctx).
		Where("order_id = ?", rec.OrderID).
		FirstOrCreate(&rec).Error
	if err != nil {
		return errors.Wrapf(err, "record premium for order %s", rec.OrderID)
	}
	return nil
}

// TotalSince sums the account's net premium from a point in time.
func (t *Tracker) TotalSince(ctx context.Context, account string, since time.Time) (decimal.Decimal, error) {
	var total decimal.NullDecimal
	err := t.db.WithContext(ctx).
		Model(&PremiumRecord{}).
		Select("SUM(premium)").
		Where("account = ? AND filled_at >= ?", account, since).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "sum premium for %s", account)
	}
	if !total.Valid {
		return decimal.Zero, nil
	}
	return total.Decimal, nil
}

// Recent returns the account's latest fills, newest first.
func (t *Tracker) Recent(ctx context.Context, account string, limit int) ([]PremiumRecord, error) {
	var records []PremiumRecord
	err := t.db.WithContext(ctx).
		Where("account = ?", account).
		Order("filled_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrapf(err, "list premium for %s", account)
	}
	return records, nil
}

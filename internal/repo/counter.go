// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the fixed-window hit counter used by the
// SQL-backed throttle, which lets several router replicas share one budget.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/support-router/internal/domain"
)

// IncrementCounter atomically adds one hit to key and returns the new total.
// The row is created on first use with the given expiry.
func IncrementCounter(ctx context.Context, db *gorm.DB, key string, expiresAt time.Time) (int64, error) {
	var hits int64
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &domain.RateCounter{Key: key, Hits: 1, ExpiresAt: expiresAt.UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.Assignments(map[string]any{"hits": gorm.Expr("rate_counters.hits + 1")}),
		}).Create(row).Error; err != nil {
			return err
		}
		var got domain.RateCounter
		if err := tx.Where("key = ?", key).First(&got).Error; err != nil {
			return err
		}
		hits = got.Hits
		return nil
	})
	return hits, err
}

// PurgeExpiredCounters deletes windows that ended before now.
func PurgeExpiredCounters(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&domain.RateCounter{})
	return res.RowsAffected, res.Error
}

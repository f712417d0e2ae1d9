// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the bounded
// try-on history log.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/domain"
)

// AppendHistory inserts a new history entry and evicts the oldest entries
// beyond limit in the same transaction, so readers never observe more than
// limit rows.
func AppendHistory(ctx context.Context, db *gorm.DB, g domain.Garment, resultImageURL string, limit int) (*domain.HistoryItem, error) {
	item := &domain.HistoryItem{
		Timestamp:      time.Now().UTC(),
		GarmentID:      g.ID,
		GarmentName:    g.Name,
		GarmentImage:   g.ImageURL,
		BoutiqueName:   g.BoutiqueName,
		ShopURL:        g.ShopURL,
		ResultImageURL: resultImageURL,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		if limit <= 0 {
			return nil
		}
		// Delete everything older than the newest `limit` entries.
		sub := tx.Model(&domain.HistoryItem{}).
			Select("id").
			Order("id desc").
			Limit(limit)
		return tx.
			Where("id NOT IN (?)", sub).
			Delete(&domain.HistoryItem{}).Error
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// ListHistory returns history entries most-recent-first.
func ListHistory(ctx context.Context, db *gorm.DB) ([]domain.HistoryItem, error) {
	var out []domain.HistoryItem
	err := db.WithContext(ctx).
		Order("id desc").
		Find(&out).Error
	return out, err
}

// ClearHistory removes all history entries.
func ClearHistory(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Where("1 = 1").
		Delete(&domain.HistoryItem{}).Error
}

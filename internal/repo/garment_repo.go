// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Garment
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a garment is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateGarment inserts a new Garment row. When g.ID is empty a UUID is
// generated, otherwise the caller-supplied ID is kept (QR codes printed for
// an item must keep addressing it).
func CreateGarment(ctx context.Context, db *gorm.DB, g *domain.Garment) (*domain.Garment, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.CreatedAt = time.Now().UTC()
	if err := db.WithContext(ctx).Create(g).Error; err != nil {
		return nil, err
	}
	return g, nil
}

// ListGarments returns the full inventory, most recently created first.
func ListGarments(ctx context.Context, db *gorm.DB) ([]domain.Garment, error) {
	var out []domain.Garment
	err := db.WithContext(ctx).
		Order("created_at desc").
		Find(&out).Error
	return out, err
}

// GetGarment fetches a single garment by ID. If the record does not exist,
// it returns ErrNotFound.
func GetGarment(ctx context.Context, db *gorm.DB, id string) (*domain.Garment, error) {
	var g domain.Garment
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpdateGarment overwrites the mutable attributes of a garment identified by
// g.ID. If no rows are affected the garment is missing and ErrNotFound is
// returned.
func UpdateGarment(ctx context.Context, db *gorm.DB, g *domain.Garment) error {
	res := db.WithContext(ctx).
		Model(&domain.Garment{}).
		Where("id = ?", g.ID).
		Updates(map[string]any{
			"name":          g.Name,
			"description":   g.Description,
			"image_url":     g.ImageURL,
			"price":         g.Price,
			"boutique_name": g.BoutiqueName,
			"shop_url":      g.ShopURL,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteGarment soft-deletes a garment by ID. History snapshots are
// unaffected. Returns ErrNotFound when nothing was deleted.
func DeleteGarment(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Garment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Package services – HistoryService
//
// HistoryService records successful try-ons. Each entry snapshots the garment
// so the gallery stays intact after inventory edits, the list is capped at
// the configured size with the oldest entries evicted, and clearing is only
// ever an explicit user action.
package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/repo"
)

// HistoryService manages the capped try-on gallery.
type HistoryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Limit caps the number of retained entries.
	Limit int
}

// NewHistoryService constructs a HistoryService with the given cap.
func NewHistoryService(db *gorm.DB, limit int) *HistoryService {
	if limit <= 0 {
		limit = 20
	}
	return &HistoryService{DB: db, Limit: limit}
}

// Append records a successful try-on, snapshotting the garment and evicting
// beyond the cap.
func (s *HistoryService) Append(ctx context.Context, g domain.Garment, resultImageURL string) (*domain.HistoryItem, error) {
	return repo.AppendHistory(ctx, s.DB, g, resultImageURL, s.Limit)
}

// List returns history entries, most recent first.
func (s *HistoryService) List(ctx context.Context) ([]domain.HistoryItem, error) {
	return repo.ListHistory(ctx, s.DB)
}

// Clear removes every entry.
func (s *HistoryService) Clear(ctx context.Context) error {
	return repo.ClearHistory(ctx, s.DB)
}

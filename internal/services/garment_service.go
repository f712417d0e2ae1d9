// Package services – GarmentService
//
// This file implements GarmentService, which manages the boutique's garment
// inventory: validated create/update/delete, listing for the shop view, and
// the deep-link resolution a scanned QR code lands on. Resolution is
// deliberately forgiving — a garment id printed on a QR label must keep
// working as long as the garment exists, and degrade to the landing view
// rather than an error when it does not.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/repo"
)

// GarmentService provides inventory operations and deep-link resolution.
type GarmentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewGarmentService constructs a GarmentService.
func NewGarmentService(db *gorm.DB) *GarmentService {
	return &GarmentService{DB: db}
}

// Resolution is the outcome of a deep-link lookup. Exactly one of Garment or
// Landing is meaningful: a hit carries the garment, a miss directs the client
// to the landing view.
type Resolution struct {
	Garment *domain.Garment
	Landing bool
}

// Create validates and stores a new garment. A caller-supplied ID is kept so
// pre-printed QR labels stay stable; otherwise one is generated.
func (s *GarmentService) Create(ctx context.Context, g *domain.Garment) (*domain.Garment, error) {
	if err := validateGarment(g); err != nil {
		return nil, err
	}
	return repo.CreateGarment(ctx, s.DB, g)
}

// List returns the full inventory, newest first.
func (s *GarmentService) List(ctx context.Context) ([]domain.Garment, error) {
	return repo.ListGarments(ctx, s.DB)
}

// Get fetches a single garment by ID.
func (s *GarmentService) Get(ctx context.Context, id string) (*domain.Garment, error) {
	g, err := repo.GetGarment(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrGarmentNotFound
		}
		return nil, err
	}
	return g, nil
}

// Update validates and persists changes to an existing garment.
func (s *GarmentService) Update(ctx context.Context, g *domain.Garment) error {
	if strings.TrimSpace(g.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidGarment)
	}
	if err := validateGarment(g); err != nil {
		return err
	}
	if err := repo.UpdateGarment(ctx, s.DB, g); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrGarmentNotFound
		}
		return err
	}
	return nil
}

// Delete removes a garment from the inventory. History snapshots taken from
// it remain valid.
func (s *GarmentService) Delete(ctx context.Context, id string) error {
	if err := repo.DeleteGarment(ctx, s.DB, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrGarmentNotFound
		}
		return err
	}
	return nil
}

// Resolve maps a scanned deep-link id to a garment. The lookup tries the
// store first, then falls back to scanning the full inventory list (covers
// ids written before the store index existed), and finally yields the landing
// view. Resolve never fails on an unknown id; the QR contract is that old
// labels keep working or degrade gracefully.
func (s *GarmentService) Resolve(ctx context.Context, id string) (*Resolution, error) {
	tr := otel.Tracer("services/GarmentService")
	ctx, span := tr.Start(ctx, "Resolve",
		trace.WithAttributes(attribute.String("garment.id", id)),
	)
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return &Resolution{Landing: true}, nil
	}

	g, err := repo.GetGarment(ctx, s.DB, id)
	if err == nil {
		return &Resolution{Garment: g}, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}

	all, err := repo.ListGarments(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &Resolution{Garment: &all[i]}, nil
		}
	}
	return &Resolution{Landing: true}, nil
}

// validateGarment enforces the inventory rules: a name, an image, and a
// non-negative price.
func validateGarment(g *domain.Garment) error {
	g.Name = strings.TrimSpace(g.Name)
	g.ImageURL = strings.TrimSpace(g.ImageURL)
	if g.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidGarment)
	}
	if g.ImageURL == "" {
		return fmt.Errorf("%w: image is required", ErrInvalidGarment)
	}
	if g.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidGarment)
	}
	return nil
}

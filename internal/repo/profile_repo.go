// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MerchantProfile model, including the guarded credit mutations used by the
// ledger.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/domain"
)

// DefaultProfileID is the fixed row key for the single-boutique deployment.
// It becomes the merchant's uid once the store goes multi-tenant.
const DefaultProfileID = "main_profile"

// ErrNoCredits is returned by SpendCredit when the guarded decrement touched
// no rows, i.e. the balance was already zero.
var ErrNoCredits = errors.New("no credits remaining")

// GetProfile fetches the merchant profile, provisioning a default row on
// first access so the rest of the code never sees a missing profile.
func GetProfile(ctx context.Context, db *gorm.DB, id string) (*domain.MerchantProfile, error) {
	var p domain.MerchantProfile
	err := db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		p = domain.MerchantProfile{
			ID:        id,
			Name:      "My Boutique",
			Credits:   0,
			CreatedAt: time.Now().UTC(),
		}
		if err := db.WithContext(ctx).Create(&p).Error; err != nil {
			return nil, err
		}
		return &p, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveProfile upserts branding and key fields. Credits are deliberately not
// written here: the balance moves only through AddCredits and SpendCredit.
func SaveProfile(ctx context.Context, db *gorm.DB, p *domain.MerchantProfile) error {
	return db.WithContext(ctx).
		Model(&domain.MerchantProfile{}).
		Where("id = ?", p.ID).
		Updates(map[string]any{
			"name":           p.Name,
			"logo_url":       p.LogoURL,
			"payment_link":   p.PaymentLink,
			"gemini_api_key": p.GeminiAPIKey,
		}).Error
}

// AddCredits increases the balance by n (n > 0). Used by the stub purchase
// flow; real payment confirmation would land here too.
func AddCredits(ctx context.Context, db *gorm.DB, id string, n int) error {
	if n <= 0 {
		return errors.New("credit amount must be positive")
	}
	res := db.WithContext(ctx).
		Model(&domain.MerchantProfile{}).
		Where("id = ?", id).
		UpdateColumn("credits", gorm.Expr("credits + ?", n))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SpendCredit decrements the balance by exactly one. The WHERE guard keeps
// the credits >= 0 invariant even if two sessions race: the second UPDATE
// finds no row with credits > 0 and returns ErrNoCredits.
func SpendCredit(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.MerchantProfile{}).
		Where("id = ? AND credits > 0", id).
		UpdateColumn("credits", gorm.Expr("credits - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoCredits
	}
	return nil
}

// Package services – ProfileService and CreditLedger
//
// This file implements the merchant-profile operations and the credit ledger.
// The profile is a singleton row (one boutique per deployment); updating it
// never touches credits, which move only through the ledger. The ledger
// guarantees the floor invariant — credits never go below zero — by relying
// on the repo's guarded UPDATE rather than a read-modify-write.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/repo"
)

// ProfileService manages the boutique's merchant profile.
type ProfileService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// ProfileID identifies the singleton profile row.
	ProfileID string
}

// NewProfileService constructs a ProfileService bound to the default profile.
func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{DB: db, ProfileID: repo.DefaultProfileID}
}

// Get returns the profile, provisioning the default row on first access.
func (s *ProfileService) Get(ctx context.Context) (*domain.MerchantProfile, error) {
	return repo.GetProfile(ctx, s.DB, s.ProfileID)
}

// Update persists profile fields (name, logo, payment link, API key).
// Credits are deliberately out of scope; only the ledger moves them.
func (s *ProfileService) Update(ctx context.Context, p *domain.MerchantProfile) error {
	p.ID = s.ProfileID
	return repo.SaveProfile(ctx, s.DB, p)
}

// CreditLedger tracks the boutique's remaining try-on credits.
type CreditLedger struct {
	DB        *gorm.DB
	ProfileID string
}

// NewCreditLedger constructs a ledger bound to the default profile.
func NewCreditLedger(db *gorm.DB) *CreditLedger {
	return &CreditLedger{DB: db, ProfileID: repo.DefaultProfileID}
}

// Remaining returns the current balance.
func (l *CreditLedger) Remaining(ctx context.Context) (int, error) {
	p, err := repo.GetProfile(ctx, l.DB, l.ProfileID)
	if err != nil {
		return 0, err
	}
	return p.Credits, nil
}

// Gate checks the balance before work begins. A zero balance yields
// ErrInsufficientCredits so the pipeline can short-circuit without invoking
// the model.
func (l *CreditLedger) Gate(ctx context.Context) error {
	n, err := l.Remaining(ctx)
	if err != nil {
		return err
	}
	if n <= 0 {
		return ErrInsufficientCredits
	}
	return nil
}

// Spend decrements the balance by one, exactly once per successful
// generation. The decrement is guarded at the database so a concurrent spend
// can never push the balance below zero.
func (l *CreditLedger) Spend(ctx context.Context) error {
	if err := repo.SpendCredit(ctx, l.DB, l.ProfileID); err != nil {
		if errors.Is(err, repo.ErrNoCredits) {
			return ErrInsufficientCredits
		}
		return err
	}
	return nil
}

// Purchase adds a pack of credits to the balance. Payment itself happens
// out-of-band via the profile's payment link; this records the entitlement.
func (l *CreditLedger) Purchase(ctx context.Context, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidCreditAmount
	}
	if err := repo.AddCredits(ctx, l.DB, l.ProfileID, amount); err != nil {
		return 0, err
	}
	return l.Remaining(ctx)
}

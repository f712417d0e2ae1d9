// Merchant profile and credit HTTP handlers.
//
// This file exposes the boutique-facing endpoints:
//   - GET  /profile                   (branding, payment link, credit balance)
//   - PUT  /profile                   (update branding / Gemini key; never credits)
//   - POST /profile/credits/purchase  (stub top-up; payment happens out-of-band)
//
// The stored Gemini API key is write-only over HTTP: responses never echo it.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/services"
)

// ProfileService defines the merchant-profile operations consumed by HTTP
// handlers.
type ProfileService interface {
	// Get returns the profile, provisioning the default row on first access.
	Get(ctx context.Context) (*domain.MerchantProfile, error)
	// Update persists branding and key fields; credits are out of scope.
	Update(ctx context.Context, p *domain.MerchantProfile) error
}

// CreditLedger defines the credit operations consumed by HTTP handlers.
type CreditLedger interface {
	// Remaining returns the current balance.
	Remaining(ctx context.Context) (int, error)
	// Purchase adds a pack of credits and returns the new balance.
	Purchase(ctx context.Context, amount int) (int, error)
}

// ProfileResponse is the profile as exposed over HTTP. The Gemini key is
// reported only as a configured/unconfigured flag.
type ProfileResponse struct {
	Name         string `json:"name"`
	LogoURL      string `json:"logoUrl,omitempty"`
	PaymentLink  string `json:"paymentLink,omitempty"`
	Credits      int    `json:"credits"`
	HasGeminiKey bool   `json:"hasGeminiKey"`
}

// UpdateProfileRequest is the JSON payload for profile updates. A Credits
// field is deliberately absent: the balance moves only through the ledger.
type UpdateProfileRequest struct {
	Name        string `json:"name" binding:"required" example:"Lumière Boutique"`
	LogoURL     string `json:"logoUrl" example:"https://cdn.example.com/logo.png"`
	PaymentLink string `json:"paymentLink" example:"https://pay.example.com/lumiere"`
	// GeminiAPIKey overrides the system key for this boutique. Omit the field
	// to keep the stored key; send "" to clear it.
	GeminiAPIKey *string `json:"geminiApiKey"`
}

// PurchaseCreditsRequest requests a credit top-up.
type PurchaseCreditsRequest struct {
	// Amount is the pack size; defaults to the configured pack when zero.
	Amount int `json:"amount" example:"50"`
}

// PurchaseCreditsResponse reports the balance after a top-up.
type PurchaseCreditsResponse struct {
	Credits int `json:"credits"`
}

// GetProfile godoc
// @ID          getProfile
// @Summary     Fetch the merchant profile
// @Tags        Profile
// @Produce     json
//
// @Success     200  {object}  handlers.ProfileResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profile [get]
func (h *Handlers) GetProfile(c *gin.Context) {
	p, err := h.profileSvc.Get(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, profileResponse(p))
}

// UpdateProfile godoc
// @ID          updateProfile
// @Summary     Update the merchant profile
// @Description Updates branding and the boutique's Gemini key. The credit balance cannot be changed here.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.UpdateProfileRequest  true  "Profile payload"
//
// @Success     200  {object}  handlers.ProfileResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profile [put]
func (h *Handlers) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	ctx := c.Request.Context()

	p, err := h.profileSvc.Get(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	p.Name = req.Name
	p.LogoURL = req.LogoURL
	p.PaymentLink = req.PaymentLink
	if req.GeminiAPIKey != nil {
		p.GeminiAPIKey = *req.GeminiAPIKey
	}

	if err := h.profileSvc.Update(ctx, p); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	updated, err := h.profileSvc.Get(ctx)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, profileResponse(updated))
}

// PurchaseCredits godoc
// @ID          purchaseCredits
// @Summary     Top up try-on credits (stub)
// @Description Records a credit pack purchase. Payment confirmation is out-of-band via the profile's payment link.
// @Tags        Profile
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.PurchaseCreditsRequest  false  "Pack size"
//
// @Success     200  {object}  handlers.PurchaseCreditsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /profile/credits/purchase [post]
func (h *Handlers) PurchaseCredits(c *gin.Context) {
	var req PurchaseCreditsRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	if req.Amount == 0 {
		req.Amount = h.creditPack
	}

	balance, err := h.ledger.Purchase(c.Request.Context(), req.Amount)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCreditAmount) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, PurchaseCreditsResponse{Credits: balance})
}

func profileResponse(p *domain.MerchantProfile) ProfileResponse {
	return ProfileResponse{
		Name:         p.Name,
		LogoURL:      p.LogoURL,
		PaymentLink:  p.PaymentLink,
		Credits:      p.Credits,
		HasGeminiKey: p.GeminiAPIKey != "",
	}
}

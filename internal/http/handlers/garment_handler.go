// Garment HTTP handlers.
//
// This file exposes REST endpoints for the boutique's inventory and the QR
// deep-link resolver:
//   - GET    /garments            (list)
//   - POST   /garments            (create)
//   - GET    /garments/{id}       (fetch)
//   - PUT    /garments/{id}       (update)
//   - DELETE /garments/{id}       (remove)
//   - GET    /garments/resolve    (?id=… deep-link resolution, never 404s)
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/services"
)

// GarmentService defines the inventory operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type GarmentService interface {
	// Create validates and stores a new garment.
	Create(ctx context.Context, g *domain.Garment) (*domain.Garment, error)
	// List returns the full inventory, newest first.
	List(ctx context.Context) ([]domain.Garment, error)
	// Get fetches a garment by ID.
	Get(ctx context.Context, id string) (*domain.Garment, error)
	// Update validates and persists changes to a garment.
	Update(ctx context.Context, g *domain.Garment) error
	// Delete removes a garment from the inventory.
	Delete(ctx context.Context, id string) error
	// Resolve maps a scanned deep-link id to a garment or the landing view.
	Resolve(ctx context.Context, id string) (*services.Resolution, error)
}

// GarmentRequest is the JSON payload for creating or updating a garment.
type GarmentRequest struct {
	// ID optionally fixes the garment id so pre-printed QR labels stay valid.
	ID string `json:"id" example:"qr-dress-001"`
	// Name is the display name shown in the try-on UI.
	Name string `json:"name" binding:"required" example:"Silk Evening Gown"`
	// Description is woven into the generation instruction.
	Description string `json:"description" example:"Midnight blue, draped silhouette"`
	// ImageURL is either a remote URL or an embedded data URI.
	ImageURL string `json:"imageUrl" binding:"required" example:"https://cdn.example.com/gown.jpg"`
	// Price in the boutique's currency.
	Price float64 `json:"price" example:"450"`
	// BoutiqueName labels history snapshots.
	BoutiqueName string `json:"boutiqueName" example:"Lumière Boutique"`
	// ShopURL links the result view back to the product page.
	ShopURL string `json:"shopUrl" example:"https://shop.example.com/gown"`
}

func (r GarmentRequest) garment() *domain.Garment {
	return &domain.Garment{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		ImageURL:     r.ImageURL,
		Price:        r.Price,
		BoutiqueName: r.BoutiqueName,
		ShopURL:      r.ShopURL,
	}
}

// ResolveResponse is the deep-link resolution outcome: a garment on a hit,
// landing=true on a miss.
type ResolveResponse struct {
	Garment *domain.Garment `json:"garment,omitempty"`
	Landing bool            `json:"landing"`
}

// ListGarments godoc
// @ID          listGarments
// @Summary     List the inventory
// @Tags        Garments
// @Produce     json
//
// @Success     200  {array}   domain.Garment
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /garments [get]
func (h *Handlers) ListGarments(c *gin.Context) {
	items, err := h.garmentSvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, items)
}

// CreateGarment godoc
// @ID          createGarment
// @Summary     Add a garment
// @Tags        Garments
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.GarmentRequest  true  "Garment payload"
//
// @Success     201  {object}  domain.Garment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /garments [post]
func (h *Handlers) CreateGarment(c *gin.Context) {
	var req GarmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	g, err := h.garmentSvc.Create(c.Request.Context(), req.garment())
	if err != nil {
		garmentError(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, g)
}

// GetGarment godoc
// @ID          getGarment
// @Summary     Fetch a garment
// @Tags        Garments
// @Produce     json
//
// @Param       id  path  string  true  "Garment ID"
//
// @Success     200  {object}  domain.Garment
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /garments/{id} [get]
func (h *Handlers) GetGarment(c *gin.Context) {
	g, err := h.garmentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		garmentError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, g)
}

// UpdateGarment godoc
// @ID          updateGarment
// @Summary     Update a garment
// @Tags        Garments
// @Accept      json
// @Produce     json
//
// @Param       id    path  string                   true  "Garment ID"
// @Param       body  body  handlers.GarmentRequest  true  "Garment payload"
//
// @Success     200  {object}  domain.Garment
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /garments/{id} [put]
func (h *Handlers) UpdateGarment(c *gin.Context) {
	var req GarmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	g := req.garment()
	g.ID = c.Param("id")
	if err := h.garmentSvc.Update(c.Request.Context(), g); err != nil {
		garmentError(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, g)
}

// DeleteGarment godoc
// @ID          deleteGarment
// @Summary     Remove a garment
// @Description Removes the garment from the inventory. Existing history snapshots keep working.
// @Tags        Garments
//
// @Param       id  path  string  true  "Garment ID"
//
// @Success     204  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /garments/{id} [delete]
func (h *Handlers) DeleteGarment(c *gin.Context) {
	if err := h.garmentSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		garmentError(c, err, ErrCodeInternal)
		return
	}
	noContent(c)
}

// ResolveGarment godoc
// @ID          resolveGarment
// @Summary     Resolve a QR deep link
// @Description Maps a scanned garment id to its garment, degrading to the landing view on a miss. Never returns 404: printed QR labels must keep working.
// @Tags        Garments
// @Produce     json
//
// @Param       id  query  string  false  "Scanned garment ID"
//
// @Success     200  {object}  handlers.ResolveResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /garments/resolve [get]
func (h *Handlers) ResolveGarment(c *gin.Context) {
	r, err := h.garmentSvc.Resolve(c.Request.Context(), c.Query("id"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, ResolveResponse{Garment: r.Garment, Landing: r.Landing})
}

// garmentError maps garment service errors onto HTTP responses.
func garmentError(c *gin.Context, err error, fallbackCode string) {
	switch {
	case errors.Is(err, services.ErrGarmentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "garment not found")
	case errors.Is(err, services.ErrInvalidGarment):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	default:
		fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}

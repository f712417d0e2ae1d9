// Try-on session HTTP handlers.
//
// This file exposes the session-machine endpoints:
//   - POST /tryon/sessions              (open a session, optional deep-link garment)
//   - GET  /tryon/sessions/{id}         (poll state + result)
//   - POST /tryon/sessions/{id}/photo   (submit photo → 202, processing)
//   - POST /tryon/sessions/{id}/cancel  (after the grace period)
//   - POST /tryon/sessions/{id}/retry   (re-run with the same photo)
//   - POST /tryon/sessions/{id}/retake  (drop the photo, keep the garment)
//   - POST /tryon/sessions/{id}/reset   (try another garment)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. A finished attempt is always a
// 200 whose ProcessingResult carries its own success flag and category; HTTP
// errors are reserved for transport and transition problems.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weliakcay/mirrorly-app/internal/http/middleware"
	"github.com/weliakcay/mirrorly-app/internal/imaging"
	"github.com/weliakcay/mirrorly-app/internal/services"
)

//
// Service contracts (context-aware)
//

// TryOnService defines the session-machine operations consumed by HTTP
// handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TryOnService interface {
	// CreateSession opens a new idle session, optionally bound to a garment.
	CreateSession(garmentID string) *services.SessionView
	// GetSession returns the current snapshot of a session.
	GetSession(id string) (*services.SessionView, error)
	// SubmitPhoto captures a photo and starts processing.
	SubmitPhoto(ctx context.Context, id string, photo []byte, mime, garmentID, idemKey string) (*services.SessionView, error)
	// Cancel returns a Processing session to Idle after the grace period.
	Cancel(id string) (*services.SessionView, error)
	// Retry re-runs the pipeline with the captured photo.
	Retry(ctx context.Context, id string) (*services.SessionView, error)
	// Retake clears the photo so the shopper can re-shoot.
	Retake(id string) (*services.SessionView, error)
	// Reset clears everything including the deep-link garment.
	Reset(id string) (*services.SessionView, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for sessions, garments, the profile, and
// history. It depends on abstract service interfaces to keep transport
// concerns separate from business logic.
type Handlers struct {
	tryonSvc   TryOnService
	garmentSvc GarmentService
	profileSvc ProfileService
	ledger     CreditLedger
	historySvc HistoryService

	// creditPack is the default top-up size when a purchase names none.
	creditPack int
}

// New constructs a Handlers instance bound to the given services.
func New(tryonSvc TryOnService, garmentSvc GarmentService, profileSvc ProfileService, ledger CreditLedger, historySvc HistoryService, creditPack int) *Handlers {
	return &Handlers{
		tryonSvc:   tryonSvc,
		garmentSvc: garmentSvc,
		profileSvc: profileSvc,
		ledger:     ledger,
		historySvc: historySvc,
		creditPack: creditPack,
	}
}

//
// DTOs
//

// CreateSessionRequest optionally binds a deep-link garment at session open.
type CreateSessionRequest struct {
	// GarmentID is the scanned QR garment, when the session starts from a
	// deep link.
	GarmentID string `json:"garmentId" example:"qr-dress-001"`
}

// SubmitPhotoRequest carries the shopper's photo as a data URI, the way the
// capture UI produces it from a canvas.
type SubmitPhotoRequest struct {
	// Photo is a data URI (data:image/jpeg;base64,...).
	Photo string `json:"photo" binding:"required"`
	// GarmentID optionally (re)binds the garment for this attempt.
	GarmentID string `json:"garmentId" example:"qr-dress-001"`
}

//
// Handlers
//

// CreateSession godoc
// @ID          createTryOnSession
// @Summary     Open a try-on session
// @Description Opens a new idle session, optionally bound to a deep-link garment.
// @Tags        TryOn
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateSessionRequest  false  "Session options"
//
// @Success     201  {object}  services.SessionView
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Router      /tryon/sessions [post]
func (h *Handlers) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
			return
		}
	}
	ok(c, http.StatusCreated, h.tryonSvc.CreateSession(req.GarmentID))
}

// GetSession godoc
// @ID          getTryOnSession
// @Summary     Poll a try-on session
// @Description Returns the session state and, when finished, its ProcessingResult.
// @Tags        TryOn
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Router      /tryon/sessions/{id} [get]
func (h *Handlers) GetSession(c *gin.Context) {
	v, err := h.tryonSvc.GetSession(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// SubmitPhoto godoc
// @ID          submitTryOnPhoto
// @Summary     Submit the shopper's photo
// @Description Captures the photo and starts the generation pipeline. Responds 202 while processing; poll the session for the result. Repeating a submission with the same Idempotency-Key replays the current state instead of charging a second attempt.
// @Tags        TryOn
// @Accept      json
// @Produce     json
//
// @Param       id               path    string  true   "Session ID"
// @Param       Idempotency-Key  header  string  false  "Deduplicates client retries"
// @Param       body             body    handlers.SubmitPhotoRequest  true  "Photo payload"
//
// @Success     200  {object}  services.SessionView  "Terminal state (gate failure or replay)"
// @Success     202  {object}  services.SessionView  "Processing"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Already processing"
// @Router      /tryon/sessions/{id}/photo [post]
func (h *Handlers) SubmitPhoto(c *gin.Context) {
	var req SubmitPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	payload, err := imaging.ParseDataURI(strings.TrimSpace(req.Photo))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "photo must be a data URI")
		return
	}
	idemKey, _ := middleware.GetIdempotencyKey(c)

	v, err := h.tryonSvc.SubmitPhoto(c.Request.Context(), c.Param("id"), payload.Data, payload.MIME, req.GarmentID, idemKey)
	if err != nil {
		sessionError(c, err)
		return
	}
	status := http.StatusAccepted
	if v.State == services.StateResult {
		status = http.StatusOK
	}
	ok(c, status, v)
}

// CancelSession godoc
// @ID          cancelTryOnSession
// @Summary     Cancel a processing try-on
// @Description Returns the session to idle. Honored only after the grace period; the in-flight generation result is discarded and never charged.
// @Tags        TryOn
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Not processing / too early"
// @Router      /tryon/sessions/{id}/cancel [post]
func (h *Handlers) CancelSession(c *gin.Context) {
	v, err := h.tryonSvc.Cancel(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// RetrySession godoc
// @ID          retryTryOnSession
// @Summary     Retry with the same photo
// @Tags        TryOn
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     202  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "No result to retry from"
// @Router      /tryon/sessions/{id}/retry [post]
func (h *Handlers) RetrySession(c *gin.Context) {
	v, err := h.tryonSvc.Retry(c.Request.Context(), c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	status := http.StatusAccepted
	if v.State == services.StateResult {
		status = http.StatusOK
	}
	ok(c, status, v)
}

// RetakeSession godoc
// @ID          retakeTryOnSession
// @Summary     Retake the photo
// @Description Drops the captured photo and result, keeping the garment.
// @Tags        TryOn
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Still processing"
// @Router      /tryon/sessions/{id}/retake [post]
func (h *Handlers) RetakeSession(c *gin.Context) {
	v, err := h.tryonSvc.Retake(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// ResetSession godoc
// @ID          resetTryOnSession
// @Summary     Try another garment
// @Description Returns the session to idle and clears the deep-link garment.
// @Tags        TryOn
// @Produce     json
//
// @Param       id  path  string  true  "Session ID"
//
// @Success     200  {object}  services.SessionView
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     409  {object}  handlers.ErrorResponse  "Still processing"
// @Router      /tryon/sessions/{id}/reset [post]
func (h *Handlers) ResetSession(c *gin.Context) {
	v, err := h.tryonSvc.Reset(c.Param("id"))
	if err != nil {
		sessionError(c, err)
		return
	}
	ok(c, http.StatusOK, v)
}

// sessionError maps session-machine errors onto HTTP responses.
func sessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
	case errors.Is(err, services.ErrSessionBusy):
		fail(c, http.StatusConflict, ErrCodeSessionBusy, "a try-on is already in progress")
	case errors.Is(err, services.ErrCancelTooEarly):
		fail(c, http.StatusConflict, ErrCodeCancelTooEarly, "cancel is not available yet")
	case errors.Is(err, services.ErrInvalidTransition), errors.Is(err, services.ErrNoPhoto):
		fail(c, http.StatusConflict, ErrCodeInvalidTransition, err.Error())
	case errors.Is(err, services.ErrEmptyPhoto):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "photo is empty")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// History HTTP handlers.
//
// This file exposes the try-on gallery:
//   - GET    /history  (most recent first, capped server-side)
//   - DELETE /history  (explicit clear; nothing else ever removes entries)
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/weliakcay/mirrorly-app/internal/domain"
	"github.com/weliakcay/mirrorly-app/internal/utils"
)

// HistoryService defines the gallery operations consumed by HTTP handlers.
type HistoryService interface {
	// List returns history entries, most recent first.
	List(ctx context.Context) ([]domain.HistoryItem, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
}

// ListHistory godoc
// @ID          listHistory
// @Summary     List the try-on gallery
// @Description Returns successful try-ons, most recent first. The list is capped server-side; garment data is a snapshot that survives inventory edits. An optional limit query trims the response further for small gallery widgets.
// @Tags        History
// @Produce     json
//
// @Param       limit  query  int  false  "Return at most this many entries"
//
// @Success     200  {array}   domain.HistoryItem
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [get]
func (h *Handlers) ListHistory(c *gin.Context) {
	items, err := h.historySvc.List(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if limit := utils.AtoiDefault(c.Query("limit"), 0); limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	ok(c, http.StatusOK, items)
}

// ClearHistory godoc
// @ID          clearHistory
// @Summary     Clear the try-on gallery
// @Tags        History
//
// @Success     204  "No Content"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /history [delete]
func (h *Handlers) ClearHistory(c *gin.Context) {
	if err := h.historySvc.Clear(c.Request.Context()); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

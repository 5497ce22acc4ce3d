// Sync and session HTTP handlers.
//
// This file exposes endpoints for month statistics, cached image retrieval,
// and account switching:
//   - GET  /stats/{month}    (post count, active days, mood histogram)
//   - GET  /images?url=...   (resolve through the two-tier image cache)
//   - POST /images/prefetch  (background warm of a URL list)
//   - POST /session/user     (switch the active account)
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// SwitchUserRequest selects the active diary account.
type SwitchUserRequest struct {
	OwnerID string `json:"owner_id" binding:"required"`
}

// statsPrefetchRadius is how many months on each side of a viewed month get
// warmed in the background, anticipating the user paging through the stats.
const statsPrefetchRadius = 1

// MonthStats handles GET /stats/:month.
func (h *Handlers) MonthStats(c *gin.Context) {
	month := c.Param("month")
	center, err := time.Parse(domain.MonthLayout, month)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "month must be YYYY-MM")
		return
	}
	agg, err := h.engine.Stats.Month(c.Request.Context(), month)
	if err != nil {
		failFromErr(c, err)
		return
	}
	h.engine.Stats.PrefetchAround(c.Request.Context(), center, statsPrefetchRadius)
	ok(c, http.StatusOK, agg)
}

// GetImage handles GET /images?url=... and streams the cached bytes. A miss
// on every tier (network included) is reported as 404.
func (h *Handlers) GetImage(c *gin.Context) {
	if h.engine.Images == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "image cache disabled")
		return
	}
	url := c.Query("url")
	if url == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "url query parameter is required")
		return
	}
	data, okImg := h.engine.Images.Resolve(c.Request.Context(), url)
	if !okImg {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "image unavailable")
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

// PrefetchImagesRequest lists image URLs to warm ahead of rendering, e.g.
// the attachments of the posts about to scroll into view.
type PrefetchImagesRequest struct {
	URLs []string `json:"urls" binding:"required"`
}

// PrefetchImages handles POST /images/prefetch. The warm runs in the
// background with bounded concurrency and best-effort semantics; the
// response only acknowledges that the URLs were queued.
func (h *Handlers) PrefetchImages(c *gin.Context) {
	if h.engine.Images == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "image cache disabled")
		return
	}
	var req PrefetchImagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	// Detached from the request context so the warm outlives the response.
	h.engine.Images.Prefetch(context.WithoutCancel(c.Request.Context()), req.URLs)
	ok(c, http.StatusAccepted, gin.H{"queued": len(req.URLs)})
}

// SwitchUser handles POST /session/user: every cache tier is cleared and
// the engine is rebound to the new account. The caller is expected to
// trigger an initial load afterwards (or rely on lazy loads).
func (h *Handlers) SwitchUser(c *gin.Context) {
	var req SwitchUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	if err := h.engine.SwitchUser(c.Request.Context(), req.OwnerID); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "failed to clear local state")
		return
	}
	ok(c, http.StatusOK, gin.H{"owner_id": req.OwnerID})
}

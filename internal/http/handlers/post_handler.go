// Post HTTP handlers.
//
// This file exposes REST endpoints for the windowed diary post view:
//   - POST   /posts              (create)
//   - GET    /posts              (list by ?date= or ?month=)
//   - GET    /posts/recent       (one post per day, newest first)
//   - GET    /posts/dates        (days with at least one post)
//   - PATCH  /posts/{id}         (partial update)
//   - DELETE /posts/{id}         (delete)
//   - GET    /posts/{id}/detail  (full detail, may be pending)
//   - POST   /window             (recenter the resident month window)
//   - POST   /refresh            (reconcile the window against the backend)
//
// Handlers are transport-thin: they validate input, call the sync engine,
// and translate results into HTTP responses.
package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-diary-sync/internal/domain"
	"github.com/tbourn/go-diary-sync/internal/remote"
	"github.com/tbourn/go-diary-sync/internal/store"
	"github.com/tbourn/go-diary-sync/internal/utils"
)

// Handlers groups the HTTP endpoints of the local sync API. All state lives
// in the injected engine; handlers themselves are stateless.
type Handlers struct {
	engine *store.Engine
}

// New constructs a Handlers instance bound to the given engine.
func New(engine *store.Engine) *Handlers {
	return &Handlers{engine: engine}
}

// pathID parses the :id route parameter as an int64, failing the request
// with 400 when it is not a positive integer.
func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

// failFromErr translates engine and remote errors into the standard envelope.
func failFromErr(c *gin.Context, err error) {
	var conflict *remote.ConflictError
	var netErr *remote.NetworkError
	var refreshErr *store.RefreshError
	switch {
	case errors.Is(err, store.ErrEmptyContent), errors.Is(err, store.ErrBadDate):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, remote.ErrNotAuthenticated):
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "not authenticated with the diary backend")
	case errors.Is(err, store.ErrPostNotFound), errors.Is(err, store.ErrCharacterNotFound), errors.Is(err, remote.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.As(err, &conflict):
		fail(c, http.StatusConflict, ErrCodeConflict, conflict.Detail)
	case errors.As(err, &refreshErr):
		fail(c, http.StatusBadGateway, ErrCodeRefreshPartial, err.Error())
	case errors.As(err, &netErr):
		fail(c, http.StatusBadGateway, ErrCodeUpstreamFailed, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

//
// DTOs
//

// CreatePostRequest is the JSON payload for creating a post.
type CreatePostRequest struct {
	EntryDate   string   `json:"entry_date" binding:"required"`
	Content     string   `json:"content" binding:"required"`
	Mood        string   `json:"mood"`
	Hashtags    []string `json:"hashtags"`
	ImageURLs   []string `json:"image_urls"`
	AIGenerated bool     `json:"ai_generated"`
	CharacterID *int64   `json:"character_id"`
}

// UpdatePostRequest is the JSON payload for a partial post update. Absent
// fields are left untouched.
type UpdatePostRequest struct {
	Content  *string  `json:"content"`
	Mood     *string  `json:"mood"`
	Hashtags []string `json:"hashtags"`
}

// RecenterRequest moves the resident month window.
type RecenterRequest struct {
	Center string `json:"center" binding:"required"` // YYYY-MM-DD
}

// ListPostsResponse wraps a post listing.
type ListPostsResponse struct {
	Posts []domain.Post `json:"posts"`
}

//
// Endpoints
//

// CreatePost handles POST /posts.
func (h *Handlers) CreatePost(c *gin.Context) {
	var req CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	p, err := h.engine.Posts.Create(c.Request.Context(), remote.CreatePostInput{
		EntryDate:   req.EntryDate,
		Content:     req.Content,
		Mood:        req.Mood,
		Hashtags:    req.Hashtags,
		ImageURLs:   req.ImageURLs,
		AIGenerated: req.AIGenerated,
		CharacterID: req.CharacterID,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusCreated, p)
}

// ListPosts handles GET /posts?date=YYYY-MM-DD or GET /posts?month=YYYY-MM.
func (h *Handlers) ListPosts(c *gin.Context) {
	date := c.Query("date")
	month := c.Query("month")
	switch {
	case date != "":
		if _, err := time.Parse(domain.DateLayout, date); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "date must be YYYY-MM-DD")
			return
		}
		ok(c, http.StatusOK, ListPostsResponse{Posts: h.engine.Posts.PostsOn(date)})
	case month != "":
		if _, err := time.Parse(domain.MonthLayout, month); err != nil {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "month must be YYYY-MM")
			return
		}
		ok(c, http.StatusOK, ListPostsResponse{Posts: h.engine.Posts.PostsInMonth(month)})
	default:
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "either date or month query parameter is required")
	}
}

// RecentPosts handles GET /posts/recent?limit=N.
func (h *Handlers) RecentPosts(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)
	if limit < 1 {
		limit = 10
	}
	ok(c, http.StatusOK, ListPostsResponse{Posts: h.engine.Posts.Recent(limit)})
}

// ActiveDates handles GET /posts/dates.
func (h *Handlers) ActiveDates(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"dates": h.engine.Posts.ActiveDates()})
}

// UpdatePost handles PATCH /posts/:id.
func (h *Handlers) UpdatePost(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	var req UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	p, err := h.engine.Posts.Update(c.Request.Context(), id, remote.UpdatePostInput{
		Content:  req.Content,
		Mood:     req.Mood,
		Hashtags: req.Hashtags,
	})
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, p)
}

// DeletePost handles DELETE /posts/:id. The entry date is taken from the
// resident post when available so subscribers can resolve the affected day.
func (h *Handlers) DeletePost(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	dateKey := c.Query("date")
	if p, err := h.engine.Posts.Get(id); err == nil {
		dateKey = p.EntryDate
	}
	if err := h.engine.Posts.Delete(c.Request.Context(), id, dateKey); err != nil {
		failFromErr(c, err)
		return
	}
	noContent(c)
}

// GetDetail handles GET /posts/:id/detail. A pending detail is served with
// status 200; its `status` field tells the client enrichment is still
// running and a change event will follow.
func (h *Handlers) GetDetail(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	d, err := h.engine.Details.Get(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, d)
}

// Recenter handles POST /window.
func (h *Handlers) Recenter(c *gin.Context) {
	var req RecenterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	center, err := time.Parse(domain.DateLayout, req.Center)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "center must be YYYY-MM-DD")
		return
	}
	h.engine.Posts.EnsureWindow(c.Request.Context(), center)
	ok(c, http.StatusOK, gin.H{"months": h.engine.Posts.LoadedMonths()})
}

// Refresh handles POST /refresh. When some months fail the response is 502
// with code refresh_partial; the succeeded months keep their fresh data.
func (h *Handlers) Refresh(c *gin.Context) {
	var req RecenterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON payload: "+err.Error())
		return
	}
	center, err := time.Parse(domain.DateLayout, req.Center)
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "center must be YYYY-MM-DD")
		return
	}
	if err := h.engine.Posts.Refresh(c.Request.Context(), center); err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"months": h.engine.Posts.LoadedMonths()})
}

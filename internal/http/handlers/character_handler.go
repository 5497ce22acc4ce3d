// Character HTTP handlers.
//
// This file exposes REST endpoints for the AI character roster:
//   - GET  /characters               (full roster with relations)
//   - GET  /characters/{id}          (single character)
//   - POST /characters/{id}/follow   (toggle follow state)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// ListCharactersResponse wraps the character roster.
type ListCharactersResponse struct {
	Characters []domain.Character `json:"characters"`
}

// ListCharacters handles GET /characters.
func (h *Handlers) ListCharacters(c *gin.Context) {
	ok(c, http.StatusOK, ListCharactersResponse{Characters: h.engine.Characters.All()})
}

// GetCharacter handles GET /characters/:id.
func (h *Handlers) GetCharacter(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	ch, err := h.engine.Characters.Get(id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, ch)
}

// ToggleFollow handles POST /characters/:id/follow and returns the new
// follow state.
func (h *Handlers) ToggleFollow(c *gin.Context) {
	id, okID := pathID(c)
	if !okID {
		return
	}
	if _, err := h.engine.Characters.Get(id); err != nil {
		failFromErr(c, err)
		return
	}
	following, err := h.engine.Characters.ToggleFollow(c.Request.Context(), id)
	if err != nil {
		failFromErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"character_id": id, "following": following})
}

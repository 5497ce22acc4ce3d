// Package remote defines the contract with the diary backend and its HTTP
// implementation. The backend is an opaque remote source of truth: the sync
// layer only depends on the DataSource interface, and tests substitute an
// in-memory fake.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tbourn/go-diary-sync/internal/domain"
)

// CreatePostInput carries the caller-supplied fields of a new post. The
// backend assigns the id and the canonical creation timestamp.
type CreatePostInput struct {
	OwnerID     string   `json:"owner_id"`
	EntryDate   string   `json:"entry_date"`
	Content     string   `json:"content"`
	Mood        string   `json:"mood"`
	Hashtags    []string `json:"hashtags,omitempty"`
	ImageURLs   []string `json:"image_urls,omitempty"`
	AIGenerated bool     `json:"ai_generated"`
	CharacterID *int64   `json:"character_id,omitempty"`
}

// UpdatePostInput carries a partial update. Nil fields are left untouched.
type UpdatePostInput struct {
	Content  *string  `json:"content,omitempty"`
	Mood     *string  `json:"mood,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

// DataSource is the backend contract consumed by the sync layer. All calls
// are network round-trips that may fail with the package error taxonomy.
type DataSource interface {
	// ListPosts returns the owner's posts with from <= entry_date <= to
	// (inclusive YYYY-MM-DD keys).
	ListPosts(ctx context.Context, ownerID, from, to string) ([]domain.Post, error)

	// GetPostDetail returns the expensive detail projection of one post.
	// The returned detail may still be pending.
	GetPostDetail(ctx context.Context, postID int64) (*domain.PostDetail, error)

	// CreatePost creates a post canonically and returns it with its
	// backend-assigned id.
	CreatePost(ctx context.Context, in CreatePostInput) (*domain.Post, error)

	// UpdatePost applies a partial update and returns the updated post.
	UpdatePost(ctx context.Context, postID int64, in UpdatePostInput) (*domain.Post, error)

	// DeletePost removes a post. Deleting a missing post yields ErrNotFound.
	DeletePost(ctx context.Context, postID int64) error

	// ListCharacters returns the full character reference set.
	ListCharacters(ctx context.Context, ownerID string) ([]domain.Character, error)

	// GetRelation returns the (owner, character) relationship record, or
	// ErrNotFound when the owner never followed the character.
	GetRelation(ctx context.Context, ownerID string, characterID int64) (*domain.CharacterRelation, error)

	// CreateRelation creates the first relationship record for the pair.
	CreateRelation(ctx context.Context, ownerID string, characterID int64, following bool, affinity int) (*domain.CharacterRelation, error)

	// UpdateRelation flips or adjusts an existing relationship record.
	UpdateRelation(ctx context.Context, relationID int64, following bool) (*domain.CharacterRelation, error)
}

// Client is the HTTP implementation of DataSource against the diary backend
// JSON API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a Client for the given base URL and bearer token.
func NewClient(baseURL, token string) *Client {
	return &Client{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		http:  &http.Client{Timeout: 30 * time.Second},
	}
}

// do issues one JSON round-trip. in may be nil for bodyless requests; out may
// be nil when the response body is irrelevant. Status codes are mapped onto
// the package error taxonomy.
func (c *Client) do(ctx context.Context, method, path, scope string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &NetworkError{Scope: scope, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &NetworkError{Scope: scope, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Scope: scope, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrNotAuthenticated
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &ConflictError{Detail: strings.TrimSpace(string(detail))}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return &NetworkError{Scope: scope, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Scope: scope, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// ListPosts implements DataSource.
func (c *Client) ListPosts(ctx context.Context, ownerID, from, to string) ([]domain.Post, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	q.Set("from", from)
	q.Set("to", to)
	var out []domain.Post
	if err := c.do(ctx, http.MethodGet, "/v1/posts?"+q.Encode(), "list posts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPostDetail implements DataSource.
func (c *Client) GetPostDetail(ctx context.Context, postID int64) (*domain.PostDetail, error) {
	var out domain.PostDetail
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/v1/posts/%d/detail", postID), "get post detail", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost implements DataSource.
func (c *Client) CreatePost(ctx context.Context, in CreatePostInput) (*domain.Post, error) {
	var out domain.Post
	if err := c.do(ctx, http.MethodPost, "/v1/posts", "create post", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdatePost implements DataSource.
func (c *Client) UpdatePost(ctx context.Context, postID int64, in UpdatePostInput) (*domain.Post, error) {
	var out domain.Post
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/v1/posts/%d", postID), "update post", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeletePost implements DataSource.
func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/v1/posts/%d", postID), "delete post", nil, nil)
}

// ListCharacters implements DataSource.
func (c *Client) ListCharacters(ctx context.Context, ownerID string) ([]domain.Character, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	var out []domain.Character
	if err := c.do(ctx, http.MethodGet, "/v1/characters?"+q.Encode(), "list characters", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRelation implements DataSource.
func (c *Client) GetRelation(ctx context.Context, ownerID string, characterID int64) (*domain.CharacterRelation, error) {
	q := url.Values{}
	q.Set("owner_id", ownerID)
	var out domain.CharacterRelation
	path := fmt.Sprintf("/v1/characters/%d/relation?%s", characterID, q.Encode())
	if err := c.do(ctx, http.MethodGet, path, "get relation", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateRelation implements DataSource.
func (c *Client) CreateRelation(ctx context.Context, ownerID string, characterID int64, following bool, affinity int) (*domain.CharacterRelation, error) {
	in := map[string]any{
		"owner_id":  ownerID,
		"following": following,
		"affinity":  affinity,
	}
	var out domain.CharacterRelation
	path := fmt.Sprintf("/v1/characters/%d/relation", characterID)
	if err := c.do(ctx, http.MethodPost, path, "create relation", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRelation implements DataSource.
func (c *Client) UpdateRelation(ctx context.Context, relationID int64, following bool) (*domain.CharacterRelation, error) {
	in := map[string]any{"following": following}
	var out domain.CharacterRelation
	path := fmt.Sprintf("/v1/relations/%d", relationID)
	if err := c.do(ctx, http.MethodPatch, path, "update relation", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Fetch downloads the raw bytes behind an absolute URL, typically a post
// image on the CDN. Unlike the API methods it does not send the bearer
// token; image URLs are pre-signed by the backend.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &NetworkError{Scope: "fetch image", Err: err}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Scope: "fetch image", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &NetworkError{Scope: "fetch image", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
	return io.ReadAll(resp.Body)
}

package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

// PostHandler handles HTTP requests related to found-item posts
type PostHandler struct {
	postRepository repositories.PostRepository
}

// NewPostHandler creates a new PostHandler
func NewPostHandler(postRepo repositories.PostRepository) *PostHandler {
	return &PostHandler{postRepository: postRepo}
}

// RegisterPostRoutes registers post-related routes
func (h *PostHandler) RegisterPostRoutes(g *echo.Group) {
	g.POST("/posts", h.CreatePost)
	g.GET("/posts/:id", h.GetPost)
	g.GET("/posts", h.GetPosts) // Get open posts or posts by user (with query param)
	g.DELETE("/posts/:id", h.DeletePost)
}

// CreatePost creates a new found-item post owned by the caller
func (h *PostHandler) CreatePost(c echo.Context) error {
	var req models.CreatePostRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if (req.Lat == nil) != (req.Lng == nil) {
		return apiError(http.StatusBadRequest, "validation_failed", "lat and lng must be given together")
	}

	keywords := make([]string, 0, len(req.Keywords))
	for _, k := range req.Keywords {
		keywords = append(keywords, strings.ToLower(strings.TrimSpace(k)))
	}

	now := time.Now().UTC()
	post := &models.Post{
		UserID:            getUserIDFromContext(c),
		Title:             req.Title,
		Description:       req.Description,
		Category:          req.Category,
		Keywords:          keywords,
		ImageURLs:         req.ImageURLs,
		FoundAt:           req.FoundAt.UTC(),
		Status:            models.PostOpen,
		ChallengeQuestion: req.ChallengeQuestion,
		ChallengeAnswer:   req.ChallengeAnswer,
		Serial:            req.Serial,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.Lat != nil {
		post.Location = models.NewGeoPoint(*req.Lat, *req.Lng)
	}

	if err := h.postRepository.CreatePost(c.Request().Context(), post); err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusCreated, post)
}

// GetPost retrieves a post by ID
func (h *PostHandler) GetPost(c echo.Context) error {
	post, err := h.postRepository.GetPostByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, post)
}

// GetPosts retrieves multiple posts
func (h *PostHandler) GetPosts(c echo.Context) error {
	userID := c.QueryParam("user_id")
	skip, _ := strconv.ParseInt(c.QueryParam("skip"), 10, 64)
	limit, _ := strconv.ParseInt(c.QueryParam("limit"), 10, 64)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if skip < 0 {
		skip = 0
	}

	var (
		posts []models.Post
		err   error
	)
	if userID != "" {
		posts, err = h.postRepository.GetPostsByUserID(c.Request().Context(), userID, skip, limit)
	} else {
		posts, err = h.postRepository.GetAllPosts(c.Request().Context(), skip, limit)
	}
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"posts": posts})
}

// DeletePost deletes a post
func (h *PostHandler) DeletePost(c echo.Context) error {
	postID := c.Param("id")

	existingPost, err := h.postRepository.GetPostByID(c.Request().Context(), postID)
	if err != nil {
		return respondError(err)
	}

	// Ensure the user deleting the post is the owner
	if existingPost.UserID != getUserIDFromContext(c) {
		return apiError(http.StatusForbidden, "forbidden", "You are not authorized to delete this post")
	}

	if err := h.postRepository.DeletePost(c.Request().Context(), postID); err != nil {
		return respondError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

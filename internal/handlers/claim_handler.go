package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/claims"
	"github.com/anonto42/lost-found/backend/internal/models"
	"github.com/anonto42/lost-found/backend/internal/uploads"
)

// ProofUploader issues presigned upload URLs for proof images.
type ProofUploader interface {
	PresignProof(ctx context.Context, claimID, userID, contentType string) (*uploads.Upload, error)
}

// ClaimHandler handles the claim workflow endpoints
type ClaimHandler struct {
	claims   *claims.Service
	uploader ProofUploader
}

// NewClaimHandler creates a new ClaimHandler. uploader may be nil when no
// bucket is configured.
func NewClaimHandler(svc *claims.Service, uploader ProofUploader) *ClaimHandler {
	return &ClaimHandler{claims: svc, uploader: uploader}
}

// RegisterClaimRoutes registers claim routes
func (h *ClaimHandler) RegisterClaimRoutes(g *echo.Group) {
	g.POST("/posts/:id/claims", h.CreateClaim)
	g.GET("/claims", h.ListClaims)
	g.GET("/claims/:id", h.GetClaim)
	g.POST("/claims/:id/decision", h.Decide)
	g.POST("/claims/:id/proof/upload-url", h.ProofUploadURL)
	g.POST("/claims/:id/proof", h.SubmitProof)
	g.POST("/claims/:id/verification", h.Verify)
	g.POST("/claims/:id/handoff", h.GenerateHandoff)
	g.POST("/claims/:id/handoff/confirm", h.ConfirmHandoff)
}

// CreateClaim files a claim against the post in the path
func (h *ClaimHandler) CreateClaim(c echo.Context) error {
	var req models.CreateClaimRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	claim, thread, err := h.claims.Create(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req, fingerprint(c))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"claim": viewClaim(claim, getUserIDFromContext(c)), "thread_id": thread.ID})
}

func (h *ClaimHandler) ListClaims(c echo.Context) error {
	userID := getUserIDFromContext(c)
	list, err := h.claims.List(c.Request().Context(), userID, c.QueryParam("role"))
	if err != nil {
		return respondError(err)
	}
	views := make([]claimView, 0, len(list))
	for i := range list {
		views = append(views, viewClaim(&list[i], userID))
	}
	return c.JSON(http.StatusOK, echo.Map{"claims": views})
}

func (h *ClaimHandler) GetClaim(c echo.Context) error {
	claim, err := h.claims.Get(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, viewClaim(claim, getUserIDFromContext(c)))
}

func (h *ClaimHandler) Decide(c echo.Context) error {
	var req models.DecisionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.claims.Decide(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req.Decision)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, viewClaim(claim, getUserIDFromContext(c)))
}

// ProofUploadURL returns a presigned PUT for the claimant's proof image.
func (h *ClaimHandler) ProofUploadURL(c echo.Context) error {
	if h.uploader == nil {
		return apiError(http.StatusServiceUnavailable, "internal", "Uploads are not configured")
	}
	var req models.ProofUploadRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	userID := getUserIDFromContext(c)
	claim, err := h.claims.Get(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return respondError(err)
	}
	if claim.ClaimantID != userID {
		return respondError(claims.ErrForbidden)
	}

	upload, err := h.uploader.PresignProof(c.Request().Context(), claim.ID, userID, req.ContentType)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, upload)
}

func (h *ClaimHandler) SubmitProof(c echo.Context) error {
	var req models.SubmitProofRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.claims.SubmitProof(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, viewClaim(claim, getUserIDFromContext(c)))
}

func (h *ClaimHandler) Verify(c echo.Context) error {
	var req models.VerificationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.claims.Verify(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, viewClaim(claim, getUserIDFromContext(c)))
}

// GenerateHandoff returns the one-time handoff code. It is never shown again.
func (h *ClaimHandler) GenerateHandoff(c echo.Context) error {
	code, err := h.claims.GenerateHandoff(c.Request().Context(), getUserIDFromContext(c), c.Param("id"))
	if err != nil {
		return respondError(err)
	}
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusCreated, echo.Map{"claim_id": c.Param("id"), "code": code})
}

func (h *ClaimHandler) ConfirmHandoff(c echo.Context) error {
	var req models.ConfirmHandoffRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	claim, err := h.claims.ConfirmHandoff(c.Request().Context(), getUserIDFromContext(c), c.Param("id"), req.Code)
	if err != nil {
		return respondError(err)
	}
	return c.JSON(http.StatusOK, viewClaim(claim, getUserIDFromContext(c)))
}

// claimView is a claim as one participant sees it: the counterparty is
// identified only by role, never by user id.
type claimView struct {
	*models.Claim
	Role string `json:"role"`
}

func viewClaim(claim *models.Claim, userID string) claimView {
	role := "claimant"
	if claim.FinderID == userID {
		role = "finder"
	}
	return claimView{Claim: claim, Role: role}
}

// fingerprint is a one-way digest of the caller's address and user agent,
// kept on the claim for abuse review.
func fingerprint(c echo.Context) string {
	sum := sha256.Sum256([]byte(c.RealIP() + "|" + c.Request().UserAgent()))
	return hex.EncodeToString(sum[:])
}

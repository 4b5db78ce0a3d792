package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/anonto42/lost-found/backend/internal/chat"
	"github.com/anonto42/lost-found/backend/internal/claims"
	"github.com/anonto42/lost-found/backend/internal/repositories"
)

var errMailFailed = errors.New("could not send email")

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable maps domain errors to responses. First match wins.
var errorTable = []errorMapping{
	{claims.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{chat.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{claims.ErrNotFound, http.StatusNotFound, "not_found"},
	{chat.ErrNotFound, http.StatusNotFound, "not_found"},
	{repositories.ErrNotFound, http.StatusNotFound, "not_found"},
	{claims.ErrForbidden, http.StatusForbidden, "forbidden"},
	{chat.ErrForbidden, http.StatusForbidden, "forbidden"},
	{claims.ErrSelfClaim, http.StatusForbidden, "self_claim"},
	{claims.ErrDuplicateClaim, http.StatusConflict, "duplicate_claim"},
	{claims.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{claims.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{claims.ErrClaimNotApproved, http.StatusForbidden, "claim_not_approved"},
	{claims.ErrHandoffAlreadyGenerated, http.StatusConflict, "handoff_already_generated"},
	{claims.ErrInvalidHandoffCode, http.StatusBadRequest, "invalid_handoff_code"},
	{chat.ErrThreadClosed, http.StatusConflict, "thread_closed"},
	{chat.ErrAttachmentsDisabled, http.StatusForbidden, "attachments_disabled"},
	{chat.ErrEmptyMessage, http.StatusBadRequest, "validation_failed"},
	{claims.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{errMailFailed, http.StatusBadGateway, "mail_failed"},
}

func apiError(status int, code, message string) *echo.HTTPError {
	return echo.NewHTTPError(status, echo.Map{"error": code, "message": message})
}

// respondError turns err into an HTTP error. Unknown errors become a 500
// and are logged; their text is not sent to the client.
func respondError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return apiError(m.status, m.code, err.Error())
		}
	}
	slog.Error("request failed", "error", err)
	return apiError(http.StatusInternalServerError, "internal", "Internal server error")
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return apiError(http.StatusBadRequest, "validation_failed", "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return apiError(http.StatusBadRequest, "validation_failed", err.Error())
	}
	return nil
}

// HTTPErrorHandler renders every error as {"error": code, "message": text},
// including the plain-string errors raised by middleware and routing.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := respondError(err).(*echo.HTTPError)
	if !ok {
		he = apiError(http.StatusInternalServerError, "internal", "Internal server error")
	}

	body := he.Message
	if msg, isString := body.(string); isString {
		body = echo.Map{"error": codeForStatus(he.Code), "message": msg}
	}
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, body)
	}
	if err != nil {
		slog.Warn("error response not written", "error", err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_failed"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	}
	if status >= 500 {
		return "internal"
	}
	return strings.ReplaceAll(strings.ToLower(http.StatusText(status)), " ", "_")
}

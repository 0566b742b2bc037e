package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/namtang/stopmap/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, not_ready, internal_error
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errNotReady returns a 503 error.
func errNotReady(c *fiber.Ctx) error {
	c.Set("Retry-After", "1")
	return newError(c, 503, "not_ready", domain.ErrNotReady.Error())
}

// errFromDomain maps core errors onto the APIError envelope.
func errFromDomain(c *fiber.Ctx, err error) error {
	var qe *domain.QueryError
	switch {
	case errors.Is(err, domain.ErrNotReady):
		return errNotReady(c)
	case errors.Is(err, domain.ErrClusterNotFound):
		return errNotFound(c, err.Error())
	case errors.As(err, &qe):
		return errBadRequest(c, qe.Error())
	case domain.IsCancelled(err):
		// The client is gone; the status is never seen.
		return newError(c, 499, "cancelled", "request cancelled")
	default:
		LoggerFromCtx(c.UserContext()).Error("request failed", "error", err)
		return errInternal(c, err.Error())
	}
}

// StopsResponse is the envelope of the stop filter endpoints.
type StopsResponse struct {
	OK    bool           `json:"ok"`
	Count int            `json:"count"`
	Data  []domain.Point `json:"data"`
	Error string         `json:"error,omitempty"`
}

// stopsError writes the {ok:false,error} form of StopsResponse.
func stopsError(c *fiber.Ctx, err error) error {
	status := 500
	var qe *domain.QueryError
	switch {
	case errors.Is(err, domain.ErrNotReady):
		status = 503
		c.Set("Retry-After", "1")
	case errors.As(err, &qe):
		status = 400
	}
	c.Set("Cache-Control", "no-store")
	return c.Status(status).JSON(fiber.Map{"ok": false, "error": err.Error()})
}

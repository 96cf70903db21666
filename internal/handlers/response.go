package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/validation"
	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultCreditLimit = 10
	defaultAuditLimit  = 20
	maxLimit           = 100
)

func statusOf(kind services.Kind) int {
	switch kind {
	case services.KindValidation, services.KindBusinessRule:
		return fiber.StatusBadRequest
	case services.KindAuth:
		return fiber.StatusUnauthorized
	case services.KindAuthorization:
		return fiber.StatusForbidden
	case services.KindNotFound:
		return fiber.StatusNotFound
	case services.KindConflict:
		return fiber.StatusConflict
	case services.KindLedgerRejected:
		return fiber.StatusBadGateway
	case services.KindLedgerTimeout:
		return fiber.StatusGatewayTimeout
	case services.KindLedgerUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

// fail writes err as an error body. 500s are logged and sent to Sentry, and
// only persistence failures keep their message.
func fail(c *fiber.Ctx, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		return serverError(c, err, "Internal server error")
	}
	status := statusOf(svcErr.Kind)
	switch {
	case status == fiber.StatusInternalServerError:
		return serverError(c, err, svcErr.Message)
	case status > fiber.StatusInternalServerError:
		slog.Warn("ledger request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(dto.NewError(svcErr.Message, svcErr.Details...))
}

func serverError(c *fiber.Ctx, err error, message string) error {
	slog.Error("request failed",
		"request_id", c.GetRespHeader(fiber.HeaderXRequestID),
		"method", c.Method(),
		"path", c.Path(),
		"error", err,
	)
	if hub := sentryfiber.GetHubFromContext(c); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	if services.KindOf(err) != services.KindPersistence {
		message = "Internal server error"
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.NewError(message))
}

func badRequest(c *fiber.Ctx, message string, details ...validation.FieldError) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.NewError(message, details...))
}

// parsePage reads page and limit query values. page defaults to 1 and limit
// to def; limit may not exceed 100.
func parsePage(c *fiber.Ctx, def int) (repository.Page, []validation.FieldError) {
	var details []validation.FieldError
	page, limit := 1, def
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			details = append(details, validation.FieldError{Field: "page", Message: "page must be a positive integer"})
		} else {
			page = n
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxLimit {
			details = append(details, validation.FieldError{Field: "limit", Message: "limit must be between 1 and 100"})
		} else {
			limit = n
		}
	}
	return repository.Page{Number: page, Size: limit}, details
}

func parseCreditID(c *fiber.Ctx, param string) (int64, bool) {
	n, err := strconv.ParseInt(c.Params(param), 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// ErrorHandler is the Fiber fallback for errors no handler wrote itself.
// Details of 5xx errors are never exposed.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	if code >= fiber.StatusInternalServerError {
		slog.Error("unhandled server error", "method", c.Method(), "path", c.Path(), "error", err.Error())
		message = "Internal server error"
	}
	return c.Status(code).JSON(dto.NewError(message))
}

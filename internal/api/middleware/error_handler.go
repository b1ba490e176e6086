package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/ponto/internal/domain"
)

// ErrorHandler renders every error as a domain.ErrorBody. A duplicate record
// additionally carries the conflicting record under "conflict" so terminals
// can mark exactly that event.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return writeError(c, fiberErr.Code, domain.ErrorDetail{
				Code:    "HTTP_ERROR",
				Message: fiberErr.Message,
			})
		}

		var appErr *domain.AppError
		if !errors.As(err, &appErr) {
			logger.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Path()),
			)
			appErr = domain.ErrInternal
		} else if appErr.StatusCode >= 500 {
			logger.Error("internal error",
				slog.String("code", appErr.Code),
				slog.Any("error", appErr.Err),
				slog.String("path", c.Path()),
			)
		}

		return writeError(c, appErr.StatusCode, domain.ErrorDetail{
			Code:     appErr.Code,
			Message:  appErr.Message,
			Conflict: appErr.Conflict,
		})
	}
}

func writeError(c *fiber.Ctx, status int, detail domain.ErrorDetail) error {
	return c.Status(status).JSON(domain.ErrorBody{Error: detail})
}

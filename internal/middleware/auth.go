package middleware

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/identity"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func JWTProtected(cfg *config.Config) fiber.Handler {
	return jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{Key: []byte(cfg.JWTSecret)},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.NewError("Unauthorized: invalid or expired token"))
		},
	})
}

// UserLoader is the slice of AuthService the middleware needs.
type UserLoader interface {
	ActiveUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LoadUser resolves the token subject to an active user and stores it for
// handlers. It must run after JWTProtected.
func LoadUser(users UserLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := identity.GetUserID(c)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.NewError("Unauthorized"))
		}
		user, err := users.ActiveUser(c.UserContext(), id)
		switch {
		case err == nil:
		case errors.Is(err, services.ErrAccountInactive):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.NewError("Account is deactivated"))
		case errors.Is(err, services.ErrUserNotFound):
			return c.Status(fiber.StatusUnauthorized).JSON(dto.NewError("Unauthorized: user no longer exists"))
		default:
			slog.Error("failed to load current user", "user_id", id.String(), "error", err)
			return c.Status(fiber.StatusInternalServerError).JSON(dto.NewError("Internal server error"))
		}
		identity.SetUser(c, user)
		return c.Next()
	}
}

// RequireRoles rejects callers whose role is not listed.
func RequireRoles(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := identity.CurrentUser(c)
		if user == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.NewError("Unauthorized"))
		}
		for _, r := range roles {
			if user.Role == r {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(dto.NewError("Insufficient permissions for this action"))
	}
}

// Package identity carries the authenticated caller through Fiber locals.
package identity

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenKey = "user"
	userKey  = "current_user"
)

// GetUserID extracts the user UUID from JWT claims in context.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals(tokenKey).(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}

	return uuid.Parse(sub)
}

// SetUser stores the loaded caller for downstream handlers.
func SetUser(c *fiber.Ctx, user *models.User) {
	c.Locals(userKey, user)
}

// CurrentUser returns the caller stored by SetUser, or nil.
func CurrentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(userKey).(*models.User)
	return user
}

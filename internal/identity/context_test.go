package identity

import (
	"net/http/httptest"
	"testing"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetUserIDFromClaims(t *testing.T) {
	id := uuid.New()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		c.Locals("user", jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": id.String()}))
		got, err := GetUserID(c)
		require.NoError(t, err)
		assert.Equal(t, id, got)
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestGetUserIDWithoutToken(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		_, err := GetUserID(c)
		assert.Error(t, err)
		assert.Nil(t, CurrentUser(c))

		SetUser(c, &models.User{Username: "alice"})
		assert.Equal(t, "alice", CurrentUser(c).Username)
		return c.SendStatus(fiber.StatusOK)
	})

	_, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
}

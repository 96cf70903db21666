package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMiddlewareLabelsByRoute(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware())
	app.Get("/metrics", Handler())
	app.Get("/api/credits/:id", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/credits/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	body := scrape(t, app)
	assert.Contains(t, body, `hydrogen_credits_http_requests_total{method="GET",path="/api/credits/:id",status="204"}`)
	assert.NotContains(t, body, `path="/api/credits/abc"`)
}

func TestRecordLedgerCall(t *testing.T) {
	app := fiber.New()
	app.Get("/metrics", Handler())

	RecordLedgerCall("retireCredit", "rejected", 0)
	RecordLedgerCall("retireCredit", "rejected", time.Second)
	assert.Contains(t, scrape(t, app), `hydrogen_credits_ledger_calls_total{method="retireCredit",outcome="rejected"} 2`)
}

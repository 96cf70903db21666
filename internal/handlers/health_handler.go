package handlers

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	store   repository.Store
	chain   *services.BlockchainService
	version string
}

func NewHealthHandler(store repository.Store, chain *services.BlockchainService, version string) *HealthHandler {
	return &HealthHandler{store: store, chain: chain, version: version}
}

func (h *HealthHandler) Check(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	status := "ok"
	dbStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status = "degraded"
		dbStatus = "unhealthy: " + err.Error()
	}
	ledgerStatus := "ok"
	if _, err := h.chain.Network(ctx); err != nil {
		status = "degraded"
		ledgerStatus = "unhealthy: " + err.Error()
	}

	return c.JSON(dto.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		DB:        dbStatus,
		Ledger:    ledgerStatus,
		Version:   h.version,
	})
}

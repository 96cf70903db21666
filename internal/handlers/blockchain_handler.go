package handlers

import (
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/validation"
	"github.com/gofiber/fiber/v2"
)

// BlockchainHandler proxies read-only ledger queries.
type BlockchainHandler struct {
	chain *services.BlockchainService
}

func NewBlockchainHandler(chain *services.BlockchainService) *BlockchainHandler {
	return &BlockchainHandler{chain: chain}
}

func (h *BlockchainHandler) Network(c *fiber.Ctx) error {
	info, err := h.chain.Network(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"network": info})
}

func (h *BlockchainHandler) Transaction(c *fiber.Ctx) error {
	st, err := h.chain.Transaction(c.UserContext(), c.Params("txHash"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"transaction": st})
}

func (h *BlockchainHandler) Credit(c *fiber.Ctx) error {
	id, ok := parseCreditID(c, "creditId")
	if !ok {
		return badRequest(c, "Invalid credit ID")
	}

	info, err := h.chain.Credit(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"credit": info})
}

func (h *BlockchainHandler) Balance(c *fiber.Ctx) error {
	id, ok := parseCreditID(c, "creditId")
	if !ok {
		return badRequest(c, "Invalid credit ID")
	}
	address := c.Params("address")

	bal, err := h.chain.Balance(c.UserContext(), address, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"address": address, "creditId": id, "balance": bal})
}

func (h *BlockchainHandler) TotalCredits(c *fiber.Ctx) error {
	total, err := h.chain.TotalCredits(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"totalCredits": total})
}

func (h *BlockchainHandler) UserCredits(c *fiber.Ctx) error {
	address := c.Params("address")
	kind := c.Query("type", "consumer")

	ids, err := h.chain.UserCredits(c.UserContext(), address, kind)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"address": address, "type": kind, "creditIds": ids})
}

func (h *BlockchainHandler) Role(c *fiber.Ctx) error {
	address, role := c.Params("address"), c.Params("role")

	ok, err := h.chain.HasRole(c.UserContext(), address, role)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"address": address, "role": role, "hasRole": ok})
}

func (h *BlockchainHandler) Events(c *fiber.Ctx) error {
	filter, err := services.ParseEventFilter(c.Query("eventName"), c.Query("fromBlock"), c.Query("toBlock"))
	if err != nil {
		return fail(c, err)
	}

	events, err := h.chain.Events(c.UserContext(), filter)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

func (h *BlockchainHandler) Verify(c *fiber.Ctx) error {
	var req dto.LedgerVerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if details := validation.Struct(&req); len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}

	valid, err := h.chain.Verify(c.UserContext(), *req.CreditID, req.MetadataHash)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"creditId": *req.CreditID, "metadataHash": req.MetadataHash, "isValid": valid})
}

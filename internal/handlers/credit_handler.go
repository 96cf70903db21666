package handlers

import (
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/identity"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/gofiber/fiber/v2"
)

type CreditHandler struct {
	creditService *services.CreditService
}

func NewCreditHandler(creditService *services.CreditService) *CreditHandler {
	return &CreditHandler{creditService: creditService}
}

func (h *CreditHandler) Issue(c *fiber.Ctx) error {
	var req dto.IssueCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.creditService.IssueCredit(c.UserContext(), identity.CurrentUser(c), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.IssueCreditResponse{
		Message:         "Credit issued successfully",
		CreditID:        res.Credit.CreditID,
		TransactionHash: res.Receipt.TxHash,
		Credit:          dto.NewCreditSummary(res.Credit),
	})
}

func (h *CreditHandler) Transfer(c *fiber.Ctx) error {
	var req dto.TransferCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.creditService.TransferCredit(c.UserContext(), identity.CurrentUser(c), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.TransferCreditResponse{
		Message:         "Credit transferred successfully",
		TransactionHash: res.Receipt.TxHash,
		Credit: dto.TransferOf{
			ID:         res.Credit.ID,
			CreditID:   res.Credit.CreditID,
			NewBalance: res.Credit.CurrentBalance,
			Recipient:  dto.NewPublicUser(res.Recipient),
		},
	})
}

func (h *CreditHandler) Retire(c *fiber.Ctx) error {
	var req dto.RetireCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	res, err := h.creditService.RetireCredit(c.UserContext(), identity.CurrentUser(c), &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.RetireCreditResponse{
		Message:         "Credit retired successfully",
		TransactionHash: res.Receipt.TxHash,
		Credit: dto.RetiredOf{
			ID:            res.Credit.ID,
			CreditID:      res.Credit.CreditID,
			RetiredAmount: res.Amount,
			Reason:        res.Credit.RetirementDetails.Reason,
		},
	})
}

func (h *CreditHandler) MyCredits(c *fiber.Ctx) error {
	page, details := parsePage(c, defaultCreditLimit)
	if len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}

	credits, total, err := h.creditService.ListOwned(c.UserContext(), identity.CurrentUser(c), c.Query("status"), page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.CreditListResponse{
		Credits:    dto.NewCreditSummaries(credits),
		Pagination: dto.NewPagination(page.Number, page.Size, total).OfCredits(),
	})
}

func (h *CreditHandler) ProducedCredits(c *fiber.Ctx) error {
	page, details := parsePage(c, defaultCreditLimit)
	if len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}

	credits, total, err := h.creditService.ListProduced(c.UserContext(), identity.CurrentUser(c), page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.CreditListResponse{
		Credits:    dto.NewCreditSummaries(credits),
		Pagination: dto.NewPagination(page.Number, page.Size, total).OfCredits(),
	})
}

func (h *CreditHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.creditService.Statistics(c.UserContext())
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"statistics": stats})
}

func (h *CreditHandler) Get(c *fiber.Ctx) error {
	credit, err := h.creditService.GetCredit(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"credit": credit})
}

func (h *CreditHandler) History(c *fiber.Ctx) error {
	history, credit, err := h.creditService.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.CreditHistoryResponse{
		CreditID:         credit.CreditID,
		OwnershipHistory: history,
	})
}

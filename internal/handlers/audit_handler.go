package handlers

import (
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/identity"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type AuditHandler struct {
	auditService *services.AuditService
}

func NewAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

func (h *AuditHandler) Credits(c *fiber.Ctx) error {
	page, details := parsePage(c, defaultAuditLimit)
	if len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}
	q := services.AuditCreditQuery{
		Status:     c.Query("status"),
		SourceType: c.Query("sourceType"),
		Producer:   c.Query("producer"),
		Certifier:  c.Query("certifier"),
	}

	credits, total, err := h.auditService.ListCredits(c.UserContext(), identity.CurrentUser(c), q, page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(dto.AuditCreditListResponse{
		Credits:    credits,
		Pagination: dto.NewPagination(page.Number, page.Size, total).OfCredits(),
	})
}

func (h *AuditHandler) Credit(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid credit ID")
	}

	credit, err := h.auditService.GetCreditAudit(c.UserContext(), identity.CurrentUser(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"credit":             credit,
		"ownershipHistory":   credit.OwnershipHistory,
		"retirementDetails":  credit.RetirementDetails,
		"verificationStatus": credit.VerificationStatus,
	})
}

func (h *AuditHandler) Verify(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return badRequest(c, "Invalid credit ID")
	}
	var req dto.VerifyCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	credit, err := h.auditService.SetVerification(c.UserContext(), identity.CurrentUser(c), id, &req)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"message":            "Credit verification status updated successfully",
		"verificationStatus": credit.VerificationStatus,
	})
}

func (h *AuditHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.auditService.Statistics(c.UserContext(), identity.CurrentUser(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(stats)
}

func (h *AuditHandler) BlockchainEvents(c *fiber.Ctx) error {
	events, err := h.auditService.LedgerEvents(c.UserContext(), identity.CurrentUser(c),
		c.Query("eventName"), c.Query("fromBlock"), c.Query("toBlock"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"events": events})
}

func (h *AuditHandler) Users(c *fiber.Ctx) error {
	page, details := parsePage(c, defaultAuditLimit)
	if len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}

	audit, err := h.auditService.ListUsers(c.UserContext(), identity.CurrentUser(c),
		c.Query("role"), c.Query("isVerified"), page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"users":          audit.Users,
		"roleStatistics": audit.RoleStats,
		"pagination":     dto.NewPagination(page.Number, page.Size, audit.Total).OfUsers(),
	})
}

func (h *AuditHandler) Operations(c *fiber.Ctx) error {
	page, details := parsePage(c, defaultAuditLimit)
	if len(details) > 0 {
		return badRequest(c, "Validation failed", details...)
	}

	ops, total, err := h.auditService.ListOperations(c.UserContext(), identity.CurrentUser(c),
		c.Query("status"), c.Query("kind"), page)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{
		"operations": ops,
		"pagination": dto.NewPagination(page.Number, page.Size, total).OfOperations(),
	})
}

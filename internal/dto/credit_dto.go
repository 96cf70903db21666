package dto

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/google/uuid"
)

type IssueCreditRequest struct {
	ProducerAddress     string          `json:"producerAddress" validate:"required,eth_addr"`
	RenewableSourceType string          `json:"renewableSourceType" validate:"required,oneof=Solar Wind Hydro Geothermal Biomass Other"`
	HydrogenAmount      int64           `json:"hydrogenAmount" validate:"gt=0"`
	CreditAmount        int64           `json:"creditAmount" validate:"gt=0"`
	DetailedMetadata    models.Metadata `json:"detailedMetadata"`
	Tags                []string        `json:"tags" validate:"omitempty,max=20,dive,max=50"`
	Notes               string          `json:"notes" validate:"max=2000"`
}

type TransferCreditRequest struct {
	ToAddress string `json:"toAddress" validate:"required,eth_addr"`
	CreditID  *int64 `json:"creditId" validate:"required,gte=0"`
	Amount    int64  `json:"amount" validate:"gt=0"`
}

type RetireCreditRequest struct {
	CreditID *int64 `json:"creditId" validate:"required,gte=0"`
	Amount   int64  `json:"amount" validate:"gt=0"`
	Reason   string `json:"reason" validate:"required,max=500"`
}

type VerifyCreditRequest struct {
	IsVerified        *bool  `json:"isVerified" validate:"required"`
	VerificationNotes string `json:"verificationNotes" validate:"max=1000"`
}

type LedgerVerifyRequest struct {
	CreditID     *int64 `json:"creditId" validate:"required,gte=0"`
	MetadataHash string `json:"metadataHash" validate:"required"`
}

type IssueCreditResponse struct {
	Message         string        `json:"message"`
	CreditID        int64         `json:"creditId"`
	TransactionHash string        `json:"transactionHash"`
	Credit          CreditSummary `json:"credit"`
}

type TransferCreditResponse struct {
	Message         string     `json:"message"`
	TransactionHash string     `json:"transactionHash"`
	Credit          TransferOf `json:"credit"`
}

type TransferOf struct {
	ID         uuid.UUID  `json:"id"`
	CreditID   int64      `json:"creditId"`
	NewBalance int64      `json:"newBalance"`
	Recipient  PublicUser `json:"recipient"`
}

type RetireCreditResponse struct {
	Message         string    `json:"message"`
	TransactionHash string    `json:"transactionHash"`
	Credit          RetiredOf `json:"credit"`
}

type RetiredOf struct {
	ID            uuid.UUID `json:"id"`
	CreditID      int64     `json:"creditId"`
	RetiredAmount int64     `json:"retiredAmount"`
	Reason        string    `json:"reason"`
}

// CreditSummary is the list view of a credit.
type CreditSummary struct {
	ID                  uuid.UUID           `json:"id"`
	CreditID            int64               `json:"creditId"`
	Producer            uuid.UUID           `json:"producer"`
	Certifier           uuid.UUID           `json:"certifier"`
	RenewableSourceType models.SourceType   `json:"renewableSourceType"`
	HydrogenAmount      int64               `json:"hydrogenAmount"`
	CreditAmount        int64               `json:"creditAmount"`
	CurrentOwner        uuid.UUID           `json:"currentOwner"`
	CurrentBalance      int64               `json:"currentBalance"`
	Status              models.CreditStatus `json:"status"`
	IsRetired           bool                `json:"isRetired"`
	CreatedAt           time.Time           `json:"createdAt"`
}

func NewCreditSummary(c *models.Credit) CreditSummary {
	return CreditSummary{
		ID:                  c.ID,
		CreditID:            c.CreditID,
		Producer:            c.ProducerID,
		Certifier:           c.CertifierID,
		RenewableSourceType: c.SourceType,
		HydrogenAmount:      c.HydrogenAmount,
		CreditAmount:        c.CreditAmount,
		CurrentOwner:        c.CurrentOwnerID,
		CurrentBalance:      c.CurrentBalance,
		Status:              c.Status,
		IsRetired:           c.IsRetired,
		CreatedAt:           c.CreatedAt,
	}
}

func NewCreditSummaries(credits []models.Credit) []CreditSummary {
	out := make([]CreditSummary, 0, len(credits))
	for i := range credits {
		out = append(out, NewCreditSummary(&credits[i]))
	}
	return out
}

type CreditListResponse struct {
	Credits    []CreditSummary `json:"credits"`
	Pagination Pagination      `json:"pagination"`
}

type AuditCreditListResponse struct {
	Credits    []models.Credit `json:"credits"`
	Pagination Pagination      `json:"pagination"`
}

type CreditHistoryResponse struct {
	CreditID         int64                 `json:"creditId"`
	OwnershipHistory []models.HistoryEntry `json:"ownershipHistory"`
}

// CreditStatistics is the summary shown to every participant.
type CreditStatistics struct {
	TotalCredits   int64 `json:"totalCredits"`
	TotalHydrogen  int64 `json:"totalHydrogen"`
	ActiveCredits  int64 `json:"activeCredits"`
	RetiredCredits int64 `json:"retiredCredits"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OperationKind string

const (
	OperationIssue    OperationKind = "ISSUE"
	OperationTransfer OperationKind = "TRANSFER"
	OperationRetire   OperationKind = "RETIRE"
)

func (k OperationKind) Valid() bool {
	switch k {
	case OperationIssue, OperationTransfer, OperationRetire:
		return true
	}
	return false
}

type OperationStatus string

const (
	OperationPending        OperationStatus = "PENDING"
	OperationSubmitted      OperationStatus = "SUBMITTED"
	OperationConfirmed      OperationStatus = "CONFIRMED"
	OperationFailed         OperationStatus = "FAILED"
	OperationNeedsReconcile OperationStatus = "NEEDS_RECONCILE"
	OperationReconciled     OperationStatus = "RECONCILED"
)

func (s OperationStatus) Valid() bool {
	switch s {
	case OperationPending, OperationSubmitted, OperationConfirmed,
		OperationFailed, OperationNeedsReconcile, OperationReconciled:
		return true
	}
	return false
}

// LedgerOperation is the intent record written before every ledger write. It
// lets the reconciler finish mutations whose local confirmation was lost.
type LedgerOperation struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        OperationKind   `gorm:"size:20;not null;index" json:"kind"`
	CreditID    *int64          `gorm:"index" json:"creditId,omitempty"`
	ActorID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"actorId"`
	Payload     datatypes.JSON  `json:"payload"`
	Status      OperationStatus `gorm:"size:20;not null;index" json:"status"`
	TxHash      string          `gorm:"size:66;index" json:"txHash,omitempty"`
	BlockNumber uint64          `json:"blockNumber,omitempty"`
	Error       string          `gorm:"type:text" json:"error,omitempty"`
	Attempts    int             `gorm:"not null" json:"attempts"`
	CreatedAt   time.Time       `gorm:"index" json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func (o *LedgerOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// IssuePayload is stored with ISSUE operations.
type IssuePayload struct {
	ProducerID     uuid.UUID  `json:"producerId"`
	CertifierID    uuid.UUID  `json:"certifierId"`
	SourceType     SourceType `json:"renewableSourceType"`
	HydrogenAmount int64      `json:"hydrogenAmount"`
	CreditAmount   int64      `json:"creditAmount"`
	MetadataHash   string     `json:"metadataHash"`
	Metadata       Metadata   `json:"detailedMetadata"`
}

// TransferPayload is stored with TRANSFER operations.
type TransferPayload struct {
	SenderID    uuid.UUID `json:"senderId"`
	RecipientID uuid.UUID `json:"recipientId"`
	Amount      int64     `json:"amount"`
}

// RetirePayload is stored with RETIRE operations.
type RetirePayload struct {
	HolderID uuid.UUID `json:"holderId"`
	Amount   int64     `json:"amount"`
	Reason   string    `json:"reason"`
}

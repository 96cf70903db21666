package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SourceType string

const (
	SourceSolar      SourceType = "Solar"
	SourceWind       SourceType = "Wind"
	SourceHydro      SourceType = "Hydro"
	SourceGeothermal SourceType = "Geothermal"
	SourceBiomass    SourceType = "Biomass"
	SourceOther      SourceType = "Other"
)

var SourceTypes = []SourceType{SourceSolar, SourceWind, SourceHydro, SourceGeothermal, SourceBiomass, SourceOther}

func ParseSourceType(s string) (SourceType, error) {
	for _, st := range SourceTypes {
		if strings.EqualFold(string(st), s) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown renewable source type %q", s)
}

type CreditStatus string

const (
	StatusIssued      CreditStatus = "ISSUED"
	StatusTransferred CreditStatus = "TRANSFERRED"
	StatusRetired     CreditStatus = "RETIRED"
	StatusExpired     CreditStatus = "EXPIRED"
)

var CreditStatuses = []CreditStatus{StatusIssued, StatusTransferred, StatusRetired, StatusExpired}

func ParseCreditStatus(s string) (CreditStatus, error) {
	st := CreditStatus(strings.ToUpper(s))
	for _, known := range CreditStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown credit status %q", s)
}

type HistoryType string

const (
	HistoryIssue    HistoryType = "ISSUE"
	HistoryTransfer HistoryType = "TRANSFER"
	HistoryRetire   HistoryType = "RETIRE"
)

// HistoryEntry records one lifecycle step. Amount is the owner balance after
// the step; Delta is the quantity moved by it.
type HistoryEntry struct {
	Type            HistoryType `json:"type"`
	Owner           uuid.UUID   `json:"owner"`
	OwnerAddress    string      `json:"ownerAddress"`
	Amount          int64       `json:"amount"`
	Delta           int64       `json:"delta"`
	TransactionHash string      `json:"transactionHash"`
	Timestamp       time.Time   `json:"timestamp"`
}

// Holding mirrors the per-address balance kept by the settlement contract.
type Holding struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

type RetirementDetails struct {
	RetiredBy      *uuid.UUID `gorm:"type:uuid" json:"retiredBy,omitempty"`
	RetirementDate *time.Time `json:"retirementDate,omitempty"`
	Reason         string     `gorm:"type:text" json:"retirementReason,omitempty"`
	TxHash         string     `gorm:"size:66" json:"retirementTxHash,omitempty"`
	Amount         int64      `json:"amount,omitempty"`
}

type VerificationStatus struct {
	IsVerified        bool       `json:"isVerified"`
	VerifiedBy        *uuid.UUID `gorm:"type:uuid" json:"verifiedBy,omitempty"`
	VerificationDate  *time.Time `json:"verificationDate,omitempty"`
	VerificationNotes string     `gorm:"type:text" json:"verificationNotes,omitempty"`
}

// Credit is the off-ledger document mirroring one ledger credit.
type Credit struct {
	ID                  uuid.UUID                         `gorm:"type:uuid;primaryKey" json:"id"`
	CreditID            int64                             `gorm:"not null;uniqueIndex" json:"creditId"`
	BlockchainTxHash    string                            `gorm:"size:66;not null;uniqueIndex" json:"blockchainTxHash"`
	ProducerID          uuid.UUID                         `gorm:"type:uuid;not null;index" json:"producer"`
	ProducerAddress     string                            `gorm:"size:42;not null" json:"producerAddress"`
	CertifierID         uuid.UUID                         `gorm:"type:uuid;not null;index" json:"certifier"`
	SourceType          SourceType                        `gorm:"size:20;not null;index" json:"renewableSourceType"`
	HydrogenAmount      int64                             `gorm:"not null" json:"hydrogenAmount"`
	CreditAmount        int64                             `gorm:"not null" json:"creditAmount"`
	MetadataHash        string                            `gorm:"size:66;not null" json:"metadataHash"`
	DetailedMetadata    datatypes.JSONType[Metadata]      `json:"detailedMetadata"`
	Status              CreditStatus                      `gorm:"size:20;not null;index" json:"status"`
	CurrentOwnerID      uuid.UUID                         `gorm:"type:uuid;not null;index" json:"currentOwner"`
	CurrentOwnerAddress string                            `gorm:"size:42;not null" json:"currentOwnerAddress"`
	CurrentBalance      int64                             `gorm:"not null" json:"currentBalance"`
	Holdings            datatypes.JSONSlice[Holding]      `json:"holdings"`
	IsRetired           bool                              `gorm:"not null;index" json:"isRetired"`
	OwnershipHistory    datatypes.JSONSlice[HistoryEntry] `json:"ownershipHistory"`
	RetirementDetails   RetirementDetails                 `gorm:"embedded;embeddedPrefix:retirement_" json:"retirementDetails"`
	VerificationStatus  VerificationStatus                `gorm:"embedded;embeddedPrefix:verification_" json:"verificationStatus"`
	Tags                datatypes.JSONSlice[string]       `json:"tags"`
	Notes               string                            `gorm:"type:text" json:"notes,omitempty"`
	Version             int64                             `gorm:"not null" json:"version"`
	CreatedAt           time.Time                         `json:"createdAt"`
	UpdatedAt           time.Time                         `json:"updatedAt"`
}

func (c *Credit) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c *Credit) Clone() *Credit {
	out := *c
	out.Holdings = append(datatypes.JSONSlice[Holding](nil), c.Holdings...)
	out.OwnershipHistory = append(datatypes.JSONSlice[HistoryEntry](nil), c.OwnershipHistory...)
	out.Tags = append(datatypes.JSONSlice[string](nil), c.Tags...)
	return &out
}

func (c *Credit) BalanceOf(address string) int64 {
	for _, h := range c.Holdings {
		if strings.EqualFold(h.Address, address) {
			return h.Balance
		}
	}
	return 0
}

func (c *Credit) setHolding(address string, balance int64) {
	for i, h := range c.Holdings {
		if strings.EqualFold(h.Address, address) {
			if balance == 0 {
				c.Holdings = append(c.Holdings[:i], c.Holdings[i+1:]...)
			} else {
				c.Holdings[i].Balance = balance
			}
			return
		}
	}
	if balance != 0 {
		c.Holdings = append(c.Holdings, Holding{Address: address, Balance: balance})
	}
}

// HasTransaction reports whether a lifecycle step with the given hash was
// already applied.
func (c *Credit) HasTransaction(txHash string) bool {
	for _, e := range c.OwnershipHistory {
		if strings.EqualFold(e.TransactionHash, txHash) {
			return true
		}
	}
	return false
}

func (c *Credit) IsOwnedBy(userID uuid.UUID) bool {
	return c.CurrentOwnerID == userID
}

// NewIssuedCredit builds the document for a freshly issued credit.
func NewIssuedCredit(creditID int64, txHash string, producer, certifier *User, source SourceType,
	hydrogen, amount int64, hash string, meta Metadata, at time.Time) *Credit {
	c := &Credit{
		ID:                  uuid.New(),
		CreditID:            creditID,
		BlockchainTxHash:    txHash,
		ProducerID:          producer.ID,
		ProducerAddress:     producer.WalletAddress,
		CertifierID:         certifier.ID,
		SourceType:          source,
		HydrogenAmount:      hydrogen,
		CreditAmount:        amount,
		MetadataHash:        hash,
		DetailedMetadata:    datatypes.NewJSONType(meta),
		Status:              StatusIssued,
		CurrentOwnerID:      producer.ID,
		CurrentOwnerAddress: producer.WalletAddress,
		CurrentBalance:      amount,
		Holdings:            datatypes.JSONSlice[Holding]{{Address: producer.WalletAddress, Balance: amount}},
		OwnershipHistory: datatypes.JSONSlice[HistoryEntry]{{
			Type:            HistoryIssue,
			Owner:           producer.ID,
			OwnerAddress:    producer.WalletAddress,
			Amount:          amount,
			Delta:           amount,
			TransactionHash: txHash,
			Timestamp:       at,
		}},
		Tags:    datatypes.JSONSlice[string]{},
		Version: 1,
	}
	return c
}

// ApplyTransfer moves amount from the current owner to recipient and makes the
// recipient the current owner. Callers check the preconditions.
func (c *Credit) ApplyTransfer(recipient *User, amount int64, txHash string, at time.Time) {
	from := c.CurrentOwnerAddress
	c.setHolding(from, c.BalanceOf(from)-amount)
	c.setHolding(recipient.WalletAddress, c.BalanceOf(recipient.WalletAddress)+amount)

	c.CurrentOwnerID = recipient.ID
	c.CurrentOwnerAddress = recipient.WalletAddress
	c.CurrentBalance = c.BalanceOf(recipient.WalletAddress)
	c.Status = StatusTransferred
	c.OwnershipHistory = append(c.OwnershipHistory, HistoryEntry{
		Type:            HistoryTransfer,
		Owner:           recipient.ID,
		OwnerAddress:    recipient.WalletAddress,
		Amount:          c.CurrentBalance,
		Delta:           amount,
		TransactionHash: txHash,
		Timestamp:       c.nextTimestamp(at),
	})
}

// ApplyRetire burns amount from the current owner and closes the credit.
func (c *Credit) ApplyRetire(retiredBy uuid.UUID, amount int64, reason, txHash string, at time.Time) {
	owner := c.CurrentOwnerAddress
	c.setHolding(owner, c.BalanceOf(owner)-amount)

	ts := c.nextTimestamp(at)
	c.IsRetired = true
	c.Status = StatusRetired
	c.CurrentBalance = 0
	c.RetirementDetails = RetirementDetails{
		RetiredBy:      &retiredBy,
		RetirementDate: &ts,
		Reason:         reason,
		TxHash:         txHash,
		Amount:         amount,
	}
	c.OwnershipHistory = append(c.OwnershipHistory, HistoryEntry{
		Type:            HistoryRetire,
		Owner:           retiredBy,
		OwnerAddress:    owner,
		Amount:          0,
		Delta:           amount,
		TransactionHash: txHash,
		Timestamp:       ts,
	})
}

// nextTimestamp keeps history strictly time-ordered even when the clock has
// not advanced between two steps.
func (c *Credit) nextTimestamp(at time.Time) time.Time {
	if n := len(c.OwnershipHistory); n > 0 {
		last := c.OwnershipHistory[n-1].Timestamp
		if !at.After(last) {
			return last.Add(time.Microsecond)
		}
	}
	return at
}

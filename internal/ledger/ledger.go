// Package ledger wraps the settlement contract that holds the authoritative
// credit balances. The API treats it as an opaque collaborator: every write
// returns a Receipt or one of ErrRejected, ErrTimeout, ErrUnavailable.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
)

var (
	ErrRejected    = errors.New("ledger rejected the transaction")
	ErrTimeout     = errors.New("ledger call timed out")
	ErrUnavailable = errors.New("ledger unavailable")
	ErrNotFound    = errors.New("ledger record not found")
)

// TxError is returned when a transaction was broadcast but did not confirm
// successfully. TxHash identifies it for later reconciliation.
type TxError struct {
	TxHash string
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s: %v", e.TxHash, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// TxHashOf extracts the transaction hash carried by err, if any.
func TxHashOf(err error) string {
	var txErr *TxError
	if errors.As(err, &txErr) {
		return txErr.TxHash
	}
	return ""
}

type Receipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber uint64 `json:"blockNumber"`
	CreditID    int64  `json:"creditId"`
}

type IssueRequest struct {
	Producer       string
	SourceType     string
	HydrogenAmount int64
	MetadataHash   string
	CreditAmount   int64
}

// CreditInfo is the contract-side view of a credit.
type CreditInfo struct {
	CreditID       int64      `json:"creditId"`
	Producer       string     `json:"producer"`
	SourceType     string     `json:"renewableSourceType"`
	ProductionDate time.Time  `json:"productionDate"`
	HydrogenAmount int64      `json:"hydrogenAmount"`
	MetadataHash   string     `json:"metadataHash"`
	IsRetired      bool       `json:"isRetired"`
	RetirementDate *time.Time `json:"retirementDate,omitempty"`
	RetiredBy      string     `json:"retiredBy,omitempty"`
}

const (
	EventCreditIssued      = "CreditIssued"
	EventCreditTransferred = "CreditTransferred"
	EventCreditRetired     = "CreditRetired"
)

var EventNames = []string{EventCreditIssued, EventCreditTransferred, EventCreditRetired}

type Event struct {
	Name           string    `json:"event"`
	CreditID       int64     `json:"creditId"`
	From           string    `json:"from,omitempty"`
	To             string    `json:"to,omitempty"`
	// Amount is zero on CreditIssued, which does not carry it.
	Amount         int64     `json:"amount,omitempty"`
	HydrogenAmount int64     `json:"hydrogenAmount,omitempty"`
	SourceType     string    `json:"renewableSourceType,omitempty"`
	MetadataHash   string    `json:"metadataHash,omitempty"`
	TxHash         string    `json:"transactionHash"`
	BlockNumber    uint64    `json:"blockNumber"`
	Timestamp      time.Time `json:"timestamp"`
}

// EventFilter selects events by name and block range. A zero ToBlock means
// the latest block; an empty Name matches every credit event.
type EventFilter struct {
	Name      string
	FromBlock uint64
	ToBlock   uint64
}

type NetworkInfo struct {
	ChainID         int64  `json:"chainId"`
	Name            string `json:"name"`
	BlockNumber     uint64 `json:"blockNumber"`
	GasPrice        string `json:"gasPrice,omitempty"`
	ContractAddress string `json:"contractAddress"`
	Operator        string `json:"operator"`
}

type TxState string

const (
	TxPending TxState = "pending"
	TxSuccess TxState = "success"
	TxFailed  TxState = "failed"
	TxUnknown TxState = "not_found"
)

type TxStatus struct {
	Hash        string  `json:"transactionHash"`
	State       TxState `json:"status"`
	BlockNumber uint64  `json:"blockNumber,omitempty"`
	GasUsed     uint64  `json:"gasUsed,omitempty"`
	To          string  `json:"to,omitempty"`
}

type HolderKind string

const (
	HolderProducer HolderKind = "producer"
	HolderConsumer HolderKind = "consumer"
)

// Client is the contract surface the services depend on. Implementations must
// be safe for concurrent use once Connect has returned.
type Client interface {
	Connect(ctx context.Context) error
	Close() error

	IssueCredit(ctx context.Context, req IssueRequest) (*Receipt, error)
	TransferCredit(ctx context.Context, from, to string, creditID, amount int64) (*Receipt, error)
	RetireCredit(ctx context.Context, holder string, creditID, amount int64) (*Receipt, error)
	GrantRole(ctx context.Context, address string, role models.Role) (*Receipt, error)

	CreditMetadata(ctx context.Context, creditID int64) (*CreditInfo, error)
	VerifyCredit(ctx context.Context, creditID int64, metadataHash string) (bool, error)
	BalanceOf(ctx context.Context, address string, creditID int64) (int64, error)
	TotalCreditsIssued(ctx context.Context) (int64, error)
	CreditsOf(ctx context.Context, address string, kind HolderKind) ([]int64, error)
	HasRole(ctx context.Context, address string, role models.Role) (bool, error)
	Events(ctx context.Context, filter EventFilter) ([]Event, error)
	NetworkInfo(ctx context.Context) (*NetworkInfo, error)
	TransactionStatus(ctx context.Context, txHash string) (*TxStatus, error)
}

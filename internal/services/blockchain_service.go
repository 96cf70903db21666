package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

func ledgerOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ledger.ErrTimeout):
		return "timeout"
	case errors.Is(err, ledger.ErrRejected):
		return "rejected"
	}
	return "unavailable"
}

// submit runs one ledger write under timeout and records its outcome.
func submit(ctx context.Context, timeout time.Duration, method string, fn func(ctx context.Context) (*ledger.Receipt, error)) (*ledger.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	receipt, err := fn(ctx)
	metrics.RecordLedgerCall(method, ledgerOutcome(err), time.Since(start))
	if err != nil {
		slog.Warn("ledger call failed", "action", method, "error", err, "tx_hash", ledger.TxHashOf(err))
	}
	return receipt, err
}

// BlockchainService exposes read-only ledger queries.
type BlockchainService struct {
	client  ledger.Client
	timeout time.Duration
}

func NewBlockchainService(client ledger.Client, timeout time.Duration) *BlockchainService {
	return &BlockchainService{client: client, timeout: timeout}
}

func (s *BlockchainService) query(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *BlockchainService) Network(ctx context.Context) (*ledger.NetworkInfo, error) {
	ctx, cancel := s.query(ctx)
	defer cancel()
	info, err := s.client.NetworkInfo(ctx)
	if err != nil {
		return nil, ledgerError("get network information", err)
	}
	return info, nil
}

func (s *BlockchainService) Transaction(ctx context.Context, txHash string) (*ledger.TxStatus, error) {
	if !isTxHash(txHash) {
		return nil, validationError("Validation failed", FieldError{Field: "txHash", Message: "txHash must be a 0x-prefixed 32 byte hex string"})
	}
	ctx, cancel := s.query(ctx)
	defer cancel()
	st, err := s.client.TransactionStatus(ctx, txHash)
	if err != nil {
		return nil, ledgerError("get transaction status", err)
	}
	return st, nil
}

func (s *BlockchainService) Credit(ctx context.Context, creditID int64) (*ledger.CreditInfo, error) {
	ctx, cancel := s.query(ctx)
	defer cancel()
	info, err := s.client.CreditMetadata(ctx, creditID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return nil, wrapSentinel(ErrCreditNotFound, err)
		}
		return nil, ledgerError("get credit metadata", err)
	}
	return info, nil
}

func (s *BlockchainService) Verify(ctx context.Context, creditID int64, metadataHash string) (bool, error) {
	ctx, cancel := s.query(ctx)
	defer cancel()
	ok, err := s.client.VerifyCredit(ctx, creditID, metadataHash)
	if err != nil {
		return false, ledgerError("verify credit", err)
	}
	return ok, nil
}

func (s *BlockchainService) Balance(ctx context.Context, address string, creditID int64) (int64, error) {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return 0, addressError("userAddress", err)
	}
	ctx, cancel := s.query(ctx)
	defer cancel()
	bal, err := s.client.BalanceOf(ctx, addr, creditID)
	if err != nil {
		return 0, ledgerError("get credit balance", err)
	}
	return bal, nil
}

func (s *BlockchainService) TotalCredits(ctx context.Context) (int64, error) {
	ctx, cancel := s.query(ctx)
	defer cancel()
	total, err := s.client.TotalCreditsIssued(ctx)
	if err != nil {
		return 0, ledgerError("get total credits", err)
	}
	return total, nil
}

func (s *BlockchainService) UserCredits(ctx context.Context, address, kind string) ([]int64, error) {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return nil, addressError("userAddress", err)
	}
	hk := ledger.HolderKind(kind)
	if hk != ledger.HolderProducer && hk != ledger.HolderConsumer {
		return nil, validationError("Validation failed", FieldError{Field: "type", Message: "type must be producer or consumer"})
	}
	ctx, cancel := s.query(ctx)
	defer cancel()
	ids, err := s.client.CreditsOf(ctx, addr, hk)
	if err != nil {
		return nil, ledgerError("get user credits", err)
	}
	return ids, nil
}

func (s *BlockchainService) HasRole(ctx context.Context, address, role string) (bool, error) {
	addr, err := ledger.NormalizeAddress(address)
	if err != nil {
		return false, addressError("userAddress", err)
	}
	r, err := models.ParseRole(role)
	if err != nil {
		return false, validationError("Validation failed", FieldError{Field: "role", Message: err.Error()})
	}
	ctx, cancel := s.query(ctx)
	defer cancel()
	ok, err := s.client.HasRole(ctx, addr, r)
	if err != nil {
		return false, ledgerError("check role", err)
	}
	return ok, nil
}

func (s *BlockchainService) Events(ctx context.Context, filter ledger.EventFilter) ([]ledger.Event, error) {
	if filter.Name == "" {
		return nil, validationError("Event name is required", FieldError{Field: "eventName", Message: "eventName is required"})
	}
	known := false
	for _, n := range ledger.EventNames {
		if n == filter.Name {
			known = true
			break
		}
	}
	if !known {
		return nil, validationError("Validation failed", FieldError{Field: "eventName", Message: "unknown event name"})
	}
	if filter.ToBlock != 0 && filter.ToBlock < filter.FromBlock {
		return nil, validationError("Validation failed", FieldError{Field: "toBlock", Message: "toBlock must not be before fromBlock"})
	}
	ctx, cancel := s.query(ctx)
	defer cancel()
	events, err := s.client.Events(ctx, filter)
	if err != nil {
		return nil, ledgerError("get blockchain events", err)
	}
	return events, nil
}

func addressError(field string, err error) error {
	return &Error{Kind: KindValidation, Message: "Validation failed", Err: err,
		Details: []FieldError{{Field: field, Message: field + " must be a valid wallet address"}}}
}

func isTxHash(s string) bool {
	b, err := hexutil.Decode(s)
	return err == nil && len(b) == 32
}

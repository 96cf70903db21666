package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/cache"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	creditStatsKey = "stats:credits"
	auditStatsKey  = "stats:audit"
)

// CreditService runs the credit lifecycle. Every mutation writes an intent
// record, calls the ledger and only then changes the credit document.
type CreditService struct {
	store    repository.Store
	ledger   ledger.Client
	cache    cache.Cache
	locks    *keyedMutex
	timeout  time.Duration
	statsTTL time.Duration
	now      func() time.Time
}

func NewCreditService(store repository.Store, client ledger.Client, c cache.Cache, timeout, statsTTL time.Duration) *CreditService {
	return &CreditService{
		store:    store,
		ledger:   client,
		cache:    c,
		locks:    newKeyedMutex(),
		timeout:  timeout,
		statsTTL: statsTTL,
		now:      time.Now,
	}
}

type IssueResult struct {
	Credit  *models.Credit
	Receipt *ledger.Receipt
}

func (s *CreditService) IssueCredit(ctx context.Context, certifier *models.User, req *dto.IssueCreditRequest) (*IssueResult, error) {
	if certifier.Role != models.RoleCertifier {
		return nil, ErrForbiddenRole
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	source, err := models.ParseSourceType(req.RenewableSourceType)
	if err != nil {
		return nil, validationError("Validation failed", FieldError{Field: "renewableSourceType", Message: err.Error()})
	}
	producerAddr, err := ledger.NormalizeAddress(req.ProducerAddress)
	if err != nil {
		return nil, addressError("producerAddress", err)
	}

	producer, err := s.store.Users().FindByWallet(ctx, producerAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrProducerNotFound
		}
		return nil, persistenceError("failed to load producer", err)
	}
	if producer.Role != models.RoleProducer {
		return nil, ErrNotProducer
	}

	hash, err := ledger.HashMetadata(req.DetailedMetadata)
	if err != nil {
		return nil, validationError("detailedMetadata cannot be encoded")
	}

	op, err := s.beginOperation(ctx, models.OperationIssue, nil, certifier.ID, models.IssuePayload{
		ProducerID:     producer.ID,
		CertifierID:    certifier.ID,
		SourceType:     source,
		HydrogenAmount: req.HydrogenAmount,
		CreditAmount:   req.CreditAmount,
		MetadataHash:   hash,
		Metadata:       req.DetailedMetadata,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := submit(ctx, s.timeout, ledger.MethodIssue, func(ctx context.Context) (*ledger.Receipt, error) {
		return s.ledger.IssueCredit(ctx, ledger.IssueRequest{
			Producer:       producer.WalletAddress,
			SourceType:     string(source),
			HydrogenAmount: req.HydrogenAmount,
			MetadataHash:   hash,
			CreditAmount:   req.CreditAmount,
		})
	})
	if err != nil {
		s.failOperation(ctx, op, err)
		metrics.RecordCreditOperation(string(models.OperationIssue), ledgerOutcome(err))
		return nil, ledgerError("issue credit", err)
	}

	credit := models.NewIssuedCredit(receipt.CreditID, receipt.TxHash, producer, certifier, source,
		req.HydrogenAmount, req.CreditAmount, hash, req.DetailedMetadata, s.now())
	if len(req.Tags) > 0 {
		credit.Tags = datatypes.JSONSlice[string](req.Tags)
	}
	credit.Notes = req.Notes

	op.CreditID = &receipt.CreditID
	if err := s.commit(ctx, op, receipt, func(tx repository.Store) error {
		return tx.Credits().Create(ctx, credit)
	}); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	metrics.RecordCreditOperation(string(models.OperationIssue), "success")
	slog.Info("credit issued",
		"credit_id", credit.CreditID,
		"tx_hash", receipt.TxHash,
		"user_id", certifier.ID.String(),
		"producer_id", producer.ID.String(),
		"amount", credit.CreditAmount,
	)
	return &IssueResult{Credit: credit, Receipt: receipt}, nil
}

type TransferResult struct {
	Credit    *models.Credit
	Recipient *models.User
	Receipt   *ledger.Receipt
}

func (s *CreditService) TransferCredit(ctx context.Context, sender *models.User, req *dto.TransferCreditRequest) (*TransferResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	toAddr, err := ledger.NormalizeAddress(req.ToAddress)
	if err != nil {
		return nil, addressError("toAddress", err)
	}
	creditID := *req.CreditID

	unlock := s.locks.Lock(creditID)
	defer unlock()

	credit, err := s.loadCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.IsRetired {
		return nil, ErrCreditRetired
	}
	if !credit.IsOwnedBy(sender.ID) {
		return nil, ErrNotOwner
	}
	if req.Amount > credit.CurrentBalance {
		return nil, ErrInsufficientBalance
	}
	recipient, err := s.store.Users().FindByWallet(ctx, toAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRecipientNotFound
		}
		return nil, persistenceError("failed to load recipient", err)
	}
	if recipient.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	op, err := s.beginOperation(ctx, models.OperationTransfer, &creditID, sender.ID, models.TransferPayload{
		SenderID:    sender.ID,
		RecipientID: recipient.ID,
		Amount:      req.Amount,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := submit(ctx, s.timeout, ledger.MethodTransfer, func(ctx context.Context) (*ledger.Receipt, error) {
		return s.ledger.TransferCredit(ctx, sender.WalletAddress, recipient.WalletAddress, creditID, req.Amount)
	})
	if err != nil {
		s.failOperation(ctx, op, err)
		metrics.RecordCreditOperation(string(models.OperationTransfer), ledgerOutcome(err))
		return nil, ledgerError("transfer credit", err)
	}

	credit.ApplyTransfer(recipient, req.Amount, receipt.TxHash, s.now())
	if err := s.commit(ctx, op, receipt, func(tx repository.Store) error {
		return tx.Credits().Update(ctx, credit)
	}); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	metrics.RecordCreditOperation(string(models.OperationTransfer), "success")
	slog.Info("credit transferred",
		"credit_id", creditID,
		"tx_hash", receipt.TxHash,
		"user_id", sender.ID.String(),
		"recipient_id", recipient.ID.String(),
		"amount", req.Amount,
	)
	return &TransferResult{Credit: credit, Recipient: recipient, Receipt: receipt}, nil
}

type RetireResult struct {
	Credit  *models.Credit
	Amount  int64
	Receipt *ledger.Receipt
}

func (s *CreditService) RetireCredit(ctx context.Context, holder *models.User, req *dto.RetireCreditRequest) (*RetireResult, error) {
	if holder.Role != models.RoleConsumer {
		return nil, ErrForbiddenRole
	}
	if err := validate(req); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, validationError("Validation failed", FieldError{Field: "reason", Message: "reason is required"})
	}
	creditID := *req.CreditID

	unlock := s.locks.Lock(creditID)
	defer unlock()

	credit, err := s.loadCredit(ctx, creditID)
	if err != nil {
		return nil, err
	}
	if credit.IsRetired {
		return nil, ErrAlreadyRetired
	}
	if !credit.IsOwnedBy(holder.ID) {
		return nil, ErrNotOwner
	}
	if req.Amount > credit.CurrentBalance {
		return nil, ErrInsufficientBalance
	}

	op, err := s.beginOperation(ctx, models.OperationRetire, &creditID, holder.ID, models.RetirePayload{
		HolderID: holder.ID,
		Amount:   req.Amount,
		Reason:   reason,
	})
	if err != nil {
		return nil, err
	}

	receipt, err := submit(ctx, s.timeout, ledger.MethodRetire, func(ctx context.Context) (*ledger.Receipt, error) {
		return s.ledger.RetireCredit(ctx, holder.WalletAddress, creditID, req.Amount)
	})
	if err != nil {
		s.failOperation(ctx, op, err)
		metrics.RecordCreditOperation(string(models.OperationRetire), ledgerOutcome(err))
		return nil, ledgerError("retire credit", err)
	}

	credit.ApplyRetire(holder.ID, req.Amount, reason, receipt.TxHash, s.now())
	if err := s.commit(ctx, op, receipt, func(tx repository.Store) error {
		return tx.Credits().Update(ctx, credit)
	}); err != nil {
		return nil, err
	}

	s.invalidateStats(ctx)
	metrics.RecordCreditOperation(string(models.OperationRetire), "success")
	slog.Info("credit retired",
		"credit_id", creditID,
		"tx_hash", receipt.TxHash,
		"user_id", holder.ID.String(),
		"amount", req.Amount,
	)
	return &RetireResult{Credit: credit, Amount: req.Amount, Receipt: receipt}, nil
}

// GetCredit resolves ref as a record id, or as a ledger credit id when it is
// numeric.
func (s *CreditService) GetCredit(ctx context.Context, ref string) (*models.Credit, error) {
	var (
		credit *models.Credit
		err    error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		credit, err = s.store.Credits().FindByID(ctx, id)
	} else if n, nerr := strconv.ParseInt(ref, 10, 64); nerr == nil && n >= 0 {
		credit, err = s.store.Credits().FindByCreditID(ctx, n)
	} else {
		return nil, validationError("Validation failed", FieldError{Field: "id", Message: "id must be a credit UUID or numeric credit id"})
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreditNotFound
		}
		return nil, persistenceError("failed to get credit", err)
	}
	return credit, nil
}

func (s *CreditService) GetHistory(ctx context.Context, ref string) ([]models.HistoryEntry, *models.Credit, error) {
	credit, err := s.GetCredit(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	return credit.OwnershipHistory, credit, nil
}

func (s *CreditService) ListOwned(ctx context.Context, owner *models.User, status string, page repository.Page) ([]models.Credit, int64, error) {
	filter := repository.CreditFilter{OwnerID: &owner.ID}
	if status != "" {
		st, err := models.ParseCreditStatus(status)
		if err != nil {
			return nil, 0, validationError("Validation failed", FieldError{Field: "status", Message: err.Error()})
		}
		filter.Status = &st
	}
	credits, total, err := s.store.Credits().List(ctx, filter, page)
	if err != nil {
		return nil, 0, persistenceError("failed to get credits", err)
	}
	return credits, total, nil
}

func (s *CreditService) ListProduced(ctx context.Context, producer *models.User, page repository.Page) ([]models.Credit, int64, error) {
	if producer.Role != models.RoleProducer {
		return nil, 0, ErrForbiddenRole
	}
	credits, total, err := s.store.Credits().List(ctx, repository.CreditFilter{ProducerID: &producer.ID}, page)
	if err != nil {
		return nil, 0, persistenceError("failed to get produced credits", err)
	}
	return credits, total, nil
}

// Statistics sums credit amounts across every credit.
func (s *CreditService) Statistics(ctx context.Context) (*dto.CreditStatistics, error) {
	var stats dto.CreditStatistics
	if found, err := s.cache.Get(ctx, creditStatsKey, &stats); err == nil && found {
		return &stats, nil
	} else if err != nil {
		slog.Warn("statistics cache read failed", "error", err)
	}

	agg, err := s.store.Credits().Aggregate(ctx)
	if err != nil {
		return nil, persistenceError("failed to get statistics", err)
	}
	stats = dto.CreditStatistics{
		TotalCredits:   agg.TotalCreditAmount,
		TotalHydrogen:  agg.TotalHydrogen,
		ActiveCredits:  agg.ActiveBalance,
		RetiredCredits: agg.RetiredAmount,
	}
	if err := s.cache.Set(ctx, creditStatsKey, stats, s.statsTTL); err != nil {
		slog.Warn("statistics cache write failed", "error", err)
	}
	return &stats, nil
}

func (s *CreditService) loadCredit(ctx context.Context, creditID int64) (*models.Credit, error) {
	credit, err := s.store.Credits().FindByCreditID(ctx, creditID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreditNotFound
		}
		return nil, persistenceError("failed to load credit", err)
	}
	return credit, nil
}

func (s *CreditService) beginOperation(ctx context.Context, kind models.OperationKind, creditID *int64, actor uuid.UUID, payload any) (*models.LedgerOperation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, persistenceError("failed to encode operation payload", err)
	}
	op := &models.LedgerOperation{
		Kind:     kind,
		CreditID: creditID,
		ActorID:  actor,
		Payload:  datatypes.JSON(raw),
		Status:   models.OperationPending,
		Attempts: 1,
	}
	if err := s.store.Operations().Create(ctx, op); err != nil {
		return nil, persistenceError("failed to record ledger operation", err)
	}
	return op, nil
}

// failOperation records a failed ledger write. A write that may have reached
// the chain stays SUBMITTED for the reconciler.
func (s *CreditService) failOperation(ctx context.Context, op *models.LedgerOperation, cause error) {
	op.Error = cause.Error()
	op.TxHash = ledger.TxHashOf(cause)
	switch {
	case errors.Is(cause, ledger.ErrRejected):
		op.Status = models.OperationFailed
	case op.TxHash != "":
		op.Status = models.OperationSubmitted
	case errors.Is(cause, ledger.ErrTimeout):
		op.Status = models.OperationSubmitted
	default:
		op.Status = models.OperationFailed
	}
	if err := s.store.Operations().Update(context.WithoutCancel(ctx), op); err != nil {
		slog.Error("failed to record ledger failure",
			"operation_id", op.ID.String(), "action", string(op.Kind), "tx_hash", op.TxHash, "error", err)
	}
}

// commit applies the document change and confirms op in one transaction. If
// that fails the ledger already holds the change, so op is flagged for the
// reconciler.
func (s *CreditService) commit(ctx context.Context, op *models.LedgerOperation, receipt *ledger.Receipt, apply func(tx repository.Store) error) error {
	op.TxHash = receipt.TxHash
	op.BlockNumber = receipt.BlockNumber
	op.Status = models.OperationConfirmed

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := apply(tx); err != nil {
			return err
		}
		return tx.Operations().Update(ctx, op)
	})
	if err == nil {
		return nil
	}

	op.Status = models.OperationNeedsReconcile
	op.Error = err.Error()
	if uerr := s.store.Operations().Update(context.WithoutCancel(ctx), op); uerr != nil {
		slog.Error("failed to flag ledger operation", "operation_id", op.ID.String(), "error", uerr)
	}

	var creditID int64
	if op.CreditID != nil {
		creditID = *op.CreditID
	}
	slog.Error("credit record write failed after ledger confirmation",
		"operation_id", op.ID.String(),
		"action", string(op.Kind),
		"credit_id", creditID,
		"tx_hash", receipt.TxHash,
		"error", err,
	)
	sentry.CaptureException(err)
	metrics.RecordCreditOperation(string(op.Kind), "needs_reconcile")

	if errors.Is(err, repository.ErrVersionConflict) {
		return wrapSentinel(ErrConcurrentModification, err)
	}
	return persistenceError("ledger transaction "+receipt.TxHash+" confirmed but the credit record was not saved", err)
}

func (s *CreditService) invalidateStats(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, creditStatsKey, auditStatsKey); err != nil {
		slog.Warn("statistics cache invalidation failed", "error", err)
	}
}

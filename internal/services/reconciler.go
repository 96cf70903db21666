package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/getsentry/sentry-go"
)

const (
	reconcileBatch = 100
	// maxUnknownAttempts bounds how long a hash the ledger never saw is polled.
	maxUnknownAttempts = 10
)

var errTxNotFound = errors.New("no matching ledger transaction")

type ReconcileReport struct {
	Checked    int `json:"checked"`
	Reconciled int `json:"reconciled"`
	Failed     int `json:"failed"`
	Deferred   int `json:"deferred"`
}

// Reconciler finishes ledger operations whose local write never happened. It
// shares the per-credit lock with CreditService.
type Reconciler struct {
	credits *CreditService
	grace   time.Duration
}

func NewReconciler(credits *CreditService, grace time.Duration) *Reconciler {
	return &Reconciler{credits: credits, grace: grace}
}

// Job adapts Run for the cron scheduler.
func (r *Reconciler) Job() func() {
	return func() {
		report, err := r.Run(context.Background())
		if err != nil {
			slog.Error("reconcile run failed", "error", err)
			return
		}
		if report.Checked > 0 {
			slog.Info("reconcile run finished",
				"checked", report.Checked,
				"reconciled", report.Reconciled,
				"failed", report.Failed,
				"deferred", report.Deferred,
			)
		}
	}
}

// Run processes one batch of stale operations.
func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	s := r.credits
	cutoff := s.now().Add(-r.grace)
	ops, err := s.store.Operations().Stale(ctx, []models.OperationStatus{
		models.OperationPending,
		models.OperationSubmitted,
		models.OperationNeedsReconcile,
	}, cutoff, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("load stale operations: %w", err)
	}

	report := &ReconcileReport{}
	for i := range ops {
		op := &ops[i]
		report.Checked++
		result := r.reconcile(ctx, op)
		switch result {
		case models.OperationReconciled:
			report.Reconciled++
		case models.OperationFailed:
			report.Failed++
		default:
			report.Deferred++
		}
		metrics.RecordReconcile(strings.ToLower(string(result)))
	}
	if report.Reconciled > 0 {
		s.invalidateStats(ctx)
	}
	return report, nil
}

// reconcile settles op and returns the status it ends in.
func (r *Reconciler) reconcile(ctx context.Context, op *models.LedgerOperation) models.OperationStatus {
	s := r.credits
	op.Attempts++

	if op.TxHash == "" {
		hash, err := r.findTransaction(ctx, op)
		switch {
		case errors.Is(err, errTxNotFound):
			return r.settle(ctx, op, models.OperationFailed, "ledger has no transaction for this operation")
		case err != nil:
			return r.settle(ctx, op, op.Status, err.Error())
		}
		op.TxHash = hash
	}

	qctx, cancel := context.WithTimeout(ctx, s.timeout)
	st, err := s.ledger.TransactionStatus(qctx, op.TxHash)
	cancel()
	if err != nil {
		return r.settle(ctx, op, op.Status, err.Error())
	}

	switch st.State {
	case ledger.TxFailed:
		return r.settle(ctx, op, models.OperationFailed, "ledger transaction failed")
	case ledger.TxSuccess:
		op.BlockNumber = st.BlockNumber
		if err := r.apply(ctx, op); err != nil {
			slog.Error("reconcile apply failed",
				"operation_id", op.ID.String(), "action", string(op.Kind), "tx_hash", op.TxHash, "error", err)
			sentry.CaptureException(err)
			return r.settle(ctx, op, models.OperationNeedsReconcile, err.Error())
		}
		return r.settle(ctx, op, models.OperationReconciled, "")
	case ledger.TxUnknown:
		if op.Attempts >= maxUnknownAttempts {
			return r.settle(ctx, op, models.OperationFailed, "ledger never saw transaction "+op.TxHash)
		}
		return r.settle(ctx, op, op.Status, "ledger transaction not found")
	default:
		return r.settle(ctx, op, op.Status, "ledger transaction not yet confirmed")
	}
}

func (r *Reconciler) settle(ctx context.Context, op *models.LedgerOperation, status models.OperationStatus, msg string) models.OperationStatus {
	op.Status = status
	op.Error = msg
	if err := r.credits.store.Operations().Update(ctx, op); err != nil {
		slog.Error("failed to update ledger operation", "operation_id", op.ID.String(), "error", err)
	}
	return status
}

// apply replays the local mutation of op. Steps already recorded under
// op.TxHash are skipped.
func (r *Reconciler) apply(ctx context.Context, op *models.LedgerOperation) error {
	switch op.Kind {
	case models.OperationIssue:
		return r.applyIssue(ctx, op)
	case models.OperationTransfer:
		return r.applyTransfer(ctx, op)
	case models.OperationRetire:
		return r.applyRetire(ctx, op)
	}
	return fmt.Errorf("unknown operation kind %q", op.Kind)
}

func (r *Reconciler) applyIssue(ctx context.Context, op *models.LedgerOperation) error {
	s := r.credits
	var p models.IssuePayload
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if op.CreditID == nil {
		ev, err := r.eventByHash(ctx, ledger.EventCreditIssued, op.TxHash)
		if err != nil {
			return err
		}
		op.CreditID = &ev.CreditID
	}

	if _, err := s.store.Credits().FindByCreditID(ctx, *op.CreditID); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	producer, err := s.store.Users().FindByID(ctx, p.ProducerID)
	if err != nil {
		return fmt.Errorf("load producer: %w", err)
	}
	certifier, err := s.store.Users().FindByID(ctx, p.CertifierID)
	if err != nil {
		return fmt.Errorf("load certifier: %w", err)
	}
	credit := models.NewIssuedCredit(*op.CreditID, op.TxHash, producer, certifier, p.SourceType,
		p.HydrogenAmount, p.CreditAmount, p.MetadataHash, p.Metadata, op.CreatedAt)
	return s.store.Credits().Create(ctx, credit)
}

func (r *Reconciler) applyTransfer(ctx context.Context, op *models.LedgerOperation) error {
	s := r.credits
	var p models.TransferPayload
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if op.CreditID == nil {
		return errors.New("transfer operation has no credit id")
	}
	unlock := s.locks.Lock(*op.CreditID)
	defer unlock()

	credit, err := s.store.Credits().FindByCreditID(ctx, *op.CreditID)
	if err != nil {
		return fmt.Errorf("load credit: %w", err)
	}
	if credit.HasTransaction(op.TxHash) {
		return nil
	}
	recipient, err := s.store.Users().FindByID(ctx, p.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	credit.ApplyTransfer(recipient, p.Amount, op.TxHash, s.now())
	return s.store.Credits().Update(ctx, credit)
}

func (r *Reconciler) applyRetire(ctx context.Context, op *models.LedgerOperation) error {
	s := r.credits
	var p models.RetirePayload
	if err := json.Unmarshal(op.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if op.CreditID == nil {
		return errors.New("retire operation has no credit id")
	}
	unlock := s.locks.Lock(*op.CreditID)
	defer unlock()

	credit, err := s.store.Credits().FindByCreditID(ctx, *op.CreditID)
	if err != nil {
		return fmt.Errorf("load credit: %w", err)
	}
	if credit.HasTransaction(op.TxHash) {
		return nil
	}
	if credit.IsRetired {
		return fmt.Errorf("credit %d already retired by %s", credit.CreditID, credit.RetirementDetails.TxHash)
	}
	credit.ApplyRetire(p.HolderID, p.Amount, p.Reason, op.TxHash, s.now())
	return s.store.Credits().Update(ctx, credit)
}

func (r *Reconciler) eventByHash(ctx context.Context, name, txHash string) (*ledger.Event, error) {
	events, err := r.events(ctx, name)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if strings.EqualFold(events[i].TxHash, txHash) {
			return &events[i], nil
		}
	}
	return nil, fmt.Errorf("%s event for %s: %w", name, txHash, errTxNotFound)
}

func (r *Reconciler) events(ctx context.Context, name string) ([]ledger.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.credits.timeout)
	defer cancel()
	return r.credits.ledger.Events(ctx, ledger.EventFilter{Name: name})
}

// findTransaction looks for the ledger event an operation without a known
// hash would have produced.
func (r *Reconciler) findTransaction(ctx context.Context, op *models.LedgerOperation) (string, error) {
	s := r.credits
	switch op.Kind {
	case models.OperationIssue:
		var p models.IssuePayload
		if err := json.Unmarshal(op.Payload, &p); err != nil {
			return "", fmt.Errorf("decode payload: %w", err)
		}
		producer, err := s.store.Users().FindByID(ctx, p.ProducerID)
		if err != nil {
			return "", fmt.Errorf("load producer: %w", err)
		}
		events, err := r.events(ctx, ledger.EventCreditIssued)
		if err != nil {
			return "", err
		}
		// CreditIssued carries no credit amount, so the mint is identified by
		// what it does carry.
		for _, e := range events {
			if !strings.EqualFold(e.MetadataHash, p.MetadataHash) ||
				!strings.EqualFold(e.To, producer.WalletAddress) ||
				e.HydrogenAmount != p.HydrogenAmount || e.SourceType != string(p.SourceType) {
				continue
			}
			if _, err := s.store.Credits().FindByCreditID(ctx, e.CreditID); errors.Is(err, repository.ErrNotFound) {
				id := e.CreditID
				op.CreditID = &id
				return e.TxHash, nil
			}
		}
		return "", errTxNotFound

	case models.OperationTransfer, models.OperationRetire:
		if op.CreditID == nil {
			return "", errTxNotFound
		}
		credit, err := s.store.Credits().FindByCreditID(ctx, *op.CreditID)
		if err != nil {
			return "", fmt.Errorf("load credit: %w", err)
		}
		name, from, to, amount, err := r.expectedEvent(ctx, op)
		if err != nil {
			return "", err
		}
		events, err := r.events(ctx, name)
		if err != nil {
			return "", err
		}
		for _, e := range events {
			if e.CreditID != *op.CreditID || e.Amount != amount || !strings.EqualFold(e.From, from) {
				continue
			}
			if to != "" && !strings.EqualFold(e.To, to) {
				continue
			}
			if !credit.HasTransaction(e.TxHash) {
				return e.TxHash, nil
			}
		}
		return "", errTxNotFound
	}
	return "", fmt.Errorf("unknown operation kind %q", op.Kind)
}

func (r *Reconciler) expectedEvent(ctx context.Context, op *models.LedgerOperation) (name, from, to string, amount int64, err error) {
	users := r.credits.store.Users()
	if op.Kind == models.OperationTransfer {
		var p models.TransferPayload
		if err = json.Unmarshal(op.Payload, &p); err != nil {
			return
		}
		sender, serr := users.FindByID(ctx, p.SenderID)
		if serr != nil {
			return "", "", "", 0, serr
		}
		recipient, rerr := users.FindByID(ctx, p.RecipientID)
		if rerr != nil {
			return "", "", "", 0, rerr
		}
		return ledger.EventCreditTransferred, sender.WalletAddress, recipient.WalletAddress, p.Amount, nil
	}
	var p models.RetirePayload
	if err = json.Unmarshal(op.Payload, &p); err != nil {
		return
	}
	holder, herr := users.FindByID(ctx, p.HolderID)
	if herr != nil {
		return "", "", "", 0, herr
	}
	return ledger.EventCreditRetired, holder.WalletAddress, "", p.Amount, nil
}

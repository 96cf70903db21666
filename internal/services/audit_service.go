package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/cache"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/google/uuid"
)

type AuditCreditQuery struct {
	Status     string
	SourceType string
	Producer   string
	Certifier  string
}

type AuditStatistics struct {
	Overview struct {
		TotalCredits       int64 `json:"totalCredits"`
		TotalHydrogen      int64 `json:"totalHydrogen"`
		TotalCreditAmount  int64 `json:"totalCreditAmount"`
		ActiveCredits      int64 `json:"activeCredits"`
		RetiredCredits     int64 `json:"retiredCredits"`
		VerifiedCredits    int64 `json:"verifiedCredits"`
		ActiveCreditAmount int64 `json:"activeCreditAmount"`
		RetiredAmount      int64 `json:"retiredCreditAmount"`
	} `json:"overview"`
	BySourceType []repository.SourceStat `json:"bySourceType"`
	ByStatus     []repository.StatusStat `json:"byStatus"`
}

type UserAudit struct {
	Users     []dto.PublicUser       `json:"users"`
	Total     int64                  `json:"-"`
	RoleStats []repository.RoleCount `json:"roleStatistics"`
}

// AuditService serves the regulator and certifier views.
type AuditService struct {
	store    repository.Store
	chain    *BlockchainService
	cache    cache.Cache
	statsTTL time.Duration
	now      func() time.Time
}

func NewAuditService(store repository.Store, chain *BlockchainService, c cache.Cache, statsTTL time.Duration) *AuditService {
	return &AuditService{
		store:    store,
		chain:    chain,
		cache:    c,
		statsTTL: statsTTL,
		now:      time.Now,
	}
}

func auditor(u *models.User) bool {
	return u.Role == models.RoleRegulator || u.Role == models.RoleCertifier
}

func (s *AuditService) ListCredits(ctx context.Context, actor *models.User, q AuditCreditQuery, page repository.Page) ([]models.Credit, int64, error) {
	if !auditor(actor) {
		return nil, 0, ErrForbiddenRole
	}
	var filter repository.CreditFilter
	var details []FieldError
	if q.Status != "" {
		st, err := models.ParseCreditStatus(q.Status)
		if err != nil {
			details = append(details, FieldError{Field: "status", Message: err.Error()})
		} else {
			filter.Status = &st
		}
	}
	if q.SourceType != "" {
		src, err := models.ParseSourceType(q.SourceType)
		if err != nil {
			details = append(details, FieldError{Field: "sourceType", Message: err.Error()})
		} else {
			filter.SourceType = &src
		}
	}
	if q.Producer != "" {
		id, err := uuid.Parse(q.Producer)
		if err != nil {
			details = append(details, FieldError{Field: "producer", Message: "producer must be a user id"})
		} else {
			filter.ProducerID = &id
		}
	}
	if q.Certifier != "" {
		id, err := uuid.Parse(q.Certifier)
		if err != nil {
			details = append(details, FieldError{Field: "certifier", Message: "certifier must be a user id"})
		} else {
			filter.CertifierID = &id
		}
	}
	if len(details) > 0 {
		return nil, 0, validationError("Validation failed", details...)
	}

	credits, total, err := s.store.Credits().List(ctx, filter, page)
	if err != nil {
		return nil, 0, persistenceError("failed to get audit credits", err)
	}
	return credits, total, nil
}

func (s *AuditService) GetCreditAudit(ctx context.Context, actor *models.User, id uuid.UUID) (*models.Credit, error) {
	if !auditor(actor) {
		return nil, ErrForbiddenRole
	}
	credit, err := s.store.Credits().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreditNotFound
		}
		return nil, persistenceError("failed to get credit audit", err)
	}
	return credit, nil
}

// SetVerification records a verification decision. It never touches
// balances or ownership.
func (s *AuditService) SetVerification(ctx context.Context, actor *models.User, id uuid.UUID, req *dto.VerifyCreditRequest) (*models.Credit, error) {
	if !auditor(actor) {
		return nil, ErrForbiddenRole
	}
	if err := validate(req); err != nil {
		return nil, err
	}

	credit, err := s.store.Credits().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCreditNotFound
		}
		return nil, persistenceError("failed to load credit", err)
	}

	at := s.now()
	credit.VerificationStatus = models.VerificationStatus{
		IsVerified:        *req.IsVerified,
		VerifiedBy:        &actor.ID,
		VerificationDate:  &at,
		VerificationNotes: req.VerificationNotes,
	}
	if err := s.store.Credits().Update(ctx, credit); err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return nil, wrapSentinel(ErrConcurrentModification, err)
		}
		return nil, persistenceError("failed to update verification status", err)
	}

	if err := s.cache.Invalidate(ctx, auditStatsKey); err != nil {
		slog.Warn("statistics cache invalidation failed", "error", err)
	}
	slog.Info("credit verification updated",
		"credit_id", credit.CreditID,
		"user_id", actor.ID.String(),
		"is_verified", *req.IsVerified,
	)
	return credit, nil
}

func (s *AuditService) Statistics(ctx context.Context, actor *models.User) (*AuditStatistics, error) {
	if !auditor(actor) {
		return nil, ErrForbiddenRole
	}
	var stats AuditStatistics
	if found, err := s.cache.Get(ctx, auditStatsKey, &stats); err == nil && found {
		return &stats, nil
	} else if err != nil {
		slog.Warn("statistics cache read failed", "error", err)
	}

	agg, err := s.store.Credits().Aggregate(ctx)
	if err != nil {
		return nil, persistenceError("failed to get audit statistics", err)
	}
	stats.Overview.TotalCredits = agg.Count
	stats.Overview.TotalHydrogen = agg.TotalHydrogen
	stats.Overview.TotalCreditAmount = agg.TotalCreditAmount
	stats.Overview.ActiveCredits = agg.ActiveCount
	stats.Overview.RetiredCredits = agg.RetiredCount
	stats.Overview.VerifiedCredits = agg.VerifiedCount
	stats.Overview.ActiveCreditAmount = agg.ActiveBalance
	stats.Overview.RetiredAmount = agg.RetiredAmount
	stats.BySourceType = agg.BySource
	stats.ByStatus = agg.ByStatus

	if err := s.cache.Set(ctx, auditStatsKey, stats, s.statsTTL); err != nil {
		slog.Warn("statistics cache write failed", "error", err)
	}
	return &stats, nil
}

// ListUsers lists users of any activity state together with per-role counts
// of active users.
func (s *AuditService) ListUsers(ctx context.Context, actor *models.User, role, isVerified string, page repository.Page) (*UserAudit, error) {
	if actor.Role != models.RoleRegulator {
		return nil, ErrForbiddenRole
	}
	var filter repository.UserFilter
	if role != "" {
		r, err := models.ParseRole(role)
		if err != nil {
			return nil, validationError("Validation failed", FieldError{Field: "role", Message: err.Error()})
		}
		filter.Role = &r
	}
	if isVerified != "" {
		v, err := strconv.ParseBool(isVerified)
		if err != nil {
			return nil, validationError("Validation failed", FieldError{Field: "isVerified", Message: "isVerified must be true or false"})
		}
		filter.IsVerified = &v
	}

	users, total, err := s.store.Users().List(ctx, filter, page)
	if err != nil {
		return nil, persistenceError("failed to get users", err)
	}
	counts, err := s.store.Users().CountByRole(ctx)
	if err != nil {
		return nil, persistenceError("failed to get role statistics", err)
	}
	return &UserAudit{Users: dto.NewPublicUsers(users), Total: total, RoleStats: counts}, nil
}

// LedgerEvents parses the query values and proxies to the ledger.
func (s *AuditService) LedgerEvents(ctx context.Context, actor *models.User, name, fromBlock, toBlock string) ([]ledger.Event, error) {
	if !auditor(actor) {
		return nil, ErrForbiddenRole
	}
	filter, err := ParseEventFilter(name, fromBlock, toBlock)
	if err != nil {
		return nil, err
	}
	return s.chain.Events(ctx, filter)
}

func (s *AuditService) ListOperations(ctx context.Context, actor *models.User, status, kind string, page repository.Page) ([]models.LedgerOperation, int64, error) {
	if actor.Role != models.RoleRegulator {
		return nil, 0, ErrForbiddenRole
	}
	var filter repository.OperationFilter
	if status != "" {
		st := models.OperationStatus(status)
		if !st.Valid() {
			return nil, 0, validationError("Validation failed", FieldError{Field: "status", Message: "unknown operation status " + strconv.Quote(status)})
		}
		filter.Status = &st
	}
	if kind != "" {
		k := models.OperationKind(kind)
		if !k.Valid() {
			return nil, 0, validationError("Validation failed", FieldError{Field: "kind", Message: "unknown operation kind " + strconv.Quote(kind)})
		}
		filter.Kind = &k
	}
	ops, total, err := s.store.Operations().List(ctx, filter, page)
	if err != nil {
		return nil, 0, persistenceError("failed to get ledger operations", err)
	}
	return ops, total, nil
}

// ParseEventFilter builds an event filter from query values. An empty name
// defaults to CreditIssued; empty block bounds mean 0 and latest.
func ParseEventFilter(name, fromBlock, toBlock string) (ledger.EventFilter, error) {
	filter := ledger.EventFilter{Name: name}
	if filter.Name == "" {
		filter.Name = ledger.EventCreditIssued
	}
	var details []FieldError
	if fromBlock != "" {
		n, err := strconv.ParseUint(fromBlock, 10, 64)
		if err != nil {
			details = append(details, FieldError{Field: "fromBlock", Message: "fromBlock must be a block number"})
		}
		filter.FromBlock = n
	}
	if toBlock != "" && toBlock != "latest" {
		n, err := strconv.ParseUint(toBlock, 10, 64)
		if err != nil {
			details = append(details, FieldError{Field: "toBlock", Message: "toBlock must be a block number or latest"})
		}
		filter.ToBlock = n
	}
	if len(details) > 0 {
		return ledger.EventFilter{}, validationError("Validation failed", details...)
	}
	return filter, nil
}

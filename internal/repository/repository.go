// Package repository persists users, credit documents, ledger operations and
// refresh tokens. Store has a GORM backend for PostgreSQL and an in-memory
// backend used in demo mode and tests.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrVersionConflict = errors.New("record was modified concurrently")
)

// Page selects a 1-based page of Size rows.
type Page struct {
	Number int
	Size   int
}

func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

type UserFilter struct {
	Role       *models.Role
	IsVerified *bool
	ActiveOnly bool
}

type CreditFilter struct {
	Status      *models.CreditStatus
	SourceType  *models.SourceType
	ProducerID  *uuid.UUID
	CertifierID *uuid.UUID
	OwnerID     *uuid.UUID
}

type OperationFilter struct {
	Status   *models.OperationStatus
	Kind     *models.OperationKind
	CreditID *int64
}

type SourceStat struct {
	SourceType        models.SourceType `json:"sourceType"`
	Count             int64             `json:"count"`
	TotalHydrogen     int64             `json:"totalHydrogen"`
	TotalCreditAmount int64             `json:"totalCreditAmount"`
}

type StatusStat struct {
	Status models.CreditStatus `json:"status"`
	Count  int64               `json:"count"`
}

// RoleCount counts active users holding Role.
type RoleCount struct {
	Role          models.Role `json:"role"`
	Count         int64       `json:"count"`
	VerifiedCount int64       `json:"verifiedCount"`
}

// CreditAggregate summarizes every credit document.
type CreditAggregate struct {
	Count             int64
	TotalHydrogen     int64
	TotalCreditAmount int64
	ActiveCount       int64
	ActiveBalance     int64
	RetiredCount      int64
	RetiredAmount     int64
	VerifiedCount     int64
	BySource          []SourceStat
	ByStatus          []StatusStat
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByWallet(ctx context.Context, wallet string) (*models.User, error)
	List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error)
	CountByRole(ctx context.Context) ([]RoleCount, error)
}

type CreditRepository interface {
	Create(ctx context.Context, credit *models.Credit) error
	// Update persists credit if its stored version still equals
	// credit.Version, then increments the version.
	Update(ctx context.Context, credit *models.Credit) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Credit, error)
	FindByCreditID(ctx context.Context, creditID int64) (*models.Credit, error)
	List(ctx context.Context, filter CreditFilter, page Page) ([]models.Credit, int64, error)
	Aggregate(ctx context.Context) (*CreditAggregate, error)
}

type OperationRepository interface {
	Create(ctx context.Context, op *models.LedgerOperation) error
	Update(ctx context.Context, op *models.LedgerOperation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerOperation, error)
	List(ctx context.Context, filter OperationFilter, page Page) ([]models.LedgerOperation, int64, error)
	// Stale returns operations in one of statuses last touched before cutoff,
	// oldest first.
	Stale(ctx context.Context, statuses []models.OperationStatus, cutoff time.Time, limit int) ([]models.LedgerOperation, error)
}

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type Store interface {
	Users() UserRepository
	Credits() CreditRepository
	Operations() OperationRepository
	RefreshTokens() RefreshTokenRepository
	// WithTx runs fn against a Store whose writes commit together.
	WithTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error
	Close() error
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) DB() *gorm.DB { return s.db }

func (s *GormStore) Users() UserRepository                 { return &gormUsers{db: s.db} }
func (s *GormStore) Credits() CreditRepository             { return &gormCredits{db: s.db} }
func (s *GormStore) Operations() OperationRepository       { return &gormOperations{db: s.db} }
func (s *GormStore) RefreshTokens() RefreshTokenRepository { return &gormRefreshTokens{db: s.db} }

func (s *GormStore) WithTx(ctx context.Context, fn func(Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	default:
		return err
	}
}

type gormUsers struct {
	db *gorm.DB
}

func (r *gormUsers) Create(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error)
}

func (r *gormUsers) Update(ctx context.Context, user *models.User) error {
	return translate(r.db.WithContext(ctx).Model(user).Select("*").Omit("id", "created_at").Updates(user).Error)
}

func (r *gormUsers) findOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where(query, arg).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormUsers) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *gormUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email = ?", strings.ToLower(email))
}

func (r *gormUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, "username = ?", username)
}

func (r *gormUsers) FindByWallet(ctx context.Context, wallet string) (*models.User, error) {
	return r.findOne(ctx, "wallet_address = ?", strings.ToLower(wallet))
}

func (r *gormUsers) List(ctx context.Context, filter UserFilter, page Page) ([]models.User, int64, error) {
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.User{}).Scopes(userFilter(filter))
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []models.User
	if err := query().Scopes(paginate(page)).Order("created_at DESC").Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *gormUsers) CountByRole(ctx context.Context) ([]RoleCount, error) {
	var rows []RoleCount
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("role, COUNT(*) AS count, COALESCE(SUM(CASE WHEN is_verified = ? THEN 1 ELSE 0 END), 0) AS verified_count", true).
		Where("is_active = ?", true).
		Group("role").
		Order("role").
		Scan(&rows).Error
	return rows, err
}

type gormCredits struct {
	db *gorm.DB
}

func (r *gormCredits) Create(ctx context.Context, credit *models.Credit) error {
	if credit.Version == 0 {
		credit.Version = 1
	}
	return translate(r.db.WithContext(ctx).Create(credit).Error)
}

func (r *gormCredits) Update(ctx context.Context, credit *models.Credit) error {
	prev := credit.Version
	credit.Version = prev + 1

	res := r.db.WithContext(ctx).Model(credit).
		Where("version = ?", prev).
		Select("*").
		Omit("id", "created_at").
		Updates(credit)
	if res.Error != nil {
		credit.Version = prev
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		credit.Version = prev
		return ErrVersionConflict
	}
	return nil
}

func (r *gormCredits) FindByID(ctx context.Context, id uuid.UUID) (*models.Credit, error) {
	var credit models.Credit
	if err := r.db.WithContext(ctx).First(&credit, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &credit, nil
}

func (r *gormCredits) FindByCreditID(ctx context.Context, creditID int64) (*models.Credit, error) {
	var credit models.Credit
	if err := r.db.WithContext(ctx).First(&credit, "credit_id = ?", creditID).Error; err != nil {
		return nil, translate(err)
	}
	return &credit, nil
}

func (r *gormCredits) List(ctx context.Context, filter CreditFilter, page Page) ([]models.Credit, int64, error) {
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.Credit{}).Scopes(creditFilter(filter))
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var credits []models.Credit
	if err := query().Scopes(paginate(page)).Order("created_at DESC, credit_id DESC").Find(&credits).Error; err != nil {
		return nil, 0, err
	}
	return credits, total, nil
}

type creditTotals struct {
	Count             int64
	TotalHydrogen     int64
	TotalCreditAmount int64
	ActiveCount       int64
	ActiveBalance     int64
	RetiredCount      int64
	RetiredAmount     int64
	VerifiedCount     int64
}

func (r *gormCredits) Aggregate(ctx context.Context) (*CreditAggregate, error) {
	var totals creditTotals
	err := r.db.WithContext(ctx).Model(&models.Credit{}).
		Select(`COUNT(*) AS count,
			COALESCE(SUM(hydrogen_amount), 0) AS total_hydrogen,
			COALESCE(SUM(credit_amount), 0) AS total_credit_amount,
			COALESCE(SUM(CASE WHEN is_retired = ? AND current_balance > 0 THEN 1 ELSE 0 END), 0) AS active_count,
			COALESCE(SUM(CASE WHEN is_retired = ? THEN current_balance ELSE 0 END), 0) AS active_balance,
			COALESCE(SUM(CASE WHEN is_retired = ? THEN 1 ELSE 0 END), 0) AS retired_count,
			COALESCE(SUM(retirement_amount), 0) AS retired_amount,
			COALESCE(SUM(CASE WHEN verification_is_verified = ? THEN 1 ELSE 0 END), 0) AS verified_count`,
			false, false, true, true).
		Scan(&totals).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate credits: %w", err)
	}
	agg := CreditAggregate{
		Count:             totals.Count,
		TotalHydrogen:     totals.TotalHydrogen,
		TotalCreditAmount: totals.TotalCreditAmount,
		ActiveCount:       totals.ActiveCount,
		ActiveBalance:     totals.ActiveBalance,
		RetiredCount:      totals.RetiredCount,
		RetiredAmount:     totals.RetiredAmount,
		VerifiedCount:     totals.VerifiedCount,
	}

	if err := r.db.WithContext(ctx).Model(&models.Credit{}).
		Select(`source_type,
			COUNT(*) AS count,
			COALESCE(SUM(hydrogen_amount), 0) AS total_hydrogen,
			COALESCE(SUM(credit_amount), 0) AS total_credit_amount`).
		Group("source_type").
		Order("count DESC, source_type").
		Scan(&agg.BySource).Error; err != nil {
		return nil, fmt.Errorf("aggregate by source: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&models.Credit{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Order("count DESC, status").
		Scan(&agg.ByStatus).Error; err != nil {
		return nil, fmt.Errorf("aggregate by status: %w", err)
	}
	return &agg, nil
}

type gormOperations struct {
	db *gorm.DB
}

func (r *gormOperations) Create(ctx context.Context, op *models.LedgerOperation) error {
	return translate(r.db.WithContext(ctx).Create(op).Error)
}

func (r *gormOperations) Update(ctx context.Context, op *models.LedgerOperation) error {
	return translate(r.db.WithContext(ctx).Model(op).Select("*").Omit("id", "created_at").Updates(op).Error)
}

func (r *gormOperations) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerOperation, error) {
	var op models.LedgerOperation
	if err := r.db.WithContext(ctx).First(&op, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *gormOperations) List(ctx context.Context, filter OperationFilter, page Page) ([]models.LedgerOperation, int64, error) {
	query := func() *gorm.DB {
		return r.db.WithContext(ctx).Model(&models.LedgerOperation{}).Scopes(operationFilter(filter))
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var ops []models.LedgerOperation
	if err := query().Scopes(paginate(page)).Order("created_at DESC").Find(&ops).Error; err != nil {
		return nil, 0, err
	}
	return ops, total, nil
}

func (r *gormOperations) Stale(ctx context.Context, statuses []models.OperationStatus, cutoff time.Time, limit int) ([]models.LedgerOperation, error) {
	var ops []models.LedgerOperation
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", statuses, cutoff).
		Order("created_at").
		Limit(limit).
		Find(&ops).Error
	return ops, err
}

type gormRefreshTokens struct {
	db *gorm.DB
}

func (r *gormRefreshTokens) Create(ctx context.Context, token *models.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *gormRefreshTokens) FindActive(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	err := r.db.WithContext(ctx).Where("token_hash = ? AND revoked = ?", tokenHash, false).First(&token).Error
	if err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *gormRefreshTokens) Revoke(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("token_hash = ?", tokenHash).
		Update("revoked", true).Error
}

func (r *gormRefreshTokens) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true).Error
}

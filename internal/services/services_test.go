package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/cache"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/dto"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store   *flakyStore
	ledger  *ledger.MemoryLedger
	cache   *cache.Memory
	auth    *AuthService
	credits *CreditService
	audit   *AuditService
	chain   *BlockchainService
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: time.Hour,
		LedgerTimeout:    time.Second,
		StatsCacheTTL:    time.Minute,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	l := ledger.NewMemoryLedger(31337)
	require.NoError(t, l.Connect(context.Background()))

	store := &flakyStore{Store: repository.NewMemoryStore()}
	c := cache.NewMemory()
	chain := NewBlockchainService(l, cfg.LedgerTimeout)
	return &fixture{
		store:   store,
		ledger:  l,
		cache:   c,
		auth:    NewAuthService(store, l, cfg),
		credits: NewCreditService(store, l, c, cfg.LedgerTimeout, cfg.StatsCacheTTL),
		audit:   NewAuditService(store, chain, c, cfg.StatsCacheTTL),
		chain:   chain,
	}
}

func wallet(n int) string {
	return fmt.Sprintf("0x%040d", n)
}

// user stores an active user whose wallet is derived from n and grants its
// role on the ledger.
func (f *fixture) user(t *testing.T, n int, role models.Role) *models.User {
	t.Helper()
	u := &models.User{
		Username:      fmt.Sprintf("user%d", n),
		Email:         fmt.Sprintf("user%d@example.com", n),
		Password:      "unused",
		WalletAddress: wallet(n),
		Role:          role,
		IsActive:      true,
	}
	require.NoError(t, f.store.Users().Create(context.Background(), u))
	_, err := f.ledger.GrantRole(context.Background(), u.WalletAddress, role)
	require.NoError(t, err)
	return u
}

func validMetadata() models.Metadata {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return models.Metadata{
		ProductionFacility: models.ProductionFacility{
			Name:       "Electrolyser North",
			Location:   models.Location{Latitude: 52.1, Longitude: 4.3},
			Efficiency: 71.5,
		},
		ProductionDetails: models.ProductionDetails{
			StartDate:                 start,
			EndDate:                   start.Add(30 * 24 * time.Hour),
			RenewableEnergyPercentage: 100,
		},
		QualityMetrics: models.QualityMetrics{Purity: 99.97},
	}
}

func issueRequest(producer *models.User, amount int64) *dto.IssueCreditRequest {
	return &dto.IssueCreditRequest{
		ProducerAddress:     producer.WalletAddress,
		RenewableSourceType: "Solar",
		HydrogenAmount:      1000,
		CreditAmount:        amount,
		DetailedMetadata:    validMetadata(),
	}
}

func (f *fixture) issue(t *testing.T, certifier, producer *models.User, amount int64) *models.Credit {
	t.Helper()
	res, err := f.credits.IssueCredit(context.Background(), certifier, issueRequest(producer, amount))
	require.NoError(t, err)
	return res.Credit
}

func ptr[T any](v T) *T { return &v }

var errDiskFull = errors.New("disk full")

// flakyStore fails credit writes while failCredits is set.
type flakyStore struct {
	repository.Store
	failCredits bool
}

func (f *flakyStore) Credits() repository.CreditRepository {
	if f.failCredits {
		return failingCredits{f.Store.Credits()}
	}
	return f.Store.Credits()
}

func (f *flakyStore) WithTx(ctx context.Context, fn func(repository.Store) error) error {
	return f.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(&flakyStore{Store: tx, failCredits: f.failCredits})
	})
}

type failingCredits struct {
	repository.CreditRepository
}

func (failingCredits) Create(context.Context, *models.Credit) error { return errDiskFull }

func (failingCredits) Update(context.Context, *models.Credit) error { return errDiskFull }

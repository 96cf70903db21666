package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/cache"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/config"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/ledger"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/repository"
	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app    *fiber.App
	ledger *ledger.MemoryLedger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{
		JWTSecret:        "test-secret",
		JWTAccessExpiry:  15 * time.Minute,
		JWTRefreshExpiry: time.Hour,
		LedgerTimeout:    time.Second,
		StatsCacheTTL:    time.Minute,
		CORSOrigins:      "*",
		MetricsEnabled:   true,
	}
	store := repository.NewMemoryStore()
	chain := ledger.NewMemoryLedger(31337)
	require.NoError(t, chain.Connect(context.Background()))
	stats := cache.NewMemory()

	authService := services.NewAuthService(store, chain, cfg)
	chainService := services.NewBlockchainService(chain, cfg.LedgerTimeout)
	creditService := services.NewCreditService(store, chain, stats, cfg.LedgerTimeout, cfg.StatsCacheTTL)
	auditService := services.NewAuditService(store, chainService, stats, cfg.StatsCacheTTL)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	Setup(app, cfg, Handlers{
		Auth:       handlers.NewAuthHandler(authService),
		Credit:     handlers.NewCreditHandler(creditService),
		Audit:      handlers.NewAuditHandler(auditService),
		Blockchain: handlers.NewBlockchainHandler(chainService),
		Health:     handlers.NewHealthHandler(store, chainService, "test"),
	}, authService)
	return &testServer{app: app, ledger: chain}
}

type response struct {
	status int
	body   map[string]any
}

func (r response) errorMessage() string {
	e, _ := r.body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func (r response) object(key string) map[string]any {
	m, _ := r.body[key].(map[string]any)
	return m
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := response{status: resp.StatusCode, body: map[string]any{}}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out.body), string(raw))
	}
	return out
}

type account struct {
	token  string
	wallet string
}

func wallet(n int) string {
	return fmt.Sprintf("0x%040d", n)
}

func (s *testServer) register(t *testing.T, n int, name string, role models.Role) account {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]any{
		"username":      name,
		"email":         name + "@example.com",
		"password":      "s3cure-pass",
		"walletAddress": wallet(n),
		"role":          string(role),
		"organization":  "H2 Works",
	})
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	token, _ := res.body["accessToken"].(string)
	require.NotEmpty(t, token)
	return account{token: token, wallet: wallet(n)}
}

func issueBody(producer string, amount int64) map[string]any {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return map[string]any{
		"producerAddress":     producer,
		"renewableSourceType": "Solar",
		"hydrogenAmount":      1000,
		"creditAmount":        amount,
		"detailedMetadata": models.Metadata{
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
		},
	}
}

type participants struct {
	producer, certifier, consumer, regulator account
}

func (s *testServer) participants(t *testing.T) participants {
	return participants{
		producer:  s.register(t, 1, "producer", models.RoleProducer),
		certifier: s.register(t, 2, "certifier", models.RoleCertifier),
		consumer:  s.register(t, 3, "consumer", models.RoleConsumer),
		regulator: s.register(t, 4, "regulator", models.RoleRegulator),
	}
}

func TestCreditLifecycle(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)

	res := s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 100))
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	assert.Equal(t, "Credit issued successfully", res.body["message"])
	assert.NotEmpty(t, res.body["transactionHash"])
	creditID := res.body["creditId"].(float64)
	assert.Equal(t, float64(100), res.object("credit")["currentBalance"])

	res = s.do(t, http.MethodPost, "/api/credits/transfer", p.producer.token, map[string]any{
		"toAddress": p.consumer.wallet, "creditId": creditID, "amount": 40,
	})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, float64(40), res.object("credit")["newBalance"])
	recipient, _ := res.object("credit")["recipient"].(map[string]any)
	assert.Equal(t, "consumer", recipient["username"])

	res = s.do(t, http.MethodPost, "/api/credits/retire", p.consumer.token, map[string]any{
		"creditId": creditID, "amount": 40, "reason": "Scope 2 offset",
	})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, float64(40), res.object("credit")["retiredAmount"])
	assert.Equal(t, "Scope 2 offset", res.object("credit")["reason"])

	res = s.do(t, http.MethodPost, "/api/credits/retire", p.consumer.token, map[string]any{
		"creditId": creditID, "amount": 1, "reason": "again",
	})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "credit is already retired", res.errorMessage())

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/credits/%d/history", int64(creditID)), p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	history, _ := res.body["ownershipHistory"].([]any)
	require.Len(t, history, 3)
	var types []string
	for _, h := range history {
		types = append(types, h.(map[string]any)["type"].(string))
	}
	assert.Equal(t, []string{string(models.HistoryIssue), string(models.HistoryTransfer), string(models.HistoryRetire)}, types)

	res = s.do(t, http.MethodGet, "/api/credits/statistics", p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	stats := res.object("statistics")
	assert.Equal(t, float64(100), stats["totalCredits"])
	assert.Equal(t, float64(40), stats["retiredCredits"])
}

func TestCreditErrorsMapToStatus(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)

	res := s.do(t, http.MethodPost, "/api/credits/issue", "", issueBody(p.producer.wallet, 100))
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	res = s.do(t, http.MethodPost, "/api/credits/issue", "not-a-jwt", issueBody(p.producer.wallet, 100))
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
	assert.Equal(t, "Unauthorized: invalid or expired token", res.errorMessage())

	res = s.do(t, http.MethodPost, "/api/credits/issue", p.consumer.token, issueBody(p.producer.wallet, 100))
	assert.Equal(t, fiber.StatusForbidden, res.status)

	bad := issueBody("0x123", 0)
	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, bad)
	require.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "Validation failed", res.errorMessage())
	details, _ := res.object("error")["details"].([]any)
	fields := map[string]bool{}
	for _, d := range details {
		fields[d.(map[string]any)["field"].(string)] = true
	}
	assert.True(t, fields["producerAddress"], details)
	assert.True(t, fields["creditAmount"], details)

	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.consumer.wallet, 10))
	assert.Equal(t, fiber.StatusBadRequest, res.status)

	s.ledger.FailNext(ledger.MethodIssue, ledger.ErrRejected)
	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 10))
	assert.Equal(t, fiber.StatusBadGateway, res.status)

	s.ledger.FailNext(ledger.MethodIssue, ledger.ErrTimeout)
	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 10))
	assert.Equal(t, fiber.StatusGatewayTimeout, res.status)

	s.ledger.FailNext(ledger.MethodIssue, ledger.ErrUnavailable)
	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 10))
	assert.Equal(t, fiber.StatusServiceUnavailable, res.status)

	res = s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 10))
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	creditID := res.body["creditId"]

	res = s.do(t, http.MethodPost, "/api/credits/transfer", p.producer.token, map[string]any{
		"toAddress": p.consumer.wallet, "creditId": creditID, "amount": 11,
	})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	assert.Equal(t, "insufficient credit balance", res.errorMessage())

	res = s.do(t, http.MethodPost, "/api/credits/transfer", p.consumer.token, map[string]any{
		"toAddress": p.producer.wallet, "creditId": creditID, "amount": 1,
	})
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, http.MethodPost, "/api/credits/transfer", p.producer.token, map[string]any{
		"toAddress": wallet(99), "creditId": creditID, "amount": 1,
	})
	assert.Equal(t, fiber.StatusNotFound, res.status)

	res = s.do(t, http.MethodPost, "/api/credits/transfer", p.producer.token, map[string]any{
		"toAddress": p.consumer.wallet, "creditId": 999, "amount": 1,
	})
	assert.Equal(t, fiber.StatusNotFound, res.status)

	res = s.do(t, http.MethodGet, "/api/credits/not-an-id", p.producer.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	res = s.do(t, http.MethodGet, "/api/credits/999", p.producer.token, nil)
	assert.Equal(t, fiber.StatusNotFound, res.status)
	assert.Equal(t, "credit not found", res.errorMessage())
}

func TestCreditPagination(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)
	for i := 0; i < 25; i++ {
		res := s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, int64(i+1)))
		require.Equal(t, fiber.StatusCreated, res.status, res.body)
	}

	res := s.do(t, http.MethodGet, "/api/credits/my-credits?page=2&limit=10", p.producer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	credits, _ := res.body["credits"].([]any)
	assert.Len(t, credits, 10)
	pg := res.object("pagination")
	assert.Equal(t, float64(2), pg["currentPage"])
	assert.Equal(t, float64(3), pg["totalPages"])
	assert.Equal(t, float64(25), pg["totalCredits"])
	assert.Equal(t, true, pg["hasNext"])
	assert.Equal(t, true, pg["hasPrev"])

	res = s.do(t, http.MethodGet, "/api/credits/produced-credits?page=3", p.producer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	credits, _ = res.body["credits"].([]any)
	assert.Len(t, credits, 5)
	assert.Equal(t, false, res.object("pagination")["hasNext"])

	res = s.do(t, http.MethodGet, "/api/credits/produced-credits", p.consumer.token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, http.MethodGet, "/api/credits/my-credits?limit=101", p.producer.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, res.status)
	res = s.do(t, http.MethodGet, "/api/credits/my-credits?page=0", p.producer.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, res.status)

	res = s.do(t, http.MethodGet, "/api/audit/credits?limit=50", p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	credits, _ = res.body["credits"].([]any)
	assert.Len(t, credits, 25)
}

func TestAuditRoutes(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)
	res := s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 100))
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	id := res.object("credit")["id"].(string)

	res = s.do(t, http.MethodGet, "/api/audit/credits", p.consumer.token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, http.MethodPost, "/api/audit/verify/"+id, p.certifier.token, map[string]any{
		"isVerified": true, "verificationNotes": "site visit",
	})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, true, res.object("verificationStatus")["isVerified"])

	res = s.do(t, http.MethodGet, "/api/audit/credits/"+id, p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "site visit", res.object("verificationStatus")["verificationNotes"])

	res = s.do(t, http.MethodGet, "/api/audit/credits/not-a-uuid", p.regulator.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, res.status)

	res = s.do(t, http.MethodGet, "/api/audit/users?role=CONSUMER", p.certifier.token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, http.MethodGet, "/api/audit/users?role=CONSUMER", p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	users, _ := res.body["users"].([]any)
	assert.Len(t, users, 1)
	assert.Equal(t, float64(1), res.object("pagination")["totalUsers"])
	assert.NotEmpty(t, res.body["roleStatistics"])

	res = s.do(t, http.MethodGet, "/api/audit/operations?kind=ISSUE", p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, float64(1), res.object("pagination")["totalOperations"])

	res = s.do(t, http.MethodGet, "/api/audit/blockchain-events?eventName=CreditIssued", p.certifier.token, nil)
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	events, _ := res.body["events"].([]any)
	assert.Len(t, events, 1)

	res = s.do(t, http.MethodGet, "/api/audit/statistics", p.regulator.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, float64(1), res.object("overview")["verifiedCredits"])
}

func TestBlockchainRoutes(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)
	res := s.do(t, http.MethodPost, "/api/credits/issue", p.certifier.token, issueBody(p.producer.wallet, 100))
	require.Equal(t, fiber.StatusCreated, res.status, res.body)
	txHash := res.body["transactionHash"].(string)
	creditID := int64(res.body["creditId"].(float64))

	res = s.do(t, http.MethodGet, "/api/blockchain/network", p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, float64(31337), res.object("network")["chainId"])

	res = s.do(t, http.MethodGet, "/api/blockchain/transaction/"+txHash, p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, string(ledger.TxSuccess), res.object("transaction")["status"])

	res = s.do(t, http.MethodGet, "/api/blockchain/transaction/0x1234", p.consumer.token, nil)
	assert.Equal(t, fiber.StatusBadRequest, res.status)

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/blockchain/balance/%s/%d", p.producer.wallet, creditID), p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, float64(100), res.body["balance"])

	res = s.do(t, http.MethodGet, "/api/blockchain/total-credits", p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, float64(1), res.body["totalCredits"])

	res = s.do(t, http.MethodGet, "/api/blockchain/user-credits/"+p.producer.wallet+"?type=producer", p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, []any{float64(creditID)}, res.body["creditIds"])

	res = s.do(t, http.MethodGet, "/api/blockchain/role/"+p.certifier.wallet+"/CERTIFIER", p.consumer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, true, res.body["hasRole"])

	res = s.do(t, http.MethodGet, fmt.Sprintf("/api/blockchain/credit/%d", creditID+5), p.consumer.token, nil)
	assert.Equal(t, fiber.StatusNotFound, res.status)

	res = s.do(t, http.MethodPost, "/api/blockchain/verify", p.consumer.token, map[string]any{
		"creditId": creditID, "metadataHash": "0x" + fmt.Sprintf("%064d", 0),
	})
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, false, res.body["isValid"])

	res = s.do(t, http.MethodPost, "/api/blockchain/verify", p.consumer.token, map[string]any{})
	assert.Equal(t, fiber.StatusBadRequest, res.status)
}

func TestAccountRoutes(t *testing.T) {
	s := newTestServer(t)
	p := s.participants(t)

	res := s.do(t, http.MethodGet, "/api/auth/me", p.producer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "producer", res.object("user")["username"])
	_, leaked := res.object("user")["password"]
	assert.False(t, leaked)

	res = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "producer@example.com", "password": "wrong-pass",
	})
	assert.Equal(t, fiber.StatusUnauthorized, res.status)

	res = s.do(t, http.MethodGet, "/api/auth/users", p.producer.token, nil)
	assert.Equal(t, fiber.StatusForbidden, res.status)

	res = s.do(t, http.MethodGet, "/api/auth/users/CONSUMER", p.producer.token, nil)
	require.Equal(t, fiber.StatusOK, res.status)
	users, _ := res.body["users"].([]any)
	require.Len(t, users, 1)
	consumerID := users[0].(map[string]any)["id"].(string)

	res = s.do(t, http.MethodPatch, "/api/auth/users/"+consumerID+"/status", p.regulator.token, map[string]any{"isActive": false})
	require.Equal(t, fiber.StatusOK, res.status, res.body)
	assert.Equal(t, "User deactivated successfully", res.body["message"])

	res = s.do(t, http.MethodGet, "/api/auth/me", p.consumer.token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, res.status)
	assert.Equal(t, "Account is deactivated", res.errorMessage())
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	res := s.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, fiber.StatusOK, res.status)
	assert.Equal(t, "ok", res.body["status"])
	assert.Equal(t, "ok", res.body["db"])
	assert.Equal(t, "ok", res.body["ledger"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/budget"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/insights"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rewards"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scanner"
	"github.com/opensource-finance/kestrel/internal/stats"
)

type testEnv struct {
	server *Server
	repo   *repository.SQLRepository
	bus    *bus.ChannelBus
}

// createTestServer wires the real engines against a temporary SQLite store.
func createTestServer(t *testing.T, cfg domain.ServerConfig, async bool) *testEnv {
	t.Helper()

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	eventBus := bus.NewChannelBus(100)
	t.Cleanup(func() { eventBus.Close() })

	rs, err := rules.DefaultRules()
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	eval, err := rules.NewEvaluator(rs)
	if err != nil {
		t.Fatalf("failed to compile rules: %v", err)
	}
	rates, err := rewards.DefaultTable()
	if err != nil {
		t.Fatalf("failed to load reward rates: %v", err)
	}

	views := insights.NewService(repo, lru, insights.Config{
		Rates:    rates,
		Budgets:  budget.TableFromConfig(domain.BudgetConfig{}),
		CacheTTL: time.Minute,
	}, nil)
	mgr := alerts.NewManager(repo, nil, alerts.WithEventBus(eventBus), alerts.WithInvalidator(views))
	scans := scanner.NewService(repo, scanner.New(mgr, 4, nil), eval, 30*24*time.Hour, nil)

	server := NewServer(cfg, Dependencies{
		Repo:     repo,
		Cache:    lru,
		Bus:      eventBus,
		Scans:    scans,
		Alerts:   mgr,
		Insights: views,
		Stats:    stats.NewService(repo, "US"),
		Version:  "test-v1",
		Async:    async,
	})
	return &testEnv{server: server, repo: repo, bus: eventBus}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
}

func (e *testEnv) seed(t *testing.T, id, merchant string, amount float64) {
	t.Helper()
	err := e.repo.SaveTransaction(context.Background(), &domain.Transaction{
		ID:           id,
		UserID:       "user-001",
		CardID:       "card-001",
		Amount:       amount,
		MerchantName: merchant,
		Category:     "shopping",
		Location:     &domain.Location{Country: "US"},
		Timestamp:    time.Now().UTC().Add(-time.Hour),
		Status:       domain.StatusCompleted,
	})
	if err != nil {
		t.Fatalf("failed to seed transaction: %v", err)
	}
}

func defaultServerConfig() domain.ServerConfig {
	return domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
}

func TestHealthEndpoints(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)

	rr := env.do(t, http.MethodGet, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp map[string]string
	decode(t, rr, &resp)
	if resp["status"] != "healthy" || resp["version"] != "test-v1" {
		t.Errorf("unexpected health response %v", resp)
	}
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}

	if rr := env.do(t, http.MethodGet, "/ready", nil); rr.Code != http.StatusOK {
		t.Errorf("expected ready, got %d", rr.Code)
	}
}

func TestTransactionIngest(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)

	t.Run("CleanTransaction", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
			"id":           "tx-clean",
			"userId":       "user-001",
			"amount":       -42.50,
			"merchantName": "Whole Foods",
			"category":     "Groceries",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Transaction domain.Transaction `json:"transaction"`
			Flagged     bool               `json:"flagged"`
		}
		decode(t, rr, &resp)
		if resp.Flagged || resp.Transaction.Status != domain.StatusCompleted {
			t.Errorf("clean transaction was flagged: %+v", resp)
		}
		if resp.Transaction.Category != "groceries" {
			t.Errorf("expected normalized category, got %s", resp.Transaction.Category)
		}
	})

	t.Run("SuspiciousTransactionIsFlagged", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
			"id":           "tx-phish",
			"userId":       "user-001",
			"amount":       -499.99,
			"merchantName": "amazon-secure-payment.biz",
			"category":     "shopping",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Transaction domain.Transaction `json:"transaction"`
			Flagged     bool               `json:"flagged"`
		}
		decode(t, rr, &resp)
		if !resp.Flagged || resp.Transaction.Status != domain.StatusFlagged {
			t.Errorf("expected flagged transaction, got %+v", resp)
		}
	})

	t.Run("DuplicateID", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
			"id":           "tx-clean",
			"userId":       "user-001",
			"amount":       -1.0,
			"merchantName": "Whole Foods",
			"category":     "groceries",
		})
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409, got %d", rr.Code)
		}
	})

	t.Run("MissingAmount", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
			"userId":       "user-001",
			"merchantName": "Whole Foods",
		})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("FlaggedStatusRefused", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
			"id":           "tx-preflagged",
			"userId":       "user-001",
			"amount":       -12.00,
			"merchantName": "Whole Foods",
			"category":     "groceries",
			"status":       "flagged",
		})
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", rr.Code, rr.Body.String())
		}
		if _, err := env.repo.GetTransaction(context.Background(), "tx-preflagged"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected transaction not stored, got %v", err)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/transactions", "not-json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
		var resp map[string]string
		decode(t, rr, &resp)
		if resp["error"] == "" {
			t.Error("expected error message in body")
		}
	})

	t.Run("ListAndGet", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/transactions?userId=user-001&status=flagged", nil)
		var resp struct {
			Transactions []domain.Transaction `json:"transactions"`
			Count        int                  `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count != 1 || resp.Transactions[0].ID != "tx-phish" {
			t.Errorf("unexpected flagged list %+v", resp)
		}

		if rr := env.do(t, http.MethodGet, "/transactions/tx-clean", nil); rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/transactions/tx-missing", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/transactions?status=pending", nil); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for unknown status, got %d", rr.Code)
		}
	})
}

func TestAsyncIngestPublishes(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), true)

	received := make(chan *domain.Message, 1)
	_, err := env.bus.Subscribe(context.Background(), domain.GlobalPartition, domain.TopicTransactionIngested,
		func(ctx context.Context, msg *domain.Message) error {
			received <- msg
			return nil
		})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
		"id":           "tx-async",
		"amount":       -10.0,
		"merchantName": "Corner Cafe",
		"category":     "dining",
	}, UserIDHeader, "user-async")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
	}

	select {
	case msg := <-received:
		var tx domain.Transaction
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if tx.ID != "tx-async" || tx.UserID != "user-async" {
			t.Errorf("unexpected queued transaction %+v", tx)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("transaction was not published")
	}

	if _, err := env.repo.GetTransaction(context.Background(), "tx-async"); err == nil {
		t.Error("async ingest must leave storage to the worker")
	}
}

func TestScanEndpoint(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)
	env.seed(t, "tx-001", "Target", -25.00)
	env.seed(t, "tx-002", "paypal-confirm-account.net", -89.99)

	rr := env.do(t, http.MethodPost, "/security/transactions/scan", map[string]string{"userId": "user-001"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp scanResponse
	decode(t, rr, &resp)
	if resp.Scanned != 2 || resp.Flagged != 1 {
		t.Errorf("expected 2 scanned and 1 flagged, got %+v", resp)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].TransactionID != "tx-002" || resp.Alerts[0].AlertID == "" {
		t.Errorf("unexpected alerts %+v", resp.Alerts)
	}

	// The flagged transaction is not scanned again.
	rr = env.do(t, http.MethodPost, "/security/transactions/scan", map[string]string{"userId": "user-001"})
	decode(t, rr, &resp)
	if resp.Flagged != 0 || len(resp.Alerts) != 0 {
		t.Errorf("second scan flagged again: %+v", resp)
	}

	rr = env.do(t, http.MethodGet, "/security/security-alerts?userId=user-001", nil)
	var list []domain.SecurityAlert
	decode(t, rr, &list)
	if len(list) != 1 || list[0].Type != "phishing" {
		t.Errorf("unexpected alerts %+v", list)
	}

	rr = env.do(t, http.MethodGet, "/security/cards/card-001/security-alerts", nil)
	decode(t, rr, &list)
	if len(list) != 1 {
		t.Errorf("expected 1 card alert, got %d", len(list))
	}
}

func TestScanRateLimit(t *testing.T) {
	cfg := defaultServerConfig()
	cfg.ScanRateLimit = 1
	env := createTestServer(t, cfg, false)

	if rr := env.do(t, http.MethodPost, "/security/transactions/scan", nil, UserIDHeader, "user-001"); rr.Code != http.StatusOK {
		t.Fatalf("expected first scan to pass, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/security/transactions/scan", nil, UserIDHeader, "user-001"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/security/transactions/scan", nil, UserIDHeader, "user-002"); rr.Code != http.StatusOK {
		t.Errorf("limit must be per user, got %d", rr.Code)
	}
}

func TestApproveAndReject(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)
	env.seed(t, "tx-approve", "secure-payment-center.com", -120.00)
	env.seed(t, "tx-reject", "bank-urgent-notice.com", -300.00)
	env.do(t, http.MethodPost, "/security/transactions/scan", map[string]string{"userId": "user-001"})

	t.Run("Approve", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/security/transactions/tx-approve/approve", map[string]string{"userId": "user-001"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Success     bool                      `json:"success"`
			Message     string                    `json:"message"`
			Transaction domain.TransactionSummary `json:"transaction"`
		}
		decode(t, rr, &resp)
		if !resp.Success || resp.Message != "Transaction approved successfully" {
			t.Errorf("unexpected response %+v", resp)
		}
		if resp.Transaction.ID != "tx-approve" || resp.Transaction.Amount != -120.00 {
			t.Errorf("unexpected transaction %+v", resp.Transaction)
		}

		rr = env.do(t, http.MethodPost, "/security/transactions/tx-approve/approve", nil)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected status 409 on second approve, got %d", rr.Code)
		}
	})

	t.Run("Reject", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/security/transactions/tx-reject/reject", map[string]string{
			"userId": "user-001",
			"reason": "not me",
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Success     bool                      `json:"success"`
			Transaction domain.TransactionSummary `json:"transaction"`
		}
		decode(t, rr, &resp)
		if !resp.Success || resp.Transaction.Date == nil {
			t.Errorf("unexpected response %+v", resp)
		}

		if rr := env.do(t, http.MethodGet, "/transactions/tx-reject", nil); rr.Code != http.StatusNotFound {
			t.Errorf("rejected transaction still readable: %d", rr.Code)
		}
		if rr := env.do(t, http.MethodPost, "/security/transactions/tx-reject/reject", nil); rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second reject, got %d", rr.Code)
		}
	})
}

func TestReportResolveAndNotes(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)
	env.seed(t, "tx-report", "Local Hardware", -75.00)

	if rr := env.do(t, http.MethodPost, "/security/transactions/report", map[string]string{"transactionId": "tx-report"}); rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 without reason, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodPost, "/security/transactions/report", map[string]string{"transactionId": "tx-none", "reason": "x"}); rr.Code != http.StatusNotFound {
		t.Errorf("expected status 404 for unknown transaction, got %d", rr.Code)
	}

	rr := env.do(t, http.MethodPost, "/security/transactions/report", map[string]string{
		"transactionId": "tx-report",
		"reason":        "I did not make this purchase",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created map[string]string
	decode(t, rr, &created)
	alertID := created["alertId"]
	if alertID == "" {
		t.Fatal("expected alertId")
	}

	rr = env.do(t, http.MethodPost, "/security/security-alerts/"+alertID+"/notes", map[string]string{"note": "called the merchant"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var alert domain.SecurityAlert
	decode(t, rr, &alert)
	if len(alert.Notes) != 1 || alert.Notes[0].Author != DefaultUserID {
		t.Errorf("unexpected notes %+v", alert.Notes)
	}

	rr = env.do(t, http.MethodPost, "/security/security-alerts/"+alertID+"/resolve", map[string]string{"resolution": "ignored"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown resolution, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/security/security-alerts/"+alertID+"/resolve", map[string]string{
		"resolution": "approved",
		"notes":      "merchant confirmed",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	decode(t, rr, &alert)
	if alert.Status != domain.AlertResolved || alert.Resolution != domain.ResolutionApproved {
		t.Errorf("unexpected alert %+v", alert)
	}

	tx, err := env.repo.GetTransaction(context.Background(), "tx-report")
	if err != nil {
		t.Fatalf("GetTransaction failed: %v", err)
	}
	if tx.Status != domain.StatusCompleted {
		t.Errorf("expected completed after resolving last alert, got %s", tx.Status)
	}

	rr = env.do(t, http.MethodPost, "/security/security-alerts/"+alertID+"/resolve", map[string]string{"resolution": "rejected"})
	if rr.Code != http.StatusConflict {
		t.Errorf("expected status 409, got %d", rr.Code)
	}
}

func TestSecurityHelpers(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)

	t.Run("Rules", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/security/rules", nil)
		var resp struct {
			Rules []domain.FraudRule `json:"rules"`
			Count int                `json:"count"`
		}
		decode(t, rr, &resp)
		if resp.Count == 0 || resp.Rules[0].Kind != domain.RuleMerchantPattern {
			t.Errorf("expected merchant rules first, got %+v", resp.Rules)
		}
	})

	t.Run("MerchantCheck", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/security/merchant-check", map[string]string{"url": "https://amazonsecure-payment.com/login"})
		var a scanner.MerchantAssessment
		decode(t, rr, &a)
		if !a.Suspicious {
			t.Errorf("expected suspicious verdict, got %+v", a)
		}

		if rr := env.do(t, http.MethodPost, "/security/merchant-check", map[string]string{}); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		env.seed(t, "tx-stats", "Target", -1500.00)
		rr := env.do(t, http.MethodGet, "/security/stats?userId=user-001", nil)
		var s stats.SecurityStats
		decode(t, rr, &s)
		if s.TotalTransactions != 1 || s.HighValueTransactions != 1 {
			t.Errorf("unexpected stats %+v", s)
		}
	})
}

func TestRewardsAndBudget(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)
	header := []string{UserIDHeader, "user-rewards"}

	for _, card := range []map[string]interface{}{
		{"id": "card-visa", "cardName": "Travel Rewards Visa", "cardType": "VISA", "creditLimit": 5000, "currentMonthSpending": 4500},
		{"id": "card-amex", "cardName": "Blue Cash", "cardType": "amex"},
	} {
		if rr := env.do(t, http.MethodPost, "/cards", card, header...); rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := env.do(t, http.MethodPost, "/transactions", map[string]interface{}{
		"amount":       -600.0,
		"merchantName": "Whole Foods",
		"category":     "groceries",
	}, header...)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}

	t.Run("Optimization", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/rewards/optimization", nil, header...)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var plan rewards.Plan
		decode(t, rr, &plan)
		if len(plan.Optimizations) != 1 {
			t.Fatalf("expected 1 optimization, got %+v", plan)
		}
		opt := plan.Optimizations[0]
		if opt.Category != "groceries" || opt.BestCard == nil || opt.BestCard.CardID != "card-amex" {
			t.Errorf("unexpected recommendation %+v", opt)
		}
		if opt.RewardRate != "6%" || opt.PotentialMonthlyRewards != 36 || plan.PotentialAnnualRewards != 432 {
			t.Errorf("unexpected rewards %+v / %v", opt, plan.PotentialAnnualRewards)
		}
	})

	t.Run("BestCard", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/rewards/best-card?category=travel&userId=user-rewards", nil)
		var choice rewards.Choice
		decode(t, rr, &choice)
		if choice.Card.CardID != "card-visa" || choice.RewardRate != "3%" {
			t.Errorf("unexpected choice %+v", choice)
		}

		if rr := env.do(t, http.MethodGet, "/rewards/best-card", nil, header...); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 without category, got %d", rr.Code)
		}
	})

	t.Run("BudgetAnalysis", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/budget/analysis", nil, header...)
		var analysis budget.Analysis
		decode(t, rr, &analysis)

		if len(analysis.BudgetsByCategory) != 1 {
			t.Fatalf("expected 1 budget row, got %+v", analysis.BudgetsByCategory)
		}
		groceries := analysis.BudgetsByCategory[0]
		if groceries.Spent != 600 || groceries.Percentage != 120 || groceries.Status != domain.BandDanger {
			t.Errorf("unexpected groceries budget %+v", groceries)
		}

		var visa budget.UtilizationStatus
		for _, u := range analysis.CardUtilization {
			if u.CardID == "card-visa" {
				visa = u
			}
		}
		if visa.Utilization != 90 || visa.Status != domain.BandDanger {
			t.Errorf("unexpected visa utilization %+v", visa)
		}
	})

	t.Run("Analytics", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/analytics/spending/categories", nil, header...)
		var cats struct {
			Categories    []domain.CategorySpendSummary `json:"categories"`
			TotalSpending float64                       `json:"totalSpending"`
		}
		decode(t, rr, &cats)
		if len(cats.Categories) != 1 || cats.TotalSpending != 600 {
			t.Errorf("unexpected categories %+v", cats)
		}

		rr = env.do(t, http.MethodGet, "/analytics/merchants?limit=5", nil, header...)
		var merchants struct {
			Merchants []domain.MerchantSpendSummary `json:"merchants"`
		}
		decode(t, rr, &merchants)
		if len(merchants.Merchants) != 1 || merchants.Merchants[0].Merchant != "Whole Foods" {
			t.Errorf("unexpected merchants %+v", merchants)
		}

		rr = env.do(t, http.MethodGet, "/analytics/spending/trends?period=monthly&months=2", nil, header...)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/analytics/spending/trends?period=hourly", nil, header...); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for unknown period, got %d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/analytics/spending/categories?startDate=yesterday", nil, header...); rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad startDate, got %d", rr.Code)
		}
	})
}

func TestDefaultUser(t *testing.T) {
	env := createTestServer(t, defaultServerConfig(), false)

	rr := env.do(t, http.MethodPost, "/cards", map[string]string{"cardName": "Blue Cash", "cardType": "AMEX"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var card domain.Card
	decode(t, rr, &card)
	if card.UserID != DefaultUserID {
		t.Errorf("expected %s, got %s", DefaultUserID, card.UserID)
	}

	rr = env.do(t, http.MethodGet, "/cards", nil)
	var cards []domain.Card
	decode(t, rr, &cards)
	if len(cards) != 1 {
		t.Errorf("expected 1 card for the default user, got %d", len(cards))
	}

	rr = env.do(t, http.MethodGet, "/cards?userId=someone-else", nil)
	decode(t, rr, &cards)
	if len(cards) != 0 {
		t.Errorf("expected no cards for another user, got %d", len(cards))
	}
}

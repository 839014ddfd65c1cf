package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/talabin/api"
	"github.com/Aidin1998/talabin/internal/accounts"
	"github.com/Aidin1998/talabin/internal/config"
	"github.com/Aidin1998/talabin/internal/events"
	"github.com/Aidin1998/talabin/internal/fiat"
	"github.com/Aidin1998/talabin/internal/installments"
	"github.com/Aidin1998/talabin/internal/ledger"
	"github.com/Aidin1998/talabin/internal/pricing"
	"github.com/Aidin1998/talabin/internal/trading"
	"github.com/Aidin1998/talabin/internal/userauth"
	"github.com/Aidin1998/talabin/testutil"
)

const secret = "test-secret"

type harness struct {
	db       *gorm.DB
	router   *gin.Engine
	verifier *userauth.Verifier
}

func setup(t *testing.T, rateLimit string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	log := zap.NewNop()
	publisher := events.NewPublisher(log, &events.Recorder{})
	ledgerSvc := ledger.NewService(log, db, nil)
	oracle := pricing.NewOracle(log, db, pricing.Options{Events: publisher})
	verifier := userauth.NewVerifier(secret, "talabin")

	cfg := config.Default().Server
	cfg.RateLimit = rateLimit
	srv, err := api.NewServer(log, cfg, "talabin-test", api.Services{
		Verifier:     verifier,
		Accounts:     accounts.NewService(log, ledgerSvc),
		Ledger:       ledgerSvc,
		Oracle:       oracle,
		Engine:       trading.NewEngine(log, ledgerSvc, oracle, publisher, trading.DefaultConfig()),
		Fiat:         fiat.NewService(log, ledgerSvc, fiat.DefaultConfig(), fiat.Options{Events: publisher}),
		Installments: installments.NewService(log, ledgerSvc, publisher),
	})
	require.NoError(t, err)
	return &harness{db: db, router: srv.Router(), verifier: verifier}
}

func (h *harness) token(t *testing.T, userID uuid.UUID, staff bool) string {
	t.Helper()
	token, err := h.verifier.Issue(userID, staff, time.Hour)
	require.NoError(t, err)
	return token
}

func (h *harness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	h := setup(t, "100-M")

	for _, path := range []string{"/health", "/api/v1/health"} {
		w := h.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode(t, w)["status"])
		assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	}
}

func TestMetricsAndSwagger(t *testing.T) {
	h := setup(t, "100-M")
	h.do(t, http.MethodGet, "/health", "", nil)

	w := h.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "talabin_http_requests_total")

	w = h.do(t, http.MethodGet, "/swagger/doc.json", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Talabin API")
}

func TestAuthentication(t *testing.T) {
	h := setup(t, "100-M")
	user := testutil.CreateUser(t, h.db, "+989121234567")

	w := h.do(t, http.MethodGet, "/api/v1/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

	w = h.do(t, http.MethodGet, "/api/v1/wallet", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/wallet", h.token(t, user.ID, false), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "0", data["available_irr"])

	w = h.do(t, http.MethodPost, "/api/v1/admin/prices", h.token(t, user.ID, false),
		map[string]string{"buy_price": "2950000", "sell_price": "3050000"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a staff claim is not enough once the user record says otherwise
	w = h.do(t, http.MethodPost, "/api/v1/admin/prices", h.token(t, user.ID, true),
		map[string]string{"buy_price": "2950000", "sell_price": "3050000"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestPublishPriceAndTrade(t *testing.T) {
	h := setup(t, "100-M")
	staff := testutil.CreateUser(t, h.db, "+989120000000")
	require.NoError(t, h.db.Model(staff).Update("is_staff", true).Error)
	user := testutil.CreateUser(t, h.db, "+989121234567")
	testutil.Fund(t, h.db, user.ID, "5000000", "0")

	w := h.do(t, http.MethodGet, "/api/v1/prices/current", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/admin/prices", h.token(t, staff.ID, true),
		map[string]string{"buy_price": "2950000", "sell_price": "3050000", "source": "desk"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = h.do(t, http.MethodGet, "/api/v1/prices/current", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	price := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "3050000", price["sell_price"])

	token := h.token(t, user.ID, false)
	order := map[string]string{"order_type": "buy", "amount_irr": "1000000"}

	w = h.do(t, http.MethodPost, "/api/v1/orders/preview", token, order)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	quote := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "0.3279", quote["gold_amount"])

	w = h.do(t, http.MethodPost, "/api/v1/orders", token, order)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "completed", placed["status"])
	assert.Equal(t, "1005000", placed["total_amount"])

	w = h.do(t, http.MethodGet, "/api/v1/orders/"+placed["order_number"].(string), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/orders", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	pagination := decode(t, w)["pagination"].(map[string]interface{})
	assert.EqualValues(t, 1, pagination["total_records"])

	w = h.do(t, http.MethodGet, "/api/v1/wallet/transactions?type=buy_gold", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode(t, w)["data"].([]interface{})
	assert.Len(t, entries, 1)
}

func TestOrderErrors(t *testing.T) {
	h := setup(t, "100-M")
	user := testutil.CreateUser(t, h.db, "+989121234567")
	testutil.Fund(t, h.db, user.ID, "10000", "0")
	testutil.SetPrice(t, h.db, "2950000", "3050000")
	token := h.token(t, user.ID, false)

	w := h.do(t, http.MethodPost, "/api/v1/orders", token, map[string]string{"order_type": "buy", "amount_irr": "1000000"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	problem := decode(t, w)
	assert.Equal(t, "failed", problem["order_status"])
	assert.EqualValues(t, 422, problem["status"])
	assert.NotEmpty(t, problem["order_number"])

	w = h.do(t, http.MethodPost, "/api/v1/orders", token, map[string]string{"order_type": "swap", "amount_irr": "1000000"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodPost, "/api/v1/orders", token, map[string]string{"order_type": "buy", "amount_irr": "100500"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/api/v1/orders/TXN-missing", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimit(t *testing.T) {
	h := setup(t, "2-M")

	for i := 0; i < 2; i++ {
		w := h.do(t, http.MethodGet, "/api/v1/health", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := h.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// the root health check is not limited
	w = h.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestInvalidRateLimit(t *testing.T) {
	cfg := config.Default().Server
	cfg.RateLimit = "lots"
	_, err := api.NewServer(zap.NewNop(), cfg, "talabin-test", api.Services{})
	assert.Error(t, err)
}

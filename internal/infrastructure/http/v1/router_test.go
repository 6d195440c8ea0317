package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"templestock/internal/domain/auth"
	"templestock/internal/domain/product"
	"templestock/internal/domain/reconcile"
	"templestock/internal/domain/uniqueness"
	"templestock/internal/infrastructure/http/v1/handlers"
	"templestock/internal/infrastructure/storage/memory"
	"templestock/internal/keylock"
	"templestock/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	t      *testing.T
	router *gin.Engine
	jwt    *auth.JWTService
	token  string
}

type failingCheck struct{}

func (failingCheck) Check(context.Context) error { return errors.New("connection refused") }

func newAPI(t *testing.T, checks map[string]handlers.Checker) *apiFixture {
	st := memory.New()
	guard := uniqueness.NewGuard(st.Movements, st.Products)
	engine := reconcile.NewEngine(reconcile.Deps{
		Products:  st.Products,
		Documents: st.Movements,
		Lines:     st.Movements,
		Guard:     guard,
		Journal:   st.Journal,
		Locker:    keylock.NewLocal(),
		TxManager: st.TxManager(),
	}, reconcile.Config{})

	jwtService := auth.NewJWTService(auth.JWTConfig{Secret: "test-secret", Issuer: "templestock"})
	token, err := jwtService.IssueToken("user-1", "temple-1", nil, time.Hour)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Logger:       logger.NewNop(),
		JWTValidator: jwtService,
		Engine:       engine,
		Products:     product.NewService(st.Products, guard, st.TxManager()),
		HealthChecks: checks,
	})
	return &apiFixture{t: t, router: router, jwt: jwtService, token: token}
}

func (f *apiFixture) do(method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	return f.doAs(f.token, method, path, body)
}

func (f *apiFixture) doAs(token, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (f *apiFixture) createProduct(name string) string {
	f.t.Helper()
	w, body := f.do(http.MethodPost, "/api/v1/products", map[string]any{
		"name": name, "category": "pooja", "unitOfMeasure": "kg", "minQuantity": 2,
	})
	require.Equal(f.t, http.StatusCreated, w.Code, w.Body.String())
	return body["id"].(string)
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func inwardBody(challan, productID string, qty int64) map[string]any {
	return map[string]any{
		"vendorName":    "Sri Traders",
		"vendorAddress": "Main Road",
		"challanNo":     challan,
		"date":          today(),
		"lines":         []map[string]any{{"productId": productID, "qty": qty, "batchNo": "B1", "expiryDate": "2027-01-01"}},
	}
}

func outwardBody(no, productID string, qty int64) map[string]any {
	return map[string]any{
		"customerName": "Kitchen",
		"outwardNo":    no,
		"date":         today(),
		"lines":        []map[string]any{{"productId": productID, "qty": qty}},
	}
}

func (f *apiFixture) stock(productID string) float64 {
	f.t.Helper()
	w, body := f.do(http.MethodGet, "/api/v1/products/"+productID, nil)
	require.Equal(f.t, http.StatusOK, w.Code)
	return body["currentStock"].(float64)
}

func TestHealth(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		f := newAPI(t, nil)
		w, body := f.doAs("", http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("failing dependency", func(t *testing.T) {
		f := newAPI(t, map[string]handlers.Checker{"database": failingCheck{}, "redis": nil})
		w, body := f.doAs("", http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		checks := body["checks"].(map[string]any)
		assert.Contains(t, checks["database"], "unhealthy")
		assert.NotContains(t, checks, "redis")
	})
}

func TestAuthRequired(t *testing.T) {
	f := newAPI(t, nil)

	w, body := f.doAs("", http.MethodGet, "/api/v1/products/0190c8a4-0000-7000-8000-000000000001", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	w, _ = f.doAs("not-a-token", http.MethodGet, "/api/v1/products/0190c8a4-0000-7000-8000-000000000001", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMovementLifecycle(t *testing.T) {
	f := newAPI(t, nil)
	rice := f.createProduct("Rice")

	w, body := f.do(http.MethodPost, "/api/v1/inwards", inwardBody("CH-1", rice, 10))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	inID := body["id"].(string)
	assert.Equal(t, float64(10), f.stock(rice))

	w, body = f.do(http.MethodGet, "/api/v1/inwards/"+inID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CH-1", body["challanNo"])
	assert.Equal(t, today(), body["date"])
	lines := body["lines"].([]any)
	require.Len(t, lines, 1)
	assert.Equal(t, "2027-01-01", lines[0].(map[string]any)["expiryDate"])

	// An inward document is not visible as an outward one.
	w, _ = f.do(http.MethodGet, "/api/v1/outwards/"+inID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = f.do(http.MethodPost, "/api/v1/outwards", outwardBody("OUT-1", rice, 25))
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", body["code"])
	details := body["details"].(map[string]any)
	assert.Equal(t, float64(10), details["available"])
	assert.Equal(t, float64(1), details["lineNo"])

	w, body = f.do(http.MethodPost, "/api/v1/outwards", outwardBody("OUT-1", rice, 4))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	outID := body["id"].(string)
	assert.Equal(t, float64(6), f.stock(rice))

	// Reversing the 10 received would leave -4 while 4 are issued.
	w, body = f.do(http.MethodPut, "/api/v1/inwards/"+inID, inwardBody("CH-1", rice, 12))
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, "STOCK_CONFLICT", body["code"])
	assert.Equal(t, float64(6), f.stock(rice))

	w, _ = f.do(http.MethodDelete, "/api/v1/outwards/"+outID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, float64(10), f.stock(rice))

	w, _ = f.do(http.MethodPut, "/api/v1/inwards/"+inID, inwardBody("CH-1", rice, 12))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(12), f.stock(rice))

	w, body = f.do(http.MethodGet, "/api/v1/inwards/"+inID+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, body["items"], 2)

	w, body = f.do(http.MethodGet, "/api/v1/products/"+rice+"/stock-check", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["consistent"])
}

func TestErrorResponses(t *testing.T) {
	f := newAPI(t, nil)
	rice := f.createProduct("Rice")

	t.Run("duplicate challan", func(t *testing.T) {
		w, _ := f.do(http.MethodPost, "/api/v1/inwards", inwardBody("CH-9", rice, 1))
		require.Equal(t, http.StatusCreated, w.Code)
		w, body := f.do(http.MethodPost, "/api/v1/inwards", inwardBody("CH-9", rice, 1))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "DUPLICATE_REFERENCE", body["code"])
	})

	t.Run("bad product id on a line", func(t *testing.T) {
		w, body := f.do(http.MethodPost, "/api/v1/inwards", inwardBody("CH-10", "nope", 1))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "INVALID_LINE", body["code"])
	})

	t.Run("bad date", func(t *testing.T) {
		req := inwardBody("CH-11", rice, 1)
		req["date"] = "05/01/2026"
		w, body := f.do(http.MethodPost, "/api/v1/inwards", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})

	t.Run("missing vendor", func(t *testing.T) {
		req := inwardBody("CH-12", rice, 1)
		delete(req, "vendorName")
		w, body := f.do(http.MethodPost, "/api/v1/inwards", req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", body["code"])
	})

	t.Run("malformed path id", func(t *testing.T) {
		w, _ := f.do(http.MethodGet, "/api/v1/inwards/123", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("duplicate product name", func(t *testing.T) {
		w, body := f.do(http.MethodPost, "/api/v1/products", map[string]any{
			"name": " Rice ", "category": "pooja", "unitOfMeasure": "kg",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "DUPLICATE_ENTRY", body["code"])
	})
}

func TestTenantIsolation(t *testing.T) {
	f := newAPI(t, nil)
	rice := f.createProduct("Rice")

	other, err := f.jwt.IssueToken("user-2", "temple-2", nil, time.Hour)
	require.NoError(t, err)

	w, _ := f.doAs(other, http.MethodGet, "/api/v1/products/"+rice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body := f.doAs(other, http.MethodPost, "/api/v1/inwards", inwardBody("CH-1", rice, 5))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "INVALID_LINE", body["code"])
	assert.Equal(t, float64(0), f.stock(rice))
}

func TestStockRepairNeedsRole(t *testing.T) {
	f := newAPI(t, nil)
	rice := f.createProduct("Rice")

	w, body := f.do(http.MethodPost, "/api/v1/products/"+rice+"/stock-repair", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", body["code"])

	admin, err := f.jwt.IssueToken("admin-1", "temple-1", []string{RoleStockAdmin}, time.Hour)
	require.NoError(t, err)
	w, body = f.doAs(admin, http.MethodPost, "/api/v1/products/"+rice+"/stock-repair", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, true, body["consistent"])
}

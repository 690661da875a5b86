package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/comanda/internal/checkout"
	"github.com/smallbiznis/comanda/internal/config"
	"github.com/smallbiznis/comanda/internal/dashboard"
	"github.com/smallbiznis/comanda/internal/floortest"
	orderdomain "github.com/smallbiznis/comanda/internal/order/domain"
	"github.com/smallbiznis/comanda/internal/outbox"
	"github.com/smallbiznis/comanda/internal/providers/webhook"
	"github.com/smallbiznis/comanda/internal/ratelimit"
	"github.com/smallbiznis/comanda/internal/report"
	"github.com/smallbiznis/comanda/internal/tablesession"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubForwarder struct {
	err  error
	body []byte
}

func (f *stubForwarder) Forward(ctx context.Context, body []byte) error {
	f.body = body
	return f.err
}

type testServer struct {
	floor     *floortest.Floor
	server    *Server
	monitor   *dashboard.Monitor
	forwarder *stubForwarder
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := floortest.New(t)
	log := zap.NewNop()
	limiter := &ratelimit.SubmissionLimiter{}

	reconciler := outbox.NewReconciler(outbox.Params{
		Store:    outbox.NewMemoryStore(),
		Log:      log,
		Clock:    f.Clock,
		Settings: f.Settings,
	})
	session := tablesession.New(tablesession.Params{
		DB:          f.DB,
		Log:         log,
		Clock:       f.Clock,
		Settings:    f.Settings,
		CatalogSvc:  f.Catalog,
		ComandaSvc:  f.Tabs,
		OrderSvc:    f.Orders,
		CustomerSvc: f.Customers,
		Results:     f.Results,
		Limiter:     limiter,
		Events:      f.Hub,
	})
	checkoutSvc := checkout.New(checkout.Params{
		Log:         log,
		Clock:       f.Clock,
		Settings:    f.Settings,
		CatalogSvc:  f.Catalog,
		OrderSvc:    f.Orders,
		CustomerSvc: f.Customers,
		Outbox:      reconciler,
		Events:      f.Hub,
	})
	monitor := dashboard.New(dashboard.Params{
		Log:        log,
		Clock:      f.Clock,
		Settings:   f.Settings,
		ComandaSvc: f.Tabs,
		OrderSvc:   f.Orders,
		Events:     f.Hub,
	})
	reports := report.New(report.Params{
		Log:      log,
		Clock:    f.Clock,
		Settings: f.Settings,
		OrderSvc: f.Orders,
	})

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	forwarder := &stubForwarder{}
	srv := NewServer(ServerParams{
		Gin:         engine,
		Cfg:         cfg,
		Settings:    f.Settings,
		Log:         log,
		CatalogSvc:  f.Catalog,
		CustomerSvc: f.Customers,
		WaiterSvc:   f.Waiters,
		ComandaSvc:  f.Tabs,
		OrderSvc:    f.Orders,
		Session:     session,
		Checkout:    checkoutSvc,
		Monitor:     monitor,
		Reports:     reports,
		Outbox:      reconciler,
		Hub:         f.Hub,
		Limiter:     limiter,
		Forwarder:   forwarder,
	})

	return &testServer{floor: f, server: srv, monitor: monitor, forwarder: forwarder}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, out))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestMenuListsAvailableProducts(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	ts.floor.Product(t, "X-Tudo", "25.00")

	rec := ts.do(t, http.MethodGet, "/api/menu", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var menu []struct {
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	}
	decodeData(t, rec, &menu)
	require.Len(t, menu, 1)
	assert.Equal(t, "X-Tudo", menu[0].Name)
	assert.True(t, menu[0].Price.Equal(decimal.RequireFromString("25.00")))
}

func TestTableOrderFlow(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	burger := ts.floor.Product(t, "Bacon Burger", "22.90")
	customer := ts.floor.Customer(t, "Joana", "joana@example.com")

	rec := ts.do(t, http.MethodGet, "/api/tables/5/tab", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":null}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/tables/5/orders", gin.H{
		"customer_id": customer.ID.String(),
		"items":       []gin.H{{"product_id": burger.ID, "quantity": 2}},
	}, map[string]string{headerIdempotencyKey: "batch-1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var submitted tablesession.SubmitResult
	decodeData(t, rec, &submitted)
	assert.False(t, submitted.IsAddition)
	assert.True(t, submitted.Tab.Total.Equal(decimal.RequireFromString("45.80")))

	rec = ts.do(t, http.MethodPost, "/api/tables/5/orders", gin.H{
		"customer_id": customer.ID.String(),
		"items":       []gin.H{{"product_id": burger.ID, "quantity": 2}},
	}, map[string]string{headerIdempotencyKey: "batch-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeData(t, rec, &submitted)
	assert.True(t, submitted.Replayed)

	rec = ts.do(t, http.MethodPost, "/api/tables/5/bill", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, ts.monitor.Refresh(context.Background()))
	rec = ts.do(t, http.MethodGet, "/admin/tabs/bill-requests", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var bills []struct {
		TableNumber      int  `json:"table_number"`
		ClosingRequested bool `json:"closing_requested"`
	}
	decodeData(t, rec, &bills)
	require.Len(t, bills, 1)
	assert.Equal(t, 5, bills[0].TableNumber)
	assert.True(t, bills[0].ClosingRequested)
}

func TestTableRoutesValidateInput(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	rec := ts.do(t, http.MethodGet, "/api/tables/abc/tab", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/tables/2/orders", gin.H{"items": []gin.H{}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "empty_cart", payload.Errors[0].Code)

	rec = ts.do(t, http.MethodPost, "/api/tables/2/bill", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckoutRoute(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	pizza := ts.floor.Product(t, "Pizza Calabresa", "39.00")

	rec := ts.do(t, http.MethodPost, "/api/checkout", gin.H{
		"items": []gin.H{{"product_id": pizza.ID, "quantity": 2}},
		"payment": gin.H{
			"method":        "pix",
			"name":          "Carla",
			"phone":         "(92) 99123-4567",
			"email":         "carla@example.com",
			"delivery_type": "pickup",
		},
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var result checkout.Result
	decodeData(t, rec, &result)
	assert.False(t, result.Queued)
	assert.True(t, result.Total.Equal(decimal.RequireFromString("78.00")))
	require.NotNil(t, result.Order)
	assert.Equal(t, orderdomain.SourcePickup, result.Order.Source)

	rec = ts.do(t, http.MethodGet, "/api/customer-orders?email=carla@example.com", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []orderdomain.Response
	decodeData(t, rec, &history)
	assert.Len(t, history, 1)

	rec = ts.do(t, http.MethodGet, "/api/customer-orders", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckoutRejectsShortPhone(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	pizza := ts.floor.Product(t, "Pizza Calabresa", "39.00")

	rec := ts.do(t, http.MethodPost, "/api/checkout", gin.H{
		"items": []gin.H{{"product_id": pizza.ID, "quantity": 1}},
		"payment": gin.H{
			"method":  "card",
			"name":    "Carla",
			"phone":   "12345",
			"address": "Rua A, 10",
		},
	}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "invalid_phone", payload.Errors[0].Code)
	assert.Equal(t, "phone", payload.Errors[0].Field)
}

func TestOrderWebhookPassThrough(t *testing.T) {
	ts := newTestServer(t, config.Config{OrderWebhookURL: "http://upstream.invalid"})

	rec := ts.do(t, http.MethodGet, "/api/pedidos", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/pedidos", strings.NewReader("pedido=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/pedidos", "{not json", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/pedidos", `{"pedido":1}`, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pedido":1}`, string(ts.forwarder.body))

	ts.forwarder.err = &webhook.UpstreamError{Status: http.StatusInternalServerError, Body: "boom"}
	rec = ts.do(t, http.MethodPost, "/api/pedidos", `{"pedido":2}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.forwarder.err = errors.New("dial tcp: connection refused")
	rec = ts.do(t, http.MethodPost, "/api/pedidos", `{"pedido":3}`, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	ts.forwarder.err = webhook.ErrNotConfigured
	rec = ts.do(t, http.MethodPost, "/api/pedidos", `{"pedido":4}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, config.Config{AdminAPIToken: "s3cret"})

	rec := ts.do(t, http.MethodGet, "/admin/tabs", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/tabs", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/admin/tabs", nil, map[string]string{"Authorization": "Bearer s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/menu", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminTabLifecycle(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	juice := ts.floor.Product(t, "Suco de Cupuacu", "10.00")

	rec := ts.do(t, http.MethodPost, "/admin/tabs", gin.H{"table_number": 7, "customer_name": "Bruno"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var tab struct {
		ID    string          `json:"id"`
		Total decimal.Decimal `json:"total"`
	}
	decodeData(t, rec, &tab)

	rec = ts.do(t, http.MethodPost, "/admin/tabs", gin.H{"table_number": 7}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/tabs/"+tab.ID+"/items", gin.H{"product_id": juice.ID, "quantity": 3}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeData(t, rec, &tab)
	assert.True(t, tab.Total.Equal(decimal.RequireFromString("30.00")))

	rec = ts.do(t, http.MethodPost, "/admin/tabs/"+tab.ID+"/settle", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/admin/tabs/"+tab.ID+"/items", gin.H{"product_id": juice.ID, "quantity": 1}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAdminOrderStatusTransitions(t *testing.T) {
	ts := newTestServer(t, config.Config{})
	order, err := ts.floor.Orders.Create(context.Background(), orderdomain.CreateRequest{
		CustomerName:  "Ana",
		CustomerPhone: "92991234567",
		Items: []orderdomain.LineItem{{
			Name:     "Acai",
			Quantity: 1,
			Price:    decimal.RequireFromString("18.00"),
			Subtotal: decimal.RequireFromString("18.00"),
		}},
		PaymentMethod: orderdomain.PaymentCard,
		Address:       "Rua B, 20",
		Source:        orderdomain.SourceDelivery,
	})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/admin/orders/"+order.ID+"/next", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"status":"pending","next_statuses":["confirmed","cancelled"]}}`, rec.Body.String())

	rec = ts.do(t, http.MethodPatch, "/admin/orders/"+order.ID+"/status", gin.H{"status": "delivered"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPatch, "/admin/orders/"+order.ID+"/status", gin.H{"status": "confirmed"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated orderdomain.Response
	decodeData(t, rec, &updated)
	assert.Equal(t, orderdomain.StatusConfirmed, updated.Status)

	rec = ts.do(t, http.MethodGet, "/admin/orders/not-a-number/next", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTableQRCode(t *testing.T) {
	ts := newTestServer(t, config.Config{PublicBaseURL: "https://cardapio.example.com"})

	rec := ts.do(t, http.MethodGet, "/admin/tables/5/qr", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "mesa-5.png")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = ts.do(t, http.MethodGet, "/admin/tables/5/qr?size=10", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyReportRoute(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	rec := ts.do(t, http.MethodGet, "/admin/reports/daily?date=2025-03-14", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var daily report.Report
	decodeData(t, rec, &daily)
	assert.Equal(t, 0, daily.TotalOrders)

	rec = ts.do(t, http.MethodGet, "/admin/reports/daily?date=14/03/2025", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOutboxRoutes(t *testing.T) {
	ts := newTestServer(t, config.Config{})

	rec := ts.do(t, http.MethodGet, "/admin/outbox", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"pending":0,"dead":0}}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/admin/outbox/drain", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"replayed":0,"failed":0,"buried":0,"remaining":0}}`, rec.Body.String())
}

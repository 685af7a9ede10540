package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lumeshop/storefront-api/internal/domain/auth"
	"github.com/lumeshop/storefront-api/internal/domain/cart"
	"github.com/lumeshop/storefront-api/internal/domain/checkout"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/pricing"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

type stubValidator struct {
	discount *promo.Discount
	err      error
}

func (s *stubValidator) Validate(context.Context, string, decimal.Decimal) (*promo.Discount, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.discount, nil
}

type stubGateway struct {
	status payment.IntentStatus
}

func (s *stubGateway) CreateIntent(_ context.Context, amount decimal.Decimal) (*payment.Intent, error) {
	return &payment.Intent{ID: "pi_test", ClientSecret: "cs_test", Status: s.status, Amount: amount}, nil
}

func (s *stubGateway) RetrieveIntent(_ context.Context, id string) (*payment.Intent, error) {
	return &payment.Intent{ID: id, Status: s.status}, nil
}

type stubOrders struct {
	byID map[string]*order.Order
}

func newStubOrders() *stubOrders {
	return &stubOrders{byID: make(map[string]*order.Order)}
}

func (s *stubOrders) Create(_ context.Context, o *order.Order) error {
	s.byID[o.ID] = o
	return nil
}

func (s *stubOrders) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrders) FindByPaymentIntent(_ context.Context, intentID string) (*order.Order, error) {
	for _, o := range s.byID {
		if o.PaymentIntentID == intentID {
			return o, nil
		}
	}
	return nil, order.ErrNotFound
}

func (s *stubOrders) UpdateStatus(_ context.Context, id string, status order.Status) (*order.Order, error) {
	o, ok := s.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	o.Status = status
	return o, nil
}

type stubCarts struct {
	byID map[string]*cart.Cart
}

func (s *stubCarts) Get(_ context.Context, id string) (*cart.Cart, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (s *stubCarts) Delete(context.Context, string) error { return nil }

// stubKeys accepts every key whose computed hash it is asked about.
type stubKeys struct {
	deny bool
}

func (s *stubKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if s.deny {
		return nil, auth.ErrNotFound
	}
	return &auth.APIKeyInfo{ID: "key-1", KeyHash: hash, Name: "test"}, nil
}

var testPepper = []byte("test-pepper")

func newTestMux(t *testing.T, promos promo.Validator, gw payment.Gateway, orders order.Repository, keys auth.Repository) *http.ServeMux {
	t.Helper()

	params := pricing.Params{
		ShippingThreshold: decimal.NewFromInt(50),
		BaseShippingCost:  decimal.RequireFromString("5.99"),
	}
	carts := &stubCarts{byID: map[string]*cart.Cart{
		"cart-1": {ID: "cart-1", UserID: "user-1", Status: cart.StatusActive, Lines: []cart.LineItem{
			{ProductID: "p1", ProductName: "Velvet Lipstick", UnitPrice: decimal.NewFromInt(20), Quantity: 2},
		}},
	}}
	runner := checkout.NewRunner(zaptest.NewLogger(t), checkout.SideEffects{})
	svc := checkout.NewService(params, promos, gw, carts, orders, runner)

	mux := http.NewServeMux()
	NewHandler(svc, promos, orders, keys, testPepper).Register(mux)
	return mux
}

const validOrderBody = `{
	"userId": "user-1",
	"cartId": "cart-1",
	"paymentMethod": "cash_on_delivery",
	"items": [
		{"productId": "p1", "productName": "Velvet Lipstick", "unitPrice": 20, "quantity": 2}
	],
	"shipping": {
		"firstName": "Ada", "lastName": "Okafor", "email": "ada@example.com",
		"address": "1 Main St", "city": "Lagos", "postalCode": "10001", "country": "NG"
	}
}`

func doJSON(t *testing.T, mux *http.ServeMux, method, target, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	return rec, parsed
}

func TestPlaceOrderCashOnDelivery(t *testing.T) {
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/order", validOrderBody, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, false, resp["alreadyPlaced"])

	o, ok := resp["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "new", o["status"])
	assert.Equal(t, "cash", o["paymentStatus"])
	assert.InDelta(t, 40.0, o["subtotal"], 0.001)
	assert.InDelta(t, 5.99, o["shippingCost"], 0.001)
	assert.InDelta(t, 45.99, o["totalAmount"], 0.001)
}

func TestPlaceOrderMissingShippingFields(t *testing.T) {
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, newStubOrders(), &stubKeys{})

	body := `{
		"userId": "user-1", "cartId": "cart-1", "paymentMethod": "cash_on_delivery",
		"items": [{"productId": "p1", "productName": "X", "unitPrice": 10, "quantity": 1}],
		"shipping": {"firstName": "Ada"}
	}`
	rec, resp := doJSON(t, mux, http.MethodPost, "/api/order", body, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields, ok := resp["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "lastName")
	assert.Contains(t, fields, "email")
	assert.NotContains(t, fields, "firstName")
	assert.NotContains(t, fields, "state")
}

func TestPlaceOrderInvalidPromo(t *testing.T) {
	mux := newTestMux(t,
		&stubValidator{err: promo.ErrInvalidOrExpired},
		&stubGateway{}, newStubOrders(), &stubKeys{})

	body := strings.Replace(validOrderBody, `"cartId": "cart-1",`, `"cartId": "cart-1", "promoCode": "NOPE",`, 1)
	rec, resp := doJSON(t, mux, http.MethodPost, "/api/order", body, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields, ok := resp["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "promoCode")
}

func TestPlaceOrderCardDeclined(t *testing.T) {
	mux := newTestMux(t, &stubValidator{},
		&stubGateway{status: payment.StatusRequiresPaymentMethod},
		newStubOrders(), &stubKeys{})

	body := strings.Replace(validOrderBody,
		`"paymentMethod": "cash_on_delivery",`,
		`"paymentMethod": "card", "paymentIntentId": "pi_declined",`, 1)
	rec, resp := doJSON(t, mux, http.MethodPost, "/api/order", body, nil)

	require.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Contains(t, resp["error"], "declined")
}

func TestPlaceOrderMalformedBody(t *testing.T) {
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, newStubOrders(), &stubKeys{})

	rec, _ := doJSON(t, mux, http.MethodPost, "/api/order", `{"userId": 42}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyPromo(t *testing.T) {
	mux := newTestMux(t,
		&stubValidator{discount: &promo.Discount{
			Amount: decimal.NewFromInt(15),
			Code:   "GLOW20",
		}},
		&stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/promo/apply",
		`{"promoCode": "glow20", "subtotal": 75}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GLOW20", resp["promoCode"])
	assert.InDelta(t, 15.0, resp["discount"], 0.001)
}

func TestApplyPromoBelowMinimum(t *testing.T) {
	mux := newTestMux(t,
		&stubValidator{err: &promo.BelowMinimumError{Minimum: decimal.NewFromInt(50)}},
		&stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/promo/apply",
		`{"promoCode": "BIGSPEND", "subtotal": 30}`, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields, ok := resp["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields["promoCode"], "50.00")
}

func TestCreatePaymentIntent(t *testing.T) {
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/payment/intent",
		`{"cartId": "cart-1"}`, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pi_test", resp["paymentIntentId"])
	assert.Equal(t, "cs_test", resp["clientSecret"])
	assert.InDelta(t, 45.99, resp["amount"], 0.001, "2x20 plus 5.99 shipping")
}

func TestCreatePaymentIntentUnknownCart(t *testing.T) {
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/payment/intent",
		`{"cartId": "cart-gone"}`, nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "cart not found", resp["error"])
}

func TestCreatePaymentIntentInvalidPromo(t *testing.T) {
	mux := newTestMux(t, &stubValidator{err: promo.ErrInvalidOrExpired},
		&stubGateway{}, newStubOrders(), &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPost, "/api/payment/intent",
		`{"cartId": "cart-1", "promoCode": "NOPE"}`, nil)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	fields, ok := resp["errors"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "promoCode")
}

func adminHeader(key string) map[string]string {
	return map[string]string{apiKeyHeader: key}
}

func seedOrder(orders *stubOrders, status order.Status) *order.Order {
	o := &order.Order{
		ID:       "ord-1",
		UserID:   "user-1",
		Status:   status,
		Shipping: order.ShippingDetails{Email: "ada@example.com"},
	}
	orders.byID[o.ID] = o
	return o
}

func TestGetOrder(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodGet, "/api/orders/ord-1", "", adminHeader("admin-key"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord-1", resp["id"])

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/orders/missing", "", adminHeader("admin-key"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderUnauthorized(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{deny: true})

	rec, _ := doJSON(t, mux, http.MethodGet, "/api/orders/ord-1", "", adminHeader("wrong-key"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, mux, http.MethodGet, "/api/orders/ord-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPatch, "/api/orders/ord-1/status",
		`{"status": "processing"}`, adminHeader("admin-key"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["notifyDraft"])
	o, ok := resp["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "processing", o["status"])
}

func TestUpdateOrderStatusInvalidTransition(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPatch, "/api/orders/ord-1/status",
		`{"status": "delivered"}`, adminHeader("admin-key"))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, resp["error"], "invalid order status transition")
}

func TestUpdateOrderStatusForce(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusDelivered)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{})

	rec, resp := doJSON(t, mux, http.MethodPatch, "/api/orders/ord-1/status",
		`{"status": "returned", "force": true}`, adminHeader("admin-key"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["notifyDraft"])
	o, ok := resp["order"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "returned", o["status"])
}

func TestUpdateOrderStatusUnknownValue(t *testing.T) {
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, &stubKeys{})

	rec, _ := doJSON(t, mux, http.MethodPatch, "/api/orders/ord-1/status",
		`{"status": "teleported"}`, adminHeader("admin-key"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSecurityHashesKeyWithPepper(t *testing.T) {
	mac := hmac.New(sha256.New, testPepper)
	mac.Write([]byte("admin-key"))
	want := hex.EncodeToString(mac.Sum(nil))

	var got string
	keys := &captureKeys{onFind: func(hash string) { got = hash }}
	orders := newStubOrders()
	seedOrder(orders, order.StatusNew)
	mux := newTestMux(t, &stubValidator{}, &stubGateway{}, orders, keys)

	rec, _ := doJSON(t, mux, http.MethodGet, "/api/orders/ord-1", "", adminHeader("admin-key"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, want, got)
}

type captureKeys struct {
	onFind func(hash string)
}

func (c *captureKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	c.onFind(hash)
	return &auth.APIKeyInfo{ID: "key-1", KeyHash: hash}, nil
}

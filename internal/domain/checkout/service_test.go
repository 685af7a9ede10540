package checkout

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/lumeshop/storefront-api/internal/domain/cart"
	"github.com/lumeshop/storefront-api/internal/domain/order"
	"github.com/lumeshop/storefront-api/internal/domain/payment"
	"github.com/lumeshop/storefront-api/internal/domain/pricing"
	"github.com/lumeshop/storefront-api/internal/domain/promo"
)

// --- Mock implementations ---

type mockValidator struct {
	discount *promo.Discount
	err      error
}

func (m *mockValidator) Validate(_ context.Context, _ string, _ decimal.Decimal) (*promo.Discount, error) {
	return m.discount, m.err
}

type mockGateway struct {
	intent      *payment.Intent
	retrieveErr error
	calls       int
}

func (m *mockGateway) CreateIntent(_ context.Context, amount decimal.Decimal) (*payment.Intent, error) {
	return &payment.Intent{ID: "pi_new", ClientSecret: "cs_test", Amount: amount}, nil
}

func (m *mockGateway) RetrieveIntent(_ context.Context, _ string) (*payment.Intent, error) {
	m.calls++
	return m.intent, m.retrieveErr
}

type mockCartRepo struct {
	cart *cart.Cart
	err  error
}

func (m *mockCartRepo) Get(_ context.Context, _ string) (*cart.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return nil, cart.ErrNotFound
	}
	return m.cart, nil
}

func (m *mockCartRepo) Delete(_ context.Context, _ string) error { return nil }

type mockOrderRepo struct {
	lastOrder *order.Order
	createErr error
	byIntent  map[string]*order.Order
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.lastOrder = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, _ string) (*order.Order, error) {
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) FindByPaymentIntent(_ context.Context, id string) (*order.Order, error) {
	if o, ok := m.byIntent[id]; ok {
		return o, nil
	}
	return nil, order.ErrNotFound
}

func (m *mockOrderRepo) UpdateStatus(_ context.Context, _ string, _ order.Status) (*order.Order, error) {
	return nil, order.ErrNotFound
}

type recordingEffects struct {
	redeemed  []string
	notified  []string
	saved     []string
	deleted   []string
	published []string

	notifyErr error
	deleteErr error
}

func (r *recordingEffects) Redeem(_ context.Context, code string) error {
	r.redeemed = append(r.redeemed, code)
	return nil
}

func (r *recordingEffects) OrderConfirmation(_ context.Context, o *order.Order) error {
	r.notified = append(r.notified, o.ID)
	return r.notifyErr
}

func (r *recordingEffects) SaveAddress(_ context.Context, userID string, _ order.ShippingDetails) error {
	r.saved = append(r.saved, userID)
	return nil
}

func (r *recordingEffects) Delete(_ context.Context, cartID string) error {
	r.deleted = append(r.deleted, cartID)
	return r.deleteErr
}

func (r *recordingEffects) OrderCreated(_ context.Context, o *order.Order) error {
	r.published = append(r.published, o.ID)
	return nil
}

// --- Helpers ---

func testParams() pricing.Params {
	return pricing.Params{
		ShippingThreshold: decimal.NewFromInt(50),
		BaseShippingCost:  decimal.RequireFromString("5.99"),
	}
}

func testShipping() order.ShippingDetails {
	return order.ShippingDetails{
		FirstName:  "Ada",
		LastName:   "Byron",
		Email:      "ada@example.com",
		Address:    "12 Analytical Way",
		City:       "London",
		PostalCode: "SW1A 1AA",
		Country:    "GB",
	}
}

func cashRequest(items ...pricing.LineItem) Request {
	return Request{
		UserID:        "u1",
		CartID:        "c1",
		Items:         items,
		Shipping:      testShipping(),
		PaymentMethod: payment.MethodCash,
	}
}

func line(id string, price string, pct int64, qty int) pricing.LineItem {
	return pricing.LineItem{
		ProductID:       id,
		ProductName:     "Product " + id,
		UnitPrice:       decimal.RequireFromString(price),
		DiscountPercent: decimal.NewFromInt(pct),
		Quantity:        qty,
	}
}

func newTestService(t *testing.T, v promo.Validator, g payment.Gateway, repo order.Repository, fx SideEffects) *Service {
	t.Helper()
	svc := NewService(testParams(), v, g, &mockCartRepo{}, repo, NewRunner(zaptest.NewLogger(t), fx))
	n := 0
	svc.newID = func() string { n++; return "order-" + string(rune('0'+n)) }
	return svc
}

func storedCart(lines ...cart.LineItem) *cart.Cart {
	return &cart.Cart{ID: "c1", UserID: "u1", Status: cart.StatusActive, Lines: lines}
}

// --- Tests ---

func TestPlaceOrder_CashBelowThreshold(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, repo, SideEffects{})

	res, err := svc.PlaceOrder(context.Background(), cashRequest(line("p1", "20", 0, 2)))
	require.NoError(t, err)
	require.NotNil(t, res.Order)

	o := res.Order
	assert.True(t, decimal.NewFromInt(40).Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, decimal.RequireFromString("5.99").Equal(o.ShippingCost))
	assert.True(t, decimal.RequireFromString("45.99").Equal(o.TotalAmount))
	assert.Equal(t, order.PaymentCash, o.PaymentStatus)
	assert.Equal(t, order.StatusNew, o.Status)
	assert.Empty(t, o.PaymentIntentID)
	assert.Same(t, o, repo.lastOrder)
}

func TestPlaceOrder_LineDiscountFreeShipping(t *testing.T) {
	repo := &mockOrderRepo{}
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, repo, SideEffects{})

	res, err := svc.PlaceOrder(context.Background(), cashRequest(line("p1", "60", 10, 1)))
	require.NoError(t, err)

	o := res.Order
	assert.True(t, decimal.NewFromInt(54).Equal(o.Subtotal), "subtotal %s", o.Subtotal)
	assert.True(t, o.ShippingCost.IsZero())
	assert.True(t, decimal.NewFromInt(54).Equal(o.TotalAmount), "total %s", o.TotalAmount)

	// line snapshot carries the post-discount unit price
	require.Len(t, o.Items, 1)
	assert.True(t, decimal.NewFromInt(54).Equal(o.Items[0].UnitPrice))
}

func TestPlaceOrder_PromoClampedToMax(t *testing.T) {
	repo := &mockOrderRepo{}
	v := &mockValidator{discount: &promo.Discount{
		Amount: decimal.NewFromInt(15), Code: "SAVE20",
	}}
	svc := newTestService(t, v, &mockGateway{}, repo, SideEffects{})

	req := cashRequest(line("p1", "100", 0, 1))
	req.PromoCode = "save20"

	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	o := res.Order
	assert.True(t, decimal.NewFromInt(15).Equal(o.DiscountAmount))
	assert.True(t, decimal.NewFromInt(85).Equal(o.TotalAmount), "total %s", o.TotalAmount)
	assert.Equal(t, "SAVE20", o.PromoCode, "canonical code from validator")
}

func TestPlaceOrder_PromoBelowMinimumAborts(t *testing.T) {
	repo := &mockOrderRepo{}
	v := &mockValidator{err: &promo.BelowMinimumError{Minimum: decimal.NewFromInt(50)}}
	svc := newTestService(t, v, &mockGateway{}, repo, SideEffects{})

	req := cashRequest(line("p1", "30", 0, 1))
	req.PromoCode = "BIG50"

	_, err := svc.PlaceOrder(context.Background(), req)
	var minErr *promo.BelowMinimumError
	require.ErrorAs(t, err, &minErr)
	assert.Nil(t, repo.lastOrder, "nothing persisted on validation failure")
}

func TestPlaceOrder_CardDeclinedNotCreated(t *testing.T) {
	repo := &mockOrderRepo{}
	gw := &mockGateway{intent: &payment.Intent{
		ID: "pi_1", Status: payment.StatusRequiresPaymentMethod,
	}}
	svc := newTestService(t, &mockValidator{}, gw, repo, SideEffects{})

	req := cashRequest(line("p1", "20", 0, 1))
	req.PaymentMethod = payment.MethodCard
	req.PaymentIntentID = "pi_1"

	_, err := svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrPaymentDeclined)
	assert.Nil(t, repo.lastOrder)
}

func TestPlaceOrder_CardProcessingRetryLater(t *testing.T) {
	gw := &mockGateway{intent: &payment.Intent{ID: "pi_1", Status: payment.StatusProcessing}}
	svc := newTestService(t, &mockValidator{}, gw, &mockOrderRepo{}, SideEffects{})

	req := cashRequest(line("p1", "20", 0, 1))
	req.PaymentMethod = payment.MethodCard
	req.PaymentIntentID = "pi_1"

	_, err := svc.PlaceOrder(context.Background(), req)
	require.ErrorIs(t, err, payment.ErrStillProcessing)
}

func TestPlaceOrder_CardSucceeded(t *testing.T) {
	repo := &mockOrderRepo{}
	gw := &mockGateway{intent: &payment.Intent{ID: "pi_1", Status: payment.StatusSucceeded}}
	svc := newTestService(t, &mockValidator{}, gw, repo, SideEffects{})

	req := cashRequest(line("p1", "20", 0, 1))
	req.PaymentMethod = payment.MethodCard
	req.PaymentIntentID = "pi_1"

	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, order.PaymentPaid, res.Order.PaymentStatus)
	assert.Equal(t, "pi_1", res.Order.PaymentIntentID)
}

func TestPlaceOrder_DuplicateIntentReturnsExisting(t *testing.T) {
	existing := &order.Order{ID: "order-prev", PaymentIntentID: "pi_1"}
	repo := &mockOrderRepo{byIntent: map[string]*order.Order{"pi_1": existing}}
	gw := &mockGateway{intent: &payment.Intent{ID: "pi_1", Status: payment.StatusSucceeded}}
	svc := newTestService(t, &mockValidator{}, gw, repo, SideEffects{})

	req := cashRequest(line("p1", "20", 0, 1))
	req.PaymentMethod = payment.MethodCard
	req.PaymentIntentID = "pi_1"

	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.AlreadyPlaced)
	assert.Same(t, existing, res.Order)
	assert.Nil(t, repo.lastOrder, "no second order written")
	assert.Zero(t, gw.calls, "gateway not consulted for a known intent")
}

// racingOrderRepo simulates a concurrent request winning the insert: the
// pre-check misses, Create hits the unique index, and only then does the
// lookup find the winner's order.
type racingOrderRepo struct {
	mockOrderRepo
	existing *order.Order
	creates  int
}

func (m *racingOrderRepo) Create(_ context.Context, _ *order.Order) error {
	m.creates++
	return order.ErrDuplicateIntent
}

func (m *racingOrderRepo) FindByPaymentIntent(_ context.Context, _ string) (*order.Order, error) {
	if m.creates > 0 {
		return m.existing, nil
	}
	return nil, order.ErrNotFound
}

func TestPlaceOrder_DuplicateIntentInsertRace(t *testing.T) {
	existing := &order.Order{ID: "order-winner", PaymentIntentID: "pi_1"}
	repo := &racingOrderRepo{existing: existing}
	gw := &mockGateway{intent: &payment.Intent{ID: "pi_1", Status: payment.StatusSucceeded}}
	svc := newTestService(t, &mockValidator{}, gw, repo, SideEffects{})

	req := cashRequest(line("p1", "20", 0, 1))
	req.PaymentMethod = payment.MethodCard
	req.PaymentIntentID = "pi_1"

	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err, "losing the insert race is not a failure")
	assert.True(t, res.AlreadyPlaced)
	assert.Same(t, existing, res.Order)
	assert.Equal(t, 1, repo.creates)
}

func TestPlaceOrder_ValidationErrors(t *testing.T) {
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, &mockOrderRepo{}, SideEffects{})

	tests := []struct {
		name    string
		mutate  func(*Request)
		wantErr error
	}{
		{"empty items", func(r *Request) { r.Items = nil }, ErrEmptyCart},
		{"missing user", func(r *Request) { r.UserID = "" }, ErrMissingUser},
		{"missing cart", func(r *Request) { r.CartID = "" }, ErrMissingCart},
		{"card without intent", func(r *Request) {
			r.PaymentMethod = payment.MethodCard
			r.PaymentIntentID = ""
		}, ErrMissingPaymentIntent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := cashRequest(line("p1", "20", 0, 1))
			tt.mutate(&req)
			_, err := svc.PlaceOrder(context.Background(), req)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("zero quantity", func(t *testing.T) {
		req := cashRequest(line("p1", "20", 0, 0))
		_, err := svc.PlaceOrder(context.Background(), req)
		var iqErr *InvalidQuantityError
		require.ErrorAs(t, err, &iqErr)
		assert.Equal(t, "p1", iqErr.ProductID)
	})

	t.Run("blank shipping fields", func(t *testing.T) {
		req := cashRequest(line("p1", "20", 0, 1))
		req.Shipping.Email = ""
		req.Shipping.City = ""
		_, err := svc.PlaceOrder(context.Background(), req)
		var msErr *MissingShippingError
		require.ErrorAs(t, err, &msErr)
		assert.ElementsMatch(t, []string{"email", "city"}, msErr.Fields)
	})
}

func TestPlaceOrder_PersistFailure(t *testing.T) {
	repo := &mockOrderRepo{createErr: errors.New("connection reset")}
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, repo, SideEffects{})

	_, err := svc.PlaceOrder(context.Background(), cashRequest(line("p1", "20", 0, 1)))
	require.ErrorIs(t, err, ErrPersist)
}

func TestPlaceOrder_PostOrderSideEffects(t *testing.T) {
	fx := &recordingEffects{}
	repo := &mockOrderRepo{}
	v := &mockValidator{discount: &promo.Discount{Amount: decimal.NewFromInt(5), Code: "FIVER"}}
	svc := newTestService(t, v, &mockGateway{}, repo, SideEffects{
		Notifier:  fx,
		Addresses: fx,
		Carts:     fx,
		Promos:    fx,
		Events:    fx,
	})

	req := cashRequest(line("p1", "60", 0, 1))
	req.PromoCode = "FIVER"
	req.SaveAddress = true

	res, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"FIVER"}, fx.redeemed)
	assert.Equal(t, []string{res.Order.ID}, fx.notified)
	assert.Equal(t, []string{"u1"}, fx.saved)
	assert.Equal(t, []string{"c1"}, fx.deleted)
	assert.Equal(t, []string{res.Order.ID}, fx.published)
}

func TestPlaceOrder_SideEffectFailureDoesNotFailOrder(t *testing.T) {
	fx := &recordingEffects{
		notifyErr: errors.New("smtp down"),
		deleteErr: errors.New("cart row locked"),
	}
	repo := &mockOrderRepo{}
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, repo, SideEffects{
		Notifier: fx,
		Carts:    fx,
		Events:   fx,
	})

	res, err := svc.PlaceOrder(context.Background(), cashRequest(line("p1", "20", 0, 1)))
	require.NoError(t, err, "best-effort failures must not surface")
	require.NotNil(t, res.Order)

	// later tasks still ran after earlier ones failed
	assert.Equal(t, []string{res.Order.ID}, fx.published)
}

func TestPlaceOrder_NoAddressSaveWithoutOptIn(t *testing.T) {
	fx := &recordingEffects{}
	svc := newTestService(t, &mockValidator{}, &mockGateway{}, &mockOrderRepo{}, SideEffects{Addresses: fx})

	req := cashRequest(line("p1", "20", 0, 1))
	req.SaveAddress = false

	_, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, fx.saved)
}

func newIntentService(t *testing.T, v promo.Validator, carts cart.Repository) *Service {
	t.Helper()
	return NewService(testParams(), v, &mockGateway{}, carts, &mockOrderRepo{},
		NewRunner(zaptest.NewLogger(t), SideEffects{}))
}

func TestCreateIntent_PricesStoredCart(t *testing.T) {
	carts := &mockCartRepo{cart: storedCart(cart.LineItem{
		ProductID: "p1", UnitPrice: decimal.NewFromInt(20), Quantity: 2,
	})}
	svc := newIntentService(t, &mockValidator{}, carts)

	intent, err := svc.CreateIntent(context.Background(), "c1", "")
	require.NoError(t, err)
	assert.Equal(t, "pi_new", intent.ID)
	assert.Equal(t, "cs_test", intent.ClientSecret)
	assert.True(t, decimal.RequireFromString("45.99").Equal(intent.Amount),
		"40 subtotal + 5.99 shipping, got %s", intent.Amount)
}

func TestCreateIntent_PromoReducesCharge(t *testing.T) {
	carts := &mockCartRepo{cart: storedCart(cart.LineItem{
		ProductID: "p1", UnitPrice: decimal.NewFromInt(100), Quantity: 1,
	})}
	v := &mockValidator{discount: &promo.Discount{Amount: decimal.NewFromInt(15), Code: "SAVE15"}}
	svc := newIntentService(t, v, carts)

	intent, err := svc.CreateIntent(context.Background(), "c1", "save15")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(85).Equal(intent.Amount), "amount %s", intent.Amount)
}

func TestCreateIntent_InvalidPromoAborts(t *testing.T) {
	carts := &mockCartRepo{cart: storedCart(cart.LineItem{
		ProductID: "p1", UnitPrice: decimal.NewFromInt(20), Quantity: 1,
	})}
	svc := newIntentService(t, &mockValidator{err: promo.ErrInvalidOrExpired}, carts)

	_, err := svc.CreateIntent(context.Background(), "c1", "BOGUS")
	require.ErrorIs(t, err, promo.ErrInvalidOrExpired)
}

func TestCreateIntent_UnknownCart(t *testing.T) {
	svc := newIntentService(t, &mockValidator{}, &mockCartRepo{})

	_, err := svc.CreateIntent(context.Background(), "c-missing", "")
	require.ErrorIs(t, err, cart.ErrNotFound)
}

func TestCreateIntent_EmptyCart(t *testing.T) {
	svc := newIntentService(t, &mockValidator{}, &mockCartRepo{cart: storedCart()})

	_, err := svc.CreateIntent(context.Background(), "c1", "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateIntent_MissingCartID(t *testing.T) {
	svc := newIntentService(t, &mockValidator{}, &mockCartRepo{})

	_, err := svc.CreateIntent(context.Background(), "", "")
	require.ErrorIs(t, err, ErrMissingCart)
}

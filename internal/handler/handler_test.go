package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-api/internal/domain/auth"
	"storefront-api/internal/domain/catalog"
	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/domain/order"
	"storefront-api/internal/domain/pricing"
)

const testPepper = "test-pepper"

// Coupon windows are relative to the wall clock because the order service
// stamps orders with time.Now.
var testNow = time.Now().UTC()

type fakeCatalog struct {
	products map[string]*catalog.Product
}

func (f *fakeCatalog) List(context.Context) ([]catalog.Product, error) {
	out := make([]catalog.Product, 0, len(f.products))
	for _, p := range f.products {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return p, nil
}

func (f *fakeCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := f.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeCatalog) Create(_ context.Context, p *catalog.Product) error {
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalog) Update(_ context.Context, p *catalog.Product) error {
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalog) Delete(_ context.Context, id string) error {
	delete(f.products, id)
	return nil
}

func (f *fakeCatalog) DecrementStock(_ context.Context, id string, qty int) error {
	p := f.products[id]
	if p.Stock < qty {
		return catalog.ErrInsufficientStock
	}
	p.Stock -= qty
	return nil
}

func (f *fakeCatalog) RestoreStock(_ context.Context, id string, qty int) error {
	f.products[id].Stock += qty
	return nil
}

type fakeCoupons struct {
	coupons map[string]*coupon.Coupon
	uses    map[string]int
}

func (f *fakeCoupons) key(code string) string { return strings.ToUpper(code) }

func (f *fakeCoupons) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := f.coupons[f.key(code)]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (f *fakeCoupons) CountUserUses(_ context.Context, code, userID string) (int, error) {
	return f.uses[f.key(code)+"/"+userID], nil
}

func (f *fakeCoupons) RecordUsage(_ context.Context, code, userID string, _ time.Time) error {
	c := f.coupons[f.key(code)]
	if c.MaxUses != nil && c.UsedCount >= *c.MaxUses {
		return coupon.ErrUsageLimitReached
	}
	c.UsedCount++
	f.uses[f.key(code)+"/"+userID]++
	return nil
}

func (f *fakeCoupons) List(context.Context) ([]coupon.Coupon, error) {
	out := make([]coupon.Coupon, 0, len(f.coupons))
	for _, c := range f.coupons {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeCoupons) Create(_ context.Context, c *coupon.Coupon) error {
	if _, ok := f.coupons[f.key(c.Code)]; ok {
		return coupon.ErrDuplicateCode
	}
	f.coupons[f.key(c.Code)] = c
	return nil
}

func (f *fakeCoupons) Update(_ context.Context, c *coupon.Coupon) error {
	if _, ok := f.coupons[f.key(c.Code)]; !ok {
		return coupon.ErrNotFound
	}
	f.coupons[f.key(c.Code)] = c
	return nil
}

func (f *fakeCoupons) Delete(_ context.Context, code string) error {
	if _, ok := f.coupons[f.key(code)]; !ok {
		return coupon.ErrNotFound
	}
	delete(f.coupons, f.key(code))
	return nil
}

type fakeOrders struct {
	orders map[string]*order.Order
}

func (f *fakeOrders) Create(_ context.Context, o *order.Order) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeOrders) GetByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) List(_ context.Context, filter order.ListFilter) ([]order.Order, int, error) {
	var out []order.Order
	for _, o := range f.orders {
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (f *fakeOrders) Update(_ context.Context, o *order.Order) error {
	if _, ok := f.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	f.orders[o.ID] = o
	return nil
}

type fakeKeys struct {
	byHash map[string]*auth.APIKey
}

func (f *fakeKeys) FindByHash(_ context.Context, hash string) (*auth.APIKey, error) {
	k, ok := f.byHash[hash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	return k, nil
}

func hashKey(key string) string {
	mac := hmac.New(sha256.New, []byte(testPepper))
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

type testServer struct {
	router  http.Handler
	catalog *fakeCatalog
	coupons *fakeCoupons
	orders  *fakeOrders
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cat := &fakeCatalog{products: map[string]*catalog.Product{
		"p1": {ID: "p1", Name: "Mechanical Keyboard", Price: decimal.NewFromInt(30),
			Status: catalog.StatusActive, Stock: 10, Category: "electronics"},
		"p2": {ID: "p2", Name: "Desk Mat", Price: decimal.RequireFromString("12.50"),
			Status: catalog.StatusActive, Stock: 3, Category: "accessories"},
		"draft": {ID: "draft", Name: "Unreleased", Price: decimal.NewFromInt(99),
			Status: catalog.StatusDraft, Stock: 5},
	}}

	cpns := &fakeCoupons{
		coupons: map[string]*coupon.Coupon{
			"SAVE20": {
				Code: "SAVE20", DiscountType: coupon.DiscountPercentage,
				DiscountValue: decimal.NewFromInt(20), MaxUsesPerUser: 1,
				StartDate: testNow.AddDate(0, -1, 0), EndDate: testNow.AddDate(0, 1, 0),
				Active: true,
			},
		},
		uses: map[string]int{},
	}

	ords := &fakeOrders{orders: map[string]*order.Order{}}
	keys := &fakeKeys{byHash: map[string]*auth.APIKey{
		hashKey("user-key"): {ID: "user-1", KeyHash: hashKey("user-key"),
			Name: "customer", Scopes: []string{auth.ScopePlaceOrder}},
		hashKey("admin-key"): {ID: "admin-1", KeyHash: hashKey("admin-key"),
			Name: "admin", Scopes: []string{auth.ScopePlaceOrder, auth.ScopeAdmin}},
	}}

	engine := pricing.NewEngine(pricing.DefaultConfig())
	svc := order.NewService(cat, cpns, ords, engine)

	h := New(Config{}, cat, cpns, svc, engine)
	h.now = func() time.Time { return testNow }

	return &testServer{
		router:  h.Routes(NewSecurity(keys, []byte(testPepper))),
		catalog: cat,
		coupons: cpns,
		orders:  ords,
	}
}

func (ts *testServer) do(t *testing.T, method, path, apiKey string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func TestListProducts(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/products", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var products []productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 3)
}

func TestGetProduct_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/products/nope", "", nil)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"code":404,"message":"Product not found: nope"}`, rec.Body.String())
}

func TestPlaceOrder_RequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "", placeOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_WrongKey(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "no-such-key", placeOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceOrder_Succeeds(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "user-key", placeOrderRequest{
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 2}},
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "60", resp.ItemsPrice.String())
	assert.Equal(t, "0", resp.ShippingPrice.String())
	assert.Equal(t, "4.8", resp.TaxPrice.String())
	assert.Equal(t, "64.8", resp.TotalAmount.String())
	assert.Equal(t, "pending", resp.Status)
	assert.True(t, strings.HasPrefix(resp.OrderNumber, "ORD-"))
	assert.Equal(t, 8, ts.catalog.products["p1"].Stock)
}

func TestPlaceOrder_WithCoupon(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "user-key", placeOrderRequest{
		Items:      []orderItemRequest{{ProductID: "p1", Quantity: 2}},
		CouponCode: "save20",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "12", resp.DiscountAmount.String())
	assert.Equal(t, "SAVE20", resp.CouponCode)
	assert.Equal(t, 1, ts.coupons.coupons["SAVE20"].UsedCount)
}

func TestPlaceOrder_UnknownCoupon(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "user-key", placeOrderRequest{
		Items:      []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		CouponCode: "NOPE",
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"code":422,"message":"Invalid coupon code"}`, rec.Body.String())
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/orders", "user-key", placeOrderRequest{
		Items: []orderItemRequest{{ProductID: "p2", Quantity: 5}},
	})

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Insufficient stock for: Desk Mat")
}

func TestPlaceGuestOrder_RequiresContact(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/guest-orders", "", guestOrderRequest{
		placeOrderRequest: placeOrderRequest{
			Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		},
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "guest_name and guest_email are required")
}

func TestPlaceGuestOrder_Succeeds(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/guest-orders", "", guestOrderRequest{
		placeOrderRequest: placeOrderRequest{
			Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
		},
		GuestName:  "Sam Guest",
		GuestEmail: "sam@example.com",
	})

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "42.39", resp.TotalAmount.String())
}

func TestGetOrder_OwnershipEnforced(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders["o1"] = &order.Order{ID: "o1", UserID: "someone-else", Status: order.StatusPending}

	rec := ts.do(t, http.MethodGet, "/api/orders/o1", "user-key", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/orders/o1", "admin-key", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCancelOrder(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders["o1"] = &order.Order{
		ID: "o1", UserID: "user-1", Status: order.StatusPending,
		Items: []order.LineItem{{ProductID: "p1", Quantity: 2}},
	}

	rec := ts.do(t, http.MethodPut, "/api/orders/o1/cancel", "user-key",
		cancelOrderRequest{Reason: "changed my mind"})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cancelled", resp.Status)
	assert.Equal(t, 12, ts.catalog.products["p1"].Stock)
}

func TestCancelOrder_AlreadyShipped(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders["o1"] = &order.Order{ID: "o1", UserID: "user-1", Status: order.StatusShipped}

	rec := ts.do(t, http.MethodPut, "/api/orders/o1/cancel", "user-key",
		cancelOrderRequest{Reason: "too late"})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUpdateOrderStatus_AdminOnly(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders["o1"] = &order.Order{ID: "o1", UserID: "user-1", Status: order.StatusPending}

	rec := ts.do(t, http.MethodPut, "/api/orders/o1/status", "user-key",
		statusUpdateRequest{Status: "shipped"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPut, "/api/orders/o1/status", "admin-key",
		statusUpdateRequest{Status: "shipped", TrackingNumber: "TRK1", Carrier: "UPS"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "shipped", resp.Status)
	assert.Equal(t, "TRK1", resp.TrackingNumber)
	require.NotNil(t, resp.ShippedAt)
}

func TestUpdateOrderStatus_UnknownStatus(t *testing.T) {
	ts := newTestServer(t)
	ts.orders.orders["o1"] = &order.Order{ID: "o1", Status: order.StatusPending}

	rec := ts.do(t, http.MethodPut, "/api/orders/o1/status", "admin-key",
		statusUpdateRequest{Status: "teleported"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCoupon_Validation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/coupons", "admin-key", couponRequest{
		Code:          "BROKEN",
		DiscountType:  "percentage",
		DiscountValue: decimal.NewFromInt(10),
		StartDate:     testNow,
		EndDate:       testNow.AddDate(0, 0, -1),
		Active:        true,
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "end_date must be after start_date")
}

func TestCreateCoupon_DuplicateCode(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/admin/coupons", "admin-key", couponRequest{
		Code:          "save20",
		DiscountType:  "fixed",
		DiscountValue: decimal.NewFromInt(5),
		StartDate:     testNow,
		EndDate:       testNow.AddDate(0, 1, 0),
		Active:        true,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCouponAdmin_RequiresAdminScope(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/admin/coupons", "user-key", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateCoupon_DryRun(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/coupons/validate", "", validateCouponRequestBody{
		Code:  "SAVE20",
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 2}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateCouponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Valid)
	assert.Equal(t, "12", resp.Discount.String())
	assert.Equal(t, "60", resp.ItemsPrice.String())

	// A dry run must not consume a redemption.
	assert.Zero(t, ts.coupons.coupons["SAVE20"].UsedCount)
}

func TestValidateCoupon_Invalid(t *testing.T) {
	ts := newTestServer(t)
	ts.coupons.coupons["EXPIRED"] = &coupon.Coupon{
		Code: "EXPIRED", DiscountType: coupon.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10), MaxUsesPerUser: 1,
		StartDate: testNow.AddDate(0, -2, 0), EndDate: testNow.AddDate(0, -1, 0),
		Active: true,
	}

	rec := ts.do(t, http.MethodPost, "/api/coupons/validate", "", validateCouponRequestBody{
		Code:  "EXPIRED",
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1}},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateCouponResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, "Coupon has expired", resp.Message)
}

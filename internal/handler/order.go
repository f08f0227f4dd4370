package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/auth"
	"storefront-api/internal/domain/order"
	"storefront-api/internal/domain/pricing"
)

type orderItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type placeOrderRequest struct {
	Items           []orderItemRequest    `json:"items"`
	CouponCode      string                `json:"coupon_code,omitempty"`
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method"`
}

type guestOrderRequest struct {
	placeOrderRequest
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
}

type orderResponse struct {
	ID              string                `json:"id"`
	OrderNumber     string                `json:"order_number"`
	Items           []order.LineItem      `json:"items"`
	ShippingAddress order.ShippingAddress `json:"shipping_address"`
	PaymentMethod   string                `json:"payment_method,omitempty"`
	ItemsPrice      decimal.Decimal       `json:"items_price"`
	ShippingPrice   decimal.Decimal       `json:"shipping_price"`
	TaxPrice        decimal.Decimal       `json:"tax_price"`
	DiscountAmount  decimal.Decimal       `json:"discount_amount"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	CouponCode      string                `json:"coupon_code,omitempty"`
	CouponDiscount  decimal.Decimal       `json:"coupon_discount"`
	Status          string                `json:"status"`
	TrackingNumber  string                `json:"tracking_number,omitempty"`
	Carrier         string                `json:"carrier,omitempty"`
	ShippedAt       *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func toOrderResponse(o *order.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Items:           o.Items,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		ItemsPrice:      o.ItemsPrice,
		ShippingPrice:   o.ShippingPrice,
		TaxPrice:        o.TaxPrice,
		DiscountAmount:  o.DiscountAmount,
		TotalAmount:     o.TotalAmount,
		CouponCode:      o.CouponCode,
		CouponDiscount:  o.CouponDiscount,
		Status:          string(o.Status),
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CancelledAt:     o.CancelledAt,
		CreatedAt:       o.CreatedAt,
	}
}

func toItemRequests(items []orderItemRequest) []order.ItemRequest {
	out := make([]order.ItemRequest, len(items))
	for i, item := range items {
		out[i] = order.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}

// PlaceOrder handles POST /api/orders for authenticated customers. The API
// key ID identifies the user for order ownership and per-user coupon caps.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := PrincipalFromContext(r.Context())
	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		UserID:          p.ID,
		Items:           toItemRequests(req.Items),
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// PlaceGuestOrder handles POST /api/guest-orders. Guests provide a name and
// email instead of an API key; per-user coupon caps do not apply to them.
func (h *Handler) PlaceGuestOrder(w http.ResponseWriter, r *http.Request) {
	var req guestOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GuestName == "" || req.GuestEmail == "" {
		writeError(w, http.StatusBadRequest, "guest_name and guest_email are required")
		return
	}

	o, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		Items:           toItemRequests(req.Items),
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// GetOrder handles GET /api/orders/{id}. Admin keys may read any order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "id"), p.ID, p.HasScope(auth.ScopeAdmin))
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// ListOrders handles GET /api/orders. Non-admin keys only see their own
// orders; admin keys see everything and may filter by status.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	f := order.ListFilter{
		Limit:  queryInt(r, "limit", 20),
		Offset: queryInt(r, "offset", 0),
		Status: order.Status(r.URL.Query().Get("status")),
	}
	if !p.HasScope(auth.ScopeAdmin) {
		f.UserID = p.ID
	}

	orders, total, err := h.orders.List(r.Context(), f)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	}
	for i := range orders {
		resp.Orders[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder handles PUT /api/orders/{id}/cancel. Only the order's owner may
// cancel it, and only while it is pending or processing.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p := PrincipalFromContext(r.Context())
	o, err := h.orders.Cancel(r.Context(), chi.URLParam(r, "id"), p.ID, req.Reason)
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type statusUpdateRequest struct {
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	Carrier        string `json:"carrier,omitempty"`
}

// UpdateOrderStatus handles PUT /api/orders/{id}/status (admin only).
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !order.ValidStatus(order.Status(req.Status)) {
		writeError(w, http.StatusBadRequest, "unknown order status: "+req.Status)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), order.StatusUpdate{
		Status:         order.Status(req.Status),
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
	})
	if err != nil {
		h.writeOrderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// writeOrderError maps checkout and lifecycle errors to HTTP responses.
// Validation failures are 422s with the domain's human-readable message.
func (h *Handler) writeOrderError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		quantityErr    *order.InvalidQuantityError
		notFoundErr    *pricing.ProductNotFoundError
		unavailableErr *pricing.ProductUnavailableError
		stockErr       *pricing.InsufficientStockError
		couponErr      *pricing.InvalidCouponError
	)

	switch {
	case errors.Is(err, order.ErrEmptyItems):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &quantityErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &notFoundErr),
		errors.As(err, &unavailableErr),
		errors.As(err, &stockErr),
		errors.As(err, &couponErr):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, order.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, order.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeInternalError(w, r, err)
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/domain/pricing"
)

type couponRequest struct {
	Code              string          `json:"code"`
	Description       string          `json:"description"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	MaxUses           *int            `json:"max_uses"`
	MaxUsesPerUser    int             `json:"max_uses_per_user"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	Active            bool            `json:"active"`
}

type couponResponse struct {
	Code              string          `json:"code"`
	Description       string          `json:"description"`
	DiscountType      string          `json:"discount_type"`
	DiscountValue     decimal.Decimal `json:"discount_value"`
	MinPurchaseAmount decimal.Decimal `json:"min_purchase_amount"`
	MaxUses           *int            `json:"max_uses"`
	UsedCount         int             `json:"used_count"`
	MaxUsesPerUser    int             `json:"max_uses_per_user"`
	StartDate         time.Time       `json:"start_date"`
	EndDate           time.Time       `json:"end_date"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
}

func toCouponResponse(c *coupon.Coupon) couponResponse {
	return couponResponse{
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue,
		MinPurchaseAmount: c.MinPurchaseAmount,
		MaxUses:           c.MaxUses,
		UsedCount:         c.UsedCount,
		MaxUsesPerUser:    c.MaxUsesPerUser,
		StartDate:         c.StartDate,
		EndDate:           c.EndDate,
		Active:            c.Active,
		CreatedAt:         c.CreatedAt,
	}
}

// validateCouponRequest checks the admin-supplied coupon fields. It returns
// a human-readable message for the first problem found, or "".
func validateCouponRequest(req *couponRequest) string {
	switch {
	case strings.TrimSpace(req.Code) == "":
		return "code is required"
	case req.DiscountType != string(coupon.DiscountPercentage) &&
		req.DiscountType != string(coupon.DiscountFixed):
		return "discount_type must be percentage or fixed"
	case req.DiscountValue.IsNegative():
		return "discount_value must not be negative"
	case req.DiscountType == string(coupon.DiscountPercentage) &&
		req.DiscountValue.GreaterThan(decimal.NewFromInt(100)):
		return "percentage discount cannot exceed 100"
	case req.MinPurchaseAmount.IsNegative():
		return "min_purchase_amount must not be negative"
	case req.MaxUses != nil && *req.MaxUses < 1:
		return "max_uses must be at least 1"
	case !req.EndDate.After(req.StartDate):
		return "end_date must be after start_date"
	}
	return ""
}

func (req *couponRequest) toDomain() *coupon.Coupon {
	maxPerUser := req.MaxUsesPerUser
	if maxPerUser <= 0 {
		maxPerUser = 1
	}
	return &coupon.Coupon{
		Code:              strings.ToUpper(strings.TrimSpace(req.Code)),
		Description:       req.Description,
		DiscountType:      coupon.DiscountType(req.DiscountType),
		DiscountValue:     req.DiscountValue,
		MinPurchaseAmount: req.MinPurchaseAmount,
		MaxUses:           req.MaxUses,
		MaxUsesPerUser:    maxPerUser,
		StartDate:         req.StartDate,
		EndDate:           req.EndDate,
		Active:            req.Active,
	}
}

// ListCoupons handles GET /api/admin/coupons.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.coupons.List(r.Context())
	if err != nil {
		writeInternalError(w, r, err)
		return
	}

	resp := make([]couponResponse, len(coupons))
	for i := range coupons {
		resp[i] = toCouponResponse(&coupons[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCoupon handles POST /api/admin/coupons.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateCouponRequest(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c := req.toDomain()
	if err := h.coupons.Create(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrDuplicateCode) {
			writeError(w, http.StatusConflict, "coupon code already exists")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCouponResponse(c))
}

// UpdateCoupon handles PUT /api/admin/coupons/{code}.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Code = chi.URLParam(r, "code")
	if msg := validateCouponRequest(&req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	c := req.toDomain()
	if err := h.coupons.Update(r.Context(), c); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCouponResponse(c))
}

// DeleteCoupon handles DELETE /api/admin/coupons/{code}.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "code")); err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeError(w, http.StatusNotFound, "coupon not found")
			return
		}
		writeInternalError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateCouponRequestBody struct {
	Code  string             `json:"code"`
	Items []orderItemRequest `json:"items"`
}

type validateCouponResponse struct {
	Valid      bool            `json:"valid"`
	Message    string          `json:"message,omitempty"`
	Discount   decimal.Decimal `json:"discount"`
	ItemsPrice decimal.Decimal `json:"items_price"`
}

// ValidateCoupon handles POST /api/coupons/validate: a dry run against the
// caller's cart that prices the coupon without reserving a redemption. It is
// public, so per-user caps are not evaluated here.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}
	products, err := h.products.GetByIDs(r.Context(), ids)
	if err != nil {
		writeInternalError(w, r, err)
		return
	}
	prices := make(map[string]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	items := make([]pricing.Item, 0, len(req.Items))
	for _, item := range req.Items {
		price, ok := prices[item.ProductID]
		if !ok {
			writeError(w, http.StatusUnprocessableEntity, "Product not found: "+item.ProductID)
			return
		}
		items = append(items, pricing.Item{
			ProductID: item.ProductID,
			UnitPrice: price,
			Quantity:  item.Quantity,
		})
	}
	itemsPrice := pricing.Subtotal(items).Round(2)

	c, err := h.coupons.FindByCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeJSON(w, http.StatusOK, validateCouponResponse{
				Valid:      false,
				Message:    "Invalid coupon code",
				Discount:   decimal.Zero,
				ItemsPrice: itemsPrice,
			})
			return
		}
		writeInternalError(w, r, err)
		return
	}

	if err := coupon.Validate(c, 0, itemsPrice, h.now()); err != nil {
		writeJSON(w, http.StatusOK, validateCouponResponse{
			Valid:      false,
			Message:    err.Error(),
			Discount:   decimal.Zero,
			ItemsPrice: itemsPrice,
		})
		return
	}

	writeJSON(w, http.StatusOK, validateCouponResponse{
		Valid:      true,
		Discount:   coupon.CalculateDiscount(c, itemsPrice),
		ItemsPrice: itemsPrice,
	})
}

package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"storefront-api/internal/domain/catalog"
	"storefront-api/internal/domain/coupon"
	"storefront-api/internal/domain/pricing"
)

// ItemRequest is one requested product/quantity pair in a checkout.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order. UserID is empty for
// guest checkout; GuestName/GuestEmail are required in that case by the
// transport layer, not here.
type PlaceOrderRequest struct {
	UserID          string
	GuestName       string
	GuestEmail      string
	Items           []ItemRequest
	CouponCode      string
	ShippingAddress ShippingAddress
	PaymentMethod   string
}

// StatusUpdate holds an admin-initiated order status change.
type StatusUpdate struct {
	Status         Status
	TrackingNumber string
	Carrier        string
}

// Service encapsulates checkout orchestration and order lifecycle logic.
type Service struct {
	products catalog.Repository
	coupons  coupon.Repository
	orders   Repository
	engine   *pricing.Engine
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products catalog.Repository,
	coupons coupon.Repository,
	orders Repository,
	engine *pricing.Engine,
) *Service {
	return &Service{
		products: products,
		coupons:  coupons,
		orders:   orders,
		engine:   engine,
		now:      time.Now,
	}
}

// PlaceOrder runs the full checkout: validates quantities, fetches products in
// a single batch, checks availability per item (any single failure aborts the
// whole order), prices the order through the engine, decrements stock, records
// coupon usage, and persists the order.
//
// Stock decrements and the coupon usage increment are conditional atomic
// updates, so concurrent checkouts cannot oversell a product or over-redeem a
// capped coupon. The steps are not wrapped in one transaction: a failure after
// stock decrement restores the already-taken stock, but a failure after coupon
// usage recording leaves the redemption counted.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]*catalog.Product, len(fetched))
	for i := range fetched {
		productMap[fetched[i].ID] = &fetched[i]
	}

	// Availability check and snapshot in request order.
	items := make([]pricing.Item, len(req.Items))
	for i, item := range req.Items {
		p := productMap[item.ProductID]
		if err := pricing.ValidateAvailability(item.ProductID, item.Quantity, p); err != nil {
			return nil, err
		}
		items[i] = pricing.Item{
			ProductID: item.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  item.Quantity,
		}
	}

	now := s.now()

	var cpn *coupon.Coupon
	userUses := 0
	if req.CouponCode != "" {
		cpn, err = s.coupons.FindByCode(ctx, req.CouponCode)
		if err != nil {
			if errors.Is(err, coupon.ErrNotFound) {
				return nil, &pricing.InvalidCouponError{Reason: "Invalid coupon code"}
			}
			return nil, errors.Wrap(err, "find coupon")
		}
		if req.UserID != "" {
			userUses, err = s.coupons.CountUserUses(ctx, cpn.Code, req.UserID)
			if err != nil {
				return nil, errors.Wrap(err, "count coupon uses")
			}
		}
	}

	quote, err := s.engine.Quote(items, cpn, userUses, now)
	if err != nil {
		return nil, err
	}

	// Take stock before anything is persisted. A conditional decrement losing
	// the race surfaces as InsufficientStockError, and any stock already taken
	// for earlier line items is handed back.
	taken := make([]ItemRequest, 0, len(req.Items))
	for _, item := range req.Items {
		if err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.restoreStock(ctx, taken)
			if errors.Is(err, catalog.ErrInsufficientStock) {
				return nil, &pricing.InsufficientStockError{
					ProductID: item.ProductID,
					Name:      productMap[item.ProductID].Name,
				}
			}
			return nil, errors.Wrap(err, "decrement stock")
		}
		taken = append(taken, item)
	}

	if cpn != nil {
		if err := s.coupons.RecordUsage(ctx, cpn.Code, req.UserID, now); err != nil {
			s.restoreStock(ctx, taken)
			if errors.Is(err, coupon.ErrUsageLimitReached) {
				return nil, &pricing.InvalidCouponError{Reason: "Coupon usage limit reached"}
			}
			return nil, errors.Wrap(err, "record coupon usage")
		}
	}

	o := &Order{
		ID:              uuid.New().String(),
		OrderNumber:     NewOrderNumber(now),
		UserID:          req.UserID,
		GuestName:       req.GuestName,
		GuestEmail:      req.GuestEmail,
		Items:           snapshotItems(items),
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		ItemsPrice:      quote.ItemsPrice,
		ShippingPrice:   quote.ShippingPrice,
		TaxPrice:        quote.TaxPrice,
		DiscountAmount:  quote.DiscountAmount,
		TotalAmount:     quote.TotalAmount,
		Status:          StatusPending,
		CreatedAt:       now,
	}
	if quote.AppliedCoupon != nil {
		o.CouponCode = quote.AppliedCoupon.Code
		o.CouponDiscount = quote.AppliedCoupon.Discount
	}

	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	return o, nil
}

// Cancel cancels an order on behalf of its owner, restoring product stock.
func (s *Service) Cancel(ctx context.Context, id, userID, reason string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrAccessDenied
	}
	if !o.CanBeCancelled() {
		return nil, ErrNotCancellable
	}

	now := s.now()
	o.Status = StatusCancelled
	o.CancellationReason = reason
	o.CancelledAt = &now

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	for _, item := range o.Items {
		if err := s.products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, errors.Wrapf(err, "restore stock for %s", item.ProductID)
		}
	}

	return o, nil
}

// UpdateStatus applies an admin status change, stamping the transition time
// for shipped, delivered, and cancelled states.
func (s *Service) UpdateStatus(ctx context.Context, id string, upd StatusUpdate) (*Order, error) {
	if !ValidStatus(upd.Status) {
		return nil, errors.Errorf("unknown order status %q", upd.Status)
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o.Status = upd.Status
	switch upd.Status {
	case StatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &now
		}
	case StatusDelivered:
		if o.DeliveredAt == nil {
			o.DeliveredAt = &now
		}
	case StatusCancelled:
		if o.CancelledAt == nil {
			o.CancelledAt = &now
		}
	}
	if upd.TrackingNumber != "" {
		o.TrackingNumber = upd.TrackingNumber
	}
	if upd.Carrier != "" {
		o.Carrier = upd.Carrier
	}

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// GetByID returns an order. Non-admin callers may only read their own orders.
func (s *Service) GetByID(ctx context.Context, id, userID string, admin bool) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && o.UserID != userID {
		return nil, ErrAccessDenied
	}
	return o, nil
}

// List returns a page of orders matching the filter plus the total count.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, int, error) {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	return s.orders.List(ctx, f)
}

func (s *Service) restoreStock(ctx context.Context, taken []ItemRequest) {
	for _, item := range taken {
		// Best effort: the checkout already failed, so a restore error cannot
		// change the outcome.
		_ = s.products.RestoreStock(ctx, item.ProductID, item.Quantity)
	}
}

func snapshotItems(items []pricing.Item) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		out[i] = LineItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}
	return out
}

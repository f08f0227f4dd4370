package pricing

import "fmt"

// ProductNotFoundError indicates a requested product does not exist in the
// catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("Product not found: %s", e.ProductID)
}

// ProductUnavailableError indicates a product exists but is not in an active,
// purchasable state.
type ProductUnavailableError struct {
	ProductID string
	Name      string
}

func (e *ProductUnavailableError) Error() string {
	return fmt.Sprintf("Product not available: %s", e.Name)
}

// InsufficientStockError indicates the requested quantity exceeds the
// product's current stock.
type InsufficientStockError struct {
	ProductID string
	Name      string
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for: %s", e.Name)
}

// InvalidCouponError indicates the supplied coupon code cannot be applied.
// Reason is a human-readable message safe to show to the end user.
type InvalidCouponError struct {
	Reason string
}

func (e *InvalidCouponError) Error() string {
	return e.Reason
}

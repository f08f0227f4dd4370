package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Status describes whether a product can be purchased.
type Status string

const (
	// StatusActive marks a product as purchasable.
	StatusActive Status = "active"
	// StatusDraft marks a product as not yet published.
	StatusDraft Status = "draft"
	// StatusArchived marks a product as retired from the catalog.
	StatusArchived Status = "archived"
)

// Product represents a catalog item available for purchase.
type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	Status   Status
	Stock    int
	Category string
	ImageURL string
}

// Purchasable reports whether the product is in a state that allows ordering.
func (p *Product) Purchasable() bool {
	return p.Status == StatusActive
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id string) error

	// DecrementStock subtracts quantity from the product's stock as a single
	// conditional update. It returns ErrInsufficientStock when the product's
	// remaining stock is lower than quantity at the time of the update.
	DecrementStock(ctx context.Context, id string, quantity int) error

	// RestoreStock adds quantity back to the product's stock. Used when an
	// order is cancelled.
	RestoreStock(ctx context.Context, id string, quantity int) error
}

// ErrInsufficientStock is returned by DecrementStock when the conditional
// update matched no rows because stock dropped below the requested quantity.
var ErrInsufficientStock = errors.New("insufficient stock")

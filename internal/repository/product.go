package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"storefront-api/internal/domain/catalog"
)

const (
	listProductsSQL = `SELECT id, name, price, status, stock, category, image_url
		FROM products ORDER BY id`

	getProductByIDSQL = `SELECT id, name, price, status, stock, category, image_url
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, price, status, stock, category, image_url
		FROM products WHERE id = ANY($1)`

	insertProductSQL = `INSERT INTO products (id, name, price, status, stock, category, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateProductSQL = `UPDATE products
		SET name = $2, price = $3, status = $4, stock = $5, category = $6, image_url = $7
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// simply absent from the result; callers detect them by comparing lengths.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// Create inserts a new product.
func (r *ProductRepository) Create(ctx context.Context, p *catalog.Product) error {
	_, err := r.pool.Exec(ctx, insertProductSQL,
		p.ID, p.Name, p.Price, string(p.Status), p.Stock, p.Category, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("creating product %q: %w", p.ID, err)
	}
	return nil
}

// Update overwrites all mutable fields of a product.
func (r *ProductRepository) Update(ctx context.Context, p *catalog.Product) error {
	tag, err := r.pool.Exec(ctx, updateProductSQL,
		p.ID, p.Name, p.Price, string(p.Status), p.Stock, p.Category, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("updating product %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// Delete removes a product.
func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteProductSQL, id)
	if err != nil {
		return fmt.Errorf("deleting product %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DecrementStock subtracts quantity from stock only while enough stock
// remains. The check and the write are one statement, so concurrent checkouts
// cannot oversell.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, quantity int) error {
	tag, err := r.pool.Exec(ctx, decrementStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("decrementing stock for %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrInsufficientStock
	}
	return nil
}

// RestoreStock adds quantity back to the product's stock.
func (r *ProductRepository) RestoreStock(ctx context.Context, id string, quantity int) error {
	_, err := r.pool.Exec(ctx, restoreStockSQL, id, quantity)
	if err != nil {
		return fmt.Errorf("restoring stock for %q: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p      catalog.Product
		price  decimal.Decimal
		status string
	)
	err := row.Scan(&p.ID, &p.Name, &price, &status, &p.Stock, &p.Category, &p.ImageURL)
	p.Price = price
	p.Status = catalog.Status(status)
	return p, err
}

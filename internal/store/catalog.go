// Package store provides the Postgres-backed catalog and user repositories.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/storebot/internal/logger"
	"github.com/m3rciful/storebot/internal/model"
)

// ErrNoCodeAvailable is returned when a product has no unconsumed redemption codes.
var ErrNoCodeAvailable = errors.New("store: no redemption code available")

// Catalog reads products and issues redemption codes.
type Catalog struct {
	db *sqlx.DB
}

// NewCatalog constructs a catalog repository over the shared connection pool.
func NewCatalog(db *sqlx.DB) *Catalog {
	return &Catalog{db: db}
}

// ListProducts returns all products ordered stable by id.
func (c *Catalog) ListProducts(ctx context.Context) ([]model.Product, error) {
	var products []model.Product
	err := c.db.SelectContext(ctx, &products,
		`SELECT id, name, description, price, photo_url FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// ClaimCode atomically marks one available code for the product as consumed
// and returns it. The claim and the consumption mark are a single statement,
// so two concurrent fulfillments can never receive the same code. Returns
// ErrNoCodeAvailable when the product has no codes left.
func (c *Catalog) ClaimCode(ctx context.Context, productID int64) (string, error) {
	const query = `
		UPDATE redemption_codes
		SET consumed_at = now()
		WHERE id = (
			SELECT id FROM redemption_codes
			WHERE product_id = $1 AND consumed_at IS NULL
			ORDER BY id
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING code`

	var code string
	err := c.db.GetContext(ctx, &code, query, productID)
	if errors.Is(err, sql.ErrNoRows) {
		logger.SVCCatalog.Warn("code pool exhausted",
			slog.String("event", "code.claim"),
			slog.String("status", "skip"),
			slog.Int64("product_id", productID),
		)
		return "", ErrNoCodeAvailable
	}
	if err != nil {
		return "", fmt.Errorf("claim code: %w", err)
	}

	logger.SVCCatalog.Debug("code claimed",
		slog.String("event", "code.claim"),
		slog.String("status", "ok"),
		slog.Int64("product_id", productID),
	)
	return code, nil
}

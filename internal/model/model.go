// Package model contains the storefront domain entities.
package model

import (
	"math"
	"time"
)

// Product is a purchasable catalog item. The catalog is read-only for the
// order flow; products are listed in stable id order.
type Product struct {
	ID          int64   `db:"id"`
	Name        string  `db:"name"`
	Description string  `db:"description"`
	Price       float64 `db:"price"`
	PhotoURL    *string `db:"photo_url"`
}

// PriceMinor returns the product price converted to minor currency units
// (price × 100 for two-decimal currencies).
func (p Product) PriceMinor() int {
	return MinorUnits(p.Price)
}

// User is a registered buyer identified by the Telegram account id.
type User struct {
	ID        int64     `db:"id"`
	Username  string    `db:"username"`
	FullName  string    `db:"full_name"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MinorUnits converts a decimal price to integer minor currency units.
func MinorUnits(price float64) int {
	return int(math.Round(price * 100))
}

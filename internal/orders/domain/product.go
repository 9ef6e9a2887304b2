package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the catalog view the order core needs: pricing, stock and availability.
type Product struct {
	ID            int64
	Name          string
	Slug          string
	Price         decimal.Decimal
	SalePrice     decimal.NullDecimal
	StockQuantity int
	IsActive      bool
	CategoryID    *int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// EffectivePrice is the sale price when one is set, otherwise the list price.
// An explicit zero sale price makes the line free.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.SalePrice.Valid {
		return p.SalePrice.Decimal
	}
	return p.Price
}

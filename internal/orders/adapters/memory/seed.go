package memory

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dejobratic/blogcommerce/internal/orders/domain"
	"github.com/shopspring/decimal"
)

type seedProduct struct {
	ID            int64               `json:"id"`
	Name          string              `json:"name"`
	Slug          string              `json:"slug"`
	Price         decimal.Decimal     `json:"price"`
	SalePrice     decimal.NullDecimal `json:"sale_price"`
	StockQuantity int                 `json:"stock_quantity"`
	IsActive      *bool               `json:"is_active"`
	CategoryID    *int64              `json:"category_id"`
}

// Seed loads a JSON array of catalog products into the repository and returns how many were saved.
// Products without is_active are treated as active.
func (r *Repository) Seed(src io.Reader) (int, error) {
	var rows []seedProduct
	if err := json.NewDecoder(src).Decode(&rows); err != nil {
		return 0, fmt.Errorf("decode seed products: %w", err)
	}

	for i, row := range rows {
		if err := domain.ValidateAmount("price", row.Price); err != nil {
			return 0, fmt.Errorf("seed product %d: %w", i, err)
		}
		if row.StockQuantity < 0 {
			return 0, fmt.Errorf("seed product %d: stock_quantity must not be negative", i)
		}
	}

	for _, row := range rows {
		active := row.IsActive == nil || *row.IsActive
		r.SaveProduct(domain.Product{
			ID:            row.ID,
			Name:          row.Name,
			Slug:          row.Slug,
			Price:         row.Price,
			SalePrice:     row.SalePrice,
			StockQuantity: row.StockQuantity,
			IsActive:      active,
			CategoryID:    row.CategoryID,
		})
	}
	return len(rows), nil
}

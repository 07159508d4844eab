package catalog

import "time"

type Product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Image string `json:"image,omitempty"`
	// Price in minor currency units (cents) to avoid rounding errors.
	Price int64 `json:"price"`
	// Stock is nil for products sold without a stock limit.
	Stock     *int      `json:"stock,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InStock reports whether qty units can currently be sold. A nil stock
// means unlimited. Best-effort only: the ledger is the final authority.
func (p *Product) InStock(qty int) bool {
	return p.Stock == nil || *p.Stock >= qty
}

package domain

// PriceEntry is a cached fiat unit price.
type PriceEntry struct {
	Price     float64 // USD per unit
	UpdatedAt int64   // ms
}

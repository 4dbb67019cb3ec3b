package model

// Combo is a concession item from the catalog.
type Combo struct {
	ID     uint64 // combos.id
	Name   string // combos.name
	Price  int64  // combos.price
	Active bool   // combos.is_active
}

// ComboRequest is one concession line of a booking request.
type ComboRequest struct {
	ComboID  uint64
	Quantity int
}

package domain

import "time"

// Product is the root of the four-level classification hierarchy.
type Product struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Module belongs to exactly one product.
type Module struct {
	ID        string
	ProductID string
	Name      string
	CreatedAt time.Time
}

// Submodule belongs to exactly one module.
type Submodule struct {
	ID        string
	ModuleID  string
	Name      string
	CreatedAt time.Time
}

// Feature belongs to exactly one submodule. Features are created lazily when
// an external classification value has no existing mapping and a structural
// parent can be inferred from the value itself.
type Feature struct {
	ID          string
	SubmoduleID string
	Name        string
	CreatedAt   time.Time
}

// FeatureRef carries the resolved classification chain for a ticket.
type FeatureRef struct {
	ProductID   *string
	ModuleID    *string
	SubmoduleID *string
	FeatureID   *string
}

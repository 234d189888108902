// Package identity resolves a national id against the registry, deciding
// whether the sender is an internal operator, a known customer, or nobody we
// have on file.
package identity

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/imobia/atende/internal/models"
	"github.com/imobia/atende/internal/validate"
)

// Role is the party a resolved id belongs to.
type Role int

const (
	RoleUnknown Role = iota
	RoleOperator
	RoleCustomer
)

func (r Role) String() string {
	switch r {
	case RoleOperator:
		return "operator"
	case RoleCustomer:
		return "customer"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of a lookup. Exactly one of Operator and
// Customer is set when Registered is true.
type Resolution struct {
	ID         validate.ID
	Role       Role
	Registered bool
	Operator   *models.Operator
	Customer   *models.Customer
}

// Resolver performs read-only registry lookups.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve normalizes raw and searches operators first, then customers. Both
// tables may hold the id with or without punctuation, so the query matches
// either form. A malformed id returns validate.ErrInvalidNationalID.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	id, err := validate.NationalID(raw)
	if err != nil {
		return Resolution{}, err
	}
	forms := []string{id.Digits, id.Formatted}

	var op models.Operator
	err = r.db.WithContext(ctx).Where("national_id IN ?", forms).First(&op).Error
	switch {
	case err == nil:
		return Resolution{ID: id, Role: RoleOperator, Registered: true, Operator: &op}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Resolution{}, fmt.Errorf("identity: operator lookup: %w", err)
	}

	var cust models.Customer
	err = r.db.WithContext(ctx).Where("national_id IN ?", forms).First(&cust).Error
	switch {
	case err == nil:
		return Resolution{ID: id, Role: RoleCustomer, Registered: true, Customer: &cust}, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Resolution{}, fmt.Errorf("identity: customer lookup: %w", err)
	}

	return Resolution{ID: id, Role: RoleUnknown}, nil
}

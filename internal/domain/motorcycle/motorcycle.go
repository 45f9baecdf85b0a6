package motorcycle

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested motorcycle does not exist.
var ErrNotFound = errors.New("motorcycle not found")

// Motorcycle is a rentable fleet model with its daily rate.
type Motorcycle struct {
	ID              string
	Name            string
	Brand           string
	EngineCC        int
	RentPerDay      decimal.Decimal
	SecurityDeposit decimal.Decimal
	Available       bool
}

// Repository defines read operations for the fleet catalog.
type Repository interface {
	List(ctx context.Context) ([]Motorcycle, error)
	GetByID(ctx context.Context, id string) (*Motorcycle, error)
}

package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Evaluator resolves a promo code through a Repository and validates it
// against a cart total.
type Evaluator struct {
	repo Repository
	opts Options
	now  func() time.Time
}

// NewEvaluator creates an Evaluator backed by the given Repository.
func NewEvaluator(repo Repository, opts Options) *Evaluator {
	return &Evaluator{repo: repo, opts: opts, now: time.Now}
}

// Evaluate looks up code, validates it for cartTotal and returns the coupon
// together with the discount it yields.
func (v *Evaluator) Evaluate(ctx context.Context, code string, cartTotal decimal.Decimal) (*Coupon, Discount, error) {
	code = NormalizeCode(code)
	if code == "" {
		return nil, Discount{}, ErrNotFound
	}

	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, Discount{}, ErrNotFound
		}
		return nil, Discount{}, errors.Wrap(err, "lookup coupon")
	}

	if err := Validate(c, cartTotal, v.now(), v.opts); err != nil {
		return nil, Discount{}, err
	}
	return c, Apply(cartTotal, c), nil
}

// Package discount validates discount codes against their window and
// usage policy and recomputes cart totals.  Discounts only ever
// affect the computed total; the stored seat prices are never
// touched.
package discount

import (
	"context"
	"errors"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

// ErrCodeInvalid covers every way a code can fail for the shopper:
// unknown, outside its validity window, or over its usage cap.  The
// distinction is deliberately not part of the contract; the cart
// simply proceeds without a discount.
var ErrCodeInvalid = errors.New("discount code invalid or expired")

// CodeSource supplies discount codes and records redemptions.  The
// MySQL repository implements it; tests use an in-memory fake.
type CodeSource interface {
	// GetByCode looks a code up by its string.  found is false for
	// unknown codes; err is reserved for infrastructure failures.
	GetByCode(ctx context.Context, code string) (d model.DiscountCode, found bool, err error)
	// RegisterUse bumps the usage counter after a successful
	// checkout, respecting the cap.
	RegisterUse(ctx context.Context, id uint64) error
}

// Engine is the discount engine.  Validation is read-mostly and needs
// no locking beyond the source's own consistency.
type Engine struct {
	src CodeSource
	clk clock.Clock
}

// NewEngine returns an Engine reading codes from src.
func NewEngine(src CodeSource, clk clock.Clock) *Engine {
	return &Engine{src: src, clk: clk}
}

// Validate resolves a code string to a usable DiscountCode.  A code
// is valid iff now falls within [ValidFrom, ValidTo] and its usage
// count is below the cap; anything else is ErrCodeInvalid.
func (e *Engine) Validate(ctx context.Context, code string) (model.DiscountCode, error) {
	d, found, err := e.src.GetByCode(ctx, code)
	if err != nil {
		return model.DiscountCode{}, err
	}
	if !found || !d.Usable(e.clk.Now()) {
		return model.DiscountCode{}, ErrCodeInvalid
	}
	return d, nil
}

// RegisterUse records one redemption of the code.
func (e *Engine) RegisterUse(ctx context.Context, d model.DiscountCode) error {
	return e.src.RegisterUse(ctx, d.ID)
}

// Apply prices the cart lines, reducing the total by the code's rule
// when one is given.  Passing nil prices the cart undiscounted.  The
// reduction never exceeds the subtotal and line prices are returned
// unchanged.
func Apply(lines []model.CartLine, d *model.DiscountCode) model.PricedCart {
	var subtotal uint32
	for _, l := range lines {
		subtotal += l.PriceCents
	}
	pc := model.PricedCart{
		Lines:         lines,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
	}
	if d == nil {
		return pc
	}
	var off uint32
	switch d.Rule {
	case model.DiscountPercentage:
		off = subtotal * d.Value / 100
	case model.DiscountFixed:
		off = d.Value
	}
	if off > subtotal {
		off = subtotal
	}
	pc.DiscountCents = off
	pc.TotalCents = subtotal - off
	pc.AppliedCode = d.Code
	return pc
}

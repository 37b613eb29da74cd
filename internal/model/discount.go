package model

import "time"

// DiscountRule selects how a code reduces the cart total.
type DiscountRule string

const (
	DiscountPercentage DiscountRule = "porcentaje" // Value is a percentage of the total
	DiscountFixed      DiscountRule = "monto"      // Value is a fixed amount in cents
)

// DiscountCode is a time- and usage-bounded rule that reduces the
// computed cart total.  Applying a code never touches the stored seat
// prices; the reduction exists only in the priced cart returned to
// the shopper and in the amount later charged.
//
// Fields:
//  ID        – primary key identifier.
//  Code      – the code string shoppers type in (descuentos.codigo).
//  ValidFrom – start of the validity window.
//  ValidTo   – end of the validity window.
//  Rule      – porcentaje or monto.
//  Value     – percentage points or cents depending on Rule.
//  MaxUses   – usage cap; zero means unlimited.
//  Uses      – times the code has been redeemed so far.
type DiscountCode struct {
	ID        uint64       // descuentos.id
	Code      string       // descuentos.codigo
	ValidFrom time.Time    // descuentos.fecha_inicio
	ValidTo   time.Time    // descuentos.fecha_final
	Rule      DiscountRule // descuentos.tipo
	Value     uint32       // descuentos.valor
	MaxUses   uint32       // descuentos.max_usos (0 = unlimited)
	Uses      uint32       // descuentos.usos
	CreatedAt time.Time    // descuentos.created_at
	UpdatedAt time.Time    // descuentos.updated_at
}

// Usable reports whether the code can still be redeemed at the given
// instant: inside its validity window and below its usage cap.
func (d DiscountCode) Usable(now time.Time) bool {
	if now.Before(d.ValidFrom) || now.After(d.ValidTo) {
		return false
	}
	if d.MaxUses > 0 && d.Uses >= d.MaxUses {
		return false
	}
	return true
}

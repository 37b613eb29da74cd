package discount

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entradaslive/ticketing-core/internal/clock"
	"github.com/entradaslive/ticketing-core/internal/model"
)

type fakeSource struct {
	codes map[string]model.DiscountCode
	used  map[uint64]int
}

func (f *fakeSource) GetByCode(_ context.Context, code string) (model.DiscountCode, bool, error) {
	d, ok := f.codes[code]
	return d, ok, nil
}

func (f *fakeSource) RegisterUse(_ context.Context, id uint64) error {
	if f.used == nil {
		f.used = map[uint64]int{}
	}
	f.used[id]++
	return nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func summer10() model.DiscountCode {
	return model.DiscountCode{
		ID:        1,
		Code:      "SUMMER10",
		ValidFrom: testNow.Add(-24 * time.Hour),
		ValidTo:   testNow.Add(24 * time.Hour),
		Rule:      model.DiscountPercentage,
		Value:     10,
		MaxUses:   100,
	}
}

func twoSeatLines() []model.CartLine {
	return []model.CartLine{
		{SeatID: 1, Label: "A1", PriceCents: 5000},
		{SeatID: 2, Label: "A2", PriceCents: 3000},
	}
}

func TestValidateAndApply_Percentage(t *testing.T) {
	src := &fakeSource{codes: map[string]model.DiscountCode{"SUMMER10": summer10()}}
	eng := NewEngine(src, clock.NewFake(testNow))

	d, err := eng.Validate(context.Background(), "SUMMER10")
	require.NoError(t, err)

	pc := Apply(twoSeatLines(), &d)
	assert.Equal(t, uint32(8000), pc.SubtotalCents)
	assert.Equal(t, uint32(800), pc.DiscountCents)
	assert.Equal(t, uint32(7200), pc.TotalCents, "$50 + $30 at 10%% off is $72.00")
	assert.Equal(t, "SUMMER10", pc.AppliedCode)

	// Line prices stay at their stored values.
	assert.Equal(t, uint32(5000), pc.Lines[0].PriceCents)
	assert.Equal(t, uint32(3000), pc.Lines[1].PriceCents)
}

func TestValidate_ExpiredCode(t *testing.T) {
	expired := summer10()
	expired.ValidTo = testNow.Add(-time.Hour)
	src := &fakeSource{codes: map[string]model.DiscountCode{"SUMMER10": expired}}
	eng := NewEngine(src, clock.NewFake(testNow))

	_, err := eng.Validate(context.Background(), "SUMMER10")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	// The cart proceeds at full price.
	pc := Apply(twoSeatLines(), nil)
	assert.Equal(t, uint32(8000), pc.TotalCents)
	assert.Zero(t, pc.DiscountCents)
}

func TestValidate_UnknownAndCapped(t *testing.T) {
	capped := summer10()
	capped.MaxUses = 3
	capped.Uses = 3
	src := &fakeSource{codes: map[string]model.DiscountCode{"SUMMER10": capped}}
	eng := NewEngine(src, clock.NewFake(testNow))

	_, err := eng.Validate(context.Background(), "NOPE")
	assert.ErrorIs(t, err, ErrCodeInvalid)

	// Over the cap surfaces as the same category as expired.
	_, err = eng.Validate(context.Background(), "SUMMER10")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestValidate_NotYetValid(t *testing.T) {
	future := summer10()
	future.ValidFrom = testNow.Add(time.Hour)
	src := &fakeSource{codes: map[string]model.DiscountCode{"SUMMER10": future}}
	eng := NewEngine(src, clock.NewFake(testNow))

	_, err := eng.Validate(context.Background(), "SUMMER10")
	assert.ErrorIs(t, err, ErrCodeInvalid)
}

func TestApply_FixedAmount(t *testing.T) {
	d := summer10()
	d.Rule = model.DiscountFixed
	d.Value = 2500

	pc := Apply(twoSeatLines(), &d)
	assert.Equal(t, uint32(5500), pc.TotalCents)

	// A fixed reduction larger than the subtotal bottoms out at zero.
	d.Value = 99999
	pc = Apply(twoSeatLines(), &d)
	assert.Equal(t, uint32(0), pc.TotalCents)
	assert.Equal(t, uint32(8000), pc.DiscountCents)
}

func TestRegisterUse(t *testing.T) {
	src := &fakeSource{codes: map[string]model.DiscountCode{"SUMMER10": summer10()}}
	eng := NewEngine(src, clock.NewFake(testNow))

	d, err := eng.Validate(context.Background(), "SUMMER10")
	require.NoError(t, err)
	require.NoError(t, eng.RegisterUse(context.Background(), d))
	assert.Equal(t, 1, src.used[d.ID])
}

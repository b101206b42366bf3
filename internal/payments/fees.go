package payments

// FeeModel is the processor's percentage-plus-fixed pricing. The gross charge
// is rounded up to the next cent so the fee never under-covers processor
// cost: gross = ceil((base + fixed) / (1 - pct)).
type FeeModel struct {
	PercentBps int
	FixedCents int64
}

// Gross returns the total to charge the requester so that, after the
// processor takes its cut, the platform nets baseCents.
func (f FeeModel) Gross(baseCents int64) int64 {
	num := (baseCents + f.FixedCents) * 10000
	den := int64(10000 - f.PercentBps)
	return (num + den - 1) / den
}

// Fee returns the processor fee added on top of baseCents.
func (f FeeModel) Fee(baseCents int64) int64 {
	return f.Gross(baseCents) - baseCents
}

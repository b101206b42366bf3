package payments

// Commission tiers: a provider's first three completed orders are
// commission-free; after that the platform takes 10% of the base amount.
const (
	commissionFreeOrders = 3
	commissionRateBps    = 1000
)

// Commission returns the platform's cut of baseAmountCents, rounded half-up
// to the cent. Pure: completedOrders is read from the identity directory and
// never mutated here.
func Commission(completedOrders int, baseAmountCents int64) int64 {
	if completedOrders < commissionFreeOrders {
		return 0
	}
	return (baseAmountCents*commissionRateBps + 5000) / 10000
}

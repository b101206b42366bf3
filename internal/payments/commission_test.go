package payments

import "testing"

func TestCommission(t *testing.T) {
	cases := []struct {
		name            string
		completedOrders int
		baseCents       int64
		want            int64
	}{
		{"first order is free", 0, 10000, 0},
		{"third order still free", 2, 10000, 0},
		{"fourth order pays 10%", 3, 10000, 1000},
		{"established provider", 5, 10000, 1000},
		{"rounds half up", 4, 10005, 1001},
		{"rounds down below half", 4, 10004, 1000},
		{"zero base", 10, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Commission(tc.completedOrders, tc.baseCents); got != tc.want {
				t.Fatalf("Commission(%d, %d) = %d, want %d", tc.completedOrders, tc.baseCents, got, tc.want)
			}
		})
	}
}

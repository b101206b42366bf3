package payments

import "testing"

func TestFeeModel(t *testing.T) {
	standard := FeeModel{PercentBps: 290, FixedCents: 30}

	cases := []struct {
		name      string
		model     FeeModel
		baseCents int64
		wantGross int64
		wantFee   int64
	}{
		{"standard card pricing", standard, 10000, 10330, 330},
		{"ceil rounds up a fractional cent", standard, 5000, 5181, 181},
		{"exact division needs no rounding", standard, 941, 1000, 59},
		{"free processor", FeeModel{}, 10000, 10000, 0},
		{"fixed component only", FeeModel{FixedCents: 30}, 10000, 10030, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.model.Gross(tc.baseCents); got != tc.wantGross {
				t.Fatalf("Gross(%d) = %d, want %d", tc.baseCents, got, tc.wantGross)
			}
			if got := tc.model.Fee(tc.baseCents); got != tc.wantFee {
				t.Fatalf("Fee(%d) = %d, want %d", tc.baseCents, got, tc.wantFee)
			}
		})
	}
}

// The gross amount must always net the platform at least the base after the
// processor takes its percentage and fixed cut.
func TestFeeModel_GrossCoversProcessorCut(t *testing.T) {
	m := FeeModel{PercentBps: 290, FixedCents: 30}
	for base := int64(1); base <= 2000; base++ {
		gross := m.Gross(base)
		// Processor keeps pct of gross plus the fixed fee (fractional cents
		// tracked exactly via basis points).
		netTimes10000 := gross*10000 - gross*int64(m.PercentBps) - m.FixedCents*10000
		if netTimes10000 < base*10000 {
			t.Fatalf("base %d: gross %d nets %d/10000, under base", base, gross, netTimes10000)
		}
	}
}

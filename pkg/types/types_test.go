package types

import (
	"math"
	"testing"
)

func TestOutcomePartner(t *testing.T) {
	t.Parallel()

	if YES.Partner() != NO {
		t.Error("YES partner should be NO")
	}
	if NO.Partner() != YES {
		t.Error("NO partner should be YES")
	}
}

func TestMarketInfoTokenID(t *testing.T) {
	t.Parallel()

	m := MarketInfo{YesTokenID: "yes-1", NoTokenID: "no-1"}
	if m.TokenID(YES) != "yes-1" {
		t.Errorf("TokenID(YES) = %s", m.TokenID(YES))
	}
	if m.TokenID(NO) != "no-1" {
		t.Errorf("TokenID(NO) = %s", m.TokenID(NO))
	}
}

func TestMarketInfoInPriceRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yes, no float64
		want    bool
	}{
		{"both inside", 0.52, 0.48, true},
		{"at the edges", 0.20, 0.80, true},
		{"yes below", 0.15, 0.48, false},
		{"no above", 0.52, 0.85, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := MarketInfo{YesPrice: tt.yes, NoPrice: tt.no}
			if got := m.InPriceRange(0.20, 0.80); got != tt.want {
				t.Errorf("InPriceRange(%v, %v) = %v, want %v", tt.yes, tt.no, got, tt.want)
			}
		})
	}
}

func TestQuoteActiveAndNotional(t *testing.T) {
	t.Parallel()

	q := Quote{Price: 0.49, Size: 5}
	if q.IsActive() {
		t.Error("quote without order ID reports active")
	}
	q.OrderID = "order-1"
	if !q.IsActive() {
		t.Error("acknowledged quote reports inactive")
	}
	if math.Abs(q.Notional()-2.45) > 1e-9 {
		t.Errorf("Notional() = %v, want 2.45", q.Notional())
	}
}

func TestFillNotional(t *testing.T) {
	t.Parallel()

	f := Fill{Price: 0.5, Size: 10}
	if f.Notional() != 5.0 {
		t.Errorf("Notional() = %v, want 5.0", f.Notional())
	}
}

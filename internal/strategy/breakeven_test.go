package strategy

import (
	"log/slog"
	"math"
	"os"
	"testing"

	"polymarket-boxbot/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestCalculator() *BreakevenCalculator {
	return NewBreakevenCalculator(0.99, 0.005, testLogger())
}

func emptyPosition() *MarketPosition {
	return &MarketPosition{
		ConditionID: "cond-1",
		Yes:         Position{TokenID: "yes-token", Outcome: "YES"},
		No:          Position{TokenID: "no-token", Outcome: "NO"},
	}
}

func TestEffectiveTarget(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	if got := c.EffectiveTarget(); math.Abs(got-0.985) > 1e-9 {
		t.Errorf("EffectiveTarget() = %v, want 0.985", got)
	}
}

func TestMaxBidEmptyPosition(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()
	pos := emptyPosition()

	// No partner cost, no existing shares: the whole effective target is
	// available as headroom.
	got := c.MaxBid(types.YES, 10, pos)
	if math.Abs(got-0.985) > 1e-9 {
		t.Errorf("MaxBid(YES, 10, empty) = %v, want 0.985", got)
	}
}

func TestMaxBidWithExistingPosition(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	// YES: 10 shares for $4.00 (avg 0.40), NO: 10 shares for $5.00 (avg 0.50).
	// Headroom = 0.985 - 0.50 = 0.485
	// MaxBid = (0.485*(10+5) - 4.0)/5 = 0.655
	pos := emptyPosition()
	pos.Yes.AddFill(10, 0.40)
	pos.No.AddFill(10, 0.50)

	got := c.MaxBid(types.YES, 5, pos)
	if math.Abs(got-0.655) > 1e-9 {
		t.Errorf("MaxBid(YES, 5) = %v, want 0.655", got)
	}
}

func TestMaxBidSymmetricSides(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	pos := emptyPosition()
	pos.No.AddFill(10, 0.40)
	pos.Yes.AddFill(10, 0.50)

	got := c.MaxBid(types.NO, 5, pos)
	if math.Abs(got-0.655) > 1e-9 {
		t.Errorf("MaxBid(NO, 5) = %v, want 0.655", got)
	}
}

func TestMaxBidPartnerExhaustsTarget(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	// Partner avg at the effective target leaves no headroom.
	pos := emptyPosition()
	pos.No.AddFill(10, 0.985)

	if got := c.MaxBid(types.YES, 5, pos); got != 0 {
		t.Errorf("MaxBid with exhausted headroom = %v, want 0", got)
	}

	// Above the target, same answer.
	pos2 := emptyPosition()
	pos2.No.AddFill(10, 0.99)
	if got := c.MaxBid(types.YES, 5, pos2); got != 0 {
		t.Errorf("MaxBid with negative headroom = %v, want 0", got)
	}
}

func TestMaxBidNonPositiveQuantity(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()
	pos := emptyPosition()

	if got := c.MaxBid(types.YES, 0, pos); got != 0 {
		t.Errorf("MaxBid(YES, 0) = %v, want 0", got)
	}
	if got := c.MaxBid(types.YES, -5, pos); got != 0 {
		t.Errorf("MaxBid(YES, -5) = %v, want 0", got)
	}
}

func TestMaxBidClamped(t *testing.T) {
	t.Parallel()
	c := NewBreakevenCalculator(0.99, 0, testLogger())
	pos := emptyPosition()

	// Cheap existing YES shares push the raw answer above 0.99; the bid
	// must stay inside the exchange's valid range.
	pos.Yes.AddFill(100, 0.10)
	if got := c.MaxBid(types.YES, 1, pos); got != 0.99 {
		t.Errorf("MaxBid high clamp = %v, want 0.99", got)
	}

	// Expensive existing YES shares push the raw answer negative.
	pos2 := emptyPosition()
	pos2.Yes.AddFill(100, 0.984)
	pos2.No.AddFill(100, 0.90)
	if got := NewBreakevenCalculator(0.99, 0.005, testLogger()).MaxBid(types.YES, 1, pos2); got != 0.01 {
		t.Errorf("MaxBid low clamp = %v, want 0.01", got)
	}
}

func TestIsBidValid(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()
	pos := emptyPosition()

	if !c.IsBidValid(types.YES, 0.50, 10, pos) {
		t.Error("bid well under the ceiling should be valid")
	}
	if c.IsBidValid(types.YES, 0.986, 10, pos) {
		t.Error("bid above the ceiling should be invalid")
	}
}

func TestProjectedBoxCost(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	pos := emptyPosition()
	pos.Yes.AddFill(10, 0.40)
	pos.No.AddFill(10, 0.50)

	// Filling 10 more YES at 0.60 moves the YES avg to 0.50.
	got := c.ProjectedBoxCost(types.YES, 0.60, 10, pos)
	if math.Abs(got-1.00) > 1e-9 {
		t.Errorf("ProjectedBoxCost = %v, want 1.00", got)
	}

	// The projection must not mutate the real position.
	if math.Abs(pos.Yes.AvgCost()-0.40) > 1e-9 {
		t.Errorf("position mutated by projection: avg = %v", pos.Yes.AvgCost())
	}
}

func TestProfitMargin(t *testing.T) {
	t.Parallel()
	c := newTestCalculator()

	pos := emptyPosition()
	pos.Yes.AddFill(10, 0.45)
	pos.No.AddFill(10, 0.50)

	got := c.ProfitMargin(pos)
	if math.Abs(got-0.05) > 1e-9 {
		t.Errorf("ProfitMargin = %v, want 0.05", got)
	}
}

func TestClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		v, lo, hi, want float64
	}{
		{0.5, 0.01, 0.99, 0.5},
		{-1, 0.01, 0.99, 0.01},
		{2, 0.01, 0.99, 0.99},
		{0.01, 0.01, 0.99, 0.01},
		{0.99, 0.01, 0.99, 0.99},
	}
	for _, tt := range tests {
		if got := clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

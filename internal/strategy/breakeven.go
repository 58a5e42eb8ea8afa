package strategy

import (
	"log/slog"

	"polymarket-boxbot/pkg/types"
)

// BreakevenCalculator derives the highest bid price that keeps a market's
// box cost under the effective target.
//
// Constraint for a new YES bid of qty shares at price p:
//
//	(spendYes + p*qty) / (qtyYes + qty) + avgCostNo < target
//
// Solved for p:
//
//	p < ((target - avgCostNo) * (qtyYes + qty) - spendYes) / qty
//
// The NO side is symmetric. The result is clamped to the exchange's valid
// price range [0.01, 0.99].
type BreakevenCalculator struct {
	breakevenTarget float64
	safetyMargin    float64
	effectiveTarget float64
	logger          *slog.Logger
}

// NewBreakevenCalculator builds a calculator for the given target and margin.
func NewBreakevenCalculator(breakevenTarget, safetyMargin float64, logger *slog.Logger) *BreakevenCalculator {
	return &BreakevenCalculator{
		breakevenTarget: breakevenTarget,
		safetyMargin:    safetyMargin,
		effectiveTarget: breakevenTarget - safetyMargin,
		logger:          logger.With("component", "breakeven"),
	}
}

// EffectiveTarget returns the box-cost ceiling the calculator enforces.
func (c *BreakevenCalculator) EffectiveTarget() float64 {
	return c.effectiveTarget
}

// MaxBid returns the maximum price at which newQty shares of the given
// outcome can be bought without the projected box cost breaching the
// effective target. Returns 0 when newQty is non-positive or when the
// partner side's average cost already consumes all headroom.
func (c *BreakevenCalculator) MaxBid(outcome types.Outcome, newQty float64, pos *MarketPosition) float64 {
	if newQty <= 0 {
		return 0
	}

	var spend, qty, partnerAvg float64
	if outcome == types.YES {
		spend, qty, partnerAvg = pos.Yes.TotalCost, pos.Yes.Quantity, pos.No.AvgCost()
	} else {
		spend, qty, partnerAvg = pos.No.TotalCost, pos.No.Quantity, pos.Yes.AvgCost()
	}

	headroom := c.effectiveTarget - partnerAvg
	if headroom <= 0 {
		c.logger.Warn("no room for bid, partner side exhausts target",
			"outcome", outcome,
			"partner_avg", partnerAvg,
			"target", c.effectiveTarget,
		)
		return 0
	}

	maxPrice := (headroom*(qty+newQty) - spend) / newQty
	return clamp(maxPrice, 0.01, 0.99)
}

// IsBidValid reports whether a bid at the given price and quantity keeps
// the box constraint intact.
func (c *BreakevenCalculator) IsBidValid(outcome types.Outcome, bidPrice, newQty float64, pos *MarketPosition) bool {
	maxBid := c.MaxBid(outcome, newQty, pos)
	valid := bidPrice <= maxBid
	if !valid {
		c.logger.Warn("bid exceeds breakeven ceiling",
			"outcome", outcome,
			"price", bidPrice,
			"size", newQty,
			"max_bid", maxBid,
		)
	}
	return valid
}

// ProjectedBoxCost returns the box cost the market would carry after a
// fill of newQty at bidPrice on the given outcome.
func (c *BreakevenCalculator) ProjectedBoxCost(outcome types.Outcome, bidPrice, newQty float64, pos *MarketPosition) float64 {
	yes, no := pos.Yes, pos.No
	if outcome == types.YES {
		yes.AddFill(newQty, bidPrice)
	} else {
		no.AddFill(newQty, bidPrice)
	}
	return yes.AvgCost() + no.AvgCost()
}

// ProfitMargin returns the guaranteed profit per box at resolution:
// 1.0 minus the combined average cost.
func (c *BreakevenCalculator) ProfitMargin(pos *MarketPosition) float64 {
	return 1.0 - pos.BoxCost()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

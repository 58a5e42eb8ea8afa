// Package strategy implements the breakeven-box accumulation strategy for
// Polymarket binary prediction markets (prices in [0, 1]).
//
// The core idea: post passive BUY quotes on both the YES and NO books of a
// market and accumulate matched pairs ("boxes"). As long as the combined
// average cost of 1 YES + 1 NO stays below the effective target (breakeven
// target minus a safety margin, 0.985 with defaults), every box pays out
// more at resolution than it cost.
//
// Per-cycle flow (every quote refresh interval):
//  1. Cancel all resting orders.
//  2. For each active market, derive the max affordable bid per side from
//     the breakeven constraint.
//  3. Generate passive bids one tick behind the best bid, tilted by
//     inventory skew, capped at the breakeven ceiling.
//  4. Resize against the global position limit and submit post-only.
//
// The bot never sells. Profit is locked in at resolution plus maker rebates
// earned along the way.
package strategy

import (
	"log/slog"
	"math"
	"sync"
)

// Position represents accumulated holdings in a single outcome token.
// Serialized to JSON for persistence across bot restarts.
type Position struct {
	TokenID   string  `json:"token_id"`
	Outcome   string  `json:"outcome"`
	Quantity  float64 `json:"quantity"`
	TotalCost float64 `json:"total_cost"`
}

// AvgCost returns the average cost per share, 0 for an empty position.
func (p Position) AvgCost() float64 {
	if p.Quantity <= 0 {
		return 0
	}
	return p.TotalCost / p.Quantity
}

// AddFill folds a buy execution into the position.
func (p *Position) AddFill(qty, price float64) {
	p.TotalCost += qty * price
	p.Quantity += qty
}

// MarketPosition pairs the YES and NO positions of one market.
type MarketPosition struct {
	ConditionID string   `json:"condition_id"`
	Yes         Position `json:"yes_position"`
	No          Position `json:"no_position"`
}

// SkewRatio returns the YES/NO quantity ratio.
// 0/0 is balanced (1.0); a one-sided YES position is +Inf.
func (mp MarketPosition) SkewRatio() float64 {
	if mp.No.Quantity == 0 {
		if mp.Yes.Quantity > 0 {
			return math.Inf(1)
		}
		return 1.0
	}
	return mp.Yes.Quantity / mp.No.Quantity
}

// InverseSkewRatio returns the NO/YES quantity ratio with the same
// zero-handling as SkewRatio.
func (mp MarketPosition) InverseSkewRatio() float64 {
	if mp.Yes.Quantity == 0 {
		if mp.No.Quantity > 0 {
			return math.Inf(1)
		}
		return 1.0
	}
	return mp.No.Quantity / mp.Yes.Quantity
}

// BoxCost is the cost of 1 YES + 1 NO at current average costs.
func (mp MarketPosition) BoxCost() float64 {
	return mp.Yes.AvgCost() + mp.No.AvgCost()
}

// TotalSpent is the USDC spent on this market across both sides.
func (mp MarketPosition) TotalSpent() float64 {
	return mp.Yes.TotalCost + mp.No.TotalCost
}

// Inventory tracks positions across all markets and derives the skew
// signals that tilt quoting. Thread-safe: the trading loop, the fill
// dispatcher, and the state writer all touch it concurrently.
type Inventory struct {
	mu            sync.RWMutex
	positions     map[string]*MarketPosition // condition_id -> position
	skewThreshold float64
	logger        *slog.Logger
}

// NewInventory creates an empty tracker.
func NewInventory(skewThreshold float64, logger *slog.Logger) *Inventory {
	return &Inventory{
		positions:     make(map[string]*MarketPosition),
		skewThreshold: skewThreshold,
		logger:        logger.With("component", "inventory"),
	}
}

// GetOrCreate returns the position for a market, creating an empty one on
// first sight. Idempotent: an existing position is never reset.
func (inv *Inventory) GetOrCreate(conditionID, yesTokenID, noTokenID string) *MarketPosition {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if pos, ok := inv.positions[conditionID]; ok {
		return pos
	}
	pos := &MarketPosition{
		ConditionID: conditionID,
		Yes:         Position{TokenID: yesTokenID, Outcome: "YES"},
		No:          Position{TokenID: noTokenID, Outcome: "NO"},
	}
	inv.positions[conditionID] = pos
	return pos
}

// Get returns the position for a market, or nil if unknown.
func (inv *Inventory) Get(conditionID string) *MarketPosition {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.positions[conditionID]
}

// RecordFill folds a BUY fill into the named market's position.
// Fills for unknown markets and SELL fills are invariant violations:
// logged and dropped without mutating state.
func (inv *Inventory) RecordFill(conditionID string, outcome string, side string, size, price float64) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	pos, ok := inv.positions[conditionID]
	if !ok {
		inv.logger.Warn("fill for unknown market, dropping", "condition_id", conditionID)
		return
	}
	if side != "BUY" {
		inv.logger.Warn("non-BUY fill ignored, inventory only accumulates",
			"condition_id", conditionID, "side", side)
		return
	}

	if outcome == "YES" {
		pos.Yes.AddFill(size, price)
		inv.logger.Info("YES fill",
			"size", size, "price", price,
			"avg_cost", pos.Yes.AvgCost(), "quantity", pos.Yes.Quantity)
	} else {
		pos.No.AddFill(size, price)
		inv.logger.Info("NO fill",
			"size", size, "price", price,
			"avg_cost", pos.No.AvgCost(), "quantity", pos.No.Quantity)
	}

	inv.logSkew(pos)
}

// SkewRatio returns the YES/NO ratio for a market, 1.0 if unknown.
func (inv *Inventory) SkewRatio(conditionID string) float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	pos, ok := inv.positions[conditionID]
	if !ok {
		return 1.0
	}
	return pos.SkewRatio()
}

// IsYesHeavy reports whether YES quantity exceeds NO by the skew threshold.
func (inv *Inventory) IsYesHeavy(conditionID string) bool {
	return inv.SkewRatio(conditionID) > inv.skewThreshold
}

// IsNoHeavy reports whether NO quantity exceeds YES by the skew threshold.
func (inv *Inventory) IsNoHeavy(conditionID string) bool {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	pos, ok := inv.positions[conditionID]
	if !ok {
		return false
	}
	return pos.InverseSkewRatio() > inv.skewThreshold
}

// AdjustmentDirection returns the tick adjustment pair (yes, no) that
// rebalances a skewed position: the heavy side backs off one tick, the
// light side joins the top of book.
func (inv *Inventory) AdjustmentDirection(conditionID string) (yesAdj, noAdj int) {
	if inv.IsYesHeavy(conditionID) {
		return -1, 1
	}
	if inv.IsNoHeavy(conditionID) {
		return 1, -1
	}
	return 0, 0
}

// YesQuantity returns the YES shares held in a market, 0 if unknown.
func (inv *Inventory) YesQuantity(conditionID string) float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if pos, ok := inv.positions[conditionID]; ok {
		return pos.Yes.Quantity
	}
	return 0
}

// NoQuantity returns the NO shares held in a market, 0 if unknown.
func (inv *Inventory) NoQuantity(conditionID string) float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if pos, ok := inv.positions[conditionID]; ok {
		return pos.No.Quantity
	}
	return 0
}

// BoxCost returns the current box cost for a market, 0 if unknown.
func (inv *Inventory) BoxCost(conditionID string) float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if pos, ok := inv.positions[conditionID]; ok {
		return pos.BoxCost()
	}
	return 0
}

// TotalSpent returns USDC spent on one market, 0 if unknown.
func (inv *Inventory) TotalSpent(conditionID string) float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if pos, ok := inv.positions[conditionID]; ok {
		return pos.TotalSpent()
	}
	return 0
}

// AllSpent returns USDC spent across all markets.
func (inv *Inventory) AllSpent() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var total float64
	for _, pos := range inv.positions {
		total += pos.TotalSpent()
	}
	return total
}

// LoadPositions replaces the tracker's contents from persisted state.
func (inv *Inventory) LoadPositions(positions map[string]*MarketPosition) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	inv.positions = make(map[string]*MarketPosition, len(positions))
	for id, pos := range positions {
		inv.positions[id] = pos
	}
	inv.logger.Info("loaded positions from state", "count", len(positions))
}

// ExportPositions returns a snapshot copy of all positions for persistence.
func (inv *Inventory) ExportPositions() map[string]MarketPosition {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make(map[string]MarketPosition, len(inv.positions))
	for id, pos := range inv.positions {
		out[id] = *pos
	}
	return out
}

func (inv *Inventory) logSkew(pos *MarketPosition) {
	ratio := pos.SkewRatio()
	status := "BALANCED"
	if ratio > inv.skewThreshold {
		status = "YES_HEAVY"
	} else if ratio < 1/inv.skewThreshold {
		status = "NO_HEAVY"
	}

	inv.logger.Debug("skew",
		"yes_qty", pos.Yes.Quantity,
		"no_qty", pos.No.Quantity,
		"ratio", ratio,
		"box_cost", pos.BoxCost(),
		"status", status,
	)
}

package strategy

import (
	"log/slog"
	"math"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/internal/market"
	"polymarket-boxbot/pkg/types"
)

// QuoteGenerator produces the passive BUY quotes for both sides of a market.
//
// Placement rules:
//   - Base price is one tick behind the best bid (never the top of book).
//   - A positive skew adjustment joins the best bid; a negative one steps
//     one further tick back. Balanced inventory stays at the base.
//   - The price is snapped to the tick grid, capped at the breakeven
//     ceiling (rounded down to the grid), and must land inside the
//     configured price band.
//   - All quotes are BUY, post-only, base size.
type QuoteGenerator struct {
	cfg    config.TradingConfig
	logger *slog.Logger
}

// NewQuoteGenerator builds a generator from trading config.
func NewQuoteGenerator(cfg config.TradingConfig, logger *slog.Logger) *QuoteGenerator {
	return &QuoteGenerator{
		cfg:    cfg,
		logger: logger.With("component", "quotes"),
	}
}

// GenerateQuotes returns 0-2 bid quotes for a market, one per outcome.
// A side is skipped when its book is missing, has no bids, or when its
// max price (the breakeven ceiling) rules out any placement. Callers must
// pass maxYesBid/maxNoBid of 0 to suppress a side entirely.
func (g *QuoteGenerator) GenerateQuotes(
	conditionID, yesTokenID, noTokenID string,
	yesBook, noBook *market.Book,
	yesQty, noQty float64,
	maxYesBid, maxNoBid float64,
) []types.Quote {
	skewRatio := skewRatio(yesQty, noQty)
	yesAdj, noAdj := g.skewAdjustments(skewRatio)

	var quotes []types.Quote
	if q, ok := g.generateSingle(yesTokenID, types.YES, yesBook, yesAdj, maxYesBid); ok {
		quotes = append(quotes, q)
	}
	if q, ok := g.generateSingle(noTokenID, types.NO, noBook, noAdj, maxNoBid); ok {
		quotes = append(quotes, q)
	}

	for _, q := range quotes {
		g.logger.Debug("quote",
			"outcome", q.Outcome,
			"price", q.Price,
			"size", q.Size,
			"skew_ratio", skewRatio,
		)
	}
	return quotes
}

func (g *QuoteGenerator) generateSingle(
	tokenID string,
	outcome types.Outcome,
	book *market.Book,
	tickAdjustment int,
	maxPrice float64,
) (types.Quote, bool) {
	if maxPrice <= 0 {
		return types.Quote{}, false
	}
	if book == nil {
		g.logger.Debug("no orderbook, skipping quote", "outcome", outcome)
		return types.Quote{}, false
	}
	bestBid, ok := book.BestBid()
	if !ok {
		g.logger.Debug("no best bid, skipping quote", "outcome", outcome)
		return types.Quote{}, false
	}

	tick := g.cfg.TickSize
	var price float64
	switch {
	case tickAdjustment > 0:
		price = bestBid // join the top of book
	case tickAdjustment < 0:
		price = bestBid - 2*tick // step back behind the base
	default:
		price = bestBid - tick
	}

	// Snap to the tick grid.
	price = math.Round(price/tick) * tick

	// Cap at the breakeven ceiling, rounded down so the cap is never
	// overshot by grid snapping.
	if price > maxPrice {
		price = math.Floor(maxPrice/tick) * tick
	}

	if price < g.cfg.MinPrice || price > g.cfg.MaxPrice {
		g.logger.Debug("quote outside price band, skipping",
			"outcome", outcome, "price", price,
			"min", g.cfg.MinPrice, "max", g.cfg.MaxPrice)
		return types.Quote{}, false
	}
	if price <= 0 || price >= 1 {
		return types.Quote{}, false
	}

	return types.Quote{
		TokenID: tokenID,
		Outcome: outcome,
		Side:    types.BUY,
		Price:   math.Round(price*10000) / 10000,
		Size:    g.cfg.BaseQuoteSize,
	}, true
}

// AdjustSizeForPositionLimit shrinks a quote so its notional fits inside
// the remaining position capacity. Returns false when no viable size
// remains (capacity exhausted or the resized quote would be dust).
func (g *QuoteGenerator) AdjustSizeForPositionLimit(quote types.Quote, currentSpent, maxPosition float64) (types.Quote, bool) {
	remaining := maxPosition - currentSpent
	if remaining <= 0 {
		g.logger.Warn("position limit reached, skipping quote", "outcome", quote.Outcome)
		return types.Quote{}, false
	}

	if quote.Notional() > remaining {
		newSize := math.Round(remaining/quote.Price*100) / 100
		if newSize < 0.1 {
			return types.Quote{}, false
		}
		g.logger.Debug("resized quote for position limit",
			"outcome", quote.Outcome, "from", quote.Size, "to", newSize)
		quote.Size = newSize
	}
	return quote, true
}

func skewRatio(yesQty, noQty float64) float64 {
	if noQty == 0 {
		if yesQty > 0 {
			return math.Inf(1)
		}
		return 1.0
	}
	return yesQty / noQty
}

// skewAdjustments maps a skew ratio to per-side tick adjustments.
// A heavy side backs off, the light side joins the top of book.
func (g *QuoteGenerator) skewAdjustments(ratio float64) (yesAdj, noAdj int) {
	switch {
	case ratio > g.cfg.SkewThreshold:
		return -1, 1
	case ratio < 1/g.cfg.SkewThreshold:
		return 1, -1
	default:
		return 0, 0
	}
}

// BatchQuoteBuilder accumulates quotes across markets up to the batch
// submission limit.
type BatchQuoteBuilder struct {
	maxBatchSize int
	quotes       []types.Quote
}

// NewBatchQuoteBuilder creates a builder capped at maxBatchSize quotes.
func NewBatchQuoteBuilder(maxBatchSize int) *BatchQuoteBuilder {
	return &BatchQuoteBuilder{maxBatchSize: maxBatchSize}
}

// Add appends quotes until the batch is full; overflow is silently dropped
// (the next cycle re-quotes everything anyway).
func (b *BatchQuoteBuilder) Add(quotes ...types.Quote) {
	for _, q := range quotes {
		if len(b.quotes) < b.maxBatchSize {
			b.quotes = append(b.quotes, q)
		}
	}
}

// Build returns the accumulated batch and resets the builder.
func (b *BatchQuoteBuilder) Build() []types.Quote {
	batch := b.quotes
	b.quotes = nil
	return batch
}

// IsFull reports whether the batch has reached its cap.
func (b *BatchQuoteBuilder) IsFull() bool {
	return len(b.quotes) >= b.maxBatchSize
}

// Size returns the number of quotes currently buffered.
func (b *BatchQuoteBuilder) Size() int {
	return len(b.quotes)
}

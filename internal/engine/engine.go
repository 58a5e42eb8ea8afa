// Package engine orchestrates the trading loop.
//
// The engine owns every component: the REST client, the feed sessions, the
// local books, inventory, the breakeven calculator, the quote generator,
// rebate accounting, and the state store. Per cycle it cancels all resting
// orders, regenerates quotes for every active market under the breakeven
// and position-limit constraints, and submits them post-only. Fills arrive
// asynchronously over the user feed and are matched against the pending
// quote set.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/internal/exchange"
	"polymarket-boxbot/internal/market"
	"polymarket-boxbot/internal/store"
	"polymarket-boxbot/internal/strategy"
	"polymarket-boxbot/pkg/types"
)

// Engine wires all components together and runs the trading loop.
type Engine struct {
	cfg config.Config

	client     *exchange.Client
	marketFeed *exchange.Session
	userFeed   *exchange.Session

	books     *market.Books
	filter    *market.Filter
	inventory *strategy.Inventory
	breakeven *strategy.BreakevenCalculator
	quoteGen  *strategy.QuoteGenerator
	rebates   *strategy.RebateTracker
	state     *store.Manager

	mu             sync.RWMutex
	activeMarkets  map[string]types.MarketInfo // condition_id -> market
	tokenToMarket  map[string]string           // token_id -> condition_id
	pendingQuotes  map[string]types.Quote      // order_id -> quote
	lastRefresh    time.Time
	subscribedToks map[string]bool

	wg        sync.WaitGroup
	saverStop chan struct{}
	logger    *slog.Logger
}

// New builds an engine from config. auth may be nil in paper-trading mode.
func New(cfg config.Config, client *exchange.Client, auth *exchange.Auth, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:            cfg,
		client:         client,
		activeMarkets:  make(map[string]types.MarketInfo),
		tokenToMarket:  make(map[string]string),
		pendingQuotes:  make(map[string]types.Quote),
		subscribedToks: make(map[string]bool),
		saverStop:      make(chan struct{}),
		logger:         logger.With("component", "engine"),
	}

	e.books = market.NewBooks(logger)
	e.filter = market.NewFilter(
		cfg.Trading.TargetAssets,
		cfg.Trading.TargetTimeframes,
		cfg.Trading.MinPrice,
		cfg.Trading.MaxPrice,
		logger,
	)
	e.inventory = strategy.NewInventory(cfg.Trading.SkewThreshold, logger)
	e.breakeven = strategy.NewBreakevenCalculator(cfg.Trading.BreakevenTarget, cfg.Trading.SafetyMargin, logger)
	e.quoteGen = strategy.NewQuoteGenerator(cfg.Trading, logger)
	e.rebates = strategy.NewRebateTracker(cfg.Trading.RebateRateBps, logger)
	e.state = store.NewManager(
		cfg.Persistence.StateFile,
		cfg.Persistence.SaveInterval,
		cfg.Persistence.Enabled,
		logger,
	)

	e.marketFeed = exchange.NewSession(cfg.API.WSMarketURL, cfg.WebSocket, nil, e.handleMarketMessage, logger)
	if auth != nil {
		e.userFeed = exchange.NewSession(cfg.API.WSUserURL, cfg.WebSocket, auth, e.handleUserMessage, logger)
	}

	return e
}

// Inventory exposes the position tracker (dashboard reads).
func (e *Engine) Inventory() *strategy.Inventory { return e.inventory }

// Rebates exposes the rebate tracker (dashboard reads).
func (e *Engine) Rebates() *strategy.RebateTracker { return e.rebates }

// State exposes the persisted state manager (dashboard reads).
func (e *Engine) State() *store.Manager { return e.state }

// ActiveMarkets returns a snapshot of the currently quoted markets.
func (e *Engine) ActiveMarkets() []types.MarketInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]types.MarketInfo, 0, len(e.activeMarkets))
	for _, m := range e.activeMarkets {
		out = append(out, m)
	}
	return out
}

// Run starts the engine and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("bot starting",
		"paper_trading", e.cfg.PaperTrading,
		"effective_target", e.cfg.Trading.EffectiveTarget(),
	)

	// Restore positions from the last run.
	if e.state.Load() {
		e.inventory.LoadPositions(e.state.Positions())
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.state.RunSaver(e.saverStop)
	}()

	if err := e.refreshMarkets(ctx); err != nil {
		e.logger.Error("initial market refresh failed", "error", err)
	}
	if len(e.ActiveMarkets()) == 0 {
		e.logger.Warn("no eligible markets found, waiting for refresh")
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.marketFeed.Run(ctx)
	}()

	if e.userFeed != nil {
		if err := e.userFeed.SubscribeUser(); err != nil {
			e.logger.Warn("user channel unavailable", "error", err)
		} else {
			e.wg.Add(1)
			go func() {
				defer e.wg.Done()
				e.userFeed.Run(ctx)
			}()
		}
	}

	e.tradingLoop(ctx)
	e.shutdown()
	return nil
}

// tradingLoop runs the periodic cancel-replace cycle until ctx cancels.
// Each cycle body is panic-recovered: a single bad cycle pauses briefly
// and the loop resumes.
func (e *Engine) tradingLoop(ctx context.Context) {
	e.logger.Info("trading loop started", "interval", e.cfg.Trading.QuoteRefreshInterval)

	ticker := time.NewTicker(e.cfg.Trading.QuoteRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("trading loop stopped")
			return
		case <-ticker.C:
			e.runCycle(ctx)
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("trading cycle panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
			time.Sleep(time.Second)
		}
	}()

	// Periodic market refresh.
	e.mu.RLock()
	stale := time.Since(e.lastRefresh) > e.cfg.Trading.MarketRefreshInterval
	e.mu.RUnlock()
	if stale {
		if err := e.refreshMarkets(ctx); err != nil {
			e.logger.Error("market refresh failed", "error", err)
		}
	}

	// Cancel everything before requoting.
	if _, err := e.client.CancelAll(ctx); err != nil {
		e.logger.Warn("cancel all failed", "error", err)
	}
	e.mu.Lock()
	e.pendingQuotes = make(map[string]types.Quote)
	e.mu.Unlock()

	quotes := e.generateAllQuotes()
	if len(quotes) == 0 {
		return
	}
	e.submitQuotes(ctx, quotes)
}

// generateAllQuotes produces the full quote set for this cycle, batched
// to the configured limit.
func (e *Engine) generateAllQuotes() []types.Quote {
	e.mu.RLock()
	markets := make([]types.MarketInfo, 0, len(e.activeMarkets))
	for _, m := range e.activeMarkets {
		markets = append(markets, m)
	}
	e.mu.RUnlock()

	batch := strategy.NewBatchQuoteBuilder(e.cfg.Trading.BatchSize)
	for _, m := range markets {
		if batch.IsFull() {
			break
		}

		pos := e.inventory.GetOrCreate(m.ConditionID, m.YesTokenID, m.NoTokenID)
		baseSize := e.cfg.Trading.BaseQuoteSize

		maxYes := e.breakeven.MaxBid(types.YES, baseSize, pos)
		maxNo := e.breakeven.MaxBid(types.NO, baseSize, pos)

		quotes := e.quoteGen.GenerateQuotes(
			m.ConditionID,
			m.YesTokenID, m.NoTokenID,
			e.books.Get(m.YesTokenID), e.books.Get(m.NoTokenID),
			e.inventory.YesQuantity(m.ConditionID), e.inventory.NoQuantity(m.ConditionID),
			maxYes, maxNo,
		)

		for _, q := range quotes {
			resized, ok := e.quoteGen.AdjustSizeForPositionLimit(
				q,
				e.inventory.AllSpent(),
				e.cfg.Trading.MaxPositionUSDC,
			)
			if ok {
				batch.Add(resized)
			}
		}
	}
	return batch.Build()
}

func (e *Engine) submitQuotes(ctx context.Context, quotes []types.Quote) {
	results, err := e.client.PostOrders(ctx, quotes)
	if err != nil {
		e.logger.Error("submit quotes failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	placed := 0
	for i, resp := range results {
		if i >= len(quotes) {
			break
		}
		if resp.Success && resp.OrderID != "" {
			q := quotes[i]
			q.OrderID = resp.OrderID
			e.pendingQuotes[resp.OrderID] = q
			placed++
		} else if resp.ErrorMsg != "" {
			e.logger.Warn("order rejected",
				"error", resp.ErrorMsg,
				"outcome", quotes[i].Outcome,
				"price", quotes[i].Price,
			)
		}
	}
	e.logger.Debug("quotes submitted", "placed", placed, "total", len(quotes))
}

// refreshMarkets re-runs discovery and rebuilds the active set. Markets
// that vanish keep their inventory but stop being quoted; newcomers get
// fresh zeroed positions and feed subscriptions.
func (e *Engine) refreshMarkets(ctx context.Context) error {
	all, err := e.client.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}
	eligible := e.filter.FilterMarkets(all)

	active := make(map[string]types.MarketInfo, len(eligible))
	tokenIndex := make(map[string]string, 2*len(eligible))
	var newTokens []string

	e.mu.Lock()
	for _, m := range eligible {
		active[m.ConditionID] = m
		tokenIndex[m.YesTokenID] = m.ConditionID
		tokenIndex[m.NoTokenID] = m.ConditionID
		for _, tok := range []string{m.YesTokenID, m.NoTokenID} {
			if !e.subscribedToks[tok] {
				e.subscribedToks[tok] = true
				newTokens = append(newTokens, tok)
			}
		}
	}
	e.activeMarkets = active
	e.tokenToMarket = tokenIndex
	e.lastRefresh = time.Now()
	e.mu.Unlock()

	for _, m := range eligible {
		e.inventory.GetOrCreate(m.ConditionID, m.YesTokenID, m.NoTokenID)
	}

	if len(newTokens) > 0 {
		if err := e.marketFeed.SubscribeMarket(newTokens); err != nil {
			e.logger.Warn("market subscription failed", "error", err)
		}
	}

	e.logger.Info("markets refreshed", "eligible", len(eligible))
	return nil
}

// handleMarketMessage routes market-channel frames to the book registry.
func (e *Engine) handleMarketMessage(raw []byte) {
	e.books.HandleMessage(raw)
}

// handleUserMessage handles user-channel frames: fill notifications for
// our own orders.
func (e *Engine) handleUserMessage(raw []byte) {
	var head struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return
	}
	msgType := head.Type
	if msgType == "" {
		msgType = head.EventType
	}
	if msgType != "trade" && msgType != "fill" {
		return
	}

	var evt types.WSFillEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		e.logger.Warn("bad fill frame", "error", err)
		return
	}
	e.handleFill(evt)
}

// handleFill matches a fill against the pending quote set and propagates
// it through inventory, state, and rebate accounting. Fills for unknown
// order IDs (cancelled quote, stale notification) are logged and dropped.
func (e *Engine) handleFill(evt types.WSFillEvent) {
	e.mu.RLock()
	quote, known := e.pendingQuotes[evt.OrderID]
	conditionID := e.tokenToMarket[quote.TokenID]
	e.mu.RUnlock()

	if !known {
		e.logger.Debug("fill for unknown order, ignoring", "order_id", evt.OrderID)
		return
	}

	size, _ := strconv.ParseFloat(evt.Size, 64)
	price, _ := strconv.ParseFloat(evt.Price, 64)
	if size <= 0 {
		return
	}
	if conditionID == "" {
		e.logger.Warn("no market for filled token", "token_id", quote.TokenID)
		return
	}

	if !evt.Maker {
		// Post-only orders should never take liquidity.
		e.logger.Warn("taker fill on post-only order", "order_id", evt.OrderID)
	}

	fill := types.Fill{
		OrderID:   evt.OrderID,
		TokenID:   quote.TokenID,
		Outcome:   quote.Outcome,
		Side:      quote.Side,
		Price:     price,
		Size:      size,
		Timestamp: time.Now().UTC(),
		Maker:     true,
	}

	e.inventory.RecordFill(conditionID, string(fill.Outcome), string(fill.Side), fill.Size, fill.Price)
	e.rebates.RecordFill(fill.Notional(), fill.Maker)

	e.state.RecordFill(fill)
	e.state.UpdatePositions(e.inventory.ExportPositions())
	e.state.UpdateRebates(e.rebates.TotalRebates())

	e.logger.Info("fill",
		"outcome", fill.Outcome,
		"size", fill.Size,
		"price", fill.Price,
		"notional", fill.Notional(),
		"box_cost", e.inventory.BoxCost(conditionID),
	)
}

// shutdown performs the ordered teardown: cancel orders, close feeds,
// final state save, rebate summary.
func (e *Engine) shutdown() {
	e.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := e.client.CancelAll(shutdownCtx); err != nil {
		e.logger.Error("cancel all on shutdown failed", "error", err)
	}

	e.marketFeed.Disconnect()
	if e.userFeed != nil {
		e.userFeed.Disconnect()
	}

	close(e.saverStop)
	e.wg.Wait()

	e.logger.Info("rebate summary\n" + e.rebates.Summary())
	e.logger.Info("shutdown complete")
}

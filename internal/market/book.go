// Package market provides local order book management and market discovery.
//
// Books mirrors the CLOB order book for every subscribed token. It is fed
// raw WebSocket frames through HandleMessage:
//   - "book" events replace a token's book with a full snapshot
//   - "price_change" events apply incremental level updates
//
// Each Book is concurrency-safe (RWMutex protected) and exposes derived
// values like BestBid and Midpoint for the strategy layer.
package market

import (
	"encoding/json"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"polymarket-boxbot/pkg/types"
)

// priceTolerance treats two float prices as the same level. Wire prices
// come through string conversion, so exact equality is unreliable.
const priceTolerance = 1e-4

// Level is one price level of the local book.
type Level struct {
	Price float64
	Size  float64
}

// Book is the local L2 mirror for a single token.
// Bids are sorted descending, asks ascending.
type Book struct {
	mu      sync.RWMutex
	tokenID string
	bids    []Level
	asks    []Level
	updated time.Time
}

// NewBook creates an empty book for a token.
func NewBook(tokenID string) *Book {
	return &Book{tokenID: tokenID}
}

// TokenID returns the token this book mirrors.
func (b *Book) TokenID() string {
	return b.tokenID
}

// BestBid returns the highest bid price, false on an empty side.
func (b *Book) BestBid() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return 0, false
	}
	return b.bids[0].Price, true
}

// BestAsk returns the lowest ask price, false on an empty side.
func (b *Book) BestAsk() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price, true
}

// BestBidSize returns the size resting at the best bid, 0 if none.
func (b *Book) BestBidSize() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 {
		return 0
	}
	return b.bids[0].Size
}

// BestAskSize returns the size resting at the best ask, 0 if none.
func (b *Book) BestAskSize() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.asks) == 0 {
		return 0
	}
	return b.asks[0].Size
}

// Midpoint returns (bestBid+bestAsk)/2, false unless both sides are populated.
func (b *Book) Midpoint() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, false
	}
	return (b.bids[0].Price + b.asks[0].Price) / 2, true
}

// Spread returns bestAsk−bestBid, false unless both sides are populated.
func (b *Book) Spread() (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return 0, false
	}
	return b.asks[0].Price - b.bids[0].Price, true
}

// Depth returns the number of bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// LastUpdated returns the timestamp of the last applied update.
func (b *Book) LastUpdated() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// applySnapshot replaces both sides of the book.
func (b *Book) applySnapshot(bids, asks []Level) {
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price > bids[j].Price })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price < asks[j].Price })

	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = bids
	b.asks = asks
	b.updated = time.Now()
}

// applyChange updates or inserts a single level on one side.
// A change with size <= 0 removes the level; a change for a price not on
// the book inserts it and re-sorts.
func (b *Book) applyChange(side string, price, size float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch side {
	case "BUY":
		b.bids = updateLevel(b.bids, price, size, false)
	case "SELL":
		b.asks = updateLevel(b.asks, price, size, true)
	default:
		return
	}
	b.updated = time.Now()
}

func updateLevel(levels []Level, price, size float64, ascending bool) []Level {
	for i := range levels {
		if math.Abs(levels[i].Price-price) < priceTolerance {
			if size <= 0 {
				return append(levels[:i], levels[i+1:]...)
			}
			levels[i].Size = size
			return levels
		}
	}
	if size <= 0 {
		return levels
	}
	levels = append(levels, Level{Price: price, Size: size})
	if ascending {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	} else {
		sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	}
	return levels
}

// Books is the registry of local books keyed by token ID. It owns the
// routing of raw feed frames to the right book.
type Books struct {
	mu     sync.RWMutex
	books  map[string]*Book
	logger *slog.Logger
}

// NewBooks creates an empty registry.
func NewBooks(logger *slog.Logger) *Books {
	return &Books{
		books:  make(map[string]*Book),
		logger: logger.With("component", "books"),
	}
}

// Get returns the book for a token, or nil if no data has arrived yet.
func (bs *Books) Get(tokenID string) *Book {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	return bs.books[tokenID]
}

// getOrCreate returns the book for a token, creating an empty one if needed.
func (bs *Books) getOrCreate(tokenID string) *Book {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if book, ok := bs.books[tokenID]; ok {
		return book
	}
	book := NewBook(tokenID)
	bs.books[tokenID] = book
	return book
}

// HandleMessage routes a raw feed frame by its type discriminator.
// Frames use either "type" or "event_type" depending on the channel.
// Unknown types are ignored; malformed frames are logged and dropped.
func (bs *Books) HandleMessage(raw []byte) {
	var head struct {
		Type      string `json:"type"`
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		bs.logger.Warn("unparseable feed frame", "error", err)
		return
	}
	msgType := head.Type
	if msgType == "" {
		msgType = head.EventType
	}

	switch msgType {
	case "book":
		bs.handleSnapshot(raw)
	case "price_change":
		bs.handlePriceChange(raw)
	case "trade", "last_trade_price", "tick_size_change":
		// not book data
	case "subscribed":
		bs.logger.Info("feed subscription confirmed")
	case "error":
		bs.logger.Error("feed error frame", "frame", string(raw))
	default:
		// unknown frame types are ignored
	}
}

func (bs *Books) handleSnapshot(raw []byte) {
	var event types.WSBookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		bs.logger.Warn("bad book snapshot", "error", err)
		return
	}
	tokenID := event.AssetID
	if tokenID == "" {
		tokenID = event.Market
	}
	if tokenID == "" {
		return
	}

	book := bs.getOrCreate(tokenID)
	book.applySnapshot(parseLevels(event.Bids), parseLevels(event.Asks))

	bids, asks := book.Depth()
	bs.logger.Debug("book snapshot", "token_id", tokenID, "bids", bids, "asks", asks)
}

func (bs *Books) handlePriceChange(raw []byte) {
	var event types.WSPriceChangeEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		bs.logger.Warn("bad price_change", "error", err)
		return
	}
	tokenID := event.AssetID
	if tokenID == "" {
		tokenID = event.Market
	}
	if tokenID == "" {
		return
	}

	book := bs.getOrCreate(tokenID)
	for _, change := range event.Changes {
		price, _ := strconv.ParseFloat(change.Price, 64)
		size, _ := strconv.ParseFloat(change.Size, 64)
		book.applyChange(strings.ToUpper(change.Side), price, size)
	}
}

func parseLevels(wire []types.PriceLevel) []Level {
	levels := make([]Level, 0, len(wire))
	for _, l := range wire {
		price, _ := strconv.ParseFloat(l.Price, 64)
		size, _ := strconv.ParseFloat(l.Size, 64)
		levels = append(levels, Level{Price: price, Size: size})
	}
	return levels
}

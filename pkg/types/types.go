// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the bot — outcome and side
// enums, market metadata, quotes, fills, and the REST/WebSocket wire
// payloads. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

import (
	"math/big"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order: BUY or SELL.
// The quoting pipeline only ever emits BUY; SELL appears in fill records
// for completeness.
type Side string

const (
	BUY  Side = "BUY"
	SELL Side = "SELL"
)

// Outcome identifies one of the two tokens of a binary market.
type Outcome string

const (
	YES Outcome = "YES"
	NO  Outcome = "NO"
)

// Partner returns the complementary outcome.
func (o Outcome) Partner() Outcome {
	if o == YES {
		return NO
	}
	return YES
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Til-Cancelled: stays on book until filled or cancelled
)

// SignatureType identifies the signing scheme for the CTF exchange contract.
type SignatureType int

const (
	SigEOA        SignatureType = 0 // externally-owned account (standard wallet)
	SigProxy      SignatureType = 1 // Polymarket proxy / Magic wallet
	SigGnosisSafe SignatureType = 2 // Gnosis Safe multisig
)

// ————————————————————————————————————————————————————————————————————————
// Market metadata
// ————————————————————————————————————————————————————————————————————————

// MarketInfo is the internal representation of a tradeable binary market.
// Populated from the CLOB markets endpoint during discovery and retained
// while the market stays eligible.
type MarketInfo struct {
	ConditionID string // CTF condition ID, the market's identity
	Question    string // the prediction question, e.g. "Will BTC be up in 15m?"

	YesTokenID string // CLOB token ID for the YES outcome
	NoTokenID  string // CLOB token ID for the NO outcome

	YesPrice float64 // last-known YES price from discovery
	NoPrice  float64 // last-known NO price from discovery

	Active      bool
	MinTickSize float64 // price granularity, 0.01 unless the market says otherwise
}

// TokenID returns the token ID for the given outcome.
func (m MarketInfo) TokenID(o Outcome) string {
	if o == YES {
		return m.YesTokenID
	}
	return m.NoTokenID
}

// InPriceRange reports whether both outcome prices sit inside [min, max].
func (m MarketInfo) InPriceRange(min, max float64) bool {
	return m.YesPrice >= min && m.YesPrice <= max &&
		m.NoPrice >= min && m.NoPrice <= max
}

// ————————————————————————————————————————————————————————————————————————
// Quotes and fills
// ————————————————————————————————————————————————————————————————————————

// Quote is a pending or submitted order instruction produced by the quote
// generator. It becomes active once the exchange assigns an order ID.
type Quote struct {
	TokenID string
	Outcome Outcome
	Side    Side
	Price   float64
	Size    float64
	OrderID string // empty until the exchange acknowledges the order
}

// IsActive reports whether the quote has been accepted by the exchange.
func (q Quote) IsActive() bool {
	return q.OrderID != ""
}

// Notional returns the USDC value of the quote.
func (q Quote) Notional() float64 {
	return q.Price * q.Size
}

// Fill records a confirmed execution against one of our resting orders.
// Serialized into the persisted state document.
type Fill struct {
	OrderID   string    `json:"order_id"`
	TokenID   string    `json:"token_id"`
	Outcome   Outcome   `json:"outcome"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	Maker     bool      `json:"maker"` // false is a protocol violation: logged, still recorded
}

// Notional returns the USDC value of the fill.
func (f Fill) Notional() float64 {
	return f.Price * f.Size
}

// ————————————————————————————————————————————————————————————————————————
// REST wire payloads
// ————————————————————————————————————————————————————————————————————————

// MarketToken is one outcome token inside a markets-endpoint entry.
type MarketToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"` // "Yes" or "No"
	Price   float64 `json:"price"`
}

// RawMarket is the JSON shape of one market returned by GET /markets.
type RawMarket struct {
	ConditionID     string        `json:"condition_id"`
	Question        string        `json:"question"`
	Active          bool          `json:"active"`
	Closed          bool          `json:"closed"`
	MinimumTickSize float64       `json:"minimum_tick_size"`
	Tokens          []MarketToken `json:"tokens"`
}

// MarketsResponse is the paged response of GET /markets.
type MarketsResponse struct {
	Data       []RawMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
}

// SignedOrder is the on-chain order format the CLOB API expects.
// MakerAmount and TakerAmount are in 6-decimal USDC units (1e6 = $1).
//
// For BUY:  maker gives MakerAmount USDC, receives TakerAmount tokens
// For SELL: maker gives MakerAmount tokens, receives TakerAmount USDC
type SignedOrder struct {
	Salt          string        `json:"salt"`
	Maker         string        `json:"maker"`       // funder/proxy wallet address
	Signer        string        `json:"signer"`      // EOA that signs the order
	Taker         string        `json:"taker"`       // zero address = open order
	TokenID       string        `json:"tokenId"`     // CTF token ID
	MakerAmount   *big.Int      `json:"makerAmount"` // what maker gives (scaled to 1e6)
	TakerAmount   *big.Int      `json:"takerAmount"` // what maker receives (scaled to 1e6)
	Side          Side          `json:"side"`
	Expiration    string        `json:"expiration"`    // unix timestamp as string, "0" = no expiry
	Nonce         string        `json:"nonce"`         // replay protection
	FeeRateBps    string        `json:"feeRateBps"`    // fee in basis points as string
	SignatureType SignatureType `json:"signatureType"` // 0 = EOA
	Signature     string        `json:"signature"`     // EIP-712 signature hex
}

// OrderPayload is the REST API request body for POST /order(s).
// PostOnly is always true for this bot: the exchange must reject, not
// cross, an order that would take liquidity.
type OrderPayload struct {
	Order     SignedOrder `json:"order"`
	Owner     string      `json:"owner"`     // API key of the order owner
	OrderType OrderType   `json:"orderType"` // GTC
	PostOnly  bool        `json:"postOnly"`
}

// OrderResponse is the REST API response for each posted order.
type OrderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"` // e.g. "live", "matched"
}

// CancelResponse is returned by DELETE /cancel-all.
type CancelResponse struct {
	Canceled []string `json:"canceled"` // IDs of successfully cancelled orders
}

// ————————————————————————————————————————————————————————————————————————
// WebSocket wire payloads
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level as carried on the wire.
// Price and Size are strings because the CLOB API returns them as strings
// to preserve decimal precision.
type PriceLevel struct {
	Price string `json:"price"` // e.g. "0.55"
	Size  string `json:"size"`  // e.g. "100.5"
}

// WSBookEvent is a full order book snapshot ("book") from the market channel.
// Replaces the entire local book for the given asset.
type WSBookEvent struct {
	AssetID   string       `json:"asset_id"`
	Market    string       `json:"market"` // condition ID
	Timestamp string       `json:"timestamp"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
}

// WSPriceChange is a single level update inside a price_change event.
type WSPriceChange struct {
	Price string `json:"price"`
	Size  string `json:"size"` // "0" = level removed
	Side  string `json:"side"` // "BUY" or "SELL"
}

// WSPriceChangeEvent is an incremental book update ("price_change").
type WSPriceChangeEvent struct {
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Timestamp string          `json:"timestamp"`
	Changes   []WSPriceChange `json:"changes"`
}

// WSFillEvent is a fill notification for one of our orders, delivered on
// the user channel as "trade" or "fill".
type WSFillEvent struct {
	OrderID   string `json:"order_id"`
	AssetID   string `json:"asset_id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Outcome   string `json:"outcome"`
	Maker     bool   `json:"maker"`
	Timestamp string `json:"timestamp"`
}

// WSAuth carries the L2 API credentials for the user channel subscription.
type WSAuth struct {
	ApiKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// WSSubscribeMsg is sent to subscribe or unsubscribe a feed channel.
// The market channel is unauthenticated and keyed by asset IDs; the user
// channel requires the full auth triplet.
type WSSubscribeMsg struct {
	Type     string   `json:"type"`    // "subscribe" or "unsubscribe"
	Channel  string   `json:"channel"` // "market" or "user"
	AssetIDs []string `json:"assets_ids,omitempty"`
	Auth     *WSAuth  `json:"auth,omitempty"`
}

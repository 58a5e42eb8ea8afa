// Package exchange implements the Polymarket CLOB REST client, order
// signing, and the WebSocket feed session.
//
// The REST client (Client) talks to the Polymarket CLOB API:
//   - ListMarkets:  GET  /markets             — cursor-paged market discovery
//   - PostOrder:    POST /order               — place one signed post-only order
//   - PostOrders:   POST /orders              — batch-place up to 15 signed orders
//   - CancelAll:    DELETE /cancel-all        — cancel every resting order
//   - DeriveAPIKey: GET  /auth/derive-api-key — bootstrap L2 creds from L1 wallet
//
// Every request is rate-limited via per-category TokenBuckets, automatically
// retried on 5xx errors, and authenticated with L2 HMAC headers (except
// market reads). In paper-trading mode mutating methods log and return fake
// success without touching the network.
package exchange

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/pkg/types"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// ctfExchangeAddress is the Polymarket CTF Exchange contract on Polygon,
// the verifying contract for EIP-712 order signatures.
const ctfExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"

// Client is the Polymarket CLOB REST API client.
// It wraps a resty HTTP client with rate limiting, retry, and auth.
type Client struct {
	http         *resty.Client // HTTP client with retry + base URL
	auth         *Auth         // L1/L2 auth provider for request signing, nil in paper mode
	rl           *RateLimiter  // per-endpoint-category rate limiting
	paperTrading bool          // mutating methods return fake success without HTTP calls
	logger       *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
// auth may be nil only in paper-trading mode.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.API.CLOBBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:         httpClient,
		auth:         auth,
		rl:           NewRateLimiter(),
		paperTrading: cfg.PaperTrading,
		logger:       logger.With("component", "client"),
	}
}

// ListMarkets fetches every market page by page and returns the subset
// that is tradeable: active, not closed, with both a Yes and a No token.
func (c *Client) ListMarkets(ctx context.Context) ([]types.MarketInfo, error) {
	var markets []types.MarketInfo
	cursor := ""

	for {
		page, err := c.listMarketsPage(ctx, cursor)
		if err != nil {
			return nil, err
		}

		for _, raw := range page.Data {
			if info, ok := parseMarket(raw); ok {
				markets = append(markets, info)
			}
		}

		// "LTE=" is the API's end-of-pages sentinel (base64 for -1).
		if page.NextCursor == "" || page.NextCursor == "LTE=" {
			break
		}
		cursor = page.NextCursor
	}

	c.logger.Debug("listed markets", "count", len(markets))
	return markets, nil
}

func (c *Client) listMarketsPage(ctx context.Context, cursor string) (*types.MarketsResponse, error) {
	if err := c.rl.Markets.Wait(ctx); err != nil {
		return nil, err
	}

	req := c.http.R().SetContext(ctx)
	if cursor != "" {
		req.SetQueryParam("next_cursor", cursor)
	}

	var result types.MarketsResponse
	resp, err := req.SetResult(&result).Get("/markets")
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("list markets: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// parseMarket converts a wire market into MarketInfo, rejecting markets
// that cannot be box-quoted (inactive, closed, or missing an outcome token).
func parseMarket(raw types.RawMarket) (types.MarketInfo, bool) {
	if !raw.Active || raw.Closed || len(raw.Tokens) < 2 {
		return types.MarketInfo{}, false
	}

	info := types.MarketInfo{
		ConditionID: raw.ConditionID,
		Question:    raw.Question,
		Active:      raw.Active,
		MinTickSize: raw.MinimumTickSize,
	}
	if info.MinTickSize <= 0 {
		info.MinTickSize = 0.01
	}

	for _, tok := range raw.Tokens {
		switch strings.ToUpper(tok.Outcome) {
		case "YES":
			info.YesTokenID = tok.TokenID
			info.YesPrice = tok.Price
		case "NO":
			info.NoTokenID = tok.TokenID
			info.NoPrice = tok.Price
		}
	}
	if info.YesTokenID == "" || info.NoTokenID == "" {
		return types.MarketInfo{}, false
	}
	return info, true
}

// buildOrderPayload converts a quote into the on-chain SignedOrder plus
// metadata the REST API expects. Price and size become big.Int maker/taker
// amounts, the maker is the funder wallet (proxy), the signer the EOA, the
// taker the zero address (open order). Every order is post-only GTC.
func (c *Client) buildOrderPayload(quote types.Quote) (types.OrderPayload, error) {
	makerAmt, takerAmt := PriceToAmounts(quote.Price, quote.Size, quote.Side)

	order := types.SignedOrder{
		Salt:          newSalt(),
		Maker:         c.auth.FunderAddress().Hex(),
		Signer:        c.auth.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       quote.TokenID,
		MakerAmount:   makerAmt,
		TakerAmount:   takerAmt,
		Side:          quote.Side,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: c.auth.sigType,
	}

	sig, err := c.auth.SignOrder(&order)
	if err != nil {
		return types.OrderPayload{}, fmt.Errorf("sign order: %w", err)
	}
	order.Signature = sig

	return types.OrderPayload{
		Order:     order,
		Owner:     c.auth.creds.ApiKey,
		OrderType: types.OrderTypeGTC,
		PostOnly:  true,
	}, nil
}

// PostOrder places a single signed post-only order.
func (c *Client) PostOrder(ctx context.Context, quote types.Quote) (*types.OrderResponse, error) {
	results, err := c.PostOrders(ctx, []types.Quote{quote})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("post order: empty response")
	}
	return &results[0], nil
}

// PostOrders places up to 15 orders in a batch. All orders are post-only:
// any order that would cross the book is rejected by the exchange rather
// than filled as taker.
func (c *Client) PostOrders(ctx context.Context, quotes []types.Quote) ([]types.OrderResponse, error) {
	if len(quotes) == 0 {
		return nil, nil
	}
	if len(quotes) > 15 {
		return nil, fmt.Errorf("batch limit is 15 orders, got %d", len(quotes))
	}
	if c.paperTrading {
		results := make([]types.OrderResponse, len(quotes))
		for i, q := range quotes {
			c.logger.Info("PAPER: would post order",
				"outcome", q.Outcome, "price", q.Price, "size", q.Size)
			results[i] = types.OrderResponse{
				Success: true,
				OrderID: fmt.Sprintf("paper-%s-%d", q.TokenID, time.Now().UnixNano()+int64(i)),
				Status:  "live",
			}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	payloads := make([]types.OrderPayload, len(quotes))
	for i, q := range quotes {
		payload, err := c.buildOrderPayload(q)
		if err != nil {
			return nil, err
		}
		payloads[i] = payload
	}

	body, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("marshal orders: %w", err)
	}
	headers, err := c.auth.L2Headers("POST", "/orders", string(body))
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var results []types.OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payloads).
		SetResult(&results).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("post orders: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("post orders: status %d: %s", resp.StatusCode(), resp.String())
	}

	return results, nil
}

// CancelAll cancels every open order across all markets.
func (c *Client) CancelAll(ctx context.Context) (*types.CancelResponse, error) {
	if c.paperTrading {
		c.logger.Debug("PAPER: would cancel all orders")
		return &types.CancelResponse{}, nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return nil, err
	}

	headers, err := c.auth.L2Headers("DELETE", "/cancel-all", "")
	if err != nil {
		return nil, fmt.Errorf("l2 headers: %w", err)
	}

	var result types.CancelResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Delete("/cancel-all")
	if err != nil {
		return nil, fmt.Errorf("cancel all: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("cancel all: status %d: %s", resp.StatusCode(), resp.String())
	}
	return &result, nil
}

// DeriveAPIKey derives L2 API credentials via L1 authentication.
func (c *Client) DeriveAPIKey(ctx context.Context) (*Credentials, error) {
	headers, err := c.auth.L1Headers(0)
	if err != nil {
		return nil, fmt.Errorf("l1 headers: %w", err)
	}

	var result Credentials
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetResult(&result).
		Get("/auth/derive-api-key")
	if err != nil {
		return nil, fmt.Errorf("derive api key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("derive api key: status %d: %s", resp.StatusCode(), resp.String())
	}

	c.auth.SetCredentials(result)
	c.logger.Info("API key derived", "api_key", result.ApiKey)
	return &result, nil
}

// newSalt returns a random uint64 salt as a decimal string.
func newSalt() string {
	max := new(big.Int).Lsh(big.NewInt(1), 64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		// crypto/rand failing means the platform is broken; fall back to time
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return n.String()
}

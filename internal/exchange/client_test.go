package exchange

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/pkg/types"
)

func newPaperClient(t *testing.T) *Client {
	t.Helper()
	cfg := config.Config{PaperTrading: true}
	cfg.API.CLOBBaseURL = "https://clob.example.invalid"
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(cfg, nil, logger)
}

func rawMarket() types.RawMarket {
	return types.RawMarket{
		ConditionID:     "cond-1",
		Question:        "Will BTC be up in 15 minutes?",
		Active:          true,
		Closed:          false,
		MinimumTickSize: 0.01,
		Tokens: []types.MarketToken{
			{TokenID: "yes-token", Outcome: "Yes", Price: 0.52},
			{TokenID: "no-token", Outcome: "No", Price: 0.48},
		},
	}
}

func TestParseMarket(t *testing.T) {
	t.Parallel()

	info, ok := parseMarket(rawMarket())
	if !ok {
		t.Fatal("valid market rejected")
	}
	if info.YesTokenID != "yes-token" || info.NoTokenID != "no-token" {
		t.Errorf("token IDs = %s/%s", info.YesTokenID, info.NoTokenID)
	}
	if info.YesPrice != 0.52 || info.NoPrice != 0.48 {
		t.Errorf("prices = %v/%v, want 0.52/0.48", info.YesPrice, info.NoPrice)
	}
	if info.MinTickSize != 0.01 {
		t.Errorf("tick size = %v, want 0.01", info.MinTickSize)
	}
}

func TestParseMarketRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*types.RawMarket)
	}{
		{"inactive", func(m *types.RawMarket) { m.Active = false }},
		{"closed", func(m *types.RawMarket) { m.Closed = true }},
		{"single token", func(m *types.RawMarket) { m.Tokens = m.Tokens[:1] }},
		{"no yes token", func(m *types.RawMarket) {
			m.Tokens[0].Outcome = "Up"
		}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := rawMarket()
			tt.mutate(&m)
			if _, ok := parseMarket(m); ok {
				t.Error("unquotable market accepted")
			}
		})
	}
}

func TestParseMarketDefaultsTickSize(t *testing.T) {
	t.Parallel()

	m := rawMarket()
	m.MinimumTickSize = 0
	info, ok := parseMarket(m)
	if !ok {
		t.Fatal("market rejected")
	}
	if info.MinTickSize != 0.01 {
		t.Errorf("default tick size = %v, want 0.01", info.MinTickSize)
	}
}

func TestParseMarketOutcomeCaseInsensitive(t *testing.T) {
	t.Parallel()

	m := rawMarket()
	m.Tokens[0].Outcome = "YES"
	m.Tokens[1].Outcome = "no"
	if _, ok := parseMarket(m); !ok {
		t.Error("mixed-case outcomes rejected")
	}
}

func TestPostOrdersPaperMode(t *testing.T) {
	t.Parallel()
	c := newPaperClient(t)

	quotes := []types.Quote{
		{TokenID: "yes-token", Outcome: types.YES, Side: types.BUY, Price: 0.49, Size: 5},
		{TokenID: "no-token", Outcome: types.NO, Side: types.BUY, Price: 0.47, Size: 5},
	}

	results, err := c.PostOrders(context.Background(), quotes)
	if err != nil {
		t.Fatalf("PostOrders: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	seen := make(map[string]bool)
	for i, r := range results {
		if !r.Success {
			t.Errorf("result %d not successful", i)
		}
		if !strings.HasPrefix(r.OrderID, "paper-") {
			t.Errorf("order ID %q missing paper prefix", r.OrderID)
		}
		if seen[r.OrderID] {
			t.Errorf("duplicate paper order ID %q", r.OrderID)
		}
		seen[r.OrderID] = true
	}
}

func TestPostOrdersEmptyAndOversized(t *testing.T) {
	t.Parallel()
	c := newPaperClient(t)

	results, err := c.PostOrders(context.Background(), nil)
	if err != nil || results != nil {
		t.Errorf("empty batch: results=%v err=%v, want nil/nil", results, err)
	}

	oversized := make([]types.Quote, 16)
	if _, err := c.PostOrders(context.Background(), oversized); err == nil {
		t.Error("batch over 15 orders accepted")
	}
}

func TestCancelAllPaperMode(t *testing.T) {
	t.Parallel()
	c := newPaperClient(t)

	resp, err := c.CancelAll(context.Background())
	if err != nil {
		t.Fatalf("CancelAll: %v", err)
	}
	if resp == nil {
		t.Fatal("nil cancel response in paper mode")
	}
}

func TestNewSaltUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s := newSalt()
		if s == "" {
			t.Fatal("empty salt")
		}
		if seen[s] {
			t.Fatalf("duplicate salt %q", s)
		}
		seen[s] = true
	}
}

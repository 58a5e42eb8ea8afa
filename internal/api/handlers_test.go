package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/internal/engine"
	"polymarket-boxbot/internal/exchange"
	"polymarket-boxbot/pkg/types"
)

func newTestHandlers(t *testing.T) (*Handlers, *engine.Engine) {
	t.Helper()

	cfg := config.Config{PaperTrading: true}
	cfg.API.CLOBBaseURL = "https://clob.example.invalid"
	cfg.Trading.TargetAssets = []string{"BTC"}
	cfg.Trading.TargetTimeframes = []string{"15m"}
	cfg.Trading.MinPrice = 0.20
	cfg.Trading.MaxPrice = 0.80
	cfg.Trading.SkewThreshold = 1.2
	cfg.Trading.BreakevenTarget = 0.99
	cfg.Trading.SafetyMargin = 0.005
	cfg.Trading.RebateRateBps = 10.0
	cfg.Persistence.Enabled = false
	cfg.Persistence.SaveInterval = time.Minute

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client := exchange.NewClient(cfg, nil, logger)
	eng := engine.New(cfg, client, nil, logger)
	return NewHandlers(eng, logger), eng
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest("GET", "/health", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()
	h, eng := newTestHandlers(t)

	eng.Inventory().GetOrCreate("cond-1", "yes-token", "no-token")
	eng.State().RecordFill(types.Fill{
		OrderID: "order-1", TokenID: "yes-token",
		Outcome: types.YES, Side: types.BUY,
		Price: 0.49, Size: 5, Maker: true,
	})

	rec := httptest.NewRecorder()
	h.HandleStats(rec, httptest.NewRequest("GET", "/api/stats", nil))

	var stats struct {
		TotalMakerVolume float64 `json:"total_maker_volume"`
		FillsCount       int     `json:"fills_count"`
		PositionsCount   int     `json:"positions_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if stats.FillsCount != 1 {
		t.Errorf("fills_count = %d, want 1", stats.FillsCount)
	}
	if stats.PositionsCount != 1 {
		t.Errorf("positions_count = %d, want 1", stats.PositionsCount)
	}
	if math.Abs(stats.TotalMakerVolume-2.45) > 1e-9 {
		t.Errorf("total_maker_volume = %v, want 2.45", stats.TotalMakerVolume)
	}
}

func TestHandleFills(t *testing.T) {
	t.Parallel()
	h, eng := newTestHandlers(t)

	for i := 0; i < 3; i++ {
		eng.State().RecordFill(types.Fill{OrderID: "order", Price: 0.5, Size: 1, Maker: true})
	}

	rec := httptest.NewRecorder()
	h.HandleFills(rec, httptest.NewRequest("GET", "/api/fills", nil))

	var body struct {
		Fills []types.Fill `json:"fills"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(body.Fills) != 3 {
		t.Errorf("fills = %d, want 3", len(body.Fills))
	}
}

func TestHandlePositions(t *testing.T) {
	t.Parallel()
	h, eng := newTestHandlers(t)

	eng.Inventory().GetOrCreate("cond-1", "yes-token", "no-token")
	eng.Inventory().RecordFill("cond-1", "YES", "BUY", 10, 0.45)

	rec := httptest.NewRecorder()
	h.HandlePositions(rec, httptest.NewRequest("GET", "/api/positions", nil))

	var body struct {
		Positions map[string]json.RawMessage `json:"positions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if _, ok := body.Positions["cond-1"]; !ok {
		t.Errorf("positions missing cond-1: %v", body.Positions)
	}
}

func TestHandleMarketsEmpty(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	rec := httptest.NewRecorder()
	h.HandleMarkets(rec, httptest.NewRequest("GET", "/api/markets", nil))

	var body struct {
		Markets []json.RawMessage `json:"markets"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if len(body.Markets) != 0 {
		t.Errorf("markets = %d, want 0", len(body.Markets))
	}
}

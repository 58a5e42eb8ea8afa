package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"polymarket-boxbot/internal/engine"
)

// recentFills caps the /api/fills response to the newest entries.
const recentFills = 100

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewHandlers creates a handlers instance over the engine.
func NewHandlers(eng *engine.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		eng:    eng,
		logger: logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]string{"status": "ok"})
}

// HandleStats returns summary statistics.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	state := h.eng.State()
	h.writeJSON(w, map[string]interface{}{
		"total_maker_volume":     state.TotalMakerVolume(),
		"total_rebates_estimate": state.TotalRebatesEstimate(),
		"active_markets_count":   len(h.eng.ActiveMarkets()),
		"fills_count":            len(state.Fills()),
		"positions_count":        len(h.eng.Inventory().ExportPositions()),
	})
}

// HandleFills returns the most recent fills.
func (h *Handlers) HandleFills(w http.ResponseWriter, r *http.Request) {
	fills := h.eng.State().Fills()
	if len(fills) > recentFills {
		fills = fills[len(fills)-recentFills:]
	}
	h.writeJSON(w, map[string]interface{}{"fills": fills})
}

// HandlePositions returns current positions keyed by condition ID.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, map[string]interface{}{
		"positions": h.eng.Inventory().ExportPositions(),
	})
}

// HandleMarkets returns the active market set.
func (h *Handlers) HandleMarkets(w http.ResponseWriter, r *http.Request) {
	type marketView struct {
		ConditionID string  `json:"condition_id"`
		Question    string  `json:"question"`
		YesPrice    float64 `json:"yes_price"`
		NoPrice     float64 `json:"no_price"`
	}

	markets := h.eng.ActiveMarkets()
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, marketView{
			ConditionID: m.ConditionID,
			Question:    m.Question,
			YesPrice:    m.YesPrice,
			NoPrice:     m.NoPrice,
		})
	}
	h.writeJSON(w, map[string]interface{}{"markets": views})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response failed", "error", err)
	}
}

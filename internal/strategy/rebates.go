package strategy

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// DailyRebateStats accumulates maker activity for one calendar day.
type DailyRebateStats struct {
	Date            string  `json:"date"` // YYYY-MM-DD
	MakerVolume     float64 `json:"maker_volume"`
	EstimatedRebate float64 `json:"estimated_rebate"`
	FillCount       int     `json:"fill_count"`
}

// RebateTracker estimates USDC maker rebates from filled volume.
// Polymarket's rebate schedule varies; the rate is configurable in basis
// points (default 10 bps = 0.1% of maker volume).
type RebateTracker struct {
	mu          sync.Mutex
	rebateRate  float64 // decimal, e.g. 0.001 for 10 bps
	dailyStats  map[string]*DailyRebateStats
	totalVolume float64
	totalRebate float64
	logger      *slog.Logger

	now func() time.Time // injectable for tests
}

// NewRebateTracker creates a tracker with the given rate in basis points.
func NewRebateTracker(rateBps float64, logger *slog.Logger) *RebateTracker {
	return &RebateTracker{
		rebateRate: rateBps / 10000,
		dailyStats: make(map[string]*DailyRebateStats),
		logger:     logger.With("component", "rebates"),
		now:        time.Now,
	}
}

// RecordFill credits a fill's notional to today's maker volume.
// Taker fills earn nothing and are not counted.
func (r *RebateTracker) RecordFill(notional float64, isMaker bool) {
	if !isMaker {
		r.logger.Debug("taker fill, no rebate")
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().UTC().Format("2006-01-02")
	stats, ok := r.dailyStats[today]
	if !ok {
		stats = &DailyRebateStats{Date: today}
		r.dailyStats[today] = stats
	}

	rebate := notional * r.rebateRate
	stats.MakerVolume += notional
	stats.EstimatedRebate += rebate
	stats.FillCount++
	r.totalVolume += notional
	r.totalRebate += rebate

	r.logger.Debug("fill recorded",
		"notional", notional,
		"rebate", rebate,
		"today_rebate", stats.EstimatedRebate,
	)
}

// TodayStats returns a copy of today's statistics (zeroed if no fills yet).
func (r *RebateTracker) TodayStats() DailyRebateStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	today := r.now().UTC().Format("2006-01-02")
	if stats, ok := r.dailyStats[today]; ok {
		return *stats
	}
	return DailyRebateStats{Date: today}
}

// TotalVolume returns maker volume across all days.
func (r *RebateTracker) TotalVolume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalVolume
}

// TotalRebates returns estimated rebates across all days.
func (r *RebateTracker) TotalRebates() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totalRebate
}

// DailyBreakdown returns per-day stats sorted by date.
func (r *RebateTracker) DailyBreakdown() []DailyRebateStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DailyRebateStats, 0, len(r.dailyStats))
	for _, stats := range r.dailyStats {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Summary renders a multi-line report for the shutdown log.
func (r *RebateTracker) Summary() string {
	r.mu.Lock()
	rate := r.rebateRate
	volume := r.totalVolume
	rebates := r.totalRebate
	r.mu.Unlock()

	var b strings.Builder
	sep := strings.Repeat("=", 50)
	fmt.Fprintln(&b, sep)
	fmt.Fprintln(&b, "MAKER REBATE SUMMARY")
	fmt.Fprintln(&b, sep)
	fmt.Fprintf(&b, "Total Maker Volume: $%.2f\n", volume)
	fmt.Fprintf(&b, "Estimated Total Rebates: $%.4f\n", rebates)
	fmt.Fprintf(&b, "Rebate Rate: %.2f%%\n", rate*100)
	fmt.Fprintln(&b, strings.Repeat("-", 50))
	fmt.Fprintln(&b, "Daily Breakdown:")
	for _, stats := range r.DailyBreakdown() {
		fmt.Fprintf(&b, "  %s: $%.2f volume, $%.4f rebate, %d fills\n",
			stats.Date, stats.MakerVolume, stats.EstimatedRebate, stats.FillCount)
	}
	fmt.Fprint(&b, sep)
	return b.String()
}

package market

import (
	"log/slog"
	"regexp"
	"strings"

	"polymarket-boxbot/pkg/types"
)

// Filter selects the markets the bot will quote: questions mentioning a
// target asset and timeframe, with both outcome prices inside the
// configured band.
type Filter struct {
	minPrice float64
	maxPrice float64
	assetRE  *regexp.Regexp
	timeRE   *regexp.Regexp
	logger   *slog.Logger
}

// NewFilter compiles the matching patterns from the configured target
// assets (e.g. BTC, ETH, SOL) and timeframes (e.g. 15m, 1h).
func NewFilter(targetAssets, targetTimeframes []string, minPrice, maxPrice float64, logger *slog.Logger) *Filter {
	return &Filter{
		minPrice: minPrice,
		maxPrice: maxPrice,
		assetRE:  buildAssetPattern(targetAssets),
		timeRE:   buildTimeframePattern(targetTimeframes),
		logger:   logger.With("component", "filter"),
	}
}

func buildAssetPattern(assets []string) *regexp.Regexp {
	quoted := make([]string, 0, len(assets))
	for _, a := range assets {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToUpper(a)))
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// buildTimeframePattern matches spellings like "15m", "15 min", "1h",
// "1 hour" for each configured timeframe.
func buildTimeframePattern(timeframes []string) *regexp.Regexp {
	patterns := make([]string, 0, len(timeframes))
	for _, tf := range timeframes {
		tf = strings.ToLower(tf)
		switch {
		case strings.HasSuffix(tf, "m"):
			patterns = append(patterns, strings.TrimSuffix(tf, "m")+`\s*(?:m|min|minute)`)
		case strings.HasSuffix(tf, "h"):
			patterns = append(patterns, strings.TrimSuffix(tf, "h")+`\s*(?:h|hr|hour)`)
		}
	}
	return regexp.MustCompile(`(?i)(` + strings.Join(patterns, "|") + `)`)
}

// IsEligible reports whether a market qualifies for quoting: active,
// question matches an asset and a timeframe, prices in band.
func (f *Filter) IsEligible(m types.MarketInfo) bool {
	if !m.Active {
		return false
	}
	if !f.assetRE.MatchString(m.Question) {
		return false
	}
	if !f.timeRE.MatchString(m.Question) {
		return false
	}
	if !m.InPriceRange(f.minPrice, f.maxPrice) {
		f.logger.Debug("market prices out of range",
			"condition_id", m.ConditionID,
			"yes_price", m.YesPrice,
			"no_price", m.NoPrice,
		)
		return false
	}
	return true
}

// FilterMarkets returns the eligible subset of markets.
func (f *Filter) FilterMarkets(markets []types.MarketInfo) []types.MarketInfo {
	eligible := make([]types.MarketInfo, 0, len(markets))
	for _, m := range markets {
		if f.IsEligible(m) {
			eligible = append(eligible, m)
		}
	}
	f.logger.Info("filtered markets", "total", len(markets), "eligible", len(eligible))
	return eligible
}

// ExtractAsset returns the target asset mentioned in a question, "" if none.
func (f *Filter) ExtractAsset(question string) string {
	match := f.assetRE.FindString(question)
	return strings.ToUpper(match)
}

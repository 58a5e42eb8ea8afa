// Polymarket Box Bot — an automated maker-only bot for Polymarket binary
// prediction markets that accumulates YES+NO "box" positions below the
// breakeven threshold and earns maker rebates on every fill.
//
// Architecture:
//
//	main.go               — entry point: loads config, starts engine, waits for SIGINT/SIGTERM
//	engine/engine.go      — orchestrator: periodic cancel-replace loop, fill dispatch, shutdown
//	strategy/breakeven.go — max-bid math: keeps YES avg + NO avg below the effective target
//	strategy/inventory.go — per-market YES/NO positions, skew ratio, box cost
//	strategy/quotes.go    — join-or-step-back pricing with inventory skew and breakeven caps
//	strategy/rebates.go   — daily/total maker volume and rebate estimates
//	market/filter.go      — discovery filter: asset, timeframe, and price-band eligibility
//	market/book.go        — local order book mirror fed by WebSocket snapshots + price changes
//	exchange/client.go    — REST client for the Polymarket CLOB API (markets, orders, cancels)
//	exchange/auth.go      — L1 (EIP-712) and L2 (HMAC) authentication, order signing
//	exchange/ws.go        — WebSocket feeds (market data + user fills) with auto-reconnect
//	store/state.go        — atomic JSON persistence for positions and fills (survives restarts)
//
// How it makes money:
//
//	The bot buys both outcomes of a binary market so that the combined
//	average cost stays under $1.00 per box. Every box redeems for exactly
//	$1.00 at resolution regardless of which side wins, locking in the
//	difference. All orders are post-only bids, so each fill also accrues
//	an estimated maker rebate on its notional.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"polymarket-boxbot/internal/api"
	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/internal/engine"
	"polymarket-boxbot/internal/exchange"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("POLY_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Set up logger
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Auth is only needed when real orders will be signed and submitted.
	var auth *exchange.Auth
	if !cfg.PaperTrading {
		auth, err = exchange.NewAuth(*cfg)
		if err != nil {
			logger.Error("failed to initialize auth", "error", err)
			os.Exit(1)
		}
	}

	client := exchange.NewClient(*cfg, auth, logger)

	if auth != nil && !auth.HasL2Credentials() {
		if _, err := client.DeriveAPIKey(ctx); err != nil {
			logger.Error("failed to derive API credentials", "error", err)
			os.Exit(1)
		}
		logger.Info("derived L2 API credentials", "address", auth.Address())
	}

	eng := engine.New(*cfg, client, auth, logger)

	// Start dashboard API server if enabled
	var apiServer *api.Server
	if cfg.Dashboard.Enabled {
		apiServer = api.NewServer(cfg.Dashboard, eng, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("dashboard server failed", "error", err)
			}
		}()
		logger.Info("dashboard started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if cfg.PaperTrading {
		logger.Warn("PAPER TRADING MODE — no real orders will be placed")
	}

	logger.Info("polymarket box bot started",
		"assets", cfg.Trading.TargetAssets,
		"timeframes", cfg.Trading.TargetTimeframes,
		"effective_target", cfg.Trading.EffectiveTarget(),
		"max_position", cfg.Trading.MaxPositionUSDC,
		"paper_trading", cfg.PaperTrading,
	)

	// Run blocks until the context is cancelled by a signal, then performs
	// the ordered shutdown (cancel orders, close feeds, final state save).
	if err := eng.Run(ctx); err != nil {
		logger.Error("engine exited with error", "error", err)
	}

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop dashboard", "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

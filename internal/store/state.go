// Package store provides crash-safe bot state persistence as a single
// JSON document.
//
// The whole state (positions, recent fills, volume counters) is written
// atomically: serialize to a temp file in the same directory, then rename
// over the target so the file is never left in a partial state. A
// background saver writes on a fixed interval; Save is also called once
// more during shutdown. A corrupt state file is moved aside to .bak and
// the bot starts clean rather than crashing on startup.
package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"polymarket-boxbot/internal/strategy"
	"polymarket-boxbot/pkg/types"
)

// maxFills caps how many fill records the state document retains.
const maxFills = 1000

// BotState is the persisted document. Open orders are deliberately not
// serialized: resting orders cannot survive a restart (the loop cancels
// and re-quotes), so they always load back empty.
type BotState struct {
	Positions            map[string]strategy.MarketPosition `json:"positions"`
	OpenOrders           map[string]types.Quote             `json:"open_orders"`
	Fills                []types.Fill                       `json:"fills"`
	TotalMakerVolume     float64                            `json:"total_maker_volume"`
	TotalRebatesEstimate float64                            `json:"total_rebates_estimate"`
	LastUpdated          time.Time                          `json:"last_updated"`
}

func newBotState() BotState {
	return BotState{
		Positions:  make(map[string]strategy.MarketPosition),
		OpenOrders: make(map[string]types.Quote),
	}
}

// Manager owns the state document and its on-disk lifecycle.
// A single mutex serializes both document mutation and file writes.
type Manager struct {
	mu        sync.Mutex
	state     BotState
	stateFile string
	interval  time.Duration
	enabled   bool
	logger    *slog.Logger
}

// NewManager creates a state manager for the given file path.
func NewManager(stateFile string, saveInterval time.Duration, enabled bool, logger *slog.Logger) *Manager {
	return &Manager{
		state:     newBotState(),
		stateFile: stateFile,
		interval:  saveInterval,
		enabled:   enabled,
		logger:    logger.With("component", "store"),
	}
}

// Load restores state from disk. Returns true when an existing document
// was loaded. A missing file starts fresh; a corrupt file is renamed to
// .bak and also starts fresh.
func (m *Manager) Load() bool {
	if !m.enabled {
		return false
	}

	data, err := os.ReadFile(m.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			m.logger.Info("no existing state file, starting fresh")
			return false
		}
		m.logger.Error("read state file failed", "error", err)
		return false
	}

	var loaded BotState
	if err := json.Unmarshal(data, &loaded); err != nil {
		backup := m.stateFile + ".bak"
		if renameErr := os.Rename(m.stateFile, backup); renameErr == nil {
			m.logger.Error("corrupt state file backed up, starting fresh",
				"error", err, "backup", backup)
		} else {
			m.logger.Error("corrupt state file could not be backed up",
				"error", err, "rename_error", renameErr)
		}
		return false
	}

	if loaded.Positions == nil {
		loaded.Positions = make(map[string]strategy.MarketPosition)
	}
	// Resting orders never survive a restart.
	loaded.OpenOrders = make(map[string]types.Quote)

	m.mu.Lock()
	m.state = loaded
	m.mu.Unlock()

	m.logger.Info("state loaded",
		"positions", len(loaded.Positions),
		"fills", len(loaded.Fills),
		"last_updated", loaded.LastUpdated,
	)
	return true
}

// Save writes the current state to disk atomically.
func (m *Manager) Save() error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastUpdated = time.Now().UTC()
	if len(m.state.Fills) > maxFills {
		m.state.Fills = m.state.Fills[len(m.state.Fills)-maxFills:]
	}

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(m.stateFile)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "state-*.json")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpPath, m.stateFile); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename state: %w", err)
	}

	m.logger.Debug("state saved", "positions", len(m.state.Positions))
	return nil
}

// RunSaver writes state on a fixed interval until stop is closed, then
// performs a final save.
func (m *Manager) RunSaver(stop <-chan struct{}) {
	if !m.enabled {
		m.logger.Info("state persistence disabled")
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("state saver started", "file", m.stateFile, "interval", m.interval)
	for {
		select {
		case <-stop:
			if err := m.Save(); err != nil {
				m.logger.Error("final state save failed", "error", err)
			}
			m.logger.Info("state saver stopped")
			return
		case <-ticker.C:
			if err := m.Save(); err != nil {
				m.logger.Error("periodic state save failed", "error", err)
			}
		}
	}
}

// UpdatePositions replaces the persisted positions snapshot.
func (m *Manager) UpdatePositions(positions map[string]strategy.MarketPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Positions = positions
}

// RecordFill appends a fill to the document, trims the history, and
// accrues maker volume.
func (m *Manager) RecordFill(fill types.Fill) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Fills = append(m.state.Fills, fill)
	if len(m.state.Fills) > maxFills {
		m.state.Fills = m.state.Fills[len(m.state.Fills)-maxFills:]
	}
	if fill.Maker {
		m.state.TotalMakerVolume += fill.Notional()
	}
}

// UpdateRebates sets the estimated rebate total.
func (m *Manager) UpdateRebates(estimate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TotalRebatesEstimate = estimate
}

// Positions returns a copy of the persisted positions as pointers, ready
// for loading into the inventory tracker.
func (m *Manager) Positions() map[string]*strategy.MarketPosition {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]*strategy.MarketPosition, len(m.state.Positions))
	for id, pos := range m.state.Positions {
		p := pos
		out[id] = &p
	}
	return out
}

// Fills returns a copy of the recorded fills, most recent last.
func (m *Manager) Fills() []types.Fill {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Fill, len(m.state.Fills))
	copy(out, m.state.Fills)
	return out
}

// TotalMakerVolume returns accumulated maker volume.
func (m *Manager) TotalMakerVolume() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TotalMakerVolume
}

// TotalRebatesEstimate returns the stored rebate estimate.
func (m *Manager) TotalRebatesEstimate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.TotalRebatesEstimate
}

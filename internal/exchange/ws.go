// ws.go implements the WebSocket feed session for real-time Polymarket data.
//
// A Session manages one connection (market or user channel):
//
//   - Market channel (public): subscribes by asset ID (token ID), receives
//     "book" snapshots and "price_change" deltas for the order book.
//
//   - User channel (authenticated): receives "trade" fill notifications for
//     the wallet's own orders.
//
// The session auto-reconnects with exponential backoff (base delay times
// the multiplier per attempt, capped, reset on a successful open) and
// replays every remembered subscription after each reconnect. A heartbeat
// goroutine warns when the feed has gone silent for twice the heartbeat
// interval.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/pkg/types"
)

const writeTimeout = 10 * time.Second

// MessageHandler receives every parsed JSON frame from the feed.
type MessageHandler func(raw []byte)

// Session manages a single WebSocket connection with auto-reconnect.
type Session struct {
	url  string
	cfg  config.WebSocketConfig
	auth *Auth // nil for the public market channel

	onMessage      MessageHandler
	onConnected    func()
	onDisconnected func()

	connMu sync.Mutex
	conn   *websocket.Conn

	// Remembered subscriptions, replayed on every reconnect.
	subMu         sync.Mutex
	subscriptions []types.WSSubscribeMsg

	lastMsgMu   sync.Mutex
	lastMessage time.Time

	logger *slog.Logger
}

// NewSession creates a feed session. auth is only needed for the user
// channel; pass nil for market data.
func NewSession(url string, cfg config.WebSocketConfig, auth *Auth, onMessage MessageHandler, logger *slog.Logger) *Session {
	return &Session{
		url:       url,
		cfg:       cfg,
		auth:      auth,
		onMessage: onMessage,
		logger:    logger.With("component", "ws", "url", url),
	}
}

// OnConnected registers a hook invoked after each successful (re)connect
// and subscription replay.
func (s *Session) OnConnected(fn func()) { s.onConnected = fn }

// OnDisconnected registers a hook invoked when the connection drops.
func (s *Session) OnDisconnected(fn func()) { s.onDisconnected = fn }

// SubscribeMarket registers a market-channel subscription for the given
// token IDs and sends it immediately if connected.
func (s *Session) SubscribeMarket(tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	msg := types.WSSubscribeMsg{
		Type:     "subscribe",
		Channel:  "market",
		AssetIDs: tokenIDs,
	}
	s.remember(msg)
	return s.sendIfConnected(msg)
}

// SubscribeUser registers the authenticated user-channel subscription.
func (s *Session) SubscribeUser() error {
	if s.auth == nil || !s.auth.HasL2Credentials() {
		return fmt.Errorf("user channel requires L2 credentials")
	}
	msg := types.WSSubscribeMsg{
		Type:    "subscribe",
		Channel: "user",
		Auth:    s.auth.WSAuthPayload(),
	}
	s.remember(msg)
	return s.sendIfConnected(msg)
}

// UnsubscribeMarket removes token IDs from the feed without forgetting
// other subscriptions.
func (s *Session) UnsubscribeMarket(tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	return s.sendIfConnected(types.WSSubscribeMsg{
		Type:     "unsubscribe",
		Channel:  "market",
		AssetIDs: tokenIDs,
	})
}

// Run connects and maintains the session until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	delay := s.cfg.ReconnectBaseDelay

	for {
		opened, err := s.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if opened {
			// Backoff restarts after any successful open.
			delay = s.cfg.ReconnectBaseDelay
		}

		if s.onDisconnected != nil {
			s.onDisconnected()
		}
		s.logger.Warn("feed disconnected, reconnecting", "error", err, "delay", delay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = nextReconnectDelay(delay, s.cfg.ReconnectMultiplier, s.cfg.ReconnectMaxDelay)
	}
}

// nextReconnectDelay advances the exponential backoff: multiply and cap.
func nextReconnectDelay(current time.Duration, multiplier float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * multiplier)
	if next > max {
		next = max
	}
	return next
}

func (s *Session) connectAndRead(ctx context.Context) (opened bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.ConnectionTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.conn = nil
		s.connMu.Unlock()
	}()

	if err := s.replaySubscriptions(); err != nil {
		return false, fmt.Errorf("resubscribe: %w", err)
	}

	s.logger.Info("feed connected")
	s.touch()
	if s.onConnected != nil {
		s.onConnected()
	}

	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	go s.heartbeatLoop(hbCtx)

	// Read loop with a deadline so a silent server triggers reconnect.
	for {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(3 * s.cfg.HeartbeatInterval))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}

		s.touch()
		if !json.Valid(raw) {
			s.logger.Warn("skipping unparseable frame", "size", len(raw))
			continue
		}
		s.onMessage(raw)
	}
}

func (s *Session) replaySubscriptions() error {
	s.subMu.Lock()
	subs := make([]types.WSSubscribeMsg, len(s.subscriptions))
	copy(subs, s.subscriptions)
	s.subMu.Unlock()

	for _, msg := range subs {
		if err := s.writeJSON(msg); err != nil {
			return err
		}
		s.logger.Debug("resubscribed", "channel", msg.Channel)
	}
	return nil
}

// heartbeatLoop pings the transport and warns on staleness: a feed silent
// for more than twice the heartbeat interval is likely dead upstream even
// if the TCP connection survives.
func (s *Session) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writePing(); err != nil {
				s.logger.Warn("ping failed", "error", err)
				return
			}

			s.lastMsgMu.Lock()
			silence := time.Since(s.lastMessage)
			s.lastMsgMu.Unlock()
			if silence > 2*s.cfg.HeartbeatInterval {
				s.logger.Warn("no messages received, connection may be stale",
					"silence", silence.Round(time.Second))
			}
		}
	}
}

// Disconnect closes the underlying socket. The Run loop observes the
// closed connection and exits via its context.
func (s *Session) Disconnect() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// IsConnected reports whether the socket is currently open.
func (s *Session) IsConnected() bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn != nil
}

func (s *Session) remember(msg types.WSSubscribeMsg) {
	s.subMu.Lock()
	s.subscriptions = append(s.subscriptions, msg)
	s.subMu.Unlock()
}

func (s *Session) sendIfConnected(msg types.WSSubscribeMsg) error {
	s.connMu.Lock()
	connected := s.conn != nil
	s.connMu.Unlock()
	if !connected {
		return nil // replayed on next connect
	}
	return s.writeJSON(msg)
}

func (s *Session) writeJSON(v interface{}) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteJSON(v)
}

func (s *Session) writePing() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *Session) touch() {
	s.lastMsgMu.Lock()
	s.lastMessage = time.Now()
	s.lastMsgMu.Unlock()
}

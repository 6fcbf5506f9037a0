// Package gateway owns the realtime connection to the chat service:
// identify handshake, heartbeat loop, and inbound frame decoding. The
// session writes session-defining events into the cache and forwards
// every dispatch event to the registered dispatch callback.
package gateway

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/bitly/go-simplejson"
	"github.com/gorilla/websocket"
	"golang.org/x/net/context"

	"github.com/aikolib/aiko/cache"
	"github.com/aikolib/aiko/logger/dlog"
	"github.com/aikolib/aiko/models"
)

const URL = "wss://gateway.discord.gg/?v=10&encoding=json"

const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opVoiceState   = 4
	opHello        = 10
	opHeartbeatACK = 11
)

const largeThreshold = 250

// TransportError wraps a network-layer failure on the realtime
// connection. Fatal to the current session; the caller decides whether
// to run the whole connect sequence again.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DispatchFunc receives every dispatch event's name and raw payload.
type DispatchFunc func(event string, data json.RawMessage)

type payload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// heartbeatFrame keeps d explicit so a missing sequence goes out as
// null rather than being omitted.
type heartbeatFrame struct {
	Op int    `json:"op"`
	D  *int64 `json:"d"`
}

type Session struct {
	URL   string
	Token string

	cache    *cache.Cache
	dispatch DispatchFunc

	conn    *websocket.Conn
	writeMu sync.Mutex

	// mu guards everything below; the receive loop and the heartbeat
	// loop run on separate goroutines.
	mu        sync.Mutex
	closed    bool
	sequence  *int64
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
	sessionID string
	user      *models.User
}

func NewSession(token string, c *cache.Cache, dispatch DispatchFunc) *Session {
	return &Session{
		URL:      URL,
		Token:    token,
		cache:    c,
		dispatch: dispatch,
	}
}

// Connect dials the gateway, sends the identify frame, and starts the
// receive loop. There is no automatic reconnect: a dropped connection
// ends the session and the caller connects again from scratch.
func (s *Session) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL, nil)
	if err != nil {
		return &TransportError{Op: "connect", Err: err}
	}

	s.mu.Lock()
	s.conn = conn
	s.closed = false
	s.sequence = nil
	s.interval = 0
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.mu.Unlock()

	if err := s.identify(); err != nil {
		s.Close()
		return err
	}
	go s.run()
	return nil
}

func (s *Session) identify() error {
	frame := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token": s.Token,
			"properties": map[string]any{
				"os":      runtime.GOOS,
				"browser": "Chrome",
				"device":  "",
			},
			"compress":        false,
			"large_threshold": largeThreshold,
		},
	}
	return s.sendJSON(frame)
}

// VoiceStateUpdate sends an op 4 frame, fire and forget.
func (s *Session) VoiceStateUpdate(guildID, channelID string, selfMute, selfDeaf bool) error {
	frame := map[string]any{
		"op": opVoiceState,
		"d": map[string]any{
			"guild_id":   guildID,
			"channel_id": channelID,
			"self_mute":  selfMute,
			"self_deaf":  selfDeaf,
		},
	}
	return s.sendJSON(frame)
}

func (s *Session) sendJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.conn == nil {
		return &TransportError{Op: "send", Err: fmt.Errorf("connection not open")}
	}
	if err := s.conn.WriteJSON(v); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (s *Session) run() {
	defer close(s.done)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if !s.isClosed() {
				dlog.Error("gateway receive failed", "err", err)
			}
			break
		}
		s.handleFrame(message)
		if s.isClosed() {
			break
		}
	}
	s.Close()
}

func (s *Session) handleFrame(message []byte) {
	if len(message) == 0 {
		return
	}
	var frame payload
	if err := json.Unmarshal(message, &frame); err != nil {
		dlog.Error("received invalid frame", "err", err)
		return
	}

	if frame.S != nil {
		s.mu.Lock()
		seq := *frame.S
		s.sequence = &seq
		s.mu.Unlock()
	}

	switch frame.Op {
	case opHello:
		s.handleHello(frame.D)
	case opHeartbeatACK:
		// Ack tracking for zombie-connection detection is a known gap.
	case opDispatch:
		s.handleDispatch(frame.T, frame.D)
	}
}

func (s *Session) handleHello(data json.RawMessage) {
	body, err := simplejson.NewJson(data)
	if err != nil {
		dlog.Error("invalid hello payload", "err", err)
		return
	}
	interval := time.Duration(body.Get("heartbeat_interval").MustFloat64()) * time.Millisecond
	if interval <= 0 {
		dlog.Error("invalid hello payload", "heartbeatInterval", interval)
		return
	}

	s.mu.Lock()
	started := s.interval != 0
	s.interval = interval
	s.mu.Unlock()
	if !started {
		go s.heartbeat(interval)
	}
}

func (s *Session) handleDispatch(event string, data json.RawMessage) {
	switch event {
	case "READY":
		body, err := simplejson.NewJson(data)
		if err != nil {
			dlog.Error("invalid ready payload", "err", err)
			break
		}
		user, err := s.cache.StoreUser(body.Get("user").MustMap())
		if err != nil {
			dlog.Error("could not store session user", "err", err)
			break
		}
		s.mu.Lock()
		s.sessionID = body.Get("session_id").MustString()
		s.user = user
		s.mu.Unlock()
		dlog.Info("connected to gateway", "user", user.Tag())
	case "GUILD_CREATE":
		body, err := simplejson.NewJson(data)
		if err != nil {
			dlog.Error("invalid guild payload", "err", err)
			break
		}
		if _, err := s.cache.StoreGuild(body.MustMap()); err != nil {
			dlog.Error("could not store guild", "err", err)
		}
	}

	if s.dispatch != nil {
		s.dispatch(event, data)
	}
}

func (s *Session) heartbeat(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if err := s.sendJSON(heartbeatFrame{Op: opHeartbeat, D: s.Sequence()}); err != nil {
				if !s.isClosed() {
					dlog.Error("heartbeat send failed", "err", err)
				}
				return
			}
		}
	}
}

// Close stops the heartbeat loop and closes the transport. Closing an
// already closed session is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.stop != nil {
		close(s.stop)
	}
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Done is closed once the receive loop has ended.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sequence returns a copy of the last observed sequence number, nil
// before the first dispatch frame.
func (s *Session) Sequence() *int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sequence == nil {
		return nil
	}
	seq := *s.sequence
	return &seq
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// User returns the local user established by the session bootstrap
// event, nil until READY has been processed.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

package client

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"roomchat-service/internal/models"
)

// ErrNotConnected is returned by Send when the live transport is down; the
// caller falls back to the REST path.
var ErrNotConnected = errors.New("socket not connected")

const (
	maxReconnectAttempts = 8
	maxBackoff           = 30 * time.Second
)

// Socket maintains the live websocket connection, reconnecting with
// exponential backoff and surfacing the connection status. The credential
// travels in the dial query string, matching the gateway handshake.
type Socket struct {
	endpoint string
	token    string
	dialer   *websocket.Dialer

	onEvent  func(models.ChatEvent)
	onStatus func(ConnectionStatus)

	mu     sync.Mutex
	conn   *websocket.Conn
	status ConnectionStatus

	done      chan struct{}
	closeOnce sync.Once
}

// NewSocket constructs a Socket for the given ws:// endpoint.
func NewSocket(endpoint, token string, onEvent func(models.ChatEvent), onStatus func(ConnectionStatus)) *Socket {
	return &Socket{
		endpoint: endpoint,
		token:    token,
		dialer:   &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onEvent:  onEvent,
		onStatus: onStatus,
		status:   StatusOffline,
		done:     make(chan struct{}),
	}
}

// Run dials and reads until Close is called or reconnection attempts are
// exhausted. Intended to run on its own goroutine.
func (s *Socket) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-s.done:
			return
		case <-ctx.Done():
			s.setStatus(StatusOffline)
			return
		default:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			attempt++
			if attempt >= maxReconnectAttempts {
				s.setStatus(StatusOffline)
				return
			}
			s.setStatus(StatusReconnecting)
			if !s.sleep(backoff(attempt)) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		s.setStatus(StatusLive)
		attempt = 0

		s.readLoop(conn)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
			s.setStatus(StatusReconnecting)
		}
	}
}

// Send writes a frame on the live connection.
func (s *Socket) Send(frame OutboundFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	return s.conn.WriteJSON(frame)
}

// Connected reports whether the live connection is up.
func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Status returns the current connection status.
func (s *Socket) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close tears the connection down; no events are delivered afterwards.
func (s *Socket) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		if s.conn != nil {
			s.conn.Close()
		}
		s.status = StatusOffline
		s.mu.Unlock()
	})
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", s.token)
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	return conn, err
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	for {
		var event models.ChatEvent
		if err := conn.ReadJSON(&event); err != nil {
			conn.Close()
			return
		}
		if s.onEvent != nil {
			s.onEvent(event)
		}
	}
}

func (s *Socket) setStatus(status ConnectionStatus) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.mu.Unlock()
	if changed && s.onStatus != nil {
		s.onStatus(status)
	}
}

func (s *Socket) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-s.done:
		return false
	}
}

func backoff(attempt int) time.Duration {
	d := time.Second << uint(attempt-1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

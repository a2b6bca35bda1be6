package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

// frame is the wire envelope exchanged with the signaling gateway
type frame struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

const (
	frameSubscribe = "subscribe"
	frameSnapshot  = "snapshot"
	framePing      = "ping"
	framePong      = "pong"
)

// Listener streams session snapshots from a remote signaling gateway
// over a websocket. It is a read-only alternative to subscribing
// against Redis directly, for clients that cannot reach the store.
type Listener struct {
	url         string
	dialTimeout time.Duration
	logger      logger.Logger
}

// NewListener creates a websocket snapshot listener
func NewListener(url string, dialTimeout time.Duration, log logger.Logger) *Listener {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}

	return &Listener{
		url:         url,
		dialTimeout: dialTimeout,
		logger:      log,
	}
}

// Subscribe dials the gateway, requests snapshots for sessionID and
// delivers them to fn in arrival order on a single goroutine. The
// returned cancel function closes the connection and is safe to call
// more than once.
func (l *Listener) Subscribe(ctx context.Context, sessionID string, fn SnapshotFunc) (func(), error) {
	dialer := websocket.Dialer{HandshakeTimeout: l.dialTimeout}
	conn, _, err := dialer.DialContext(ctx, l.url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignalingSubscribe, "dial signaling gateway failed", err)
	}

	sub := frame{Type: frameSubscribe, SessionID: sessionID}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(errors.ErrCodeSignalingSubscribe, "subscribe request failed", err)
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = conn.Close()
		})
	}

	go l.readLoop(conn, sessionID, fn, done)

	return cancel, nil
}

// readLoop pumps frames off the connection until it closes
func (l *Listener) readLoop(conn *websocket.Conn, sessionID string, fn SnapshotFunc, done chan struct{}) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-done:
			default:
				l.logger.Warn("Signaling listener disconnected",
					logger.String("session_id", sessionID),
					logger.Err(err),
				)
			}
			return
		}

		switch f.Type {
		case frameSnapshot:
			var record SessionRecord
			if err := json.Unmarshal(f.Data, &record); err != nil {
				l.logger.Warn("Dropping malformed snapshot frame",
					logger.String("session_id", sessionID),
					logger.Err(err),
				)
				continue
			}
			fn(&record)

		case framePing:
			if err := conn.WriteJSON(frame{Type: framePong}); err != nil {
				return
			}

		default:
			l.logger.Debug("Ignoring unknown signaling frame",
				logger.String("type", f.Type),
			)
		}
	}
}

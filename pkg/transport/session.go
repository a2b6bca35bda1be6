// Package transport manages one session on the media transport:
// joining a room, publishing local tracks, auto-subscribing to remote
// publications and fanning provider events out to the coordinator.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

// Session wraps a transport client with join/leave state tracking and
// automatic remote-track subscription. One session serves exactly one
// room connection; a new call constructs a new session.
type Session struct {
	client Client
	logger logger.Logger

	appID            string
	subscribeTimeout time.Duration

	// mu protects concurrent access
	mu    sync.Mutex
	state State

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSession creates a transport session around a client
func NewSession(client Client, appID string, subscribeTimeout time.Duration, eventBuffer int, log logger.Logger) *Session {
	if subscribeTimeout <= 0 {
		subscribeTimeout = 5 * time.Second
	}
	if eventBuffer <= 0 {
		eventBuffer = 64
	}

	return &Session{
		client:           client,
		logger:           log,
		appID:            appID,
		subscribeTimeout: subscribeTimeout,
		state:            StateIdle,
		events:           make(chan Event, eventBuffer),
		stop:             make(chan struct{}),
	}
}

// State returns the current session state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Events is the enriched event stream consumed by the coordinator.
// Closed after the provider stream drains or the session leaves.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Join connects to roomID. The token must be freshly fetched for this
// attempt; tokens are never reused across sessions. Join failure is
// fatal to session setup.
func (s *Session) Join(ctx context.Context, roomID, token string, localID uint32) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return errors.New(errors.ErrCodeInvalidState, "join attempted in state "+string(state))
	}
	s.state = StateJoining
	s.mu.Unlock()

	if err := s.client.Join(ctx, s.appID, roomID, token, localID); err != nil {
		s.mu.Lock()
		s.state = StateFailed
		s.mu.Unlock()
		return errors.NewJoinError(roomID, err)
	}

	s.mu.Lock()
	s.state = StateJoined
	s.mu.Unlock()

	s.logger.Info("Joined transport room",
		logger.String("room_id", roomID),
		logger.Uint32("local_id", localID),
	)

	go s.pumpEvents()

	return nil
}

// Publish publishes local tracks to the room
func (s *Session) Publish(ctx context.Context, tracks ...webrtc.TrackLocal) error {
	if s.State() != StateJoined {
		return errors.New(errors.ErrCodeNotJoined, "publish requires a joined session")
	}
	if len(tracks) == 0 {
		return nil
	}

	if err := s.client.Publish(ctx, tracks...); err != nil {
		return errors.NewPublishError(err)
	}

	s.logger.Info("Published local tracks",
		logger.Int("count", len(tracks)),
	)

	return nil
}

// Unpublish withdraws all local tracks. Safe to call when nothing is
// published.
func (s *Session) Unpublish(ctx context.Context) error {
	if s.State() != StateJoined {
		return nil
	}
	return s.client.Unpublish(ctx)
}

// Leave disconnects from the room. Idempotent; safe on every teardown
// path even if the join never completed.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.state == StateLeft {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateLeft
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })

	if prev == StateJoined || prev == StateJoining {
		if err := s.client.Leave(); err != nil {
			s.logger.Warn("Transport leave failed", logger.Err(err))
		}
	}

	s.logger.Info("Left transport room")
}

// pumpEvents consumes the raw provider stream, performs the automatic
// subscription on publications and forwards everything in arrival
// order. A failed subscription is logged and its event dropped; that
// peer's media stays unavailable until a later republish.
func (s *Session) pumpEvents() {
	defer close(s.events)

	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.client.Events():
			if !ok {
				return
			}

			switch e := ev.(type) {
			case PeerPublished:
				ctx, cancel := context.WithTimeout(context.Background(), s.subscribeTimeout)
				track, err := s.client.Subscribe(ctx, e.PeerSessionID, e.Kind)
				cancel()
				if err != nil {
					s.logger.Warn("Subscription failed, dropping publication",
						logger.Uint32("peer", e.PeerSessionID),
						logger.String("kind", string(e.Kind)),
						logger.Err(err),
					)
					continue
				}
				e.Track = track
				s.emit(e)

			default:
				s.emit(ev)
			}
		}
	}
}

// emit queues an event for the coordinator, blocking until there is
// room or the session stops. Events are never dropped while a
// coordinator suspension is in flight.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.stop:
	}
}

package transport

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/voxlink/voxlink/pkg/errors"
)

// Loopback is an in-process transport client with no wire protocol.
// It serves local development and tests; production embedders adapt a
// provider SDK to the Client port instead. Remote activity is injected
// with Emit and AddRemoteTrack.
type Loopback struct {
	// mu protects concurrent access
	mu     sync.Mutex
	joined bool
	left   bool
	tracks map[trackKey]RemoteTrack

	events chan Event
}

type trackKey struct {
	peer uint32
	kind TrackKind
}

// NewLoopback creates a loopback transport client
func NewLoopback() *Loopback {
	return &Loopback{
		tracks: make(map[trackKey]RemoteTrack),
		events: make(chan Event, 64),
	}
}

// Join connects the loopback room
func (l *Loopback) Join(ctx context.Context, appID, roomID, token string, localID uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.left {
		return errors.New(errors.ErrCodeSessionClosed, "loopback client already left")
	}
	l.joined = true
	return nil
}

// Publish accepts local tracks without forwarding them anywhere
func (l *Loopback) Publish(ctx context.Context, tracks ...webrtc.TrackLocal) error {
	return nil
}

// Unpublish withdraws all local tracks
func (l *Loopback) Unpublish(ctx context.Context) error {
	return nil
}

// Subscribe returns the track registered for the peer and kind
func (l *Loopback) Subscribe(ctx context.Context, peerSessionID uint32, kind TrackKind) (RemoteTrack, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	track, ok := l.tracks[trackKey{peer: peerSessionID, kind: kind}]
	if !ok {
		return nil, errors.NewSubscribeError(peerSessionID, nil)
	}
	return track, nil
}

// Leave disconnects and closes the event stream
func (l *Loopback) Leave() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.left {
		return nil
	}
	l.left = true
	l.joined = false
	close(l.events)
	return nil
}

// Events is the injected event stream
func (l *Loopback) Events() <-chan Event {
	return l.events
}

// AddRemoteTrack registers a track for Subscribe to hand out
func (l *Loopback) AddRemoteTrack(peerSessionID uint32, kind TrackKind, track RemoteTrack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tracks[trackKey{peer: peerSessionID, kind: kind}] = track
}

// Emit injects a remote event. Dropped after Leave.
func (l *Loopback) Emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.left {
		return
	}

	select {
	case l.events <- ev:
	default:
	}
}

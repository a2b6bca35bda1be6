package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/pion/rtp"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

type remoteTrackStub struct {
	id   string
	kind TrackKind
}

func (s *remoteTrackStub) ID() string                    { return s.id }
func (s *remoteTrackStub) Kind() TrackKind               { return s.kind }
func (s *remoteTrackStub) ReadRTP() (*rtp.Packet, error) { return nil, io.EOF }

func newTestSession(client Client) *Session {
	return NewSession(client, "app-id", time.Second, 8, logger.NewNopLogger())
}

func TestJoinTransitionsState(t *testing.T) {
	s := newTestSession(NewLoopback())

	if s.State() != StateIdle {
		t.Fatalf("Expected idle state, got %s", s.State())
	}

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if s.State() != StateJoined {
		t.Errorf("Expected joined state, got %s", s.State())
	}
}

func TestDoubleJoinFails(t *testing.T) {
	s := newTestSession(NewLoopback())

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	err := s.Join(context.Background(), "room-1", "token", 42)
	if !errors.IsErrorCode(err, errors.ErrCodeInvalidState) {
		t.Errorf("Expected invalid state code, got %v", err)
	}
}

func TestPublishRequiresJoin(t *testing.T) {
	s := newTestSession(NewLoopback())

	err := s.Publish(context.Background())
	if !errors.IsErrorCode(err, errors.ErrCodeNotJoined) {
		t.Errorf("Expected not-joined code, got %v", err)
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	s := newTestSession(NewLoopback())

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	s.Leave()
	s.Leave()
	s.Leave()

	if s.State() != StateLeft {
		t.Errorf("Expected left state, got %s", s.State())
	}
}

func TestLeaveWithoutJoin(t *testing.T) {
	s := newTestSession(NewLoopback())
	s.Leave()

	if s.State() != StateLeft {
		t.Errorf("Expected left state, got %s", s.State())
	}
}

func TestFailedSubscriptionDropsPublication(t *testing.T) {
	client := NewLoopback()
	s := newTestSession(client)

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	// No track registered for peer 7, so the subscription fails and
	// the publication is dropped. The following PeerLeft still flows.
	client.Emit(PeerPublished{PeerSessionID: 7, Kind: KindAudio})
	client.Emit(PeerLeft{PeerSessionID: 7})

	select {
	case ev := <-s.Events():
		left, ok := ev.(PeerLeft)
		if !ok {
			t.Fatalf("Expected PeerLeft, got %T", ev)
		}
		if left.PeerSessionID != 7 {
			t.Errorf("Expected peer 7, got %d", left.PeerSessionID)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for PeerLeft")
	}
}

func TestSubscriptionEnrichesPublication(t *testing.T) {
	client := NewLoopback()
	s := newTestSession(client)

	track := &remoteTrackStub{id: "audio-7", kind: KindAudio}
	client.AddRemoteTrack(7, KindAudio, track)

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	client.Emit(PeerPublished{PeerSessionID: 7, Kind: KindAudio})

	select {
	case ev := <-s.Events():
		pub, ok := ev.(PeerPublished)
		if !ok {
			t.Fatalf("Expected PeerPublished, got %T", ev)
		}
		if pub.Track == nil {
			t.Fatal("Expected enriched publication to carry a track")
		}
		if pub.Track.ID() != "audio-7" {
			t.Errorf("Expected track audio-7, got %s", pub.Track.ID())
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for PeerPublished")
	}
}

func TestVolumeLevelsFlowThrough(t *testing.T) {
	client := NewLoopback()
	s := newTestSession(client)

	if err := s.Join(context.Background(), "room-1", "token", 42); err != nil {
		t.Fatalf("Join failed: %v", err)
	}

	client.Emit(VolumeLevels{Levels: []VolumeLevel{{PeerSessionID: 7, Level: 42}}})

	select {
	case ev := <-s.Events():
		levels, ok := ev.(VolumeLevels)
		if !ok {
			t.Fatalf("Expected VolumeLevels, got %T", ev)
		}
		if len(levels.Levels) != 1 || levels.Levels[0].Level != 42 {
			t.Errorf("Unexpected levels payload: %+v", levels.Levels)
		}
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for VolumeLevels")
	}
}

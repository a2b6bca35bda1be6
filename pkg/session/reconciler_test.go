package session

import (
	"io"
	"testing"

	"github.com/pion/rtp"

	"github.com/voxlink/voxlink/pkg/identity"
	"github.com/voxlink/voxlink/pkg/logger"
	"github.com/voxlink/voxlink/pkg/signaling"
	"github.com/voxlink/voxlink/pkg/transport"
)

type remoteTrackStub struct {
	id   string
	kind transport.TrackKind
}

func (s *remoteTrackStub) ID() string                        { return s.id }
func (s *remoteTrackStub) Kind() transport.TrackKind         { return s.kind }
func (s *remoteTrackStub) ReadRTP() (*rtp.Packet, error)     { return nil, io.EOF }

func snapshotWith(ids ...string) *signaling.SessionRecord {
	record := &signaling.SessionRecord{
		ID:     "s1",
		Status: signaling.StatusActive,
	}
	for _, id := range ids {
		record.Participants = append(record.Participants, signaling.ParticipantDeclared{
			ID:          id,
			DisplayName: id,
		})
	}
	return record
}

func findBySID(t *testing.T, view []Participant, id string) Participant {
	t.Helper()
	sid := identity.Hash(id)
	for _, p := range view {
		if p.SessionID == sid {
			return p
		}
	}
	t.Fatalf("Participant %s not in view", id)
	return Participant{}
}

func TestSnapshotBuildsView(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())

	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	view := r.Participants()
	if len(view) != 2 {
		t.Fatalf("Expected 2 participants, got %d", len(view))
	}
	if !view[0].IsLocal || view[0].ID != "alice" {
		t.Error("Expected alice first and local")
	}
	if view[1].IsLocal {
		t.Error("bob must not be local")
	}
}

func TestDeclarationOrderIsStable(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())

	r.ApplySnapshot(snapshotWith("carol", "alice", "bob"), false, false)

	view := r.Participants()
	want := []string{"carol", "alice", "bob"}
	for i, id := range want {
		if view[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, view[i].ID)
		}
	}
}

func TestEarlyPublicationIsDropped(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice"), false, false)

	applied := r.ApplyPeerPublished(transport.PeerPublished{
		PeerSessionID: identity.Hash("bob"),
		Kind:          transport.KindAudio,
		Track:         &remoteTrackStub{id: "a", kind: transport.KindAudio},
	})
	if applied {
		t.Fatal("Publication before declaration must be dropped")
	}

	// The declaration arriving later does not resurrect the dropped
	// publication.
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)
	if p := findBySID(t, r.Participants(), "bob"); p.HasAudio {
		t.Error("Dropped publication must not reappear after declaration")
	}
}

func TestSnapshotMergePreservesPresence(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	bobSID := identity.Hash("bob")
	r.ApplyPeerPublished(transport.PeerPublished{
		PeerSessionID: bobSID,
		Kind:          transport.KindVideo,
		Track:         &remoteTrackStub{id: "v", kind: transport.KindVideo},
	})
	r.ApplyVolumeLevels(transport.VolumeLevels{
		Levels: []transport.VolumeLevel{{PeerSessionID: bobSID, Level: 50}},
	})

	// A new snapshot re-declares the same membership; presence and
	// speaking must survive the merge.
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	bob := findBySID(t, r.Participants(), "bob")
	if !bob.HasVideo {
		t.Error("Video presence lost across snapshot merge")
	}
	if bob.VideoTrack == nil {
		t.Error("Video track lost across snapshot merge")
	}
	if !bob.IsSpeaking {
		t.Error("Speaking state lost across snapshot merge")
	}
}

func TestSnapshotRemovesUndeclared(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	r.ApplySnapshot(snapshotWith("alice"), false, false)

	view := r.Participants()
	if len(view) != 1 || view[0].ID != "alice" {
		t.Errorf("Expected only alice after bob's removal, got %+v", view)
	}
}

func TestPeerLeftClearsPresenceOnly(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	bobSID := identity.Hash("bob")
	r.ApplyPeerPublished(transport.PeerPublished{
		PeerSessionID: bobSID,
		Kind:          transport.KindAudio,
		Track:         &remoteTrackStub{id: "a", kind: transport.KindAudio},
	})

	r.ApplyPeerLeft(transport.PeerLeft{PeerSessionID: bobSID})

	bob := findBySID(t, r.Participants(), "bob")
	if bob.HasAudio || bob.AudioTrack != nil {
		t.Error("PeerLeft must clear transport presence")
	}
	if len(r.Participants()) != 2 {
		t.Error("PeerLeft must never remove a declared participant")
	}
}

func TestVolumeBatchIsAuthoritative(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice", "bob"), false, false)

	aliceSID := identity.Hash("alice")
	bobSID := identity.Hash("bob")

	r.ApplyVolumeLevels(transport.VolumeLevels{
		Levels: []transport.VolumeLevel{
			{PeerSessionID: aliceSID, Level: 80},
			{PeerSessionID: bobSID, Level: 5},
		},
	})

	view := r.Participants()
	if !findBySID(t, view, "alice").IsSpeaking {
		t.Error("Level 80 must mark speaking, including the local participant")
	}
	if findBySID(t, view, "bob").IsSpeaking {
		t.Error("Level 5 is below the speaking threshold")
	}

	// The next batch omits alice entirely; she stops speaking.
	r.ApplyVolumeLevels(transport.VolumeLevels{})
	if findBySID(t, r.Participants(), "alice").IsSpeaking {
		t.Error("A batch without a participant must clear speaking")
	}
}

func TestLocalStateComesFromCapture(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())

	record := snapshotWith("alice", "bob")
	// A stale signaling copy claims alice is unmuted.
	record.Participants[0].IsMuted = false
	record.Participants[1].IsMuted = true

	r.ApplySnapshot(record, true, true)

	view := r.Participants()
	alice := findBySID(t, view, "alice")
	if !alice.IsMuted || !alice.IsCameraOff {
		t.Error("Local state must come from the capture manager, not signaling")
	}
	if !findBySID(t, view, "bob").IsMuted {
		t.Error("Remote state must come from the signaling copy")
	}
}

func TestSetLocalState(t *testing.T) {
	r := NewReconciler("alice", logger.NewNopLogger())
	r.ApplySnapshot(snapshotWith("alice"), false, false)

	r.SetLocalState(true, false)

	local, ok := r.Local()
	if !ok {
		t.Fatal("Expected a local entry")
	}
	if !local.IsMuted || local.IsCameraOff {
		t.Errorf("Unexpected local state: %+v", local)
	}
}

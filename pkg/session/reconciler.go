package session

import (
	"sync"

	"github.com/voxlink/voxlink/pkg/identity"
	"github.com/voxlink/voxlink/pkg/logger"
	"github.com/voxlink/voxlink/pkg/signaling"
	"github.com/voxlink/voxlink/pkg/transport"
)

// speakingThreshold is the volume level above which a participant is
// shown as speaking
const speakingThreshold = 10

// Reconciler merges signaling snapshots and transport events into the
// participant view. Membership comes only from signaling; transport
// events mutate presence on already-declared participants and are
// dropped when they arrive before the declaration.
type Reconciler struct {
	logger logger.Logger

	localID        string
	localSessionID uint32

	// mu protects concurrent access
	mu    sync.Mutex
	order []uint32
	bySID map[uint32]*Participant
}

// NewReconciler creates a reconciler for one session. localID is the
// local participant's stable identifier.
func NewReconciler(localID string, log logger.Logger) *Reconciler {
	return &Reconciler{
		logger:         log,
		localID:        localID,
		localSessionID: identity.Hash(localID),
		bySID:          make(map[uint32]*Participant),
	}
}

// LocalSessionID returns the local numeric transport identity
func (r *Reconciler) LocalSessionID() uint32 {
	return r.localSessionID
}

// ApplySnapshot replaces the declared membership with the snapshot's,
// preserving transport presence and speaking state for participants
// that remain declared. The local entry's mute and camera state are
// taken from the capture manager, not from the snapshot.
func (r *Reconciler) ApplySnapshot(record *signaling.SessionRecord, localMuted, localCameraOff bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make([]uint32, 0, len(record.Participants))
	next := make(map[uint32]*Participant, len(record.Participants))

	for _, declared := range record.Participants {
		sid := identity.Hash(declared.ID)
		if _, dup := next[sid]; dup {
			continue
		}

		p := &Participant{
			ID:          declared.ID,
			SessionID:   sid,
			DisplayName: declared.DisplayName,
			AvatarRef:   declared.AvatarRef,
			IsLocal:     declared.ID == r.localID,
			IsMuted:     declared.IsMuted,
			IsCameraOff: declared.IsCameraOff,
		}

		if p.IsLocal {
			p.IsMuted = localMuted
			p.IsCameraOff = localCameraOff
		}

		if prev, ok := r.bySID[sid]; ok {
			p.HasAudio = prev.HasAudio
			p.HasVideo = prev.HasVideo
			p.AudioTrack = prev.AudioTrack
			p.VideoTrack = prev.VideoTrack
			p.IsSpeaking = prev.IsSpeaking
		}

		order = append(order, sid)
		next[sid] = p
	}

	r.order = order
	r.bySID = next
}

// ApplyPeerPublished attaches live media to a declared participant.
// Publications from peers not yet declared are dropped; the next
// snapshot merge cannot resurrect them, the peer republishes or the
// media stays absent.
func (r *Reconciler) ApplyPeerPublished(ev transport.PeerPublished) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.bySID[ev.PeerSessionID]
	if !ok {
		r.logger.Debug("Dropping publication from undeclared peer",
			logger.Uint32("peer", ev.PeerSessionID),
			logger.String("kind", string(ev.Kind)),
		)
		return false
	}

	switch ev.Kind {
	case transport.KindAudio:
		p.HasAudio = true
		p.AudioTrack = ev.Track
	case transport.KindVideo:
		p.HasVideo = true
		p.VideoTrack = ev.Track
	}
	return true
}

// ApplyPeerLeft clears a participant's transport presence. The
// participant stays in the view; only a signaling snapshot removes
// membership.
func (r *Reconciler) ApplyPeerLeft(ev transport.PeerLeft) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.bySID[ev.PeerSessionID]
	if !ok {
		return
	}

	p.HasAudio = false
	p.HasVideo = false
	p.AudioTrack = nil
	p.VideoTrack = nil
	p.IsSpeaking = false
}

// ApplyVolumeLevels recomputes speaking state from one indication
// batch. Each batch is authoritative: participants absent from it stop
// speaking, including the local one.
func (r *Reconciler) ApplyVolumeLevels(ev transport.VolumeLevels) {
	r.mu.Lock()
	defer r.mu.Unlock()

	speaking := make(map[uint32]bool, len(ev.Levels))
	for _, lv := range ev.Levels {
		if lv.Level > speakingThreshold {
			speaking[lv.PeerSessionID] = true
		}
	}

	for sid, p := range r.bySID {
		p.IsSpeaking = speaking[sid]
	}
}

// SetLocalState updates the local entry's mute and camera state
func (r *Reconciler) SetLocalState(muted, cameraOff bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.bySID[r.localSessionID]; ok {
		p.IsMuted = muted
		p.IsCameraOff = cameraOff
	}
}

// Participants returns a copy of the view in declaration order
func (r *Reconciler) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, *r.bySID[sid])
	}
	return out
}

// Local returns the local participant's view entry, if declared
func (r *Reconciler) Local() (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.bySID[r.localSessionID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

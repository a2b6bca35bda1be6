package signaling

import "time"

// SessionKind is the media kind of a call or room
type SessionKind string

const (
	// KindAudio is an audio-only session
	KindAudio SessionKind = "audio"
	// KindVideo is an audio+video session
	KindVideo SessionKind = "video"
)

// SessionStatus is the remote lifecycle status of a session.
// One-to-one calls move through ringing/active/ended/declined/missed;
// rooms use open/ended.
type SessionStatus string

const (
	// StatusRinging indicates an unanswered one-to-one call
	StatusRinging SessionStatus = "ringing"
	// StatusActive indicates an answered, ongoing call
	StatusActive SessionStatus = "active"
	// StatusEnded indicates a finished call or room
	StatusEnded SessionStatus = "ended"
	// StatusDeclined indicates the callee declined
	StatusDeclined SessionStatus = "declined"
	// StatusMissed indicates the call rang out unanswered
	StatusMissed SessionStatus = "missed"
	// StatusOpen indicates a live room
	StatusOpen SessionStatus = "open"
)

// Terminal reports whether the status admits no further transitions
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusEnded, StatusDeclined, StatusMissed:
		return true
	}
	return false
}

// ValidTransition reports whether a status write from "from" to "to"
// is allowed. Writing the current status again is a permitted no-op.
func ValidTransition(from, to SessionStatus) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}

	switch from {
	case StatusRinging:
		return to == StatusActive || to == StatusEnded || to == StatusDeclined || to == StatusMissed
	case StatusActive:
		return to == StatusEnded
	case StatusOpen:
		return to == StatusEnded
	}
	return false
}

// ParticipantDeclared is a participant's authoritative membership entry
// as last written by that participant (or a default for newcomers).
// Only the state fields mutate; identity fields are immutable.
type ParticipantDeclared struct {
	// ID is the stable user identifier
	ID string `json:"id"`
	// DisplayName is the participant's display name
	DisplayName string `json:"display_name"`
	// AvatarRef references the participant's avatar in external storage
	AvatarRef string `json:"avatar_ref,omitempty"`
	// IsMuted is the participant's last written mute intent
	IsMuted bool `json:"is_muted"`
	// IsCameraOff is the participant's last written camera intent
	IsCameraOff bool `json:"is_camera_off"`
}

// ParticipantStateUpdate is a partial update of a participant's state
// fields. Nil fields are left untouched.
type ParticipantStateUpdate struct {
	IsMuted     *bool `json:"is_muted,omitempty"`
	IsCameraOff *bool `json:"is_camera_off,omitempty"`
}

// SessionRecord is the remote, authoritative session document.
// Mutated only by signaling-side writers; the coordinator writes
// lifecycle fields exclusively through the control operations.
type SessionRecord struct {
	// ID is the session identifier (doubles as the transport room id)
	ID string `json:"id"`
	// Kind is the media kind
	Kind SessionKind `json:"kind"`
	// Status is the lifecycle status
	Status SessionStatus `json:"status"`
	// Participants is the declared membership in declaration order
	Participants []ParticipantDeclared `json:"participants"`
	// HostID is the room host (rooms only)
	HostID string `json:"host_id,omitempty"`
	// CreatedAt is when the session was created
	CreatedAt time.Time `json:"created_at"`
}

// IsRoom reports whether the record is a multi-party room
func (r *SessionRecord) IsRoom() bool {
	return r.HostID != ""
}

// FindParticipant returns the declared entry for id, if present
func (r *SessionRecord) FindParticipant(id string) (ParticipantDeclared, bool) {
	for _, p := range r.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return ParticipantDeclared{}, false
}

// Clone returns a deep copy of the record
func (r *SessionRecord) Clone() *SessionRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Participants = make([]ParticipantDeclared, len(r.Participants))
	copy(out.Participants, r.Participants)
	return &out
}

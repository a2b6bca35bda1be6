// Package session coordinates one call or room: it reconciles remote
// signaling snapshots, transport events and the local capture lifecycle
// into a single consistent participant view, and owns the session
// lifecycle from setup to teardown.
package session

import (
	"fmt"
	"time"

	"github.com/voxlink/voxlink/pkg/transport"
)

// Participant is the reconciled view of one session member. Identity
// and declared state come from signaling; media presence and speaking
// come from the transport; the local entry's mute and camera state come
// from the capture manager, never from the signaling copy.
type Participant struct {
	// ID is the stable user identifier
	ID string

	// SessionID is the numeric transport identity derived from ID
	SessionID uint32

	// DisplayName is the declared display name
	DisplayName string

	// AvatarRef references the participant's avatar
	AvatarRef string

	// IsLocal marks the local participant
	IsLocal bool

	// IsMuted is the participant's mute state
	IsMuted bool

	// IsCameraOff is the participant's camera state
	IsCameraOff bool

	// HasAudio reports live audio presence on the transport
	HasAudio bool

	// HasVideo reports live video presence on the transport
	HasVideo bool

	// AudioTrack is the subscribed remote audio source, nil for the
	// local participant and for peers without live audio
	AudioTrack transport.RemoteTrack

	// VideoTrack is the subscribed remote video source, nil for the
	// local participant and for peers without live video
	VideoTrack transport.RemoteTrack

	// IsSpeaking reports whether the participant spoke in the latest
	// volume indication batch
	IsSpeaking bool
}

// FormatDuration renders an elapsed call duration as MM:SS
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

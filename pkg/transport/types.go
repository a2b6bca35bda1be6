package transport

import (
	"context"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// State represents the transport session state
type State string

const (
	// StateIdle indicates the session has not attempted to join
	StateIdle State = "idle"
	// StateJoining indicates a join is in flight
	StateJoining State = "joining"
	// StateJoined indicates the session is connected to the room
	StateJoined State = "joined"
	// StateLeft indicates the session left the room
	StateLeft State = "left"
	// StateFailed indicates the join failed
	StateFailed State = "failed"
)

// TrackKind identifies the media kind of a track
type TrackKind string

const (
	// KindAudio is an audio track
	KindAudio TrackKind = "audio"
	// KindVideo is a video track
	KindVideo TrackKind = "video"
)

// RemoteTrack is a live handle to a subscribed remote media source
type RemoteTrack interface {
	// ID is the track identifier
	ID() string

	// Kind is the media kind
	Kind() TrackKind

	// ReadRTP reads the next media packet
	ReadRTP() (*rtp.Packet, error)
}

// Event is the tagged union of transport events. Within the transport
// source events are delivered in arrival order; no ordering is
// guaranteed against signaling snapshots.
type Event interface {
	isEvent()
}

// PeerPublished fires when a remote peer publishes media. Track is nil
// on the raw client stream and set once the session has subscribed.
type PeerPublished struct {
	// PeerSessionID is the peer's numeric transport identifier
	PeerSessionID uint32
	// Kind is the published media kind
	Kind TrackKind
	// Track is the subscribed remote source, nil before subscription
	Track RemoteTrack
}

// PeerLeft fires when a remote peer leaves the transport room. It says
// nothing about room membership; only signaling removes participants.
type PeerLeft struct {
	// PeerSessionID is the peer's numeric transport identifier
	PeerSessionID uint32
}

// VolumeLevel is one peer's audio level in a volume batch
type VolumeLevel struct {
	// PeerSessionID is the peer's numeric transport identifier
	PeerSessionID uint32
	// Level is the audio level on a 0-100 scale
	Level int
}

// VolumeLevels carries one audio-level indication batch
type VolumeLevels struct {
	// Levels holds the reported peers; absent peers are not speaking
	Levels []VolumeLevel
}

func (PeerPublished) isEvent() {}
func (PeerLeft) isEvent()      {}
func (VolumeLevels) isEvent()  {}

// Client is the wire-level port to the media transport provider. The
// wire protocol is out of scope; implementations adapt a concrete
// provider SDK to this contract.
type Client interface {
	// Join connects to a room with a freshly fetched token
	Join(ctx context.Context, appID, roomID, token string, localID uint32) error

	// Publish publishes local tracks
	Publish(ctx context.Context, tracks ...webrtc.TrackLocal) error

	// Unpublish withdraws all local tracks
	Unpublish(ctx context.Context) error

	// Subscribe subscribes to a remote peer's media of one kind
	Subscribe(ctx context.Context, peerSessionID uint32, kind TrackKind) (RemoteTrack, error)

	// Leave disconnects from the room
	Leave() error

	// Events is the raw provider event stream; closed on disconnect
	Events() <-chan Event
}

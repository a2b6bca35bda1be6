package capture

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

// StaticProvider opens in-process sources backed by static local
// tracks. It keeps the manager and the publish pipeline fully
// exercisable without hardware; device integrations implement
// DeviceProvider against the real capture stack.
type StaticProvider struct {
	// BufferSize is the per-source packet queue size (0 = default)
	BufferSize int
}

// NewStaticProvider creates a static device provider
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// OpenMicrophone opens a static opus audio source
func (p *StaticProvider) OpenMicrophone(ctx context.Context) (AudioSource, error) {
	id := "mic-" + uuid.New().String()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		id, "voxlink-local",
	)
	if err != nil {
		return nil, err
	}

	return &staticAudioSource{id: id, track: track, enabled: 1}, nil
}

// OpenCamera opens a static vp8 video source
func (p *StaticProvider) OpenCamera(ctx context.Context) (VideoSource, error) {
	id := "cam-" + uuid.New().String()
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		id, "voxlink-local",
	)
	if err != nil {
		return nil, err
	}

	size := p.BufferSize
	if size <= 0 {
		size = 64
	}

	return &staticVideoSource{
		id:      id,
		track:   track,
		packets: make(chan *rtp.Packet, size),
		enabled: 1,
	}, nil
}

type staticAudioSource struct {
	id      string
	track   *webrtc.TrackLocalStaticRTP
	enabled int32
	once    sync.Once
}

func (s *staticAudioSource) ID() string              { return s.id }
func (s *staticAudioSource) Track() webrtc.TrackLocal { return s.track }

func (s *staticAudioSource) SetEnabled(enabled bool) {
	if enabled {
		atomic.StoreInt32(&s.enabled, 1)
	} else {
		atomic.StoreInt32(&s.enabled, 0)
	}
}

func (s *staticAudioSource) Close() {
	s.once.Do(func() {})
}

type staticVideoSource struct {
	id      string
	track   *webrtc.TrackLocalStaticRTP
	packets chan *rtp.Packet
	enabled int32
	once    sync.Once
}

func (s *staticVideoSource) ID() string              { return s.id }
func (s *staticVideoSource) Track() webrtc.TrackLocal { return s.track }

func (s *staticVideoSource) SetEnabled(enabled bool) {
	if enabled {
		atomic.StoreInt32(&s.enabled, 1)
	} else {
		atomic.StoreInt32(&s.enabled, 0)
	}
}

// WriteRTP feeds a packet into the source. Disabled sources drop the
// packet; a full queue drops the oldest to keep the feeder from
// blocking the capture path.
func (s *staticVideoSource) WriteRTP(pkt *rtp.Packet) {
	if atomic.LoadInt32(&s.enabled) == 0 {
		return
	}

	select {
	case s.packets <- pkt:
	default:
		select {
		case <-s.packets:
		default:
		}
		select {
		case s.packets <- pkt:
		default:
		}
	}
}

// ReadRTP reads the next packet, returning io.EOF once closed
func (s *staticVideoSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-s.packets
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (s *staticVideoSource) Close() {
	s.once.Do(func() {
		close(s.packets)
	})
}

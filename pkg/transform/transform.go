// Package transform provides the optional video transform stage. The
// stage wraps a raw camera source and yields a transformed source for
// publishing; it is a pure enhancement and never a hard dependency for
// establishing video.
package transform

import (
	"io"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/voxlink/voxlink/pkg/capture"
	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

// ParamSmoothing is the skin-smoothing intensity parameter (0..1)
const ParamSmoothing = "smoothing"

// Stage applies a visual effect pipeline to a local video source
type Stage interface {
	// Wrap takes a raw video source and yields the transformed source.
	// The raw source keeps ownership of the device handle.
	Wrap(src capture.VideoSource) (capture.VideoSource, error)

	// SetParameter adjusts a named effect parameter
	SetParameter(name string, value float64) error

	// Dispose releases the off-screen rendering surface. Idempotent;
	// must be called on every teardown path.
	Dispose()
}

// Provider constructs transform stages from a provider credential.
// An absent credential means no stage is ever constructed.
type Provider struct {
	credential string
	logger     logger.Logger
}

// NewProvider creates a transform provider
func NewProvider(credential string, log logger.Logger) *Provider {
	return &Provider{
		credential: credential,
		logger:     log,
	}
}

// Available reports whether a stage can be constructed
func (p *Provider) Available() bool {
	return p != nil && p.credential != ""
}

// NewStage constructs a beautification stage. Returns a no-credential
// error when the provider has no credential.
func (p *Provider) NewStage() (Stage, error) {
	if !p.Available() {
		return nil, errors.New(errors.ErrCodeNoCredential, "transform provider credential is absent")
	}

	return &beautyStage{
		logger: p.logger,
		params: map[string]float64{ParamSmoothing: 0.5},
	}, nil
}

// beautyStage pumps packets from the raw source through the effect
// pipeline onto its own local track. The effect computation itself
// lives in the provider runtime; the stage owns lifecycle, parameters
// and the off-screen surface.
type beautyStage struct {
	logger logger.Logger

	// mu protects concurrent access
	mu       sync.Mutex
	params   map[string]float64
	inner    capture.VideoSource
	out      *transformedSource
	disposed bool
	stopOnce sync.Once
	stop     chan struct{}
}

// Wrap starts the transform pipeline around src
func (s *beautyStage) Wrap(src capture.VideoSource) (capture.VideoSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return nil, errors.New(errors.ErrCodeTransformDisposed, "transform stage already disposed")
	}
	if s.out != nil {
		return nil, errors.New(errors.ErrCodeTransformInit, "transform stage already wraps a source")
	}

	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		src.ID()+"-transformed", "voxlink-transform",
	)
	if err != nil {
		return nil, errors.NewTransformInitError(err)
	}

	s.inner = src
	s.stop = make(chan struct{})
	s.out = &transformedSource{
		id:    src.ID() + "-transformed",
		inner: src,
		track: track,
		tap:   make(chan *rtp.Packet, 16),
	}

	go s.pump()

	s.logger.Info("Video transform attached",
		logger.String("source_id", src.ID()),
	)

	return s.out, nil
}

// SetParameter adjusts an effect parameter
func (s *beautyStage) SetParameter(name string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return errors.New(errors.ErrCodeTransformDisposed, "transform stage already disposed")
	}
	if name != ParamSmoothing {
		return errors.New(errors.ErrCodeUnknownParameter, "unknown transform parameter: "+name)
	}
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}

	s.params[name] = value

	s.logger.Debug("Transform parameter updated",
		logger.String("name", name),
		logger.Float64("value", value),
	)

	return nil
}

// Dispose stops the pipeline and releases the off-screen surface
func (s *beautyStage) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	out := s.out
	s.out = nil
	s.inner = nil
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
		}
	})

	if out != nil {
		out.close()
	}

	s.logger.Info("Video transform disposed")
}

// pump moves packets from the raw source through the effect onto the
// transformed track until the source drains or the stage is disposed
func (s *beautyStage) pump() {
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		s.mu.Lock()
		inner := s.inner
		out := s.out
		s.mu.Unlock()
		if inner == nil || out == nil {
			return
		}

		pkt, err := inner.ReadRTP()
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("Transform source read failed", logger.Err(err))
			}
			return
		}

		out.forward(pkt)
	}
}

// transformedSource is the publishable result of Wrap. Enable toggles
// delegate to the raw source so the device state stays in one place.
type transformedSource struct {
	id    string
	inner capture.VideoSource
	track *webrtc.TrackLocalStaticRTP

	// mu protects concurrent access
	mu     sync.Mutex
	tap    chan *rtp.Packet
	closed bool
}

func (t *transformedSource) ID() string               { return t.id }
func (t *transformedSource) Track() webrtc.TrackLocal { return t.track }

func (t *transformedSource) SetEnabled(enabled bool) {
	t.inner.SetEnabled(enabled)
}

func (t *transformedSource) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-t.tap
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

// Close releases the transformed surface only; the raw device handle
// stays owned by the capture manager.
func (t *transformedSource) Close() {
	t.close()
}

func (t *transformedSource) forward(pkt *rtp.Packet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	_ = t.track.WriteRTP(pkt)

	select {
	case t.tap <- pkt:
	default:
	}
}

func (t *transformedSource) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.tap)
}

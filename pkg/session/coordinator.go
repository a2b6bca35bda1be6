package session

import (
	"context"
	"sync"
	"time"

	"github.com/voxlink/voxlink/pkg/capture"
	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
	"github.com/voxlink/voxlink/pkg/signaling"
	"github.com/voxlink/voxlink/pkg/token"
	"github.com/voxlink/voxlink/pkg/transform"
	"github.com/voxlink/voxlink/pkg/transport"
)

// writeTimeout bounds best-effort signaling writes issued from the
// coordinator's own goroutine
const writeTimeout = 5 * time.Second

// Options configures one coordinator
type Options struct {
	// SessionID is the session to coordinate (also the transport room)
	SessionID string

	// Local is the local participant's declared identity
	Local signaling.ParticipantDeclared

	// Kind is the session media kind
	Kind signaling.SessionKind

	// IsInitiator marks the caller side of a one-to-one call. Only the
	// initiator arms the ring timeout.
	IsInitiator bool

	// IsRoom marks a multi-party room session. Known at start, unlike
	// the record's host field which only arrives with the first
	// snapshot.
	IsRoom bool

	// IsRoomHost marks the room creator
	IsRoomHost bool

	// RingTimeout is how long a ringing call waits before the
	// initiator marks it missed. Zero disables the timeout.
	RingTimeout time.Duration

	// ExitDelay is the pause between observing a terminal status and
	// signaling Done, leaving the final state visible briefly
	ExitDelay time.Duration

	// TransformEnabled requests the video transform stage at setup
	TransformEnabled bool

	// DefaultSmoothing is the initial transform smoothing parameter
	DefaultSmoothing float64
}

// op is one control operation executed on the coordinator goroutine
type op struct {
	fn   func() error
	errc chan error
}

// Coordinator reconciles signaling snapshots, transport events and the
// local capture lifecycle for one session. All mutation happens on a
// single goroutine; control operations are marshalled onto it and the
// read accessors snapshot thread-safe state.
type Coordinator struct {
	opts   Options
	logger logger.Logger

	signals    signaling.Service
	tokens     token.Provider
	capture    *capture.Manager
	transport  *transport.Session
	transforms *transform.Provider

	reconciler *Reconciler
	state      *callState

	// actor-owned, touched only on the coordinator goroutine
	stage       transform.Stage
	unsubscribe func()
	ringTimer   *time.Timer
	exitTimer   *time.Timer

	snapshots chan *signaling.SessionRecord
	ops       chan op

	done         chan struct{}
	doneOnce     sync.Once
	teardownOnce sync.Once

	// mu protects concurrent access
	mu          sync.Mutex
	hostID      string
	transformOn bool
	err         error
}

// View is a consistent snapshot of the session for embedders
type View struct {
	// Participants is the reconciled view in declaration order
	Participants []Participant
	// Status is the lifecycle status
	Status signaling.SessionStatus
	// Duration is the elapsed active duration
	Duration time.Duration
	// MicAvailable reports whether a microphone was acquired
	MicAvailable bool
	// CameraAvailable reports whether a camera was acquired
	CameraAvailable bool
	// FilterAvailable reports whether a transform stage can exist
	FilterAvailable bool
	// FilterEnabled reports whether a transform stage is active
	FilterEnabled bool
	// IsHost reports whether the local participant hosts the room
	IsHost bool
}

// NewCoordinator creates a coordinator. Start must be called before any
// control operation.
func NewCoordinator(
	signals signaling.Service,
	tokens token.Provider,
	captureMgr *capture.Manager,
	transportSess *transport.Session,
	transforms *transform.Provider,
	opts Options,
	log logger.Logger,
) *Coordinator {
	return &Coordinator{
		opts:       opts,
		logger:     log,
		signals:    signals,
		tokens:     tokens,
		capture:    captureMgr,
		transport:  transportSess,
		transforms: transforms,
		reconciler: NewReconciler(opts.Local.ID, log),
		state:      newCallState(signaling.StatusRinging),
		snapshots:  make(chan *signaling.SessionRecord, 1),
		ops:        make(chan op),
		done:       make(chan struct{}),
	}
}

// Start subscribes to the session record and launches the coordinator
// goroutine. A failed subscription is fatal and nothing is started.
func (c *Coordinator) Start(ctx context.Context) error {
	unsubscribe, err := c.signals.Subscribe(ctx, c.opts.SessionID, c.pushSnapshot)
	if err != nil {
		return err
	}
	c.unsubscribe = unsubscribe

	go c.run(ctx)

	return nil
}

// Done is closed once the coordinator has torn down and exited
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the fatal error that ended the session, if any
func (c *Coordinator) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Participants returns the reconciled view in declaration order
func (c *Coordinator) Participants() []Participant {
	return c.reconciler.Participants()
}

// Local returns the local participant's view entry
func (c *Coordinator) Local() (Participant, bool) {
	return c.reconciler.Local()
}

// Status returns the current lifecycle status
func (c *Coordinator) Status() signaling.SessionStatus {
	return c.state.Status()
}

// Duration returns the elapsed active duration
func (c *Coordinator) Duration() time.Duration {
	return c.state.Duration()
}

// FormattedDuration returns the elapsed active duration as MM:SS
func (c *Coordinator) FormattedDuration() string {
	return FormatDuration(c.state.Duration())
}

// IsHost reports whether the local participant hosts the room
func (c *Coordinator) IsHost() bool {
	if c.opts.IsRoomHost {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hostID != "" && c.hostID == c.opts.Local.ID
}

// View returns a consistent snapshot for rendering
func (c *Coordinator) View() View {
	return View{
		Participants:    c.reconciler.Participants(),
		Status:          c.state.Status(),
		Duration:        c.state.Duration(),
		MicAvailable:    c.capture.MicAvailable(),
		CameraAvailable: c.capture.CameraAvailable(),
		FilterAvailable: c.transforms.Available(),
		FilterEnabled:   c.isTransformOn(),
		IsHost:          c.IsHost(),
	}
}

// StatusText renders the lifecycle for display: the ring indicator
// while ringing, the running duration while live, a closing line on
// terminal states.
func (c *Coordinator) StatusText() string {
	switch c.state.Status() {
	case signaling.StatusRinging:
		return "Ringing..."
	case signaling.StatusActive, signaling.StatusOpen:
		return FormatDuration(c.state.Duration())
	case signaling.StatusDeclined:
		return "Call Declined"
	case signaling.StatusMissed:
		return "Call Missed"
	default:
		return "Call Ended"
	}
}

// pushSnapshot hands a record to the coordinator goroutine, conflating
// to the latest when the previous one has not been consumed yet
func (c *Coordinator) pushSnapshot(record *signaling.SessionRecord) {
	for {
		select {
		case c.snapshots <- record:
			return
		case <-c.done:
			return
		default:
		}
		select {
		case <-c.snapshots:
		default:
		}
	}
}

// run performs session setup and then drives the event loop
func (c *Coordinator) run(ctx context.Context) {
	if err := c.setup(ctx); err != nil {
		c.fail(err)
		return
	}

	if c.opts.IsInitiator && c.opts.RingTimeout > 0 {
		c.ringTimer = time.NewTimer(c.opts.RingTimeout)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := c.transport.Events()

	for {
		var ringC, exitC <-chan time.Time
		if c.ringTimer != nil {
			ringC = c.ringTimer.C
		}
		if c.exitTimer != nil {
			exitC = c.exitTimer.C
		}

		select {
		case <-ctx.Done():
			c.setErr(errors.Wrap(errors.ErrCodeSessionClosed, "session context cancelled", ctx.Err()))
			c.finish()
			return

		case record := <-c.snapshots:
			c.handleSnapshot(record)

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleTransportEvent(ev)

		case o := <-c.ops:
			o.errc <- o.fn()

		case <-ticker.C:
			c.state.Tick(time.Second)

		case <-ringC:
			c.ringTimer = nil
			c.handleRingTimeout()

		case <-exitC:
			c.finish()
			return
		}
	}
}

// setup runs the ordered session setup sequence. Device failures
// degrade the session; token, join and publish failures abort it.
func (c *Coordinator) setup(ctx context.Context) error {
	localSID := c.reconciler.LocalSessionID()

	tok, err := c.tokens.FetchToken(ctx, c.opts.SessionID, localSID)
	if err != nil {
		return err
	}

	if err := c.transport.Join(ctx, c.opts.SessionID, tok, localSID); err != nil {
		return err
	}

	if err := c.capture.AcquireAudio(ctx); err != nil {
		if !errors.IsDeviceError(err) {
			return err
		}
		c.logger.Warn("Continuing without microphone", logger.Err(err))
	}

	if audio := c.capture.Audio(); audio != nil {
		if err := c.transport.Publish(ctx, audio.Track()); err != nil {
			return err
		}
	}

	if c.opts.Kind == signaling.KindVideo {
		if err := c.capture.AcquireVideo(ctx); err != nil {
			if !errors.IsDeviceError(err) {
				return err
			}
			c.logger.Warn("Continuing audio-only", logger.Err(err))
		}

		if video := c.capture.Video(); video != nil {
			publishSrc := capture.VideoSource(video)
			if c.opts.TransformEnabled && c.transforms.Available() {
				if wrapped, stage, err := c.wrapVideo(video); err == nil {
					publishSrc = wrapped
					c.stage = stage
					c.setTransformOn(true)
				}
			}

			if err := c.transport.Publish(ctx, publishSrc.Track()); err != nil {
				return err
			}
		}
	}

	c.writeLocalState(ctx)

	c.logger.Info("Session setup complete",
		logger.String("session_id", c.opts.SessionID),
		logger.Uint32("local_sid", localSID),
	)

	return nil
}

// wrapVideo constructs a transform stage around the raw camera source.
// Any failure falls back to raw video and is never fatal.
func (c *Coordinator) wrapVideo(video capture.VideoSource) (capture.VideoSource, transform.Stage, error) {
	stage, err := c.transforms.NewStage()
	if err != nil {
		c.logger.Warn("Transform unavailable, publishing raw video", logger.Err(err))
		return nil, nil, err
	}

	if err := stage.SetParameter(transform.ParamSmoothing, c.opts.DefaultSmoothing); err != nil {
		stage.Dispose()
		return nil, nil, err
	}

	wrapped, err := stage.Wrap(video)
	if err != nil {
		stage.Dispose()
		c.logger.Warn("Transform wrap failed, publishing raw video", logger.Err(err))
		return nil, nil, err
	}

	return wrapped, stage, nil
}

// handleSnapshot merges a signaling snapshot into the view and reacts
// to lifecycle transitions
func (c *Coordinator) handleSnapshot(record *signaling.SessionRecord) {
	c.mu.Lock()
	c.hostID = record.HostID
	c.mu.Unlock()

	c.reconciler.ApplySnapshot(record, c.localMuted(), c.localCameraOff())

	if !c.state.Observe(record.Status) {
		return
	}

	c.logger.Info("Session status changed",
		logger.String("session_id", c.opts.SessionID),
		logger.String("status", string(record.Status)),
	)

	switch {
	case record.Status == signaling.StatusActive || record.Status == signaling.StatusOpen:
		c.stopRingTimer()

	case record.Status.Terminal():
		c.stopRingTimer()
		c.teardown()
		c.scheduleExit()
	}
}

// handleTransportEvent routes one transport event into the reconciler
func (c *Coordinator) handleTransportEvent(ev transport.Event) {
	switch e := ev.(type) {
	case transport.PeerPublished:
		c.reconciler.ApplyPeerPublished(e)
	case transport.PeerLeft:
		c.reconciler.ApplyPeerLeft(e)
	case transport.VolumeLevels:
		c.reconciler.ApplyVolumeLevels(e)
	}
}

// handleRingTimeout marks an unanswered call missed. Only fires on the
// initiator side; the terminal snapshot then drives teardown.
func (c *Coordinator) handleRingTimeout() {
	if c.state.Status() != signaling.StatusRinging {
		return
	}

	c.logger.Info("Call rang out", logger.String("session_id", c.opts.SessionID))

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := c.signals.WriteStatus(ctx, c.opts.SessionID, signaling.StatusMissed); err != nil {
		c.logger.Warn("Missed-status write failed", logger.Err(err))
		c.teardown()
		c.scheduleExit()
	}
}

// ToggleMute flips the local mute state and mirrors it to signaling.
// Returns the new mute state. A missing microphone is an error.
func (c *Coordinator) ToggleMute(ctx context.Context) (bool, error) {
	var muted bool
	err := c.do(func() error {
		if !c.capture.MicAvailable() {
			return errors.New(errors.ErrCodeMicUnavailable, "no microphone to toggle")
		}

		muted = !c.capture.IsMuted()
		c.capture.SetMuted(muted)
		c.reconciler.SetLocalState(muted, c.localCameraOff())
		c.writeLocalState(ctx)
		return nil
	})
	return muted, err
}

// ToggleCamera flips the local camera state and mirrors it to
// signaling. Returns the new camera-off state. A missing camera is an
// error.
func (c *Coordinator) ToggleCamera(ctx context.Context) (bool, error) {
	var cameraOff bool
	err := c.do(func() error {
		if !c.capture.CameraAvailable() {
			return errors.New(errors.ErrCodeCameraUnavailable, "no camera to toggle")
		}

		cameraOff = !c.capture.IsCameraOff()
		c.capture.SetCameraEnabled(!cameraOff)
		c.reconciler.SetLocalState(c.localMuted(), cameraOff)
		c.writeLocalState(ctx)
		return nil
	})
	return cameraOff, err
}

// HangUp ends a one-to-one call. A callee hanging up while the call is
// still ringing declines it; every other case ends it. Local media is
// torn down immediately; Done fires after the exit delay.
func (c *Coordinator) HangUp(ctx context.Context) error {
	return c.do(func() error {
		status := signaling.StatusEnded
		if c.state.Status() == signaling.StatusRinging && !c.opts.IsInitiator {
			status = signaling.StatusDeclined
		}

		if err := c.signals.WriteStatus(ctx, c.opts.SessionID, status); err != nil {
			c.logger.Warn("Hang-up status write failed", logger.Err(err))
		}
		c.state.Observe(status)

		c.teardown()
		c.scheduleExit()
		return nil
	})
}

// Leave exits a room. The host ends the room for everyone; any other
// participant withdraws their declaration and leaves the rest running.
func (c *Coordinator) Leave(ctx context.Context) error {
	return c.do(func() error {
		if c.IsHost() {
			if err := c.signals.WriteStatus(ctx, c.opts.SessionID, signaling.StatusEnded); err != nil {
				c.logger.Warn("Room end write failed", logger.Err(err))
			}
			c.state.Observe(signaling.StatusEnded)
		} else {
			if err := c.signals.RemoveParticipant(ctx, c.opts.SessionID, c.opts.Local.ID); err != nil {
				c.logger.Warn("Participant removal write failed", logger.Err(err))
			}
		}

		c.teardown()
		c.scheduleExit()
		return nil
	})
}

// SetTransformParameter adjusts a parameter on the active transform
// stage
func (c *Coordinator) SetTransformParameter(name string, value float64) error {
	return c.do(func() error {
		if c.stage == nil {
			return errors.New(errors.ErrCodeNoCredential, "no active transform stage")
		}
		return c.stage.SetParameter(name, value)
	})
}

// SetTransformEnabled turns the video transform on or off, republishing
// the local tracks through the new pipeline
func (c *Coordinator) SetTransformEnabled(ctx context.Context, enabled bool) error {
	return c.do(func() error {
		if enabled == c.isTransformOn() {
			return nil
		}

		video := c.capture.Video()
		if video == nil {
			return errors.New(errors.ErrCodeCameraUnavailable, "no camera to transform")
		}

		if err := c.transport.Unpublish(ctx); err != nil {
			return err
		}

		if c.stage != nil {
			c.stage.Dispose()
			c.stage = nil
		}
		c.setTransformOn(false)

		publishSrc := capture.VideoSource(video)
		if enabled {
			if !c.transforms.Available() {
				return errors.New(errors.ErrCodeNoCredential, "transform provider credential is absent")
			}
			if wrapped, stage, err := c.wrapVideo(video); err == nil {
				publishSrc = wrapped
				c.stage = stage
				c.setTransformOn(true)
			}
		}

		if audio := c.capture.Audio(); audio != nil {
			if err := c.transport.Publish(ctx, audio.Track(), publishSrc.Track()); err != nil {
				return err
			}
		} else if err := c.transport.Publish(ctx, publishSrc.Track()); err != nil {
			return err
		}

		return nil
	})
}

// Close ends the session whichever kind it is: one-to-one calls hang
// up, room hosts end the room, other room members withdraw. Safe to
// call on an already-finished session.
func (c *Coordinator) Close(ctx context.Context) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	if c.opts.IsRoom {
		return c.Leave(ctx)
	}
	return c.HangUp(ctx)
}

// do marshals a control operation onto the coordinator goroutine
func (c *Coordinator) do(fn func() error) error {
	o := op{fn: fn, errc: make(chan error, 1)}

	select {
	case c.ops <- o:
	case <-c.done:
		return errors.New(errors.ErrCodeSessionClosed, "session already closed")
	}

	select {
	case err := <-o.errc:
		return err
	case <-c.done:
		return errors.New(errors.ErrCodeSessionClosed, "session already closed")
	}
}

// writeLocalState mirrors the local mute and camera state into the
// session record. Best effort; the local view already holds the truth.
func (c *Coordinator) writeLocalState(ctx context.Context) {
	muted := c.localMuted()
	cameraOff := c.localCameraOff()

	update := signaling.ParticipantStateUpdate{
		IsMuted:     &muted,
		IsCameraOff: &cameraOff,
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := c.signals.WriteParticipantState(wctx, c.opts.SessionID, c.opts.Local.ID, update); err != nil {
		c.logger.Warn("Participant state write failed", logger.Err(err))
	}
}

// stopRingTimer disarms the ring timeout once the call is answered
func (c *Coordinator) stopRingTimer() {
	if c.ringTimer != nil {
		c.ringTimer.Stop()
		c.ringTimer = nil
	}
}

// scheduleExit arms the exit delay before Done fires
func (c *Coordinator) scheduleExit() {
	if c.exitTimer != nil {
		return
	}
	delay := c.opts.ExitDelay
	if delay < 0 {
		delay = 0
	}
	c.exitTimer = time.NewTimer(delay)
}

// teardown releases every session resource. Idempotent; every exit
// path runs it.
func (c *Coordinator) teardown() {
	c.teardownOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}

		c.capture.Release()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := c.transport.Unpublish(ctx); err != nil {
			c.logger.Warn("Unpublish on teardown failed", logger.Err(err))
		}
		cancel()
		c.transport.Leave()

		if c.stage != nil {
			c.stage.Dispose()
			c.stage = nil
		}

		c.logger.Info("Session torn down",
			logger.String("session_id", c.opts.SessionID),
		)
	})
}

// fail aborts setup. The best-effort exit write follows the same rules
// as a deliberate hang-up or leave: a room guest only withdraws their
// declaration and never touches the room status, a room host ends the
// room, a callee whose call is still ringing declines it.
func (c *Coordinator) fail(err error) {
	c.setErr(err)

	c.logger.Error("Session setup failed",
		logger.String("session_id", c.opts.SessionID),
		logger.Err(err),
	)

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if c.opts.IsRoom && !c.opts.IsRoomHost {
		if werr := c.signals.RemoveParticipant(ctx, c.opts.SessionID, c.opts.Local.ID); werr != nil {
			c.logger.Warn("Participant removal write failed", logger.Err(werr))
		}
	} else {
		status := signaling.StatusEnded
		if !c.opts.IsRoom && c.state.Status() == signaling.StatusRinging && !c.opts.IsInitiator {
			status = signaling.StatusDeclined
		}
		if werr := c.signals.WriteStatus(ctx, c.opts.SessionID, status); werr != nil {
			c.logger.Warn("Exit-status write failed", logger.Err(werr))
		}
		c.state.Observe(status)
	}

	c.finish()
}

// finish tears down and signals Done
func (c *Coordinator) finish() {
	c.teardown()
	c.doneOnce.Do(func() { close(c.done) })
}

// localMuted folds device availability into the mute state: a missing
// microphone always presents as muted
func (c *Coordinator) localMuted() bool {
	return c.capture.IsMuted() || !c.capture.MicAvailable()
}

// localCameraOff folds device availability into the camera state
func (c *Coordinator) localCameraOff() bool {
	return c.capture.IsCameraOff() || !c.capture.CameraAvailable()
}

func (c *Coordinator) setTransformOn(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transformOn = on
}

func (c *Coordinator) isTransformOn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transformOn
}

func (c *Coordinator) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

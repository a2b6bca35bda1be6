// Package voxlink is the client SDK for Voxlink calls and rooms. It
// wires the signaling service, token provider, capture devices and
// media transport into session coordinators, holding at most one
// active session at a time.
package voxlink

import (
	"context"
	"sync"

	"github.com/voxlink/voxlink/pkg/capture"
	"github.com/voxlink/voxlink/pkg/config"
	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
	"github.com/voxlink/voxlink/pkg/session"
	"github.com/voxlink/voxlink/pkg/signaling"
	"github.com/voxlink/voxlink/pkg/token"
	"github.com/voxlink/voxlink/pkg/transform"
	"github.com/voxlink/voxlink/pkg/transport"
)

// ClientFactory constructs a fresh transport client for one session.
// Clients are never reused across sessions.
type ClientFactory func() transport.Client

// Session is the coordinator handle returned by the session starters
type Session = session.Coordinator

// SDK is the main Voxlink SDK instance
type SDK struct {
	config  *config.Config
	logger  logger.Logger
	signals signaling.Service
	tokens  token.Provider
	devices capture.DeviceProvider
	clients ClientFactory

	// mu protects concurrent access
	mu     sync.Mutex
	active *session.Coordinator
}

// New creates a new Voxlink SDK instance
func New(cfg *config.Config, signals signaling.Service, tokens token.Provider, devices capture.DeviceProvider, clients ClientFactory) (*SDK, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid configuration", err)
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	log := logger.NewDefaultLogger(logLevel, cfg.Logging.Format)

	return &SDK{
		config:  cfg,
		logger:  log,
		signals: signals,
		tokens:  tokens,
		devices: devices,
		clients: clients,
	}, nil
}

// Logger exposes the SDK logger for embedders
func (s *SDK) Logger() logger.Logger {
	return s.logger
}

// StartCall creates a one-to-one call to target and starts the local
// session. The call rings until the target answers, declines, or the
// ring timeout marks it missed.
func (s *SDK) StartCall(ctx context.Context, local, target signaling.ParticipantDeclared, kind signaling.SessionKind) (*session.Coordinator, error) {
	sessionID, err := s.signals.CreateCall(ctx, local, target, kind)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, sessionID, local, kind, true, false, false)
}

// AnswerCall accepts an incoming call and starts the local session
func (s *SDK) AnswerCall(ctx context.Context, sessionID string, local signaling.ParticipantDeclared, kind signaling.SessionKind) (*session.Coordinator, error) {
	if err := s.signals.WriteStatus(ctx, sessionID, signaling.StatusActive); err != nil {
		return nil, err
	}

	return s.startSession(ctx, sessionID, local, kind, false, false, false)
}

// DeclineCall declines an incoming call without starting a session
func (s *SDK) DeclineCall(ctx context.Context, sessionID string) error {
	return s.signals.WriteStatus(ctx, sessionID, signaling.StatusDeclined)
}

// CreateRoom creates a room hosted by the local participant and starts
// the local session
func (s *SDK) CreateRoom(ctx context.Context, host signaling.ParticipantDeclared, kind signaling.SessionKind) (*session.Coordinator, error) {
	sessionID, err := s.signals.CreateRoom(ctx, host, kind)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, sessionID, host, kind, false, true, true)
}

// JoinRoom declares the local participant on an existing room and
// starts the local session. Newcomers start muted with the camera on.
func (s *SDK) JoinRoom(ctx context.Context, sessionID string, local signaling.ParticipantDeclared, kind signaling.SessionKind) (*session.Coordinator, error) {
	if err := s.signals.AppendParticipant(ctx, sessionID, local); err != nil {
		return nil, err
	}

	return s.startSession(ctx, sessionID, local, kind, false, true, false)
}

// ActiveSession returns the current session coordinator, or nil
func (s *SDK) ActiveSession() *session.Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// startSession closes any previous session, builds a fresh per-session
// stack and starts its coordinator. Devices are acquired only after
// the previous session released them.
func (s *SDK) startSession(ctx context.Context, sessionID string, local signaling.ParticipantDeclared, kind signaling.SessionKind, isInitiator, isRoom, isRoomHost bool) (*session.Coordinator, error) {
	s.mu.Lock()
	prev := s.active
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(ctx); err != nil {
			s.logger.Warn("Closing previous session failed", logger.Err(err))
		}
		select {
		case <-prev.Done():
		case <-ctx.Done():
			return nil, errors.Wrap(errors.ErrCodeSessionClosed, "waiting for previous session", ctx.Err())
		}
	}

	captureMgr := capture.NewManager(s.devices, s.logger)
	transportSess := transport.NewSession(
		s.clients(),
		s.config.Transport.AppID,
		s.config.Transport.SubscribeTimeout,
		s.config.Transport.EventBuffer,
		s.logger,
	)
	transforms := transform.NewProvider(s.config.Transform.ClientToken, s.logger)

	coord := session.NewCoordinator(s.signals, s.tokens, captureMgr, transportSess, transforms, session.Options{
		SessionID:        sessionID,
		Local:            local,
		Kind:             kind,
		IsInitiator:      isInitiator,
		IsRoom:           isRoom,
		IsRoomHost:       isRoomHost,
		RingTimeout:      s.config.Session.RingTimeout,
		ExitDelay:        s.config.Session.ExitDelay,
		TransformEnabled: transforms.Available(),
		DefaultSmoothing: s.config.Transform.DefaultSmoothing,
	}, s.logger)

	if err := coord.Start(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.active = coord
	s.mu.Unlock()

	s.logger.Info("Session started",
		logger.String("session_id", sessionID),
		logger.String("kind", string(kind)),
	)

	return coord, nil
}

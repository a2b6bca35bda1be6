// Package signaling models the remote session store: the authoritative
// SessionRecord, its lifecycle transitions, and the services that read,
// mutate and stream it. Membership truth lives here; the media
// transport only carries presence.
package signaling

import "context"

// SnapshotFunc receives consistent record snapshots. Callbacks for one
// subscription are invoked sequentially, never concurrently, and each
// snapshot is safe for the receiver to retain.
type SnapshotFunc func(record *SessionRecord)

// Service is the full read/write contract against the session store
type Service interface {
	// CreateCall creates a one-to-one call in the ringing status and
	// returns the new session id. The initiator and target become the
	// declared participants in that order.
	CreateCall(ctx context.Context, initiator, target ParticipantDeclared, kind SessionKind) (string, error)

	// CreateRoom creates a multi-party room in the open status with the
	// host as its first declared participant
	CreateRoom(ctx context.Context, host ParticipantDeclared, kind SessionKind) (string, error)

	// Subscribe streams record snapshots for sessionID to fn, starting
	// with the current record. The returned cancel function stops the
	// stream and is safe to call more than once.
	Subscribe(ctx context.Context, sessionID string, fn SnapshotFunc) (func(), error)

	// WriteStatus transitions the session status. Invalid transitions
	// are rejected; writes onto a terminal status fail.
	WriteStatus(ctx context.Context, sessionID string, status SessionStatus) error

	// WriteParticipantState applies a partial state update to one
	// declared participant. Unknown participants are rejected.
	WriteParticipantState(ctx context.Context, sessionID, participantID string, update ParticipantStateUpdate) error

	// AppendParticipant declares a new participant on the session. A
	// re-declaration of an existing id updates the state fields in
	// place and keeps the original position.
	AppendParticipant(ctx context.Context, sessionID string, p ParticipantDeclared) error

	// RemoveParticipant withdraws a participant's declaration
	RemoveParticipant(ctx context.Context, sessionID, participantID string) error
}

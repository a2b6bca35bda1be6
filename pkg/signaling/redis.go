package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voxlink/voxlink/pkg/errors"
	"github.com/voxlink/voxlink/pkg/logger"
)

const (
	sessionKeyPrefix = "voxlink:session:"
	snapshotSuffix   = ":snapshots"
)

// RedisService stores session records as JSON values in Redis and
// broadcasts full-record snapshots over pub/sub. Every mutation
// publishes the record it produced, so subscribers always converge on
// the latest state regardless of which writer moved it there.
type RedisService struct {
	client *redis.Client
	logger logger.Logger

	// mu serializes this process's read-modify-write cycles
	mu sync.Mutex
}

// NewRedisService creates a Redis-backed signaling service
func NewRedisService(addr, password string, db int, log logger.Logger) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisService{
		client: client,
		logger: log,
	}
}

// Ping verifies connectivity to Redis
func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection
func (s *RedisService) Close() error {
	return s.client.Close()
}

// CreateCall creates a one-to-one call in the ringing status
func (s *RedisService) CreateCall(ctx context.Context, initiator, target ParticipantDeclared, kind SessionKind) (string, error) {
	record := &SessionRecord{
		ID:           uuid.New().String(),
		Kind:         kind,
		Status:       StatusRinging,
		Participants: []ParticipantDeclared{initiator, target},
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store(ctx, record); err != nil {
		return "", err
	}

	s.logger.Info("Call created",
		logger.String("session_id", record.ID),
		logger.String("kind", string(kind)),
	)

	return record.ID, nil
}

// CreateRoom creates a multi-party room in the open status
func (s *RedisService) CreateRoom(ctx context.Context, host ParticipantDeclared, kind SessionKind) (string, error) {
	record := &SessionRecord{
		ID:           uuid.New().String(),
		Kind:         kind,
		Status:       StatusOpen,
		Participants: []ParticipantDeclared{host},
		HostID:       host.ID,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store(ctx, record); err != nil {
		return "", err
	}

	s.logger.Info("Room created",
		logger.String("session_id", record.ID),
		logger.String("host_id", host.ID),
	)

	return record.ID, nil
}

// Subscribe streams snapshots for sessionID, starting with the current
// record. Snapshots arrive in publish order on a single goroutine.
func (s *RedisService) Subscribe(ctx context.Context, sessionID string, fn SnapshotFunc) (func(), error) {
	current, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	pubsub := s.client.Subscribe(ctx, sessionKeyPrefix+sessionID+snapshotSuffix)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrap(errors.ErrCodeSignalingSubscribe, "subscribe to session snapshots failed", err)
	}

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}

	go func() {
		fn(current)

		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var record SessionRecord
				if err := json.Unmarshal([]byte(msg.Payload), &record); err != nil {
					s.logger.Warn("Dropping malformed session snapshot",
						logger.String("session_id", sessionID),
						logger.Err(err),
					)
					continue
				}
				fn(&record)
			}
		}
	}()

	return cancel, nil
}

// WriteStatus transitions the session status
func (s *RedisService) WriteStatus(ctx context.Context, sessionID string, status SessionStatus) error {
	return s.mutate(ctx, sessionID, func(record *SessionRecord) error {
		if !ValidTransition(record.Status, status) {
			return errors.NewInvalidTransitionError(string(record.Status), string(status))
		}
		record.Status = status
		return nil
	})
}

// WriteParticipantState applies a partial state update to one
// declared participant
func (s *RedisService) WriteParticipantState(ctx context.Context, sessionID, participantID string, update ParticipantStateUpdate) error {
	return s.mutate(ctx, sessionID, func(record *SessionRecord) error {
		for i := range record.Participants {
			if record.Participants[i].ID != participantID {
				continue
			}
			if update.IsMuted != nil {
				record.Participants[i].IsMuted = *update.IsMuted
			}
			if update.IsCameraOff != nil {
				record.Participants[i].IsCameraOff = *update.IsCameraOff
			}
			return nil
		}
		return errors.New(errors.ErrCodeSignalingWrite, "participant not declared on session: "+participantID)
	})
}

// AppendParticipant declares a new participant on the session
func (s *RedisService) AppendParticipant(ctx context.Context, sessionID string, p ParticipantDeclared) error {
	return s.mutate(ctx, sessionID, func(record *SessionRecord) error {
		for i := range record.Participants {
			if record.Participants[i].ID == p.ID {
				record.Participants[i].IsMuted = p.IsMuted
				record.Participants[i].IsCameraOff = p.IsCameraOff
				return nil
			}
		}
		record.Participants = append(record.Participants, p)
		return nil
	})
}

// RemoveParticipant withdraws a participant's declaration
func (s *RedisService) RemoveParticipant(ctx context.Context, sessionID, participantID string) error {
	return s.mutate(ctx, sessionID, func(record *SessionRecord) error {
		for i := range record.Participants {
			if record.Participants[i].ID == participantID {
				record.Participants = append(record.Participants[:i], record.Participants[i+1:]...)
				return nil
			}
		}
		return nil
	})
}

// load reads and decodes a session record
func (s *RedisService) load(ctx context.Context, sessionID string) (*SessionRecord, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, errors.NewSessionNotFoundError(sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignalingSubscribe, "read session record failed", err)
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(errors.ErrCodeSignalingSubscribe, "decode session record failed", err)
	}
	return &record, nil
}

// store writes a record and publishes it as a snapshot
func (s *RedisService) store(ctx context.Context, record *SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSignalingWrite, "encode session record failed", err)
	}

	key := sessionKeyPrefix + record.ID
	if err := s.client.Set(ctx, key, data, 0).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeSignalingWrite, "write session record failed", err)
	}
	if err := s.client.Publish(ctx, key+snapshotSuffix, data).Err(); err != nil {
		return errors.Wrap(errors.ErrCodeSignalingWrite, "publish session snapshot failed", err)
	}
	return nil
}

// mutate runs a read-modify-write cycle on one record
func (s *RedisService) mutate(ctx context.Context, sessionID string, apply func(*SessionRecord) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := apply(record); err != nil {
		return err
	}
	return s.store(ctx, record)
}

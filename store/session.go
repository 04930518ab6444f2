package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Session holds per-conversation state. It is owned exclusively by the
// orchestrator; capability agents only ever see a read-only view.
// Sessions are never deleted here: retention is an external policy decision.
type Session struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Language     string    `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	// TurnCount equals the number of completed (validated) turns.
	TurnCount int `json:"turn_count"`

	// Clarifications counts clarification requests issued for ambiguous
	// input, capped by the orchestrator's max-clarifications policy.
	Clarifications int `json:"clarifications,omitempty"`

	// Scratch is turn-scoped working state, e.g. the partially collected
	// complaint fields of a multi-turn complaint intake.
	Scratch map[string]string `json:"scratch,omitempty"`
}

// NewSession creates a session for its first turn.
func NewSession(id, userID, language string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:           id,
		UserID:       userID,
		Language:     language,
		CreatedAt:    now,
		LastActivity: now,
	}
}

// Clone returns a deep copy. The orchestrator mutates only the copy and
// commits it after the turn validates, so a failed turn leaves no trace.
func (s *Session) Clone() *Session {
	dup := *s
	if s.Scratch != nil {
		dup.Scratch = make(map[string]string, len(s.Scratch))
		for k, v := range s.Scratch {
			dup.Scratch[k] = v
		}
	}
	return &dup
}

// GetSession loads a session by id. Returns ErrNotFound for unknown ids.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	raw, err := s.driver.Get(ctx, PartitionSession, id)
	if err != nil {
		return nil, err
	}
	sess := &Session{}
	if err := json.Unmarshal(raw, sess); err != nil {
		return nil, errors.Wrapf(err, "decode session %q", id)
	}
	return sess, nil
}

// UpsertSession writes the session. Writes for one session id are expected
// to be serialized by the caller; the front end serializes turns per thread.
func (s *Store) UpsertSession(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrapf(err, "encode session %q", sess.ID)
	}
	return s.driver.Put(ctx, PartitionSession, sess.ID, raw)
}

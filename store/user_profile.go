package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Fact is a single extracted attribute with the extraction confidence that
// produced it. Confidence decides merge precedence, not display.
type Fact struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// ProfileUpdates is the set of facts a capability agent proposes after a
// turn. Agents never write profiles directly; the orchestrator applies
// updates through MergeProfile.
type ProfileUpdates map[string]Fact

// UserProfile holds durable per-user facts extracted across conversations.
type UserProfile struct {
	UserID      string          `json:"user_id"`
	Attributes  map[string]Fact `json:"attributes"`
	LastUpdated time.Time       `json:"last_updated"`
}

// GetUserProfile loads the profile for a user. Returns ErrNotFound when the
// user has no profile yet; profiles are created lazily on first merge.
func (s *Store) GetUserProfile(ctx context.Context, userID string) (*UserProfile, error) {
	raw, err := s.driver.Get(ctx, PartitionProfile, userID)
	if err != nil {
		return nil, err
	}
	p := &UserProfile{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.Wrapf(err, "decode profile %q", userID)
	}
	return p, nil
}

// MergeProfile applies proposed updates to a user profile atomically.
// The read-modify-write cycle is serialized per user id, so concurrent turns
// from different sessions of the same user cannot lose updates. Merge rules:
// unknown keys are added; an existing key is replaced only when the new fact
// has equal or higher confidence. The merge is idempotent.
func (s *Store) MergeProfile(ctx context.Context, userID string, updates ProfileUpdates) (*UserProfile, error) {
	if userID == "" || len(updates) == 0 {
		return nil, nil
	}

	mu := s.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	p, err := s.GetUserProfile(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		p = &UserProfile{UserID: userID, Attributes: make(map[string]Fact)}
	} else if err != nil {
		return nil, err
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]Fact)
	}

	changed := false
	for key, fact := range updates {
		existing, ok := p.Attributes[key]
		if ok && fact.Confidence < existing.Confidence {
			continue
		}
		if ok && existing == fact {
			continue
		}
		p.Attributes[key] = fact
		changed = true
	}
	if !changed {
		return p, nil
	}

	p.LastUpdated = time.Now().UTC()
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "encode profile %q", userID)
	}
	if err := s.driver.Put(ctx, PartitionProfile, userID, raw); err != nil {
		return nil, err
	}
	return p, nil
}

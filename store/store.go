// Package store provides persistence for sessions, user profiles, and
// complaint records behind a small key-value driver boundary.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: not found")

// Partition names used by the typed accessors.
const (
	PartitionSession        = "session"
	PartitionProfile        = "profile"
	PartitionComplaintIndex = "complaint"
	complaintCityPrefix     = "complaint/"
)

// Driver is the raw key-value boundary all storage engines implement.
// Values are opaque JSON documents. Query returns every value in a partition
// matching the given CEL filter expression; an empty filter matches all.
type Driver interface {
	Get(ctx context.Context, partition, key string) ([]byte, error)
	Put(ctx context.Context, partition, key string, value []byte) error
	Query(ctx context.Context, partition, filter string) ([][]byte, error)
	Close() error
}

// Store provides typed access to all persisted objects.
// Profile merges for the same user id are serialized through per-user locks
// so concurrent sessions of one user cannot lose updates.
type Store struct {
	driver Driver

	userMu    sync.Mutex
	userLocks map[string]*sync.Mutex
}

// New creates a new instance of Store.
func New(driver Driver) *Store {
	return &Store{
		driver:    driver,
		userLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Store) Driver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// userLock returns the mutex guarding read-modify-write cycles for a user id.
func (s *Store) userLock(userID string) *sync.Mutex {
	s.userMu.Lock()
	defer s.userMu.Unlock()
	mu, ok := s.userLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		s.userLocks[userID] = mu
	}
	return mu
}

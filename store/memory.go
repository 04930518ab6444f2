package store

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryDriver is an in-memory Driver for development and tests.
// Entries never expire; the process lifetime is the retention policy.
type memoryDriver struct {
	cache *gocache.Cache
}

// NewMemoryDriver creates an in-memory store driver.
func NewMemoryDriver() Driver {
	return &memoryDriver{
		cache: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
}

func memKey(partition, key string) string {
	return partition + "\x00" + key
}

func (d *memoryDriver) Get(_ context.Context, partition, key string) ([]byte, error) {
	v, ok := d.cache.Get(memKey(partition, key))
	if !ok {
		return nil, ErrNotFound
	}
	raw := v.([]byte)
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (d *memoryDriver) Put(_ context.Context, partition, key string, value []byte) error {
	dup := make([]byte, len(value))
	copy(dup, value)
	d.cache.Set(memKey(partition, key), dup, gocache.NoExpiration)
	return nil
}

func (d *memoryDriver) Query(_ context.Context, partition, filter string) ([][]byte, error) {
	prefix := partition + "\x00"
	var values [][]byte
	for key, item := range d.cache.Items() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		raw := item.Object.([]byte)
		dup := make([]byte, len(raw))
		copy(dup, raw)
		values = append(values, dup)
	}
	return ApplyFilter(filter, values)
}

func (d *memoryDriver) Close() error {
	d.cache.Flush()
	return nil
}

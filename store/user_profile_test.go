package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeProfileCreatesLazily(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	_, err := s.GetUserProfile(ctx, "u1")
	require.ErrorIs(t, err, ErrNotFound)

	p, err := s.MergeProfile(ctx, "u1", ProfileUpdates{
		"location": {Value: "Springfield", Confidence: 0.9},
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Springfield", p.Attributes["location"].Value)
	assert.False(t, p.LastUpdated.IsZero())
}

func TestMergeProfileConfidencePrecedence(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	_, err := s.MergeProfile(ctx, "u1", ProfileUpdates{
		"location": {Value: "Springfield", Confidence: 0.9},
	})
	require.NoError(t, err)

	// Lower confidence must not replace an existing fact.
	p, err := s.MergeProfile(ctx, "u1", ProfileUpdates{
		"location": {Value: "Shelbyville", Confidence: 0.5},
		"language": {Value: "es", Confidence: 0.8},
	})
	require.NoError(t, err)
	assert.Equal(t, "Springfield", p.Attributes["location"].Value)
	assert.Equal(t, "es", p.Attributes["language"].Value)

	// Equal or higher confidence replaces.
	p, err = s.MergeProfile(ctx, "u1", ProfileUpdates{
		"location": {Value: "Shelbyville", Confidence: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, "Shelbyville", p.Attributes["location"].Value)
}

func TestMergeProfileIdempotent(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	updates := ProfileUpdates{
		"name":     {Value: "Alice", Confidence: 0.7},
		"location": {Value: "Boston", Confidence: 0.8},
	}

	first, err := s.MergeProfile(ctx, "u1", updates)
	require.NoError(t, err)
	second, err := s.MergeProfile(ctx, "u1", updates)
	require.NoError(t, err)

	assert.Equal(t, first.Attributes, second.Attributes)
}

func TestMergeProfileNoopInputs(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	p, err := s.MergeProfile(ctx, "", ProfileUpdates{"k": {Value: "v", Confidence: 1}})
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.MergeProfile(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestMergeProfileConcurrentSameUser(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		key := string(rune('a' + i))
		go func() {
			defer func() { done <- struct{}{} }()
			_, err := s.MergeProfile(ctx, "u1", ProfileUpdates{
				key: {Value: key, Confidence: 0.5},
			})
			assert.NoError(t, err)
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	p, err := s.GetUserProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, p.Attributes, 8)
}

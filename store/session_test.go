package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	_, err := s.GetSession(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)

	sess := NewSession("t1", "u1", "es")
	sess.Scratch = map[string]string{"complaint.city": "Springfield"}
	require.NoError(t, s.UpsertSession(ctx, sess))

	got, err := s.GetSession(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "es", got.Language)
	assert.Equal(t, 0, got.TurnCount)
	assert.Equal(t, "Springfield", got.Scratch["complaint.city"])
}

func TestSessionCloneIsDeep(t *testing.T) {
	sess := NewSession("t1", "u1", "en")
	sess.Scratch = map[string]string{"k": "v"}

	dup := sess.Clone()
	dup.TurnCount = 5
	dup.Scratch["k"] = "changed"

	assert.Equal(t, 0, sess.TurnCount)
	assert.Equal(t, "v", sess.Scratch["k"])
}

func TestFilterMatch(t *testing.T) {
	f, err := CompileFilter(`value.status == "pendiente"`)
	require.NoError(t, err)

	assert.True(t, f.Match([]byte(`{"status":"pendiente"}`)))
	assert.False(t, f.Match([]byte(`{"status":"resuelto"}`)))
	assert.False(t, f.Match([]byte(`not json`)))

	// Nil filter matches everything.
	var nilFilter *Filter
	assert.True(t, nilFilter.Match([]byte(`{}`)))
}

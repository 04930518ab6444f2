package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutComplaintFillsDefaults(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	c := &Complaint{
		TrackingID:  "trk-1",
		Category:    "infraestructura",
		Description: "pothole on Main St",
		Severity:    "high",
		City:        "Springfield",
	}
	require.NoError(t, s.PutComplaint(ctx, c))

	got, err := s.GetComplaint(ctx, "trk-1")
	require.NoError(t, err)
	assert.Equal(t, ComplaintStatusPending, got.Status)
	assert.Equal(t, "municipio", got.Entity)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestPutComplaintRequiresTrackingID(t *testing.T) {
	s := New(NewMemoryDriver())
	err := s.PutComplaint(context.Background(), &Complaint{City: "Springfield"})
	assert.Error(t, err)
}

func TestQueryComplaintsByCityWithFilter(t *testing.T) {
	s := New(NewMemoryDriver())
	ctx := context.Background()

	seed := []*Complaint{
		{TrackingID: "a", City: "Springfield", Category: "seguridad", Severity: "high"},
		{TrackingID: "b", City: "Springfield", Category: "servicios", Severity: "low"},
		{TrackingID: "c", City: "Shelbyville", Category: "seguridad", Severity: "high"},
	}
	for _, c := range seed {
		require.NoError(t, s.PutComplaint(ctx, c))
	}

	all, err := s.QueryComplaints(ctx, "springfield", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	urgent, err := s.QueryComplaints(ctx, "Springfield", `value.severity == "high"`)
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	assert.Equal(t, "a", urgent[0].TrackingID)
}

func TestQueryComplaintsBadFilter(t *testing.T) {
	s := New(NewMemoryDriver())
	_, err := s.QueryComplaints(context.Background(), "Springfield", "value.severity ==")
	assert.Error(t, err)
}

func TestResponsibleEntity(t *testing.T) {
	tests := []struct {
		category string
		want     string
	}{
		{"seguridad", "policia"},
		{"Safety", "policia"},
		{"corrupcion", "procuraduria"},
		{"servicios", "municipio"},
		{"infraestructura", "municipio"},
		{"otro", "municipio"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResponsibleEntity(tt.category), tt.category)
	}
}

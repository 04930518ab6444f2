package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Complaint statuses.
const (
	ComplaintStatusPending  = "pendiente"
	ComplaintStatusInReview = "en_revision"
	ComplaintStatusResolved = "resuelto"
)

// Complaint is a submitted citizen complaint record.
type Complaint struct {
	TrackingID  string    `json:"tracking_id"`
	UserID      string    `json:"user_id,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
	Severity    string    `json:"severity"` // high, medium, low
	City        string    `json:"city"`
	Address     string    `json:"address,omitempty"`
	Status      string    `json:"status"`
	Entity      string    `json:"entity"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResponsibleEntity maps a complaint category to the entity that handles it.
func ResponsibleEntity(category string) string {
	switch strings.ToLower(category) {
	case "seguridad", "safety":
		return "policia"
	case "corrupcion", "corruption":
		return "procuraduria"
	case "servicios", "services", "infraestructura", "infrastructure":
		return "municipio"
	default:
		return "municipio"
	}
}

func complaintCityPartition(city string) string {
	return complaintCityPrefix + strings.ToLower(strings.TrimSpace(city))
}

// PutComplaint persists a complaint under its city partition and under the
// tracking-id index, so both per-city queries and status lookups work.
func (s *Store) PutComplaint(ctx context.Context, c *Complaint) error {
	if c.TrackingID == "" {
		return errors.New("complaint requires a tracking id")
	}
	if c.Status == "" {
		c.Status = ComplaintStatusPending
	}
	if c.Entity == "" {
		c.Entity = ResponsibleEntity(c.Category)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode complaint %q", c.TrackingID)
	}
	if err := s.driver.Put(ctx, complaintCityPartition(c.City), c.TrackingID, raw); err != nil {
		return err
	}
	return s.driver.Put(ctx, PartitionComplaintIndex, c.TrackingID, raw)
}

// GetComplaint looks up a complaint by tracking id.
func (s *Store) GetComplaint(ctx context.Context, trackingID string) (*Complaint, error) {
	raw, err := s.driver.Get(ctx, PartitionComplaintIndex, trackingID)
	if err != nil {
		return nil, err
	}
	c := &Complaint{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrapf(err, "decode complaint %q", trackingID)
	}
	return c, nil
}

// QueryComplaints lists complaints for a city, optionally narrowed by a CEL
// filter such as `value.severity == "high"`.
func (s *Store) QueryComplaints(ctx context.Context, city, filter string) ([]*Complaint, error) {
	values, err := s.driver.Query(ctx, complaintCityPartition(city), filter)
	if err != nil {
		return nil, err
	}
	out := make([]*Complaint, 0, len(values))
	for _, raw := range values {
		c := &Complaint{}
		if err := json.Unmarshal(raw, c); err != nil {
			return nil, errors.Wrap(err, "decode complaint")
		}
		out = append(out, c)
	}
	return out, nil
}

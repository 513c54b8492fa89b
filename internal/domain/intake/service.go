package intake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// Service is the intake workflow: accept a submission from the public
// form, list and review it, project it for EMR import, and export it.
type Service struct {
	store  Store
	logger zerolog.Logger

	now   func() time.Time
	newID func() string
}

func NewService(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  newSubmissionID,
	}
}

// newSubmissionID builds a millisecond timestamp plus random suffix.
// Timestamp first keeps file and index order chronological.
func newSubmissionID() string {
	var b [3]byte
	rand.Read(b[:])
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), hex.EncodeToString(b[:]))
}

// Submit accepts a raw intake payload from the patient-facing form.
// Client metadata is captured server-side; the payload is stored as
// received so review always sees what the patient declared.
func (s *Service) Submit(ctx context.Context, payload json.RawMessage, client Client) (*Submission, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("intake: payload must be a JSON object")
	}

	sub := &Submission{
		SubmissionID: s.newID(),
		ReceivedAt:   s.now().UTC(),
		Status:       StatusSubmitted,
		Payload:      payload,
		Client:       client,
	}
	meta, _ := doc["metadata"].(map[string]interface{})
	if hr, _ := meta["highRisk"].(bool); hr {
		sub.HighRisk = true
	}

	if err := s.store.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("submission_id", sub.SubmissionID).
		Bool("high_risk", sub.HighRisk).
		Str("client_ip", client.IP).
		Msg("received patient intake submission")
	return sub, nil
}

// Get loads one submission by id or unique id prefix.
func (s *Service) Get(ctx context.Context, id string) (*Submission, error) {
	return s.store.Get(ctx, id)
}

// List returns submissions matching the filter, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Submission, error) {
	return s.store.List(ctx, f)
}

// UpdateStatus advances the review lifecycle. Backward transitions are
// rejected by the store.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("intake: unknown status %q", status)
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	s.logger.Info().
		Str("submission_id", id).
		Str("status", string(status)).
		Msg("updated intake submission status")
	return nil
}

// Materialize projects one submission onto the EMR import structures.
func (s *Service) Materialize(ctx context.Context, id string) (*Materialized, error) {
	sub, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Materialize(sub, s.now().UTC())
}

// Export writes the filtered submissions as CSV and reports the row
// count.
func (s *Service) Export(ctx context.Context, f Filter, w io.Writer) (int, error) {
	subs, err := s.store.List(ctx, f)
	if err != nil {
		return 0, err
	}
	if err := ExportCSV(w, subs); err != nil {
		return 0, err
	}
	return len(subs), nil
}

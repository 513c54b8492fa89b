package mrn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dokterdibya/clinic/internal/platform/db"
)

// Service owns MR-ID allocation and clinic record creation. Counter
// mutation goes exclusively through the Allocator; the rest of the system
// only ever reads allocated identifiers.
type Service struct {
	allocator Allocator
	records   RecordRepository
	tx        TxRunner
	logger    zerolog.Logger
}

func NewService(allocator Allocator, records RecordRepository, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		allocator: allocator,
		records:   records,
		tx:        tx,
		logger:    logger,
	}
}

// Allocate draws the next MR ID for a category.
func (s *Service) Allocate(ctx context.Context, category Category) (*Allocation, error) {
	alloc, err := s.allocator.Allocate(ctx, category)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("mr_id", alloc.MrID).
		Str("category", string(alloc.Category)).
		Int("sequence", alloc.Sequence).
		Msg("allocated MR ID")
	return alloc, nil
}

// CreateRecordParams describes a clinic record creation request. Category
// may be empty when IntakeDoc is supplied; it is then resolved from the
// intake with the obstetri default as last resort.
type CreateRecordParams struct {
	PatientID     string
	AppointmentID *int64
	Category      Category
	IntakeDoc     map[string]interface{}
	CreatedBy     *int64
}

// CreateRecord creates a clinic record with a freshly allocated MR ID.
// Creation is idempotent per appointment: if a record already exists for
// the appointment it is returned with created=false and no identifier is
// spent. Allocation and insert run in one transaction so a failed insert
// cannot leak a sequence gap from a partially applied unit of work.
func (s *Service) CreateRecord(ctx context.Context, p CreateRecordParams) (rec *Record, created bool, err error) {
	if p.PatientID == "" {
		return nil, false, fmt.Errorf("patient_id is required")
	}

	category := p.Category
	if category == "" && p.IntakeDoc != nil {
		var explicit bool
		category, explicit = ResolveCategory(p.IntakeDoc, s.logger)
		if explicit {
			s.logger.Info().
				Str("patient_id", p.PatientID).
				Str("category", string(category)).
				Msg("auto-determined MR category from intake data")
		}
	}
	if category == "" || !category.Valid() {
		category = CategoryObstetri
		s.logger.Warn().
			Str("patient_id", p.PatientID).
			Msg("using default MR category: obstetri")
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if p.AppointmentID != nil {
			existing, ferr := s.records.GetByAppointment(ctx, *p.AppointmentID)
			if ferr == nil {
				rec = existing
				created = false
				return nil
			}
			if !errors.Is(ferr, ErrNotFound) {
				return ferr
			}
		}

		alloc, aerr := s.allocator.Allocate(ctx, category)
		if aerr != nil {
			return aerr
		}

		newRec := &Record{
			MrID:          alloc.MrID,
			Category:      alloc.Category,
			Sequence:      alloc.Sequence,
			PatientID:     p.PatientID,
			AppointmentID: p.AppointmentID,
			FolderPath:    "sunday-clinic/" + strings.ToLower(alloc.MrID),
			Status:        "draft",
			CreatedBy:     p.CreatedBy,
		}
		if cerr := s.records.Create(ctx, newRec); cerr != nil {
			return cerr
		}
		rec = newRec
		created = true
		return nil
	})
	if err != nil {
		// A concurrent request for the same appointment can win the insert
		// race between our existence check and Create. Surface the winner.
		if p.AppointmentID != nil && db.IsUniqueViolation(err) {
			existing, ferr := s.records.GetByAppointment(ctx, *p.AppointmentID)
			if ferr == nil {
				return existing, false, nil
			}
		}
		s.logger.Error().Err(err).
			Str("patient_id", p.PatientID).
			Msg("failed to create clinic record")
		return nil, false, err
	}

	if created {
		s.logger.Info().
			Str("mr_id", rec.MrID).
			Str("category", string(rec.Category)).
			Int("sequence", rec.Sequence).
			Str("patient_id", rec.PatientID).
			Msg("created clinic record")
	}
	return rec, created, nil
}

// GetByMrID fetches a record by its medical record identifier.
func (s *Service) GetByMrID(ctx context.Context, mrID string) (*Record, error) {
	if !MrIDPattern.MatchString(mrID) {
		return nil, fmt.Errorf("malformed mr_id: %q", mrID)
	}
	return s.records.GetByMrID(ctx, mrID)
}

// GetByAppointment fetches the record attached to an appointment.
func (s *Service) GetByAppointment(ctx context.Context, appointmentID int64) (*Record, error) {
	return s.records.GetByAppointment(ctx, appointmentID)
}

// Finalize moves a draft record to finalized. Sequences are never
// reclaimed: voiding or finalizing a record leaves its counter untouched.
func (s *Service) Finalize(ctx context.Context, mrID string) error {
	return s.records.UpdateStatus(ctx, mrID, "finalized")
}

// Statistics returns per-category record totals and counter values.
func (s *Service) Statistics(ctx context.Context) ([]CategoryStats, error) {
	return s.records.Statistics(ctx)
}

package encounter

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/internal/platform/db"
	"github.com/pediaclinic/clinic/internal/platform/metrics"
)

type Service struct {
	repo   Repository
	tx     db.TxRunner
	logger zerolog.Logger
}

func NewService(repo Repository, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, logger: logger.With().Str("component", "encounter").Logger()}
}

// BookInput is a visit request. AccountID is only honored for staff, who book
// on behalf of a guardian.
type BookInput struct {
	AccountID          *uuid.UUID `json:"account_id"`
	VisitDate          Date       `json:"visit_date"`
	VisitTime          TimeOfDay  `json:"visit_time"`
	Type               string     `json:"encounter_type"`
	Concerns           string     `json:"concerns"`
	AdditionalServices string     `json:"additional_services"`
}

func (s *Service) Book(ctx context.Context, requester auth.Requester, in BookInput) (*Encounter, error) {
	details := map[string]string{}
	if in.VisitDate.IsZero() {
		details["visit_date"] = "required"
	}
	if in.VisitTime.IsZero() {
		details["visit_time"] = "required"
	}
	if strings.TrimSpace(in.Type) == "" {
		details["encounter_type"] = "required"
	}

	owner := requester.AccountID
	if requester.Role.IsStaff() {
		if in.AccountID == nil || *in.AccountID == uuid.Nil {
			details["account_id"] = "required when booking for a patient"
		} else {
			owner = *in.AccountID
		}
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid booking", details)
	}

	enc := &Encounter{
		AccountID:          owner,
		VisitDate:          in.VisitDate,
		VisitTime:          in.VisitTime,
		Type:               strings.TrimSpace(in.Type),
		Status:             StatusPending,
		Concerns:           strings.TrimSpace(in.Concerns),
		AdditionalServices: strings.TrimSpace(in.AdditionalServices),
	}
	if err := s.repo.Create(ctx, enc); err != nil {
		return nil, err
	}
	metrics.RecordEncounterBooked(enc.Type)
	s.logger.Info().Str("encounter_id", enc.ID.String()).Str("account_id", owner.String()).Msg("encounter booked")
	return enc, nil
}

// Get returns the encounter when the requester may see it. Encounters owned
// by someone else look absent to guardians.
func (s *Service) Get(ctx context.Context, requester auth.Requester, id uuid.UUID) (*Encounter, error) {
	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requester.CanAccessAccount(enc.AccountID) {
		return nil, apperr.NotFound("encounter")
	}
	return enc, nil
}

// List returns a page of encounters. Guardians only ever see their own.
func (s *Service) List(ctx context.Context, requester auth.Requester, f Filter, limit, offset int) ([]*Encounter, int, error) {
	if !requester.Role.IsStaff() {
		own := requester.AccountID
		f.AccountID = &own
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, apperr.Validation("invalid date range", map[string]string{"to": "must not be before from"})
	}
	return s.repo.List(ctx, f, limit, offset)
}

// TransitionStatus moves the encounter to the status named by raw and records
// the change. The read, update and history insert share one transaction.
func (s *Service) TransitionStatus(ctx context.Context, requester auth.Requester, id uuid.UUID, raw string) (*Encounter, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, apperr.Validation(err.Error(), map[string]string{"status": "must be one of Pending, Approved, Completed, Canceled"})
	}

	var enc *Encounter
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		enc, err = s.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !enc.Status.CanTransitionTo(next) {
			return apperr.Validation("illegal status transition",
				map[string]string{"status": string(enc.Status) + " cannot move to " + string(next)})
		}
		if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
			return err
		}
		changedBy := requester.AccountID
		if err := s.repo.AddStatusHistory(ctx, &StatusHistory{
			EncounterID: id,
			FromStatus:  enc.Status,
			ToStatus:    next,
			ChangedBy:   &changedBy,
		}); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	from := enc.Status
	enc.Status = next
	metrics.RecordStatusChange(string(from), string(next))
	s.logger.Info().
		Str("encounter_id", id.String()).
		Str("from", string(from)).
		Str("to", string(next)).
		Str("changed_by", requester.AccountID.String()).
		Msg("encounter status changed")
	return enc, nil
}

func (s *Service) StatusHistory(ctx context.Context, id uuid.UUID) ([]*StatusHistory, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetStatusHistory(ctx, id)
}

// RecordInput carries the measurements taken during a visit.
type RecordInput struct {
	Weight      *float64 `json:"weight"`
	Height      *float64 `json:"height"`
	Temperature *float64 `json:"temperature"`
	PulseRate   *int     `json:"pulse_rate"`
	Diagnosis   string   `json:"diagnosis"`
	Remarks     string   `json:"remarks"`
}

func (in RecordInput) validate() map[string]string {
	details := map[string]string{}
	positive := func(field string, v *float64, max float64) {
		if v != nil && (*v <= 0 || *v > max) {
			details[field] = "out of range"
		}
	}
	positive("weight", in.Weight, 9999.99)
	positive("height", in.Height, 9999.99)
	if in.Temperature != nil && (*in.Temperature < 25 || *in.Temperature > 45) {
		details["temperature"] = "out of range"
	}
	if in.PulseRate != nil && (*in.PulseRate <= 0 || *in.PulseRate > 300) {
		details["pulse_rate"] = "out of range"
	}
	return details
}

// SaveRecord creates or replaces the clinical record of a Completed encounter.
func (s *Service) SaveRecord(ctx context.Context, id uuid.UUID, in RecordInput) (*ClinicalRecord, error) {
	if details := in.validate(); len(details) > 0 {
		return nil, apperr.Validation("invalid clinical record", details)
	}

	enc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc.Status != StatusCompleted {
		return nil, apperr.Validation("clinical records can only be entered for completed encounters",
			map[string]string{"status": string(enc.Status)})
	}

	rec := &ClinicalRecord{
		EncounterID: id,
		Weight:      in.Weight,
		Height:      in.Height,
		Temperature: in.Temperature,
		PulseRate:   in.PulseRate,
		Diagnosis:   strings.TrimSpace(in.Diagnosis),
		Remarks:     strings.TrimSpace(in.Remarks),
	}
	if err := s.repo.UpsertRecord(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, requester auth.Requester, id uuid.UUID) (*ClinicalRecord, error) {
	if _, err := s.Get(ctx, requester, id); err != nil {
		return nil, err
	}
	return s.repo.GetRecord(ctx, id)
}

func (s *Service) Delete(ctx context.Context, requester auth.Requester, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Warn().Str("encounter_id", id.String()).Str("deleted_by", requester.AccountID.String()).Msg("encounter deleted")
	return nil
}

// History returns every encounter of accountID with its clinical record.
func (s *Service) History(ctx context.Context, requester auth.Requester, accountID uuid.UUID) ([]*EncounterWithRecord, error) {
	if !requester.CanAccessAccount(accountID) {
		return nil, apperr.Forbidden("cannot read another account's history")
	}
	return s.repo.ListByAccount(ctx, accountID)
}

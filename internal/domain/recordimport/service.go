package recordimport

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/internal/platform/db"
	"github.com/pediaclinic/clinic/internal/platform/metrics"
)

// errNoSources reports that none of the requested ids qualified for import.
var errNoSources = apperr.NotFoundf("no completed encounters with clinical records were selected")

// Service matches and imports records from other accounts.
type Service struct {
	repo       Repository
	encounters EncounterWriter
	tx         db.TxRunner
	logger     zerolog.Logger
}

func NewService(repo Repository, encounters EncounterWriter, tx db.TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		encounters: encounters,
		tx:         tx,
		logger:     logger.With().Str("component", "recordimport").Logger(),
	}
}

// FindImportCandidates returns Completed encounters of other accounts filed
// under the requester's patient name and a matching parent name, newest
// first. Candidates whose signature already exists in the requester's own
// Completed history are flagged IsImported.
func (s *Service) FindImportCandidates(ctx context.Context, requester auth.Requester, motherName, fatherName string) ([]CandidateRecord, error) {
	motherName = strings.TrimSpace(motherName)
	fatherName = strings.TrimSpace(fatherName)
	if motherName == "" && fatherName == "" {
		return nil, apperr.Validation("mother or father name is required", map[string]string{
			"motherName": "provide motherName or fatherName",
			"fatherName": "provide motherName or fatherName",
		})
	}

	fullName, err := s.repo.AccountName(ctx, requester.AccountID)
	if err != nil {
		metrics.RecordImportSearch("error")
		return nil, err
	}

	candidates, err := s.repo.FindCandidates(ctx, MatchQuery{
		RequesterID: requester.AccountID,
		FullName:    fullName,
		MotherName:  motherName,
		FatherName:  fatherName,
	})
	if err != nil {
		metrics.RecordImportSearch("error")
		return nil, err
	}
	if len(candidates) == 0 {
		metrics.RecordImportSearch("none")
		return nil, apperr.NotFoundf("no matching records found")
	}

	own, err := s.repo.OwnSignatures(ctx, requester.AccountID)
	if err != nil {
		metrics.RecordImportSearch("error")
		return nil, err
	}
	MarkImported(candidates, NewSignatureSet(own))

	metrics.RecordImportSearch("found")
	s.logger.Info().
		Str("account_id", requester.AccountID.String()).
		Int("candidates", len(candidates)).
		Msg("import candidates found")
	return candidates, nil
}

// ImportRecords clones the selected encounters and their clinical records
// into the requester's account. Ids that are not Completed or lack a record
// are skipped. Either every clone is written or none is.
func (s *Service) ImportRecords(ctx context.Context, requester auth.Requester, ids []uuid.UUID) (ImportResult, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return ImportResult{}, apperr.Validation("encounterIds must not be empty", map[string]string{"encounterIds": "required"})
	}

	var imported int
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		sources, err := s.repo.LoadSources(ctx, ids)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			return errNoSources
		}
		for _, src := range sources {
			if err := s.clone(ctx, requester.AccountID, src); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, errNoSources) {
			return ImportResult{}, err
		}
		metrics.RecordImportFailure()
		s.logger.Error().Err(err).
			Str("account_id", requester.AccountID.String()).
			Int("requested", len(ids)).
			Msg("record import rolled back")
		return ImportResult{}, apperr.TransactionFailure(err)
	}

	metrics.RecordImported(imported)
	s.logger.Info().
		Str("account_id", requester.AccountID.String()).
		Int("requested", len(ids)).
		Int("imported", imported).
		Msg("records imported")
	return ImportResult{ImportedCount: imported}, nil
}

// clone writes a new Completed encounter owned by owner and a copy of the
// source's clinical record with fresh timestamps.
func (s *Service) clone(ctx context.Context, owner uuid.UUID, src Source) error {
	enc := &encounter.Encounter{
		AccountID:          owner,
		VisitDate:          src.Encounter.VisitDate,
		VisitTime:          src.Encounter.VisitTime,
		Type:               src.Encounter.Type,
		Status:             encounter.StatusCompleted,
		Concerns:           src.Encounter.Concerns,
		AdditionalServices: src.Encounter.AdditionalServices,
	}
	if err := s.encounters.Create(ctx, enc); err != nil {
		return err
	}
	rec := &encounter.ClinicalRecord{
		EncounterID: enc.ID,
		Weight:      src.Record.Weight,
		Height:      src.Record.Height,
		Temperature: src.Record.Temperature,
		PulseRate:   src.Record.PulseRate,
		Diagnosis:   src.Record.Diagnosis,
		Remarks:     src.Record.Remarks,
	}
	return s.encounters.UpsertRecord(ctx, rec)
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

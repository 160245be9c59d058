package recordimport

import (
	"context"

	"github.com/google/uuid"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
)

// Repository is the read side of record import.
type Repository interface {
	// AccountName returns the requester's declared full name.
	AccountName(ctx context.Context, accountID uuid.UUID) (string, error)
	FindCandidates(ctx context.Context, q MatchQuery) ([]CandidateRecord, error)
	// OwnSignatures returns the signatures of the account's Completed encounters.
	OwnSignatures(ctx context.Context, accountID uuid.UUID) ([]Signature, error)
	// LoadSources returns the requested encounters that are Completed and
	// have a clinical record. Other ids are dropped without error.
	LoadSources(ctx context.Context, ids []uuid.UUID) ([]Source, error)
}

// EncounterWriter is the subset of the encounter store the import writes
// through. encounter.Repository satisfies it.
type EncounterWriter interface {
	Create(ctx context.Context, enc *encounter.Encounter) error
	UpsertRecord(ctx context.Context, rec *encounter.ClinicalRecord) error
}

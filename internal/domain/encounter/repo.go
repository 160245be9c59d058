package encounter

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, enc *Encounter) error
	GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Encounter, int, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*EncounterWithRecord, error)

	// Clinical records
	UpsertRecord(ctx context.Context, rec *ClinicalRecord) error
	GetRecord(ctx context.Context, encounterID uuid.UUID) (*ClinicalRecord, error)

	// Status History
	AddStatusHistory(ctx context.Context, sh *StatusHistory) error
	GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusHistory, error)
}

// EncounterWithRecord pairs an encounter with its clinical record, if any.
type EncounterWithRecord struct {
	Encounter
	Record *ClinicalRecord `json:"record,omitempty"`
}

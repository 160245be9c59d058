package recordimport

import (
	"github.com/google/uuid"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
)

// CandidateRecord is a Completed encounter from another account that may
// belong to the requester's patient.
type CandidateRecord struct {
	EncounterID uuid.UUID           `json:"encounterId"`
	Date        encounter.Date      `json:"date"`
	Time        encounter.TimeOfDay `json:"time"`
	Type        string              `json:"type"`
	PatientName string              `json:"patientName"`
	Diagnosis   string              `json:"diagnosis"`
	Weight      *float64            `json:"weight"`
	Height      *float64            `json:"height"`
	IsImported  bool                `json:"isImported"`
}

// MatchQuery selects candidates: same patient name as the requester plus a
// matching mother or father name. Empty parent names match nothing.
type MatchQuery struct {
	RequesterID uuid.UUID
	FullName    string
	MotherName  string
	FatherName  string
}

// Source is an encounter eligible for import together with its record.
type Source struct {
	Encounter encounter.Encounter
	Record    encounter.ClinicalRecord
}

// ImportResult is the outcome of a successful import.
type ImportResult struct {
	ImportedCount int `json:"importedCount"`
}

package recordimport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) AccountName(ctx context.Context, accountID uuid.UUID) (string, error) {
	var name string
	err := r.conn(ctx).QueryRow(ctx, `SELECT full_name FROM accounts WHERE id = $1`, accountID).Scan(&name)
	if err != nil {
		if db.IsNoRows(err) {
			return "", apperr.NotFound("account")
		}
		return "", fmt.Errorf("get account name: %w", err)
	}
	return name, nil
}

// Parent names are compared only when supplied; the service guarantees at
// least one is.
const findCandidatesSQL = `
	SELECT e.id, e.visit_date, e.visit_time, e.encounter_type, a.full_name,
		COALESCE(cr.diagnosis, ''), cr.weight, cr.height
	FROM encounters e
	JOIN accounts a ON a.id = e.account_id
	JOIN guardian_profiles gp ON gp.account_id = a.id
	LEFT JOIN clinical_records cr ON cr.encounter_id = e.id
	WHERE LOWER(TRIM(a.full_name)) = LOWER(TRIM($1::text))
		AND a.id <> $2
		AND e.status = 'Completed'
		AND (
			($3::text <> '' AND LOWER(TRIM(COALESCE(gp.mother_name, ''))) = LOWER(TRIM($3::text)))
			OR ($4::text <> '' AND LOWER(TRIM(COALESCE(gp.father_name, ''))) = LOWER(TRIM($4::text)))
		)
	ORDER BY e.visit_date DESC, e.visit_time DESC`

func (r *repoPG) FindCandidates(ctx context.Context, q MatchQuery) ([]CandidateRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, findCandidatesSQL, q.FullName, q.RequesterID, q.MotherName, q.FatherName)
	if err != nil {
		return nil, fmt.Errorf("find import candidates: %w", err)
	}
	defer rows.Close()

	var out []CandidateRecord
	for rows.Next() {
		var c CandidateRecord
		if err := rows.Scan(&c.EncounterID, &c.Date, &c.Time, &c.Type, &c.PatientName, &c.Diagnosis, &c.Weight, &c.Height); err != nil {
			return nil, fmt.Errorf("scan import candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) OwnSignatures(ctx context.Context, accountID uuid.UUID) ([]Signature, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT e.visit_date, e.visit_time, e.encounter_type, COALESCE(cr.diagnosis, '')
		FROM encounters e
		LEFT JOIN clinical_records cr ON cr.encounter_id = e.id
		WHERE e.account_id = $1 AND e.status = 'Completed'`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list own signatures: %w", err)
	}
	defer rows.Close()

	var sigs []Signature
	for rows.Next() {
		var (
			date      encounter.Date
			tod       encounter.TimeOfDay
			typ, diag string
		)
		if err := rows.Scan(&date, &tod, &typ, &diag); err != nil {
			return nil, fmt.Errorf("scan own signature: %w", err)
		}
		sigs = append(sigs, SignatureOf(date, tod, typ, diag))
	}
	return sigs, rows.Err()
}

func (r *repoPG) LoadSources(ctx context.Context, ids []uuid.UUID) ([]Source, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT e.id, e.account_id, e.visit_date, e.visit_time, e.encounter_type, e.status,
			e.concerns, e.additional_services, e.created_at, e.updated_at,
			cr.encounter_id, cr.weight, cr.height, cr.temperature, cr.pulse_rate,
			cr.diagnosis, cr.remarks, cr.created_at, cr.updated_at
		FROM encounters e
		JOIN clinical_records cr ON cr.encounter_id = e.id
		WHERE e.id = ANY($1) AND e.status = 'Completed'
		ORDER BY e.visit_date, e.visit_time`, ids)
	if err != nil {
		return nil, fmt.Errorf("load import sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var s Source
		e, rec := &s.Encounter, &s.Record
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.VisitDate, &e.VisitTime, &e.Type, &e.Status,
			&e.Concerns, &e.AdditionalServices, &e.CreatedAt, &e.UpdatedAt,
			&rec.EncounterID, &rec.Weight, &rec.Height, &rec.Temperature, &rec.PulseRate,
			&rec.Diagnosis, &rec.Remarks, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan import source: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

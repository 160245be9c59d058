package encounter

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const encCols = `id, account_id, visit_date, visit_time, encounter_type, status,
	concerns, additional_services, created_at, updated_at`

const recCols = `encounter_id, weight, height, temperature, pulse_rate, diagnosis, remarks, created_at, updated_at`

func (r *repoPG) Create(ctx context.Context, enc *Encounter) error {
	enc.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounters (
			id, account_id, visit_date, visit_time, encounter_type, status,
			concerns, additional_services
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		enc.ID, enc.AccountID, enc.VisitDate, enc.VisitTime, enc.Type, enc.Status,
		enc.Concerns, enc.AdditionalServices,
	).Scan(&enc.CreatedAt, &enc.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("account")
		}
		return fmt.Errorf("insert encounter: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Encounter, error) {
	return scanEnc(r.conn(ctx).QueryRow(ctx, `SELECT `+encCols+` FROM encounters WHERE id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE encounters SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update encounter status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("encounter")
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM encounters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete encounter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("encounter")
	}
	return nil
}

// buildFilter renders f as a WHERE clause with positional args.
func buildFilter(f Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.AccountID != nil {
		add("account_id = $%d", *f.AccountID)
	}
	if f.Status != nil {
		add("status = $%d", *f.Status)
	}
	if !f.From.IsZero() {
		add("visit_date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("visit_date <= $%d", f.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Encounter, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM encounters`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count encounters: %w", err)
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT `+encCols+` FROM encounters%s ORDER BY visit_date DESC, visit_time DESC LIMIT $%d OFFSET $%d`, where, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var encs []*Encounter
	for rows.Next() {
		e, err := scanEnc(rows)
		if err != nil {
			return nil, 0, err
		}
		encs = append(encs, e)
	}
	return encs, total, rows.Err()
}

func (r *repoPG) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*EncounterWithRecord, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT e.id, e.account_id, e.visit_date, e.visit_time, e.encounter_type, e.status,
			e.concerns, e.additional_services, e.created_at, e.updated_at,
			cr.encounter_id, cr.weight, cr.height, cr.temperature, cr.pulse_rate,
			COALESCE(cr.diagnosis, ''), COALESCE(cr.remarks, '')
		FROM encounters e
		LEFT JOIN clinical_records cr ON cr.encounter_id = e.id
		WHERE e.account_id = $1
		ORDER BY e.visit_date DESC, e.visit_time DESC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list account encounters: %w", err)
	}
	defer rows.Close()

	var out []*EncounterWithRecord
	for rows.Next() {
		var (
			ewr   EncounterWithRecord
			recID *uuid.UUID
			rec   ClinicalRecord
		)
		e := &ewr.Encounter
		if err := rows.Scan(
			&e.ID, &e.AccountID, &e.VisitDate, &e.VisitTime, &e.Type, &e.Status,
			&e.Concerns, &e.AdditionalServices, &e.CreatedAt, &e.UpdatedAt,
			&recID, &rec.Weight, &rec.Height, &rec.Temperature, &rec.PulseRate,
			&rec.Diagnosis, &rec.Remarks,
		); err != nil {
			return nil, fmt.Errorf("scan account encounter: %w", err)
		}
		if recID != nil {
			rec.EncounterID = *recID
			ewr.Record = &rec
		}
		out = append(out, &ewr)
	}
	return out, rows.Err()
}

// Clinical records
func (r *repoPG) UpsertRecord(ctx context.Context, rec *ClinicalRecord) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical_records (encounter_id, weight, height, temperature, pulse_rate, diagnosis, remarks)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (encounter_id) DO UPDATE SET
			weight = EXCLUDED.weight, height = EXCLUDED.height,
			temperature = EXCLUDED.temperature, pulse_rate = EXCLUDED.pulse_rate,
			diagnosis = EXCLUDED.diagnosis, remarks = EXCLUDED.remarks,
			updated_at = NOW()
		RETURNING created_at, updated_at`,
		rec.EncounterID, rec.Weight, rec.Height, rec.Temperature, rec.PulseRate, rec.Diagnosis, rec.Remarks,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("encounter")
		}
		return fmt.Errorf("upsert clinical record: %w", err)
	}
	return nil
}

func (r *repoPG) GetRecord(ctx context.Context, encounterID uuid.UUID) (*ClinicalRecord, error) {
	var rec ClinicalRecord
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+recCols+` FROM clinical_records WHERE encounter_id = $1`, encounterID).Scan(
		&rec.EncounterID, &rec.Weight, &rec.Height, &rec.Temperature, &rec.PulseRate,
		&rec.Diagnosis, &rec.Remarks, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("clinical record")
		}
		return nil, fmt.Errorf("get clinical record: %w", err)
	}
	return &rec, nil
}

// Status History
func (r *repoPG) AddStatusHistory(ctx context.Context, sh *StatusHistory) error {
	sh.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO encounter_status_history (id, encounter_id, from_status, to_status, changed_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING changed_at`,
		sh.ID, sh.EncounterID, sh.FromStatus, sh.ToStatus, sh.ChangedBy,
	).Scan(&sh.ChangedAt)
	if err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}
	return nil
}

func (r *repoPG) GetStatusHistory(ctx context.Context, encounterID uuid.UUID) ([]*StatusHistory, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, encounter_id, from_status, to_status, changed_by, changed_at
		FROM encounter_status_history WHERE encounter_id = $1 ORDER BY changed_at`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var history []*StatusHistory
	for rows.Next() {
		var sh StatusHistory
		if err := rows.Scan(&sh.ID, &sh.EncounterID, &sh.FromStatus, &sh.ToStatus, &sh.ChangedBy, &sh.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan status history: %w", err)
		}
		history = append(history, &sh)
	}
	return history, rows.Err()
}

func scanEnc(row pgx.Row) (*Encounter, error) {
	var e Encounter
	err := row.Scan(
		&e.ID, &e.AccountID, &e.VisitDate, &e.VisitTime, &e.Type, &e.Status,
		&e.Concerns, &e.AdditionalServices, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("encounter")
		}
		return nil, fmt.Errorf("scan encounter: %w", err)
	}
	return &e, nil
}

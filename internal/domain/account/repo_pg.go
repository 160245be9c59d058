package account

import (
	"context"
	"fmt"
	"time"

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

const accountCols = `id, full_name, email, password_hash, role, email_verified_at, created_at, updated_at`

const profileCols = `account_id, mother_name, father_name, guardian_name, contact_number,
	emergency_contact, address, blood_type, chronic_conditions, allergies, updated_at`

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO accounts (id, full_name, email, password_hash, role)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		a.ID, a.FullName, a.Email, a.PasswordHash, a.Role,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return apperr.Conflict("an account with this email already exists")
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(r.conn(ctx).QueryRow(ctx,
		`SELECT `+accountCols+` FROM accounts WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *repoPG) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE accounts SET email_verified_at = COALESCE(email_verified_at, $2), updated_at = NOW()
		WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("mark account verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("account")
	}
	return nil
}

func (r *repoPG) Update(ctx context.Context, a *Account) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE accounts SET full_name = $2, role = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.FullName, a.Role,
	).Scan(&a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return apperr.NotFound("account")
		}
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count accounts: %w", err)
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+accountCols+` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, err
		}
		accounts = append(accounts, a)
	}
	return accounts, total, rows.Err()
}

// Guardian profiles
func (r *repoPG) GetProfile(ctx context.Context, accountID uuid.UUID) (*GuardianProfile, error) {
	var p GuardianProfile
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+profileCols+` FROM guardian_profiles WHERE account_id = $1`, accountID).Scan(
		&p.AccountID, &p.MotherName, &p.FatherName, &p.GuardianName, &p.ContactNumber,
		&p.EmergencyContact, &p.Address, &p.BloodType, &p.ChronicConditions, &p.Allergies, &p.UpdatedAt,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("guardian profile")
		}
		return nil, fmt.Errorf("get guardian profile: %w", err)
	}
	return &p, nil
}

func (r *repoPG) UpsertProfile(ctx context.Context, p *GuardianProfile) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO guardian_profiles (`+profileCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			mother_name = EXCLUDED.mother_name, father_name = EXCLUDED.father_name,
			guardian_name = EXCLUDED.guardian_name, contact_number = EXCLUDED.contact_number,
			emergency_contact = EXCLUDED.emergency_contact, address = EXCLUDED.address,
			blood_type = EXCLUDED.blood_type, chronic_conditions = EXCLUDED.chronic_conditions,
			allergies = EXCLUDED.allergies, updated_at = NOW()
		RETURNING updated_at`,
		p.AccountID, p.MotherName, p.FatherName, p.GuardianName, p.ContactNumber,
		p.EmergencyContact, p.Address, p.BloodType, p.ChronicConditions, p.Allergies,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("account")
		}
		return fmt.Errorf("upsert guardian profile: %w", err)
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.FullName, &a.Email, &a.PasswordHash, &a.Role, &a.EmailVerifiedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, apperr.NotFound("account")
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

// Package auditlog persists the access entries produced by the audit
// middleware and serves them back to administrators.
package auditlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pediaclinic/clinic/internal/platform/middleware"
)

const writeTimeout = 5 * time.Second

// Entry is a stored access record.
type Entry struct {
	ID         uuid.UUID  `json:"id"`
	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	Role       string     `json:"role"`
	Resource   string     `json:"resource"`
	ResourceID string     `json:"resource_id,omitempty"`
	Action     string     `json:"action"`
	Method     string     `json:"method"`
	Path       string     `json:"path"`
	IPAddress  string     `json:"ip_address"`
	RequestID  string     `json:"request_id"`
	StatusCode int        `json:"status_code"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	AccountID *uuid.UUID
	Resource  string
	Action    string
	Since     time.Time
	Until     time.Time
}

// Store writes to and reads from the access_log table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// RecordAccess implements middleware.AuditRecorder. The write is detached
// from the request context so a finished request still gets logged.
func (s *Store) RecordAccess(e middleware.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	var accountID *uuid.UUID
	if id, err := uuid.Parse(e.AccountID); err == nil {
		accountID = &id
	}
	recorded := e.Timestamp
	if recorded.IsZero() {
		recorded = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO access_log (
			account_id, role, resource, resource_id, action, method, path,
			ip_address, request_id, status_code, recorded_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		accountID, e.Role, e.Resource, e.ResourceID, e.Action, e.Method, e.Path,
		e.IPAddress, e.RequestID, e.StatusCode, recorded,
	)
	if err != nil {
		return fmt.Errorf("auditlog: insert: %w", err)
	}
	return nil
}

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
	if f.Resource != "" {
		add("resource = $%d", f.Resource)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if !f.Since.IsZero() {
		add("recorded_at >= $%d", f.Since)
	}
	if !f.Until.IsZero() {
		add("recorded_at < $%d", f.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// List returns matching entries, newest first, and the total match count.
func (s *Store) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where, args := buildFilter(f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM access_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("auditlog: count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, account_id, role, resource, resource_id, action, method, path,
			ip_address, request_id, status_code, recorded_at
		FROM access_log%s
		ORDER BY recorded_at DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	rows, err := s.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("auditlog: list: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.AccountID, &e.Role, &e.Resource, &e.ResourceID, &e.Action,
		&e.Method, &e.Path, &e.IPAddress, &e.RequestID, &e.StatusCode, &e.RecordedAt)
	if err != nil {
		return nil, fmt.Errorf("auditlog: scan: %w", err)
	}
	return &e, nil
}

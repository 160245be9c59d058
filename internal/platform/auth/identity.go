package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleGuardian  Role = "guardian"
	RoleClinician Role = "clinician"
	RoleFrontdesk Role = "frontdesk"
	RoleAdmin     Role = "admin"
)

// ParseRole normalizes s case-insensitively to a known role.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleGuardian, RoleClinician, RoleFrontdesk, RoleAdmin:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// IsStaff reports whether the role belongs to clinic personnel.
func (r Role) IsStaff() bool {
	switch r {
	case RoleClinician, RoleFrontdesk, RoleAdmin:
		return true
	case RoleGuardian:
		return false
	}
	return false
}

func (r Role) String() string { return string(r) }

// Requester is the verified identity behind a request. It is only built from
// a validated access token, never from request fields.
type Requester struct {
	AccountID uuid.UUID
	Role      Role
}

// Owns reports whether the requester is the account with the given id.
func (r Requester) Owns(accountID uuid.UUID) bool {
	return r.AccountID == accountID
}

// CanAccessAccount reports whether the requester may read data owned by
// accountID: staff may read everything, guardians only their own.
func (r Requester) CanAccessAccount(accountID uuid.UUID) bool {
	return r.Role.IsStaff() || r.Owns(accountID)
}

type contextKey string

const requesterKey contextKey = "requester"

// WithRequester stores r in ctx.
func WithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, requesterKey, r)
}

// RequesterFromContext returns the verified requester, if any.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	r, ok := ctx.Value(requesterKey).(Requester)
	return r, ok
}

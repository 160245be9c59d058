package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	Update(ctx context.Context, a *Account) error
	List(ctx context.Context, limit, offset int) ([]*Account, int, error)

	// Guardian profiles
	GetProfile(ctx context.Context, accountID uuid.UUID) (*GuardianProfile, error)
	UpsertProfile(ctx context.Context, p *GuardianProfile) error
}

package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/internal/platform/cache"
	"github.com/pediaclinic/clinic/internal/platform/db"
	"github.com/pediaclinic/clinic/internal/platform/metrics"
)

const minPasswordLength = 8

// VerificationTokens issues and redeems single-use email verification tokens.
type VerificationTokens interface {
	Issue(ctx context.Context, accountID uuid.UUID) (string, error)
	Consume(ctx context.Context, token string) (uuid.UUID, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(accountID uuid.UUID, role auth.Role) (string, time.Time, error)
}

type Service struct {
	repo     Repository
	tx       db.TxRunner
	tokens   VerificationTokens
	issuer   TokenIssuer
	notifier Notifier
	logger   zerolog.Logger
	hashCost int
	now      func() time.Time
}

func NewService(repo Repository, tx db.TxRunner, tokens VerificationTokens, issuer TokenIssuer, notifier Notifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tx:       tx,
		tokens:   tokens,
		issuer:   issuer,
		notifier: notifier,
		logger:   logger.With().Str("component", "account").Logger(),
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

type RegisterInput struct {
	FullName string           `json:"full_name"`
	Email    string           `json:"email"`
	Password string           `json:"password"`
	Profile  *GuardianProfile `json:"profile"`
}

// Register creates a guardian account and its profile in one transaction,
// then sends a verification token. The account cannot log in until verified.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	details := map[string]string{}
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.TrimSpace(in.Email)
	if in.FullName == "" {
		details["full_name"] = "required"
	}
	if _, err := mail.ParseAddress(in.Email); err != nil || in.Email == "" {
		details["email"] = "must be a valid email address"
	}
	if len(in.Password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, apperr.Validation("invalid registration", details)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	a := &Account{
		FullName:     in.FullName,
		Email:        strings.ToLower(in.Email),
		PasswordHash: string(hash),
		Role:         auth.RoleGuardian,
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, a); err != nil {
			return err
		}
		profile := in.Profile
		if profile == nil {
			profile = &GuardianProfile{}
		}
		profile.AccountID = a.ID
		return s.repo.UpsertProfile(ctx, normalizeProfile(profile))
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordAccountRegistered()

	token, err := s.tokens.Issue(ctx, a.ID)
	if err != nil {
		// The account exists; the holder can ask for a new token later.
		s.logger.Error().Err(err).Str("account_id", a.ID.String()).Msg("issue verification token")
		return a, nil
	}
	if err := s.notifier.SendVerification(ctx, a, token); err != nil {
		s.logger.Error().Err(err).Str("account_id", a.ID.String()).Msg("send verification")
	}
	return a, nil
}

// ResendVerification issues a fresh token for an unverified account.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	a, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return err
	}
	if a.IsVerified() {
		return apperr.Conflict("email already verified")
	}
	token, err := s.tokens.Issue(ctx, a.ID)
	if err != nil {
		return apperr.Internal(err)
	}
	return s.notifier.SendVerification(ctx, a, token)
}

func (s *Service) Verify(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation("token is required", map[string]string{"token": "required"})
	}
	id, err := s.tokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, cache.ErrTokenNotFound) {
			return apperr.Validation("invalid or expired verification token", nil)
		}
		return apperr.Internal(err)
	}
	if err := s.repo.MarkVerified(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info().Str("account_id", id.String()).Msg("email verified")
	return nil
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Account     *Account  `json:"account"`
}

func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	invalid := apperr.Unauthorized("invalid email or password")

	a, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, invalid
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)); err != nil {
		return nil, invalid
	}
	if !a.IsVerified() {
		return nil, apperr.Forbidden("email address has not been verified")
	}

	token, exp, err := s.issuer.Issue(a.ID, a.Role)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return &LoginResult{AccessToken: token, TokenType: "Bearer", ExpiresAt: exp, Account: a}, nil
}

func (s *Service) Me(ctx context.Context, requester auth.Requester) (*Me, error) {
	a, err := s.repo.GetByID(ctx, requester.AccountID)
	if err != nil {
		return nil, err
	}
	me := &Me{Account: *a}
	p, err := s.repo.GetProfile(ctx, a.ID)
	switch {
	case err == nil:
		me.Profile = p
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	return me, nil
}

func (s *Service) SaveProfile(ctx context.Context, requester auth.Requester, p *GuardianProfile) (*GuardianProfile, error) {
	p.AccountID = requester.AccountID
	if p.BloodType != nil && !validBloodType(*p.BloodType) {
		return nil, apperr.Validation("invalid profile", map[string]string{"blood_type": "must be one of A+, A-, B+, B-, AB+, AB-, O+, O-"})
	}
	if err := s.repo.UpsertProfile(ctx, normalizeProfile(p)); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	return s.repo.List(ctx, limit, offset)
}

type UpdateInput struct {
	FullName *string `json:"full_name"`
	Role     *string `json:"role"`
}

// Update changes an account's name or role. An admin cannot demote themself.
func (s *Service) Update(ctx context.Context, requester auth.Requester, id uuid.UUID, in UpdateInput) (*Account, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FullName != nil {
		name := strings.TrimSpace(*in.FullName)
		if name == "" {
			return nil, apperr.Validation("invalid update", map[string]string{"full_name": "must not be empty"})
		}
		a.FullName = name
	}
	if in.Role != nil {
		role, err := auth.ParseRole(*in.Role)
		if err != nil {
			return nil, apperr.Validation(err.Error(), map[string]string{"role": "must be one of guardian, clinician, frontdesk, admin"})
		}
		if requester.Owns(id) && role != auth.RoleAdmin {
			return nil, apperr.Validation("administrators cannot demote themselves", nil)
		}
		a.Role = role
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("account_id", id.String()).
		Str("role", a.Role.String()).
		Str("changed_by", requester.AccountID.String()).
		Msg("account updated")
	return a, nil
}

func validBloodType(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-":
		return true
	}
	return false
}

// normalizeProfile trims every field and turns blanks into NULLs.
func normalizeProfile(p *GuardianProfile) *GuardianProfile {
	for _, f := range []**string{
		&p.MotherName, &p.FatherName, &p.GuardianName, &p.ContactNumber,
		&p.EmergencyContact, &p.Address, &p.BloodType, &p.ChronicConditions, &p.Allergies,
	} {
		if *f == nil {
			continue
		}
		v := strings.TrimSpace(**f)
		if v == "" {
			*f = nil
			continue
		}
		*f = &v
	}
	if p.BloodType != nil {
		bt := strings.ToUpper(*p.BloodType)
		p.BloodType = &bt
	}
	return p
}

package account

import (
	"time"

	"github.com/google/uuid"

	"github.com/pediaclinic/clinic/internal/platform/auth"
)

// Account maps to the accounts table.
type Account struct {
	ID              uuid.UUID  `json:"id"`
	FullName        string     `json:"full_name"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	Role            auth.Role  `json:"role"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (a *Account) IsVerified() bool { return a.EmailVerifiedAt != nil }

// GuardianProfile maps to the guardian_profiles table.
type GuardianProfile struct {
	AccountID         uuid.UUID `json:"account_id"`
	MotherName        *string   `json:"mother_name,omitempty"`
	FatherName        *string   `json:"father_name,omitempty"`
	GuardianName      *string   `json:"guardian_name,omitempty"`
	ContactNumber     *string   `json:"contact_number,omitempty"`
	EmergencyContact  *string   `json:"emergency_contact,omitempty"`
	Address           *string   `json:"address,omitempty"`
	BloodType         *string   `json:"blood_type,omitempty"`
	ChronicConditions *string   `json:"chronic_conditions,omitempty"`
	Allergies         *string   `json:"allergies,omitempty"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Me is an account together with its profile.
type Me struct {
	Account
	Profile *GuardianProfile `json:"profile,omitempty"`
}

package encounter

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Status is the lifecycle state of an encounter.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusApproved  Status = "Approved"
	StatusCompleted Status = "Completed"
	StatusCanceled  Status = "Canceled"
)

// ParseStatus maps free-text input onto a canonical status, ignoring case and
// surrounding whitespace. "cancelled" is accepted for Canceled.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "completed":
		return StatusCompleted, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	}
	return "", fmt.Errorf("invalid status %q", s)
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusApproved || next == StatusCanceled
	case StatusApproved:
		return next == StatusCompleted || next == StatusCanceled
	case StatusCompleted, StatusCanceled:
		return false
	}
	return false
}

func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusCanceled:
		return true
	case StatusPending, StatusApproved:
		return false
	}
	return false
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Date is a calendar day with no time zone, stored in a DATE column.
type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool       { return d.t.IsZero() }
func (d Date) Time() time.Time    { return d.t }
func (d Date) String() string     { return d.t.Format(dateLayout) }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Date{}
		return nil
	}
	*d = DateOf(v.Time)
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	return pgtype.Date{Time: d.t, Valid: !d.IsZero()}, nil
}

// TimeOfDay is a wall-clock time truncated to whole seconds, stored in a
// TIME column.
type TimeOfDay struct {
	secs int32
	set  bool
}

func NewTimeOfDay(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid time %02d:%02d:%02d", hour, minute, second)
	}
	return TimeOfDay{secs: int32(hour*3600 + minute*60 + second), set: true}, nil
}

// ParseTimeOfDay accepts HH:MM:SS or HH:MM.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{timeLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimeOfDay(t.Hour(), t.Minute(), t.Second())
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time %q, want HH:MM:SS", s)
}

func (t TimeOfDay) IsZero() bool { return !t.set }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.secs/3600, t.secs/60%60, t.secs%60)
}

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.secs < o.secs }

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == `""` {
		*t = TimeOfDay{}
		return nil
	}
	parsed, err := ParseTimeOfDay(strings.Trim(s, `"`))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ScanTime implements pgtype.TimeScanner. Sub-second precision is dropped.
func (t *TimeOfDay) ScanTime(v pgtype.Time) error {
	if !v.Valid {
		*t = TimeOfDay{}
		return nil
	}
	*t = TimeOfDay{secs: int32(v.Microseconds / 1_000_000), set: true}
	return nil
}

// TimeValue implements pgtype.TimeValuer.
func (t TimeOfDay) TimeValue() (pgtype.Time, error) {
	return pgtype.Time{Microseconds: int64(t.secs) * 1_000_000, Valid: t.set}, nil
}

// Encounter maps to the encounters table.
type Encounter struct {
	ID                 uuid.UUID `json:"id"`
	AccountID          uuid.UUID `json:"account_id"`
	VisitDate          Date      `json:"visit_date"`
	VisitTime          TimeOfDay `json:"visit_time"`
	Type               string    `json:"encounter_type"`
	Status             Status    `json:"status"`
	Concerns           string    `json:"concerns"`
	AdditionalServices string    `json:"additional_services"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ClinicalRecord maps to the clinical_records table. Measurements are
// optional; the primary key is the owning encounter's id.
type ClinicalRecord struct {
	EncounterID uuid.UUID `json:"encounter_id"`
	Weight      *float64  `json:"weight,omitempty"`
	Height      *float64  `json:"height,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	PulseRate   *int      `json:"pulse_rate,omitempty"`
	Diagnosis   string    `json:"diagnosis"`
	Remarks     string    `json:"remarks"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusHistory maps to the encounter_status_history table.
type StatusHistory struct {
	ID          uuid.UUID  `json:"id"`
	EncounterID uuid.UUID  `json:"encounter_id"`
	FromStatus  Status     `json:"from_status"`
	ToStatus    Status     `json:"to_status"`
	ChangedBy   *uuid.UUID `json:"changed_by,omitempty"`
	ChangedAt   time.Time  `json:"changed_at"`
}

// Filter narrows encounter listings. Zero values match everything.
type Filter struct {
	AccountID *uuid.UUID
	Status    *Status
	From      Date
	To        Date
}

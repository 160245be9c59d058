package recordimport

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auth"
)

type memAccount struct {
	fullName   string
	motherName string
	fatherName string
}

// memStore implements Repository and EncounterWriter over maps.
type memStore struct {
	accounts   map[uuid.UUID]memAccount
	encounters map[uuid.UUID]*encounter.Encounter
	records    map[uuid.UUID]*encounter.ClinicalRecord

	creates      int
	failOnCreate int // fail the n-th Create, 1-based; 0 never fails
	createErr    error
	failOnRecord int
	recordWrites int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[uuid.UUID]memAccount),
		encounters: make(map[uuid.UUID]*encounter.Encounter),
		records:    make(map[uuid.UUID]*encounter.ClinicalRecord),
	}
}

func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func (m *memStore) AccountName(_ context.Context, id uuid.UUID) (string, error) {
	a, ok := m.accounts[id]
	if !ok {
		return "", apperr.NotFound("account")
	}
	return a.fullName, nil
}

func (m *memStore) FindCandidates(_ context.Context, q MatchQuery) ([]CandidateRecord, error) {
	var out []CandidateRecord
	for _, e := range m.encounters {
		a := m.accounts[e.AccountID]
		if e.AccountID == q.RequesterID || e.Status != encounter.StatusCompleted {
			continue
		}
		if norm(a.fullName) != norm(q.FullName) {
			continue
		}
		motherOK := q.MotherName != "" && norm(a.motherName) == norm(q.MotherName)
		fatherOK := q.FatherName != "" && norm(a.fatherName) == norm(q.FatherName)
		if !motherOK && !fatherOK {
			continue
		}
		c := CandidateRecord{EncounterID: e.ID, Date: e.VisitDate, Time: e.VisitTime, Type: e.Type, PatientName: a.fullName}
		if rec, ok := m.records[e.ID]; ok {
			c.Diagnosis, c.Weight, c.Height = rec.Diagnosis, rec.Weight, rec.Height
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[j].Date.Before(out[i].Date)
		}
		return out[j].Time.Before(out[i].Time)
	})
	return out, nil
}

func (m *memStore) OwnSignatures(_ context.Context, accountID uuid.UUID) ([]Signature, error) {
	var sigs []Signature
	for _, e := range m.encounters {
		if e.AccountID != accountID || e.Status != encounter.StatusCompleted {
			continue
		}
		diag := ""
		if rec, ok := m.records[e.ID]; ok {
			diag = rec.Diagnosis
		}
		sigs = append(sigs, SignatureOf(e.VisitDate, e.VisitTime, e.Type, diag))
	}
	return sigs, nil
}

func (m *memStore) LoadSources(_ context.Context, ids []uuid.UUID) ([]Source, error) {
	var out []Source
	for _, id := range ids {
		e, ok := m.encounters[id]
		if !ok || e.Status != encounter.StatusCompleted {
			continue
		}
		rec, ok := m.records[id]
		if !ok {
			continue
		}
		out = append(out, Source{Encounter: *e, Record: *rec})
	}
	return out, nil
}

func (m *memStore) Create(_ context.Context, enc *encounter.Encounter) error {
	m.creates++
	if m.failOnCreate > 0 && m.creates == m.failOnCreate {
		if m.createErr != nil {
			return m.createErr
		}
		return errors.New("insert encounter: connection reset")
	}
	enc.ID = uuid.New()
	enc.CreatedAt = time.Now()
	enc.UpdatedAt = enc.CreatedAt
	cp := *enc
	m.encounters[enc.ID] = &cp
	return nil
}

func (m *memStore) UpsertRecord(_ context.Context, rec *encounter.ClinicalRecord) error {
	m.recordWrites++
	if m.failOnRecord > 0 && m.recordWrites == m.failOnRecord {
		return errors.New("insert clinical record: check violation")
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	cp := *rec
	m.records[rec.EncounterID] = &cp
	return nil
}

// stagingTx applies fn's writes only when it succeeds.
type stagingTx struct {
	store *memStore
}

func (s stagingTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	encs := make(map[uuid.UUID]*encounter.Encounter, len(s.store.encounters))
	for k, v := range s.store.encounters {
		encs[k] = v
	}
	recs := make(map[uuid.UUID]*encounter.ClinicalRecord, len(s.store.records))
	for k, v := range s.store.records {
		recs[k] = v
	}
	if err := fn(ctx); err != nil {
		s.store.encounters, s.store.records = encs, recs
		return err
	}
	return nil
}

type fixture struct {
	svc   *Service
	store *memStore
}

func newFixture() *fixture {
	store := newMemStore()
	return &fixture{
		svc:   NewService(store, store, stagingTx{store: store}, zerolog.Nop()),
		store: store,
	}
}

func (f *fixture) account(fullName, mother, father string) auth.Requester {
	id := uuid.New()
	f.store.accounts[id] = memAccount{fullName: fullName, motherName: mother, fatherName: father}
	return auth.Requester{AccountID: id, Role: auth.RoleGuardian}
}

type visit struct {
	date      encounter.Date
	time      string
	typ       string
	status    encounter.Status
	diagnosis *string
}

func (f *fixture) encounter(t *testing.T, owner auth.Requester, v visit) uuid.UUID {
	t.Helper()
	tv, err := encounter.ParseTimeOfDay(v.time)
	require.NoError(t, err)
	e := &encounter.Encounter{
		ID: uuid.New(), AccountID: owner.AccountID, VisitDate: v.date, VisitTime: tv,
		Type: v.typ, Status: v.status, Concerns: "fever", AdditionalServices: "vaccination",
	}
	f.store.encounters[e.ID] = e
	if v.diagnosis != nil {
		w, h, temp, pulse := 12.5, 85.0, 36.8, 110
		f.store.records[e.ID] = &encounter.ClinicalRecord{
			EncounterID: e.ID, Weight: &w, Height: &h, Temperature: &temp, PulseRate: &pulse,
			Diagnosis: *v.diagnosis, Remarks: "follow up in 6 months",
		}
	}
	return e.ID
}

func diag(s string) *string { return &s }

func (f *fixture) ownedBy(id uuid.UUID) int {
	n := 0
	for _, e := range f.store.encounters {
		if e.AccountID == id {
			n++
		}
	}
	return n
}

func TestFindImportCandidates_ScenarioA(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan Dela Cruz", "", "")
	clinicA := f.account("juan dela cruz ", "Maria Dela Cruz", "Pedro")
	clinicB := f.account("Juan Dela Cruz", " maria dela cruz", "")

	older := f.encounter(t, clinicA, visit{encounter.NewDate(2023, time.June, 5), "10:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	newer := f.encounter(t, clinicB, visit{encounter.NewDate(2024, time.January, 9), "08:30", "Vaccination", encounter.StatusCompleted, diag("")})

	got, err := f.svc.FindImportCandidates(context.Background(), requester, "Maria Dela Cruz", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, newer, got[0].EncounterID)
	assert.Equal(t, older, got[1].EncounterID)
	assert.False(t, got[0].IsImported)
	assert.Equal(t, "Healthy", got[1].Diagnosis)
	require.NotNil(t, got[1].Weight)
	assert.Equal(t, 12.5, *got[1].Weight)
}

func TestFindImportCandidates_ScenarioB(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan Dela Cruz", "Maria Dela Cruz", "")
	other := f.account("Juan Dela Cruz", "Maria Dela Cruz", "")
	day := encounter.NewDate(2024, time.March, 1)

	f.encounter(t, requester, visit{day, "09:00:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	dup := f.encounter(t, other, visit{day, "09:00:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	fresh := f.encounter(t, other, visit{day, "11:00:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})

	got, err := f.svc.FindImportCandidates(context.Background(), requester, "Maria Dela Cruz", "")
	require.NoError(t, err)
	require.Len(t, got, 2)

	flags := map[uuid.UUID]bool{}
	for _, c := range got {
		flags[c.EncounterID] = c.IsImported
	}
	assert.True(t, flags[dup])
	assert.False(t, flags[fresh])
}

func TestFindImportCandidates_OwnPendingDoesNotDedupe(t *testing.T) {
	f := newFixture()
	requester := f.account("Ana", "", "")
	other := f.account("Ana", "", "Jose")
	day := encounter.NewDate(2024, time.March, 1)

	f.encounter(t, requester, visit{day, "09:00", "Checkup", encounter.StatusPending, nil})
	f.encounter(t, other, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("")})

	got, err := f.svc.FindImportCandidates(context.Background(), requester, "", "jose")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsImported)
}

func TestFindImportCandidates_Filters(t *testing.T) {
	f := newFixture()
	requester := f.account("Ana Santos", "Lourdes", "")
	other := f.account("Ana Santos", "Lourdes", "")
	stranger := f.account("Ben Santos", "Lourdes", "")
	wrongParent := f.account("Ana Santos", "Carmen", "")
	day := encounter.NewDate(2024, time.March, 1)

	f.encounter(t, requester, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("")})
	f.encounter(t, other, visit{day, "09:00", "Checkup", encounter.StatusPending, nil})
	f.encounter(t, other, visit{day, "10:00", "Checkup", encounter.StatusCanceled, nil})
	f.encounter(t, stranger, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("")})
	f.encounter(t, wrongParent, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("")})
	match := f.encounter(t, other, visit{day, "11:00", "Checkup", encounter.StatusCompleted, nil})

	got, err := f.svc.FindImportCandidates(context.Background(), requester, "Lourdes", "")
	require.NoError(t, err)
	require.Len(t, got, 1, "only other accounts' Completed encounters with a matching name and parent")
	assert.Equal(t, match, got[0].EncounterID)
	assert.Equal(t, "", got[0].Diagnosis)
	assert.Nil(t, got[0].Weight)
}

func TestFindImportCandidates_Validation(t *testing.T) {
	f := newFixture()
	requester := f.account("Ana", "", "")

	_, err := f.svc.FindImportCandidates(context.Background(), requester, "  ", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestFindImportCandidates_UnknownRequester(t *testing.T) {
	f := newFixture()
	_, err := f.svc.FindImportCandidates(context.Background(), auth.Requester{AccountID: uuid.New()}, "Maria", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFindImportCandidates_NoMatches(t *testing.T) {
	f := newFixture()
	requester := f.account("Ana", "", "")

	_, err := f.svc.FindImportCandidates(context.Background(), requester, "Maria", "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	appErr, _ := apperr.As(err)
	assert.Equal(t, "no matching records found", appErr.Message)
}

func TestImportRecords_ScenarioC(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	day := encounter.NewDate(2024, time.March, 1)

	completed := f.encounter(t, other, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	pending := f.encounter(t, other, visit{day, "10:00", "Checkup", encounter.StatusPending, nil})

	res, err := f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{completed, pending})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
	assert.Equal(t, 1, f.ownedBy(requester.AccountID))

	for id, e := range f.store.encounters {
		if e.AccountID != requester.AccountID {
			continue
		}
		assert.NotEqual(t, completed, id, "clone gets a new id")
		assert.Equal(t, encounter.StatusCompleted, e.Status)
		assert.Equal(t, "fever", e.Concerns)
		assert.Equal(t, "vaccination", e.AdditionalServices)
		assert.Equal(t, day, e.VisitDate)

		rec := f.store.records[id]
		require.NotNil(t, rec)
		assert.Equal(t, "Healthy", rec.Diagnosis)
		assert.Equal(t, "follow up in 6 months", rec.Remarks)
		require.NotNil(t, rec.PulseRate)
		assert.Equal(t, 110, *rec.PulseRate)
	}
	assert.Equal(t, other.AccountID, f.store.encounters[completed].AccountID, "source is untouched")
}

func TestImportRecords_ExcludesRecordless(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	day := encounter.NewDate(2024, time.March, 1)

	withRecord := f.encounter(t, other, visit{day, "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	noRecord := f.encounter(t, other, visit{day, "10:00", "Checkup", encounter.StatusCompleted, nil})
	canceled := f.encounter(t, other, visit{day, "11:00", "Checkup", encounter.StatusCanceled, nil})

	res, err := f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{withRecord, noRecord, canceled, uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
}

func TestImportRecords_AtomicOnEncounterFailure(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, f.encounter(t, other, visit{encounter.NewDate(2024, time.March, i+1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")}))
	}
	before := len(f.store.encounters)
	f.store.failOnCreate = 3

	_, err := f.svc.ImportRecords(context.Background(), requester, ids)
	require.ErrorIs(t, err, apperr.ErrTransaction)
	appErr, _ := apperr.As(err)
	assert.NotContains(t, appErr.Message, "connection reset", "cause stays internal")

	assert.Equal(t, before, len(f.store.encounters))
	assert.Equal(t, 0, f.ownedBy(requester.AccountID))
	assert.Len(t, f.store.records, 3)
}

func TestImportRecords_AtomicOnRecordFailure(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		ids = append(ids, f.encounter(t, other, visit{encounter.NewDate(2024, time.March, i+1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")}))
	}
	f.store.failOnRecord = 2

	_, err := f.svc.ImportRecords(context.Background(), requester, ids)
	require.ErrorIs(t, err, apperr.ErrTransaction)
	assert.Equal(t, 0, f.ownedBy(requester.AccountID))
	assert.Len(t, f.store.records, 2)
}

func TestImportRecords_NotFoundInsideTxIsTransactionFailure(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")

	var ids []uuid.UUID
	for i := 0; i < 2; i++ {
		ids = append(ids, f.encounter(t, other, visit{encounter.NewDate(2024, time.March, i+1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")}))
	}
	f.store.failOnCreate = 2
	f.store.createErr = apperr.NotFound("account")

	_, err := f.svc.ImportRecords(context.Background(), requester, ids)
	require.ErrorIs(t, err, apperr.ErrTransaction)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.ErrTransaction, appErr.Kind)
	assert.Equal(t, "TRANSACTION_FAILED", appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	assert.Equal(t, 0, f.ownedBy(requester.AccountID))
}

func TestImportRecords_ReimportCreatesNewRows(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	src := f.encounter(t, other, visit{encounter.NewDate(2024, time.March, 1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})

	for i := 0; i < 2; i++ {
		res, err := f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{src})
		require.NoError(t, err)
		assert.Equal(t, 1, res.ImportedCount)
	}
	assert.Equal(t, 2, f.ownedBy(requester.AccountID))
}

func TestImportRecords_DuplicateIDsCollapse(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	src := f.encounter(t, other, visit{encounter.NewDate(2024, time.March, 1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})

	res, err := f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{src, src, src})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ImportedCount)
}

func TestImportRecords_EmptyList(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")

	_, err := f.svc.ImportRecords(context.Background(), requester, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{uuid.Nil})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestImportRecords_NothingQualifies(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	pending := f.encounter(t, other, visit{encounter.NewDate(2024, time.March, 1), "09:00", "Checkup", encounter.StatusPending, nil})

	_, err := f.svc.ImportRecords(context.Background(), requester, []uuid.UUID{pending})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.HTTPStatus)
	assert.Equal(t, 0, f.ownedBy(requester.AccountID))
}

func TestImportThenSearch_FlagsImported(t *testing.T) {
	f := newFixture()
	requester := f.account("Juan", "", "")
	other := f.account("Juan", "Maria", "")
	src := f.encounter(t, other, visit{encounter.NewDate(2024, time.March, 1), "09:00", "Checkup", encounter.StatusCompleted, diag("Healthy")})
	ctx := context.Background()

	before, err := f.svc.FindImportCandidates(ctx, requester, "Maria", "")
	require.NoError(t, err)
	require.Len(t, before, 1)
	assert.False(t, before[0].IsImported)

	_, err = f.svc.ImportRecords(ctx, requester, []uuid.UUID{src})
	require.NoError(t, err)

	after, err := f.svc.FindImportCandidates(ctx, requester, "Maria", "")
	require.NoError(t, err)
	require.Len(t, after, 1, "the requester's own clone is never a candidate")
	assert.True(t, after[0].IsImported)
}

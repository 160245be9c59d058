package recordimport

import (
	"strings"

	"github.com/pediaclinic/clinic/internal/domain/encounter"
)

// Signature identifies an encounter for duplicate detection. Equal
// signatures mean "likely the same visit", not a guaranteed match.
type Signature struct {
	Date      string
	Time      string
	Type      string
	Diagnosis string
}

// SignatureOf builds the signature of one visit. Type and diagnosis are
// trimmed, internal whitespace runs collapse to one space and letters are
// case-folded; punctuation is kept as given.
func SignatureOf(date encounter.Date, tod encounter.TimeOfDay, encounterType, diagnosis string) Signature {
	return Signature{
		Date:      date.String(),
		Time:      tod.String(),
		Type:      normalizeText(encounterType),
		Diagnosis: normalizeText(diagnosis),
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// SignatureSet is a set of signatures from one account's history.
type SignatureSet map[Signature]struct{}

func NewSignatureSet(sigs []Signature) SignatureSet {
	set := make(SignatureSet, len(sigs))
	for _, s := range sigs {
		set[s] = struct{}{}
	}
	return set
}

func (s SignatureSet) Contains(sig Signature) bool {
	_, ok := s[sig]
	return ok
}

// MarkImported flags every candidate whose signature is already in own.
func MarkImported(candidates []CandidateRecord, own SignatureSet) {
	for i := range candidates {
		c := &candidates[i]
		c.IsImported = own.Contains(SignatureOf(c.Date, c.Time, c.Type, c.Diagnosis))
	}
}

package ledger

import (
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// TrackRates holds the A-Level rates per track.
	TrackRates struct {
		Sciences    decimal.Decimal `json:"sciences" validate:"dgt0"`
		Commercials decimal.Decimal `json:"commercials" validate:"dgt0"`
		Arts        decimal.Decimal `json:"arts" validate:"dgt0"`
	}

	// CategoryRates is one fee table (one boarding type's column).
	CategoryRates struct {
		OLevel decimal.Decimal `json:"oLevel" validate:"dgt0"`
		ALevel TrackRates      `json:"aLevel"`
	}

	// FeeSchedule is the (boarding type × grade category × track) fee matrix.
	// It lives in the config subtree of the document store.
	FeeSchedule struct {
		Boarder CategoryRates `json:"boarder"`
		Day     CategoryRates `json:"day"`
	}
)

// FeeFor resolves a student's per-term fee from the schedule.
//
// For the A-Level category the track is picked by substring match on the
// grade label, tried in a fixed priority order: Sciences, then Commercials,
// then Arts, defaulting to Sciences when none match. A label naming several
// tracks ("Upper 6 Commercials and Arts") therefore resolves to the first
// match. This ordering is a deliberate tie-break policy; keep it.
func FeeFor(boardingType, gradeCategory, grade string, schedule FeeSchedule) decimal.Decimal {
	rates := schedule.Day
	if boardingType == BoardingBoarder {
		rates = schedule.Boarder
	}

	if gradeCategory != GradeCategoryALevel {
		return rates.OLevel
	}

	switch {
	case strings.Contains(grade, TrackSciences):
		return rates.ALevel.Sciences
	case strings.Contains(grade, TrackCommercials):
		return rates.ALevel.Commercials
	case strings.Contains(grade, TrackArts):
		return rates.ALevel.Arts
	default:
		return rates.ALevel.Sciences
	}
}

// BillTerms returns the student's terms with a fresh {fee, paid: 0} entry for
// every key not yet present. Existing entries are never touched; a student is
// not re-billed for a term they already carry. The input map is not mutated.
func BillTerms(student Student, termKeys []string, schedule FeeSchedule) Terms {
	terms := make(Terms, len(student.Financials.Terms)+len(termKeys))
	for key, term := range student.Financials.Terms {
		terms[key] = term
	}
	for _, key := range termKeys {
		if _, ok := terms[key]; ok {
			continue
		}
		terms[key] = Term{
			Fee:  FeeFor(student.BoardingType, student.GradeCategory, student.Grade, schedule),
			Paid: decimal.Zero,
		}
	}
	return terms
}

// RebillTerms recomputes the fee of every term the student already carries
// (paid or not) against a new schedule. Paid figures are never changed here.
func RebillTerms(student Student, schedule FeeSchedule) Terms {
	terms := make(Terms, len(student.Financials.Terms))
	fee := FeeFor(student.BoardingType, student.GradeCategory, student.Grade, schedule)
	for key, term := range student.Financials.Terms {
		term.Fee = fee
		terms[key] = term
	}
	return terms
}

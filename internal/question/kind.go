package question

import "strings"

// Kind is the closed set of scoring behaviours. The question bank has
// accumulated several historical spellings for the same behaviour; they
// are folded into these two groups when rows are read or imported, so
// the scoring path never sees a raw type string.
type Kind string

const (
	// KindAllOrNothing covers single-choice and true/false questions:
	// full credit for the one correct option, zero otherwise.
	KindAllOrNothing Kind = "all_or_nothing"
	// KindPartialCredit covers checklist/complex questions: credit is
	// split evenly across the correct options and earned per hit.
	KindPartialCredit Kind = "partial_credit"
)

// NormalizeKind maps a raw question type onto its scoring group.
// Unknown values fall back to all-or-nothing with ok=false so callers
// can log the stray type without breaking the exam.
func NormalizeKind(raw string) (kind Kind, ok bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pg", "single_choice", "single-choice", "single", "true_false", "true-false", "benar_salah", "all_or_nothing":
		return KindAllOrNothing, true
	case "complex", "checklist", "multi_select", "multi-select", "multiple_choice_complex", "pg_kompleks", "partial_credit":
		return KindPartialCredit, true
	default:
		return KindAllOrNothing, false
	}
}

package exam

import "cbtexam/internal/question"

// ApplySelection is the question renderer's state transition: given the
// current selection set and a clicked option, it returns the next set.
// No scoring logic lives here.
//
// All-or-nothing questions hold at most one selection: a different
// option replaces the current one, the same option clears it.
// Partial-credit questions toggle membership of the clicked option.
func ApplySelection(kind question.Kind, current []int64, optionID int64) []int64 {
	switch kind {
	case question.KindPartialCredit:
		next := make([]int64, 0, len(current)+1)
		removed := false
		for _, id := range current {
			if id == optionID {
				removed = true
				continue
			}
			next = append(next, id)
		}
		if !removed {
			next = append(next, optionID)
		}
		return next
	default:
		if len(current) == 1 && current[0] == optionID {
			return []int64{}
		}
		return []int64{optionID}
	}
}

package exam

import (
	"reflect"
	"testing"

	"cbtexam/internal/question"
)

func TestApplySelection_AllOrNothing(t *testing.T) {
	tests := []struct {
		name    string
		current []int64
		click   int64
		want    []int64
	}{
		{name: "first click selects", current: nil, click: 2, want: []int64{2}},
		{name: "different option replaces", current: []int64{2}, click: 5, want: []int64{5}},
		{name: "same option clears", current: []int64{2}, click: 2, want: []int64{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplySelection(question.KindAllOrNothing, tc.current, tc.click)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
			if len(got) > 1 {
				t.Fatalf("single-answer question may hold at most one selection, got %v", got)
			}
		})
	}
}

func TestApplySelection_PartialCreditToggles(t *testing.T) {
	tests := []struct {
		name    string
		current []int64
		click   int64
		want    []int64
	}{
		{name: "adds new option", current: []int64{1}, click: 3, want: []int64{1, 3}},
		{name: "removes present option", current: []int64{1, 3}, click: 1, want: []int64{3}},
		{name: "last removal leaves empty", current: []int64{3}, click: 3, want: []int64{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ApplySelection(question.KindPartialCredit, tc.current, tc.click)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestApplySelection_DoesNotMutateInput(t *testing.T) {
	current := []int64{1, 2}
	_ = ApplySelection(question.KindPartialCredit, current, 3)
	if !reflect.DeepEqual(current, []int64{1, 2}) {
		t.Fatalf("input slice mutated: %v", current)
	}
}

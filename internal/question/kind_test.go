package question

import "testing"

func TestNormalizeKind(t *testing.T) {
	tests := []struct {
		raw    string
		want   Kind
		wantOK bool
	}{
		{raw: "all_or_nothing", want: KindAllOrNothing, wantOK: true},
		{raw: "single_choice", want: KindAllOrNothing, wantOK: true},
		{raw: "pg", want: KindAllOrNothing, wantOK: true},
		{raw: "true_false", want: KindAllOrNothing, wantOK: true},
		{raw: "benar_salah", want: KindAllOrNothing, wantOK: true},
		{raw: "partial_credit", want: KindPartialCredit, wantOK: true},
		{raw: "multi_select", want: KindPartialCredit, wantOK: true},
		{raw: "checklist", want: KindPartialCredit, wantOK: true},
		{raw: "pg_kompleks", want: KindPartialCredit, wantOK: true},
		{raw: "  Single_Choice  ", want: KindAllOrNothing, wantOK: true},
		// Unknown types degrade to the strict policy rather than
		// accidentally granting partial credit.
		{raw: "essay", want: KindAllOrNothing, wantOK: false},
		{raw: "", want: KindAllOrNothing, wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			got, ok := NormalizeKind(tc.raw)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("NormalizeKind(%q) = (%v,%v), want (%v,%v)", tc.raw, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

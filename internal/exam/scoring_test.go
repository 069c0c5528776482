package exam

import (
	"math"
	"testing"

	"cbtexam/internal/question"
)

func optionSet(correct ...bool) []question.Option {
	opts := make([]question.Option, 0, len(correct))
	for i, c := range correct {
		opts = append(opts, question.Option{ID: int64(i + 1), IsCorrect: c})
	}
	return opts
}

func TestScoreExam_AllOrNothing(t *testing.T) {
	questions := []question.Question{
		{ID: 1, Kind: question.KindAllOrNothing, MaxScore: 2, Options: optionSet(false, true, false)},
	}

	tests := []struct {
		name        string
		answers     map[int64][]int64
		wantScore   float64
		wantCorrect int
		wantWrong   int
	}{
		{name: "correct option", answers: map[int64][]int64{1: {2}}, wantScore: 2, wantCorrect: 1},
		{name: "wrong option", answers: map[int64][]int64{1: {1}}, wantScore: 0, wantWrong: 1},
		{name: "unknown option id scores zero", answers: map[int64][]int64{1: {99}}, wantScore: 0, wantWrong: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ScoreExam(questions, tc.answers)
			if got.TotalScore != tc.wantScore {
				t.Fatalf("score mismatch got=%v want=%v", got.TotalScore, tc.wantScore)
			}
			if got.TotalCorrect != tc.wantCorrect || got.TotalWrong != tc.wantWrong {
				t.Fatalf("tally mismatch correct=%d wrong=%d", got.TotalCorrect, got.TotalWrong)
			}
			if len(got.Records) != 1 {
				t.Fatalf("expected a single record, got %d", len(got.Records))
			}
			if got.Records[0].SelectedOptionID == nil {
				t.Fatalf("answered question must record its selected option")
			}
		})
	}
}

func TestScoreExam_UnansweredEmitsNilOptionRecord(t *testing.T) {
	questions := []question.Question{
		{ID: 7, Kind: question.KindAllOrNothing, MaxScore: 5, Options: optionSet(true, false)},
	}

	got := ScoreExam(questions, map[int64][]int64{})

	if got.TotalUnanswered != 1 || got.TotalScore != 0 {
		t.Fatalf("unanswered question must count and score zero, got unanswered=%d score=%v",
			got.TotalUnanswered, got.TotalScore)
	}
	if len(got.Records) != 1 {
		t.Fatalf("unanswered question must emit exactly one record, got %d", len(got.Records))
	}
	rec := got.Records[0]
	if rec.SelectedOptionID != nil || rec.IsCorrect || rec.ScoreEarned != 0 {
		t.Fatalf("unanswered record malformed: %+v", rec)
	}
}

func TestScoreExam_PartialCreditSplitsEvenly(t *testing.T) {
	// Two correct options out of four, max score 3 => 1.5 per hit.
	q := question.Question{ID: 1, Kind: question.KindPartialCredit, MaxScore: 3,
		Options: optionSet(true, false, true, false)}

	got := ScoreExam([]question.Question{q}, map[int64][]int64{1: {1, 2, 3}})

	if math.Abs(got.TotalScore-3.0) > 1e-9 {
		t.Fatalf("expected full score 3.0, got %v", got.TotalScore)
	}
	if len(got.Records) != 3 {
		t.Fatalf("expected one record per selected option, got %d", len(got.Records))
	}
	for _, rec := range got.Records {
		switch *rec.SelectedOptionID {
		case 1, 3:
			if !rec.IsCorrect || math.Abs(rec.ScoreEarned-1.5) > 1e-9 {
				t.Fatalf("correct option record malformed: %+v", rec)
			}
		case 2:
			if rec.IsCorrect || rec.ScoreEarned != 0 {
				t.Fatalf("wrong option must earn zero without penalty: %+v", rec)
			}
		}
	}
	if got.TotalCorrect != 1 {
		t.Fatalf("question with any correct hit counts as correct, got %d", got.TotalCorrect)
	}
}

func TestScoreExam_PartialCreditWrongOnly(t *testing.T) {
	q := question.Question{ID: 1, Kind: question.KindPartialCredit, MaxScore: 4,
		Options: optionSet(true, false, false)}

	got := ScoreExam([]question.Question{q}, map[int64][]int64{1: {2, 3}})

	if got.TotalScore != 0 || got.TotalWrong != 1 || got.TotalCorrect != 0 {
		t.Fatalf("wrong-only selection must score zero and count wrong, got %+v", got)
	}
	if len(got.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got.Records))
	}
}

func TestScoreExam_PartialCreditNoCorrectOptions(t *testing.T) {
	// Misauthored question: zero correct options must not divide by zero.
	q := question.Question{ID: 1, Kind: question.KindPartialCredit, MaxScore: 4,
		Options: optionSet(false, false)}

	got := ScoreExam([]question.Question{q}, map[int64][]int64{1: {1, 2}})

	if got.TotalScore != 0 {
		t.Fatalf("expected zero score, got %v", got.TotalScore)
	}
	if len(got.Records) != 2 {
		t.Fatalf("records must still be emitted per selection, got %d", len(got.Records))
	}
	for _, rec := range got.Records {
		if rec.ScoreEarned != 0 {
			t.Fatalf("record must earn zero: %+v", rec)
		}
	}
}

func TestScoreExam_FractionalScoresNotRounded(t *testing.T) {
	// Three correct options, max score 1 => 1/3 per hit. The stored
	// total must keep full precision.
	q := question.Question{ID: 1, Kind: question.KindPartialCredit, MaxScore: 1,
		Options: optionSet(true, true, true)}

	got := ScoreExam([]question.Question{q}, map[int64][]int64{1: {1}})

	want := 1.0 / 3.0
	if math.Abs(got.TotalScore-want) > 1e-12 {
		t.Fatalf("expected unrounded %v, got %v", want, got.TotalScore)
	}
}

func TestScoreExam_MixedPaper(t *testing.T) {
	questions := []question.Question{
		{ID: 1, Kind: question.KindAllOrNothing, MaxScore: 2, Options: optionSet(true, false)},
		{ID: 2, Kind: question.KindPartialCredit, MaxScore: 2, Options: optionSet(true, true, false)},
		{ID: 3, Kind: question.KindAllOrNothing, MaxScore: 2, Options: optionSet(false, true)},
	}
	answers := map[int64][]int64{
		1: {1},    // correct, +2
		2: {1, 3}, // one correct hit of two, +1
		// question 3 unanswered
	}

	got := ScoreExam(questions, answers)

	if math.Abs(got.TotalScore-3.0) > 1e-9 {
		t.Fatalf("expected total 3.0, got %v", got.TotalScore)
	}
	if got.TotalQuestions != 3 || got.TotalCorrect != 2 || got.TotalWrong != 0 || got.TotalUnanswered != 1 {
		t.Fatalf("tally mismatch: %+v", got)
	}
}

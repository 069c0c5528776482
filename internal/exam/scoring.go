package exam

import "cbtexam/internal/question"

// ScoredAnswer is the per-question (or per-selected-option, for
// partial-credit questions) outcome record persisted at submission.
// A nil SelectedOptionID means the question was left unanswered.
type ScoredAnswer struct {
	QuestionID       int64   `json:"question_id"`
	SelectedOptionID *int64  `json:"selected_option_id"`
	IsCorrect        bool    `json:"is_correct"`
	ScoreEarned      float64 `json:"score_earned"`
}

// ScoreSummary aggregates one submission.
type ScoreSummary struct {
	TotalScore      float64        `json:"total_score"`
	TotalQuestions  int            `json:"total_questions"`
	TotalCorrect    int            `json:"total_correct"`
	TotalWrong      int            `json:"total_wrong"`
	TotalUnanswered int            `json:"total_unanswered"`
	Records         []ScoredAnswer `json:"records"`
}

// ScoreExam reconciles the answer store's selections against the
// question set, in question order.
//
// Unanswered questions emit exactly one record with a nil option id and
// contribute nothing; option correctness is not consulted for them.
// All-or-nothing questions earn max_score or zero on the first selected
// option. Partial-credit questions split max_score evenly across the
// correct options and emit one record per selected option; selecting a
// wrong option alongside correct ones earns nothing for it but is never
// penalized. Scores stay fractional; rounding is display-time only.
func ScoreExam(questions []question.Question, answers map[int64][]int64) ScoreSummary {
	summary := ScoreSummary{
		TotalQuestions: len(questions),
		Records:        make([]ScoredAnswer, 0, len(questions)),
	}

	for _, q := range questions {
		selected := answers[q.ID]
		if len(selected) == 0 {
			summary.TotalUnanswered++
			summary.Records = append(summary.Records, ScoredAnswer{
				QuestionID:       q.ID,
				SelectedOptionID: nil,
				IsCorrect:        false,
				ScoreEarned:      0,
			})
			continue
		}

		switch q.Kind {
		case question.KindPartialCredit:
			contribution := scorePartialCredit(&summary, q, selected)
			summary.TotalScore += contribution
		default:
			contribution := scoreAllOrNothing(&summary, q, selected[0])
			summary.TotalScore += contribution
		}
	}

	return summary
}

func scoreAllOrNothing(summary *ScoreSummary, q question.Question, selectedID int64) float64 {
	correct := false
	for _, opt := range q.Options {
		if opt.ID == selectedID {
			correct = opt.IsCorrect
			break
		}
	}

	earned := 0.0
	if correct {
		earned = q.MaxScore
		summary.TotalCorrect++
	} else {
		summary.TotalWrong++
	}

	id := selectedID
	summary.Records = append(summary.Records, ScoredAnswer{
		QuestionID:       q.ID,
		SelectedOptionID: &id,
		IsCorrect:        correct,
		ScoreEarned:      earned,
	})
	return earned
}

func scorePartialCredit(summary *ScoreSummary, q question.Question, selectedIDs []int64) float64 {
	correctness := make(map[int64]bool, len(q.Options))
	correctCount := 0
	for _, opt := range q.Options {
		correctness[opt.ID] = opt.IsCorrect
		if opt.IsCorrect {
			correctCount++
		}
	}

	// A question with zero correct options still emits records for
	// every selection, each worth zero. Never divide by zero.
	perItem := 0.0
	if correctCount > 0 {
		perItem = q.MaxScore / float64(correctCount)
	}

	contribution := 0.0
	anyCorrect := false
	for _, selectedID := range selectedIDs {
		id := selectedID
		isCorrect := correctness[selectedID]
		earned := 0.0
		if isCorrect && perItem > 0 {
			earned = perItem
			contribution += earned
		}
		if isCorrect {
			anyCorrect = true
		}
		summary.Records = append(summary.Records, ScoredAnswer{
			QuestionID:       q.ID,
			SelectedOptionID: &id,
			IsCorrect:        isCorrect,
			ScoreEarned:      earned,
		})
	}

	if anyCorrect {
		summary.TotalCorrect++
	} else {
		summary.TotalWrong++
	}
	return contribution
}

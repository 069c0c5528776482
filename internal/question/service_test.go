package question

import (
	"context"
	"testing"
)

func TestImportJSON_RejectsInvalidRows(t *testing.T) {
	svc := NewService(nil)

	payload := []byte(`[
		{"question_text": "", "type": "single_choice", "options": [
			{"option_text": "A"}, {"option_text": "B", "is_correct": true}
		]},
		{"question_text": "Valid text, bad type", "type": "essay", "options": [
			{"option_text": "A"}, {"option_text": "B", "is_correct": true}
		]},
		{"question_text": "Too few options", "type": "single_choice", "options": [
			{"option_text": "A", "is_correct": true}
		]}
	]`)

	report, err := svc.ImportJSON(context.Background(), 1, payload)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.TotalRows != 3 || report.SuccessRows != 0 || report.FailedRows != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.Errors) != 3 {
		t.Fatalf("expected one error per failed row, got %d", len(report.Errors))
	}
	for i, rowErr := range report.Errors {
		if rowErr.Row != i+1 {
			t.Fatalf("row numbers must be 1-based and ordered, got %+v", report.Errors)
		}
	}
}

func TestImportJSON_MalformedPayload(t *testing.T) {
	svc := NewService(nil)

	if _, err := svc.ImportJSON(context.Background(), 1, []byte(`{"not":"an array"}`)); err == nil {
		t.Fatalf("expected decode error for non-array payload")
	}
	if _, err := svc.ImportJSON(context.Background(), 0, []byte(`[]`)); err == nil {
		t.Fatalf("expected invalid input for missing package id")
	}
}

package exam

import (
	"context"
	"os"
	"testing"
	"time"

	internaldb "cbtexam/internal/db"
	"cbtexam/internal/question"
)

// Full submission flow against a real database: seed a package with
// questions, answer through the store, submit, and verify both the
// aggregate row and the detail ledger.
func TestSubmitSession_DBIntegration(t *testing.T) {
	if os.Getenv("CBTEXAM_INTEGRATION") != "1" {
		t.Skip("set CBTEXAM_INTEGRATION=1 to run integration tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	dbConn, err := internaldb.Open(ctx, internaldb.DriverSQLite, "file:cbtexam_itest?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	defer dbConn.Close()

	var levelID int64
	if err := dbConn.QueryRowContext(ctx, `
		INSERT INTO levels (name) VALUES ('ITEST Level') RETURNING id
	`).Scan(&levelID); err != nil {
		t.Fatalf("insert level: %v", err)
	}

	var userID int64
	if err := dbConn.QueryRowContext(ctx, `
		INSERT INTO users (username, full_name, password_hash, role)
		VALUES ('itest_student', 'ITest Student', 'x', 'student')
		RETURNING id
	`).Scan(&userID); err != nil {
		t.Fatalf("insert user: %v", err)
	}

	var packageID int64
	if err := dbConn.QueryRowContext(ctx, `
		INSERT INTO exam_packages (code, title, level_id, duration_minutes, is_active)
		VALUES ('ITEST-PKG', 'ITest Package', $1, 60, TRUE)
		RETURNING id
	`, levelID).Scan(&packageID); err != nil {
		t.Fatalf("insert package: %v", err)
	}

	questionSvc := question.NewService(dbConn)
	q, err := questionSvc.Create(ctx, question.UpsertQuestionInput{
		PackageID: packageID,
		Text:      "2 + 2 = ?",
		RawType:   "single_choice",
		MaxScore:  2,
		SeqNo:     1,
		Options: []question.UpsertOptionInput{
			{Text: "3"},
			{Text: "4", IsCorrect: true},
			{Text: "5"},
		},
	})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}

	svc := NewService(dbConn, questionSvc, nil, 90)

	duration, err := svc.PackageDuration(ctx, packageID)
	if err != nil {
		t.Fatalf("package duration: %v", err)
	}
	if duration != time.Hour {
		t.Fatalf("expected 1h duration, got %v", duration)
	}

	mgr := NewManager(svc, NewMemoryStorage())
	sess := mgr.Acquire(ctx, userID, "ITest Student", packageID, nil)
	defer mgr.Release(sess.Key)

	if _, err := sess.Store.InitializeExam(ctx, duration); err != nil {
		t.Fatalf("initialize exam: %v", err)
	}

	correctID := int64(0)
	for _, opt := range q.Options {
		if opt.IsCorrect {
			correctID = opt.ID
		}
	}
	if err := sess.Store.SetAnswer(ctx, q.ID, []int64{correctID}); err != nil {
		t.Fatalf("set answer: %v", err)
	}

	if err := sess.Coord.ManualSubmit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	summary := sess.Summary()
	if summary == nil || summary.TotalScore != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var total float64
	var resultID int64
	if err := dbConn.QueryRowContext(ctx, `
		SELECT id, total_score FROM exam_results WHERE user_id = $1
	`, userID).Scan(&resultID, &total); err != nil {
		t.Fatalf("load result row: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected persisted total 2, got %v", total)
	}

	var detailCount int
	if err := dbConn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM exam_result_details WHERE exam_result_id = $1
	`, resultID).Scan(&detailCount); err != nil {
		t.Fatalf("count details: %v", err)
	}
	if detailCount != 1 {
		t.Fatalf("expected 1 detail row, got %d", detailCount)
	}
}

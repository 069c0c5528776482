// Package report reads back submitted exam results: per-student
// history, per-result detail and per-package aggregates.
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"
)

var ErrResultNotFound = errors.New("exam result not found")

type Result struct {
	ID            int64     `json:"id"`
	ExamPackageID int64     `json:"exam_package_id"`
	PackageTitle  string    `json:"package_title"`
	SubjectID     *int64    `json:"subject_id,omitempty"`
	UserID        int64     `json:"user_id"`
	StudentName   string    `json:"student_name"`
	TotalScore    float64   `json:"total_score"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

type ResultDetail struct {
	QuestionID       int64   `json:"question_id"`
	QuestionText     string  `json:"question_text"`
	SelectedOptionID *int64  `json:"selected_option_id,omitempty"`
	IsCorrect        bool    `json:"is_correct"`
	ScoreEarned      float64 `json:"score_earned"`
}

// PackageSummary aggregates every submission of one package.
type PackageSummary struct {
	ExamPackageID int64   `json:"exam_package_id"`
	Participants  int     `json:"participants"`
	AverageScore  float64 `json:"average_score"`
	HighestScore  float64 `json:"highest_score"`
	LowestScore   float64 `json:"lowest_score"`
}

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ListByUser returns a student's submission history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.exam_package_id, p.title, r.subject_id, r.user_id,
		       r.student_name, r.total_score, r.submitted_at
		FROM exam_results r
		JOIN exam_packages p ON p.id = r.exam_package_id
		WHERE r.user_id = $1
		ORDER BY r.submitted_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// ListByPackage returns every submission of a package, best score
// first.
func (s *Service) ListByPackage(ctx context.Context, packageID int64) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.exam_package_id, p.title, r.subject_id, r.user_id,
		       r.student_name, r.total_score, r.submitted_at
		FROM exam_results r
		JOIN exam_packages p ON p.id = r.exam_package_id
		WHERE r.exam_package_id = $1
		ORDER BY r.total_score DESC, r.submitted_at ASC
	`, packageID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	out := make([]Result, 0)
	for rows.Next() {
		var res Result
		var subjectID sql.NullInt64
		if err := rows.Scan(&res.ID, &res.ExamPackageID, &res.PackageTitle, &subjectID,
			&res.UserID, &res.StudentName, &res.TotalScore, &res.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if subjectID.Valid {
			res.SubjectID = &subjectID.Int64
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Get loads one result with its per-question detail rows. A detail row
// with no selected option records an unanswered question.
func (s *Service) Get(ctx context.Context, resultID int64) (*Result, []ResultDetail, error) {
	var res Result
	var subjectID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT r.id, r.exam_package_id, p.title, r.subject_id, r.user_id,
		       r.student_name, r.total_score, r.submitted_at
		FROM exam_results r
		JOIN exam_packages p ON p.id = r.exam_package_id
		WHERE r.id = $1
	`, resultID).Scan(&res.ID, &res.ExamPackageID, &res.PackageTitle, &subjectID,
		&res.UserID, &res.StudentName, &res.TotalScore, &res.SubmittedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrResultNotFound
		}
		return nil, nil, fmt.Errorf("load result: %w", err)
	}
	if subjectID.Valid {
		res.SubjectID = &subjectID.Int64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.question_id, COALESCE(q.question_text, ''), d.selected_option_id,
		       d.is_correct, d.score_earned
		FROM exam_result_details d
		LEFT JOIN questions q ON q.id = d.question_id
		WHERE d.exam_result_id = $1
		ORDER BY d.id
	`, resultID)
	if err != nil {
		return nil, nil, fmt.Errorf("query result details: %w", err)
	}
	defer rows.Close()

	details := make([]ResultDetail, 0)
	for rows.Next() {
		var d ResultDetail
		var selected sql.NullInt64
		if err := rows.Scan(&d.QuestionID, &d.QuestionText, &selected, &d.IsCorrect, &d.ScoreEarned); err != nil {
			return nil, nil, fmt.Errorf("scan result detail: %w", err)
		}
		if selected.Valid {
			d.SelectedOptionID = &selected.Int64
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate result details: %w", err)
	}
	return &res, details, nil
}

// Summarize computes the package aggregate. Scores are rounded to one
// decimal for display; the stored totals stay exact.
func (s *Service) Summarize(ctx context.Context, packageID int64) (*PackageSummary, error) {
	sum := &PackageSummary{ExamPackageID: packageID}
	var avg, high, low sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(total_score), MAX(total_score), MIN(total_score)
		FROM exam_results
		WHERE exam_package_id = $1
	`, packageID).Scan(&sum.Participants, &avg, &high, &low)
	if err != nil {
		return nil, fmt.Errorf("summarize package: %w", err)
	}
	if avg.Valid {
		sum.AverageScore = RoundScore(avg.Float64)
	}
	if high.Valid {
		sum.HighestScore = RoundScore(high.Float64)
	}
	if low.Valid {
		sum.LowestScore = RoundScore(low.Float64)
	}
	return sum, nil
}

// RoundScore rounds a score to one decimal place for display.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}

// ExportExcel renders a package's results as an xlsx workbook.
func (s *Service) ExportExcel(ctx context.Context, packageID int64) ([]byte, error) {
	results, err := s.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	sheet := "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	headers := []string{"No", "Student", "Score", "Submitted At"}
	for i, head := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, head)
	}
	for i, res := range results {
		row := i + 2
		values := []interface{}{
			i + 1,
			res.StudentName,
			RoundScore(res.TotalScore),
			res.SubmittedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

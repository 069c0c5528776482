package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"cbtexam/internal/events"
	"cbtexam/internal/question"
)

var (
	ErrPackageNotFound  = errors.New("exam package not found")
	ErrPackageClosed    = errors.New("exam package is not open")
	ErrSessionNotActive = errors.New("no active exam session")
	ErrTimeOver         = errors.New("exam time is over")
	ErrNoQuestions      = errors.New("exam package has no questions")
)

// QuestionSource provides the question set the runner and scorer
// consume. Implemented by question.Service.
type QuestionSource interface {
	ListByPackage(ctx context.Context, packageID int64, subjectID *int64) ([]question.Question, error)
}

// ExamResult is the aggregate submission record.
type ExamResult struct {
	ID            int64     `json:"id"`
	ExamPackageID int64     `json:"exam_package_id"`
	SubjectID     *int64    `json:"subject_id,omitempty"`
	UserID        int64     `json:"user_id"`
	StudentName   string    `json:"student_name"`
	TotalScore    float64   `json:"total_score"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// ResultWriter is the two-phase persistence port: the aggregate row is
// written first and returns its id, then the detail ledger keyed by it.
// The phases are deliberately not wrapped in one transaction: failure
// of the second phase can leave an orphaned aggregate, which is the
// accepted partial state (the reverse, details without an aggregate,
// cannot happen).
type ResultWriter interface {
	InsertResult(ctx context.Context, res *ExamResult) (int64, error)
	InsertDetails(ctx context.Context, resultID int64, records []ScoredAnswer) error
}

type packageInfo struct {
	ID              int64
	DurationMinutes int
	StartAt         *time.Time
	EndAt           *time.Time
	IsActive        bool
}

type Service struct {
	db        *sql.DB
	questions QuestionSource
	writer    ResultWriter
	bus       *events.Bus
	now       func() time.Time

	defaultExamMinutes int
}

func NewService(db *sql.DB, questions QuestionSource, bus *events.Bus, defaultExamMinutes int) *Service {
	if defaultExamMinutes <= 0 {
		defaultExamMinutes = 90
	}
	return &Service{
		db:                 db,
		questions:          questions,
		writer:             &sqlResultWriter{db: db},
		bus:                bus,
		now:                time.Now,
		defaultExamMinutes: defaultExamMinutes,
	}
}

// PackageDuration validates that the package exists, is active and is
// inside its scheduling window, and returns its exam duration.
func (s *Service) PackageDuration(ctx context.Context, packageID int64) (time.Duration, error) {
	info, err := s.loadPackage(ctx, packageID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	if !info.IsActive {
		return 0, ErrPackageClosed
	}
	if info.StartAt != nil && now.Before(*info.StartAt) {
		return 0, ErrPackageClosed
	}
	if info.EndAt != nil && now.After(*info.EndAt) {
		return 0, ErrPackageClosed
	}

	minutes := info.DurationMinutes
	if minutes <= 0 {
		minutes = s.defaultExamMinutes
	}
	return time.Duration(minutes) * time.Minute, nil
}

func (s *Service) loadPackage(ctx context.Context, packageID int64) (*packageInfo, error) {
	var info packageInfo
	var startAt, endAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, duration_minutes, start_at, end_at, is_active
		FROM exam_packages
		WHERE id = $1
	`, packageID).Scan(&info.ID, &info.DurationMinutes, &startAt, &endAt, &info.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("load exam package: %w", err)
	}
	if startAt.Valid {
		info.StartAt = &startAt.Time
	}
	if endAt.Valid {
		info.EndAt = &endAt.Time
	}
	return &info, nil
}

// SubmitSession scores the session and persists the result. Ordering
// matters: questions are fetched first (a fetch failure means scoring
// is never invoked), then the aggregate result, then the detail
// ledger. Any failure leaves the answer store intact so the attempt
// can be retried; the store is cleared only after both writes landed.
func (s *Service) SubmitSession(ctx context.Context, sess *Session, auto bool) (*ScoreSummary, error) {
	questions, err := sess.ensureQuestions(ctx, s.questions)
	if err != nil {
		return nil, fmt.Errorf("fetch questions for scoring: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	summary := ScoreExam(questions, sess.Store.Answers())

	res := &ExamResult{
		ExamPackageID: sess.PackageID,
		SubjectID:     sess.SubjectID,
		UserID:        sess.UserID,
		StudentName:   sess.StudentName,
		TotalScore:    summary.TotalScore,
		SubmittedAt:   s.now(),
	}
	resultID, err := s.writer.InsertResult(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("insert exam result: %w", err)
	}
	if err := s.writer.InsertDetails(ctx, resultID, summary.Records); err != nil {
		// The aggregate row now exists without details. Accepted risk:
		// surfaced as a failed submission, never silently ignored.
		return nil, fmt.Errorf("insert result details (aggregate %d orphaned): %w", resultID, err)
	}
	res.ID = resultID

	if s.bus != nil {
		evt := events.ExamSubmitted{
			ResultID:      resultID,
			ExamPackageID: sess.PackageID,
			SubjectID:     sess.SubjectID,
			UserID:        sess.UserID,
			TotalScore:    summary.TotalScore,
			Auto:          auto,
			SubmittedAt:   res.SubmittedAt,
		}
		if err := s.bus.PublishExamSubmitted(ctx, evt); err != nil {
			log.Printf("publish exam.submitted for result %d: %v", resultID, err)
		}
	}

	// The submission is durable; a failure to clear the snapshot only
	// means a stale session that the next acquire will discard.
	if err := sess.Store.ClearExam(ctx); err != nil {
		log.Printf("clear session %s after submit: %v", sess.Key, err)
	}

	return &summary, nil
}

type sqlResultWriter struct {
	db *sql.DB
}

func (w *sqlResultWriter) InsertResult(ctx context.Context, res *ExamResult) (int64, error) {
	var id int64
	err := w.db.QueryRowContext(ctx, `
		INSERT INTO exam_results (exam_package_id, subject_id, user_id, student_name, total_score, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, res.ExamPackageID, nullableID(res.SubjectID), res.UserID, res.StudentName, res.TotalScore, res.SubmittedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (w *sqlResultWriter) InsertDetails(ctx context.Context, resultID int64, records []ScoredAnswer) error {
	for _, rec := range records {
		if _, err := w.db.ExecContext(ctx, `
			INSERT INTO exam_result_details (exam_result_id, question_id, selected_option_id, is_correct, score_earned)
			VALUES ($1, $2, $3, $4, $5)
		`, resultID, rec.QuestionID, nullableID(rec.SelectedOptionID), rec.IsCorrect, rec.ScoreEarned); err != nil {
			return err
		}
	}
	return nil
}

func nullableID(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

package question

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xuri/excelize/v2"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrPackageNotFound  = errors.New("exam package not found")
)

type Service struct {
	db       *sql.DB
	validate *validator.Validate
}

type Option struct {
	ID         int64    `json:"id"`
	QuestionID int64    `json:"question_id"`
	Text       string   `json:"option_text"`
	IsCorrect  bool     `json:"is_correct"`
	ScoreValue *float64 `json:"score_value,omitempty"`
}

type Question struct {
	ID        int64    `json:"id"`
	PackageID int64    `json:"package_id"`
	SubjectID *int64   `json:"subject_id,omitempty"`
	Text      string   `json:"question_text"`
	RawType   string   `json:"type"`
	Kind      Kind     `json:"kind"`
	MaxScore  float64  `json:"max_score"`
	SeqNo     int      `json:"seq_no"`
	Options   []Option `json:"options"`
}

type UpsertQuestionInput struct {
	ID        int64
	PackageID int64
	SubjectID *int64
	Text      string
	RawType   string
	MaxScore  float64
	SeqNo     int
	Options   []UpsertOptionInput
}

type UpsertOptionInput struct {
	Text       string   `json:"option_text"`
	IsCorrect  bool     `json:"is_correct"`
	ScoreValue *float64 `json:"score_value"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, validate: validator.New()}
}

// ListByPackage returns the ordered question set for one package,
// optionally narrowed to a subject. This is the fetch the exam runner
// consumes; option correctness flags are included, so the result must
// never be handed to a student-facing endpoint unsanitized.
func (s *Service) ListByPackage(ctx context.Context, packageID int64, subjectID *int64) ([]Question, error) {
	if packageID <= 0 {
		return nil, ErrInvalidInput
	}

	query := `
		SELECT id, package_id, subject_id, question_text, question_type, max_score, seq_no
		FROM questions
		WHERE package_id = $1`
	args := []interface{}{packageID}
	if subjectID != nil {
		query += ` AND subject_id = $2`
		args = append(args, *subjectID)
	}
	query += ` ORDER BY seq_no, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	out := make([]Question, 0)
	index := map[int64]int{}
	for rows.Next() {
		var q Question
		var subj sql.NullInt64
		if err := rows.Scan(&q.ID, &q.PackageID, &subj, &q.Text, &q.RawType, &q.MaxScore, &q.SeqNo); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if subj.Valid {
			v := subj.Int64
			q.SubjectID = &v
		}
		kind, known := NormalizeKind(q.RawType)
		if !known {
			log.Printf("question %d has unknown type %q, scoring as all-or-nothing", q.ID, q.RawType)
		}
		q.Kind = kind
		q.Options = []Option{}
		index[q.ID] = len(out)
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	if err := s.attachOptions(ctx, out, index); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) attachOptions(ctx context.Context, questions []Question, index map[int64]int) error {
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, fmt.Sprintf("%d", q.ID))
	}

	// IDs come from our own scan above, never from user input.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, question_id, option_text, is_correct, score_value
		FROM question_options
		WHERE question_id IN (%s)
		ORDER BY question_id, id
	`, strings.Join(ids, ",")))
	if err != nil {
		return fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var o Option
		var score sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.QuestionID, &o.Text, &o.IsCorrect, &score); err != nil {
			return fmt.Errorf("scan option: %w", err)
		}
		if score.Valid {
			v := score.Float64
			o.ScoreValue = &v
		}
		if i, ok := index[o.QuestionID]; ok {
			questions[i].Options = append(questions[i].Options, o)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate options: %w", err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, questionID int64) (*Question, error) {
	if questionID <= 0 {
		return nil, ErrInvalidInput
	}
	var q Question
	var subj sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, package_id, subject_id, question_text, question_type, max_score, seq_no
		FROM questions
		WHERE id = $1
	`, questionID).Scan(&q.ID, &q.PackageID, &subj, &q.Text, &q.RawType, &q.MaxScore, &q.SeqNo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	if subj.Valid {
		v := subj.Int64
		q.SubjectID = &v
	}
	q.Kind, _ = NormalizeKind(q.RawType)
	q.Options = []Option{}

	list := []Question{q}
	if err := s.attachOptions(ctx, list, map[int64]int{q.ID: 0}); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (s *Service) Create(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
	if err := validateUpsert(in); err != nil {
		return nil, err
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM exam_packages WHERE id = $1)
	`, in.PackageID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check package: %w", err)
	}
	if !exists {
		return nil, ErrPackageNotFound
	}

	var id int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO questions (package_id, subject_id, question_text, question_type, max_score, seq_no)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, in.PackageID, nullableID(in.SubjectID), in.Text, in.RawType, in.MaxScore, in.SeqNo).Scan(&id); err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}

	for _, opt := range in.Options {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO question_options (question_id, option_text, is_correct, score_value)
			VALUES ($1, $2, $3, $4)
		`, id, opt.Text, opt.IsCorrect, nullableFloat(opt.ScoreValue)); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
	}

	return s.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, in UpsertQuestionInput) (*Question, error) {
	if in.ID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := validateUpsert(in); err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET subject_id = $2,
			question_text = $3,
			question_type = $4,
			max_score = $5,
			seq_no = $6
		WHERE id = $1
	`, in.ID, nullableID(in.SubjectID), in.Text, in.RawType, in.MaxScore, in.SeqNo)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrQuestionNotFound
	}

	// Options are replaced wholesale; partial edits are not worth the
	// bookkeeping for an admin screen.
	if _, err := s.db.ExecContext(ctx, `DELETE FROM question_options WHERE question_id = $1`, in.ID); err != nil {
		return nil, fmt.Errorf("clear options: %w", err)
	}
	for _, opt := range in.Options {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO question_options (question_id, option_text, is_correct, score_value)
			VALUES ($1, $2, $3, $4)
		`, in.ID, opt.Text, opt.IsCorrect, nullableFloat(opt.ScoreValue)); err != nil {
			return nil, fmt.Errorf("insert option: %w", err)
		}
	}

	return s.Get(ctx, in.ID)
}

func (s *Service) Delete(ctx context.Context, questionID int64) error {
	if questionID <= 0 {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func validateUpsert(in UpsertQuestionInput) error {
	if in.PackageID <= 0 && in.ID <= 0 {
		return ErrInvalidInput
	}
	if strings.TrimSpace(in.Text) == "" || strings.TrimSpace(in.RawType) == "" {
		return ErrInvalidInput
	}
	if in.MaxScore < 0 {
		return ErrInvalidInput
	}
	if len(in.Options) < 2 {
		return ErrInvalidInput
	}
	return nil
}

func nullableID(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

type ImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type ImportReport struct {
	TotalRows   int              `json:"total_rows"`
	SuccessRows int              `json:"success_rows"`
	FailedRows  int              `json:"failed_rows"`
	Errors      []ImportRowError `json:"errors"`
}

type importRow struct {
	QuestionText string         `json:"question_text" validate:"required"`
	Type         string         `json:"type" validate:"required"`
	MaxScore     float64        `json:"max_score" validate:"gte=0"`
	SubjectID    *int64         `json:"subject_id"`
	SeqNo        int            `json:"seq_no"`
	Options      []importOption `json:"options" validate:"required,min=2,dive"`
}

type importOption struct {
	Text       string   `json:"option_text" validate:"required"`
	IsCorrect  bool     `json:"is_correct"`
	ScoreValue *float64 `json:"score_value"`
}

// ImportJSON bulk-loads questions into a package: one insert per row,
// failures recorded per row rather than aborting the batch.
func (s *Service) ImportJSON(ctx context.Context, packageID int64, data []byte) (*ImportReport, error) {
	if packageID <= 0 {
		return nil, ErrInvalidInput
	}

	var rows []importRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode import payload: %w", err)
	}

	report := &ImportReport{TotalRows: len(rows), Errors: []ImportRowError{}}
	for i, row := range rows {
		rowNo := i + 1
		if err := s.checkImportRow(row); err != nil {
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}

		options := make([]UpsertOptionInput, 0, len(row.Options))
		for _, o := range row.Options {
			options = append(options, UpsertOptionInput{
				Text:       o.Text,
				IsCorrect:  o.IsCorrect,
				ScoreValue: o.ScoreValue,
			})
		}
		seq := row.SeqNo
		if seq == 0 {
			seq = rowNo
		}
		maxScore := row.MaxScore
		if maxScore == 0 {
			maxScore = 1
		}

		if _, err := s.Create(ctx, UpsertQuestionInput{
			PackageID: packageID,
			SubjectID: row.SubjectID,
			Text:      row.QuestionText,
			RawType:   row.Type,
			MaxScore:  maxScore,
			SeqNo:     seq,
			Options:   options,
		}); err != nil {
			log.Printf("question import row %d failed: %v", rowNo, err)
			report.FailedRows++
			report.Errors = append(report.Errors, ImportRowError{Row: rowNo, Error: err.Error()})
			continue
		}
		report.SuccessRows++
	}

	return report, nil
}

func (s *Service) checkImportRow(row importRow) error {
	if err := s.validate.Struct(row); err != nil {
		return err
	}
	if _, known := NormalizeKind(row.Type); !known {
		return fmt.Errorf("unknown question type %q", row.Type)
	}
	return nil
}

// ExportExcel writes the package's question bank to a spreadsheet, one
// row per option so correctness flags stay reviewable.
func (s *Service) ExportExcel(ctx context.Context, packageID int64) ([]byte, error) {
	questions, err := s.ListByPackage(ctx, packageID, nil)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	headers := []string{"question_id", "seq_no", "question_text", "type", "max_score", "option_id", "option_text", "is_correct"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	rowNo := 2
	for _, q := range questions {
		for _, o := range q.Options {
			values := []any{q.ID, q.SeqNo, q.Text, q.RawType, q.MaxScore, o.ID, o.Text, o.IsCorrect}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, rowNo)
				_ = f.SetCellValue(sheet, cell, v)
			}
			rowNo++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

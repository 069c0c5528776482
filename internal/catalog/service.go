// Package catalog manages the master data an exam is assembled from:
// grade levels, subjects and the exam packages students sit.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrLevelNotFound    = errors.New("level not found")
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrPackageNotFound  = errors.New("exam package not found")
	ErrDuplicateCode    = errors.New("package code already in use")
	ErrLevelInUse       = errors.New("level still has subjects or packages")
)

type Level struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

type Subject struct {
	ID      int64  `json:"id"`
	LevelID int64  `json:"level_id"`
	Name    string `json:"name"`
}

type ExamPackage struct {
	ID              int64      `json:"id"`
	Code            string     `json:"code"`
	Title           string     `json:"title"`
	LevelID         int64      `json:"level_id"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	IsActive        bool       `json:"is_active"`
}

type UpsertPackageInput struct {
	ID              int64
	Code            string     `validate:"required,min=2,max=64"`
	Title           string     `validate:"required,min=3"`
	LevelID         int64      `validate:"required,gt=0"`
	DurationMinutes int        `validate:"gte=0,lte=600"`
	StartAt         *time.Time
	EndAt           *time.Time
	IsActive        bool
}

type Service struct {
	db       *sql.DB
	validate *validator.Validate
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, validate: validator.New()}
}

func (s *Service) ListLevels(ctx context.Context) ([]Level, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sort_order FROM levels ORDER BY sort_order, name
	`)
	if err != nil {
		return nil, fmt.Errorf("query levels: %w", err)
	}
	defer rows.Close()

	out := make([]Level, 0)
	for rows.Next() {
		var l Level
		if err := rows.Scan(&l.ID, &l.Name, &l.SortOrder); err != nil {
			return nil, fmt.Errorf("scan level: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *Service) CreateLevel(ctx context.Context, name string, sortOrder int) (*Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	l := &Level{Name: name, SortOrder: sortOrder}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO levels (name, sort_order) VALUES ($1, $2) RETURNING id
	`, l.Name, l.SortOrder).Scan(&l.ID)
	if err != nil {
		return nil, fmt.Errorf("insert level: %w", err)
	}
	return l, nil
}

func (s *Service) UpdateLevel(ctx context.Context, id int64, name string, sortOrder int) (*Level, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE levels SET name = $1, sort_order = $2 WHERE id = $3
	`, name, sortOrder, id)
	if err != nil {
		return nil, fmt.Errorf("update level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrLevelNotFound
	}
	return &Level{ID: id, Name: name, SortOrder: sortOrder}, nil
}

func (s *Service) DeleteLevel(ctx context.Context, id int64) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM subjects WHERE level_id = $1)
		    OR EXISTS (SELECT 1 FROM exam_packages WHERE level_id = $1)
	`, id).Scan(&inUse)
	if err != nil {
		return fmt.Errorf("check level usage: %w", err)
	}
	if inUse {
		return ErrLevelInUse
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM levels WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLevelNotFound
	}
	return nil
}

func (s *Service) ListSubjects(ctx context.Context, levelID *int64) ([]Subject, error) {
	query := `SELECT id, level_id, name FROM subjects`
	args := []interface{}{}
	if levelID != nil {
		query += ` WHERE level_id = $1`
		args = append(args, *levelID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	out := make([]Subject, 0)
	for rows.Next() {
		var sub Subject
		if err := rows.Scan(&sub.ID, &sub.LevelID, &sub.Name); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Service) CreateSubject(ctx context.Context, levelID int64, name string) (*Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" || levelID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := s.levelExists(ctx, levelID); err != nil {
		return nil, err
	}
	sub := &Subject{LevelID: levelID, Name: name}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subjects (level_id, name) VALUES ($1, $2) RETURNING id
	`, levelID, name).Scan(&sub.ID)
	if err != nil {
		return nil, fmt.Errorf("insert subject: %w", err)
	}
	return sub, nil
}

func (s *Service) UpdateSubject(ctx context.Context, id, levelID int64, name string) (*Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" || levelID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := s.levelExists(ctx, levelID); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE subjects SET level_id = $1, name = $2 WHERE id = $3
	`, levelID, name, id)
	if err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrSubjectNotFound
	}
	return &Subject{ID: id, LevelID: levelID, Name: name}, nil
}

func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSubjectNotFound
	}
	return nil
}

func (s *Service) levelExists(ctx context.Context, levelID int64) error {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM levels WHERE id = $1)
	`, levelID).Scan(&exists); err != nil {
		return fmt.Errorf("check level: %w", err)
	}
	if !exists {
		return ErrLevelNotFound
	}
	return nil
}

// ListPackages returns packages, optionally narrowed to a level. With
// activeOnly set it also hides packages outside their scheduling
// window, which is the view students get.
func (s *Service) ListPackages(ctx context.Context, levelID *int64, activeOnly bool) ([]ExamPackage, error) {
	query := `
		SELECT id, code, title, level_id, duration_minutes, start_at, end_at, is_active
		FROM exam_packages`
	conds := []string{}
	args := []interface{}{}
	if levelID != nil {
		args = append(args, *levelID)
		conds = append(conds, fmt.Sprintf("level_id = $%d", len(args)))
	}
	if activeOnly {
		conds = append(conds, "is_active = TRUE")
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	now := time.Now()
	out := make([]ExamPackage, 0)
	for rows.Next() {
		var p ExamPackage
		var startAt, endAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Code, &p.Title, &p.LevelID, &p.DurationMinutes, &startAt, &endAt, &p.IsActive); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		if startAt.Valid {
			p.StartAt = &startAt.Time
		}
		if endAt.Valid {
			p.EndAt = &endAt.Time
		}
		if activeOnly {
			if p.StartAt != nil && now.Before(*p.StartAt) {
				continue
			}
			if p.EndAt != nil && now.After(*p.EndAt) {
				continue
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) GetPackage(ctx context.Context, id int64) (*ExamPackage, error) {
	var p ExamPackage
	var startAt, endAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, title, level_id, duration_minutes, start_at, end_at, is_active
		FROM exam_packages
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Title, &p.LevelID, &p.DurationMinutes, &startAt, &endAt, &p.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPackageNotFound
		}
		return nil, fmt.Errorf("load package: %w", err)
	}
	if startAt.Valid {
		p.StartAt = &startAt.Time
	}
	if endAt.Valid {
		p.EndAt = &endAt.Time
	}
	return &p, nil
}

func (s *Service) CreatePackage(ctx context.Context, in UpsertPackageInput) (*ExamPackage, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.levelExists(ctx, in.LevelID); err != nil {
		return nil, err
	}
	if taken, err := s.codeTaken(ctx, in.Code, 0); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicateCode
	}

	p := packageFromInput(in)
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exam_packages (code, title, level_id, duration_minutes, start_at, end_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, p.Code, p.Title, p.LevelID, p.DurationMinutes, nullableTime(p.StartAt), nullableTime(p.EndAt), p.IsActive).Scan(&p.ID)
	if err != nil {
		return nil, fmt.Errorf("insert package: %w", err)
	}
	return p, nil
}

func (s *Service) UpdatePackage(ctx context.Context, in UpsertPackageInput) (*ExamPackage, error) {
	if in.ID <= 0 {
		return nil, ErrInvalidInput
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.levelExists(ctx, in.LevelID); err != nil {
		return nil, err
	}
	if taken, err := s.codeTaken(ctx, in.Code, in.ID); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicateCode
	}

	p := packageFromInput(in)
	p.ID = in.ID
	res, err := s.db.ExecContext(ctx, `
		UPDATE exam_packages
		SET code = $1, title = $2, level_id = $3, duration_minutes = $4,
		    start_at = $5, end_at = $6, is_active = $7
		WHERE id = $8
	`, p.Code, p.Title, p.LevelID, p.DurationMinutes, nullableTime(p.StartAt), nullableTime(p.EndAt), p.IsActive, p.ID)
	if err != nil {
		return nil, fmt.Errorf("update package: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrPackageNotFound
	}
	return p, nil
}

func (s *Service) DeletePackage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exam_packages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete package: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPackageNotFound
	}
	return nil
}

func (s *Service) codeTaken(ctx context.Context, code string, excludeID int64) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM exam_packages WHERE code = $1 AND id <> $2)
	`, strings.TrimSpace(code), excludeID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("check package code: %w", err)
	}
	return taken, nil
}

func packageFromInput(in UpsertPackageInput) *ExamPackage {
	minutes := in.DurationMinutes
	if minutes == 0 {
		minutes = 90
	}
	return &ExamPackage{
		Code:            strings.TrimSpace(in.Code),
		Title:           strings.TrimSpace(in.Title),
		LevelID:         in.LevelID,
		DurationMinutes: minutes,
		StartAt:         in.StartAt,
		EndAt:           in.EndAt,
		IsActive:        in.IsActive,
	}
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

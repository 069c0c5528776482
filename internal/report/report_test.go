package report

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cbtexam/internal/auth"

	"github.com/go-chi/chi/v5"
)

func TestRoundScore(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 0, want: 0},
		{in: 1.0 / 3.0, want: 0.3},
		{in: 2.0 / 3.0, want: 0.7},
		{in: 66.666, want: 66.7},
		{in: 99.95, want: 100},
		{in: 12.34, want: 12.3},
	}
	for _, tc := range tests {
		if got := RoundScore(tc.in); got != tc.want {
			t.Fatalf("RoundScore(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

type mockReportService struct {
	listByUserFn    func(ctx context.Context, userID int64) ([]Result, error)
	listByPackageFn func(ctx context.Context, packageID int64) ([]Result, error)
	getFn           func(ctx context.Context, resultID int64) (*Result, []ResultDetail, error)
	summarizeFn     func(ctx context.Context, packageID int64) (*PackageSummary, error)
	exportExcelFn   func(ctx context.Context, packageID int64) ([]byte, error)
}

func (m *mockReportService) ListByUser(ctx context.Context, userID int64) ([]Result, error) {
	if m.listByUserFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listByUserFn(ctx, userID)
}

func (m *mockReportService) ListByPackage(ctx context.Context, packageID int64) ([]Result, error) {
	if m.listByPackageFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listByPackageFn(ctx, packageID)
}

func (m *mockReportService) Get(ctx context.Context, resultID int64) (*Result, []ResultDetail, error) {
	if m.getFn == nil {
		return nil, nil, errors.New("not implemented")
	}
	return m.getFn(ctx, resultID)
}

func (m *mockReportService) Summarize(ctx context.Context, packageID int64) (*PackageSummary, error) {
	if m.summarizeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.summarizeFn(ctx, packageID)
}

func (m *mockReportService) ExportExcel(ctx context.Context, packageID int64) ([]byte, error) {
	if m.exportExcelFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportExcelFn(ctx, packageID)
}

func doAs(t *testing.T, h http.HandlerFunc, user *auth.User, method, path string, params map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != nil {
		req = req.WithContext(auth.ContextWithUser(req.Context(), user))
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func TestGetResult_OwnershipCheck(t *testing.T) {
	h := NewHandler(&mockReportService{
		getFn: func(ctx context.Context, resultID int64) (*Result, []ResultDetail, error) {
			return &Result{ID: resultID, UserID: 10, TotalScore: 80, SubmittedAt: time.Now()},
				[]ResultDetail{{QuestionID: 1, IsCorrect: true, ScoreEarned: 80}}, nil
		},
	})

	owner := &auth.User{ID: 10, Role: auth.RoleStudent}
	w := doAs(t, h.GetResult, owner, http.MethodGet, "/api/v1/results/3", map[string]string{"id": "3"})
	if w.Code != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", w.Code)
	}

	other := &auth.User{ID: 11, Role: auth.RoleStudent}
	w = doAs(t, h.GetResult, other, http.MethodGet, "/api/v1/results/3", map[string]string{"id": "3"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("other student: expected 403, got %d", w.Code)
	}

	admin := &auth.User{ID: 99, Role: auth.RoleAdmin}
	w = doAs(t, h.GetResult, admin, http.MethodGet, "/api/v1/results/3", map[string]string{"id": "3"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin: expected 200, got %d", w.Code)
	}
}

func TestGetResult_NotFound(t *testing.T) {
	h := NewHandler(&mockReportService{
		getFn: func(ctx context.Context, resultID int64) (*Result, []ResultDetail, error) {
			return nil, nil, ErrResultNotFound
		},
	})
	user := &auth.User{ID: 1, Role: auth.RoleStudent}
	w := doAs(t, h.GetResult, user, http.MethodGet, "/api/v1/results/3", map[string]string{"id": "3"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestExportSetsAttachmentHeaders(t *testing.T) {
	h := NewHandler(&mockReportService{
		exportExcelFn: func(ctx context.Context, packageID int64) ([]byte, error) {
			return []byte("xlsx-bytes"), nil
		},
	})
	admin := &auth.User{ID: 1, Role: auth.RoleAdmin}
	w := doAs(t, h.Export, admin, http.MethodGet, "/api/v1/admin/packages/4/results/export",
		map[string]string{"packageID": "4"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); cd == "" {
		t.Fatalf("missing content disposition header")
	}
}

package report

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"cbtexam/internal/app/apiresp"
	"cbtexam/internal/auth"

	"github.com/go-chi/chi/v5"
)

type reportService interface {
	ListByUser(ctx context.Context, userID int64) ([]Result, error)
	ListByPackage(ctx context.Context, packageID int64) ([]Result, error)
	Get(ctx context.Context, resultID int64) (*Result, []ResultDetail, error)
	Summarize(ctx context.Context, packageID int64) (*PackageSummary, error)
	ExportExcel(ctx context.Context, packageID int64) ([]byte, error)
}

type Handler struct {
	svc reportService
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

// MyResults lists the authenticated student's submission history.
func (h *Handler) MyResults(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	items, err := h.svc.ListByUser(r.Context(), user.ID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

type resultDetailResponse struct {
	Result  *Result        `json:"result"`
	Details []ResultDetail `json:"details"`
}

// GetResult returns one result with its per-question breakdown.
// Students may only read their own results; admins may read any.
func (h *Handler) GetResult(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	resultID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || resultID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid result id")
		return
	}
	res, details, err := h.svc.Get(r.Context(), resultID)
	if err != nil {
		switch {
		case errors.Is(err, ErrResultNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	if user.Role != auth.RoleAdmin && res.UserID != user.ID {
		apiresp.WriteError(w, r, http.StatusForbidden, "not your result")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, resultDetailResponse{Result: res, Details: details})
}

// PackageResults lists every submission of one package.
func (h *Handler) PackageResults(w http.ResponseWriter, r *http.Request) {
	packageID, ok := packageIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.svc.ListByPackage(r.Context(), packageID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

// PackageSummary returns participant count and score aggregates.
func (h *Handler) PackageSummary(w http.ResponseWriter, r *http.Request) {
	packageID, ok := packageIDParam(w, r)
	if !ok {
		return
	}
	sum, err := h.svc.Summarize(r.Context(), packageID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, sum)
}

// Export streams the package results workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	packageID, ok := packageIDParam(w, r)
	if !ok {
		return
	}
	data, err := h.svc.ExportExcel(r.Context(), packageID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="exam-results.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func packageIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid package id")
		return 0, false
	}
	return packageID, true
}

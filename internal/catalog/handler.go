package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cbtexam/internal/app/apiresp"
	"cbtexam/internal/auth"

	"github.com/go-chi/chi/v5"
)

type catalogService interface {
	ListLevels(ctx context.Context) ([]Level, error)
	CreateLevel(ctx context.Context, name string, sortOrder int) (*Level, error)
	UpdateLevel(ctx context.Context, id int64, name string, sortOrder int) (*Level, error)
	DeleteLevel(ctx context.Context, id int64) error

	ListSubjects(ctx context.Context, levelID *int64) ([]Subject, error)
	CreateSubject(ctx context.Context, levelID int64, name string) (*Subject, error)
	UpdateSubject(ctx context.Context, id, levelID int64, name string) (*Subject, error)
	DeleteSubject(ctx context.Context, id int64) error

	ListPackages(ctx context.Context, levelID *int64, activeOnly bool) ([]ExamPackage, error)
	GetPackage(ctx context.Context, id int64) (*ExamPackage, error)
	CreatePackage(ctx context.Context, in UpsertPackageInput) (*ExamPackage, error)
	UpdatePackage(ctx context.Context, in UpsertPackageInput) (*ExamPackage, error)
	DeletePackage(ctx context.Context, id int64) error
}

type Handler struct {
	svc catalogService
}

func NewHandler(svc catalogService) *Handler {
	return &Handler{svc: svc}
}

type levelRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

func (h *Handler) ListLevels(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListLevels(r.Context())
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) CreateLevel(w http.ResponseWriter, r *http.Request) {
	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreateLevel(r.Context(), req.Name, req.SortOrder)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) UpdateLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req levelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.UpdateLevel(r.Context(), id, req.Name, req.SortOrder)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) DeleteLevel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteLevel(r.Context(), id); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

type subjectRequest struct {
	LevelID int64  `json:"level_id"`
	Name    string `json:"name"`
}

func (h *Handler) ListSubjects(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListSubjects(r.Context(), queryID(r, "level_id"))
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) CreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreateSubject(r.Context(), req.LevelID, req.Name)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) UpdateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req subjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.UpdateSubject(r.Context(), id, req.LevelID, req.Name)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) DeleteSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteSubject(r.Context(), id); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

type packageRequest struct {
	Code            string     `json:"code"`
	Title           string     `json:"title"`
	LevelID         int64      `json:"level_id"`
	DurationMinutes int        `json:"duration_minutes"`
	StartAt         *time.Time `json:"start_at"`
	EndAt           *time.Time `json:"end_at"`
	IsActive        bool       `json:"is_active"`
}

// ListPackages serves both audiences: admins see everything, students
// only see packages that are open right now.
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if user, ok := auth.CurrentUser(r.Context()); ok && user.Role == auth.RoleAdmin {
		activeOnly = false
	}
	items, err := h.svc.ListPackages(r.Context(), queryID(r, "level_id"), activeOnly)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	item, err := h.svc.GetPackage(r.Context(), id)
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.CreatePackage(r.Context(), upsertFromRequest(0, req))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req packageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.UpdatePackage(r.Context(), upsertFromRequest(id, req))
	if err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeletePackage(r.Context(), id); err != nil {
		writeCatalogError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func upsertFromRequest(id int64, req packageRequest) UpsertPackageInput {
	return UpsertPackageInput{
		ID:              id,
		Code:            req.Code,
		Title:           req.Title,
		LevelID:         req.LevelID,
		DurationMinutes: req.DurationMinutes,
		StartAt:         req.StartAt,
		EndAt:           req.EndAt,
		IsActive:        req.IsActive,
	}
}

func writeCatalogError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrLevelNotFound),
		errors.Is(err, ErrSubjectNotFound),
		errors.Is(err, ErrPackageNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrLevelInUse):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryID(r *http.Request, name string) *int64 {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

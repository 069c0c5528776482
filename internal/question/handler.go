package question

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"cbtexam/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc questionService
}

type questionService interface {
	ListByPackage(ctx context.Context, packageID int64, subjectID *int64) ([]Question, error)
	Get(ctx context.Context, questionID int64) (*Question, error)
	Create(ctx context.Context, in UpsertQuestionInput) (*Question, error)
	Update(ctx context.Context, in UpsertQuestionInput) (*Question, error)
	Delete(ctx context.Context, questionID int64) error
	ImportJSON(ctx context.Context, packageID int64, data []byte) (*ImportReport, error)
	ExportExcel(ctx context.Context, packageID int64) ([]byte, error)
}

type upsertQuestionRequest struct {
	PackageID int64               `json:"package_id"`
	SubjectID *int64              `json:"subject_id"`
	Text      string              `json:"question_text"`
	Type      string              `json:"type"`
	MaxScore  float64             `json:"max_score"`
	SeqNo     int                 `json:"seq_no"`
	Options   []UpsertOptionInput `json:"options"`
}

func NewHandler(svc questionService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	packageID, err := strconv.ParseInt(strings.TrimSpace(r.URL.Query().Get("package_id")), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "package_id is required")
		return
	}
	subjectID := optionalIDParam(r.URL.Query().Get("subject_id"))

	items, err := h.svc.ListByPackage(r.Context(), packageID, subjectID)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	item, err := h.svc.Get(r.Context(), questionID)
	if err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req upsertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.Create(r.Context(), UpsertQuestionInput{
		PackageID: req.PackageID,
		SubjectID: req.SubjectID,
		Text:      req.Text,
		RawType:   req.Type,
		MaxScore:  req.MaxScore,
		SeqNo:     req.SeqNo,
		Options:   req.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, "question_text, type and at least two options are required")
		case errors.Is(err, ErrPackageNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	var req upsertQuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	item, err := h.svc.Update(r.Context(), UpsertQuestionInput{
		ID:        questionID,
		PackageID: req.PackageID,
		SubjectID: req.SubjectID,
		Text:      req.Text,
		RawType:   req.Type,
		MaxScore:  req.MaxScore,
		SeqNo:     req.SeqNo,
		Options:   req.Options,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, "question_text, type and at least two options are required")
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	questionID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || questionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	if err := h.svc.Delete(r.Context(), questionID); err != nil {
		switch {
		case errors.Is(err, ErrQuestionNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 8<<20))
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "unable to read request body")
		return
	}
	report, err := h.svc.ImportJSON(r.Context(), packageID, body)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusBadRequest, "import payload must be a JSON array of questions")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, report)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}
	data, err := h.svc.ExportExcel(r.Context(), packageID)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="question-bank.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func optionalIDParam(raw string) *int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

package exam

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
	"cbtexam/internal/question"

	"github.com/go-chi/chi/v5"
)

// packageCatalog is the slice of the exam service the handler needs
// before a session exists.
type packageCatalog interface {
	PackageDuration(ctx context.Context, packageID int64) (time.Duration, error)
}

type Handler struct {
	mgr  *Manager
	pkgs packageCatalog
}

func NewHandler(mgr *Manager, pkgs packageCatalog) *Handler {
	return &Handler{mgr: mgr, pkgs: pkgs}
}

// sessionView is the state payload the frontend renders the runner
// from. Remaining seconds are included so the client can seed its
// display, but the end timestamp is authoritative.
type sessionView struct {
	PackageID        int64             `json:"package_id"`
	SubjectID        *int64            `json:"subject_id,omitempty"`
	ExamEndTime      *int64            `json:"exam_end_time,omitempty"`
	RemainingSeconds *int64            `json:"remaining_seconds,omitempty"`
	Answers          map[int64][]int64 `json:"answers"`
	Flags            map[int64]bool    `json:"flags"`
	Submitted        bool              `json:"submitted"`
}

// questionView strips everything that would leak the answer key.
type questionView struct {
	ID       int64        `json:"id"`
	Text     string       `json:"question_text"`
	Kind     question.Kind `json:"kind"`
	MaxScore float64      `json:"max_score"`
	SeqNo    int          `json:"seq_no"`
	Options  []optionView `json:"options"`
}

type optionView struct {
	ID   int64  `json:"id"`
	Text string `json:"option_text"`
}

// Start opens (or resumes) the caller's session for a package. The
// call is idempotent: a reload returns the same deadline and the
// answers given so far, never a fresh countdown.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid package id")
		return
	}
	subjectID := optionalIDParam(r.URL.Query().Get("subject_id"))

	duration, err := h.pkgs.PackageDuration(r.Context(), packageID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPackageNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrPackageClosed):
			apiresp.WriteError(w, r, http.StatusForbidden, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	sess := h.mgr.Acquire(r.Context(), user.ID, user.FullName, packageID, subjectID)
	if _, err := sess.Store.InitializeExam(r.Context(), duration); err != nil {
		if errors.Is(err, ErrNotHydrated) {
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, "session is still loading, retry")
			return
		}
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to persist session")
		return
	}
	h.mgr.StartWatcher(sess)

	apiresp.WriteOK(w, r, http.StatusOK, h.viewOf(sess))
}

// State reports the live session without mutating it.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, h.viewOf(sess))
}

// Questions lists the session's question set with correctness data
// removed.
func (h *Handler) Questions(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	items, err := h.mgr.Questions(r.Context(), sess)
	if err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to load questions")
		return
	}
	views := make([]questionView, 0, len(items))
	for _, q := range items {
		qv := questionView{
			ID:       q.ID,
			Text:     q.Text,
			Kind:     q.Kind,
			MaxScore: q.MaxScore,
			SeqNo:    q.SeqNo,
			Options:  make([]optionView, 0, len(q.Options)),
		}
		for _, opt := range q.Options {
			qv.Options = append(qv.Options, optionView{ID: opt.ID, Text: opt.Text})
		}
		views = append(views, qv)
	}
	apiresp.WriteOK(w, r, http.StatusOK, views)
}

type selectRequest struct {
	QuestionID int64 `json:"question_id"`
	OptionID   int64 `json:"option_id"`
}

type selectResponse struct {
	QuestionID int64   `json:"question_id"`
	OptionIDs  []int64 `json:"option_ids"`
}

// Select applies one option click under the question's selection
// policy: replace-or-clear for single-answer questions, toggle for
// multi-answer ones.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID <= 0 || req.OptionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "question_id and option_id are required")
		return
	}
	if !h.sessionWritable(w, r, sess) {
		return
	}
	if _, err := h.mgr.Questions(r.Context(), sess); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to load questions")
		return
	}
	q, found := sess.questionByID(req.QuestionID)
	if !found {
		apiresp.WriteError(w, r, http.StatusNotFound, "question is not part of this exam")
		return
	}

	next := ApplySelection(q.Kind, sess.Store.Selections(req.QuestionID), req.OptionID)
	if err := sess.Store.SetAnswer(r.Context(), req.QuestionID, next); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to persist answer")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, selectResponse{QuestionID: req.QuestionID, OptionIDs: next})
}

type setAnswerRequest struct {
	QuestionID int64   `json:"question_id"`
	OptionIDs  []int64 `json:"option_ids"`
}

// SetAnswer replaces the full selection set for a question. An empty
// list un-answers it.
func (h *Handler) SetAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req setAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "question_id is required")
		return
	}
	if !h.sessionWritable(w, r, sess) {
		return
	}
	if err := sess.Store.SetAnswer(r.Context(), req.QuestionID, req.OptionIDs); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to persist answer")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, selectResponse{QuestionID: req.QuestionID, OptionIDs: req.OptionIDs})
}

type flagRequest struct {
	QuestionID int64 `json:"question_id"`
	Flagged    bool  `json:"flagged"`
}

// Flag marks or unmarks a question for review.
func (h *Handler) Flag(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req flagRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "question_id is required")
		return
	}
	if !h.sessionWritable(w, r, sess) {
		return
	}
	if err := sess.Store.SetFlag(r.Context(), req.QuestionID, req.Flagged); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to persist flag")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]bool{"flagged": req.Flagged})
}

// Submit runs the student-confirmed submission and returns the score
// summary on success.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if state, _ := sess.Store.Deadline(); state == DeadlineNone {
		apiresp.WriteError(w, r, http.StatusConflict, ErrSessionNotActive.Error())
		return
	}

	if err := sess.Coord.ManualSubmit(r.Context()); err != nil {
		switch {
		case errors.Is(err, ErrSubmitInFlight):
			apiresp.WriteError(w, r, http.StatusConflict, "submission already in progress")
		case errors.Is(err, ErrAlreadySubmitted):
			apiresp.WriteError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, ErrSubmitTerminal):
			apiresp.WriteError(w, r, http.StatusConflict, err.Error())
		case errors.Is(err, ErrNoQuestions):
			apiresp.WriteError(w, r, http.StatusUnprocessableEntity, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "submission failed, please retry")
		}
		return
	}

	summary := sess.Summary()
	h.mgr.Release(sess.Key)
	apiresp.WriteOK(w, r, http.StatusOK, summary)
}

// Abandon discards the session and its persisted snapshot without
// producing a result.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Store.ClearExam(r.Context()); err != nil {
		apiresp.WriteError(w, r, http.StatusInternalServerError, "unable to discard session")
		return
	}
	h.mgr.Release(sess.Key)
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "abandoned"})
}

// session resolves the caller's session from the URL. Every session
// route passes through here, so auth failures and bad ids are handled
// once.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	packageID, err := strconv.ParseInt(chi.URLParam(r, "packageID"), 10, 64)
	if err != nil || packageID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid package id")
		return nil, false
	}
	subjectID := optionalIDParam(r.URL.Query().Get("subject_id"))
	return h.mgr.Acquire(r.Context(), user.ID, user.FullName, packageID, subjectID), true
}

// sessionWritable rejects mutations once the session is over: no
// deadline means no active exam, zero remaining means time is up, and a
// submission in any non-idle state freezes the answers.
func (h *Handler) sessionWritable(w http.ResponseWriter, r *http.Request, sess *Session) bool {
	switch sess.Coord.State() {
	case SubmitInFlight, SubmitDone, SubmitFailed:
		apiresp.WriteError(w, r, http.StatusConflict, ErrAlreadySubmitted.Error())
		return false
	}

	remaining, state := sess.Store.Remaining(time.Now())
	switch state {
	case DeadlineUnknown:
		apiresp.WriteError(w, r, http.StatusServiceUnavailable, "session is still loading, retry")
		return false
	case DeadlineNone:
		apiresp.WriteError(w, r, http.StatusConflict, ErrSessionNotActive.Error())
		return false
	}
	if remaining == 0 {
		apiresp.WriteError(w, r, http.StatusConflict, ErrTimeOver.Error())
		return false
	}
	return true
}

func (h *Handler) viewOf(sess *Session) sessionView {
	view := sessionView{
		PackageID: sess.PackageID,
		SubjectID: sess.SubjectID,
		Answers:   sess.Store.Answers(),
		Flags:     sess.Store.Flags(),
		Submitted: sess.Coord.State() == SubmitDone,
	}
	if state, endsAt := sess.Store.Deadline(); state == DeadlineSet {
		ms := endsAt.UnixMilli()
		view.ExamEndTime = &ms
		remaining, _ := sess.Store.Remaining(time.Now())
		view.RemainingSeconds = &remaining
	}
	return view
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

package exam

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNotHydrated is returned when a deadline-dependent operation is
	// attempted before Rehydrate has run. Treating "not yet loaded" the
	// same as "no session" would let a reload restart the countdown.
	ErrNotHydrated = errors.New("answer store not hydrated")
)

// DeadlineState distinguishes the three timer situations a consumer can
// observe. Unknown means the persisted snapshot has not been loaded yet
// and remaining time must not be rendered as zero.
type DeadlineState int

const (
	DeadlineUnknown DeadlineState = iota
	DeadlineNone
	DeadlineSet
)

// Snapshot is the durable session state: in-progress answers, flagged
// questions and the absolute end-of-exam timestamp in epoch millis.
// It survives reloads; it is deleted on submit or explicit reset.
type Snapshot struct {
	Answers     map[int64][]int64 `json:"answers"`
	Flags       map[int64]bool    `json:"flags,omitempty"`
	ExamEndTime *int64            `json:"examEndTime"`
}

// SnapshotStorage is the durability port behind the answer store.
// Load reports found=false when no snapshot exists under the key.
type SnapshotStorage interface {
	Load(ctx context.Context, key string) (snap Snapshot, found bool, err error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Delete(ctx context.Context, key string) error
}

// AnswerStore is the single source of truth for one exam session's
// in-progress answers and countdown deadline. All mutation goes through
// its methods; nothing else touches the persisted snapshot.
type AnswerStore struct {
	storage SnapshotStorage
	key     string
	now     func() time.Time

	mu       sync.Mutex
	hydrated bool
	answers  map[int64][]int64
	flags    map[int64]bool
	endsAt   *time.Time
}

func NewAnswerStore(storage SnapshotStorage, key string) *AnswerStore {
	return &AnswerStore{
		storage: storage,
		key:     key,
		now:     time.Now,
		answers: make(map[int64][]int64),
		flags:   make(map[int64]bool),
	}
}

// Rehydrate loads the persisted snapshot. It must run before any read
// is trusted. A storage failure degrades to "no session" (the student
// restarts the timer) rather than blocking the exam; the error is
// still returned so the caller can log it.
func (s *AnswerStore) Rehydrate(ctx context.Context) error {
	snap, found, err := s.storage.Load(ctx, s.key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = true
	s.answers = make(map[int64][]int64)
	s.flags = make(map[int64]bool)
	s.endsAt = nil

	if err != nil {
		return fmt.Errorf("load session snapshot: %w", err)
	}
	if !found {
		return nil
	}

	for qid, opts := range snap.Answers {
		s.answers[qid] = append([]int64(nil), opts...)
	}
	for qid, flagged := range snap.Flags {
		if flagged {
			s.flags[qid] = true
		}
	}
	if snap.ExamEndTime != nil {
		t := time.UnixMilli(*snap.ExamEndTime)
		s.endsAt = &t
	}
	return nil
}

// InitializeExam sets the deadline to now+duration and resets answers,
// but only when no deadline exists. A second call while a session is
// active is a no-op for both deadline and answers, which is what makes
// a mid-exam reload resume the same countdown instead of granting a
// fresh one.
func (s *AnswerStore) InitializeExam(ctx context.Context, duration time.Duration) (time.Time, error) {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return time.Time{}, ErrNotHydrated
	}
	if s.endsAt != nil {
		endsAt := *s.endsAt
		s.mu.Unlock()
		return endsAt, nil
	}

	endsAt := s.now().Add(duration)
	s.endsAt = &endsAt
	s.answers = make(map[int64][]int64)
	s.flags = make(map[int64]bool)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.storage.Save(ctx, s.key, snap); err != nil {
		return endsAt, fmt.Errorf("persist session snapshot: %w", err)
	}
	return endsAt, nil
}

// SetAnswer replaces the full selection set for a question. Cardinality
// is the caller's concern (see ApplySelection); the store accepts any
// list including an empty one, which un-answers the question.
func (s *AnswerStore) SetAnswer(ctx context.Context, questionID int64, optionIDs []int64) error {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return ErrNotHydrated
	}
	if len(optionIDs) == 0 {
		delete(s.answers, questionID)
	} else {
		s.answers[questionID] = append([]int64(nil), optionIDs...)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.storage.Save(ctx, s.key, snap); err != nil {
		return fmt.Errorf("persist session snapshot: %w", err)
	}
	return nil
}

// SetFlag marks a question for review ("doubt").
func (s *AnswerStore) SetFlag(ctx context.Context, questionID int64, flagged bool) error {
	s.mu.Lock()
	if !s.hydrated {
		s.mu.Unlock()
		return ErrNotHydrated
	}
	if flagged {
		s.flags[questionID] = true
	} else {
		delete(s.flags, questionID)
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.storage.Save(ctx, s.key, snap); err != nil {
		return fmt.Errorf("persist session snapshot: %w", err)
	}
	return nil
}

// ClearExam terminates the session: answers gone, deadline back to
// None, snapshot deleted. Used after a confirmed successful submission
// or an explicit abandonment.
func (s *AnswerStore) ClearExam(ctx context.Context) error {
	s.mu.Lock()
	s.hydrated = true
	s.answers = make(map[int64][]int64)
	s.flags = make(map[int64]bool)
	s.endsAt = nil
	s.mu.Unlock()

	if err := s.storage.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("delete session snapshot: %w", err)
	}
	return nil
}

func (s *AnswerStore) Deadline() (DeadlineState, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hydrated {
		return DeadlineUnknown, time.Time{}
	}
	if s.endsAt == nil {
		return DeadlineNone, time.Time{}
	}
	return DeadlineSet, *s.endsAt
}

// Remaining recomputes the countdown from the absolute deadline. It is
// never derived by decrementing a counter, so missed ticks (throttled
// tabs, suspended processes) cannot drift the displayed time.
func (s *AnswerStore) Remaining(now time.Time) (int64, DeadlineState) {
	state, endsAt := s.Deadline()
	if state != DeadlineSet {
		return 0, state
	}
	secs := int64(endsAt.Sub(now) / time.Second)
	if secs < 0 {
		secs = 0
	}
	return secs, DeadlineSet
}

// Selections returns the current selection set for one question.
func (s *AnswerStore) Selections(questionID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.answers[questionID]...)
}

// Answers returns a copy of the full selection mapping.
func (s *AnswerStore) Answers() map[int64][]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64][]int64, len(s.answers))
	for qid, opts := range s.answers {
		out[qid] = append([]int64(nil), opts...)
	}
	return out
}

// Flags returns a copy of the flagged-question set.
func (s *AnswerStore) Flags() map[int64]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool, len(s.flags))
	for qid := range s.flags {
		out[qid] = true
	}
	return out
}

func (s *AnswerStore) snapshotLocked() Snapshot {
	snap := Snapshot{
		Answers: make(map[int64][]int64, len(s.answers)),
		Flags:   make(map[int64]bool, len(s.flags)),
	}
	for qid, opts := range s.answers {
		snap.Answers[qid] = append([]int64(nil), opts...)
	}
	for qid := range s.flags {
		snap.Flags[qid] = true
	}
	if s.endsAt != nil {
		ms := s.endsAt.UnixMilli()
		snap.ExamEndTime = &ms
	}
	return snap
}

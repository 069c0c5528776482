package exam

import (
	"context"
	"fmt"
	"log"
	"sync"

	"cbtexam/internal/question"
)

// Session is one student's in-progress run of an exam package
// (optionally narrowed to a subject). It owns the answer store, the
// submission coordinator and a cached copy of the question set.
type Session struct {
	Key         string
	UserID      int64
	StudentName string
	PackageID   int64
	SubjectID   *int64
	Store       *AnswerStore
	Coord       *Coordinator

	watchOnce sync.Once

	mu        sync.Mutex
	cancel    context.CancelFunc
	questions []question.Question
	summary   *ScoreSummary
}

// ensureQuestions fetches and caches the session's question set. The
// cache is what lets the deadline watcher auto-submit without a fresh
// fetch racing the timer.
func (sess *Session) ensureQuestions(ctx context.Context, src QuestionSource) ([]question.Question, error) {
	sess.mu.Lock()
	cached := sess.questions
	sess.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	fetched, err := src.ListByPackage(ctx, sess.PackageID, sess.SubjectID)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	sess.questions = fetched
	sess.mu.Unlock()
	return fetched, nil
}

func (sess *Session) questionByID(id int64) (*question.Question, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for i := range sess.questions {
		if sess.questions[i].ID == id {
			return &sess.questions[i], true
		}
	}
	return nil, false
}

func (sess *Session) setSummary(sum *ScoreSummary) {
	sess.mu.Lock()
	sess.summary = sum
	sess.mu.Unlock()
}

func (sess *Session) Summary() *ScoreSummary {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.summary
}

// SessionKey is the fixed storage name a session's snapshot lives
// under.
func SessionKey(userID, packageID int64, subjectID *int64) string {
	if subjectID != nil {
		return fmt.Sprintf("exam:session:%d:%d:s%d", userID, packageID, *subjectID)
	}
	return fmt.Sprintf("exam:session:%d:%d", userID, packageID)
}

// Manager owns the live sessions. Acquire is idempotent per key: a
// reload or a second tab gets the same store and the same countdown.
type Manager struct {
	svc     *Service
	storage SnapshotStorage

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(svc *Service, storage SnapshotStorage) *Manager {
	return &Manager{
		svc:      svc,
		storage:  storage,
		sessions: make(map[string]*Session),
	}
}

// Acquire returns the live session for (user, package[, subject]),
// creating and rehydrating it on first use. The deadline watcher is
// not started here: a session that was never started has nothing to
// watch, so browsing session state before the exam begins must not
// leave a ticking goroutine behind. A rehydration failure is logged
// and degrades to an empty session rather than blocking the student.
func (m *Manager) Acquire(ctx context.Context, userID int64, studentName string, packageID int64, subjectID *int64) *Session {
	key := SessionKey(userID, packageID, subjectID)

	m.mu.Lock()
	if sess, ok := m.sessions[key]; ok {
		m.mu.Unlock()
		return sess
	}

	sess := &Session{
		Key:         key,
		UserID:      userID,
		StudentName: studentName,
		PackageID:   packageID,
		SubjectID:   subjectID,
		Store:       NewAnswerStore(m.storage, key),
	}
	sess.Coord = NewCoordinator(sess.Store, func(ctx context.Context, auto bool) error {
		sum, err := m.svc.SubmitSession(ctx, sess, auto)
		if err != nil {
			return err
		}
		sess.setSummary(sum)
		return nil
	})
	m.sessions[key] = sess
	m.mu.Unlock()

	if err := sess.Store.Rehydrate(ctx); err != nil {
		log.Printf("rehydrate session %s: %v", key, err)
	}

	// A snapshot with a deadline means the exam was already started,
	// possibly before a restart: resume the watcher so the auto-submit
	// still fires.
	if state, _ := sess.Store.Deadline(); state == DeadlineSet {
		m.StartWatcher(sess)
	}

	return sess
}

// StartWatcher launches the session's 1 Hz deadline watcher. Called
// once the exam has a deadline; further calls are no-ops.
func (m *Manager) StartWatcher(sess *Session) {
	sess.watchOnce.Do(func() {
		watchCtx, cancel := context.WithCancel(context.Background())
		sess.mu.Lock()
		sess.cancel = cancel
		sess.mu.Unlock()
		go func() {
			sess.Coord.Run(watchCtx)
			if sess.Coord.State() == SubmitDone {
				m.Release(sess.Key)
			}
		}()
	})
}

// Release stops the watcher and drops the session from the registry.
// The persisted snapshot is untouched; a later Acquire rehydrates it.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	sess, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	if ok {
		sess.mu.Lock()
		cancel := sess.cancel
		sess.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	}
}

// Questions returns the session's cached question set, fetching it on
// first use.
func (m *Manager) Questions(ctx context.Context, sess *Session) ([]question.Question, error) {
	return sess.ensureQuestions(ctx, m.svc.questions)
}

// ActiveCount reports the number of sessions with a running exam, for
// metrics. Sessions acquired by read-only lookups before any start are
// not counted.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if state, _ := sess.Store.Deadline(); state == DeadlineSet {
			n++
		}
	}
	return n
}

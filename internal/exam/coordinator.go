package exam

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"
)

var (
	ErrSubmitInFlight   = errors.New("submission already in flight")
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrSubmitTerminal   = errors.New("auto-submission failed; manual intervention required")
)

// SubmitState is the submission coordinator's explicit state machine.
// Transitions happen only on defined events: a manual submit call, the
// timer reaching zero, and completion of the submit function.
type SubmitState int

const (
	SubmitIdle SubmitState = iota
	SubmitInFlight
	SubmitDone
	// SubmitFailed is terminal: the timer already hit zero and the
	// automatic submission failed. The timer cannot retry; recovery is
	// a support-driven resubmission.
	SubmitFailed
)

// Coordinator serializes manual and timer-driven submission of one
// exam session. The in-flight guard is taken synchronously, before any
// suspension point, so a timer tick firing during a manual submission
// can never start a second attempt.
type Coordinator struct {
	store  *AnswerStore
	submit func(ctx context.Context, auto bool) error
	now    func() time.Time
	tick   time.Duration

	mu    sync.Mutex
	state SubmitState
}

func NewCoordinator(store *AnswerStore, submit func(ctx context.Context, auto bool) error) *Coordinator {
	return &Coordinator{
		store:  store,
		submit: submit,
		now:    time.Now,
		tick:   time.Second,
	}
}

func (c *Coordinator) State() SubmitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ManualSubmit runs a student-initiated submission. On failure the
// coordinator returns to Idle so the student may retry.
func (c *Coordinator) ManualSubmit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case SubmitInFlight:
		c.mu.Unlock()
		return ErrSubmitInFlight
	case SubmitDone:
		c.mu.Unlock()
		return ErrAlreadySubmitted
	case SubmitFailed:
		c.mu.Unlock()
		return ErrSubmitTerminal
	}
	c.state = SubmitInFlight
	c.mu.Unlock()

	err := c.submit(ctx, false)

	c.mu.Lock()
	if err != nil {
		c.state = SubmitIdle
	} else {
		c.state = SubmitDone
	}
	c.mu.Unlock()
	return err
}

// timerZero runs the automatic, non-confirming submission. It fires at
// most once: any state other than Idle means a submission already
// happened or is happening. A failure here is terminal.
func (c *Coordinator) timerZero(ctx context.Context) {
	c.mu.Lock()
	if c.state != SubmitIdle {
		c.mu.Unlock()
		return
	}
	c.state = SubmitInFlight
	c.mu.Unlock()

	err := c.submit(ctx, true)

	c.mu.Lock()
	if err != nil {
		c.state = SubmitFailed
		log.Printf("auto-submit failed, session left for manual intervention: %v", err)
	} else {
		c.state = SubmitDone
	}
	c.mu.Unlock()
}

// Run watches the deadline at 1 Hz (plus one immediate check) and
// triggers auto-submission when remaining time reaches zero. Remaining
// time is always recomputed from the absolute deadline, so missed
// ticks cannot desynchronize the countdown. While the store reports
// DeadlineUnknown (not yet rehydrated) nothing fires: unknown is not
// zero. Run returns when the session reaches a final state or the
// context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		if done := c.checkDeadline(ctx); done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Coordinator) checkDeadline(ctx context.Context) (done bool) {
	switch c.State() {
	case SubmitDone, SubmitFailed:
		return true
	}

	remaining, state := c.store.Remaining(c.now())
	if state == DeadlineSet && remaining == 0 {
		c.timerZero(ctx)
	}
	switch c.State() {
	case SubmitDone, SubmitFailed:
		return true
	}
	return false
}

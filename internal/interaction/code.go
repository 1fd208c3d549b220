package interaction

import (
	"context"
	"strings"
	"sync"
	"time"

	"breachlab/internal/session"
	"breachlab/internal/telemetry"
)

const DefaultFeedbackWindow = 3 * time.Second

type Verifier interface {
	Verify(ctx context.Context, code string, floorID int) (session.VerifyResult, error)
}

// NormalizeCode trims and upper-cases a typed access code.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

type CodeView struct {
	FloorID   int
	Verifying bool
	Verified  bool
	Feedback  string
	Condition Condition
}

// CodeEntry submits access codes for the current floor, independent of chat.
type CodeEntry struct {
	client Verifier
	logger *telemetry.JSONLogger
	window time.Duration
	now    func() time.Time

	mu        sync.Mutex
	floorID   int
	gen       int
	verifying bool
	verified  bool
	feedback  string
	condition Condition
	until     time.Time
	changed   func()
}

func NewCodeEntry(client Verifier, logger *telemetry.JSONLogger, window time.Duration) *CodeEntry {
	if window <= 0 {
		window = DefaultFeedbackWindow
	}
	return &CodeEntry{client: client, logger: logger, window: window, now: time.Now}
}

// SetFloor starts a fresh entry, even for the floor already shown. A verify
// still in flight comes back as ErrStale.
func (e *CodeEntry) SetFloor(floorID int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.floorID = floorID
	e.gen++
	e.verifying = false
	e.verified = false
	e.clearLocked()
}

func (e *CodeEntry) OnChange(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.changed = fn
}

// Submit verifies raw for the current floor. A mismatch is not an error: the
// result comes back with Correct false and its message is shown for the
// feedback window. Transport and backend failures stay visible until the next
// submission.
func (e *CodeEntry) Submit(ctx context.Context, raw string) (session.VerifyResult, error) {
	code := NormalizeCode(raw)
	e.mu.Lock()
	switch {
	case e.floorID == 0:
		e.mu.Unlock()
		return session.VerifyResult{}, ErrNoFloor
	case code == "":
		e.mu.Unlock()
		return session.VerifyResult{}, ErrEmptyCode
	case e.verifying:
		e.mu.Unlock()
		return session.VerifyResult{}, ErrBusy
	case e.verified:
		e.mu.Unlock()
		return session.VerifyResult{}, ErrVerified
	}
	e.verifying = true
	e.clearLocked()
	floorID, gen := e.floorID, e.gen
	changed := e.changed
	e.mu.Unlock()
	if changed != nil {
		changed()
	}

	res, err := e.client.Verify(ctx, code, floorID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if gen != e.gen {
		e.logger.Info("interaction.verify_stale", map[string]any{"floor": floorID})
		return session.VerifyResult{}, ErrStale
	}
	e.verifying = false
	if err != nil {
		e.condition = ConditionOf(err)
		e.feedback = session.MessageOf(err)
		e.logger.Warn("interaction.verify_failed", map[string]any{
			"floor":     floorID,
			"condition": e.condition.String(),
		})
		return session.VerifyResult{}, err
	}
	if !res.Correct {
		e.feedback = res.Message
		e.condition = ConditionRejected
		e.until = e.now().Add(e.window)
		e.logger.Info("interaction.code_mismatch", map[string]any{"floor": floorID})
		return res, nil
	}
	e.verified = true
	e.logger.Info("interaction.code_accepted", map[string]any{"floor": floorID})
	return res, nil
}

func (e *CodeEntry) View() CodeView {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.until.IsZero() && !e.now().Before(e.until) {
		e.clearLocked()
	}
	return CodeView{
		FloorID:   e.floorID,
		Verifying: e.verifying,
		Verified:  e.verified,
		Feedback:  e.feedback,
		Condition: e.condition,
	}
}

// FeedbackExpiry is when the current mismatch message stops showing, or zero.
func (e *CodeEntry) FeedbackExpiry() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.until
}

func (e *CodeEntry) clearLocked() {
	e.feedback = ""
	e.condition = ConditionNone
	e.until = time.Time{}
}

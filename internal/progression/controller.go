package progression

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"breachlab/internal/badges"
	"breachlab/internal/floors"
	"breachlab/internal/progress"
	"breachlab/internal/session"
	"breachlab/internal/telemetry"
)

type Phase int

const (
	Loading Phase = iota
	Ready
)

func (p Phase) String() string {
	if p == Ready {
		return "ready"
	}
	return "loading"
}

var (
	ErrNotReady       = errors.New("progression is still loading")
	ErrUnknownFloor   = errors.New("unknown floor")
	ErrFloorLocked    = errors.New("floor not yet accessible")
	ErrOutcomePending = errors.New("an outcome is waiting to be dismissed")

	// ErrResetDuringCompletion means a reset won the race with a completion;
	// the completion is dropped from both the working view and local progress.
	ErrResetDuringCompletion = errors.New("progress was reset while the completion was being recorded")
)

// ResetError reports a reset where the two stores did not both clear.
type ResetError struct {
	ServerReset bool
	LocalReset  bool
	Err         error
}

func (e *ResetError) Error() string {
	switch {
	case !e.ServerReset:
		return fmt.Sprintf("reset server session: %v", e.Err)
	case !e.LocalReset:
		return fmt.Sprintf("server session reset but local progress was not cleared: %v", e.Err)
	default:
		return fmt.Sprintf("reset: %v", e.Err)
	}
}

func (e *ResetError) Unwrap() error { return e.Err }

type SessionSource interface {
	FetchProgress(ctx context.Context) (session.Progress, error)
	Reset(ctx context.Context) (session.Progress, error)
}

type LocalSource interface {
	Read(ctx context.Context) (progress.LocalProgress, error)
	Save(ctx context.Context, p progress.LocalProgress)
	Reset(ctx context.Context) (progress.LocalProgress, error)
	CompleteLevel(ctx context.Context, levelID int) (progress.LocalProgress, *badges.Badge, error)
}

// State is a copy of the controller's working view.
type State struct {
	Phase Phase
	// Degraded is set when the session could not be fetched and floor access
	// is derived from local progress alone.
	Degraded        bool
	CurrentFloor    int
	UnlockedFloor   int
	CompletedFloors []int
	HighestLevel    int
	Badge           *badges.Badge
	Pending         *Outcome
	Finished        bool
}

func (s State) IsCompleted(floorID int) bool {
	return slices.Contains(s.CompletedFloors, floorID)
}

// Controller is the only writer of the working view and of local progress.
type Controller struct {
	catalog *floors.Catalog
	session SessionSource
	local   LocalSource
	logger  *telemetry.JSONLogger

	// commitMu orders local writes from Complete against Reset.
	commitMu sync.Mutex

	mu             sync.Mutex
	generation     uint64
	phase          Phase
	degraded       bool
	localUntrusted bool
	current        int
	unlocked       int
	completed      []int
	highest        int
	pending        *Outcome
	finished       bool
}

func NewController(catalog *floors.Catalog, sess SessionSource, local LocalSource, logger *telemetry.JSONLogger) *Controller {
	return &Controller{
		catalog:   catalog,
		session:   sess,
		local:     local,
		logger:    logger,
		current:   floors.FirstFloor,
		unlocked:  floors.FirstFloor,
		completed: []int{},
	}
}

// Load fetches the session and reads local progress concurrently, then
// reconciles them. It always ends in Ready: a failed fetch degrades to local
// progress instead of blocking.
func (c *Controller) Load(ctx context.Context) State {
	c.mu.Lock()
	c.phase = Loading
	untrusted := c.localUntrusted
	c.mu.Unlock()

	var (
		sp       session.Progress
		fetchErr error
		readErr  error
		local    = progress.Default()
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sp, fetchErr = c.session.FetchProgress(gctx)
		return nil
	})
	if !untrusted {
		g.Go(func() error {
			local, readErr = c.local.Read(gctx)
			return nil
		})
	}
	_ = g.Wait()

	last := c.catalog.LastFloor()
	c.mu.Lock()
	defer c.mu.Unlock()

	if fetchErr != nil {
		c.degraded = true
		c.completed = slices.Clone(local.CompletedLevels)
		c.highest = local.HighestLevel
		c.unlocked = min(c.highest+1, last)
		c.logger.Warn("progression.degraded", map[string]any{
			"error":   fetchErr.Error(),
			"highest": c.highest,
		})
	} else {
		merged := Merge(sp, local, last)
		if !untrusted && readErr == nil {
			c.local.Save(ctx, merged.Local())
		}
		c.degraded = false
		c.completed = merged.CompletedFloors
		c.highest = merged.HighestLevel
		c.unlocked = clamp(sp.CurrentFloor, floors.FirstFloor, last)
		c.logger.Info("progression.merge", map[string]any{
			"session_floors": len(sp.CompletedFloors),
			"local_floors":   len(local.CompletedLevels),
			"merged_floors":  len(merged.CompletedFloors),
			"highest":        merged.HighestLevel,
			"current_floor":  c.unlocked,
		})
	}
	c.current = c.unlocked
	c.pending = nil
	c.finished = false
	c.phase = Ready
	return c.snapshotLocked()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// SelectFloor moves the player to any floor up to the furthest unlocked one.
func (c *Controller) SelectFloor(floorID int) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase != Ready {
		return c.snapshotLocked(), ErrNotReady
	}
	if c.pending != nil {
		return c.snapshotLocked(), ErrOutcomePending
	}
	if _, ok := c.catalog.Floor(floorID); !ok {
		return c.snapshotLocked(), ErrUnknownFloor
	}
	if floorID > c.unlocked {
		return c.snapshotLocked(), ErrFloorLocked
	}
	c.current = floorID
	return c.snapshotLocked(), nil
}

// Complete records a verified floor and selects the one outcome to show. The
// floor does not advance until the outcome is dismissed.
func (c *Controller) Complete(ctx context.Context, comp Completion) (Outcome, error) {
	c.mu.Lock()
	if c.phase != Ready {
		c.mu.Unlock()
		return Outcome{}, ErrNotReady
	}
	if comp.FloorID == 0 {
		comp.FloorID = c.current
	}
	if _, ok := c.catalog.Floor(comp.FloorID); !ok {
		c.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: %d", ErrUnknownFloor, comp.FloorID)
	}
	if comp.WingCleared && comp.WingName == "" {
		if w, ok := c.catalog.WingForFloor(comp.FloorID); ok {
			comp.WingName = w.Name
		}
	}
	gen := c.generation
	previousHighest := c.highest
	if !slices.Contains(c.completed, comp.FloorID) {
		c.completed = append(c.completed, comp.FloorID)
		slices.Sort(c.completed)
	}
	c.highest = max(c.highest, comp.FloorID)
	untrusted := c.localUntrusted
	c.mu.Unlock()

	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	if c.currentGeneration() != gen {
		c.logger.Warn("progression.complete_dropped", map[string]any{"floor": comp.FloorID})
		return Outcome{}, ErrResetDuringCompletion
	}

	var unlocked *badges.Badge
	if !untrusted {
		var err error
		_, unlocked, err = c.local.CompleteLevel(ctx, comp.FloorID)
		if err != nil {
			untrusted = true
		}
	}
	if untrusted {
		if b, ok := badges.CheckNewUnlock(previousHighest, comp.FloorID); ok {
			unlocked = &b
		}
	}

	out := selectOutcome(comp)
	out.Badge = unlocked

	c.mu.Lock()
	c.pending = &out
	c.mu.Unlock()

	fields := map[string]any{"floor": out.FloorID, "outcome": out.Kind.String()}
	if out.WingName != "" {
		fields["wing"] = out.WingName
	}
	if unlocked != nil {
		fields["badge"] = unlocked.ID
	}
	c.logger.Info("progression.complete", fields)
	return out, nil
}

// Dismiss closes the pending outcome. Floor and wing clears move the player to
// the next floor; the game-complete outcome is terminal.
func (c *Controller) Dismiss() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return c.snapshotLocked()
	}
	out := *c.pending
	c.pending = nil
	if out.Kind == GameComplete {
		c.finished = true
		return c.snapshotLocked()
	}
	next := min(out.FloorID+1, c.catalog.LastFloor())
	c.current = next
	c.unlocked = max(c.unlocked, next)
	return c.snapshotLocked()
}

// Reset clears the server session first. If that fails nothing local changes.
// If the server clears but the local record cannot be written, the working
// view is still reset and local progress is ignored until a reset succeeds.
func (c *Controller) Reset(ctx context.Context) (State, error) {
	if _, err := c.session.Reset(ctx); err != nil {
		c.logger.Error("progression.reset_failed", map[string]any{"stage": "server", "error": err.Error()})
		return c.State(), &ResetError{Err: err}
	}

	c.commitMu.Lock()
	defer c.commitMu.Unlock()
	_, localErr := c.local.Reset(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.current = floors.FirstFloor
	c.unlocked = floors.FirstFloor
	c.completed = []int{}
	c.highest = 0
	c.pending = nil
	c.finished = false
	c.degraded = false
	c.phase = Ready
	if localErr != nil {
		c.localUntrusted = true
		c.logger.Error("progression.reset_failed", map[string]any{"stage": "local", "error": localErr.Error()})
		return c.snapshotLocked(), &ResetError{ServerReset: true, Err: localErr}
	}
	c.localUntrusted = false
	c.logger.Info("progression.reset", nil)
	return c.snapshotLocked(), nil
}

func (c *Controller) currentGeneration() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

func (c *Controller) snapshotLocked() State {
	st := State{
		Phase:           c.phase,
		Degraded:        c.degraded,
		CurrentFloor:    c.current,
		UnlockedFloor:   c.unlocked,
		CompletedFloors: slices.Clone(c.completed),
		HighestLevel:    c.highest,
		Finished:        c.finished,
	}
	if b, ok := badges.ForLevel(c.highest); ok {
		st.Badge = &b
	}
	if c.pending != nil {
		p := *c.pending
		st.Pending = &p
	}
	return st
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

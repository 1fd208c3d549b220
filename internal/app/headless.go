package app

import (
	"context"
	"strconv"
	"time"

	"breachlab/internal/badges"
	"breachlab/internal/floors"
	"breachlab/internal/progression"
)

const (
	settingLastFloor = "last_floor"
	settingLastSeen  = "last_seen"
)

// StatusReport is the reconciled progress printed by `breachlab status`.
type StatusReport struct {
	SessionID     string
	Degraded      bool
	CurrentFloor  floors.Floor
	UnlockedFloor int
	Completed     []int
	Total         int
	Badge         *badges.Badge
	NextBadge     *badges.Badge
	Attempts      int
	Breaches      int
	LastFloor     int
	LastSeen      time.Time
}

// Status loads and reconciles progress without starting the UI.
func (a *App) Status(ctx context.Context) (StatusReport, error) {
	st := a.ctrl.Load(ctx)
	return a.report(ctx, st)
}

// Reset clears the server session and local progress without starting the UI.
func (a *App) Reset(ctx context.Context) (StatusReport, error) {
	st, err := a.ctrl.Reset(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	return a.report(ctx, st)
}

func (a *App) report(ctx context.Context, st progression.State) (StatusReport, error) {
	rep := StatusReport{
		SessionID:     a.client.Token(),
		Degraded:      st.Degraded,
		UnlockedFloor: st.UnlockedFloor,
		Completed:     st.CompletedFloors,
		Total:         a.catalog.Count(),
		Badge:         st.Badge,
	}
	rep.CurrentFloor, _ = a.catalog.Floor(st.CurrentFloor)
	if next, ok := badges.NextMilestone(st.HighestLevel); ok {
		rep.NextBadge = &next
	}

	summary, err := a.store.GetSummary(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	rep.Attempts = summary.Attempts
	rep.Breaches = summary.Breaches

	settings, err := a.store.LoadSettings(ctx)
	if err != nil {
		return StatusReport{}, err
	}
	if n, err := strconv.Atoi(settings[settingLastFloor]); err == nil {
		rep.LastFloor = n
	}
	if ts, err := time.Parse(time.RFC3339, settings[settingLastSeen]); err == nil {
		rep.LastSeen = ts
	}
	return rep, nil
}

package progression

import (
	"breachlab/internal/badges"
	"breachlab/internal/session"
)

type OutcomeKind int

const (
	FloorCleared OutcomeKind = iota + 1
	WingCleared
	GameComplete
)

func (k OutcomeKind) String() string {
	switch k {
	case FloorCleared:
		return "floor_cleared"
	case WingCleared:
		return "wing_cleared"
	case GameComplete:
		return "game_complete"
	default:
		return "none"
	}
}

// Completion is a verified code as reported by the backend.
type Completion struct {
	FloorID      int
	WingCleared  bool
	WingName     string
	GameComplete bool
}

func CompletionFrom(res session.VerifyResult) Completion {
	return Completion{
		FloorID:      res.FloorID,
		WingCleared:  res.WingCleared,
		WingName:     res.WingName,
		GameComplete: res.GameComplete,
	}
}

// Outcome is the single celebration shown for a completion. Badge is set only
// when the completion crossed into a new tier.
type Outcome struct {
	Kind     OutcomeKind
	FloorID  int
	WingName string
	Badge    *badges.Badge
}

// selectOutcome applies the precedence game complete > wing cleared > floor cleared.
func selectOutcome(c Completion) Outcome {
	switch {
	case c.GameComplete:
		return Outcome{Kind: GameComplete, FloorID: c.FloorID}
	case c.WingCleared:
		return Outcome{Kind: WingCleared, FloorID: c.FloorID, WingName: c.WingName}
	default:
		return Outcome{Kind: FloorCleared, FloorID: c.FloorID}
	}
}

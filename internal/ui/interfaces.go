package ui

import "time"

type Controller interface {
	OnSelectFloor(floorID int)
	OnSendMessage(text string)
	OnRetry()
	OnHint()
	OnSubmitCode(code string)
	OnDismissOutcome()
	OnReset()
	OnOpenStats()
	OnQuit()
}

type View interface {
	Run() error
	Stop()
	SetController(Controller)
	SetScreen(screen Screen)
	SetProgress(state ProgressState)
	SetChat(state ChatState)
	SetCode(state CodeState)
	SetOutcome(state OutcomeState)
	SetStats(state StatsState)
	FlashStatus(msg string)
}

type Screen int

const (
	ScreenLoading Screen = iota
	ScreenPlaying
)

type LayoutMode int

const (
	LayoutWide LayoutMode = iota
	LayoutMedium
	LayoutTooSmall
)

type FloorRow struct {
	ID        int
	Name      string
	Character string
	Wing      string
	Locked    bool
	Completed bool
	Current   bool
}

// FloorDetail is the briefing for the active floor.
type FloorDetail struct {
	ID             int
	Name           string
	Character      string
	CharacterTitle string
	Wing           string
	Difficulty     string
	Technique      string
	Objective      string
	Description    string
	Avatar         string
	Accent         string
	Tips           []string
}

type ProgressState struct {
	Floors    []FloorRow
	Current   FloorDetail
	Completed int
	Total     int
	Badge     string
	// NextBadge names the next milestone, empty once every badge is earned.
	NextBadge   string
	NextBadgeAt int
	Degraded    bool
	Finished    bool
	Badges      []BadgeRow
}

type ChatLine struct {
	Role    string
	Speaker string
	Text    string
	IsError bool
}

type ChatState struct {
	Lines         []ChatLine
	Sending       bool
	Attempts      int
	HintAvailable bool
	Hint          string
	CanRetry      bool
	// Alert is raised when the last reply leaked an access code.
	Alert bool
}

type CodeState struct {
	Verifying bool
	Verified  bool
	Feedback  string
	IsError   bool
	ExpiresAt time.Time
}

type OutcomeState struct {
	Visible   bool
	Kind      string
	Title     string
	Lines     []string
	Badge     string
	ShareText string
	ShareURLs []string
}

type StatsRow struct {
	FloorID  int
	Name     string
	Attempts int
	Breaches int
}

type StatsState struct {
	Visible  bool
	Rows     []StatsRow
	Attempts int
	Breaches int
}

type BadgeRow struct {
	Icon        string
	Name        string
	UnlockLevel int
	Earned      bool
}

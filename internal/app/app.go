package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"breachlab/internal/badges"
	"breachlab/internal/devtools"
	"breachlab/internal/floors"
	"breachlab/internal/interaction"
	"breachlab/internal/progress"
	"breachlab/internal/progression"
	"breachlab/internal/session"
	"breachlab/internal/state"
	"breachlab/internal/telemetry"
	"breachlab/internal/ui"
)

type App struct {
	cfg Config

	logger  *telemetry.JSONLogger
	store   state.Store
	catalog *floors.Catalog
	client  *session.Client
	local   *progress.Store
	ctrl    *progression.Controller
	chat    *interaction.Chat
	code    *interaction.CodeEntry
	mock    *mockBackend

	view ui.View
	now  func() time.Time

	mu    sync.Mutex
	alert bool
}

func New(cfg Config) (*App, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewJSONLogger(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	// Mock sessions live only as long as the process, so keep their token and
	// local progress apart from the real ones.
	dbName := "state.db"
	if cfg.Mock {
		dbName = "mock.db"
	}
	store, err := state.NewSQLite(filepath.Join(cfg.DataDir, dbName))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		catalog: floors.Default(),
		now:     time.Now,
	}

	baseURL := cfg.APIBaseURL
	if cfg.Mock {
		scenario := devtools.NewManager().Resolve(cfg.DemoScenario)
		mock, err := startMock(a.catalog, scenario, logger)
		if err != nil {
			_ = store.Close()
			_ = logger.Close()
			return nil, err
		}
		a.mock = mock
		baseURL = mock.url
	}

	a.client = session.New(session.Options{
		BaseURL:        baseURL,
		Tokens:         store,
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	})
	a.wire()
	return a, nil
}

// wire builds the game components on top of the client and store.
func (a *App) wire() {
	ctx := context.Background()
	a.client.Restore(ctx)
	if a.mock != nil && a.mock.seeded != "" {
		a.client.SetToken(ctx, a.mock.seeded)
	}
	a.local = progress.NewStore(a.store, a.logger, a.catalog.LastFloor())
	a.ctrl = progression.NewController(a.catalog, a.client, a.local, a.logger)
	a.chat = interaction.NewChat(a.client, a.logger, interaction.ChatOptions{
		Timeout:   a.cfg.ChatTimeout,
		HintAfter: a.cfg.HintAfterAttempts,
	})
	a.code = interaction.NewCodeEntry(a.client, a.logger, a.cfg.FeedbackWindow)
	a.chat.OnChange(a.syncChat)
	a.code.OnChange(a.syncCode)
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("app.start", map[string]any{
		"run":  a.client.RunID(),
		"mock": a.cfg.Mock,
	})
	if a.view == nil {
		logWriter := io.Discard
		if a.cfg.DebugLayout {
			logWriter = os.Stderr
		}
		a.view = ui.New(ui.Options{
			ASCIIOnly:    a.cfg.ASCIIOnly,
			Debug:        a.cfg.DebugLayout,
			StyleVariant: a.cfg.UI.StyleVariant,
			MotionLevel:  a.cfg.UI.MotionLevel,
			LogWriter:    logWriter,
		})
	}
	a.view.SetController(a)
	a.view.SetScreen(ui.ScreenLoading)

	loadCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.load(loadCtx)
	go func() {
		<-loadCtx.Done()
		if ctx.Err() != nil {
			a.view.Stop()
		}
	}()
	return a.view.Run()
}

func (a *App) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.saveLastSeen(ctx)
	if a.mock != nil {
		_ = a.mock.Close(ctx)
	}
	_ = a.store.Close()
	_ = a.logger.Close()
}

func (a *App) load(ctx context.Context) progression.State {
	st := a.ctrl.Load(ctx)
	a.enterFloor(st)
	a.view.SetScreen(ui.ScreenPlaying)
	if st.Degraded {
		a.view.FlashStatus("Offline: showing progress saved on this device")
	}
	return st
}

// enterFloor points chat and code entry at the controller's current floor.
func (a *App) enterFloor(st progression.State) {
	f, ok := a.catalog.Floor(st.CurrentFloor)
	if !ok {
		return
	}
	a.setAlert(false)
	a.chat.SetFloor(f)
	a.code.SetFloor(f.ID)
	a.syncProgress(st)
	a.syncChat()
	a.syncCode()
}

func (a *App) OnSelectFloor(floorID int) {
	if floorID == a.chat.View().Floor.ID {
		return
	}
	st, err := a.ctrl.SelectFloor(floorID)
	if err != nil {
		a.view.FlashStatus(selectFailure(floorID, err))
		return
	}
	a.logger.Info("floor.select", map[string]any{"floor": floorID})
	a.enterFloor(st)
}

func (a *App) OnSendMessage(text string) {
	a.setAlert(false)
	turn, err := a.chat.Send(context.Background(), text)
	switch {
	case errors.Is(err, interaction.ErrBusy):
		a.view.FlashStatus("Still waiting for a reply")
		return
	case errors.Is(err, interaction.ErrEmptyMessage), errors.Is(err, interaction.ErrNoFloor):
		return
	}
	if turn.Stale {
		return
	}
	if turn.CodeDetected {
		a.setAlert(true)
	}
	a.syncChat()
}

// OnRetry resends the last failed message as it was typed.
func (a *App) OnRetry() {
	text, ok := a.chat.Retry()
	if !ok {
		return
	}
	a.OnSendMessage(text)
}

func (a *App) OnHint() {
	res, err := a.chat.FetchHint(context.Background())
	switch {
	case errors.Is(err, interaction.ErrHintLocked):
		a.view.FlashStatus(fmt.Sprintf("Hints unlock after %d attempts", a.cfg.HintAfterAttempts))
		return
	case err != nil:
		a.view.FlashStatus("Hint unavailable: " + session.MessageOf(err))
		return
	case !res.Available:
		a.view.FlashStatus(firstNonEmpty(res.Message, "No hint yet"))
		return
	}
	a.syncChat()
}

func (a *App) OnSubmitCode(raw string) {
	ctx := context.Background()
	floorID := a.code.View().FloorID
	res, err := a.code.Submit(ctx, raw)
	switch {
	case errors.Is(err, interaction.ErrEmptyCode), errors.Is(err, interaction.ErrNoFloor):
		return
	case errors.Is(err, interaction.ErrStale):
		return
	case errors.Is(err, interaction.ErrBusy):
		a.view.FlashStatus("Verification already in progress")
		return
	case errors.Is(err, interaction.ErrVerified):
		a.view.FlashStatus("Floor already breached")
		return
	}
	if err == nil {
		a.recordAttempt(ctx, floorID, res.Correct)
	}
	a.syncCode()
	if err != nil || !res.Correct {
		return
	}

	out, err := a.ctrl.Complete(ctx, progression.CompletionFrom(res))
	if errors.Is(err, progression.ErrResetDuringCompletion) {
		return
	}
	if err != nil {
		a.logger.Error("progression.complete_failed", map[string]any{"floor": floorID, "error": err.Error()})
		a.view.FlashStatus("Could not record the breach: " + err.Error())
		return
	}
	st := a.ctrl.State()
	a.syncProgress(st)
	a.view.SetOutcome(a.outcomeState(out, st))
}

func (a *App) OnDismissOutcome() {
	if a.ctrl.State().Pending == nil {
		return
	}
	st := a.ctrl.Dismiss()
	a.view.SetOutcome(ui.OutcomeState{})
	if st.Finished {
		a.syncProgress(st)
		a.view.FlashStatus("Every floor breached. F6 starts over.")
		return
	}
	a.enterFloor(st)
}

func (a *App) OnReset() {
	st, err := a.ctrl.Reset(context.Background())
	var rerr *progression.ResetError
	if errors.As(err, &rerr) && !rerr.ServerReset {
		a.view.FlashStatus("Reset failed: " + session.MessageOf(rerr.Err))
		return
	}
	a.view.SetOutcome(ui.OutcomeState{})
	a.enterFloor(st)
	if err != nil {
		a.view.FlashStatus("Session reset, but local progress could not be cleared. Try the reset again.")
		return
	}
	a.view.FlashStatus("Progress reset")
}

func (a *App) OnOpenStats() {
	ctx := context.Background()
	stats, err := a.store.GetFloorStats(ctx)
	if err != nil {
		a.logger.Error("stats.load_failed", map[string]any{"error": err.Error()})
		a.view.FlashStatus("Stats unavailable")
		return
	}
	summary, err := a.store.GetSummary(ctx)
	if err != nil {
		a.logger.Error("stats.load_failed", map[string]any{"error": err.Error()})
		a.view.FlashStatus("Stats unavailable")
		return
	}
	a.view.SetStats(a.statsState(stats, summary))
}

func (a *App) OnQuit() {
	a.logger.Info("app.quit", nil)
	a.view.Stop()
}

func (a *App) recordAttempt(ctx context.Context, floorID int, correct bool) {
	err := a.store.RecordVerifyAttempt(ctx, state.VerifyAttempt{
		SessionID: a.client.Token(),
		FloorID:   floorID,
		Correct:   correct,
		AttemptTS: a.now().UTC(),
	})
	if err != nil {
		a.logger.Error("stats.record_failed", map[string]any{"floor": floorID, "error": err.Error()})
	}
}

func (a *App) saveLastSeen(ctx context.Context) {
	if a.ctrl == nil {
		return
	}
	st := a.ctrl.State()
	if st.Phase != progression.Ready {
		return
	}
	err := a.store.SaveSettings(ctx, map[string]string{
		settingLastFloor: strconv.Itoa(st.CurrentFloor),
		settingLastSeen:  a.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		a.logger.Error("settings.save_failed", map[string]any{"error": err.Error()})
	}
}

func (a *App) setAlert(on bool) {
	a.mu.Lock()
	a.alert = on
	a.mu.Unlock()
}

func (a *App) alerting() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alert
}

func (a *App) syncProgress(st progression.State) {
	a.view.SetProgress(a.progressState(st))
}

func (a *App) syncChat() {
	a.view.SetChat(chatState(a.chat.View(), a.alerting()))
}

func (a *App) syncCode() {
	a.view.SetCode(codeState(a.code.View(), a.code.FeedbackExpiry()))
}

func (a *App) progressState(st progression.State) ui.ProgressState {
	out := ui.ProgressState{
		Total:     a.catalog.Count(),
		Completed: len(st.CompletedFloors),
		Degraded:  st.Degraded,
		Finished:  st.Finished,
	}
	for id := floors.FirstFloor; id <= a.catalog.LastFloor(); id++ {
		f, ok := a.catalog.Floor(id)
		if !ok {
			continue
		}
		out.Floors = append(out.Floors, ui.FloorRow{
			ID:        f.ID,
			Name:      f.Name,
			Character: f.Character,
			Wing:      f.Wing,
			Locked:    f.ID > st.UnlockedFloor,
			Completed: st.IsCompleted(f.ID),
			Current:   f.ID == st.CurrentFloor,
		})
	}
	if f, ok := a.catalog.Floor(st.CurrentFloor); ok {
		out.Current = floorDetail(f)
	}
	if st.Badge != nil {
		out.Badge = st.Badge.Icon + " " + st.Badge.Name
	}
	if next, ok := badges.NextMilestone(st.HighestLevel); ok {
		out.NextBadge = next.Icon + " " + next.Name
		out.NextBadgeAt = next.UnlockLevel
	}
	for _, b := range badges.All() {
		out.Badges = append(out.Badges, ui.BadgeRow{
			Icon:        b.Icon,
			Name:        b.Name,
			UnlockLevel: b.UnlockLevel,
			Earned:      st.HighestLevel >= b.UnlockLevel,
		})
	}
	return out
}

func (a *App) outcomeState(out progression.Outcome, st progression.State) ui.OutcomeState {
	f, _ := a.catalog.Floor(out.FloorID)
	s := ui.OutcomeState{Visible: true, Kind: out.Kind.String()}
	switch out.Kind {
	case progression.GameComplete:
		s.Title = "Building Breached"
		s.Lines = []string{
			fmt.Sprintf("%s gave up the last code. All %d floors are yours.", f.Character, a.catalog.Count()),
		}
		s.ShareText = badges.ShareText(st.Badge, st.HighestLevel)
		s.ShareURLs = []string{
			badges.TwitterShareURL(st.Badge, st.HighestLevel),
			badges.LinkedInShareURL(),
		}
	case progression.WingCleared:
		s.Title = "Wing Cleared"
		s.Lines = []string{
			fmt.Sprintf("Floor %d: %s breached.", f.ID, f.Name),
			fmt.Sprintf("The %s is secured.", out.WingName),
		}
	default:
		s.Title = "Floor Breached"
		s.Lines = []string{fmt.Sprintf("Floor %d: %s breached. %s never saw it coming.", f.ID, f.Name, f.Character)}
	}
	if out.Kind != progression.GameComplete {
		if next, ok := a.catalog.Floor(out.FloorID + 1); ok {
			s.Lines = append(s.Lines, "", fmt.Sprintf("Next up: Floor %d, %s (%s).", next.ID, next.Name, next.Character))
		}
	}
	if out.Badge != nil {
		s.Badge = out.Badge.Icon + " " + out.Badge.Name
		if s.ShareText == "" {
			s.ShareText = badges.ShareText(out.Badge, st.HighestLevel)
		}
	}
	return s
}

func (a *App) statsState(stats map[int]state.FloorStats, summary state.Summary) ui.StatsState {
	out := ui.StatsState{Visible: true, Attempts: summary.Attempts, Breaches: summary.Breaches}
	for id := floors.FirstFloor; id <= a.catalog.LastFloor(); id++ {
		f, ok := a.catalog.Floor(id)
		if !ok {
			continue
		}
		row := ui.StatsRow{FloorID: id, Name: f.Name}
		if s, ok := stats[id]; ok {
			row.Attempts = s.Attempts
			row.Breaches = s.Breaches
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func floorDetail(f floors.Floor) ui.FloorDetail {
	return ui.FloorDetail{
		ID:             f.ID,
		Name:           f.Name,
		Character:      f.Character,
		CharacterTitle: f.CharacterTitle,
		Wing:           f.Wing,
		Difficulty:     difficultyLabel(f.Difficulty),
		Technique:      f.Technique,
		Objective:      f.Objective,
		Description:    f.Description,
		Avatar:         f.Avatar,
		Accent:         f.AccentColor,
		Tips:           append([]string(nil), f.Tips...),
	}
}

func chatState(v interaction.ChatView, alert bool) ui.ChatState {
	out := ui.ChatState{
		Sending:       v.Sending,
		Attempts:      v.Attempts,
		HintAvailable: v.HintAvailable,
		Hint:          v.Hint,
		CanRetry:      v.CanRetry,
		Alert:         alert,
	}
	for _, m := range v.Messages {
		line := ui.ChatLine{Text: m.Content, IsError: m.IsError, Speaker: m.Character}
		switch m.Role {
		case interaction.RoleUser:
			line.Role = "user"
		case interaction.RoleAssistant:
			line.Role = "assistant"
		default:
			line.Role = "system"
		}
		out.Lines = append(out.Lines, line)
	}
	return out
}

func codeState(v interaction.CodeView, expires time.Time) ui.CodeState {
	return ui.CodeState{
		Verifying: v.Verifying,
		Verified:  v.Verified,
		Feedback:  v.Feedback,
		IsError:   v.Condition != interaction.ConditionNone,
		ExpiresAt: expires,
	}
}

func selectFailure(floorID int, err error) string {
	switch {
	case errors.Is(err, progression.ErrFloorLocked):
		return fmt.Sprintf("Floor %d is locked", floorID)
	case errors.Is(err, progression.ErrOutcomePending):
		return "Dismiss the current result first"
	case errors.Is(err, progression.ErrNotReady):
		return "Still loading"
	default:
		return err.Error()
	}
}

func difficultyLabel(d int) string {
	if d <= 0 {
		return ""
	}
	return fmt.Sprintf("Difficulty %d/5", d)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

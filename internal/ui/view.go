package ui

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	clog "github.com/charmbracelet/log"
	"github.com/charmbracelet/x/ansi"
)

type applyMsg struct {
	fn func(*Root)
}

type animateMsg time.Time

type expireMsg struct {
	at time.Time
}

type focusArea int

const (
	focusChat focusArea = iota
	focusCode
	focusFloors
)

type gameKeyMap struct {
	Focus    key.Binding
	Hint     key.Binding
	Briefing key.Binding
	Stats    key.Binding
	Badges   key.Binding
	Retry    key.Binding
	Reset    key.Binding
	Quit     key.Binding
}

func (k gameKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Hint, k.Briefing, k.Stats, k.Badges, k.Retry, k.Reset, k.Quit}
}

func (k gameKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Focus, k.Hint, k.Briefing, k.Stats}, {k.Badges, k.Retry, k.Reset, k.Quit}}
}

type Root struct {
	theme        Theme
	ascii        bool
	ctrl         Controller
	styleVariant string
	motionLevel  string
	now          func() time.Time

	mu      sync.Mutex
	program *tea.Program
	running bool

	screen Screen
	layout LayoutMode
	cols   int
	rows   int

	progress    ProgressState
	chat        ChatState
	code        CodeState
	outcome     OutcomeState
	stats       StatsState
	statusFlash string
	armedExpiry time.Time

	focus        focusArea
	floorIndex   int
	briefingOpen bool
	badgesOpen   bool
	resetOpen    bool
	resetIndex   int

	help      help.Model
	keymap    gameKeyMap
	meter     progress.Model
	spin      spinner.Model
	chatInput textinput.Model
	codeInput textinput.Model
	chatLog   viewport.Model
	markdown  *glamour.TermRenderer
	logger    *clog.Logger

	briefingFloor int
	briefingWidth int
	briefingText  string

	overlayPos float64
	overlayVel float64
	spring     harmonica.Spring

	lastInputEvent string
}

type Options struct {
	ASCIIOnly    bool
	Debug        bool
	StyleVariant string
	MotionLevel  string
	// LogWriter receives UI diagnostics. Defaults to stderr.
	LogWriter io.Writer
}

func New(opts Options) *Root {
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	logger := clog.NewWithOptions(w, clog.Options{Prefix: "breachlab-ui", Level: clog.WarnLevel})
	if opts.Debug {
		logger.SetLevel(clog.DebugLevel)
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(44),
	)
	if err != nil {
		renderer = nil
	}

	motionLevel := normalizeMotionLevel(opts.MotionLevel)
	styleVariant := normalizeStyleVariant(opts.StyleVariant)
	theme := ThemeForVariant(styleVariant)
	spring := harmonica.NewSpring(harmonica.FPS(60), 10.0, 0.8)
	switch motionLevel {
	case "reduced":
		spring = harmonica.NewSpring(harmonica.FPS(30), 9.0, 0.92)
	case "off":
		spring = harmonica.NewSpring(harmonica.FPS(60), 1000.0, 1.0)
	}
	meter := progress.New(
		progress.WithWidth(20),
		progress.WithScaledGradient("#5EC2FF", "#79E6A6"),
		progress.WithoutPercentage(),
	)
	if motionLevel == "off" {
		meter.SetSpringOptions(1000.0, 1.0)
	}
	spin := spinner.New(
		spinner.WithSpinner(spinner.MiniDot),
		spinner.WithStyle(theme.Accent),
	)

	chatInput := textinput.New()
	chatInput.Prompt = "> "
	chatInput.Placeholder = "Say something persuasive..."
	chatInput.CharLimit = 500
	chatInput.Focus()

	codeInput := textinput.New()
	codeInput.Prompt = "code: "
	codeInput.Placeholder = "BREACH-XXXX-XXXX"
	codeInput.CharLimit = 32

	r := &Root{
		theme:        theme,
		ascii:        opts.ASCIIOnly,
		styleVariant: styleVariant,
		motionLevel:  motionLevel,
		now:          time.Now,
		screen:       ScreenLoading,
		layout:       LayoutWide,
		cols:         120,
		rows:         30,
		help:         help.New(),
		meter:        meter,
		spin:         spin,
		chatInput:    chatInput,
		codeInput:    codeInput,
		chatLog:      viewport.New(80, 20),
		markdown:     renderer,
		logger:       logger,
		spring:       spring,
	}
	r.keymap = gameKeyMap{
		Focus:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("Tab", "Focus")),
		Hint:     key.NewBinding(key.WithKeys("f1"), key.WithHelp("F1", "Hint")),
		Briefing: key.NewBinding(key.WithKeys("f2"), key.WithHelp("F2", "Briefing")),
		Stats:    key.NewBinding(key.WithKeys("f3"), key.WithHelp("F3", "Stats")),
		Badges:   key.NewBinding(key.WithKeys("f4"), key.WithHelp("F4", "Badges")),
		Retry:    key.NewBinding(key.WithKeys("f5"), key.WithHelp("F5", "Retry")),
		Reset:    key.NewBinding(key.WithKeys("f6"), key.WithHelp("F6", "Reset")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+q", "ctrl+c"), key.WithHelp("Ctrl+Q", "Quit")),
	}
	return r
}

func (r *Root) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, spinnerTickCmd(r.spin))
}

func (r *Root) Update(msg tea.Msg) (model tea.Model, cmd tea.Cmd) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("update", rec, msg)
			model = r
			cmd = nil
		}
	}()

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.cols = msg.Width
		r.rows = msg.Height
		r.layout = DetermineLayoutMode(r.cols, r.rows)
		r.refreshChatLog()
		return r, nil
	case applyMsg:
		if msg.fn != nil {
			msg.fn(r)
		}
		return r, tea.Batch(r.animateIfNeeded(), r.expiryCmd())
	case expireMsg:
		if msg.at.Equal(r.code.ExpiresAt) {
			r.code.Feedback = ""
			r.code.IsError = false
			r.code.ExpiresAt = time.Time{}
		}
		return r, nil
	case animateMsg:
		target := r.briefingTarget()
		r.overlayPos, r.overlayVel = r.spring.Update(r.overlayPos, r.overlayVel, target)
		if r.shouldAnimate(target) {
			return r, animateTickCmd()
		}
		r.overlayPos = target
		r.overlayVel = 0
		return r, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		r.spin, cmd = r.spin.Update(msg)
		return r, cmd
	case tea.KeyMsg:
		return r.handleKey(msg)
	}
	return r, r.updateInputs(msg)
}

func (r *Root) View() (view string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.onModelPanic("view", rec, nil)
			width := max(1, r.cols)
			msg := "UI recovered from a rendering panic. Check logs."
			if r.statusFlash == "" {
				r.statusFlash = "Recovered UI panic"
			}
			view = r.theme.Fail.Width(width).Render(trimForWidth(msg, max(1, width-1)))
		}
	}()

	if r.cols < 1 {
		r.cols = 120
	}
	if r.rows < 1 {
		r.rows = 30
	}

	var base string
	switch r.screen {
	case ScreenLoading:
		base = r.renderLoading()
	default:
		base = r.renderPlaying()
	}
	if overlay := r.renderOverlay(); overlay != "" {
		base = composeOverlay(base, overlay, r.cols, r.rows)
	}
	return base
}

func (r *Root) Run() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	p := tea.NewProgram(r, tea.WithAltScreen())
	r.program = p
	r.running = true
	r.mu.Unlock()

	_, err := p.Run()

	r.mu.Lock()
	r.program = nil
	r.running = false
	r.mu.Unlock()
	return err
}

func (r *Root) Stop() {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Quit()
	}
}

func (r *Root) SetController(c Controller) {
	r.ctrl = c
}

func (r *Root) SetScreen(screen Screen) {
	r.apply(func(m *Root) {
		m.screen = screen
	})
}

func (r *Root) SetProgress(s ProgressState) {
	r.apply(func(m *Root) {
		prev := m.progress.Current.ID
		m.progress = s
		m.progress.Floors = append([]FloorRow(nil), s.Floors...)
		if s.Current.ID != prev {
			m.floorIndex = m.indexOfFloor(s.Current.ID)
			m.code = CodeState{}
			m.codeInput.Reset()
		}
		if m.floorIndex >= len(m.progress.Floors) {
			m.floorIndex = max(0, len(m.progress.Floors)-1)
		}
	})
}

func (r *Root) SetChat(s ChatState) {
	r.apply(func(m *Root) {
		m.chat = s
		m.chat.Lines = append([]ChatLine(nil), s.Lines...)
		m.refreshChatLog()
	})
}

func (r *Root) SetCode(s CodeState) {
	r.apply(func(m *Root) {
		m.code = s
		if s.Verified {
			m.codeInput.Reset()
		}
	})
}

func (r *Root) SetOutcome(s OutcomeState) {
	r.apply(func(m *Root) {
		m.outcome = s
		if s.Visible {
			m.briefingOpen = false
		}
	})
}

func (r *Root) SetStats(s StatsState) {
	r.apply(func(m *Root) {
		m.stats = s
	})
}

// requestInFlight reports a chat send or code verify still waiting on the
// server. Reset is refused until it settles.
func (r *Root) requestInFlight() bool {
	return r.chat.Sending || r.code.Verifying
}

func (r *Root) FlashStatus(msg string) {
	r.apply(func(m *Root) {
		m.statusFlash = msg
	})
}

func (r *Root) apply(fn func(*Root)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	p := r.program
	running := r.running
	if !running || p == nil {
		fn(r)
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	p.Send(applyMsg{fn: fn})
}

func (r *Root) dispatchController(fn func(Controller)) {
	if fn == nil || r.ctrl == nil {
		return
	}
	ctrl := r.ctrl
	go fn(ctrl)
}

func (r *Root) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	r.recordInputEvent("key:" + msg.String())

	if key.Matches(msg, r.keymap.Quit) {
		r.dispatchController(func(c Controller) { c.OnQuit() })
		return r, nil
	}
	if r.screen == ScreenLoading {
		return r, nil
	}
	if r.overlayActive() {
		return r.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, r.keymap.Focus):
		r.setFocus((r.focus + 1) % 3)
		return r, nil
	case key.Matches(msg, r.keymap.Hint):
		if !r.chat.HintAvailable {
			r.statusFlash = fmt.Sprintf("Hints unlock after a few attempts (%d so far)", r.chat.Attempts)
			return r, nil
		}
		r.dispatchController(func(c Controller) { c.OnHint() })
		return r, nil
	case key.Matches(msg, r.keymap.Briefing):
		r.briefingOpen = !r.briefingOpen
		if r.motionLevel == "off" {
			r.overlayPos = r.briefingTarget()
			r.overlayVel = 0
		}
		return r, r.animateIfNeeded()
	case key.Matches(msg, r.keymap.Stats):
		r.dispatchController(func(c Controller) { c.OnOpenStats() })
		return r, nil
	case key.Matches(msg, r.keymap.Badges):
		r.badgesOpen = true
		return r, nil
	case key.Matches(msg, r.keymap.Retry):
		if r.chat.CanRetry && !r.chat.Sending {
			r.dispatchController(func(c Controller) { c.OnRetry() })
		}
		return r, nil
	case key.Matches(msg, r.keymap.Reset):
		if r.requestInFlight() {
			r.statusFlash = "Wait for the current request to finish"
			return r, nil
		}
		r.resetOpen = true
		r.resetIndex = 0
		return r, nil
	}

	switch msg.String() {
	case "esc":
		if r.briefingOpen {
			r.briefingOpen = false
			return r, r.animateIfNeeded()
		}
		return r, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		r.chatLog, cmd = r.chatLog.Update(msg)
		return r, cmd
	case "enter":
		r.submitFocused()
		return r, nil
	}

	if r.focus == focusFloors {
		switch msg.String() {
		case "up", "k":
			r.floorIndex = wrapIndex(r.floorIndex-1, len(r.progress.Floors))
		case "down", "j":
			r.floorIndex = wrapIndex(r.floorIndex+1, len(r.progress.Floors))
		}
		return r, nil
	}
	return r, r.updateInputs(msg)
}

func (r *Root) submitFocused() {
	switch r.focus {
	case focusChat:
		text := strings.TrimSpace(r.chatInput.Value())
		if text == "" || r.chat.Sending {
			return
		}
		r.chatInput.Reset()
		r.chat.Alert = false
		r.dispatchController(func(c Controller) { c.OnSendMessage(text) })
	case focusCode:
		code := strings.TrimSpace(r.codeInput.Value())
		if code == "" || r.code.Verifying || r.code.Verified {
			return
		}
		r.codeInput.Reset()
		r.dispatchController(func(c Controller) { c.OnSubmitCode(code) })
	case focusFloors:
		if r.floorIndex < 0 || r.floorIndex >= len(r.progress.Floors) {
			return
		}
		row := r.progress.Floors[r.floorIndex]
		if row.Locked {
			r.statusFlash = fmt.Sprintf("Floor %d is locked", row.ID)
			return
		}
		id := row.ID
		r.dispatchController(func(c Controller) { c.OnSelectFloor(id) })
		r.setFocus(focusChat)
	}
}

func (r *Root) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := msg.String()
	switch r.topOverlay() {
	case "outcome":
		switch s {
		case "enter", "esc", " ":
			r.outcome.Visible = false
			r.dispatchController(func(c Controller) { c.OnDismissOutcome() })
		}
	case "reset":
		switch s {
		case "left", "right", "tab", "up", "down":
			r.resetIndex = 1 - r.resetIndex
		case "enter":
			if r.resetIndex == 1 && r.requestInFlight() {
				r.statusFlash = "Wait for the current request to finish"
			} else if r.resetIndex == 1 {
				r.dispatchController(func(c Controller) { c.OnReset() })
			}
			r.resetOpen = false
			r.resetIndex = 0
		case "esc", "q":
			r.resetOpen = false
			r.resetIndex = 0
		}
	case "stats":
		switch s {
		case "esc", "q", "enter":
			r.stats.Visible = false
		}
	case "badges":
		switch s {
		case "esc", "q", "enter":
			r.badgesOpen = false
		}
	}
	return r, nil
}

func (r *Root) setFocus(f focusArea) {
	r.focus = f
	r.chatInput.Blur()
	r.codeInput.Blur()
	switch f {
	case focusChat:
		r.chatInput.Focus()
	case focusCode:
		r.codeInput.Focus()
	case focusFloors:
		r.floorIndex = r.indexOfFloor(r.progress.Current.ID)
	}
}

func (r *Root) updateInputs(msg tea.Msg) tea.Cmd {
	var chatCmd, codeCmd tea.Cmd
	r.chatInput, chatCmd = r.chatInput.Update(msg)
	r.codeInput, codeCmd = r.codeInput.Update(msg)
	return tea.Batch(chatCmd, codeCmd)
}

func (r *Root) indexOfFloor(id int) int {
	for i, row := range r.progress.Floors {
		if row.ID == id {
			return i
		}
	}
	return 0
}

func (r *Root) renderLoading() string {
	lines := []string{
		"",
		"  " + r.spin.View() + " Establishing secure connection...",
		"",
		"  Syncing your breach record.",
	}
	panel := r.drawPanel("BreachLab", lines, min(48, r.cols), min(8, r.rows))
	return lipgloss.Place(r.cols, r.rows, lipgloss.Center, lipgloss.Center, panel)
}

func (r *Root) renderPlaying() string {
	w, h := r.cols, r.rows
	mode := DetermineLayoutMode(w, h)
	r.layout = mode

	if mode == LayoutTooSmall {
		msg := []string{
			"Terminal too small",
			fmt.Sprintf("Current: %dx%d", w, h),
			"Minimum: 80x24",
			"Resize the terminal to continue.",
		}
		panel := r.drawPanel("Resize Required", msg, min(60, w), min(12, h))
		return lipgloss.Place(w, h, lipgloss.Center, lipgloss.Center, panel)
	}

	header := r.headerText()
	bodyH := max(3, h-4)
	bodyY := 1

	var body string
	switch {
	case mode == LayoutWide:
		list := r.drawPanel("Floors", r.floorLines(), floorListWidth, bodyH)
		body = lipgloss.JoinHorizontal(lipgloss.Top, list, r.renderChatPanel(w-floorListWidth, bodyH))
	case r.focus == focusFloors:
		body = r.drawPanel("Floors", r.floorLines(), w, bodyH)
	default:
		body = r.renderChatPanel(w, bodyH)
	}

	base := strings.Join([]string{header, body, r.chatInputLine(), r.codeLine(), r.statusText()}, "\n")
	if drawer := r.renderBriefingDrawer(bodyH); drawer != "" {
		width := ansi.StringWidth(strings.SplitN(drawer, "\n", 2)[0])
		base = composeOverlayAt(base, drawer, w, h, bodyY, max(0, w-width))
	}
	return base
}

func (r *Root) renderChatPanel(width, height int) string {
	title := "Chat"
	if c := r.progress.Current; c.Character != "" {
		title = fmt.Sprintf("Chat: %s", c.Character)
		if c.CharacterTitle != "" {
			title += " (" + c.CharacterTitle + ")"
		}
	}
	innerW := max(1, width-2)
	innerH := max(1, height-2)
	if r.chatLog.Width != innerW || r.chatLog.Height != innerH {
		r.chatLog.Width = innerW
		r.chatLog.Height = innerH
		r.refreshChatLog()
	}
	return r.drawPanel(title, strings.Split(r.chatLog.View(), "\n"), width, height)
}

func (r *Root) refreshChatLog() {
	width := max(10, r.chatLog.Width)
	var b strings.Builder
	for i, line := range r.chat.Lines {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(ansi.Wrap(r.chatLineText(line), width, ""))
	}
	if r.chat.Hint != "" {
		b.WriteString("\n\n" + ansi.Wrap(r.theme.Pending.Render("Hint: ")+r.chat.Hint, width, ""))
	}
	r.chatLog.SetContent(b.String())
	r.chatLog.GotoBottom()
}

func (r *Root) chatLineText(line ChatLine) string {
	switch {
	case line.IsError:
		return r.theme.Fail.Render(line.Text)
	case line.Role == "user":
		return r.theme.User.Render("You") + ": " + line.Text
	case line.Role == "assistant":
		return r.theme.Assistant.Render(firstNonEmptyStr(line.Speaker, "???")) + ": " + line.Text
	default:
		return r.theme.Muted.Render(line.Text)
	}
}

func (r *Root) floorLines() []string {
	lines := make([]string, 0, len(r.progress.Floors)+6)
	wing := ""
	for i, row := range r.progress.Floors {
		if row.Wing != wing {
			wing = row.Wing
			lines = append(lines, r.theme.PanelTitle.Render(wing))
		}
		mark := "  "
		switch {
		case row.Completed:
			mark = ifThenElse(r.ascii, "x ", "✓ ")
		case row.Locked:
			mark = ifThenElse(r.ascii, "# ", "🔒")
		}
		cursor := "  "
		if r.focus == focusFloors && i == r.floorIndex {
			cursor = "> "
		} else if row.Current {
			cursor = "* "
		}
		text := fmt.Sprintf("%s%s %2d %s", cursor, mark, row.ID, row.Name)
		switch {
		case row.Locked:
			text = r.theme.Locked.Render(text)
		case row.Current:
			text = r.theme.Accent.Render(text)
		case row.Completed:
			text = r.theme.Pass.Render(text)
		}
		lines = append(lines, text)
	}
	return lines
}

func (r *Root) chatInputLine() string {
	line := r.chatInput.View()
	if r.chat.Sending {
		line += "  " + r.spin.View() + r.theme.Muted.Render(" "+firstNonEmptyStr(r.progress.Current.Character, "They")+" is typing...")
	}
	if r.chat.CanRetry && !r.chat.Sending {
		line += r.theme.Pending.Render("  [F5 retry]")
	}
	return padCell(line, r.cols)
}

func (r *Root) codeLine() string {
	var status string
	switch {
	case r.code.Verified:
		status = r.theme.Pass.Render("ACCESS GRANTED")
	case r.code.Verifying:
		status = r.spin.View() + " verifying..."
	case r.code.Feedback != "" && r.feedbackLive():
		status = r.theme.Fail.Render(r.code.Feedback)
	}
	return padCell(r.codeInput.View()+"  "+status, r.cols)
}

func (r *Root) feedbackLive() bool {
	return r.code.ExpiresAt.IsZero() || r.now().Before(r.code.ExpiresAt)
}

func (r *Root) headerText() string {
	if r.chat.Alert {
		return r.theme.Alert.Width(r.cols).Render(trimForWidth("SECURITY ALERT: an access code was disclosed. Enter it below.", max(1, r.cols-2)))
	}
	c := r.progress.Current
	parts := []string{"BREACHLAB"}
	if c.ID > 0 {
		parts = append(parts, fmt.Sprintf("Floor %d/%d: %s", c.ID, max(r.progress.Total, c.ID), c.Name))
	}
	if c.Difficulty != "" {
		parts = append(parts, c.Difficulty)
	}
	if r.progress.Badge != "" {
		parts = append(parts, r.progress.Badge)
	}
	if r.progress.Degraded {
		parts = append(parts, "OFFLINE")
	}
	return r.theme.Header.Width(r.cols).Render(trimForWidth(strings.Join(parts, " | "), max(1, r.cols-2)))
}

func (r *Root) statusText() string {
	percent := 0.0
	if r.progress.Total > 0 {
		percent = float64(r.progress.Completed) / float64(r.progress.Total)
	}
	left := r.meterBar(16) + fmt.Sprintf(" %d/%d breached", r.progress.Completed, r.progress.Total)
	if r.progress.NextBadge != "" {
		left += fmt.Sprintf("  next: %s @%d", r.progress.NextBadge, r.progress.NextBadgeAt)
	}
	if percent >= 1 && r.progress.Finished {
		left += "  ALL FLOORS BREACHED"
	}
	if r.statusFlash != "" {
		left += "  " + r.statusFlash
	}
	r.help.Width = max(0, r.cols-ansi.StringWidth(left)-4)
	line := left + "  " + r.help.ShortHelpView(r.keymap.ShortHelp())
	return r.theme.Status.Width(r.cols).Render(trimStyled(line, max(1, r.cols-2)))
}

func (r *Root) meterBar(width int) string {
	m := r.meter
	m.Width = max(8, width)
	if r.progress.Total == 0 {
		return m.ViewAs(0)
	}
	return m.ViewAs(float64(r.progress.Completed) / float64(r.progress.Total))
}

func (r *Root) renderBriefingDrawer(bodyH int) string {
	if r.overlayPos <= 0.01 || r.progress.Current.ID == 0 {
		return ""
	}
	full := min(50, max(30, r.cols/2))
	width := max(6, int(float64(full)*r.overlayPos))
	lines := strings.Split(strings.TrimRight(r.briefing(full-2), "\n"), "\n")
	lines = append(lines, "", "F2/Esc: Close")
	return r.drawPanel("Briefing", lines, width, bodyH)
}

func (r *Root) briefing(width int) string {
	c := r.progress.Current
	if r.briefingFloor == c.ID && r.briefingWidth == width && r.briefingText != "" {
		return r.briefingText
	}
	md := briefingMarkdown(c)
	out := md
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(md); err == nil {
			out = ansi.Strip(rendered)
		}
	}
	r.briefingFloor = c.ID
	r.briefingWidth = width
	r.briefingText = out
	return out
}

func briefingMarkdown(c FloorDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Floor %d: %s\n\n", c.ID, c.Name)
	if c.Avatar != "" {
		fmt.Fprintf(&b, "%s ", c.Avatar)
	}
	fmt.Fprintf(&b, "**%s**, %s\n\n", c.Character, c.CharacterTitle)
	if c.Description != "" {
		fmt.Fprintf(&b, "> %s\n\n", c.Description)
	}
	fmt.Fprintf(&b, "**Wing:** %s  \n**Technique:** %s  \n**Difficulty:** %s\n\n", c.Wing, c.Technique, c.Difficulty)
	fmt.Fprintf(&b, "**Objective:** %s\n", c.Objective)
	if len(c.Tips) > 0 {
		b.WriteString("\n## Tips\n\n")
		for _, tip := range c.Tips {
			fmt.Fprintf(&b, "- %s\n", tip)
		}
	}
	return b.String()
}

func (r *Root) renderOverlay() string {
	top := r.topOverlay()
	if top == "" {
		return ""
	}
	var title string
	var lines []string
	switch top {
	case "outcome":
		title = firstNonEmptyStr(r.outcome.Title, "Floor Breached")
		lines = append(lines, r.outcome.Lines...)
		if r.outcome.Badge != "" {
			lines = append(lines, "", "Badge unlocked: "+r.outcome.Badge)
		}
		if r.outcome.ShareText != "" {
			lines = append(lines, "", "Share:", r.outcome.ShareText)
			lines = append(lines, r.outcome.ShareURLs...)
		}
		lines = append(lines, "", "Enter: Continue")
	case "reset":
		title = "Confirm Reset"
		lines = []string{"Reset wipes your session and all local progress. Continue?", ""}
		for i, label := range []string{"Cancel", "Reset"} {
			prefix := "  "
			if i == r.resetIndex {
				prefix = "> "
			}
			lines = append(lines, prefix+label)
		}
	case "stats":
		title = "Stats"
		lines = append(lines, fmt.Sprintf("Code attempts: %d   Breaches: %d", r.stats.Attempts, r.stats.Breaches), "")
		for _, row := range r.stats.Rows {
			lines = append(lines, fmt.Sprintf("%2d %-22s attempts %3d  breaches %2d", row.FloorID, trimForWidth(row.Name, 22), row.Attempts, row.Breaches))
		}
		lines = append(lines, "", "Esc: Close")
	case "badges":
		title = "Badges"
		for _, b := range r.progress.Badges {
			state := "locked"
			if b.Earned {
				state = "earned"
			}
			lines = append(lines, fmt.Sprintf("%s %-22s floor %2d  %s", b.Icon, b.Name, b.UnlockLevel, state))
		}
		lines = append(lines, "", "Esc: Close")
	}
	w := min(max(56, r.cols-24), r.cols)
	h := min(len(lines)+2, max(8, r.rows-4))
	return r.drawPanel(title, lines, w, h)
}

func (r *Root) topOverlay() string {
	switch {
	case r.outcome.Visible:
		return "outcome"
	case r.resetOpen:
		return "reset"
	case r.stats.Visible:
		return "stats"
	case r.badgesOpen:
		return "badges"
	}
	return ""
}

func (r *Root) overlayActive() bool {
	return r.topOverlay() != ""
}

func (r *Root) drawPanel(title string, lines []string, width, height int) string {
	width = max(4, width)
	height = max(3, height)
	innerW := width - 2
	innerH := height - 2

	h := "─"
	v := "│"
	tl := "┌"
	tr := "┐"
	bl := "└"
	br := "┘"
	if r.ascii {
		h = "-"
		v = "|"
		tl, tr, bl, br = "+", "+", "+", "+"
	}

	top := tl + strings.Repeat(h, innerW) + tr
	if title != "" && innerW > 2 {
		t := " " + ansi.Truncate(title, innerW-2, "…") + " "
		runes := []rune(top)
		for i, ch := range []rune(t) {
			pos := 1 + i
			if pos >= len(runes)-1 {
				break
			}
			runes[pos] = ch
		}
		top = string(runes)
	}

	out := make([]string, 0, height)
	out = append(out, r.theme.PanelBorder.Render(top))
	for row := 0; row < innerH; row++ {
		line := ""
		if row < len(lines) {
			line = lines[row]
		}
		out = append(out, r.theme.PanelBorder.Render(v)+r.theme.PanelBody.Render(padCell(line, innerW))+r.theme.PanelBorder.Render(v))
	}
	out = append(out, r.theme.PanelBorder.Render(bl+strings.Repeat(h, innerW)+br))
	return strings.Join(out, "\n")
}

func (r *Root) briefingTarget() float64 {
	if r.briefingOpen && !r.overlayActive() {
		return 1.0
	}
	return 0.0
}

func (r *Root) animateIfNeeded() tea.Cmd {
	if r.shouldAnimate(r.briefingTarget()) {
		return animateTickCmd()
	}
	return nil
}

func (r *Root) shouldAnimate(target float64) bool {
	if r.motionLevel == "off" {
		return false
	}
	if target > 0 {
		return r.overlayPos < 0.999 || abs(r.overlayVel) > 0.001
	}
	return r.overlayPos > 0.001 || abs(r.overlayVel) > 0.001
}

// expiryCmd schedules clearing of a time-limited code message once per expiry.
func (r *Root) expiryCmd() tea.Cmd {
	at := r.code.ExpiresAt
	if at.IsZero() || at.Equal(r.armedExpiry) {
		return nil
	}
	r.armedExpiry = at
	return tea.Tick(max(0, at.Sub(r.now())), func(time.Time) tea.Msg { return expireMsg{at: at} })
}

func animateTickCmd() tea.Cmd {
	return tea.Tick(time.Second/60, func(t time.Time) tea.Msg { return animateMsg(t) })
}

func spinnerTickCmd(model spinner.Model) tea.Cmd {
	return func() tea.Msg {
		return model.Tick()
	}
}

func firstNonEmptyStr(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func ifThenElse(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func wrapIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i < 0 {
		i = n - 1
	}
	if i >= n {
		i = 0
	}
	return i
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// padCell pads or cuts s to exactly width terminal cells, keeping styling.
func padCell(s string, width int) string {
	if width <= 0 {
		return ""
	}
	s = strings.ReplaceAll(s, "\t", "    ")
	if ansi.StringWidth(s) > width {
		s = ansi.Truncate(s, width, "")
	}
	if w := ansi.StringWidth(s); w < width {
		s += strings.Repeat(" ", width-w)
	}
	return s
}

func padRune(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(strings.ReplaceAll(s, "\t", "    "))
	if len(r) > width {
		r = r[:width]
	}
	if len(r) < width {
		r = append(r, []rune(strings.Repeat(" ", width-len(r)))...)
	}
	return string(r)
}

func composeOverlay(base, overlay string, cols, rows int) string {
	overlayLines := strings.Split(strings.TrimRight(ansi.Strip(overlay), "\n"), "\n")
	ow := 1
	for _, line := range overlayLines {
		ow = max(ow, len([]rune(line)))
	}
	ow = min(ow, cols)
	oh := min(len(overlayLines), rows)
	return composeOverlayAt(base, overlay, cols, rows, (rows-oh)/2, max(0, (cols-ow)/2))
}

func composeOverlayAt(base, overlay string, cols, rows, startRow, startCol int) string {
	if cols <= 0 || rows <= 0 {
		return base
	}
	baseLines := strings.Split(ansi.Strip(base), "\n")
	if len(baseLines) < rows {
		baseLines = append(baseLines, make([]string, rows-len(baseLines))...)
	}
	for i := 0; i < rows; i++ {
		baseLines[i] = padRune(baseLines[i], cols)
	}

	overlayLines := strings.Split(strings.TrimRight(ansi.Strip(overlay), "\n"), "\n")
	ow := 1
	for _, line := range overlayLines {
		ow = max(ow, len([]rune(line)))
	}
	ow = min(ow, cols)
	startRow = max(0, startRow)
	startCol = max(0, startCol)

	for i, line := range overlayLines {
		row := startRow + i
		if row >= rows {
			break
		}
		dst := []rune(baseLines[row])
		src := []rune(line)
		if len(src) > ow {
			src = src[:ow]
		}
		for j := 0; j < ow && startCol+j < len(dst); j++ {
			dst[startCol+j] = ' '
		}
		for j := 0; j < len(src) && startCol+j < len(dst); j++ {
			dst[startCol+j] = src[j]
		}
		baseLines[row] = string(dst)
	}
	return strings.Join(baseLines[:rows], "\n")
}

func trimForWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	r := []rune(strings.ReplaceAll(ansi.Strip(s), "\n", " "))
	if len(r) <= width {
		return string(r)
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}

func trimStyled(s string, width int) string {
	if ansi.StringWidth(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}

func normalizeStyleVariant(v string) string {
	switch strings.TrimSpace(v) {
	case "cozy_clean", "retro_terminal", "modern_arcade":
		return strings.TrimSpace(v)
	default:
		return "modern_arcade"
	}
}

func normalizeMotionLevel(v string) string {
	switch strings.TrimSpace(v) {
	case "off", "reduced", "full":
		return strings.TrimSpace(v)
	default:
		return "full"
	}
}

func (r *Root) recordInputEvent(event string) {
	r.lastInputEvent = trimForWidth(strings.TrimSpace(event), 160)
}

func (r *Root) onModelPanic(where string, recovered any, msg tea.Msg) {
	if r.statusFlash == "" {
		r.statusFlash = "Recovered UI panic"
	}
	msgType := ""
	if msg != nil {
		msgType = fmt.Sprintf("%T", msg)
	}
	r.logger.Error("ui.panic_recovered",
		"where", where,
		"panic", fmt.Sprintf("%v", recovered),
		"messageType", msgType,
		"screen", int(r.screen),
		"layout", int(r.layout),
		"cols", r.cols,
		"rows", r.rows,
		"overlay", r.topOverlay(),
		"last_input", r.lastInputEvent,
		"stack", string(debug.Stack()),
	)
}

var _ tea.Model = (*Root)(nil)
var _ View = (*Root)(nil)

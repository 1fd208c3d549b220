package interaction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"breachlab/internal/floors"
	"breachlab/internal/session"
	"breachlab/internal/telemetry"
)

type fakeChatter struct {
	mu       sync.Mutex
	replies  []session.ChatReply
	errs     []error
	block    bool
	sent     []string
	hint     session.HintResult
	canceled chan struct{}
}

func (f *fakeChatter) SendMessage(ctx context.Context, message string, floorID int) (session.ChatReply, error) {
	f.mu.Lock()
	f.sent = append(f.sent, message)
	block := f.block
	var reply session.ChatReply
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	} else if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		if f.canceled != nil {
			close(f.canceled)
		}
		return session.ChatReply{}, &session.Error{Op: "send message", Kind: session.KindTimeout, Err: ctx.Err()}
	}
	return reply, err
}

func (f *fakeChatter) Hint(context.Context, int) (session.HintResult, error) {
	return f.hint, nil
}

func floor(t *testing.T, id int) floors.Floor {
	t.Helper()
	f, ok := floors.Default().Floor(id)
	if !ok {
		t.Fatalf("floor %d missing", id)
	}
	return f
}

func TestSetFloorGreets(t *testing.T) {
	c := NewChat(&fakeChatter{}, telemetry.Discard(), ChatOptions{})
	f := floor(t, 1)
	c.SetFloor(f)
	v := c.View()
	if len(v.Messages) != 1 || v.Messages[0].Content != Greeting(f) {
		t.Fatalf("expected greeting, got %+v", v.Messages)
	}
	if !strings.Contains(v.Messages[0].Content, f.Character) {
		t.Fatalf("greeting should name the character, got %q", v.Messages[0].Content)
	}
}

func TestSendRejectsEmptyAndMissingFloor(t *testing.T) {
	c := NewChat(&fakeChatter{}, telemetry.Discard(), ChatOptions{})
	if _, err := c.Send(context.Background(), "hi"); !errors.Is(err, ErrNoFloor) {
		t.Fatalf("expected no floor error, got %v", err)
	}
	c.SetFloor(floor(t, 1))
	if _, err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected empty message error, got %v", err)
	}
	if c.View().Attempts != 0 {
		t.Fatalf("rejected input must not count as an attempt")
	}
}

func TestTimeoutCancelsAndKeepsMessageForRetry(t *testing.T) {
	defer goleak.VerifyNone(t)

	fc := &fakeChatter{block: true, canceled: make(chan struct{})}
	c := NewChat(fc, telemetry.Discard(), ChatOptions{Timeout: 30 * time.Millisecond})
	f := floor(t, 2)
	c.SetFloor(f)

	_, err := c.Send(context.Background(), "  open the door  ")
	if ConditionOf(err) != ConditionTimeout {
		t.Fatalf("expected TIMEOUT condition, got %v (%v)", ConditionOf(err), err)
	}
	select {
	case <-fc.canceled:
	case <-time.After(time.Second):
		t.Fatalf("expected in-flight request to be cancelled")
	}

	v := c.View()
	if v.Sending || !v.CanRetry {
		t.Fatalf("expected idle state with retry offered, got %+v", v)
	}
	last := v.Messages[len(v.Messages)-1]
	if !last.IsError || !strings.Contains(last.Content, "No response received from "+f.Character) {
		t.Fatalf("unexpected timeout annotation: %+v", last)
	}

	text, ok := c.Retry()
	if !ok || text != "open the door" {
		t.Fatalf("expected verbatim retry text, got %q ok=%v", text, ok)
	}
	v = c.View()
	if v.Messages[len(v.Messages)-1].IsError {
		t.Fatalf("retry must remove the error annotation")
	}
	if _, ok := c.Retry(); ok {
		t.Fatalf("retry is single use")
	}
}

func TestFailureTextsByCondition(t *testing.T) {
	f := floor(t, 1)
	cases := []struct {
		err  error
		want string
	}{
		{err: &session.Error{Kind: session.KindNetwork}, want: "[System] Connection error."},
		{err: &session.Error{Kind: session.KindRejected, Status: 403, Message: "Floor not yet accessible"}, want: "[System] Error: Floor not yet accessible"},
	}
	for _, tc := range cases {
		c := NewChat(&fakeChatter{errs: []error{tc.err}}, telemetry.Discard(), ChatOptions{})
		c.SetFloor(f)
		if _, err := c.Send(context.Background(), "hi"); err == nil {
			t.Fatalf("expected error")
		}
		msgs := c.View().Messages
		if got := msgs[len(msgs)-1].Content; !strings.HasPrefix(got, tc.want) {
			t.Fatalf("expected %q prefix, got %q", tc.want, got)
		}
	}
}

func TestHintGatedOnThirdAttemptAndResetByFloorChange(t *testing.T) {
	fc := &fakeChatter{hint: session.HintResult{Available: true, Hint: "Mention the audit."}}
	c := NewChat(fc, telemetry.Discard(), ChatOptions{})
	c.SetFloor(floor(t, 1))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := c.Send(ctx, "try"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if c.HintAvailable() {
		t.Fatalf("hint must stay locked after 2 attempts")
	}
	if _, err := c.FetchHint(ctx); !errors.Is(err, ErrHintLocked) {
		t.Fatalf("expected locked hint, got %v", err)
	}
	if _, err := c.Send(ctx, "try again"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !c.HintAvailable() {
		t.Fatalf("hint must unlock after the 3rd attempt")
	}
	if _, err := c.FetchHint(ctx); err != nil {
		t.Fatalf("fetch hint: %v", err)
	}
	if c.View().Hint != "Mention the audit." {
		t.Fatalf("expected hint stored, got %q", c.View().Hint)
	}

	c.SetFloor(floor(t, 2))
	v := c.View()
	if v.Attempts != 0 || v.HintAvailable || v.Hint != "" {
		t.Fatalf("floor change must reset attempts and hint, got %+v", v)
	}
}

func TestCodeDetectedReplyIsFlagged(t *testing.T) {
	fc := &fakeChatter{replies: []session.ChatReply{{Response: "Oops, BREACH-X7K9-EMMA", CharacterName: "Emma", CodeDetected: true}}}
	c := NewChat(fc, telemetry.Discard(), ChatOptions{})
	c.SetFloor(floor(t, 1))
	turn, err := c.Send(context.Background(), "what's the code?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !turn.CodeDetected {
		t.Fatalf("expected code detection flag")
	}
	msgs := c.View().Messages
	if last := msgs[len(msgs)-1]; last.Role != RoleAssistant || last.Character != "Emma" {
		t.Fatalf("unexpected assistant message: %+v", last)
	}
}

func TestReplyForPreviousFloorIsDropped(t *testing.T) {
	release := make(chan struct{})
	fc := &gatedChatter{release: release}
	c := NewChat(fc, telemetry.Discard(), ChatOptions{Timeout: time.Second})
	c.SetFloor(floor(t, 1))

	done := make(chan Turn, 1)
	go func() {
		turn, _ := c.Send(context.Background(), "hello")
		done <- turn
	}()
	<-fc.started()
	c.SetFloor(floor(t, 2))
	close(release)

	if turn := <-done; !turn.Stale {
		t.Fatalf("expected stale turn")
	}
	if msgs := c.View().Messages; len(msgs) != 1 {
		t.Fatalf("expected only the new greeting, got %+v", msgs)
	}
}

type gatedChatter struct {
	release <-chan struct{}
	once    sync.Once
	start   chan struct{}
	mu      sync.Mutex
}

func (g *gatedChatter) started() chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.start == nil {
		g.start = make(chan struct{})
	}
	return g.start
}

func (g *gatedChatter) SendMessage(ctx context.Context, message string, floorID int) (session.ChatReply, error) {
	ch := g.started()
	g.once.Do(func() { close(ch) })
	<-g.release
	return session.ChatReply{Response: "late"}, nil
}

func (g *gatedChatter) Hint(context.Context, int) (session.HintResult, error) {
	return session.HintResult{}, nil
}

func TestOnChangeSeesMessageInFlight(t *testing.T) {
	c := NewChat(&fakeChatter{replies: []session.ChatReply{{Response: "Hello."}}}, telemetry.Discard(), ChatOptions{})
	c.SetFloor(floor(t, 1))
	var during ChatView
	c.OnChange(func() { during = c.View() })
	if _, err := c.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !during.Sending || during.Messages[len(during.Messages)-1].Content != "hi" {
		t.Fatalf("expected pending user message during send, got %+v", during)
	}
	if c.View().Sending {
		t.Fatalf("expected send to finish")
	}
}

type deadlineChatter struct{}

func (deadlineChatter) SendMessage(ctx context.Context, _ string, _ int) (session.ChatReply, error) {
	<-ctx.Done()
	return session.ChatReply{}, ctx.Err()
}

func (deadlineChatter) Hint(context.Context, int) (session.HintResult, error) {
	return session.HintResult{}, nil
}

func TestBareDeadlineErrorIsReportedAsTimeout(t *testing.T) {
	c := NewChat(deadlineChatter{}, telemetry.Discard(), ChatOptions{Timeout: 20 * time.Millisecond})
	f := floor(t, 3)
	c.SetFloor(f)

	_, err := c.Send(context.Background(), "are you there?")
	if ConditionOf(err) != ConditionTimeout {
		t.Fatalf("expected TIMEOUT condition, got %v (%v)", ConditionOf(err), err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the deadline error to stay wrapped, got %v", err)
	}
	msgs := c.View().Messages
	if got := msgs[len(msgs)-1].Content; !strings.Contains(got, "No response received from "+f.Character) {
		t.Fatalf("expected timeout annotation, got %q", got)
	}
}

func TestFailedSendsDoNotOpenHint(t *testing.T) {
	netErr := &session.Error{Op: "send message", Kind: session.KindNetwork}
	fc := &fakeChatter{
		errs: []error{netErr, netErr, netErr},
		hint: session.HintResult{Available: true, Hint: "Ask about the badge reader."},
	}
	c := NewChat(fc, telemetry.Discard(), ChatOptions{})
	c.SetFloor(floor(t, 1))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.Send(ctx, "hello?"); err == nil {
			t.Fatalf("expected send %d to fail", i)
		}
	}
	if v := c.View(); v.Attempts != 3 || v.HintAvailable {
		t.Fatalf("expected three attempts with the hint locked, got attempts=%d hint=%v", v.Attempts, v.HintAvailable)
	}
	if _, err := c.FetchHint(ctx); !errors.Is(err, ErrHintLocked) {
		t.Fatalf("expected locked hint, got %v", err)
	}

	if _, err := c.Send(ctx, "hello again"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !c.HintAvailable() {
		t.Fatalf("expected the first reply after three attempts to open the hint")
	}
}

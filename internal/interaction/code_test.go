package interaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"breachlab/internal/session"
	"breachlab/internal/telemetry"
)

type fakeVerifier struct {
	codes map[int]string
	got   []string
	err   error
}

func (f *fakeVerifier) Verify(_ context.Context, code string, floorID int) (session.VerifyResult, error) {
	f.got = append(f.got, code)
	if f.err != nil {
		return session.VerifyResult{}, f.err
	}
	if f.codes[floorID] == code {
		return session.VerifyResult{Correct: true, Message: "ACCESS GRANTED", FloorID: floorID}, nil
	}
	return session.VerifyResult{Correct: false, Message: "INVALID CODE - Security protocols remain active", FloorID: floorID}, nil
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  breach-x7k9-emma \n"); got != "BREACH-X7K9-EMMA" {
		t.Fatalf("unexpected normalized code %q", got)
	}
}

func TestMismatchFeedbackExpiresAfterWindow(t *testing.T) {
	fv := &fakeVerifier{codes: map[int]string{1: "BREACH-X7K9-EMMA"}}
	e := NewCodeEntry(fv, telemetry.Discard(), 3*time.Second)
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	e.SetFloor(1)

	res, err := e.Submit(context.Background(), "breach-nope")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if res.Correct {
		t.Fatalf("expected mismatch")
	}
	if v := e.View(); v.Feedback != res.Message || v.Verifying {
		t.Fatalf("expected mismatch feedback, got %+v", v)
	}

	now = now.Add(2999 * time.Millisecond)
	if v := e.View(); v.Feedback == "" {
		t.Fatalf("feedback must last the full window")
	}
	now = now.Add(time.Millisecond)
	if v := e.View(); v.Feedback != "" {
		t.Fatalf("feedback must clear after the window, got %q", v.Feedback)
	}

	res, err = e.Submit(context.Background(), " breach-x7k9-emma ")
	if err != nil || !res.Correct {
		t.Fatalf("expected immediate resubmission to succeed, got %+v err=%v", res, err)
	}
	if fv.got[1] != "BREACH-X7K9-EMMA" {
		t.Fatalf("expected normalized code on the wire, got %q", fv.got[1])
	}
	if _, err := e.Submit(context.Background(), "again"); !errors.Is(err, ErrVerified) {
		t.Fatalf("expected verified floor to refuse more codes, got %v", err)
	}
}

func TestSubmitRejectsEmptyCode(t *testing.T) {
	e := NewCodeEntry(&fakeVerifier{}, telemetry.Discard(), 0)
	e.SetFloor(3)
	if _, err := e.Submit(context.Background(), "   "); !errors.Is(err, ErrEmptyCode) {
		t.Fatalf("expected empty code error, got %v", err)
	}
}

func TestBackendFailureStaysVisible(t *testing.T) {
	fv := &fakeVerifier{err: &session.Error{Kind: session.KindRejected, Status: 403, Message: "Floor not yet accessible"}}
	e := NewCodeEntry(fv, telemetry.Discard(), time.Second)
	e.SetFloor(5)
	if _, err := e.Submit(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
	v := e.View()
	if v.Feedback != "Floor not yet accessible" || v.Condition != ConditionRejected {
		t.Fatalf("unexpected view %+v", v)
	}
	if !e.FeedbackExpiry().IsZero() {
		t.Fatalf("backend failures are not time limited")
	}
	e.SetFloor(6)
	if v := e.View(); v.Feedback != "" {
		t.Fatalf("floor change must clear feedback")
	}
}

type gatedVerifier struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedVerifier) Verify(_ context.Context, code string, floorID int) (session.VerifyResult, error) {
	close(g.entered)
	<-g.release
	return session.VerifyResult{Correct: true, Message: "ACCESS GRANTED", FloorID: floorID}, nil
}

func TestVerifyFinishingAfterResetIsStale(t *testing.T) {
	gv := &gatedVerifier{entered: make(chan struct{}), release: make(chan struct{})}
	e := NewCodeEntry(gv, telemetry.Discard(), 0)
	e.SetFloor(1)

	type result struct {
		res session.VerifyResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := e.Submit(context.Background(), "BREACH-X7K9-EMMA")
		done <- result{res, err}
	}()
	<-gv.entered
	// A reset lands back on floor 1, the same floor the verify was sent for.
	e.SetFloor(1)
	close(gv.release)

	r := <-done
	if !errors.Is(r.err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", r.err)
	}
	if r.res.Correct {
		t.Fatalf("expected stale result to be dropped, got %+v", r.res)
	}
	if v := e.View(); v.Verified || v.Verifying {
		t.Fatalf("expected fresh entry after reset, got %+v", v)
	}
}

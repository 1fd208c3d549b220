package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusAgainstMock(t *testing.T) {
	out, err := execute(t, "status", "--mock", "--data-dir", t.TempDir(), "--scenario", "midgame")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Floor:     5/10") {
		t.Fatalf("expected floor 5, got:\n%s", out)
	}
	if !strings.Contains(out, "Breached:  4 of 10") {
		t.Fatalf("expected four breached, got:\n%s", out)
	}
}

func TestEnvironmentSuppliesScenario(t *testing.T) {
	t.Setenv("BREACHLAB_MOCK", "true")
	t.Setenv("BREACHLAB_SCENARIO", "vault")
	out, err := execute(t, "status", "--data-dir", t.TempDir())
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Floor:     10/10") {
		t.Fatalf("expected the vault floor, got:\n%s", out)
	}
}

func TestFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("BREACHLAB_MOCK", "true")
	t.Setenv("BREACHLAB_SCENARIO", "vault")
	out, err := execute(t, "status", "--data-dir", t.TempDir(), "--scenario", "lobby")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out, "Floor:     1/10") {
		t.Fatalf("expected the lobby, got:\n%s", out)
	}
}

func TestScenarioRequiresMock(t *testing.T) {
	_, err := execute(t, "status", "--data-dir", t.TempDir(), "--scenario", "vault")
	if err == nil || !strings.Contains(err.Error(), "--mock") {
		t.Fatalf("expected mock requirement error, got %v", err)
	}
}

func TestResetCommandStartsOver(t *testing.T) {
	out, err := execute(t, "reset", "--mock", "--data-dir", t.TempDir(), "--scenario", "executive")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !strings.Contains(out, "Progress reset.") || !strings.Contains(out, "Floor:     1/10") {
		t.Fatalf("expected reset to the lobby, got:\n%s", out)
	}
}

func TestBadgesListsTiers(t *testing.T) {
	out, err := execute(t, "badges")
	if err != nil {
		t.Fatalf("badges: %v", err)
	}
	for _, name := range []string{"Script Kiddie", "Social Engineer", "Prompt Hacker", "AI Breaker"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected %q in badge list, got:\n%s", name, out)
		}
	}
}

package app

import (
	"strings"
	"testing"
	"time"
)

func TestValidateFillsDefaults(t *testing.T) {
	cfg := Config{APIBaseURL: "https://api.example.com", DataDir: t.TempDir()}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.ChatTimeout != 15*time.Second || cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected default timeouts, got %v/%v", cfg.ChatTimeout, cfg.RequestTimeout)
	}
	if cfg.FeedbackWindow != 3*time.Second || cfg.HintAfterAttempts != 3 {
		t.Fatalf("expected default feedback window and hint gate, got %v/%d", cfg.FeedbackWindow, cfg.HintAfterAttempts)
	}
	if cfg.UI.StyleVariant != "modern_arcade" || cfg.UI.MotionLevel != "full" {
		t.Fatalf("expected default ui, got %+v", cfg.UI)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"scheme":   func(c *Config) { c.APIBaseURL = "ftp://example.com" },
		"url":      func(c *Config) { c.APIBaseURL = "localhost" },
		"style":    func(c *Config) { c.UI.StyleVariant = "neon" },
		"motion":   func(c *Config) { c.UI.MotionLevel = "wild" },
		"scenario": func(c *Config) { c.DemoScenario = "vault" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.DataDir = t.TempDir()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMockSkipsURLCheck(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.APIBaseURL = ""
	cfg.Mock = true
	cfg.DemoScenario = "midgame"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected mock config to validate, got %v", err)
	}
}

func TestApplyEnvOverlaysSetValues(t *testing.T) {
	t.Setenv("BREACHLAB_API_URL", "https://breachlab.example.com")
	t.Setenv("BREACHLAB_CHAT_TIMEOUT", "30s")
	t.Setenv("BREACHLAB_MOCK", "true")
	t.Setenv("BREACHLAB_STYLE", "retro_terminal")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.APIBaseURL != "https://breachlab.example.com" || cfg.ChatTimeout != 30*time.Second {
		t.Fatalf("expected env overrides, got %q %v", cfg.APIBaseURL, cfg.ChatTimeout)
	}
	if !cfg.Mock || cfg.UI.StyleVariant != "retro_terminal" {
		t.Fatalf("expected mock and style from env, got %v %q", cfg.Mock, cfg.UI.StyleVariant)
	}
	if cfg.RequestTimeout != 10*time.Second {
		t.Fatalf("expected unset variable to keep default, got %v", cfg.RequestTimeout)
	}
}

func TestApplyEnvReportsBadDuration(t *testing.T) {
	t.Setenv("BREACHLAB_CHAT_TIMEOUT", "soon")
	cfg := DefaultConfig()
	err := cfg.ApplyEnv()
	if err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Fatalf("expected parse env error, got %v", err)
	}
}

package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls runtime behavior for the game client.
type Config struct {
	APIBaseURL        string        `env:"BREACHLAB_API_URL"`
	DataDir           string        `env:"BREACHLAB_DATA_DIR"`
	LogPath           string        `env:"BREACHLAB_LOG"`
	ChatTimeout       time.Duration `env:"BREACHLAB_CHAT_TIMEOUT"`
	RequestTimeout    time.Duration `env:"BREACHLAB_REQUEST_TIMEOUT"`
	FeedbackWindow    time.Duration `env:"BREACHLAB_FEEDBACK_WINDOW"`
	HintAfterAttempts int           `env:"BREACHLAB_HINT_AFTER"`
	Mock              bool          `env:"BREACHLAB_MOCK"`
	DemoScenario      string        `env:"BREACHLAB_SCENARIO"`
	ASCIIOnly         bool          `env:"BREACHLAB_ASCII"`
	DebugLayout       bool          `env:"BREACHLAB_DEBUG_UI"`
	UI                UIConfig
}

type UIConfig struct {
	StyleVariant string `env:"BREACHLAB_STYLE"`
	MotionLevel  string `env:"BREACHLAB_MOTION"`
}

func DefaultConfig() Config {
	return Config{
		APIBaseURL:        "http://localhost:8000",
		ChatTimeout:       15 * time.Second,
		RequestTimeout:    10 * time.Second,
		FeedbackWindow:    3 * time.Second,
		HintAfterAttempts: 3,
		UI: UIConfig{
			StyleVariant: "modern_arcade",
			MotionLevel:  "full",
		},
	}
}

// ApplyEnv overlays BREACHLAB_* environment variables onto c. Unset
// variables leave the current values alone.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	if !c.Mock {
		u, err := url.Parse(c.APIBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid api url %q", c.APIBaseURL)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("unsupported api url scheme %q", u.Scheme)
		}
	}
	if c.ChatTimeout <= 0 {
		c.ChatTimeout = 15 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.FeedbackWindow <= 0 {
		c.FeedbackWindow = 3 * time.Second
	}
	if c.HintAfterAttempts <= 0 {
		c.HintAfterAttempts = 3
	}
	switch c.UI.StyleVariant {
	case "", "modern_arcade", "cozy_clean", "retro_terminal":
	default:
		return fmt.Errorf("invalid ui style variant %q", c.UI.StyleVariant)
	}
	if c.UI.StyleVariant == "" {
		c.UI.StyleVariant = "modern_arcade"
	}
	switch c.UI.MotionLevel {
	case "", "off", "reduced", "full":
	default:
		return fmt.Errorf("invalid ui motion level %q", c.UI.MotionLevel)
	}
	if c.UI.MotionLevel == "" {
		c.UI.MotionLevel = "full"
	}
	if c.DemoScenario != "" && !c.Mock {
		return errors.New("demo scenarios need the mock backend (--mock)")
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "breachlab")
	}
	return nil
}

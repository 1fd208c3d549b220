package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"breachlab/internal/app"
	"breachlab/internal/badges"
	"breachlab/internal/devtools"

	"github.com/spf13/cobra"
)

// flags holds command-line overrides. Only flags the user actually set are
// applied on top of the environment.
type flags struct {
	apiURL      string
	dataDir     string
	logPath     string
	mock        bool
	scenario    string
	ascii       bool
	style       string
	motion      string
	chatTimeout time.Duration
	debugUI     bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "breachlab",
		Short: "Talk your way past ten AI guards, one floor at a time",
		Long: `BreachLab is a social engineering game played in the terminal.

Each floor of the building is guarded by an AI character holding an access
code. Convince them to reveal it, enter the code, and move up a floor.

Run without a subcommand to start playing.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlay(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.apiURL, "api-url", "", "game server base URL (env BREACHLAB_API_URL)")
	pf.StringVar(&f.dataDir, "data-dir", "", "directory for session and progress data (env BREACHLAB_DATA_DIR)")
	pf.StringVar(&f.logPath, "log", "", "append JSON logs to this file (env BREACHLAB_LOG)")
	pf.BoolVar(&f.mock, "mock", false, "play against a built-in mock server (env BREACHLAB_MOCK)")
	pf.StringVar(&f.scenario, "scenario", "", "mock starting point: "+strings.Join(devtools.NewManager().Names(), ", "))
	pf.BoolVar(&f.ascii, "ascii", false, "draw borders with ASCII only (env BREACHLAB_ASCII)")
	pf.StringVar(&f.style, "style", "", "modern_arcade, cozy_clean or retro_terminal (env BREACHLAB_STYLE)")
	pf.StringVar(&f.motion, "motion", "", "full, reduced or off (env BREACHLAB_MOTION)")
	pf.DurationVar(&f.chatTimeout, "chat-timeout", 0, "how long to wait for a guard to reply (env BREACHLAB_CHAT_TIMEOUT)")
	pf.BoolVar(&f.debugUI, "debug-ui", false, "write UI debug logs to stderr")

	root.AddCommand(
		&cobra.Command{
			Use:   "play",
			Short: "Start the game",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPlay(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Print reconciled progress and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runStatus(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Start over from the lobby, clearing server and local progress",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runReset(cmd, f)
			},
		},
		&cobra.Command{
			Use:   "badges",
			Short: "List the badge tiers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				printBadges(cmd.OutOrStdout())
				return nil
			},
		},
	)
	return root
}

// resolveConfig layers defaults, then BREACHLAB_* variables, then flags.
func resolveConfig(cmd *cobra.Command, f *flags) (app.Config, error) {
	cfg := app.DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return app.Config{}, err
	}
	set := cmd.Flags().Changed
	if set("api-url") {
		cfg.APIBaseURL = f.apiURL
	}
	if set("data-dir") {
		cfg.DataDir = f.dataDir
	}
	if set("log") {
		cfg.LogPath = f.logPath
	}
	if set("mock") {
		cfg.Mock = f.mock
	}
	if set("scenario") {
		cfg.DemoScenario = f.scenario
	}
	if set("ascii") {
		cfg.ASCIIOnly = f.ascii
	}
	if set("style") {
		cfg.UI.StyleVariant = f.style
	}
	if set("motion") {
		cfg.UI.MotionLevel = f.motion
	}
	if set("chat-timeout") {
		cfg.ChatTimeout = f.chatTimeout
	}
	if set("debug-ui") {
		cfg.DebugLayout = f.debugUI
	}
	if err := cfg.Validate(); err != nil {
		return app.Config{}, err
	}
	return cfg, nil
}

func openApp(cmd *cobra.Command, f *flags) (*app.App, error) {
	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func runPlay(cmd *cobra.Command, f *flags) error {
	a, err := openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(cmd.Context())
}

func runStatus(cmd *cobra.Command, f *flags) error {
	a, err := openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.Status(cmd.Context())
	if err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), rep)
	return nil
}

func runReset(cmd *cobra.Command, f *flags) error {
	a, err := openApp(cmd, f)
	if err != nil {
		return err
	}
	defer a.Close()
	rep, err := a.Reset(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Progress reset.")
	printStatus(cmd.OutOrStdout(), rep)
	return nil
}

func printStatus(w io.Writer, rep app.StatusReport) {
	fmt.Fprintf(w, "Floor:     %d/%d %s (%s)\n", rep.CurrentFloor.ID, rep.Total, rep.CurrentFloor.Name, rep.CurrentFloor.Character)
	fmt.Fprintf(w, "Breached:  %d of %d\n", len(rep.Completed), rep.Total)
	if rep.Badge != nil {
		fmt.Fprintf(w, "Badge:     %s %s\n", rep.Badge.Icon, rep.Badge.Name)
	} else {
		fmt.Fprintln(w, "Badge:     none yet")
	}
	if rep.NextBadge != nil {
		fmt.Fprintf(w, "Next:      %s %s at floor %d\n", rep.NextBadge.Icon, rep.NextBadge.Name, rep.NextBadge.UnlockLevel)
	}
	fmt.Fprintf(w, "Attempts:  %d codes tried, %d accepted\n", rep.Attempts, rep.Breaches)
	if !rep.LastSeen.IsZero() {
		fmt.Fprintf(w, "Last seen: %s on floor %d\n", rep.LastSeen.Local().Format(time.DateTime), rep.LastFloor)
	}
	if rep.Degraded {
		fmt.Fprintln(w, "Server unreachable: progress shown from this device only.")
	}
}

func printBadges(w io.Writer) {
	for _, b := range badges.All() {
		fmt.Fprintf(w, "%s %-16s floor %d\n", b.Icon, b.Name, b.UnlockLevel)
	}
}

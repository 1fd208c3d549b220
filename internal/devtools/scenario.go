package devtools

import (
	"strings"
	"time"
)

// Scenario is a canned starting point for the mock backend, used to jump
// straight to a given part of the game while developing.
type Scenario struct {
	Name      string
	Completed []int
	// Offline makes the client start against an unreachable backend so the
	// degraded, local-only path can be exercised.
	Offline bool
	Latency time.Duration
}

type Manager struct{}

func NewManager() *Manager { return &Manager{} }

func (m *Manager) Resolve(name string) Scenario {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "lobby", "fresh", "":
		return Scenario{Name: "lobby"}
	case "wing_ready":
		return Scenario{Name: "wing_ready", Completed: []int{1}}
	case "midgame":
		return Scenario{Name: "midgame", Completed: []int{1, 2, 3, 4}}
	case "executive":
		return Scenario{Name: "executive", Completed: []int{1, 2, 3, 4, 5, 6}}
	case "vault":
		return Scenario{Name: "vault", Completed: []int{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	case "slow":
		return Scenario{Name: "slow", Latency: 20 * time.Second}
	case "offline":
		return Scenario{Name: "offline", Offline: true}
	default:
		return Scenario{Name: "lobby"}
	}
}

// Names lists the scenarios Resolve knows, for --help output.
func (m *Manager) Names() []string {
	return []string{"lobby", "wing_ready", "midgame", "executive", "vault", "slow", "offline"}
}

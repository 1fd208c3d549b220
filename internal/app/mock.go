package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"breachlab/internal/devtools"
	"breachlab/internal/floors"
	"breachlab/internal/telemetry"
)

// offlineURL refuses connections, so the client degrades to local progress.
const offlineURL = "http://127.0.0.1:9"

// mockBackend serves devtools.Backend on a loopback port for --mock runs.
type mockBackend struct {
	url     string
	seeded  string
	backend *devtools.Backend
	server  *http.Server
}

func startMock(catalog *floors.Catalog, scenario devtools.Scenario, logger *telemetry.JSONLogger) (*mockBackend, error) {
	logger.Info("mock.start", map[string]any{"scenario": scenario.Name, "offline": scenario.Offline})
	if scenario.Offline {
		return &mockBackend{url: offlineURL}, nil
	}

	backend := devtools.NewBackend(devtools.BackendOptions{
		Catalog: catalog,
		Latency: scenario.Latency,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	m := &mockBackend{
		url:     "http://" + ln.Addr().String(),
		backend: backend,
		server:  &http.Server{Handler: backend, ReadHeaderTimeout: 5 * time.Second},
	}
	if len(scenario.Completed) > 0 {
		m.seeded = backend.Seed(scenario.Completed)
	}
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("mock.serve_failed", map[string]any{"error": err.Error(), "addr": m.url})
		}
	}()
	return m, nil
}

func (m *mockBackend) Close(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(ctx)
}

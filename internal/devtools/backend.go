package devtools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"breachlab/internal/floors"
)

// Access codes the mock characters guard. The real backend owns these; the
// mock only needs stable values to play against offline.
var defaultCodes = map[int]string{
	1:  "BREACH-X7K9-EMMA",
	2:  "BREACH-M4RC-SEC2",
	3:  "BREACH-O5CR-CAM3",
	4:  "BREACH-N0V4-ACC4",
	5:  "BREACH-AL3X-IT05",
	6:  "BREACH-D1AN-HR06",
	7:  "BREACH-AR1A-ARC7",
	8:  "BREACH-V1CT-EX08",
	9:  "BREACH-CH41-BD09",
	10: "BREACH-S3NT-VLT0",
}

var leakWords = []string{"code", "password", "override", "access", "secret"}

var deflections = []string{
	"I'm afraid I can't help with that.",
	"That's not something I can discuss.",
	"Is there anything else I can help you with today?",
	"Let me check on that... no, I don't think so.",
}

type BackendOptions struct {
	Catalog *floors.Catalog
	// Latency delays every chat reply. The delay stops early if the client
	// goes away.
	Latency time.Duration
	// LeakAfter is the chat attempt on a floor from which a question about the
	// code gets it revealed.
	LeakAfter int
	HintAfter int
	Codes     map[int]string
}

// Backend is an in-process stand-in for the game server, used by --mock and
// by tests. Session semantics follow the real service: unknown or missing
// session ids mint a new session, floors beyond current_floor are refused,
// and a correct code on the current floor advances it.
type Backend struct {
	catalog   *floors.Catalog
	latency   time.Duration
	leakAfter int
	hintAfter int
	codes     map[int]string
	mux       *http.ServeMux

	mu       sync.Mutex
	sessions map[string]*mockSession
}

type mockSession struct {
	current   int
	completed []int
	attempts  map[int]int
	hintsUsed map[int]bool
}

func NewBackend(opts BackendOptions) *Backend {
	if opts.Catalog == nil {
		opts.Catalog = floors.Default()
	}
	if opts.LeakAfter <= 0 {
		opts.LeakAfter = 2
	}
	if opts.HintAfter <= 0 {
		opts.HintAfter = 3
	}
	if opts.Codes == nil {
		opts.Codes = defaultCodes
	}
	b := &Backend{
		catalog:   opts.Catalog,
		latency:   opts.Latency,
		leakAfter: opts.LeakAfter,
		hintAfter: opts.HintAfter,
		codes:     opts.Codes,
		sessions:  map[string]*mockSession{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", b.handleRoot)
	mux.HandleFunc("POST /api/chat", b.handleChat)
	mux.HandleFunc("POST /api/verify", b.handleVerify)
	mux.HandleFunc("GET /api/hint", b.handleHint)
	mux.HandleFunc("GET /api/progress", b.handleProgress)
	mux.HandleFunc("POST /api/reset", b.handleReset)
	b.mux = mux
	return b
}

func (b *Backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

// Code returns the mock access code for a floor.
func (b *Backend) Code(floorID int) string {
	return b.codes[floorID]
}

// Seed creates a session that has already completed the given floors.
func (b *Backend) Seed(completed []int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, s := b.sessionLocked("")
	for _, f := range completed {
		if _, ok := b.catalog.Floor(f); ok && !slices.Contains(s.completed, f) {
			s.completed = append(s.completed, f)
		}
	}
	slices.Sort(s.completed)
	if n := len(s.completed); n > 0 {
		s.current = min(s.completed[n-1]+1, b.catalog.LastFloor())
	}
	return id
}

func (b *Backend) sessionLocked(id string) (string, *mockSession) {
	if s, ok := b.sessions[id]; ok && id != "" {
		return id, s
	}
	id = uuid.NewString()
	s := &mockSession{
		current:   floors.FirstFloor,
		completed: []int{},
		attempts:  map[int]int{},
		hintsUsed: map[int]bool{},
	}
	b.sessions[id] = s
	return id, s
}

func (b *Backend) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeDetail(w, http.StatusNotFound, "Not Found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   "BreachLab mock backend",
		"floors": b.catalog.Count(),
	})
}

type chatBody struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	FloorID   int    `json:"floor_id"`
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	b.mu.Lock()
	id, s := b.sessionLocked(req.SessionID)
	floorID := req.FloorID
	if floorID == 0 {
		floorID = s.current
	}
	if floorID > s.current {
		b.mu.Unlock()
		writeDetail(w, http.StatusForbidden, "Floor not yet accessible")
		return
	}
	floor, ok := b.catalog.Floor(floorID)
	if !ok {
		b.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "Invalid floor")
		return
	}
	s.attempts[floorID]++
	attempt := s.attempts[floorID]
	b.mu.Unlock()

	if !sleepCtx(r.Context(), b.latency) {
		return
	}

	reply := deflections[(attempt-1)%len(deflections)]
	leaked := false
	if attempt >= b.leakAfter && mentionsAny(req.Message, leakWords) {
		reply = fmt.Sprintf("Well... since you asked so nicely, it's %s. You didn't hear it from me.", b.codes[floorID])
		leaked = true
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     id,
		"floor_id":       floorID,
		"response":       reply,
		"character_name": floor.Character,
		"code_detected":  leaked,
	})
}

type verifyBody struct {
	Code      string `json:"code"`
	SessionID string `json:"session_id"`
	FloorID   int    `json:"floor_id"`
}

func (b *Backend) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	id, s := b.sessionLocked(req.SessionID)
	floorID := req.FloorID
	if floorID == 0 {
		floorID = s.current
	}
	if floorID > s.current {
		writeDetail(w, http.StatusForbidden, "Floor not yet accessible")
		return
	}
	if _, ok := b.catalog.Floor(floorID); !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid floor")
		return
	}

	want := b.codes[floorID]
	if want == "" || strings.ToUpper(strings.TrimSpace(req.Code)) != strings.ToUpper(want) {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id":    id,
			"correct":       false,
			"message":       "INVALID CODE - Security protocols remain active",
			"floor_id":      floorID,
			"next_floor":    nil,
			"game_complete": false,
			"wing_cleared":  false,
			"wing_name":     nil,
		})
		return
	}

	if !slices.Contains(s.completed, floorID) {
		s.completed = append(s.completed, floorID)
		slices.Sort(s.completed)
	}
	last := b.catalog.LastFloor()
	if floorID == s.current && floorID < last {
		s.current = floorID + 1
	}
	var next any
	if floorID < last {
		next = floorID + 1
	}
	var wingName any
	wingCleared := false
	if wing, ok := b.catalog.WingForFloor(floorID); ok && floors.IsWingCleared(wing, s.completed) {
		wingCleared = true
		wingName = wing.Name
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"correct":       true,
		"message":       "ACCESS GRANTED",
		"floor_id":      floorID,
		"next_floor":    next,
		"game_complete": floorID == last,
		"wing_cleared":  wingCleared,
		"wing_name":     wingName,
	})
}

func (b *Backend) handleHint(w http.ResponseWriter, r *http.Request) {
	floorID, err := strconv.Atoi(r.URL.Query().Get("floor_id"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "floor_id must be an integer")
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id, s := b.sessionLocked(r.URL.Query().Get("session_id"))
	attempts := s.attempts[floorID]
	if attempts < b.hintAfter {
		writeJSON(w, http.StatusOK, map[string]any{
			"session_id": id,
			"hint":       nil,
			"available":  false,
			"message":    fmt.Sprintf("Hints available after %d attempts. Current: %d/%d", b.hintAfter, attempts, b.hintAfter),
		})
		return
	}
	floor, ok := b.catalog.Floor(floorID)
	if !ok {
		writeDetail(w, http.StatusBadRequest, "Invalid floor")
		return
	}
	hint := floor.Objective
	if len(floor.Tips) > 0 {
		hint = floor.Tips[0]
	}
	s.hintsUsed[floorID] = true
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"hint":       hint,
		"available":  true,
		"message":    "Hint unlocked",
	})
}

func (b *Backend) handleProgress(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, s := b.sessionLocked(r.URL.Query().Get("session_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":       id,
		"current_floor":    s.current,
		"completed_floors": slices.Clone(s.completed),
		"total_floors":     b.catalog.Count(),
	})
}

func (b *Backend) handleReset(w http.ResponseWriter, r *http.Request) {
	old := r.URL.Query().Get("session_id")
	if old == "" && r.Body != nil {
		var body struct {
			SessionID string `json:"session_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		old = body.SessionID
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, old)
	id, _ := b.sessionLocked("")
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"message":       "Game reset successfully",
		"current_floor": floors.FirstFloor,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func mentionsAny(text string, words []string) bool {
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Package progress keeps the player's badge progress on this machine,
// independent of any server session.
package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"breachlab/internal/badges"
	"breachlab/internal/telemetry"
)

const StorageKey = "breachlab_progress"

// LocalProgress is persisted as JSON under StorageKey.
type LocalProgress struct {
	CompletedLevels []int   `json:"completedLevels"`
	HighestLevel    int     `json:"highestLevel"`
	CurrentBadge    *string `json:"currentBadge"`
}

func Default() LocalProgress {
	return LocalProgress{CompletedLevels: []int{}}
}

func (p LocalProgress) Clone() LocalProgress {
	out := p
	out.CompletedLevels = append([]int{}, p.CompletedLevels...)
	if p.CurrentBadge != nil {
		id := *p.CurrentBadge
		out.CurrentBadge = &id
	}
	return out
}

func (p LocalProgress) Has(level int) bool {
	return slices.Contains(p.CompletedLevels, level)
}

// Normalize enforces the record invariants: ids within 1..maxLevel, distinct and
// ascending, highest equal to the largest completed id, badge derived from highest.
func Normalize(p LocalProgress, maxLevel int) LocalProgress {
	levels := make([]int, 0, len(p.CompletedLevels))
	for _, id := range p.CompletedLevels {
		if id < 1 || (maxLevel > 0 && id > maxLevel) {
			continue
		}
		levels = append(levels, id)
	}
	slices.Sort(levels)
	levels = slices.Compact(levels)
	highest := 0
	if len(levels) > 0 {
		highest = levels[len(levels)-1]
	}
	return LocalProgress{
		CompletedLevels: levels,
		HighestLevel:    highest,
		CurrentBadge:    badges.IDForLevel(highest),
	}
}

func Encode(p LocalProgress) (string, error) {
	if p.CompletedLevels == nil {
		p.CompletedLevels = []int{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func Decode(raw string) (LocalProgress, error) {
	var p LocalProgress
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return LocalProgress{}, fmt.Errorf("decode local progress: %w", err)
	}
	return p, nil
}

type KV interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	PutValue(ctx context.Context, key, value string) error
}

// Store is the only writer of the local record. Missing or corrupt data reads
// as Default. A storage read error is reported by Read and CompleteLevel so
// callers never write over a record they could not see.
type Store struct {
	kv       KV
	logger   *telemetry.JSONLogger
	maxLevel int
}

func NewStore(kv KV, logger *telemetry.JSONLogger, maxLevel int) *Store {
	return &Store{kv: kv, logger: logger, maxLevel: maxLevel}
}

// Load is Read without the error, for callers that only display progress.
func (s *Store) Load(ctx context.Context) LocalProgress {
	p, _ := s.Read(ctx)
	return p
}

// Read returns the normalized record. The error is set only when storage could
// not be read; the record is then Default and must not be written back.
func (s *Store) Read(ctx context.Context) (LocalProgress, error) {
	raw, ok, err := s.kv.GetValue(ctx, StorageKey)
	if err != nil {
		s.logger.Error("progress.load_failed", map[string]any{"error": err.Error()})
		return Default(), fmt.Errorf("read local progress: %w", err)
	}
	if !ok || raw == "" {
		return Default(), nil
	}
	p, err := Decode(raw)
	if err != nil {
		s.logger.Error("progress.corrupt", map[string]any{"error": err.Error()})
		return Default(), nil
	}
	return Normalize(p, s.maxLevel), nil
}

// Save is best effort; the in-memory record stays authoritative when it fails.
func (s *Store) Save(ctx context.Context, p LocalProgress) {
	if err := s.write(ctx, p); err != nil {
		s.logger.Error("progress.save_failed", map[string]any{"error": err.Error(), "highest": p.HighestLevel})
	}
}

// Reset writes the empty record. Unlike Save it reports a failed write so a
// caller coordinating a full reset can tell the two stores apart.
func (s *Store) Reset(ctx context.Context) (LocalProgress, error) {
	empty := Default()
	if err := s.write(ctx, empty); err != nil {
		s.logger.Error("progress.reset_failed", map[string]any{"error": err.Error()})
		return empty, err
	}
	s.logger.Info("progress.reset", nil)
	return empty, nil
}

// CompleteLevel records levelID and reports a badge if this completion crossed
// into a higher tier. Re-completing a level changes nothing and unlocks nothing.
// If the stored record cannot be read nothing is written and the read error is
// returned.
func (s *Store) CompleteLevel(ctx context.Context, levelID int) (LocalProgress, *badges.Badge, error) {
	current, err := s.Read(ctx)
	if err != nil {
		return current, nil, err
	}
	if levelID < 1 || (s.maxLevel > 0 && levelID > s.maxLevel) {
		s.logger.Warn("progress.level_out_of_range", map[string]any{"level": levelID})
		return current, nil, nil
	}
	previousHighest := current.HighestLevel

	updated := current.Clone()
	if !updated.Has(levelID) {
		updated.CompletedLevels = append(updated.CompletedLevels, levelID)
		slices.Sort(updated.CompletedLevels)
	}
	updated.HighestLevel = max(updated.HighestLevel, levelID)
	updated.CurrentBadge = badges.IDForLevel(updated.HighestLevel)
	s.Save(ctx, updated)

	var unlocked *badges.Badge
	if b, ok := badges.CheckNewUnlock(previousHighest, updated.HighestLevel); ok {
		unlocked = &b
		s.logger.Info("progress.badge_unlocked", map[string]any{"badge": b.ID, "level": levelID})
	}
	return updated, unlocked, nil
}

func (s *Store) write(ctx context.Context, p LocalProgress) error {
	raw, err := Encode(p)
	if err != nil {
		return err
	}
	return s.kv.PutValue(ctx, StorageKey, raw)
}

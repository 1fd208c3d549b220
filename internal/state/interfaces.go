package state

import (
	"context"
	"time"
)

type Store interface {
	EnsureSchema(ctx context.Context) error
	GetValue(ctx context.Context, key string) (string, bool, error)
	PutValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
	SaveSettings(ctx context.Context, values map[string]string) error
	LoadSettings(ctx context.Context) (map[string]string, error)
	RecordVerifyAttempt(ctx context.Context, attempt VerifyAttempt) error
	GetFloorStats(ctx context.Context) (map[int]FloorStats, error)
	GetSummary(ctx context.Context) (Summary, error)
	Close() error
}

type VerifyAttempt struct {
	SessionID string
	FloorID   int
	Correct   bool
	AttemptTS time.Time
}

type FloorStats struct {
	FloorID         int
	Attempts        int
	Breaches        int
	LastAttemptTS   time.Time
	FirstBreachedTS time.Time
}

type Summary struct {
	Attempts int
	Breaches int
	Floors   int
}

package interaction

import (
	"errors"

	"breachlab/internal/session"
)

var (
	ErrBusy         = errors.New("a request is already in flight")
	ErrEmptyMessage = errors.New("message is empty")
	ErrHintLocked   = errors.New("hint not available yet")
	ErrEmptyCode    = errors.New("code is empty")
	ErrVerified     = errors.New("floor already verified")
	ErrNoFloor      = errors.New("no floor selected")
	ErrStale        = errors.New("floor changed while the request was in flight")
)

// Condition classifies a failed request for display.
type Condition int

const (
	ConditionNone Condition = iota
	ConditionTimeout
	ConditionNetwork
	ConditionRejected
)

func (c Condition) String() string {
	switch c {
	case ConditionTimeout:
		return "TIMEOUT"
	case ConditionNetwork:
		return "NETWORK"
	case ConditionRejected:
		return "REJECTED"
	default:
		return "NONE"
	}
}

func ConditionOf(err error) Condition {
	if err == nil {
		return ConditionNone
	}
	switch session.KindOf(err) {
	case session.KindTimeout:
		return ConditionTimeout
	case session.KindNetwork:
		return ConditionNetwork
	default:
		return ConditionRejected
	}
}

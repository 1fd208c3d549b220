// Package interaction runs the per-floor chat and code verification flows.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"breachlab/internal/floors"
	"breachlab/internal/session"
	"breachlab/internal/telemetry"
)

const (
	DefaultChatTimeout = 15 * time.Second
	DefaultHintAfter   = 3
)

type Role int

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
)

type Message struct {
	Role      Role
	Content   string
	Character string
	IsError   bool
}

type Chatter interface {
	SendMessage(ctx context.Context, message string, floorID int) (session.ChatReply, error)
	Hint(ctx context.Context, floorID int) (session.HintResult, error)
}

type ChatOptions struct {
	Timeout   time.Duration
	HintAfter int
}

// ChatView is a copy of the chat state for rendering.
type ChatView struct {
	Floor         floors.Floor
	Messages      []Message
	Sending       bool
	Attempts      int
	HintAvailable bool
	Hint          string
	CanRetry      bool
}

// Chat holds one floor's conversation. At most one message is in flight.
type Chat struct {
	client    Chatter
	logger    *telemetry.JSONLogger
	timeout   time.Duration
	hintAfter int

	mu         sync.Mutex
	floor      floors.Floor
	gen        int
	messages   []Message
	sending    bool
	attempts   int
	hintReady  bool
	lastFailed string
	hint       string
	changed    func()
}

func NewChat(client Chatter, logger *telemetry.JSONLogger, opts ChatOptions) *Chat {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultChatTimeout
	}
	if opts.HintAfter <= 0 {
		opts.HintAfter = DefaultHintAfter
	}
	return &Chat{
		client:    client,
		logger:    logger,
		timeout:   opts.Timeout,
		hintAfter: opts.HintAfter,
	}
}

func Greeting(f floors.Floor) string {
	return fmt.Sprintf("You've reached %s. %s awaits.", f.Name, f.Character)
}

// SetFloor starts a fresh conversation. A reply still in flight for the
// previous floor is dropped when it arrives.
func (c *Chat) SetFloor(f floors.Floor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.floor = f
	c.gen++
	c.messages = []Message{{Role: RoleSystem, Content: Greeting(f)}}
	c.sending = false
	c.attempts = 0
	c.hintReady = false
	c.lastFailed = ""
	c.hint = ""
}

// OnChange registers fn to run once a message goes in flight, so a view can
// show the pending state before the reply arrives.
func (c *Chat) OnChange(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changed = fn
}

// Turn is the result of one chat round trip.
type Turn struct {
	Reply        session.ChatReply
	CodeDetected bool
	Stale        bool
}

// Send posts text and waits up to the chat timeout for a reply. On failure the
// text is kept for Retry and an error line is appended to the conversation.
func (c *Chat) Send(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	if c.floor.ID == 0 {
		c.mu.Unlock()
		return Turn{}, ErrNoFloor
	}
	if text == "" {
		c.mu.Unlock()
		return Turn{}, ErrEmptyMessage
	}
	if c.sending {
		c.mu.Unlock()
		return Turn{}, ErrBusy
	}
	c.sending = true
	c.lastFailed = ""
	c.attempts++
	c.messages = append(c.messages, Message{Role: RoleUser, Content: text})
	floor, gen, attempt := c.floor, c.gen, c.attempts
	changed := c.changed
	c.mu.Unlock()
	if changed != nil {
		changed()
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	reply, err := c.client.SendMessage(callCtx, text, floor.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return Turn{Stale: true}, err
	}
	c.sending = false
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ConditionOf(err) != ConditionTimeout {
		err = &session.Error{Op: "send message", Kind: session.KindTimeout, Err: err}
	}
	if err != nil {
		cond := ConditionOf(err)
		c.lastFailed = text
		c.messages = append(c.messages, Message{
			Role:    RoleSystem,
			Content: failureText(cond, floor, err),
			IsError: true,
		})
		event := "interaction.chat_failed"
		if cond == ConditionTimeout {
			event = "interaction.chat_timeout"
		}
		c.logger.Warn(event, map[string]any{
			"floor":     floor.ID,
			"attempt":   attempt,
			"condition": cond.String(),
			"ms":        time.Since(start).Milliseconds(),
		})
		return Turn{}, err
	}

	character := reply.CharacterName
	if character == "" {
		character = floor.Character
	}
	c.messages = append(c.messages, Message{Role: RoleAssistant, Content: reply.Response, Character: character})
	// Failed sends count as attempts, but only a reply can open the hint.
	if attempt >= c.hintAfter {
		c.hintReady = true
	}
	if reply.CodeDetected {
		c.logger.Info("interaction.code_detected", map[string]any{"floor": floor.ID, "attempt": attempt})
	}
	return Turn{Reply: reply, CodeDetected: reply.CodeDetected}, nil
}

// Retry hands back the last failed message and removes the error line shown
// for it. It reports false when there is nothing to retry.
func (c *Chat) Retry() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sending || c.lastFailed == "" {
		return "", false
	}
	text := c.lastFailed
	c.lastFailed = ""
	if n := len(c.messages); n > 0 && c.messages[n-1].IsError {
		c.messages = c.messages[:n-1]
	}
	return text, true
}

func (c *Chat) HintAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hintReady
}

// FetchHint asks the backend for the current floor's hint once a reply has
// come back on or after the hint attempt. The backend has the final say on availability.
func (c *Chat) FetchHint(ctx context.Context) (session.HintResult, error) {
	c.mu.Lock()
	floorID, gen := c.floor.ID, c.gen
	locked := !c.hintReady
	c.mu.Unlock()
	if floorID == 0 {
		return session.HintResult{}, ErrNoFloor
	}
	if locked {
		return session.HintResult{}, ErrHintLocked
	}
	res, err := c.client.Hint(ctx, floorID)
	if err != nil {
		c.logger.Warn("interaction.hint_failed", map[string]any{"floor": floorID, "error": err.Error()})
		return session.HintResult{}, err
	}
	if res.Available && res.Hint != "" {
		c.mu.Lock()
		if gen == c.gen {
			c.hint = res.Hint
		}
		c.mu.Unlock()
	}
	return res, nil
}

func (c *Chat) View() ChatView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChatView{
		Floor:         c.floor,
		Messages:      append([]Message(nil), c.messages...),
		Sending:       c.sending,
		Attempts:      c.attempts,
		HintAvailable: c.hintReady,
		Hint:          c.hint,
		CanRetry:      !c.sending && c.lastFailed != "",
	}
}

func failureText(cond Condition, f floors.Floor, err error) string {
	switch cond {
	case ConditionTimeout:
		return fmt.Sprintf("[System] No response received from %s. The server may be busy. You can try again.", f.Character)
	case ConditionNetwork:
		return "[System] Connection error. Please check your internet connection and try again."
	default:
		return "[System] Error: " + session.MessageOf(err)
	}
}

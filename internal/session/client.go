// Package session talks to the BreachLab backend and owns the session token.
//
// The backend mints a token on the first call that arrives without one. Every
// successful response carries the token to use next; the Client adopts it,
// persists it, and sends it on all later calls.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"breachlab/internal/telemetry"
)

const TokenKey = "breachlab_session"

// TokenStore persists the session token across runs.
type TokenStore interface {
	GetValue(ctx context.Context, key string) (string, bool, error)
	PutValue(ctx context.Context, key, value string) error
	DeleteValue(ctx context.Context, key string) error
}

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenStore
	Logger     *telemetry.JSONLogger
	// RequestTimeout bounds every call except SendMessage, whose deadline is
	// set by the caller.
	RequestTimeout time.Duration
}

type Client struct {
	baseURL        string
	http           *http.Client
	tokens         TokenStore
	logger         *telemetry.JSONLogger
	requestTimeout time.Duration
	runID          string

	mu    sync.Mutex
	token string
}

func New(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		http:           hc,
		tokens:         opts.Tokens,
		logger:         opts.Logger,
		requestTimeout: opts.RequestTimeout,
		runID:          uuid.NewString(),
	}
}

// Restore loads a previously persisted token. A missing or unreadable token
// leaves the client without one, so the next call starts a fresh session.
func (c *Client) Restore(ctx context.Context) {
	if c.tokens == nil {
		return
	}
	tok, ok, err := c.tokens.GetValue(ctx, TokenKey)
	if err != nil {
		c.logger.Error("session.token_load_failed", map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		return
	}
	c.mu.Lock()
	c.token = strings.TrimSpace(tok)
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the current token. An empty token forgets the session.
func (c *Client) SetToken(ctx context.Context, token string) {
	token = strings.TrimSpace(token)
	c.mu.Lock()
	changed := token != c.token
	c.token = token
	c.mu.Unlock()
	if !changed || c.tokens == nil {
		return
	}
	var err error
	if token == "" {
		err = c.tokens.DeleteValue(ctx, TokenKey)
	} else {
		err = c.tokens.PutValue(ctx, TokenKey, token)
	}
	if err != nil {
		c.logger.Error("session.token_save_failed", map[string]any{"error": err.Error()})
		return
	}
	c.logger.Info("session.token_adopted", map[string]any{"fresh": token != ""})
}

// RunID identifies this client process to the backend.
func (c *Client) RunID() string { return c.runID }

func (c *Client) FetchProgress(ctx context.Context) (Progress, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	q := url.Values{}
	if tok := c.Token(); tok != "" {
		q.Set("session_id", tok)
	}
	var out Progress
	if err := c.do(ctx, "get progress", http.MethodGet, "/api/progress", q, nil, &out); err != nil {
		return Progress{}, err
	}
	if out.CompletedFloors == nil {
		out.CompletedFloors = []int{}
	}
	return out, nil
}

// Reset asks the backend to discard the session. The backend answers with a
// new session on floor 1 with nothing completed.
func (c *Client) Reset(ctx context.Context) (Progress, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	tok := c.Token()
	q := url.Values{}
	if tok != "" {
		q.Set("session_id", tok)
	}
	var out resetResponse
	if err := c.do(ctx, "reset game", http.MethodPost, "/api/reset", q, resetRequest{SessionID: tok}, &out); err != nil {
		return Progress{}, err
	}
	p := Progress{
		SessionID:       out.SessionID,
		CurrentFloor:    out.CurrentFloor,
		CompletedFloors: out.CompletedFloors,
	}
	if p.CurrentFloor < 1 {
		p.CurrentFloor = 1
	}
	if p.CompletedFloors == nil {
		p.CompletedFloors = []int{}
	}
	return p, nil
}

// SendMessage posts one chat turn. ctx carries the caller's reply deadline;
// when it expires the request is cancelled and the error has KindTimeout.
func (c *Client) SendMessage(ctx context.Context, message string, floorID int) (ChatReply, error) {
	var out ChatReply
	body := chatRequest{Message: message, SessionID: c.Token(), FloorID: floorID}
	if err := c.do(ctx, "send message", http.MethodPost, "/api/chat", nil, body, &out); err != nil {
		return ChatReply{}, err
	}
	if out.FloorID == 0 {
		out.FloorID = floorID
	}
	return out, nil
}

func (c *Client) Verify(ctx context.Context, code string, floorID int) (VerifyResult, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	var out VerifyResult
	body := verifyRequest{Code: code, SessionID: c.Token(), FloorID: floorID}
	if err := c.do(ctx, "verify code", http.MethodPost, "/api/verify", nil, body, &out); err != nil {
		return VerifyResult{}, err
	}
	if out.FloorID == 0 {
		out.FloorID = floorID
	}
	return out, nil
}

func (c *Client) Hint(ctx context.Context, floorID int) (HintResult, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	q := url.Values{}
	q.Set("floor_id", strconv.Itoa(floorID))
	if tok := c.Token(); tok != "" {
		q.Set("session_id", tok)
	}
	var out HintResult
	if err := c.do(ctx, "get hint", http.MethodGet, "/api/hint", q, nil, &out); err != nil {
		return HintResult{}, err
	}
	return out, nil
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.requestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.requestTimeout)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any, out tokenCarrier) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Run", c.runID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kind := KindNetwork
		if isTimeout(ctx, err) {
			kind = KindTimeout
		}
		c.logger.Warn("session.request_failed", map[string]any{
			"op":    op,
			"kind":  kind.String(),
			"error": err.Error(),
			"ms":    time.Since(start).Milliseconds(),
		})
		return &Error{Op: op, Kind: kind, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := rejectionMessage(resp.Body, op)
		c.logger.Warn("session.request_rejected", map[string]any{
			"op":      op,
			"status":  resp.StatusCode,
			"message": msg,
		})
		return &Error{Op: op, Kind: KindRejected, Status: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		kind := KindNetwork
		if isTimeout(ctx, err) {
			kind = KindTimeout
		}
		return &Error{Op: op, Kind: kind, Err: fmt.Errorf("decode response: %w", err)}
	}
	if tok := out.token(); tok != "" {
		c.SetToken(ctx, tok)
	}
	c.logger.Debug("session.request_ok", map[string]any{
		"op": op,
		"ms": time.Since(start).Milliseconds(),
	})
	return nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// rejectionMessage extracts the backend's "detail" text, falling back to a
// generic message for the operation.
func rejectionMessage(r io.Reader, op string) string {
	fallback := "Failed to " + op
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil || len(raw) == 0 {
		return fallback
	}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return fallback
	}
	switch d := body.Detail.(type) {
	case string:
		if strings.TrimSpace(d) != "" {
			return d
		}
	case []any:
		// request validation errors arrive as a list of {msg: ...}
		for _, item := range d {
			if m, ok := item.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return fallback
}

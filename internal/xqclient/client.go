// Package xqclient talks to a running board service: JSON calls over
// fasthttp and the event stream over websocket.
package xqclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/park285/xiangqi-board/pkg/xqdto"
	"github.com/valyala/fasthttp"
)

// APIError is a non-2xx answer. Domain is set when the body carried one.
type APIError struct {
	Status int
	Domain *xqdto.DomainError
	Body   string
}

func (e *APIError) Error() string {
	if e.Domain != nil {
		return fmt.Sprintf("xq api %d %s: %s", e.Status, e.Domain.Code, e.Domain.Message)
	}
	return fmt.Sprintf("xq api error: status=%d body=%s", e.Status, e.Body)
}

// Code is the domain code, or "" when the server sent none.
func (e *APIError) Code() string {
	if e.Domain == nil {
		return ""
	}
	return e.Domain.Code
}

type Client struct {
	baseURL string
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

// WithHTTPClient swaps the transport, mostly for in-memory tests.
func WithHTTPClient(hc *fasthttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) State(ctx context.Context) (*xqdto.GameState, error) {
	var st xqdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/state", nil, &st, true); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Select(ctx context.Context, file, rank int) (*xqdto.GameState, error) {
	var st xqdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/select", xqdto.SelectRequest{File: file, Rank: rank}, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Deselect(ctx context.Context) (*xqdto.GameState, error) {
	var st xqdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodDelete, "/api/select", nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Legal(ctx context.Context, file, rank int) ([]xqdto.SquareDTO, error) {
	var out []xqdto.SquareDTO
	path := "/api/legal?file=" + strconv.Itoa(file) + "&rank=" + strconv.Itoa(rank)
	if err := c.doJSON(ctx, fasthttp.MethodGet, path, nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Move(ctx context.Context, move string) (*xqdto.MoveResponse, error) {
	var resp xqdto.MoveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/move", xqdto.MoveRequest{Move: move}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Click(ctx context.Context, x, y, z float64) (*xqdto.ClickResponse, error) {
	var resp xqdto.ClickResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/click", xqdto.ClickRequest{X: x, Y: y, Z: z}, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Hint(ctx context.Context) (uint64, error) {
	var resp xqdto.HintResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/hint", nil, &resp, false); err != nil {
		return 0, err
	}
	return resp.Token, nil
}

func (c *Client) NewGame(ctx context.Context) (*xqdto.GameState, error) {
	var st xqdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/newgame", nil, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) LoadFEN(ctx context.Context, fen string) (*xqdto.GameState, error) {
	var st xqdto.GameState
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/api/fen", xqdto.FENRequest{FEN: fen}, &st, false); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) Games(ctx context.Context, limit int) ([]xqdto.FinishedGame, error) {
	var out []xqdto.FinishedGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/api/games?limit="+strconv.Itoa(limit), nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// BoardPNG fetches the rendered board.
func (c *Client) BoardPNG(ctx context.Context) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()
	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/api/board.png")
	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return nil, apiError(status, resp.Body())
	}
	return append([]byte(nil), resp.Body()...), nil
}

// doJSON sends in as JSON and decodes the answer into out. Only idempotent
// calls pass retry; a move must never be sent twice.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.SetContentType("application/json")
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = apiError(status, resp.Body())
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func apiError(status int, body []byte) *APIError {
	e := &APIError{Status: status, Body: truncate(string(body), 512)}
	var wrapped struct {
		Error *xqdto.DomainError `json:"error"`
	}
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error != nil {
		e.Domain = wrapped.Error
	}
	return e
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

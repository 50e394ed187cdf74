package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.devin.ai/v1"

var ErrNoSessionID = errors.New("devin returned no session_id")

type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("devin %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

type Client struct {
	http    *http.Client
	baseURL string
	limiter *rate.Limiter
	log     *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRequestsPerMinute paces every API call. n <= 0 leaves calls unthrottled.
func WithRequestsPerMinute(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

func NewClient(ctx context.Context, apiKey string, log *slog.Logger, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
	c := &Client{
		http:    oauth2.NewClient(ctx, ts),
		baseURL: DefaultBaseURL,
		limiter: rate.NewLimiter(rate.Inf, 0),
		log:     log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (Session, error) {
	var out Session
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", req, &out); err != nil {
		return Session{}, err
	}
	if out.ID == "" {
		return Session{}, ErrNoSessionID
	}

	c.log.Info("devin session created", "session", out.ID, "url", out.URL, "new", out.IsNewSession)
	return out, nil
}

func (c *Client) GetSession(ctx context.Context, id string) (SessionDetails, error) {
	var out SessionDetails
	if err := c.do(ctx, "get session", http.MethodGet, "/session/"+url.PathEscape(id), nil, &out); err != nil {
		return SessionDetails{}, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("devin %s: %w", op, err)
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("devin %s: encode body: %w", op, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("devin %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("devin %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("devin %s: decode response: %w", op, err)
	}
	return nil
}

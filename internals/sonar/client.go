package sonar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-querystring/query"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://sonarcloud.io"
	DefaultPageSize = 100
	maxPageSize     = 500   // hard limit enforced by the issues/search endpoint
	maxResultWindow = 10000 // the endpoint rejects p*ps beyond this

	searchPath = "/api/issues/search"
)

type Issue struct {
	Key       string `json:"key"`
	Message   string `json:"message"`
	Component string `json:"component"`
	Project   string `json:"project"`
	Severity  string `json:"severity"`
	Rule      string `json:"rule"`
	Line      int    `json:"line"`
}

// FilePath returns the component with its "project:" prefix removed.
func (i Issue) FilePath() string {
	if _, path, ok := strings.Cut(i.Component, ":"); ok {
		return path
	}
	return i.Component
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sonar api: status %d: %s", e.StatusCode, e.Body)
}

type searchParams struct {
	Organization string `url:"organization,omitempty"`
	ProjectKeys  string `url:"projectKeys,omitempty"`
	Types        string `url:"types"`
	Statuses     string `url:"statuses"`
	PageSize     int    `url:"ps"`
	Page         int    `url:"p"`
}

type searchResponse struct {
	Paging struct {
		PageIndex int `json:"pageIndex"`
		PageSize  int `json:"pageSize"`
		Total     int `json:"total"`
	} `json:"paging"`
	Issues []Issue `json:"issues"`
}

type Client struct {
	http         *http.Client
	baseURL      string
	organization string
	projectKey   string
	pageSize     int
	log          *slog.Logger
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithScope restricts the search to an organization and project key.
// Empty values are omitted from the query.
func WithScope(organization, projectKey string) Option {
	return func(c *Client) {
		c.organization = organization
		c.projectKey = projectKey
	}
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxPageSize {
			c.pageSize = n
		}
	}
}

func NewClient(ctx context.Context, token string, log *slog.Logger, opts ...Option) *Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	c := &Client{
		http:     oauth2.NewClient(ctx, ts),
		baseURL:  DefaultBaseURL,
		pageSize: DefaultPageSize,
		log:      log,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchIssues returns every open vulnerability in scope, following pagination
// up to the endpoint's 10000 result window.
func (c *Client) SearchIssues(ctx context.Context) ([]Issue, error) {
	var (
		all   []Issue
		total int
	)
	for page := 1; ; page++ {
		if page*c.pageSize > maxResultWindow {
			c.log.Warn("result window reached, remaining issues skipped",
				"fetched", len(all), "total", total, "window", maxResultWindow)
			break
		}
		resp, err := c.searchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Issues...)
		total = resp.Paging.Total

		if len(resp.Issues) == 0 || len(all) >= resp.Paging.Total {
			break
		}
	}

	c.log.Info("found issues", "count", len(all))
	return all, nil
}

func (c *Client) searchPage(ctx context.Context, page int) (searchResponse, error) {
	values, err := query.Values(searchParams{
		Organization: c.organization,
		ProjectKeys:  c.projectKey,
		Types:        "VULNERABILITY",
		Statuses:     "OPEN",
		PageSize:     c.pageSize,
		Page:         page,
	})
	if err != nil {
		return searchResponse{}, fmt.Errorf("encode query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+values.Encode(), nil)
	if err != nil {
		return searchResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return searchResponse{}, fmt.Errorf("sonar search issues: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return searchResponse{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return searchResponse{}, fmt.Errorf("decode issues page %d: %w", page, err)
	}
	return out, nil
}

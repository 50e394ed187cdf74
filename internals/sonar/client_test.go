package sonar

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSearchIssues_SendsFiltersAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/issues/search", r.URL.Path)
		assert.Equal(t, "Bearer sonar-token", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "VULNERABILITY", q.Get("types"))
		assert.Equal(t, "OPEN", q.Get("statuses"))
		assert.Equal(t, "acme", q.Get("organization"))
		assert.Equal(t, "acme_web", q.Get("projectKeys"))
		assert.Equal(t, "1", q.Get("p"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"paging": map[string]int{"pageIndex": 1, "pageSize": 100, "total": 1},
			"issues": []map[string]any{{
				"key":       "I1",
				"message":   "SQL Injection Risk",
				"component": "acme_web:app/db.py",
				"severity":  "CRITICAL",
			}},
		})
	}))
	defer srv.Close()

	c := NewClient(context.Background(), "sonar-token", discardLogger(),
		WithBaseURL(srv.URL),
		WithScope("acme", "acme_web"),
	)

	issues, err := c.SearchIssues(context.Background())
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "I1", issues[0].Key)
	assert.Equal(t, "SQL Injection Risk", issues[0].Message)
	assert.Equal(t, "app/db.py", issues[0].FilePath())
}

func TestSearchIssues_OmitsEmptyScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("organization"))
		assert.False(t, q.Has("projectKeys"))
		_, _ = w.Write([]byte(`{"paging":{"total":0},"issues":[]}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), "t", discardLogger(), WithBaseURL(srv.URL))
	issues, err := c.SearchIssues(context.Background())
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestSearchIssues_FollowsPagination(t *testing.T) {
	var (
		mu    sync.Mutex
		pages []int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("p"))
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
		assert.Equal(t, "2", r.URL.Query().Get("ps"))

		issues := []map[string]string{
			{"key": "K" + strconv.Itoa(page*2-1)},
			{"key": "K" + strconv.Itoa(page*2)},
		}
		if page == 3 {
			issues = issues[:1]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"paging": map[string]int{"pageIndex": page, "pageSize": 2, "total": 5},
			"issues": issues,
		})
	}))
	defer srv.Close()

	c := NewClient(context.Background(), "t", discardLogger(), WithBaseURL(srv.URL), WithPageSize(2))
	issues, err := c.SearchIssues(context.Background())
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, pages)
	mu.Unlock()
	require.Len(t, issues, 5)
	assert.Equal(t, "K5", issues[4].Key)
}

func TestSearchIssues_StopsAtResultWindow(t *testing.T) {
	var (
		mu      sync.Mutex
		maxPage int
		calls   int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("p"))
		ps, _ := strconv.Atoi(r.URL.Query().Get("ps"))
		mu.Lock()
		calls++
		maxPage = max(maxPage, page)
		mu.Unlock()
		if page*ps > 10000 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":[{"msg":"Can return only the first 10000 results."}]}`))
			return
		}

		issues := make([]map[string]string, ps)
		for i := range issues {
			issues[i] = map[string]string{"key": "K" + strconv.Itoa((page-1)*ps+i)}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"paging": map[string]int{"pageIndex": page, "pageSize": ps, "total": 25000},
			"issues": issues,
		})
	}))
	defer srv.Close()

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logs, nil))
	c := NewClient(context.Background(), "t", log, WithBaseURL(srv.URL), WithPageSize(500))
	issues, err := c.SearchIssues(context.Background())
	require.NoError(t, err)

	assert.Len(t, issues, 10000)
	mu.Lock()
	assert.Equal(t, 20, calls)
	assert.Equal(t, 20, maxPage)
	mu.Unlock()
	assert.Contains(t, logs.String(), "result window reached")
	assert.Contains(t, logs.String(), "total=25000")
}

func TestSearchIssues_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"msg":"Insufficient privileges"}]}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(context.Background(), "t", discardLogger(), WithBaseURL(srv.URL))
	issues, err := c.SearchIssues(context.Background())
	assert.Nil(t, issues)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "Insufficient privileges")
}

func TestSearchIssues_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), "t", discardLogger(), WithBaseURL(srv.URL))
	_, err := c.SearchIssues(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode issues page 1")
}

func TestIssueFilePath(t *testing.T) {
	tests := []struct {
		component string
		want      string
	}{
		{"proj:src/main.go", "src/main.go"},
		{"src/main.go", "src/main.go"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			assert.Equal(t, tt.want, Issue{Component: tt.component}.FilePath())
		})
	}
}

func TestWithPageSize_IgnoresOutOfRange(t *testing.T) {
	c := NewClient(context.Background(), "t", discardLogger(), WithPageSize(0))
	assert.Equal(t, DefaultPageSize, c.pageSize)

	c = NewClient(context.Background(), "t", discardLogger(), WithPageSize(1000))
	assert.Equal(t, DefaultPageSize, c.pageSize)
}

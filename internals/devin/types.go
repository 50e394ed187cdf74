package devin

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

type Status string

const (
	StatusRunning Status = "running"
	StatusBlocked Status = "blocked"
	StatusStopped Status = "stopped"
)

// Terminal reports whether no further progress is expected without outside
// intervention.
func (s Status) Terminal() bool {
	return s == StatusBlocked || s == StatusStopped
}

type CreateSessionRequest struct {
	Prompt     string `json:"prompt"`
	Idempotent bool   `json:"idempotent"`
}

type Session struct {
	ID           string `json:"session_id"`
	URL          string `json:"url"`
	IsNewSession bool   `json:"is_new_session"`
}

type SessionDetails struct {
	ID               string          `json:"session_id"`
	StatusEnum       Status          `json:"status_enum"`
	StructuredOutput json.RawMessage `json:"structured_output"`
	PullRequest      *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
}

func (d SessionDetails) Terminal() bool { return d.StatusEnum.Terminal() }

// HasFix reports whether the agent's structured output mentions a fix. An
// object must carry a "fix" key; a plain string must contain "fix".
func (d SessionDetails) HasFix() bool {
	if len(d.StructuredOutput) == 0 {
		return false
	}
	out := gjson.ParseBytes(d.StructuredOutput)
	switch {
	case out.IsObject():
		return out.Get("fix").Exists()
	case out.Type == gjson.String:
		return strings.Contains(out.Str, "fix")
	default:
		return false
	}
}

func (d SessionDetails) PullRequestURL() string {
	if d.PullRequest == nil {
		return ""
	}
	return d.PullRequest.URL
}

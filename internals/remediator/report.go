package remediator

import (
	"fmt"
	"log/slog"

	"github.com/jadenj13/devin-remediation/internals/devin"
	"github.com/jadenj13/devin-remediation/internals/sonar"
)

type Outcome string

const (
	OutcomeCommitted Outcome = "committed"
	OutcomeNoFix     Outcome = "no_fix"
	OutcomeNoChanges Outcome = "no_changes"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

var outcomes = []Outcome{OutcomeCommitted, OutcomeNoFix, OutcomeNoChanges, OutcomeFailed, OutcomeSkipped}

type IssueResult struct {
	Issue      sonar.Issue
	Branch     string
	SessionID  string
	SessionURL string
	Status     devin.Status
	PRURL      string
	Outcome    Outcome
	Err        error

	SessionPRURL string // pull request the agent opened itself, if any
}

func (res IssueResult) fail(log *slog.Logger, step string, err error) IssueResult {
	res.Outcome = OutcomeFailed
	res.Err = fmt.Errorf("%s: %w", step, err)
	log.Error("issue failed", "step", step, "branch", res.Branch, "err", err)
	return res
}

type Report struct {
	Results []IssueResult
}

func (r Report) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

func (r Report) LogAttrs() []any {
	attrs := []any{"issues", len(r.Results)}
	for _, o := range outcomes {
		attrs = append(attrs, string(o), r.Count(o))
	}
	return attrs
}

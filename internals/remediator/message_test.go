package remediator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jadenj13/devin-remediation/internals/sonar"
)

func TestPrompt(t *testing.T) {
	assert.Equal(t,
		"Fix the following vulnerability: SQL Injection Risk in file app/db.py. "+
			"Implement the fix and provide a detailed commit message explaining the changes.",
		Prompt("", sqlIssue))
}

func TestCommitMessage_UsesLocalOffset(t *testing.T) {
	loc := time.FixedZone("CEST", 2*60*60)
	m := CommitMessage{Issue: sqlIssue, FixedAt: time.Date(2026, 10, 17, 11, 30, 0, 0, loc)}
	assert.Contains(t, m.String(), "Fixed by Devin AI at 2026-10-17T11:30:00+02:00")
}

func TestPullRequestBody(t *testing.T) {
	res := IssueResult{
		Issue: sonar.Issue{
			Key:       "AY1",
			Message:   "Weak hash",
			Component: "acme_web:crypto/hash.go",
			Severity:  "MAJOR",
			Rule:      "go:S4790",
		},
		SessionURL: "https://app.devin.ai/sessions/9",
	}

	assert.Equal(t, "Automated remediation of a vulnerability reported by SonarCloud.\n\n"+
		"- Issue: `AY1`\n"+
		"- Message: Weak hash\n"+
		"- File: `crypto/hash.go`\n"+
		"- Severity: MAJOR\n"+
		"- Rule: `go:S4790`\n"+
		"- Devin session: https://app.devin.ai/sessions/9", PullRequestBody(res, "", ""))

	assert.Contains(t, PullRequestBody(res, "octocat", ""), "\n---\n*Triggered by @octocat*")
	assert.Contains(t, PullRequestBody(res, "", "abc"), "*Scanned at abc*")
}

func TestReportCountsAndAttrs(t *testing.T) {
	r := Report{Results: []IssueResult{
		{Outcome: OutcomeCommitted},
		{Outcome: OutcomeFailed},
		{Outcome: OutcomeCommitted},
		{Outcome: OutcomeNoFix},
	}}
	assert.Equal(t, 2, r.Count(OutcomeCommitted))
	assert.Equal(t, 0, r.Count(OutcomeSkipped))
	assert.Equal(t, []any{
		"issues", 4,
		"committed", 2,
		"no_fix", 1,
		"no_changes", 0,
		"failed", 1,
		"skipped", 0,
	}, r.LogAttrs())
}

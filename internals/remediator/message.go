package remediator

import (
	"fmt"
	"strings"
	"time"

	"github.com/jadenj13/devin-remediation/internals/sonar"
)

// Prompt is the instruction sent to the remediation agent for one issue.
func Prompt(repository string, issue sonar.Issue) string {
	target := "Fix the following vulnerability"
	if repository != "" {
		target += " in " + repository
	}
	return fmt.Sprintf("%s: %s in file %s. Implement the fix and provide a detailed commit message explaining the changes.",
		target, issue.Message, issue.Component)
}

type CommitMessage struct {
	Issue       sonar.Issue
	Description string
	FixedAt     time.Time
	CoAuthor    string
}

func (m CommitMessage) Subject() string {
	return "fix: Remediate vulnerability - " + m.Issue.Message
}

func (m CommitMessage) String() string {
	var sb strings.Builder
	sb.WriteString(m.Subject())
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "Issue Key: %s\n", m.Issue.Key)
	fmt.Fprintf(&sb, "Component: %s\n", m.Issue.Component)
	fmt.Fprintf(&sb, "Fixed by Devin AI at %s", m.FixedAt.Format(time.RFC3339))
	if m.Description != "" {
		sb.WriteString("\n\n")
		sb.WriteString(m.Description)
	}
	if m.CoAuthor != "" {
		sb.WriteString("\n\nCo-authored-by: ")
		sb.WriteString(m.CoAuthor)
	}
	return sb.String()
}

func PullRequestBody(res IssueResult, actor, sha string) string {
	var sb strings.Builder
	sb.WriteString("Automated remediation of a vulnerability reported by SonarCloud.\n\n")
	fmt.Fprintf(&sb, "- Issue: `%s`\n", res.Issue.Key)
	fmt.Fprintf(&sb, "- Message: %s\n", res.Issue.Message)
	fmt.Fprintf(&sb, "- File: `%s`\n", res.Issue.FilePath())
	if res.Issue.Severity != "" {
		fmt.Fprintf(&sb, "- Severity: %s\n", res.Issue.Severity)
	}
	if res.Issue.Rule != "" {
		fmt.Fprintf(&sb, "- Rule: `%s`\n", res.Issue.Rule)
	}
	if res.SessionURL != "" {
		fmt.Fprintf(&sb, "- Devin session: %s\n", res.SessionURL)
	}
	if res.SessionPRURL != "" {
		fmt.Fprintf(&sb, "- Devin pull request: %s\n", res.SessionPRURL)
	}
	if actor != "" || sha != "" {
		sb.WriteString("\n---\n")
		switch {
		case actor != "" && sha != "":
			fmt.Fprintf(&sb, "*Triggered by @%s at %s*", actor, shortSHA(sha))
		case actor != "":
			fmt.Fprintf(&sb, "*Triggered by @%s*", actor)
		default:
			fmt.Fprintf(&sb, "*Scanned at %s*", shortSHA(sha))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

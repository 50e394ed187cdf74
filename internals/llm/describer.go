package llm

import (
	"context"
	"fmt"
	"strings"
)

const maxDiffBytes = 24000

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CommitDescriber writes the body paragraph of a remediation commit from the
// staged diff.
type CommitDescriber struct {
	llm Completer
}

func NewCommitDescriber(llm Completer) *CommitDescriber {
	return &CommitDescriber{llm: llm}
}

func (d *CommitDescriber) Describe(ctx context.Context, subject, diff string) (string, error) {
	if strings.TrimSpace(diff) == "" {
		return "", nil
	}

	out, err := d.llm.Complete(ctx, describeSystemPrompt, describePrompt(subject, truncate(diff, maxDiffBytes)))
	if err != nil {
		return "", fmt.Errorf("describe commit: %w", err)
	}
	return wrapBody(out), nil
}

const describeSystemPrompt = `You write git commit message bodies for security fixes.
Reply with plain text only: no markdown headings, no code fences, no subject line.
Explain what was vulnerable and how the change removes the vulnerability in at most six short lines.`

func describePrompt(subject, diff string) string {
	return fmt.Sprintf(`Commit subject: %s

Staged diff:
---
%s
---`, subject, diff)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + fmt.Sprintf("\n... (truncated, %d bytes total)", len(s))
}

// wrapBody drops fences and blank edges the model sometimes adds anyway.
func wrapBody(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

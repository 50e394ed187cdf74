package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"
)

type Remediation struct {
	IssueKey   string
	Message    string
	Component  string
	Branch     string
	SessionURL string
	PRURL      string // empty when no pull request was opened
	Repository string
}

type SlackNotifier struct {
	client    *slack.Client
	channelID string // channel to post remediation notifications to
}

func NewSlackNotifier(botToken, channelID string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{
		client:    slack.New(botToken, opts...),
		channelID: channelID,
	}
}

func (n *SlackNotifier) NotifyRemediated(ctx context.Context, r Remediation) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText(formatRemediation(r), false),
	)
	if err != nil {
		return fmt.Errorf("slack notify: %w", err)
	}
	return nil
}

func formatRemediation(r Remediation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":shield: *Vulnerability remediated*: %s\n", r.Message)
	fmt.Fprintf(&sb, "Issue: `%s` in `%s`\n", r.IssueKey, r.Component)
	fmt.Fprintf(&sb, "Branch: `%s`", r.Branch)
	if r.Repository != "" {
		fmt.Fprintf(&sb, " (%s)", r.Repository)
	}
	if r.PRURL != "" {
		fmt.Fprintf(&sb, "\nPull request: <%s>", r.PRURL)
	}
	if r.SessionURL != "" {
		fmt.Fprintf(&sb, "\nDevin session: <%s>", r.SessionURL)
	}
	return sb.String()
}

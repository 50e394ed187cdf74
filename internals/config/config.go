package config

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/jadenj13/devin-remediation/internals/git"
)

const (
	actionsBotName  = "github-actions[bot]"
	actionsBotEmail = "github-actions[bot]@users.noreply.github.com"
)

type Config struct {
	SonarToken        string `env:"SONAR_TOKEN,required"`
	SonarBaseURL      string `env:"SONAR_BASE_URL,default=https://sonarcloud.io"`
	SonarOrganization string `env:"ORG"`
	SonarProjectKey   string `env:"SONAR_PROJECT_KEY"`
	SonarPageSize     int    `env:"SONAR_PAGE_SIZE,default=100"`

	DevinAPIKey            string        `env:"DEVIN_API_KEY,required"`
	DevinBaseURL           string        `env:"DEVIN_API_BASE,default=https://api.devin.ai/v1"`
	DevinRequestsPerMinute int           `env:"DEVIN_REQUESTS_PER_MINUTE,default=0"`
	PollInterval           time.Duration `env:"POLL_INTERVAL,default=5s"`
	SessionTimeout         time.Duration `env:"SESSION_TIMEOUT,default=2h"`

	GitHubToken     string `env:"GITHUB_TOKEN"`
	GitLabToken     string `env:"GITLAB_TOKEN"`
	GitHubActions   bool   `env:"GITHUB_ACTIONS,default=false"`
	GitHubServerURL string `env:"GITHUB_SERVER_URL,default=https://github.com"`
	Repository      string `env:"GITHUB_REPOSITORY"`
	Actor           string `env:"GITHUB_ACTOR"`
	Ref             string `env:"GITHUB_REF"`
	GitHubBaseRef   string `env:"GITHUB_BASE_REF"`
	SHA             string `env:"GITHUB_SHA"`

	RepoDir         string `env:"REPO_DIR,default=."`
	BranchPrefix    string `env:"BRANCH_PREFIX,default=fix/devin/"`
	BaseRef         string `env:"BASE_REF"`
	OpenPullRequest bool   `env:"OPEN_PULL_REQUEST,default=false"`
	DraftPR         bool   `env:"DRAFT_PULL_REQUEST,default=false"`
	MaxIssues       int    `env:"MAX_ISSUES,default=0"`
	DryRun          bool   `env:"DRY_RUN,default=false"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `env:"ANTHROPIC_MODEL"`

	SlackBotToken string `env:"SLACK_BOT_TOKEN"`
	SlackChannel  string `env:"SLACK_NOTIFY_CHANNEL"`

	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive, got %s", c.PollInterval)
	}
	if c.SessionTimeout < 0 {
		return fmt.Errorf("SESSION_TIMEOUT must not be negative, got %s", c.SessionTimeout)
	}
	if c.MaxIssues < 0 {
		return fmt.Errorf("MAX_ISSUES must not be negative, got %d", c.MaxIssues)
	}
	if !git.ValidPrefix(c.BranchPrefix) {
		return fmt.Errorf("BRANCH_PREFIX %q is not a valid git ref prefix", c.BranchPrefix)
	}
	if c.Repository != "" && !strings.Contains(c.Repository, "/") {
		return fmt.Errorf("GITHUB_REPOSITORY must be owner/repo, got %q", c.Repository)
	}
	if c.SlackBotToken != "" && c.SlackChannel == "" {
		return fmt.Errorf("SLACK_NOTIFY_CHANNEL is required when SLACK_BOT_TOKEN is set")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return l, nil
}

// PushRemoteURL returns the authenticated origin URL used on CI runners, or
// "" when the workspace's own remote should be left alone.
func (c *Config) PushRemoteURL() (string, error) {
	if !c.GitHubActions || c.Repository == "" || c.GitHubToken == "" {
		return "", nil
	}
	return git.RemoteURLWithToken(c.GitHubServerURL, c.Repository, c.GitHubToken)
}

// CommitIdentity returns the committer configured on CI runners.
func (c *Config) CommitIdentity() (name, email string, ok bool) {
	if !c.GitHubActions {
		return "", "", false
	}
	return actionsBotName, actionsBotEmail, true
}

// CoAuthor credits the user who triggered the workflow run. The bot is
// already the committer, so bot actors get no trailer.
func (c *Config) CoAuthor() string {
	if !c.GitHubActions || c.Actor == "" || strings.HasSuffix(c.Actor, "[bot]") {
		return ""
	}
	return fmt.Sprintf("%s <%s@users.noreply.github.com>", c.Actor, c.Actor)
}

// PullRequestBase is the branch fixes are proposed against: BASE_REF, then the
// pull request target (GITHUB_BASE_REF), then the branch named by GITHUB_REF,
// then current. A detached HEAD leaves nothing to target.
func (c *Config) PullRequestBase(current string) (string, error) {
	switch {
	case c.BaseRef != "":
		return strings.TrimPrefix(c.BaseRef, "origin/"), nil
	case c.GitHubBaseRef != "":
		return c.GitHubBaseRef, nil
	}
	if b, ok := strings.CutPrefix(c.Ref, "refs/heads/"); ok {
		return b, nil
	}
	if current == "" || current == "HEAD" {
		return "", fmt.Errorf("no pull request base: HEAD is detached, set BASE_REF")
	}
	return current, nil
}

// RepositoryURL is the web URL of the repository, used to pick the forge.
func (c *Config) RepositoryURL() string {
	if c.Repository == "" {
		return ""
	}
	return strings.TrimRight(c.GitHubServerURL, "/") + "/" + c.Repository
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jadenj13/devin-remediation/internals/config"
	"github.com/jadenj13/devin-remediation/internals/devin"
	"github.com/jadenj13/devin-remediation/internals/git"
	"github.com/jadenj13/devin-remediation/internals/llm"
	"github.com/jadenj13/devin-remediation/internals/notify"
	"github.com/jadenj13/devin-remediation/internals/remediator"
	"github.com/jadenj13/devin-remediation/internals/sonar"
)

type flags struct {
	dryRun         bool
	openPR         bool
	maxIssues      int
	pollInterval   time.Duration
	sessionTimeout time.Duration
	repoDir        string
}

func main() {
	os.Exit(run())
}

func run() int {
	var f flags

	cmd := &cobra.Command{
		Use:   "remediate",
		Short: "Hand open SonarCloud vulnerabilities to Devin and push its fixes",
		Long: `Fetch open VULNERABILITY issues from SonarCloud, start one Devin session per
issue on a fresh branch, wait for each session to finish and commit and push the
fix when Devin reports one.

Configuration is read from the environment (SONAR_TOKEN, DEVIN_API_KEY, ...);
flags override it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemediation(cmd, f)
		},
	}

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "List issues and planned branches without starting sessions (env: DRY_RUN)")
	cmd.Flags().BoolVar(&f.openPR, "open-pr", false, "Open a pull/merge request for every pushed fix (env: OPEN_PULL_REQUEST)")
	cmd.Flags().IntVar(&f.maxIssues, "max-issues", 0, "Process at most N issues, 0 for all (env: MAX_ISSUES)")
	cmd.Flags().DurationVar(&f.pollInterval, "poll-interval", 0, "Delay between session status checks (default 5s, env: POLL_INTERVAL)")
	cmd.Flags().DurationVar(&f.sessionTimeout, "session-timeout", 0, "Give up on a session after this long, 0 to wait forever (default 2h, env: SESSION_TIMEOUT)")
	cmd.Flags().StringVar(&f.repoDir, "repo-dir", "", "Git working tree to branch and commit in (default ., env: REPO_DIR)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("remediation failed", "err", err)
		if errors.Is(err, context.Canceled) {
			return 130
		}
		return 1
	}
	return 0
}

func runRemediation(cmd *cobra.Command, f flags) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	applyFlags(cmd, f, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("run", uuid.NewString())
	slog.SetDefault(log)

	repo, err := git.Open(cfg.RepoDir)
	if err != nil {
		return err
	}
	if err := prepareRepo(ctx, cfg, repo, log); err != nil {
		return err
	}

	current, err := repo.CurrentBranch(ctx)
	if err != nil {
		return err
	}
	log.Info("starting remediation run",
		"repo", cfg.Repository,
		"dir", repo.Dir(),
		"branch", current,
		"base", cfg.BaseRef,
		"dry_run", cfg.DryRun,
	)

	issues := sonar.NewClient(ctx, cfg.SonarToken, log,
		sonar.WithBaseURL(cfg.SonarBaseURL),
		sonar.WithScope(cfg.SonarOrganization, cfg.SonarProjectKey),
		sonar.WithPageSize(cfg.SonarPageSize),
	)
	sessions := devin.NewClient(ctx, cfg.DevinAPIKey, log,
		devin.WithBaseURL(cfg.DevinBaseURL),
		devin.WithRequestsPerMinute(cfg.DevinRequestsPerMinute),
	)
	poller := devin.NewPoller(sessions, cfg.PollInterval, cfg.SessionTimeout, log)

	baseRef := cfg.BaseRef
	if baseRef == "" {
		// Every fix branch starts from where the run started, not from the previous fix.
		if baseRef, err = repo.HeadCommit(ctx); err != nil {
			return err
		}
	}

	opts := []remediator.Option{}
	if cfg.AnthropicAPIKey != "" {
		client := llm.NewClient(cfg.AnthropicAPIKey, llm.WithModel(cfg.AnthropicModel))
		opts = append(opts, remediator.WithCommitDescriber(llm.NewCommitDescriber(client)))
	}
	if cfg.SlackBotToken != "" {
		opts = append(opts, remediator.WithNotifier(notify.NewSlackNotifier(cfg.SlackBotToken, cfg.SlackChannel)))
	}
	if cfg.OpenPullRequest {
		base, err := cfg.PullRequestBase(current)
		if err != nil {
			log.Warn("pull requests disabled", "err", err)
		} else {
			opener, err := pullRequestOpener(ctx, cfg, repo)
			if err != nil {
				return err
			}
			opts = append(opts, remediator.WithPullRequests(opener, base, cfg.DraftPR))
		}
	}

	r := remediator.New(issues, sessions, poller, repo, remediator.Options{
		Repository:   cfg.Repository,
		BranchPrefix: cfg.BranchPrefix,
		BaseRef:      baseRef,
		MaxIssues:    cfg.MaxIssues,
		DryRun:       cfg.DryRun,
		CoAuthor:     cfg.CoAuthor(),
		Actor:        cfg.Actor,
		SHA:          cfg.SHA,
	}, log, opts...)

	_, err = r.Run(ctx)
	return err
}

func applyFlags(cmd *cobra.Command, f flags, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("dry-run") {
		cfg.DryRun = f.dryRun
	}
	if fs.Changed("open-pr") {
		cfg.OpenPullRequest = f.openPR
	}
	if fs.Changed("max-issues") {
		cfg.MaxIssues = f.maxIssues
	}
	if fs.Changed("poll-interval") {
		cfg.PollInterval = f.pollInterval
	}
	if fs.Changed("session-timeout") {
		cfg.SessionTimeout = f.sessionTimeout
	}
	if fs.Changed("repo-dir") {
		cfg.RepoDir = f.repoDir
	}
}

// prepareRepo sets the committer and an authenticated origin on CI runners.
func prepareRepo(ctx context.Context, cfg *config.Config, repo *git.Repo, log *slog.Logger) error {
	if name, email, ok := cfg.CommitIdentity(); ok {
		if err := repo.ConfigureIdentity(ctx, name, email); err != nil {
			return err
		}
	}

	remote, err := cfg.PushRemoteURL()
	if err != nil {
		return err
	}
	if remote != "" {
		if err := repo.SetRemoteURL(ctx, "origin", remote); err != nil {
			return err
		}
		log.Info("configured authenticated origin", "url", git.Redact(remote))
	}
	return nil
}

func pullRequestOpener(ctx context.Context, cfg *config.Config, repo *git.Repo) (git.PullRequestOpener, error) {
	repoURL := cfg.RepositoryURL()
	if repoURL == "" {
		u, err := repo.RemoteURL(ctx, "origin")
		if err != nil {
			return nil, err
		}
		repoURL = u
	}

	factory := git.NewFactory(cfg.GitHubToken, cfg.GitLabToken)
	opener, _, err := factory.OpenerFor(ctx, repoURL)
	return opener, err
}

package remediator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jadenj13/devin-remediation/internals/devin"
	"github.com/jadenj13/devin-remediation/internals/git"
	"github.com/jadenj13/devin-remediation/internals/notify"
	"github.com/jadenj13/devin-remediation/internals/sonar"
)

type IssueSource interface {
	SearchIssues(ctx context.Context) ([]sonar.Issue, error)
}

type SessionStarter interface {
	CreateSession(ctx context.Context, req devin.CreateSessionRequest) (devin.Session, error)
}

type SessionWaiter interface {
	Wait(ctx context.Context, id string) (devin.SessionDetails, error)
}

// VersionControl is the slice of git the workflow mutates.
type VersionControl interface {
	BranchExists(ctx context.Context, name string) (bool, error)
	CreateBranch(ctx context.Context, name, startPoint string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (bool, error)
	Push(ctx context.Context) (string, error)
}

type stagedDiffer interface {
	StagedDiff(ctx context.Context) (string, error)
}

type CommitDescriber interface {
	Describe(ctx context.Context, subject, diff string) (string, error)
}

type Notifier interface {
	NotifyRemediated(ctx context.Context, r notify.Remediation) error
}

type Options struct {
	Repository   string // owner/repo, embedded in the agent prompt when set
	BranchPrefix string
	BaseRef      string // start point for every fix branch; empty means HEAD
	MaxIssues    int    // 0 processes every issue
	DryRun       bool
	CoAuthor     string // "Name <email>" trailer appended to commits
	Actor        string
	SHA          string
}

type Remediator struct {
	issues   IssueSource
	sessions SessionStarter
	poller   SessionWaiter
	vcs      VersionControl
	opts     Options

	describer CommitDescriber
	notifier  Notifier
	opener    git.PullRequestOpener
	prBase    string
	prDraft   bool

	claimed map[string]bool // branches handed out during this run

	now func() time.Time
	log *slog.Logger
}

// maxBranchSuffix bounds the numbered fallbacks tried by branchFor.
const maxBranchSuffix = 20

type Option func(*Remediator)

func WithCommitDescriber(d CommitDescriber) Option {
	return func(r *Remediator) { r.describer = d }
}

func WithNotifier(n Notifier) Option {
	return func(r *Remediator) { r.notifier = n }
}

// WithPullRequests opens a pull/merge request against base after every push.
func WithPullRequests(o git.PullRequestOpener, base string, draft bool) Option {
	return func(r *Remediator) {
		r.opener = o
		r.prBase = base
		r.prDraft = draft
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Remediator) { r.now = now }
}

func New(issues IssueSource, sessions SessionStarter, poller SessionWaiter, vcs VersionControl,
	opts Options, log *slog.Logger, extra ...Option) *Remediator {
	if opts.BranchPrefix == "" {
		opts.BranchPrefix = git.DefaultBranchPrefix
	}
	r := &Remediator{
		issues:   issues,
		sessions: sessions,
		poller:   poller,
		vcs:      vcs,
		opts:     opts,
		claimed:  map[string]bool{},
		now:      time.Now,
		log:      log,
	}
	for _, o := range extra {
		o(r)
	}
	return r
}

// Run fetches open vulnerabilities and remediates them one at a time. A fetch
// failure aborts the run. Per-issue failures are logged, recorded in the
// report and joined into the returned error once every issue has been tried.
func (r *Remediator) Run(ctx context.Context) (Report, error) {
	issues, err := r.issues.SearchIssues(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("fetch issues: %w", err)
	}

	if r.opts.MaxIssues > 0 && len(issues) > r.opts.MaxIssues {
		r.log.Info("limiting issues", "found", len(issues), "max", r.opts.MaxIssues)
		issues = issues[:r.opts.MaxIssues]
	}

	var (
		report Report
		errs   []error
	)
	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		res := r.processIssue(ctx, issue)
		report.Results = append(report.Results, res)

		if res.Err != nil {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			errs = append(errs, fmt.Errorf("issue %s: %w", issue.Key, res.Err))
		}
	}

	r.log.Info("run complete", report.LogAttrs()...)
	return report, errors.Join(errs...)
}

func (r *Remediator) processIssue(ctx context.Context, issue sonar.Issue) IssueResult {
	log := r.log.With("issue", issue.Key)
	log.Info("processing issue", "message", issue.Message, "component", issue.Component)

	res := IssueResult{Issue: issue}
	branch, err := r.branchFor(ctx, issue)
	if err != nil {
		return res.fail(log, "pick branch", err)
	}
	res.Branch = branch

	if r.opts.DryRun {
		log.Info("dry run: skipping issue", "branch", branch)
		res.Outcome = OutcomeSkipped
		return res
	}

	log.Info("creating branch", "branch", branch, "start", r.opts.BaseRef)
	if err := r.vcs.CreateBranch(ctx, branch, r.opts.BaseRef); err != nil {
		return res.fail(log, "create branch", err)
	}

	sess, err := r.sessions.CreateSession(ctx, devin.CreateSessionRequest{
		Prompt:     Prompt(r.opts.Repository, issue),
		Idempotent: true,
	})
	if err != nil {
		return res.fail(log, "create session", err)
	}
	res.SessionID = sess.ID
	res.SessionURL = sess.URL

	details, err := r.poller.Wait(ctx, sess.ID)
	if err != nil {
		return res.fail(log, "wait for session", err)
	}
	res.Status = details.StatusEnum
	res.SessionPRURL = details.PullRequestURL()

	if !details.HasFix() {
		log.Info("session ended without a fix", "session", sess.ID, "status", details.StatusEnum, "pull_request", res.SessionPRURL)
		res.Outcome = OutcomeNoFix
		return res
	}

	return r.commit(ctx, log, res)
}

// branchFor picks a branch no other issue in this run and no existing local
// branch uses. Issues sharing a message get their key appended, then a counter.
func (r *Remediator) branchFor(ctx context.Context, issue sonar.Issue) (string, error) {
	prefix := r.opts.BranchPrefix
	base := git.BranchName(prefix, issue.Message)
	if base == prefix {
		base = git.BranchName(prefix, issue.Key)
	}
	candidates := []string{base}
	if keyed := git.KeyedBranchName(prefix, issue.Message, issue.Key); keyed != base {
		candidates = append(candidates, keyed)
	}
	last := candidates[len(candidates)-1]
	for n := 2; n <= maxBranchSuffix; n++ {
		candidates = append(candidates, fmt.Sprintf("%s-%d", last, n))
	}

	for _, name := range candidates {
		if r.claimed[name] {
			continue
		}
		exists, err := r.vcs.BranchExists(ctx, name)
		if err != nil {
			return "", err
		}
		if exists {
			r.log.Debug("branch taken", "issue", issue.Key, "branch", name)
			continue
		}
		r.claimed[name] = true
		return name, nil
	}
	return "", fmt.Errorf("no free branch name for %q after %d attempts", base, len(candidates))
}

// commit stages, commits and pushes the working tree, then opens a pull
// request and notifies when configured. Failures after the push only warn.
func (r *Remediator) commit(ctx context.Context, log *slog.Logger, res IssueResult) IssueResult {
	if err := r.vcs.StageAll(ctx); err != nil {
		return res.fail(log, "stage changes", err)
	}

	msg := CommitMessage{
		Issue:       res.Issue,
		Description: r.describe(ctx, log, res.Issue),
		FixedAt:     r.now(),
		CoAuthor:    r.opts.CoAuthor,
	}

	committed, err := r.vcs.Commit(ctx, msg.String())
	if err != nil {
		return res.fail(log, "commit", err)
	}
	if !committed {
		log.Warn("fix reported but working tree has no changes", "branch", res.Branch)
		res.Outcome = OutcomeNoChanges
		return res
	}

	out, err := r.vcs.Push(ctx)
	if err != nil {
		return res.fail(log, "push", err)
	}
	log.Info("pushed changes", "branch", res.Branch, "output", out)
	res.Outcome = OutcomeCommitted

	if r.opener != nil {
		url, err := r.opener.OpenPR(ctx, git.PRInput{
			Title:  msg.Subject(),
			Body:   PullRequestBody(res, r.opts.Actor, r.opts.SHA),
			Branch: res.Branch,
			Base:   r.prBase,
			Draft:  r.prDraft,
		})
		if err != nil {
			log.Warn("failed to open pull request", "branch", res.Branch, "err", err)
		} else {
			res.PRURL = url
			log.Info("pull request opened", "url", url)
		}
	}

	if r.notifier != nil {
		prURL := res.PRURL
		if prURL == "" {
			prURL = res.SessionPRURL
		}
		err := r.notifier.NotifyRemediated(ctx, notify.Remediation{
			IssueKey:   res.Issue.Key,
			Message:    res.Issue.Message,
			Component:  res.Issue.Component,
			Branch:     res.Branch,
			SessionURL: res.SessionURL,
			PRURL:      prURL,
			Repository: r.opts.Repository,
		})
		if err != nil {
			log.Warn("failed to send notification", "err", err)
		}
	}

	return res
}

// describe asks the describer for a body paragraph. Any failure falls back to
// the plain templated message.
func (r *Remediator) describe(ctx context.Context, log *slog.Logger, issue sonar.Issue) string {
	if r.describer == nil {
		return ""
	}
	differ, ok := r.vcs.(stagedDiffer)
	if !ok {
		return ""
	}
	diff, err := differ.StagedDiff(ctx)
	if err != nil {
		log.Warn("could not read staged diff", "err", err)
		return ""
	}
	desc, err := r.describer.Describe(ctx, CommitMessage{Issue: issue}.Subject(), diff)
	if err != nil {
		log.Warn("could not describe commit", "err", err)
		return ""
	}
	return desc
}

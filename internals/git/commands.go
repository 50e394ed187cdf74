package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repo drives the git CLI inside an existing working tree.
type Repo struct {
	dir string // absolute path to the working tree
}

func Open(dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve repo dir: %w", err)
	}
	if _, err := run(context.Background(), abs, "git", "rev-parse", "--git-dir"); err != nil {
		return nil, fmt.Errorf("%s is not a git repository: %w", abs, err)
	}
	return &Repo{dir: abs}, nil
}

func (r *Repo) Dir() string { return r.dir }

// ConfigureIdentity sets the committer name and email for this repository only.
func (r *Repo) ConfigureIdentity(ctx context.Context, name, email string) error {
	if _, err := run(ctx, r.dir, "git", "config", "user.name", name); err != nil {
		return err
	}
	_, err := run(ctx, r.dir, "git", "config", "user.email", email)
	return err
}

func (r *Repo) SetRemoteURL(ctx context.Context, remote, url string) error {
	if _, err := run(ctx, r.dir, "git", "remote", "set-url", remote, url); err != nil {
		return fmt.Errorf("set %s url: %w", remote, redactErr(err))
	}
	return nil
}

func (r *Repo) RemoteURL(ctx context.Context, remote string) (string, error) {
	out, err := run(ctx, r.dir, "git", "remote", "get-url", remote)
	return strings.TrimSpace(out), err
}

// CreateBranch creates and checks out name. An empty startPoint branches from HEAD.
func (r *Repo) CreateBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"checkout", "-b", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	_, err := run(ctx, r.dir, "git", args...)
	return err
}

// BranchExists reports whether a local branch called name exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	cmd.Dir = r.dir
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, fmt.Errorf("check branch %s: %w", name, err)
}

func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := run(ctx, r.dir, "git", "rev-parse", "--abbrev-ref", "HEAD")
	return strings.TrimSpace(out), err
}

// HeadCommit returns the full SHA HEAD points at.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := run(ctx, r.dir, "git", "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

func (r *Repo) StageAll(ctx context.Context) error {
	_, err := run(ctx, r.dir, "git", "add", "-A", ".")
	return err
}

// Commit records the staged changes. It returns false without committing when
// nothing is staged.
func (r *Repo) Commit(ctx context.Context, message string) (bool, error) {
	out, err := run(ctx, r.dir, "git", "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) == "" {
		return false, nil
	}
	_, err = run(ctx, r.dir, "git", "commit", "-m", message)
	return err == nil, err
}

// Push pushes the current HEAD to origin and returns git's combined output.
func (r *Repo) Push(ctx context.Context) (string, error) {
	out, err := runCombined(ctx, r.dir, "git", "push", "origin", "HEAD")
	if err != nil {
		return Redact(out), redactErr(err)
	}
	return Redact(out), nil
}

func (r *Repo) StagedDiff(ctx context.Context) (string, error) {
	return run(ctx, r.dir, "git", "diff", "--cached")
}

func run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %q: %w\nstderr: %s", name+" "+strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// runCombined is run for commands like push that report progress on stderr.
func runCombined(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("run %q: %w\noutput: %s", name+" "+strings.Join(args, " "), err, buf.String())
	}
	return buf.String(), nil
}

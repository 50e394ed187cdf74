package git

import "context"

type PullRequestOpener interface {
	OpenPR(ctx context.Context, input PRInput) (string, error)
}

type PRInput struct {
	Title  string
	Body   string // Markdown
	Branch string // head branch
	Base   string // target branch, usually "main"
	Draft  bool
}

type Platform int

const (
	PlatformGitHub Platform = iota
	PlatformGitLab
)

func (p Platform) String() string {
	switch p {
	case PlatformGitHub:
		return "github"
	case PlatformGitLab:
		return "gitlab"
	default:
		return "unknown"
	}
}

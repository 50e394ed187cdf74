package git

import (
	"context"
	"fmt"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
)

type GitHubOpener struct {
	gh   *github.Client
	info RepoInfo
}

// NewGitHubOpener talks to api.github.com unless apiURL points at an
// Enterprise Server instance.
func NewGitHubOpener(ctx context.Context, token, apiURL string, info RepoInfo) (*GitHubOpener, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	gh := github.NewClient(oauth2.NewClient(ctx, ts))
	if apiURL != "" {
		var err error
		gh, err = gh.WithEnterpriseURLs(apiURL, apiURL)
		if err != nil {
			return nil, fmt.Errorf("github enterprise client: %w", err)
		}
	}
	return &GitHubOpener{gh: gh, info: info}, nil
}

func (o *GitHubOpener) OpenPR(ctx context.Context, input PRInput) (string, error) {
	pr, _, err := o.gh.PullRequests.Create(ctx, o.info.Owner, o.info.Repo, &github.NewPullRequest{
		Title: github.String(input.Title),
		Head:  github.String(input.Branch),
		Base:  github.String(input.Base),
		Body:  github.String(input.Body),
		Draft: github.Bool(input.Draft),
	})
	if err != nil {
		return "", fmt.Errorf("github create pull request: %w", err)
	}
	return pr.GetHTMLURL(), nil
}

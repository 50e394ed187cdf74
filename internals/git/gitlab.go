package git

import (
	"context"
	"fmt"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

type GitLabOpener struct {
	gl   *gitlab.Client
	info RepoInfo
}

func NewGitLabOpener(token, baseURL string, info RepoInfo) (*GitLabOpener, error) {
	gl, err := gitlab.NewClient(token, gitlab.WithBaseURL(baseURL+"/api/v4"))
	if err != nil {
		return nil, fmt.Errorf("gitlab client: %w", err)
	}
	return &GitLabOpener{gl: gl, info: info}, nil
}

func (o *GitLabOpener) pid() string {
	return o.info.Owner + "/" + o.info.Repo
}

// OpenPR opens a merge request.
func (o *GitLabOpener) OpenPR(ctx context.Context, input PRInput) (string, error) {
	title := input.Title
	if input.Draft {
		title = "Draft: " + title
	}
	mr, _, err := o.gl.MergeRequests.CreateMergeRequest(o.pid(), &gitlab.CreateMergeRequestOptions{
		Title:        gitlab.Ptr(title),
		Description:  gitlab.Ptr(input.Body),
		SourceBranch: gitlab.Ptr(input.Branch),
		TargetBranch: gitlab.Ptr(input.Base),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("gitlab create merge request: %w", err)
	}
	return mr.WebURL, nil
}

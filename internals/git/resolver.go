package git

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

type RepoInfo struct {
	Platform Platform
	Host     string // e.g. "github.com" or "gitlab.mycompany.com"
	Owner    string
	Repo     string
	RawURL   string
}

// scpRemote matches the short ssh form git prints for clones such as
// git@github.com:acme/web.git.
var scpRemote = regexp.MustCompile(`^(?:[^@/\s]+@)?([A-Za-z0-9.-]+):([^/].*)$`)

// ParseRepoURL identifies the forge, namespace and project behind a remote.
// It accepts https, ssh:// and scp-style remotes. Credentials are dropped and
// RawURL is always the https form of the repository.
func ParseRepoURL(remote string) (RepoInfo, error) {
	remote = strings.TrimSpace(remote)
	host, path, err := splitRemote(remote)
	if err != nil {
		return RepoInfo{}, fmt.Errorf("invalid URL %q: %w", Redact(remote), err)
	}

	name := strings.ToLower(host)
	if h, _, ok := strings.Cut(name, ":"); ok {
		name = h
	}
	platform, ok := platformOf(name)
	if !ok {
		return RepoInfo{}, fmt.Errorf("cannot determine platform from host %q: expected a github or gitlab domain", name)
	}

	segs := strings.Split(strings.Trim(strings.TrimSuffix(strings.Trim(path, "/"), ".git"), "/"), "/")
	if len(segs) < 2 || slices.Contains(segs, "") {
		return RepoInfo{}, fmt.Errorf("%s remote must name a namespace and a project: %q", platform, Redact(remote))
	}
	// GitHub has no nested namespaces; anything after owner/repo is a web path.
	if platform == PlatformGitHub {
		segs = segs[:2]
	}

	raw := url.URL{Scheme: "https", Host: host, Path: "/" + strings.Trim(path, "/")}
	return RepoInfo{
		Platform: platform,
		Host:     name,
		Owner:    strings.Join(segs[:len(segs)-1], "/"),
		Repo:     segs[len(segs)-1],
		RawURL:   raw.String(),
	}, nil
}

// splitRemote returns the host (with any https port) and path of a remote.
func splitRemote(remote string) (host, path string, err error) {
	if m := scpRemote.FindStringSubmatch(remote); m != nil && !strings.Contains(remote, "://") {
		return m[1], m[2], nil
	}
	u, err := url.Parse(remote)
	if err != nil {
		return "", "", err
	}
	switch u.Scheme {
	case "https", "http":
		return u.Host, u.Path, nil
	case "ssh", "git+ssh":
		return u.Hostname(), u.Path, nil
	}
	return "", "", fmt.Errorf("unsupported scheme %q", u.Scheme)
}

func platformOf(host string) (Platform, bool) {
	switch {
	case strings.Contains(host, "github"):
		return PlatformGitHub, true
	case strings.Contains(host, "gitlab"):
		return PlatformGitLab, true
	}
	return 0, false
}

type Factory struct {
	githubToken   string
	gitlabToken   string
	githubAPIURL  string
	gitlabBaseURL string
}

type FactoryOption func(*Factory)

func WithGitLabBaseURL(baseURL string) FactoryOption {
	return func(f *Factory) { f.gitlabBaseURL = strings.TrimRight(baseURL, "/") }
}

// WithGitHubAPIURL points GitHub calls at an Enterprise Server API.
func WithGitHubAPIURL(apiURL string) FactoryOption {
	return func(f *Factory) { f.githubAPIURL = apiURL }
}

func NewFactory(githubToken, gitlabToken string, opts ...FactoryOption) *Factory {
	f := &Factory{
		githubToken:   githubToken,
		gitlabToken:   gitlabToken,
		gitlabBaseURL: "https://gitlab.com",
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// OpenerFor returns the pull/merge request opener for the forge hosting repoURL.
func (f *Factory) OpenerFor(ctx context.Context, repoURL string) (PullRequestOpener, RepoInfo, error) {
	info, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, RepoInfo{}, err
	}

	switch info.Platform {
	case PlatformGitHub:
		if f.githubToken == "" {
			return nil, info, fmt.Errorf("no GitHub token configured")
		}
		apiURL := f.githubAPIURL
		if apiURL == "" && info.Host != "github.com" {
			apiURL = "https://" + info.Host + "/"
		}
		o, err := NewGitHubOpener(ctx, f.githubToken, apiURL, info)
		return o, info, err

	case PlatformGitLab:
		if f.gitlabToken == "" {
			return nil, info, fmt.Errorf("no GitLab token configured")
		}
		baseURL := f.gitlabBaseURL
		// For self-hosted: use the URL's scheme+host instead of the default.
		if info.Host != "gitlab.com" {
			parsed, _ := url.Parse(info.RawURL)
			baseURL = parsed.Scheme + "://" + parsed.Host
		}
		o, err := NewGitLabOpener(f.gitlabToken, baseURL, info)
		return o, info, err
	}

	return nil, info, fmt.Errorf("unsupported platform: %s", info.Platform)
}

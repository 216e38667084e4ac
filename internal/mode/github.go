package mode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// ErrNoPullRequest is returned when a source has no pull request to report.
var ErrNoPullRequest = errors.New("no pull request")

// PullRequestInfo is the change-request metadata the resolver reads.
type PullRequestInfo struct {
	Number int
	Title  string
	Labels []string
}

// PullRequestSource supplies pull request metadata.
type PullRequestSource interface {
	PullRequest(ctx context.Context) (*PullRequestInfo, error)
}

// EventFileSource reads the webhook payload GitHub Actions exposes through
// GITHUB_EVENT_PATH.
type EventFileSource struct {
	Path string
}

// PullRequest decodes the payload as a pull_request event.
func (s EventFileSource) PullRequest(_ context.Context) (*PullRequestInfo, error) {
	if s.Path == "" {
		return nil, ErrNoPullRequest
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading event payload: %w", err)
	}

	var ev github.PullRequestEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decoding event payload: %w", err)
	}
	if ev.PullRequest == nil {
		return nil, ErrNoPullRequest
	}
	return fromPullRequest(ev.PullRequest), nil
}

// GitHubSource fetches a pull request through the GitHub API.
type GitHubSource struct {
	client *github.Client
	owner  string
	repo   string
	number int
}

// NewGitHubClient creates an authenticated client, pointed at an
// Enterprise instance when baseURL is set.
func NewGitHubClient(ctx context.Context, token config.Secret, baseURL string) (*github.Client, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	client := github.NewClient(oauth2.NewClient(ctx, ts))
	if baseURL == "" {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configuring GitHub base URL: %w", err)
	}
	return client, nil
}

// NewGitHubSource builds a source from config. It requires a token, an
// owner/name repository and a pull request number.
func NewGitHubSource(ctx context.Context, cfg config.GitHubConfig) (*GitHubSource, error) {
	if cfg.PullRequest <= 0 {
		return nil, ErrNoPullRequest
	}
	owner, repo, ok := strings.Cut(cfg.Repository, "/")
	if !ok || owner == "" || repo == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", cfg.Repository)
	}
	client, err := NewGitHubClient(ctx, cfg.Token, cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	return &GitHubSource{client: client, owner: owner, repo: repo, number: cfg.PullRequest}, nil
}

// PullRequest fetches the configured pull request.
func (s *GitHubSource) PullRequest(ctx context.Context) (*PullRequestInfo, error) {
	pr, _, err := s.client.PullRequests.Get(ctx, s.owner, s.repo, s.number)
	if err != nil {
		return nil, fmt.Errorf("fetching pull request %s/%s#%d: %w", s.owner, s.repo, s.number, err)
	}
	return fromPullRequest(pr), nil
}

func fromPullRequest(pr *github.PullRequest) *PullRequestInfo {
	info := &PullRequestInfo{Number: pr.GetNumber(), Title: pr.GetTitle()}
	for _, l := range pr.Labels {
		info.Labels = append(info.Labels, l.GetName())
	}
	return info
}

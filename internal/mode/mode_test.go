package mode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/prove/internal/config"
	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPRSource struct {
	mock.Mock
}

func (m *mockPRSource) PullRequest(ctx context.Context) (*PullRequestInfo, error) {
	args := m.Called(ctx)
	pr, _ := args.Get(0).(*PullRequestInfo)
	return pr, args.Error(1)
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func eventPayload(t *testing.T, dir, title string, labels ...string) string {
	t.Helper()
	body := `{"action":"opened","number":7,"pull_request":{"number":7,"title":` + fmt.Sprintf("%q", title) + `,"labels":[`
	for i, l := range labels {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"name":%q}`, l)
	}
	body += `]}}`
	return writeFile(t, filepath.Join(dir, "event.json"), body)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"functional", Functional, true},
		{" Functional ", Functional, true},
		{"non-functional", NonFunctional, true},
		{"non_functional", NonFunctional, true},
		{"NonFunctional", NonFunctional, true},
		{"non functional", NonFunctional, true},
		{"NF", NonFunctional, true},
		{"chore", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := Parse(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromTitle(t *testing.T) {
	m, ok := FromTitle("fix: flaky deploy [nf]")
	assert.True(t, ok)
	assert.Equal(t, NonFunctional, m)

	m, ok = FromTitle("[Non-Functional] rotate certs")
	assert.True(t, ok)
	assert.Equal(t, NonFunctional, m)

	m, ok = FromTitle("feat: search [functional]")
	assert.True(t, ok)
	assert.Equal(t, Functional, m)

	_, ok = FromTitle("feat: non-functional wording without a tag")
	assert.False(t, ok)
}

func TestResolve_Order(t *testing.T) {
	dir := t.TempDir()
	event := eventPayload(t, dir, "ops: tune pool [functional]", "non-functional")
	titleOnly := eventPayload(t, filepath.Join(dir, "title"), "ops: tune pool [nf]")

	withDescriptor := filepath.Join(dir, "with-descriptor")
	writeFile(t, filepath.Join(withDescriptor, ".prove", "task.json"), `{"id":"T-1","mode":"functional"}`)

	tests := []struct {
		name string
		in   Input
		want Resolution
	}{
		{
			name: "env override beats everything",
			in:   Input{WorkingDir: withDescriptor, Env: map[string]string{"PROVE_MODE": "nf", "GITHUB_EVENT_PATH": event}},
			want: Resolution{Mode: NonFunctional, Source: SourceEnv},
		},
		{
			name: "bad env override falls through",
			in:   Input{WorkingDir: withDescriptor, Env: map[string]string{"PROVE_MODE": "sometimes"}},
			want: Resolution{Mode: Functional, Source: SourceDescriptor},
		},
		{
			name: "descriptor beats label",
			in:   Input{WorkingDir: withDescriptor, Env: map[string]string{"GITHUB_EVENT_PATH": event}},
			want: Resolution{Mode: Functional, Source: SourceDescriptor},
		},
		{
			name: "label beats title",
			in:   Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": event}},
			want: Resolution{Mode: NonFunctional, Source: SourceLabel},
		},
		{
			name: "title tag",
			in:   Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": titleOnly}},
			want: Resolution{Mode: NonFunctional, Source: SourceTitle},
		},
		{
			name: "unreadable event payload falls through",
			in:   Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": filepath.Join(dir, "missing.json")}},
			want: Resolution{Mode: Functional, Source: SourceDefault},
		},
		{
			name: "default",
			in:   Input{WorkingDir: dir},
			want: Resolution{Mode: Functional, Source: SourceDefault},
		},
	}

	r := NewResolver(config.ModeConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Resolve(context.Background(), tt.in))
		})
	}
}

func TestResolve_YAMLDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "task.yaml"), "id: T-9\nmode: non_functional\ntitle: rotate keys\n")

	r := NewResolver(config.ModeConfig{DescriptorPath: "task.yaml"})
	got := r.Resolve(context.Background(), Input{WorkingDir: dir})
	assert.Equal(t, Resolution{Mode: NonFunctional, Source: SourceDescriptor}, got)

	d, err := LoadDescriptor(filepath.Join(dir, "task.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "T-9", d.ID)
	assert.Equal(t, "rotate keys", d.Title)
}

func TestResolve_MalformedDescriptorFallsThrough(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".prove", "task.json"), `{"mode": [`)

	got := NewResolver(config.ModeConfig{}).Resolve(context.Background(), Input{WorkingDir: dir})
	assert.Equal(t, SourceDefault, got.Source)
}

func TestResolve_CustomLabels(t *testing.T) {
	dir := t.TempDir()
	event := eventPayload(t, dir, "chore", "bug", "Type: Ops")

	r := NewResolver(config.ModeConfig{NonFunctionalLabel: "type: ops"})
	got := r.Resolve(context.Background(), Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": event}})
	assert.Equal(t, Resolution{Mode: NonFunctional, Source: SourceLabel}, got)
}

func TestResolve_APIFallback(t *testing.T) {
	src := &mockPRSource{}
	src.On("PullRequest", mock.Anything).Return(&PullRequestInfo{Number: 3, Labels: []string{"functional"}}, nil).Once()

	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))
	got := r.Resolve(context.Background(), Input{WorkingDir: t.TempDir()})
	assert.Equal(t, Resolution{Mode: Functional, Source: SourceLabel}, got)
	src.AssertExpectations(t)
}

func TestResolve_EventWithoutDecisionAsksAPI(t *testing.T) {
	dir := t.TempDir()
	event := eventPayload(t, dir, "ops: tune pool [nf]", "bug")

	src := &mockPRSource{}
	src.On("PullRequest", mock.Anything).Return(&PullRequestInfo{Number: 7, Labels: []string{"functional"}}, nil).Once()

	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))
	got := r.Resolve(context.Background(), Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": event}})
	assert.Equal(t, Resolution{Mode: Functional, Source: SourceLabel}, got)
	src.AssertExpectations(t)
}

func TestResolve_EventTitleUsedWhenAPIHasNoLabel(t *testing.T) {
	dir := t.TempDir()
	event := eventPayload(t, dir, "ops: tune pool [nf]")

	src := &mockPRSource{}
	src.On("PullRequest", mock.Anything).Return(&PullRequestInfo{Number: 7, Title: "ops: tune pool"}, nil).Once()

	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))
	got := r.Resolve(context.Background(), Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": event}})
	assert.Equal(t, Resolution{Mode: NonFunctional, Source: SourceTitle}, got)
	src.AssertExpectations(t)
}

func TestResolve_EventLabelSkipsAPI(t *testing.T) {
	dir := t.TempDir()
	event := eventPayload(t, dir, "ops", "non-functional")

	src := &mockPRSource{}
	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))
	got := r.Resolve(context.Background(), Input{WorkingDir: dir, Env: map[string]string{"GITHUB_EVENT_PATH": event}})
	assert.Equal(t, Resolution{Mode: NonFunctional, Source: SourceLabel}, got)
	src.AssertNotCalled(t, "PullRequest", mock.Anything)
}

func TestResolve_APIErrorFallsThrough(t *testing.T) {
	src := &mockPRSource{}
	src.On("PullRequest", mock.Anything).Return(nil, errors.New("rate limited"))

	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))
	got := r.Resolve(context.Background(), Input{WorkingDir: t.TempDir()})
	assert.Equal(t, Resolution{Mode: Functional, Source: SourceDefault}, got)
}

func TestEventFileSource(t *testing.T) {
	dir := t.TempDir()

	_, err := EventFileSource{}.PullRequest(context.Background())
	assert.ErrorIs(t, err, ErrNoPullRequest)

	push := writeFile(t, filepath.Join(dir, "push.json"), `{"ref":"refs/heads/main"}`)
	_, err = EventFileSource{Path: push}.PullRequest(context.Background())
	assert.ErrorIs(t, err, ErrNoPullRequest)

	pr, err := EventFileSource{Path: eventPayload(t, dir, "feat: x", "a", "b")}.PullRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &PullRequestInfo{Number: 7, Title: "feat: x", Labels: []string{"a", "b"}}, pr)
}

func TestGitHubSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/web/pulls/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"number":42,"title":"perf: cache [nf]","labels":[{"name":"perf"}]}`)
	}))
	defer srv.Close()

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base

	src := &GitHubSource{client: client, owner: "acme", repo: "web", number: 42}
	r := NewResolver(config.ModeConfig{}, WithPullRequestSource(src))

	got := r.Resolve(context.Background(), Input{WorkingDir: t.TempDir()})
	assert.Equal(t, Resolution{Mode: NonFunctional, Source: SourceTitle}, got)
}

func TestNewGitHubSource(t *testing.T) {
	_, err := NewGitHubSource(context.Background(), config.GitHubConfig{})
	assert.ErrorIs(t, err, ErrNoPullRequest)

	_, err = NewGitHubSource(context.Background(), config.GitHubConfig{PullRequest: 1, Repository: "acme"})
	assert.ErrorContains(t, err, "owner/name")

	_, err = NewGitHubSource(context.Background(), config.GitHubConfig{PullRequest: 1, Repository: "acme/web"})
	assert.ErrorContains(t, err, "token not set")

	var token config.Secret
	require.NoError(t, token.UnmarshalText([]byte("ghp_test")))
	src, err := NewGitHubSource(context.Background(), config.GitHubConfig{
		PullRequest: 1, Repository: "acme/web", Token: token, BaseURL: "https://ghe.example.com/api/v3/",
	})
	require.NoError(t, err)
	assert.Equal(t, "ghe.example.com", src.client.BaseURL.Host)
}

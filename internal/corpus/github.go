package corpus

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/time/rate"

	"github.com/TobiSchelling/apichanges/internal/model"
)

// ErrMissingToken is returned when the tracker token environment variable is unset.
var ErrMissingToken = errors.New("tracker token not set")

// TokenFromEnv reads the tracker token from the named environment variable.
func TokenFromEnv(name string) (string, error) {
	token := strings.TrimSpace(os.Getenv(name))
	if token == "" {
		return "", fmt.Errorf("%w: set %s in the environment or .env", ErrMissingToken, name)
	}
	return token, nil
}

// GitHubOptions tunes the GitHub tracker.
type GitHubOptions struct {
	BaseURL           string // API root, for GitHub Enterprise or tests
	RequestsPerSecond float64
	Timeout           time.Duration
}

// GitHubTracker reads issues and comments from one GitHub repository.
type GitHubTracker struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubTracker builds a tracker for repo ("owner/name"). An empty token is
// rejected before any request is made.
func NewGitHubTracker(repo, token string, opts GitHubOptions) (*GitHubTracker, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("repository must be owner/name, got %q", repo)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	hc := &http.Client{
		Timeout: opts.Timeout,
		Transport: &rateLimitedTransport{
			base:    http.DefaultTransport,
			limiter: rate.NewLimiter(limit, 1),
		},
	}

	client := github.NewClient(hc).WithAuthToken(token)
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parsing tracker base url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubTracker{client: client, owner: owner, repo: name}, nil
}

// Issues walks every issue (open and closed, pull requests included) page by page.
func (g *GitHubTracker) Issues(ctx context.Context, fn func(model.Issue) error) error {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		issues, resp, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return fmt.Errorf("listing issues: %w", err)
		}
		for _, gi := range issues {
			if err := fn(convertIssue(gi)); err != nil {
				return err
			}
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

// Comments returns every comment of an issue in tracker order.
func (g *GitHubTracker) Comments(ctx context.Context, number int) ([]model.Comment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	comments := []model.Comment{}
	for {
		page, resp, err := g.client.Issues.ListComments(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments: %w", err)
		}
		for _, c := range page {
			comments = append(comments, model.Comment{
				ID:        c.GetID(),
				Body:      c.GetBody(),
				User:      c.GetUser().GetLogin(),
				CreatedAt: model.NewTimestamp(c.GetCreatedAt().Time),
				UpdatedAt: model.NewTimestamp(c.GetUpdatedAt().Time),
			})
		}
		if resp.NextPage == 0 {
			return comments, nil
		}
		opts.Page = resp.NextPage
	}
}

func convertIssue(gi *github.Issue) model.Issue {
	issue := model.Issue{
		Number:    gi.GetNumber(),
		Title:     gi.GetTitle(),
		State:     gi.GetState(),
		CreatedAt: model.NewTimestamp(gi.GetCreatedAt().Time),
		UpdatedAt: model.NewTimestamp(gi.GetUpdatedAt().Time),
		Tags:      make([]string, 0, len(gi.Labels)),
	}
	if gi.Body != nil {
		body := *gi.Body
		issue.Body = &body
	}
	if gi.ClosedAt != nil {
		closed := model.NewTimestamp(gi.ClosedAt.Time)
		issue.ClosedAt = &closed
	}
	for _, l := range gi.Labels {
		issue.Tags = append(issue.Tags, l.GetName())
	}
	return issue
}

// rateLimitedTransport waits on a token bucket before every request.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

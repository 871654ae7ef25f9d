package ghclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"

	"dailydigest/internal/domain"
	"dailydigest/internal/metrics"
	"dailydigest/internal/ratelimiter"
)

const (
	issueLimit       = 10
	pullRequestLimit = 10
	codeLimit        = 10
	commitLimit      = 5
	repoPageSize     = 100
	eventPageSize    = 50
)

const (
	KindIssues       = "issues"
	KindPullRequests = "pull_requests"
	KindCode         = "code"
	KindCommits      = "commits"
	KindRepos        = "repos"
	KindEvents       = "events"
)

// Client wraps the GitHub REST API for a single access token. Search helpers
// never fail: errors are logged, counted and turned into empty results.
type Client struct {
	gh       *github.Client
	tokenKey string
	limiter  *ratelimiter.Keyed
	metrics  *metrics.Metrics
	log      *slog.Logger
}

type Option func(*Client)

// WithBaseURL points the client at a different API root, e.g. a test server.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			c.log.Error("Failed to parse GitHub base URL", "error", err, "url", raw)
			return
		}
		c.gh.BaseURL = u
	}
}

func WithLimiter(l *ratelimiter.Keyed) Option {
	return func(c *Client) { c.limiter = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func New(token string, log *slog.Logger, opts ...Option) *Client {
	gh := github.NewClient(nil)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}

	c := &Client{
		gh:       gh,
		tokenKey: ratelimiter.TokenKey(token),
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx, c.tokenKey); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}
	return nil
}

func (c *Client) failed(ctx context.Context, kind, query string, err error) {
	c.metrics.SearchFailure(kind)
	c.log.ErrorContext(ctx, "Failed to query GitHub",
		"error", err,
		"kind", kind,
		"query", query)
}

func (c *Client) searchIssues(ctx context.Context, kind, query string, limit int) ([]domain.Issue, error) {
	if err := c.wait(ctx); err != nil {
		c.failed(ctx, kind, query, err)
		return []domain.Issue{}, err
	}

	res, _, err := c.gh.Search.Issues(ctx, query, &github.SearchOptions{
		Sort:        "updated",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		c.failed(ctx, kind, query, err)
		return []domain.Issue{}, fmt.Errorf("search %s: %w", kind, err)
	}

	issues := make([]domain.Issue, 0, len(res.Issues))
	for _, it := range res.Issues {
		if len(issues) == limit {
			break
		}
		issues = append(issues, domain.Issue{
			Title:      it.GetTitle(),
			Body:       it.GetBody(),
			URL:        it.GetHTMLURL(),
			Repository: domain.Repository{NameWithOwner: repoFromAPIURL(it.GetRepositoryURL())},
			State:      it.GetState(),
			CreatedAt:  formatTimestamp(it.GetCreatedAt()),
			Author:     domain.Author{Login: it.GetUser().GetLogin()},
		})
	}

	return issues, nil
}

// SearchIssues and the other searches log a failure and return it next to an
// empty, non-nil list.
func (c *Client) SearchIssues(ctx context.Context, query, org string, limit int) ([]domain.Issue, error) {
	return c.searchIssues(ctx, KindIssues, fmt.Sprintf("%s org:%s is:issue", query, org), limit)
}

func (c *Client) SearchPullRequests(ctx context.Context, query, org string, limit int) ([]domain.Issue, error) {
	return c.searchIssues(ctx, KindPullRequests, fmt.Sprintf("%s org:%s is:pr", query, org), limit)
}

func (c *Client) SearchCode(ctx context.Context, query, org string, limit int) ([]domain.CodeFile, error) {
	q := fmt.Sprintf("%s org:%s", query, org)

	if err := c.wait(ctx); err != nil {
		c.failed(ctx, KindCode, q, err)
		return []domain.CodeFile{}, err
	}

	res, _, err := c.gh.Search.Code(ctx, q, &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		c.failed(ctx, KindCode, q, err)
		return []domain.CodeFile{}, fmt.Errorf("search %s: %w", KindCode, err)
	}

	files := make([]domain.CodeFile, 0, len(res.CodeResults))
	for _, r := range res.CodeResults {
		if len(files) == limit {
			break
		}
		files = append(files, domain.CodeFile{
			Path:       r.GetPath(),
			Repository: domain.Repository{NameWithOwner: r.GetRepository().GetFullName()},
			URL:        r.GetHTMLURL(),
		})
	}

	return files, nil
}

func (c *Client) SearchCommits(ctx context.Context, query, org string, limit int) ([]domain.Commit, error) {
	q := fmt.Sprintf("%s org:%s", query, org)

	if err := c.wait(ctx); err != nil {
		c.failed(ctx, KindCommits, q, err)
		return []domain.Commit{}, err
	}

	res, _, err := c.gh.Search.Commits(ctx, q, &github.SearchOptions{
		Sort:        "committer-date",
		Order:       "desc",
		ListOptions: github.ListOptions{PerPage: limit},
	})
	if err != nil {
		c.failed(ctx, KindCommits, q, err)
		return []domain.Commit{}, fmt.Errorf("search %s: %w", KindCommits, err)
	}

	commits := make([]domain.Commit, 0, len(res.Commits))
	for _, r := range res.Commits {
		if len(commits) == limit {
			break
		}
		commits = append(commits, domain.Commit{
			SHA:        r.GetSHA(),
			Commit:     domain.CommitMessage{Message: r.GetCommit().GetMessage()},
			Repository: domain.Repository{NameWithOwner: r.GetRepository().GetFullName()},
			URL:        r.GetHTMLURL(),
		})
	}

	return commits, nil
}

// ComprehensiveSearch runs the four searches concurrently. A failing branch
// leaves an empty list and the others still fill in; the first failure is
// returned alongside the partial results.
func (c *Client) ComprehensiveSearch(ctx context.Context, query, org string) (domain.SearchResults, error) {
	var (
		results domain.SearchResults
		g       errgroup.Group
	)

	g.Go(func() (err error) {
		results.Issues, err = c.SearchIssues(ctx, query, org, issueLimit)
		return err
	})
	g.Go(func() (err error) {
		results.PullRequests, err = c.SearchPullRequests(ctx, query, org, pullRequestLimit)
		return err
	})
	g.Go(func() (err error) {
		results.Code, err = c.SearchCode(ctx, query, org, codeLimit)
		return err
	})
	g.Go(func() (err error) {
		results.Commits, err = c.SearchCommits(ctx, query, org, commitLimit)
		return err
	})
	err := g.Wait()

	results.Summarize()

	return results, err
}

func (c *Client) ListRepos(ctx context.Context, org string) []domain.Repo {
	repos, _, err := c.gh.Repositories.ListByOrg(ctx, org, &github.RepositoryListByOrgOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: repoPageSize},
	})
	if err != nil {
		c.failed(ctx, KindRepos, org, err)
		return []domain.Repo{}
	}

	out := make([]domain.Repo, 0, len(repos))
	for _, r := range repos {
		out = append(out, domain.Repo{
			Name:        r.GetName(),
			Description: r.GetDescription(),
			URL:         r.GetHTMLURL(),
			UpdatedAt:   formatTimestamp(r.GetUpdatedAt()),
		})
	}

	return out
}

// RecentActivity returns the user's events newer than since, newest first.
func (c *Client) RecentActivity(ctx context.Context, username string, since time.Time) ([]domain.GitHubEvent, error) {
	if username == "" {
		return nil, errors.New("username is empty")
	}

	events, _, err := c.gh.Activity.ListEventsPerformedByUser(ctx, username, false, &github.ListOptions{
		PerPage: eventPageSize,
	})
	if err != nil {
		c.metrics.SearchFailure(KindEvents)
		return nil, fmt.Errorf("list events: %w", err)
	}

	out := make([]domain.GitHubEvent, 0, len(events))
	for _, e := range events {
		createdAt := e.GetCreatedAt().Time
		if createdAt.Before(since) {
			continue
		}

		out = append(out, describeEvent(e))
	}

	return out, nil
}

// AuthenticatedUser returns the login of the token's owner.
func (c *Client) AuthenticatedUser(ctx context.Context) (string, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("get user: %w", err)
	}

	return u.GetLogin(), nil
}

// PrimaryEmail returns the primary address, or the first one listed.
func (c *Client) PrimaryEmail(ctx context.Context) (string, error) {
	emails, _, err := c.gh.Users.ListEmails(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("list emails: %w", err)
	}
	if len(emails) == 0 {
		return "", errors.New("no email addresses")
	}

	for _, e := range emails {
		if e.GetPrimary() {
			return e.GetEmail(), nil
		}
	}

	return emails[0].GetEmail(), nil
}

func formatTimestamp(ts github.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// repoFromAPIURL turns https://api.github.com/repos/owner/name into owner/name.
func repoFromAPIURL(raw string) string {
	_, rest, ok := strings.Cut(raw, "/repos/")
	if !ok {
		return ""
	}
	return strings.Trim(rest, "/")
}

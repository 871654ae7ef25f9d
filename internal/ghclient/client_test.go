package ghclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"dailydigest/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorded struct {
	mu      sync.Mutex
	queries map[string]url.Values
}

func (r *recorded) add(path string, q url.Values) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[path] = q
}

func newGitHubServer(t *testing.T, rec *recorded, failCode bool) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/search/issues", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		rec.add(r.URL.Path+"|"+q.Get("q"), q)

		kind := "issue"
		if strings.Contains(q.Get("q"), "is:pr") {
			kind = "pr"
		}
		writeJSON(t, w, map[string]any{
			"total_count": 1,
			"items": []map[string]any{{
				"title":          "Fix " + kind,
				"body":           "details",
				"html_url":       "https://github.com/acme/api/" + kind + "/1",
				"repository_url": "https://api.github.com/repos/acme/api",
				"state":          "open",
				"created_at":     "2024-01-02T03:04:05Z",
				"user":           map[string]any{"login": "octo"},
			}},
		})
	})
	mux.HandleFunc("/search/code", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path, r.URL.Query())
		if failCode {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"message":"rate limited"}`)
			return
		}
		writeJSON(t, w, map[string]any{
			"total_count": 1,
			"items": []map[string]any{{
				"path":       "lib/retry.go",
				"html_url":   "https://github.com/acme/api/blob/main/lib/retry.go",
				"repository": map[string]any{"full_name": "acme/api"},
			}},
		})
	})
	mux.HandleFunc("/search/commits", func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.Path, r.URL.Query())
		writeJSON(t, w, map[string]any{
			"total_count": 1,
			"items": []map[string]any{{
				"sha":        "abc123",
				"html_url":   "https://github.com/acme/api/commit/abc123",
				"commit":     map[string]any{"message": "Add retry"},
				"repository": map[string]any{"full_name": "acme/api"},
			}},
		})
	})

	return httptest.NewServer(mux)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestComprehensiveSearch(t *testing.T) {
	rec := &recorded{queries: map[string]url.Values{}}
	srv := newGitHubServer(t, rec, false)
	defer srv.Close()

	c := New("token", testLogger(), WithBaseURL(srv.URL))
	res, err := c.ComprehensiveSearch(context.Background(), "retry", "acme")
	if err != nil {
		t.Fatalf("ComprehensiveSearch: %v", err)
	}

	if len(res.Issues) != 1 || len(res.PullRequests) != 1 || len(res.Code) != 1 || len(res.Commits) != 1 {
		t.Fatalf("unexpected result sizes: %+v", res.Summary)
	}
	if res.Summary.IssuesFound != 1 || res.Summary.PRsFound != 1 || res.Summary.CodeFilesFound != 1 || res.Summary.CommitsFound != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}

	issue := res.Issues[0]
	if issue.Repository.NameWithOwner != "acme/api" || issue.Author.Login != "octo" || issue.CreatedAt != "2024-01-02T03:04:05Z" {
		t.Fatalf("unexpected issue: %+v", issue)
	}
	if res.PullRequests[0].Title != "Fix pr" {
		t.Fatalf("unexpected pull request: %+v", res.PullRequests[0])
	}
	if res.Code[0].Repository.NameWithOwner != "acme/api" || res.Code[0].Path != "lib/retry.go" {
		t.Fatalf("unexpected code file: %+v", res.Code[0])
	}
	if res.Commits[0].Commit.Message != "Add retry" || res.Commits[0].SHA != "abc123" {
		t.Fatalf("unexpected commit: %+v", res.Commits[0])
	}

	issues := rec.queries["/search/issues|retry org:acme is:issue"]
	if issues == nil {
		t.Fatalf("issue search not issued, got %v", rec.queries)
	}
	if issues.Get("sort") != "updated" || issues.Get("order") != "desc" || issues.Get("per_page") != "10" {
		t.Fatalf("unexpected issue search params: %v", issues)
	}
	if rec.queries["/search/issues|retry org:acme is:pr"] == nil {
		t.Fatalf("pull request search not issued")
	}

	commits := rec.queries["/search/commits"]
	if commits.Get("sort") != "committer-date" || commits.Get("per_page") != "5" {
		t.Fatalf("unexpected commit search params: %v", commits)
	}
	if rec.queries["/search/code"].Get("q") != "retry org:acme" {
		t.Fatalf("unexpected code query: %v", rec.queries["/search/code"])
	}
}

func TestSearchFailureDegradesToEmpty(t *testing.T) {
	rec := &recorded{queries: map[string]url.Values{}}
	srv := newGitHubServer(t, rec, true)
	defer srv.Close()

	m := metrics.New()
	c := New("token", testLogger(), WithBaseURL(srv.URL), WithMetrics(m))
	res, err := c.ComprehensiveSearch(context.Background(), "retry", "acme")
	if err == nil || !strings.Contains(err.Error(), "search code") {
		t.Fatalf("expected code search failure, got %v", err)
	}

	if res.Code == nil || len(res.Code) != 0 {
		t.Fatalf("expected empty non-nil code results, got %#v", res.Code)
	}
	if res.Summary.CodeFilesFound != 0 || res.Summary.IssuesFound != 1 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}

	if got := searchFailures(t, m); got != 1 {
		t.Fatalf("expected one search failure, got %v", got)
	}
}

func searchFailures(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "dailydigest_github_search_failures_total" {
			continue
		}
		var total float64
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
		return total
	}

	return 0
}

func TestListRepos(t *testing.T) {
	var gotQuery url.Values

	mux := http.NewServeMux()
	mux.HandleFunc("/orgs/acme/repos", func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		writeJSON(t, w, []map[string]any{{
			"name":        "api",
			"description": "The API",
			"html_url":    "https://github.com/acme/api",
			"updated_at":  "2024-05-06T07:08:09Z",
		}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New("token", testLogger(), WithBaseURL(srv.URL))
	repos := c.ListRepos(context.Background(), "acme")

	if len(repos) != 1 || repos[0].Name != "api" || repos[0].UpdatedAt != "2024-05-06T07:08:09Z" {
		t.Fatalf("unexpected repos: %+v", repos)
	}
	if gotQuery.Get("per_page") != "100" || gotQuery.Get("sort") != "updated" || gotQuery.Get("direction") != "desc" {
		t.Fatalf("unexpected query: %v", gotQuery)
	}

	if repos := c.ListRepos(context.Background(), "missing"); repos == nil || len(repos) != 0 {
		t.Fatalf("expected empty repos on failure, got %#v", repos)
	}
}

func TestRecentActivity(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("/users/octo/events", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, []map[string]any{
			{
				"type":       "PushEvent",
				"repo":       map[string]any{"name": "acme/api"},
				"actor":      map[string]any{"login": "octo"},
				"created_at": now.Add(-time.Hour).Format(time.RFC3339),
				"payload": map[string]any{
					"ref":     "refs/heads/main",
					"size":    2,
					"commits": []map[string]any{{"message": "Add retry\n\nlong body"}},
				},
			},
			{
				"type":       "IssuesEvent",
				"repo":       map[string]any{"name": "acme/api"},
				"actor":      map[string]any{"login": "octo"},
				"created_at": now.Add(-2 * time.Hour).Format(time.RFC3339),
				"payload": map[string]any{
					"action": "opened",
					"issue":  map[string]any{"number": 7, "title": "Timeouts", "html_url": "https://github.com/acme/api/issues/7"},
				},
			},
			{
				"type":       "WatchEvent",
				"repo":       map[string]any{"name": "acme/old"},
				"actor":      map[string]any{"login": "octo"},
				"created_at": now.Add(-48 * time.Hour).Format(time.RFC3339),
				"payload":    map[string]any{"action": "started"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New("token", testLogger(), WithBaseURL(srv.URL))
	events, err := c.RecentActivity(context.Background(), "octo", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("recent activity: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events inside window, got %d", len(events))
	}
	if events[0].Summary != "Pushed 2 commit(s) to main: Add retry" {
		t.Fatalf("unexpected push summary: %q", events[0].Summary)
	}
	if events[1].Summary != "Opened issue #7: Timeouts" || events[1].URL != "https://github.com/acme/api/issues/7" {
		t.Fatalf("unexpected issue event: %+v", events[1])
	}

	if _, err := c.RecentActivity(context.Background(), "", now); err == nil {
		t.Fatalf("expected error for empty username")
	}
}

func TestPrimaryEmail(t *testing.T) {
	tests := []struct {
		name   string
		emails []map[string]any
		want   string
	}{
		{
			name: "primary wins",
			emails: []map[string]any{
				{"email": "other@example.com", "primary": false},
				{"email": "me@example.com", "primary": true},
			},
			want: "me@example.com",
		},
		{
			name:   "first when none primary",
			emails: []map[string]any{{"email": "first@example.com"}, {"email": "second@example.com"}},
			want:   "first@example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux := http.NewServeMux()
			mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, tt.emails)
			})
			mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, map[string]any{"login": "octo"})
			})
			srv := httptest.NewServer(mux)
			defer srv.Close()

			c := New("token", testLogger(), WithBaseURL(srv.URL))

			got, err := c.PrimaryEmail(context.Background())
			if err != nil {
				t.Fatalf("primary email: %v", err)
			}
			if got != tt.want {
				t.Fatalf("unexpected email: got %q want %q", got, tt.want)
			}

			login, err := c.AuthenticatedUser(context.Background())
			if err != nil || login != "octo" {
				t.Fatalf("unexpected login %q (err %v)", login, err)
			}
		})
	}
}

func TestRepoFromAPIURL(t *testing.T) {
	if got := repoFromAPIURL("https://api.github.com/repos/acme/api"); got != "acme/api" {
		t.Fatalf("unexpected repo: %q", got)
	}
	if got := repoFromAPIURL("https://example.com/x"); got != "" {
		t.Fatalf("expected empty repo, got %q", got)
	}
}

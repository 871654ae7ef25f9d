package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"

	"dailydigest/internal/domain"
	"dailydigest/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubCompleter struct {
	mu       sync.Mutex
	requests []llm.Request
	keywords string
	answer   string
	err      error
}

func (c *stubCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)

	if c.err != nil {
		return "", c.err
	}
	if req.System == keywordSystemPrompt {
		return c.keywords, nil
	}

	return c.answer, nil
}

type stubSearcher struct {
	mu       sync.Mutex
	queries  []string
	results  map[string]domain.SearchResults
	failures int
}

func (s *stubSearcher) ComprehensiveSearch(_ context.Context, query, org string) (domain.SearchResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, org+"/"+query)

	if s.failures > 0 {
		s.failures--
		return domain.SearchResults{Issues: []domain.Issue{}}, errors.New("search issues: 502 Bad Gateway")
	}

	return s.results[query], nil
}

func (s *stubSearcher) ListRepos(_ context.Context, org string) []domain.Repo {
	return []domain.Repo{{Name: org + "-repo"}}
}

func newService(c *stubCompleter, s *stubSearcher) *Service {
	completers := func(apiKey string) (llm.Completer, error) {
		if apiKey == "" {
			return nil, errors.New("API key is empty")
		}
		return c, nil
	}
	searchers := func(string) Searcher { return s }

	return New(completers, searchers, Options{DefaultOrg: "brandnewbox"}, testLogger())
}

func TestChatMergesAndDeduplicates(t *testing.T) {
	shared := domain.Issue{Title: "Retry storms", URL: "https://github.com/acme/api/issues/1"}

	c := &stubCompleter{keywords: "retry\nbackoff\n", answer: "Use the retry helper."}
	s := &stubSearcher{results: map[string]domain.SearchResults{
		"retry": {
			Issues:  []domain.Issue{shared},
			Commits: []domain.Commit{{SHA: "a", URL: "https://github.com/acme/api/commit/a"}},
		},
		"backoff": {
			Issues: []domain.Issue{shared, {Title: "Backoff", URL: "https://github.com/acme/api/issues/2"}},
			Code:   []domain.CodeFile{{Path: "retry.go", URL: "https://github.com/acme/api/blob/main/retry.go"}},
		},
	}}

	svc := newService(c, s)
	resp, err := svc.Chat(context.Background(), ChatRequest{
		Message:     "How do we retry?",
		APIKey:      "key",
		GitHubToken: "token",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if resp.Response != "Use the retry helper." {
		t.Fatalf("unexpected response: %q", resp.Response)
	}
	if !slices.Equal(resp.Keywords, []string{"retry", "backoff"}) {
		t.Fatalf("unexpected keywords: %v", resp.Keywords)
	}

	want := domain.SearchSummary{IssuesFound: 2, PRsFound: 0, CodeFilesFound: 1, CommitsFound: 1}
	if resp.SearchSummary != want {
		t.Fatalf("unexpected summary: %+v", resp.SearchSummary)
	}

	if !slices.Equal(s.queries, []string{"brandnewbox/retry", "brandnewbox/backoff"}) {
		t.Fatalf("unexpected searches: %v", s.queries)
	}

	last := c.requests[len(c.requests)-1]
	if last.System != DefaultSystemPrompt() {
		t.Fatalf("expected default system prompt")
	}
	if !strings.Contains(last.Prompt, "### 1. Retry storms") || !strings.Contains(last.Prompt, "- Issues found: 2") {
		t.Fatalf("unexpected answer prompt:\n%s", last.Prompt)
	}
}

func TestChatUsesCustomPromptOrgAndKeywordCap(t *testing.T) {
	c := &stubCompleter{keywords: "a\nb\nc\nd", answer: "ok"}
	s := &stubSearcher{results: map[string]domain.SearchResults{}}

	svc := newService(c, s)
	resp, err := svc.Chat(context.Background(), ChatRequest{
		Message:      "q",
		APIKey:       "key",
		GitHubToken:  "token",
		GitHubOrg:    "acme",
		SystemPrompt: "custom",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if len(resp.Keywords) != maxKeywords {
		t.Fatalf("expected keywords capped at %d, got %v", maxKeywords, resp.Keywords)
	}
	if s.queries[0] != "acme/a" {
		t.Fatalf("expected org override, got %v", s.queries)
	}
	if c.requests[len(c.requests)-1].System != "custom" {
		t.Fatalf("expected custom system prompt")
	}
}

func TestChatFallsBackToQuestionWithoutKeywords(t *testing.T) {
	c := &stubCompleter{keywords: "\n  \n", answer: "ok"}
	s := &stubSearcher{results: map[string]domain.SearchResults{}}

	resp, err := newService(c, s).Chat(context.Background(), ChatRequest{
		Message: " deploy pipeline ", APIKey: "key", GitHubToken: "token",
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if !slices.Equal(resp.Keywords, []string{"deploy pipeline"}) {
		t.Fatalf("unexpected keywords: %v", resp.Keywords)
	}
}

func TestChatPropagatesUnauthorized(t *testing.T) {
	c := &stubCompleter{err: llm.ErrUnauthorized}
	s := &stubSearcher{}

	_, err := newService(c, s).Chat(context.Background(), ChatRequest{
		Message: "q", APIKey: "key", GitHubToken: "token",
	})
	if !errors.Is(err, llm.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSearchIsCached(t *testing.T) {
	s := &stubSearcher{results: map[string]domain.SearchResults{
		"retry": {Issues: []domain.Issue{{URL: "u"}}},
	}}
	svc := newService(&stubCompleter{}, s)

	first := svc.Search(context.Background(), "token", "retry", "")
	second := svc.Search(context.Background(), "token", "retry", "")

	if len(first.Issues) != 1 || len(second.Issues) != 1 {
		t.Fatalf("unexpected results: %+v %+v", first, second)
	}
	if len(s.queries) != 1 {
		t.Fatalf("expected one upstream search, got %d", len(s.queries))
	}

	repos := svc.ListRepos(context.Background(), "token", "")
	if len(repos) != 1 || repos[0].Name != "brandnewbox-repo" {
		t.Fatalf("unexpected repos: %+v", repos)
	}
}

func TestSearchFailureIsNotCached(t *testing.T) {
	s := &stubSearcher{
		results:  map[string]domain.SearchResults{"retry": {Issues: []domain.Issue{{URL: "u"}}}},
		failures: 1,
	}
	svc := newService(&stubCompleter{}, s)

	first := svc.Search(context.Background(), "token", "retry", "")
	if len(first.Issues) != 0 {
		t.Fatalf("expected empty results from failed search, got %+v", first.Issues)
	}

	second := svc.Search(context.Background(), "token", "retry", "")
	if len(second.Issues) != 1 {
		t.Fatalf("expected fresh results after failure, got %+v", second.Issues)
	}

	third := svc.Search(context.Background(), "token", "retry", "")
	if len(third.Issues) != 1 {
		t.Fatalf("unexpected results: %+v", third.Issues)
	}
	if len(s.queries) != 2 {
		t.Fatalf("expected two upstream searches, got %d", len(s.queries))
	}
}

func TestDeduplicateByURL(t *testing.T) {
	items := []domain.CodeFile{
		{Path: "a", URL: "u1"},
		{Path: "b", URL: "u2"},
		{Path: "c", URL: "u1"},
		{Path: "d", URL: "u3"},
		{Path: "e", URL: "u2"},
	}

	got := DeduplicateByURL(items, func(c domain.CodeFile) string { return c.URL })

	paths := make([]string, 0, len(got))
	for _, f := range got {
		paths = append(paths, f.Path)
	}

	if !slices.Equal(paths, []string{"a", "b", "d"}) {
		t.Fatalf("unexpected order after dedupe: %v", paths)
	}
}

func TestFormatContextTruncates(t *testing.T) {
	r := domain.SearchResults{
		Issues: []domain.Issue{{Title: "Long", Body: strings.Repeat("x", 600), URL: "u"}},
		Commits: []domain.Commit{{
			Commit: domain.CommitMessage{Message: strings.Repeat("m", 250)},
			URL:    "c",
		}},
	}

	got := FormatContext(r)

	if !strings.Contains(got, "- **Description**: "+strings.Repeat("x", 500)+"...\n") {
		t.Fatalf("issue body not truncated to 500 chars:\n%s", got)
	}
	if !strings.Contains(got, "1. **"+strings.Repeat("m", 200)+"...**") {
		t.Fatalf("commit message not truncated to 200 chars:\n%s", got)
	}
	if !strings.Contains(got, "- **Repository**: Unknown") || !strings.Contains(got, "- **Author**: Unknown") {
		t.Fatalf("missing unknown placeholders:\n%s", got)
	}
}

func TestBuildAnswerPromptWithoutResults(t *testing.T) {
	got := BuildAnswerPrompt("why?", domain.SearchResults{})

	if !strings.Contains(got, "No results found for this search.") {
		t.Fatalf("expected empty-results marker:\n%s", got)
	}
	if !strings.HasSuffix(got, "based on the search results above.") {
		t.Fatalf("unexpected prompt ending:\n%s", got)
	}
}

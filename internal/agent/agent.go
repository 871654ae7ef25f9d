package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dailydigest/internal/domain"
	"dailydigest/internal/llm"
)

const (
	maxKeywords            = 3
	keywordMaxTokens int64 = 200
	answerMaxTokens  int64 = 2048
)

const keywordSystemPrompt = `Extract 1-3 search keywords or phrases from the user's question that would be most effective for searching GitHub issues, PRs, and code.
Return ONLY the keywords/phrases, one per line, no explanations or numbering.
Focus on technical terms, feature names, or specific concepts mentioned.`

const defaultSystemPrompt = `You are an expert assistant for the configured GitHub organization with deep knowledge of its codebase, practices, and history.

Your role is to search for and provide the most relevant information related to questions about the organization's projects.

When answering questions:
1. Base your answers on the search results provided
2. Always include relevant links to GitHub resources (issues, PRs, code files)
3. If you can't find relevant information, say so clearly
4. Be concise but thorough
5. Format your responses using Markdown for readability

**Important: When recommending approaches, patterns, or tools:**
- Prioritize MORE RECENT usage over frequency of occurrence
- The organization's practices evolve over time; newer projects reflect current best practices
- If an older pattern appears more frequently but a newer approach exists in recent projects, recommend the newer approach
- Always note when a practice has changed (e.g., "While older projects used X, the team has since adopted Y")

If the search results don't contain relevant information to answer the question, suggest what the user might search for instead.`

func DefaultSystemPrompt() string {
	return defaultSystemPrompt
}

// Searcher is the GitHub surface the assistant needs.
type Searcher interface {
	ComprehensiveSearch(ctx context.Context, query, org string) (domain.SearchResults, error)
	ListRepos(ctx context.Context, org string) []domain.Repo
}

// SearcherFactory builds a Searcher authenticated with a user's token.
type SearcherFactory func(token string) Searcher

type ChatRequest struct {
	Message      string
	APIKey       string
	GitHubToken  string
	GitHubOrg    string
	SystemPrompt string
}

type ChatResponse struct {
	Response      string               `json:"response"`
	SearchSummary domain.SearchSummary `json:"searchSummary"`
	Keywords      []string             `json:"keywords"`
}

type Service struct {
	completers llm.Factory
	searchers  SearcherFactory
	cache      *searchCache
	defaultOrg string
	now        func() time.Time
	log        *slog.Logger
}

type Options struct {
	DefaultOrg      string
	CacheTTL        time.Duration
	CacheMaxEntries int
}

func New(completers llm.Factory, searchers SearcherFactory, opts Options, log *slog.Logger) *Service {
	if opts.CacheTTL == 0 {
		opts.CacheTTL = defaultSearchCacheTTL
	}
	if opts.CacheMaxEntries == 0 {
		opts.CacheMaxEntries = defaultSearchCacheMaxEntries
	}

	return &Service{
		completers: completers,
		searchers:  searchers,
		cache:      newSearchCache(opts.CacheMaxEntries, opts.CacheTTL),
		defaultOrg: opts.DefaultOrg,
		now:        time.Now,
		log:        log,
	}
}

func (s *Service) Org(org string) string {
	if org = strings.TrimSpace(org); org != "" {
		return org
	}
	return s.defaultOrg
}

// Chat extracts keywords from the question, searches GitHub for each of them
// and asks the model to answer from the merged results.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	completer, err := s.completers(req.APIKey)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("create completer: %w", err)
	}

	org := s.Org(req.GitHubOrg)

	keywords, err := s.extractKeywords(ctx, completer, req.Message)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("extract keywords: %w", err)
	}

	s.log.InfoContext(ctx, "Extracted search keywords",
		"org", org,
		"keywords", keywords)

	searcher := s.searchers(req.GitHubToken)

	var all domain.SearchResults
	for _, keyword := range keywords {
		res := s.search(ctx, searcher, req.GitHubToken, keyword, org)

		all.Issues = append(all.Issues, res.Issues...)
		all.PullRequests = append(all.PullRequests, res.PullRequests...)
		all.Code = append(all.Code, res.Code...)
		all.Commits = append(all.Commits, res.Commits...)
	}

	all.Issues = DeduplicateByURL(all.Issues, func(i domain.Issue) string { return i.URL })
	all.PullRequests = DeduplicateByURL(all.PullRequests, func(i domain.Issue) string { return i.URL })
	all.Code = DeduplicateByURL(all.Code, func(c domain.CodeFile) string { return c.URL })
	all.Commits = DeduplicateByURL(all.Commits, func(c domain.Commit) string { return c.URL })
	all.Summarize()

	system := strings.TrimSpace(req.SystemPrompt)
	if system == "" {
		system = defaultSystemPrompt
	}

	answer, err := completer.Complete(ctx, llm.Request{
		System:    system,
		Prompt:    BuildAnswerPrompt(req.Message, all),
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("generate answer: %w", err)
	}

	return ChatResponse{
		Response:      answer,
		SearchSummary: all.Summary,
		Keywords:      keywords,
	}, nil
}

// Search runs one cached comprehensive search.
func (s *Service) Search(ctx context.Context, token, query, org string) domain.SearchResults {
	return s.search(ctx, s.searchers(token), token, strings.TrimSpace(query), s.Org(org))
}

func (s *Service) ListRepos(ctx context.Context, token, org string) []domain.Repo {
	return s.searchers(token).ListRepos(ctx, s.Org(org))
}

func (s *Service) search(ctx context.Context, searcher Searcher, token, query, org string) domain.SearchResults {
	key := searchCacheKey(token, org, query)
	if res, ok := s.cache.get(key, s.now()); ok {
		s.log.DebugContext(ctx, "Search cache hit",
			"org", org,
			"query", query)
		return res
	}

	res, err := searcher.ComprehensiveSearch(ctx, query, org)
	if err != nil {
		s.log.WarnContext(ctx, "Search incomplete, not caching",
			"error", err,
			"org", org,
			"query", query)
		return res
	}

	s.cache.set(key, res, s.now())

	return res
}

func (s *Service) extractKeywords(ctx context.Context, completer llm.Completer, message string) ([]string, error) {
	text, err := completer.Complete(ctx, llm.Request{
		System:    keywordSystemPrompt,
		Prompt:    message,
		MaxTokens: keywordMaxTokens,
	})
	if err != nil {
		return nil, err
	}

	keywords := llm.ParseKeywords(text)
	if len(keywords) == 0 {
		s.log.WarnContext(ctx, "No keywords extracted, searching with the question",
			"message", message)

		return []string{strings.TrimSpace(message)}, nil
	}

	return keywords[:min(len(keywords), maxKeywords)], nil
}

// DeduplicateByURL keeps the first item seen for each URL, preserving order.
func DeduplicateByURL[T any](items []T, urlOf func(T) string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))

	for _, item := range items {
		u := urlOf(item)
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, item)
	}

	return out
}

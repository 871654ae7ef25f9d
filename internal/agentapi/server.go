package agentapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/agent"
	"dailydigest/internal/domain"
	"dailydigest/internal/httpx"
	"dailydigest/internal/llm"
	"dailydigest/internal/metrics"
)

const appName = "ghagent"

// Assistant is the chat service behind the API.
type Assistant interface {
	Chat(ctx context.Context, req agent.ChatRequest) (agent.ChatResponse, error)
	Search(ctx context.Context, token, query, org string) domain.SearchResults
	ListRepos(ctx context.Context, token, org string) []domain.Repo
	Org(org string) string
}

type Server struct {
	assistant Assistant
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func New(assistant Assistant, m *metrics.Metrics, log *slog.Logger) *Server {
	return &Server{assistant: assistant, metrics: m, log: log}
}

func (s *Server) Handler() http.Handler {
	r := httpx.NewEngine(appName, s.metrics, s.log)

	api := r.Group("/api")
	api.POST("/chat", s.handleChat)
	api.GET("/system-prompt", s.handleSystemPrompt)
	api.POST("/repos", s.handleRepos)
	api.POST("/search", s.handleSearch)
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

const invalidBody = "Invalid request body"

type chatRequest struct {
	Message      string `json:"message"     binding:"notblank"`
	APIKey       string `json:"apiKey"      binding:"notblank"`
	GitHubToken  string `json:"githubToken" binding:"notblank"`
	GitHubOrg    string `json:"githubOrg"`
	SystemPrompt string `json:"systemPrompt"`
}

var chatMessages = map[string]string{
	"message":     "Message is required",
	"apiKey":      "Anthropic API key is required. Please enter it in settings.",
	"githubToken": "GitHub token is required. Please enter it in settings.",
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.ValidationMessage(err, chatMessages, invalidBody))
		return
	}

	ctx := c.Request.Context()

	s.log.InfoContext(ctx, "Processing chat query",
		"org", s.assistant.Org(req.GitHubOrg),
		"messageLength", len(req.Message))

	resp, err := s.assistant.Chat(ctx, agent.ChatRequest{
		Message:      req.Message,
		APIKey:       req.APIKey,
		GitHubToken:  req.GitHubToken,
		GitHubOrg:    req.GitHubOrg,
		SystemPrompt: req.SystemPrompt,
	})
	if errors.Is(err, llm.ErrUnauthorized) {
		s.log.WarnContext(ctx, "Model provider rejected API key", "error", err)
		httpx.Error(c, http.StatusUnauthorized, "Invalid API key. Please check your Anthropic API key or GitHub token.")
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to answer chat query", "error", err)
		httpx.Error(c, http.StatusInternalServerError, "An error occurred processing your request. Please try again.")
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSystemPrompt(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"systemPrompt": agent.DefaultSystemPrompt()})
}

type reposRequest struct {
	GitHubToken string `json:"githubToken" binding:"notblank"`
	GitHubOrg   string `json:"githubOrg"`
}

var searchMessages = map[string]string{
	"query":       "Query is required",
	"githubToken": "GitHub token is required",
}

func (s *Server) handleRepos(c *gin.Context) {
	var req reposRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.ValidationMessage(err, searchMessages, invalidBody))
		return
	}

	org := s.assistant.Org(req.GitHubOrg)
	repos := s.assistant.ListRepos(c.Request.Context(), req.GitHubToken, org)

	c.JSON(http.StatusOK, gin.H{"repos": repos, "org": org})
}

type searchRequest struct {
	Query       string `json:"query"       binding:"notblank"`
	GitHubToken string `json:"githubToken" binding:"notblank"`
	GitHubOrg   string `json:"githubOrg"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.ValidationMessage(err, searchMessages, invalidBody))
		return
	}

	c.JSON(http.StatusOK, s.assistant.Search(c.Request.Context(), req.GitHubToken, req.Query, req.GitHubOrg))
}

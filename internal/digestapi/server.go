package digestapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/auth"
	"dailydigest/internal/billing"
	"dailydigest/internal/database"
	"dailydigest/internal/digest"
	"dailydigest/internal/domain"
	"dailydigest/internal/httpx"
	"dailydigest/internal/metrics"
)

const (
	appName = "dailydigest"

	dashboardPath = "/daily-digest/dashboard"
	homePath      = "/daily-digest/"
	loginPath     = "/daily-digest/login"

	userKey     = "user"
	identityKey = "identity"
)

// Store is the database surface the handlers use.
type Store interface {
	Ping(ctx context.Context) error
	EnsureUser(ctx context.Context, authID, email string) (domain.User, error)
	CreateUser(ctx context.Context, email string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByUnsubscribeToken(ctx context.Context, token string) (domain.User, error)
	GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error)
	SetSubscriptionStatus(ctx context.Context, userID, status string) error
	UpsertGitHubConnection(ctx context.Context, c domain.GitHubConnection) error
	AddFeed(ctx context.Context, userID, feedURL, feedTitle string) (domain.UserFeed, error)
	RemoveFeed(ctx context.Context, userID, feedID string) error
	GetSettingsWithDefault(ctx context.Context, userID string) (domain.Settings, error)
	UpsertSettings(ctx context.Context, s domain.Settings) error
	ListDigestHistory(ctx context.Context, userID string, limit int) ([]domain.DigestRecord, error)
}

// AuthProvider is the hosted identity service.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password, redirectTo string) (*auth.User, *auth.Session, error)
	SignIn(ctx context.Context, email, password string) (*auth.Session, error)
	ResendConfirmation(ctx context.Context, email, redirectTo string) error
	ExchangeCode(ctx context.Context, code string) (*auth.Session, error)
}

type Authenticator interface {
	FromRequest(r *http.Request) (*auth.Identity, error)
}

// GitHubOAuth connects a GitHub account outside the identity service.
type GitHubOAuth interface {
	Configured() bool
	AuthorizeURL(state string) string
	Exchange(ctx context.Context, code string) (string, error)
}

type GitHubAccount interface {
	AuthenticatedUser(ctx context.Context) (string, error)
	PrimaryEmail(ctx context.Context) (string, error)
}

type GitHubAccountFactory func(token string) GitHubAccount

type FeedResolver interface {
	Resolve(ctx context.Context, rawURL string) (domain.Feed, error)
}

type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, signature string) (string, error)
}

type DigestRunner interface {
	Run(ctx context.Context, now time.Time, force bool) (digest.Summary, error)
}

// Deps wires the handlers to their collaborators. Billing may be nil when
// Stripe is not configured.
type Deps struct {
	Store      Store
	Auth       AuthProvider
	Sessions   Authenticator
	GitHub     GitHubOAuth
	GitHubUser GitHubAccountFactory
	Feeds      FeedResolver
	Billing    billing.Gateway
	Webhooks   WebhookProcessor
	Digests    digest.Sender
	Runner     DigestRunner
	Metrics    *metrics.Metrics

	AppURL     string
	CronSecret string
	Now        func() time.Time
}

type Server struct {
	Deps

	log *slog.Logger
}

func New(deps Deps, log *slog.Logger) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.AppURL = strings.TrimRight(deps.AppURL, "/")

	return &Server{Deps: deps, log: log}
}

func (s *Server) Handler() http.Handler {
	r := httpx.NewEngine(appName, s.Metrics, s.log)

	api := r.Group("/api")

	api.POST("/auth", s.handleAuth)
	api.GET("/auth/callback", s.handleAuthCallback)
	api.GET("/auth/github", s.handleGitHubConnect)
	api.GET("/auth/github/callback", s.handleGitHubCallback)
	api.GET("/auth/me", s.handleMe)
	api.GET("/auth/logout", s.handleLogout)
	api.POST("/auth/logout", s.handleLogout)

	authed := api.Group("", s.requireUser)
	authed.POST("/feeds", s.handleFeeds)
	authed.POST("/settings/save", s.handleSaveSettings)
	authed.GET("/user/state", s.handleUserState)
	authed.POST("/digest/test", s.handleTestDigest)

	api.GET("/stripe", s.handlePortalRedirect)
	api.POST("/stripe", s.requireUser, s.handleStripe)
	api.POST("/stripe/create-checkout", s.requireUser, s.handleCheckout)
	api.POST("/stripe/webhook", s.handleWebhook)

	api.GET("/unsubscribe", s.handleUnsubscribe)
	api.POST("/unsubscribe", s.handleUnsubscribe)

	api.GET("/cron/send-digests", s.handleCron)
	api.POST("/cron/send-digests", s.handleCron)

	api.GET("/health", s.handleHealth)

	return r
}

// identify resolves the caller and their user row. Any token problem is
// reported as auth.ErrUnauthenticated.
func (s *Server) identify(c *gin.Context) (*auth.Identity, *domain.User, error) {
	id, err := s.Sessions.FromRequest(c.Request)
	if err != nil {
		return nil, nil, auth.ErrUnauthenticated
	}

	u, err := s.Store.EnsureUser(c.Request.Context(), id.AuthID, id.Email)
	if err != nil {
		return id, nil, fmt.Errorf("ensure user (authID = %s): %w", id.AuthID, err)
	}

	return id, &u, nil
}

func (s *Server) requireUser(c *gin.Context) {
	id, u, err := s.identify(c)
	if errors.Is(err, auth.ErrUnauthenticated) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "Not authenticated"})
		return
	}
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to load user", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	c.Set(identityKey, id)
	c.Set(userKey, u)
	c.Next()
}

func currentUser(c *gin.Context) *domain.User {
	u, _ := c.MustGet(userKey).(*domain.User)
	return u
}

func redirectDashboard(c *gin.Context, params url.Values) {
	target := dashboardPath
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	c.Redirect(http.StatusFound, target)
}

func redirectError(c *gin.Context, code string) {
	redirectDashboard(c, url.Values{"error": {code}})
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}

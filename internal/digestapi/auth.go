package digestapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"dailydigest/internal/auth"
	"dailydigest/internal/digest"
	"dailydigest/internal/domain"
	"dailydigest/internal/httpx"
)

const (
	minPasswordLength = 8
	oauthStateCookie  = "gh-oauth-state"
	oauthStateMaxAge  = 600
	oauthStatePath    = "/api/auth/github"
)

type authRequest struct {
	Action   string `json:"action"`
	Email    string `json:"email"    binding:"notblank"`
	Password string `json:"password" binding:"required"`
}

var authMessages = map[string]string{
	"email":    "Email and password required",
	"password": "Email and password required",
}

type sessionView struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

type authUserView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func newSessionView(s *auth.Session) *sessionView {
	if s == nil {
		return nil
	}
	return &sessionView{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
	}
}

func newAuthUserView(u *auth.User, fallbackEmail string) authUserView {
	if u == nil {
		return authUserView{Email: fallbackEmail}
	}
	return authUserView{ID: u.ID, Email: u.Email}
}

// handleAuth serves sign up, sign in and confirmation resend.
func (s *Server) handleAuth(c *gin.Context) {
	var req authRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.ValidationMessage(err, authMessages, "Invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)

	ctx := c.Request.Context()
	redirectTo := s.AppURL + dashboardPath

	switch req.Action {
	case "resend":
		if err := s.Auth.ResendConfirmation(ctx, req.Email, redirectTo); err != nil {
			s.authError(c, http.StatusBadRequest, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Confirmation email sent!"})
	case "signup":
		if len(req.Password) < minPasswordLength {
			httpx.Error(c, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		user, session, err := s.Auth.SignUp(ctx, req.Email, req.Password, redirectTo)
		if err != nil {
			s.authError(c, http.StatusBadRequest, err)
			return
		}

		if session == nil {
			c.JSON(http.StatusOK, gin.H{
				"ok":                true,
				"message":           "Check your email to confirm your account",
				"needsConfirmation": true,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"user":    newAuthUserView(user, req.Email),
			"session": newSessionView(session),
		})
	default:
		session, err := s.Auth.SignIn(ctx, req.Email, req.Password)
		if err != nil {
			s.authError(c, http.StatusUnauthorized, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"user":    newAuthUserView(session.User, req.Email),
			"session": newSessionView(session),
		})
	}
}

// authError reports identity service rejections with their message and
// anything else as a 500.
func (s *Server) authError(c *gin.Context, status int, err error) {
	var apiErr *auth.APIError
	if errors.As(err, &apiErr) {
		httpx.Error(c, status, apiErr.Message)
		return
	}

	s.log.ErrorContext(c.Request.Context(), "Failed to authenticate", "error", err)
	httpx.Error(c, http.StatusInternalServerError, "Authentication failed")
}

// handleAuthCallback completes a hosted OAuth login and hands the session to
// the dashboard.
func (s *Server) handleAuthCallback(c *gin.Context) {
	if oauthErr := c.Query("error"); oauthErr != "" {
		s.log.WarnContext(c.Request.Context(), "OAuth provider returned an error", "oauthError", oauthErr)
		redirectError(c, oauthErr)
		return
	}

	code := c.Query("code")
	if code == "" {
		redirectError(c, "no_code")
		return
	}

	ctx := c.Request.Context()

	session, err := s.Auth.ExchangeCode(ctx, code)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to exchange OAuth code", "error", err)
		redirectError(c, "exchange_failed")
		return
	}

	if session.User != nil && session.User.Provider() == "github" {
		s.saveProviderConnection(c, session)
	}

	redirectDashboard(c, url.Values{
		"login":         {"success"},
		"access_token":  {session.AccessToken},
		"refresh_token": {session.RefreshToken},
		"expires_at":    {strconv.FormatInt(session.ExpiresAt, 10)},
	})
}

// saveProviderConnection stores the GitHub identity of a GitHub login.
// Failures are logged and do not block the login.
func (s *Server) saveProviderConnection(c *gin.Context, session *auth.Session) {
	ctx := c.Request.Context()
	u := session.User

	user, err := s.Store.EnsureUser(ctx, u.ID, u.Email)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to ensure user for GitHub login",
			"error", err,
			"authID", u.ID)
		return
	}

	token := session.ProviderToken
	if token == "" {
		token = digest.OAuthManagedToken
	}

	err = s.Store.UpsertGitHubConnection(ctx, domain.GitHubConnection{
		UserID:         user.ID,
		GitHubUsername: u.GitHubUsername(),
		AccessToken:    token,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to save GitHub connection",
			"error", err,
			"userID", user.ID)
	}
}

func (s *Server) handleGitHubConnect(c *gin.Context) {
	if s.GitHub == nil || !s.GitHub.Configured() {
		redirectError(c, "missing_github_env")
		return
	}

	state := uuid.NewString()
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, oauthStatePath, "", strings.HasPrefix(s.AppURL, "https://"), true)

	c.Redirect(http.StatusFound, s.GitHub.AuthorizeURL(state))
}

// handleGitHubCallback links a GitHub account to the signed-in user, or to
// the user owning the account's primary email.
func (s *Server) handleGitHubCallback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		redirectError(c, "no_code")
		return
	}
	if s.GitHub == nil || !s.GitHub.Configured() {
		redirectError(c, "missing_github_env")
		return
	}
	if !s.validOAuthState(c) {
		redirectError(c, "invalid_state")
		return
	}

	ctx := c.Request.Context()

	token, err := s.GitHub.Exchange(ctx, code)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to exchange GitHub code", "error", err)
		redirectError(c, "oauth_failed")
		return
	}

	account := s.GitHubUser(token)

	login, err := account.AuthenticatedUser(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch GitHub user", "error", err)
		redirectError(c, "callback_failed")
		return
	}

	user, errCode, err := s.connectionOwner(c, account)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to resolve GitHub connection owner",
			"error", err,
			"githubUsername", login)
		redirectDashboard(c, url.Values{"github": {"connected"}, "user": {login}, "error": {errCode}})
		return
	}

	err = s.Store.UpsertGitHubConnection(ctx, domain.GitHubConnection{
		UserID:         user.ID,
		GitHubUsername: login,
		AccessToken:    token,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to save GitHub connection",
			"error", err,
			"userID", user.ID)
		redirectDashboard(c, url.Values{"github": {"connected"}, "user": {login}, "error": {"db_error"}})
		return
	}

	redirectDashboard(c, url.Values{"github": {"connected"}, "user": {user.ID}})
}

// validOAuthState consumes the state cookie set by handleGitHubConnect and
// reports whether it matches the callback's state.
func (s *Server) validOAuthState(c *gin.Context) bool {
	want, err := c.Cookie(oauthStateCookie)
	if err != nil || want == "" {
		return false
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, "", -1, oauthStatePath, "", strings.HasPrefix(s.AppURL, "https://"), true)

	return subtle.ConstantTimeCompare([]byte(want), []byte(c.Query("state"))) == 1
}

func (s *Server) connectionOwner(c *gin.Context, account GitHubAccount) (*domain.User, string, error) {
	if _, u, err := s.identify(c); err == nil {
		return u, "", nil
	}

	ctx := c.Request.Context()

	email, err := account.PrimaryEmail(ctx)
	if err != nil {
		return nil, "no_email", err
	}

	u, err := s.Store.GetUserByEmail(ctx, email)
	if isNotFound(err) {
		u, err = s.Store.CreateUser(ctx, email)
	}
	if err != nil {
		return nil, "db_error", err
	}

	return &u, "", nil
}

func (s *Server) handleMe(c *gin.Context) {
	id, u, err := s.identify(c)
	if errors.Is(err, auth.ErrUnauthenticated) {
		c.JSON(http.StatusUnauthorized, gin.H{"authenticated": false, "user": nil})
		return
	}
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to load user", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"authenticated": false, "error": "Failed to load user"})
		return
	}

	p, err := s.Store.GetProfileByUserID(c.Request.Context(), u.ID)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to load profile",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"authenticated": false, "error": "Failed to load user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": newMeView(id.AuthID, p)})
}

func (s *Server) handleLogout(c *gin.Context) {
	for _, ck := range auth.ClearCookies() {
		http.SetCookie(c.Writer, ck)
	}

	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		c.JSON(http.StatusOK, gin.H{"ok": true, "message": "Logged out"})
		return
	}

	c.Redirect(http.StatusFound, homePath)
}

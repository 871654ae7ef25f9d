package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	clientTimeout = 15 * time.Second
	maxErrorBody  = 4 << 10
)

type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	AppMetadata  map[string]any `json:"app_metadata"`
	UserMetadata map[string]any `json:"user_metadata"`
}

// Provider returns app_metadata.provider, e.g. "email" or "github".
func (u *User) Provider() string {
	if u == nil {
		return ""
	}
	v, _ := u.AppMetadata["provider"].(string)
	return v
}

// GitHubUsername picks the login from OAuth metadata, falling back to the
// local part of the email address.
func (u *User) GitHubUsername() string {
	if u == nil {
		return ""
	}

	for _, key := range []string{"user_name", "preferred_username"} {
		if v, ok := u.UserMetadata[key].(string); ok && v != "" {
			return v
		}
	}

	local, _, _ := strings.Cut(u.Email, "@")

	return local
}

type Session struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	ExpiresAt     int64  `json:"expires_at"`
	ExpiresIn     int64  `json:"expires_in"`
	ProviderToken string `json:"provider_token"`
	User          *User  `json:"user"`
}

// APIError is a non-2xx response from the auth server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client talks to the Supabase GoTrue REST API.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(supabaseURL, anonKey string, log *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(supabaseURL, "/") + "/auth/v1",
		anonKey: anonKey,
		http:    &http.Client{Timeout: clientTimeout},
		log:     log,
	}
}

func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "/auth/v1" && c.anonKey != ""
}

// SignUp registers a user. The session is nil when email confirmation is
// required.
func (c *Client) SignUp(ctx context.Context, email, password, redirectTo string) (*User, *Session, error) {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}

	var resp struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, http.MethodPost, "/signup", q, "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return nil, nil, err
	}

	if resp.AccessToken == "" {
		return &User{ID: resp.ID, Email: resp.Email}, nil, nil
	}

	session := resp.Session
	user := session.User
	if user == nil {
		user = &User{ID: resp.ID, Email: resp.Email}
	}

	return user, &session, nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.User == nil {
		return nil, errors.New("session user is missing")
	}

	return &session, nil
}

func (c *Client) ResendConfirmation(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}

	return c.do(ctx, http.MethodPost, "/resend", q, "", map[string]string{
		"type":  "signup",
		"email": email,
	}, nil)
}

// ExchangeCode completes an OAuth or magic-link flow.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"pkce"}}, "", map[string]string{
		"auth_code":     code,
		"code_verifier": "",
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" || session.User == nil {
		return nil, errors.New("session is incomplete")
	}

	return &session, nil
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("user id is missing")
	}

	return &user, nil
}

// AuthorizeURL is where the browser goes to sign in with an OAuth provider.
func (c *Client) AuthorizeURL(provider, redirectTo string, scopes ...string) string {
	q := url.Values{"provider": {provider}}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	if len(scopes) > 0 {
		q.Set("scopes", strings.Join(scopes, " "))
	}

	return c.baseURL + "/authorize?" + q.Encode()
}

func (c *Client) do(
	ctx context.Context,
	method string,
	path string,
	query url.Values,
	bearer string,
	body any,
	out any,
) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			c.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"path", path)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Status: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}

	if out == nil {
		return nil
	}

	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// errorMessage reads the several error shapes GoTrue has used over time.
func errorMessage(raw []byte, status int) string {
	var body struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, m := range []string{body.Msg, body.Message, body.ErrorDescription, body.Error} {
			if m != "" {
				return m
			}
		}
	}

	return fmt.Sprintf("auth request failed with status %d", status)
}

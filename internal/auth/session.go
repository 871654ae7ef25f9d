package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AccessTokenCookie  = "sb-access-token"
	RefreshTokenCookie = "sb-refresh-token"

	authTokenCookieMarker = "auth-token"
)

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrInvalidToken    = errors.New("invalid token")
)

// Identity is the verified caller behind a request.
type Identity struct {
	AuthID      string
	Email       string
	AccessToken string
}

// UserVerifier resolves an access token remotely.
type UserVerifier interface {
	GetUser(ctx context.Context, accessToken string) (*User, error)
}

type Sessions struct {
	verifier  UserVerifier
	jwtSecret []byte
	log       *slog.Logger
}

// NewSessions verifies tokens locally when jwtSecret is set, and through the
// auth server otherwise.
func NewSessions(verifier UserVerifier, jwtSecret string, log *slog.Logger) *Sessions {
	s := &Sessions{verifier: verifier, log: log}
	if jwtSecret != "" {
		s.jwtSecret = []byte(jwtSecret)
	}

	return s
}

// FromRequest checks the Authorization header, then the Supabase auth-token
// cookie, then the sb-access-token cookie.
func (s *Sessions) FromRequest(r *http.Request) (*Identity, error) {
	token := tokenFromRequest(r)
	if token == "" {
		return nil, ErrUnauthenticated
	}

	id, err := s.Verify(r.Context(), token)
	if err != nil {
		s.log.DebugContext(r.Context(), "Rejected access token", "error", err)
		return nil, ErrUnauthenticated
	}

	return id, nil
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}

	header := strings.Join(r.Header.Values("Cookie"), "; ")
	pairs := cookiePairs(header)

	// The first auth-token cookie in header order wins.
	for _, p := range pairs {
		if !strings.Contains(p.name, authTokenCookieMarker) {
			continue
		}

		if token := sessionCookieToken(p.value); token != "" {
			return token
		}
		break
	}

	return ParseCookieHeader(header)[AccessTokenCookie]
}

// sessionCookieToken reads access_token from URL-encoded session JSON.
func sessionCookieToken(value string) string {
	decoded, err := url.QueryUnescape(value)
	if err != nil {
		return ""
	}

	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err = json.Unmarshal([]byte(decoded), &data); err != nil {
		return ""
	}

	return data.AccessToken
}

func (s *Sessions) Verify(ctx context.Context, token string) (*Identity, error) {
	if len(s.jwtSecret) > 0 {
		return s.verifyLocal(token)
	}

	if s.verifier == nil {
		return nil, errors.New("no token verifier configured")
	}

	user, err := s.verifier.GetUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &Identity{AuthID: user.ID, Email: user.Email, AccessToken: token}, nil
}

type claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

func (s *Sessions) verifyLocal(token string) (*Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	c, ok := parsed.Claims.(*claims)
	if !ok || !parsed.Valid || c.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{AuthID: c.Subject, Email: c.Email, AccessToken: token}, nil
}

// ClearCookies expires the session cookies.
func ClearCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: AccessTokenCookie, Value: "", Path: "/", MaxAge: -1},
		{Name: RefreshTokenCookie, Value: "", Path: "/", MaxAge: -1},
	}
}

type cookiePair struct {
	name  string
	value string
}

// cookiePairs splits a Cookie header on ";" and each pair on its first "=",
// keeping header order. Values are returned as sent.
func cookiePairs(header string) []cookiePair {
	var pairs []cookiePair

	for part := range strings.SplitSeq(header, ";") {
		name, value, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}

		pairs = append(pairs, cookiePair{name: name, value: strings.TrimSpace(value)})
	}

	return pairs
}

// ParseCookieHeader returns the cookies of a Cookie header by name. A repeated
// name keeps its last value.
func ParseCookieHeader(header string) map[string]string {
	cookies := make(map[string]string)
	for _, p := range cookiePairs(header) {
		cookies[p.name] = p.value
	}

	return cookies
}

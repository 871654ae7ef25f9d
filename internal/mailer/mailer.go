package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"

	"dailydigest/internal/ratelimiter"
)

const (
	DefaultFrom = "Daily Digest <digest@yourdomain.com>"

	sendEvery   = 500 * time.Millisecond
	sendBurst   = 2
	limiterKey  = "resend"
	limiterName = "email"
)

type Message struct {
	To             string
	Subject        string
	HTML           string
	UnsubscribeURL string
}

type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Resend sends through the Resend API, paced to its default rate limit.
type Resend struct {
	client  *resend.Client
	from    string
	limiter *ratelimiter.Keyed
	log     *slog.Logger
}

type Option func(*Resend)

// WithBaseURL points the client at a different API root.
func WithBaseURL(raw string) Option {
	return func(r *Resend) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			r.log.Error("Failed to parse Resend base URL", "error", err, "url", raw)
			return
		}
		r.client.BaseURL = u
	}
}

func NewResend(apiKey, from string, log *slog.Logger, opts ...Option) (*Resend, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("API key is empty")
	}
	if from == "" {
		from = DefaultFrom
	}

	r := &Resend{
		client:  resend.NewClient(apiKey),
		from:    from,
		limiter: ratelimiter.New(limiterName, sendEvery, sendBurst, log),
		log:     log,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

func (r *Resend) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", errors.New("recipient is empty")
	}

	if err := r.limiter.Wait(ctx, limiterKey); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	req := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	}
	if msg.UnsubscribeURL != "" {
		req.Headers = map[string]string{
			"List-Unsubscribe":      "<" + msg.UnsubscribeURL + ">",
			"List-Unsubscribe-Post": "List-Unsubscribe=One-Click",
		}
	}

	resp, err := r.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}

	return resp.Id, nil
}

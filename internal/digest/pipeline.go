package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"dailydigest/internal/domain"
	"dailydigest/internal/llm"
	"dailydigest/internal/mailer"
	"dailydigest/internal/metrics"
)

// OAuthManagedToken marks a connection whose token is held by the identity
// provider rather than by us.
const OAuthManagedToken = "oauth-managed"

type ActivitySource interface {
	RecentActivity(ctx context.Context, username string, since time.Time) ([]domain.GitHubEvent, error)
}

type ActivityFactory func(token string) ActivitySource

type FeedFetcher interface {
	FetchFeeds(ctx context.Context, feeds []domain.UserFeed, now time.Time) []domain.FeedDigest
}

type History interface {
	RecordDigest(ctx context.Context, r domain.DigestRecord) error
}

type Result struct {
	Status       string `json:"status"`
	GitHubEvents int    `json:"githubEvents"`
	FeedItems    int    `json:"feedItems"`
	EmailID      string `json:"emailId,omitempty"`
}

type Pipeline struct {
	activity  ActivityFactory
	feeds     FeedFetcher
	completer llm.Completer
	sender    mailer.Sender
	history   History
	metrics   *metrics.Metrics
	appURL    string
	lookback  time.Duration
	log       *slog.Logger
}

type PipelineConfig struct {
	Activity  ActivityFactory
	Feeds     FeedFetcher
	Completer llm.Completer
	Sender    mailer.Sender
	History   History
	Metrics   *metrics.Metrics
	AppURL    string
	Lookback  time.Duration
}

func NewPipeline(cfg PipelineConfig, log *slog.Logger) *Pipeline {
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}

	return &Pipeline{
		activity:  cfg.Activity,
		feeds:     cfg.Feeds,
		completer: cfg.Completer,
		sender:    cfg.Sender,
		history:   cfg.History,
		metrics:   cfg.Metrics,
		appURL:    strings.TrimRight(cfg.AppURL, "/"),
		lookback:  lookback,
		log:       log,
	}
}

// Send builds and delivers one digest. GitHub activity and feeds are gathered
// in parallel and each degrades to empty on failure. Nothing is sent when
// both are empty. Every outcome is recorded in the digest history.
func (p *Pipeline) Send(ctx context.Context, r domain.Recipient, now time.Time) (Result, error) {
	var (
		wg     sync.WaitGroup
		events []domain.GitHubEvent
		feeds  []domain.FeedDigest
	)

	wg.Go(func() { events = p.githubActivity(ctx, r, now) })
	wg.Go(func() { feeds = p.feeds.FetchFeeds(ctx, r.Feeds, now) })
	wg.Wait()

	res := Result{GitHubEvents: len(events)}
	for _, f := range feeds {
		res.FeedItems += len(f.Items)
	}

	if res.GitHubEvents == 0 && res.FeedItems == 0 {
		res.Status = domain.DigestStatusSkipped
		p.record(ctx, r, res, nil)

		return res, nil
	}

	id, err := p.compose(ctx, r, events, feeds, now)
	if err != nil {
		res.Status = domain.DigestStatusFailed
		p.record(ctx, r, res, err)

		return res, err
	}

	res.Status = domain.DigestStatusSent
	res.EmailID = id
	p.record(ctx, r, res, nil)

	return res, nil
}

func (p *Pipeline) compose(
	ctx context.Context,
	r domain.Recipient,
	events []domain.GitHubEvent,
	feeds []domain.FeedDigest,
	now time.Time,
) (string, error) {
	if p.completer == nil {
		return "", errors.New("no language model configured")
	}
	if p.sender == nil {
		return "", errors.New("no email sender configured")
	}

	profile := profileFor(r.Settings.SummaryLength)

	body, err := p.completer.Complete(ctx, llm.Request{
		Prompt:    BuildPrompt(events, feeds, r.Settings.SummaryLength),
		MaxTokens: profile.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}

	unsubscribeURL := p.appURL + "/api/unsubscribe?token=" + url.QueryEscape(r.User.UnsubscribeToken)

	subject, html, err := mailer.RenderDigest(mailer.DigestEmail{
		Date:           LocalTime(now, r.Settings.Timezone),
		Body:           stripFences(body),
		ManageURL:      p.appURL + "/dashboard",
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}

	id, err := p.sender.Send(ctx, mailer.Message{
		To:             r.User.Email,
		Subject:        subject,
		HTML:           html,
		UnsubscribeURL: unsubscribeURL,
	})
	if err != nil {
		return "", fmt.Errorf("send digest: %w", err)
	}

	return id, nil
}

func (p *Pipeline) githubActivity(ctx context.Context, r domain.Recipient, now time.Time) []domain.GitHubEvent {
	gh := r.GitHub
	if gh == nil || gh.GitHubUsername == "" || p.activity == nil {
		return nil
	}

	token := gh.AccessToken
	if token == OAuthManagedToken {
		token = ""
	}

	events, err := p.activity(token).RecentActivity(ctx, gh.GitHubUsername, now.Add(-p.lookback))
	if err != nil {
		p.log.ErrorContext(ctx, "Failed to fetch GitHub activity",
			"error", err,
			"userID", r.User.ID,
			"githubUsername", gh.GitHubUsername)
		return nil
	}

	return events
}

func (p *Pipeline) record(ctx context.Context, r domain.Recipient, res Result, cause error) {
	p.metrics.DigestOutcome(res.Status)

	if p.history == nil {
		return
	}

	rec := domain.DigestRecord{
		UserID:       r.User.ID,
		Status:       res.Status,
		GitHubEvents: res.GitHubEvents,
		FeedItems:    res.FeedItems,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	if err := p.history.RecordDigest(ctx, rec); err != nil {
		p.log.ErrorContext(ctx, "Failed to record digest",
			"error", err,
			"userID", r.User.ID,
			"status", res.Status)
	}
}

// LocalTime converts now to the named IANA zone, falling back to the default
// zone and then UTC.
func LocalTime(now time.Time, timezone string) time.Time {
	for _, name := range []string{timezone, domain.DefaultTimezone} {
		if name == "" {
			continue
		}
		if loc, err := time.LoadLocation(name); err == nil {
			return now.In(loc)
		}
	}

	return now.UTC()
}

package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"dailydigest/internal/domain"
)

const maxDiscoveredFeeds = 5

var ErrNoFeed = errors.New("no feed found")

// Resolver turns a URL a user pasted into a feed URL and title. Pages that
// are not feeds are searched for <link rel="alternate"> feed links.
type Resolver struct {
	client *http.Client
	parser *gofeed.Parser
	log    *slog.Logger
}

func NewResolver(log *slog.Logger) *Resolver {
	client := &http.Client{Timeout: clientTimeout}

	return &Resolver{
		client: client,
		parser: newParser(client),
		log:    log,
	}
}

func (r *Resolver) Resolve(ctx context.Context, rawURL string) (domain.Feed, error) {
	feedURL := strings.TrimSpace(rawURL)
	if feedURL == "" {
		return domain.Feed{}, errors.New("feed URL is empty")
	}

	u, err := url.Parse(feedURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Feed{}, fmt.Errorf("invalid feed URL: %s", feedURL)
	}

	feed, err := r.parse(ctx, feedURL)
	if err == nil {
		return feed, nil
	}

	r.log.DebugContext(ctx, "URL is not a feed, trying discovery",
		"error", err,
		"feedURL", feedURL)

	candidates, err := r.discover(ctx, u)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("discover feeds: %w", err)
	}

	var errs []error
	for _, candidate := range candidates {
		feed, parseErr := r.parse(ctx, candidate)
		if parseErr != nil {
			errs = append(errs, parseErr)
			continue
		}

		return feed, nil
	}

	return domain.Feed{}, errors.Join(append([]error{ErrNoFeed}, errs...)...)
}

func (r *Resolver) parse(ctx context.Context, feedURL string) (domain.Feed, error) {
	parsed, err := r.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return domain.Feed{}, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		r.log.WarnContext(ctx, "Empty feed title",
			"feedURL", feedURL,
			"fallbackTitle", feedURL)

		title = feedURL
	}

	return domain.Feed{URL: feedURL, Title: title}, nil
}

func (r *Resolver) discover(ctx context.Context, page *url.URL) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req) //nolint:gosec // user-supplied feed URL
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			r.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"pageURL", page.String())
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("do request: unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("create document from reader: %w", err)
	}

	return DiscoverFeedLinks(doc, page), nil
}

// DiscoverFeedLinks returns absolute URLs of feed links advertised in the
// document head, in document order.
func DiscoverFeedLinks(doc *goquery.Document, base *url.URL) []string {
	var links []string
	seen := make(map[string]struct{})

	doc.Find(`link[rel="alternate"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		typ := strings.ToLower(s.AttrOr("type", ""))
		if !strings.Contains(typ, "rss") && !strings.Contains(typ, "atom") &&
			!strings.Contains(typ, "xml") && !strings.Contains(typ, "feed+json") {
			return true
		}

		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href == "" {
			return true
		}

		ref, err := url.Parse(href)
		if err != nil {
			return true
		}

		abs := base.ResolveReference(ref).String()
		if _, ok := seen[abs]; ok {
			return true
		}
		seen[abs] = struct{}{}
		links = append(links, abs)

		return len(links) < maxDiscoveredFeeds
	})

	return links
}

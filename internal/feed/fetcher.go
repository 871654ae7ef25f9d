package feed

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"

	"dailydigest/internal/domain"
	"dailydigest/internal/metrics"
)

const (
	clientTimeout                        = 20 * time.Second
	fetchFeedsMaxConcurrencyGrowthFactor = 10

	DefaultLookback   = 24 * time.Hour
	maxItemsPerFeed   = 10
	fallbackItemCount = 3
	itemSummaryChars  = 300

	userAgent = "Mozilla/5.0 (compatible; DailyDigest/1.0; +https://github.com)"
)

// TitleStore persists feed titles discovered while fetching.
type TitleStore interface {
	UpdateFeedTitle(ctx context.Context, feedID string, title string) error
}

type Fetcher struct {
	parser   *gofeed.Parser
	titles   TitleStore
	metrics  *metrics.Metrics
	lookback time.Duration
	log      *slog.Logger
}

func newParser(client *http.Client) *gofeed.Parser {
	p := gofeed.NewParser()
	p.Client = client
	p.UserAgent = userAgent

	return p
}

// NewFetcher builds a fetcher. titles and m may be nil.
func NewFetcher(titles TitleStore, m *metrics.Metrics, lookback time.Duration, log *slog.Logger) *Fetcher {
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	return &Fetcher{
		parser:   newParser(&http.Client{Timeout: clientTimeout}),
		titles:   titles,
		metrics:  m,
		lookback: lookback,
		log:      log,
	}
}

// FetchFeeds fetches every feed concurrently. A feed that cannot be fetched is
// logged and left out; the result keeps the input order.
func (f *Fetcher) FetchFeeds(ctx context.Context, feeds []domain.UserFeed, now time.Time) []domain.FeedDigest {
	if len(feeds) == 0 {
		return nil
	}

	results := make([]*domain.FeedDigest, len(feeds))

	var wg sync.WaitGroup
	concurrency := min(runtime.NumCPU()*fetchFeedsMaxConcurrencyGrowthFactor, len(feeds))
	semCh := make(chan struct{}, concurrency)

	for i, feed := range feeds {
		semCh <- struct{}{}

		wg.Go(func() {
			defer func() { <-semCh }()

			digest, err := f.fetchFeed(ctx, feed, now)
			if err != nil {
				f.metrics.FeedFailure()
				f.log.ErrorContext(ctx, "Failed to fetch feed",
					"error", err,
					"feedID", feed.ID,
					"feedURL", feed.URL)
				return
			}

			results[i] = digest
		})
	}
	wg.Wait()

	out := make([]domain.FeedDigest, 0, len(feeds))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}

	return out
}

func (f *Fetcher) fetchFeed(ctx context.Context, feed domain.UserFeed, now time.Time) (*domain.FeedDigest, error) {
	feedURL := strings.TrimSpace(feed.URL)

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed (URL = %s): %w", feedURL, err)
	}

	source := strings.TrimSpace(feed.Title)
	parsedTitle := strings.TrimSpace(parsed.Title)
	if parsedTitle != "" && parsedTitle != source {
		if f.titles != nil && feed.ID != "" {
			if err = f.titles.UpdateFeedTitle(ctx, feed.ID, parsedTitle); err != nil {
				f.log.WarnContext(ctx, "Failed to update feed title",
					"error", err,
					"feedID", feed.ID)
			}
		}
		source = parsedTitle
	}
	if source == "" {
		source = feedURL
	}

	return &domain.FeedDigest{
		FeedID: feed.ID,
		Source: source,
		URL:    feedURL,
		Items:  SelectItems(parsed.Items, now, f.lookback),
	}, nil
}

// SelectItems keeps at most 10 items published within lookback of now, newest
// first. When none qualify it falls back to the latest 3 items.
func SelectItems(items []*gofeed.Item, now time.Time, lookback time.Duration) []domain.FeedItem {
	all := make([]domain.FeedItem, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}

		link := strings.TrimSpace(it.Link)
		title := strings.TrimSpace(it.Title)
		if link == "" && title == "" {
			continue
		}
		if title == "" {
			title = link
		}

		var published time.Time
		switch {
		case it.PublishedParsed != nil:
			published = *it.PublishedParsed
		case it.UpdatedParsed != nil:
			published = *it.UpdatedParsed
		}

		summary := it.Description
		if summary == "" {
			summary = it.Content
		}

		all = append(all, domain.FeedItem{
			Title:       title,
			URL:         link,
			Summary:     PlainText(summary, itemSummaryChars),
			PublishedAt: published,
		})
	}

	slices.SortStableFunc(all, func(a, b domain.FeedItem) int {
		return cmp.Compare(b.PublishedAt.UnixNano(), a.PublishedAt.UnixNano())
	})

	cutoff := now.Add(-lookback)

	recent := make([]domain.FeedItem, 0, maxItemsPerFeed)
	for _, it := range all {
		if len(recent) == maxItemsPerFeed {
			break
		}
		if it.PublishedAt.After(cutoff) && !it.PublishedAt.After(now) {
			recent = append(recent, it)
		}
	}

	if len(recent) > 0 {
		return recent
	}

	return all[:min(fallbackItemCount, len(all))]
}

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dailydigest/internal/domain"

	"github.com/google/uuid"
)

// AddFeed stores a feed for the user. Adding a URL the user already follows
// returns the existing row.
func (d *Database) AddFeed(
	ctx context.Context,
	userID string,
	feedURL string,
	feedTitle string,
) (domain.UserFeed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return domain.UserFeed{}, errors.New("feed URL is empty")
	}

	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		feedTitle = feedURL
	}

	query := `insert into feeds (id, user_id, url, title) values (?, ?, ?, ?)
	on conflict (user_id, url) do nothing`

	if _, err := d.exec(ctx, query, uuid.NewString(), userID, feedURL, feedTitle); err != nil {
		return domain.UserFeed{}, fmt.Errorf("insert feed: %w", err)
	}

	var f domain.UserFeed

	err := d.queryRow(ctx,
		"select id, user_id, url, title, created_at from feeds where user_id = ? and url = ?",
		userID, feedURL,
	).Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.CreatedAt)
	if err != nil {
		return domain.UserFeed{}, fmt.Errorf("select feed: %w", err)
	}

	return f, nil
}

func (d *Database) UpdateFeedTitle(ctx context.Context, feedID string, feedTitle string) error {
	feedTitle = strings.TrimSpace(feedTitle)
	if feedTitle == "" {
		return errors.New("feed title is empty")
	}

	_, err := d.exec(ctx, "update feeds set title = ? where id = ?", feedTitle, feedID)

	return err
}

// RemoveFeed deletes a feed owned by userID. Feeds of other users are never
// touched and report ErrNotFound.
func (d *Database) RemoveFeed(ctx context.Context, userID string, feedID string) error {
	res, err := d.exec(ctx, "delete from feeds where id = ? and user_id = ?", feedID, userID)
	if err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}

	return requireAffected(res)
}

func (d *Database) GetUserFeeds(ctx context.Context, userID string) ([]domain.UserFeed, error) {
	query := `select id, user_id, url, title, created_at
	from feeds
	where user_id = ?
	order by created_at, id`

	rows, err := d.query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "GetUserFeeds")

	var feeds []domain.UserFeed
	for rows.Next() {
		var f domain.UserFeed
		if err = rows.Scan(&f.ID, &f.UserID, &f.URL, &f.Title, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		f.URL = strings.TrimSpace(f.URL)
		f.Title = strings.TrimSpace(f.Title)

		feeds = append(feeds, f)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return feeds, nil
}

package database

import (
	"context"
	"fmt"
	"strings"

	"dailydigest/internal/domain"

	"github.com/google/uuid"
)

const maxDigestErrorLength = 1000

// ListDigestRecipients returns every user whose subscription allows digests,
// with settings defaulted when missing.
func (d *Database) ListDigestRecipients(ctx context.Context) ([]domain.Recipient, error) {
	query := "select " + userColumns + ` from users
	where subscription_status in (?, ?)
	order by created_at, id`

	rows, err := d.query(ctx, query, domain.SubscriptionActive, domain.SubscriptionTrialing)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	var users []domain.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			d.closeRows(ctx, rows, "ListDigestRecipients")
			return nil, scanErr
		}
		users = append(users, u)
	}

	if err = rows.Err(); err != nil {
		d.closeRows(ctx, rows, "ListDigestRecipients")
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	d.closeRows(ctx, rows, "ListDigestRecipients")

	recipients := make([]domain.Recipient, 0, len(users))
	for _, u := range users {
		p, profileErr := d.profileFor(ctx, u)
		if profileErr != nil {
			return nil, fmt.Errorf("load profile (userID = %s): %w", u.ID, profileErr)
		}

		settings := domain.DefaultSettings(u.ID)
		if p.Settings != nil {
			settings = *p.Settings
		}

		recipients = append(recipients, domain.Recipient{
			User:     u,
			Settings: settings,
			GitHub:   p.GitHub,
			Feeds:    p.Feeds,
		})
	}

	return recipients, nil
}

func (d *Database) RecordDigest(ctx context.Context, r domain.DigestRecord) error {
	errText := strings.TrimSpace(r.Error)
	if len(errText) > maxDigestErrorLength {
		errText = errText[:maxDigestErrorLength]
	}

	query := `insert into digest_history (id, user_id, status, github_events, feed_items, error)
	values (?, ?, ?, ?, ?, ?)`

	_, err := d.exec(ctx, query, uuid.NewString(), r.UserID, r.Status, r.GitHubEvents, r.FeedItems, errText)

	return err
}

func (d *Database) ListDigestHistory(ctx context.Context, userID string, limit int) ([]domain.DigestRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `select id, user_id, status, github_events, feed_items, error, created_at
	from digest_history
	where user_id = ?
	order by created_at desc
	limit ?`

	rows, err := d.query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer d.closeRows(ctx, rows, "ListDigestHistory")

	var records []domain.DigestRecord
	for rows.Next() {
		var r domain.DigestRecord
		if err = rows.Scan(&r.ID, &r.UserID, &r.Status, &r.GitHubEvents, &r.FeedItems, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, r)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return records, nil
}

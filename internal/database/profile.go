package database

import (
	"context"
	"fmt"

	"dailydigest/internal/domain"
)

// GetProfileByUserID loads the user with its connection, settings and feeds.
// Settings stay nil when the user never saved any.
func (d *Database) GetProfileByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	u, err := d.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	return d.profileFor(ctx, u)
}

func (d *Database) profileFor(ctx context.Context, u domain.User) (*domain.Profile, error) {
	conn, err := d.GetGitHubConnection(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("get GitHub connection: %w", err)
	}

	settings, err := d.getSettings(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}

	feeds, err := d.GetUserFeeds(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("get feeds: %w", err)
	}

	return &domain.Profile{
		User:     u,
		GitHub:   conn,
		Settings: settings,
		Feeds:    feeds,
	}, nil
}

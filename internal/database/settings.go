package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dailydigest/internal/domain"
)

func (d *Database) getSettings(ctx context.Context, userID string) (*domain.Settings, error) {
	query := `select user_id, delivery_hour, timezone, summary_length, updated_at
	from settings
	where user_id = ?`

	var s domain.Settings

	err := d.queryRow(ctx, query, userID).
		Scan(&s.UserID, &s.DeliveryHour, &s.Timezone, &s.SummaryLength, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan settings: %w", err)
	}

	return &s, nil
}

func (d *Database) GetSettingsWithDefault(ctx context.Context, userID string) (domain.Settings, error) {
	s, err := d.getSettings(ctx, userID)
	if err != nil {
		return domain.Settings{}, err
	}
	if s == nil {
		return domain.DefaultSettings(userID), nil
	}

	return *s, nil
}

func (d *Database) UpsertSettings(ctx context.Context, s domain.Settings) error {
	query := `insert into settings (user_id, delivery_hour, timezone, summary_length, updated_at)
	values (?, ?, ?, ?, ?)
	on conflict (user_id) do update
	set delivery_hour = excluded.delivery_hour,
		timezone = excluded.timezone,
		summary_length = excluded.summary_length,
		updated_at = excluded.updated_at`

	_, err := d.exec(ctx, query, s.UserID, s.DeliveryHour, s.Timezone, s.SummaryLength, time.Now().UTC())

	return err
}

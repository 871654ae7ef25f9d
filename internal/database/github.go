package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"dailydigest/internal/domain"

	"github.com/google/uuid"
)

// UpsertGitHubConnection stores the single GitHub connection of a user,
// replacing any previous one.
func (d *Database) UpsertGitHubConnection(ctx context.Context, c domain.GitHubConnection) error {
	if strings.TrimSpace(c.GitHubUsername) == "" {
		return errors.New("GitHub username is empty")
	}

	query := `insert into github_connections (id, user_id, github_username, access_token)
	values (?, ?, ?, ?)
	on conflict (user_id) do update
	set github_username = excluded.github_username,
		access_token = excluded.access_token`

	_, err := d.exec(ctx, query, uuid.NewString(), c.UserID, strings.TrimSpace(c.GitHubUsername), c.AccessToken)

	return err
}

func (d *Database) GetGitHubConnection(ctx context.Context, userID string) (*domain.GitHubConnection, error) {
	query := `select user_id, github_username, access_token, created_at
	from github_connections
	where user_id = ?`

	var c domain.GitHubConnection

	err := d.queryRow(ctx, query, userID).Scan(&c.UserID, &c.GitHubUsername, &c.AccessToken, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan GitHub connection: %w", err)
	}

	return &c, nil
}

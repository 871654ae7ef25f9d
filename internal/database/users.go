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

const userColumns = `id, coalesce(auth_id, ''), email, subscription_status,
	stripe_customer_id, stripe_subscription_id, unsubscribe_token, created_at`

type SubscriptionUpdate struct {
	Status               string
	StripeCustomerID     string
	StripeSubscriptionID string
}

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var u domain.User

	err := row.Scan(
		&u.ID,
		&u.AuthID,
		&u.Email,
		&u.SubscriptionStatus,
		&u.StripeCustomerID,
		&u.StripeSubscriptionID,
		&u.UnsubscribeToken,
		&u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}

	return u, nil
}

func (d *Database) getUserBy(ctx context.Context, column string, value string) (domain.User, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.User{}, ErrNotFound
	}

	query := "select " + userColumns + " from users where " + column + " = ?"

	return scanUser(d.queryRow(ctx, query, value))
}

func (d *Database) GetUserByID(ctx context.Context, userID string) (domain.User, error) {
	return d.getUserBy(ctx, "id", userID)
}

func (d *Database) GetUserByAuthID(ctx context.Context, authID string) (domain.User, error) {
	return d.getUserBy(ctx, "auth_id", authID)
}

func (d *Database) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return d.getUserBy(ctx, "email", strings.ToLower(email))
}

func (d *Database) GetUserByUnsubscribeToken(ctx context.Context, token string) (domain.User, error) {
	return d.getUserBy(ctx, "unsubscribe_token", token)
}

func (d *Database) GetUserByStripeCustomerID(ctx context.Context, customerID string) (domain.User, error) {
	return d.getUserBy(ctx, "stripe_customer_id", customerID)
}

// CreateUser inserts a user that has no identity-provider account yet.
func (d *Database) CreateUser(ctx context.Context, email string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, errors.New("email is empty")
	}

	id := uuid.NewString()

	query := `insert into users (id, email, subscription_status, unsubscribe_token)
	values (?, ?, ?, ?)`

	if _, err := d.exec(ctx, query, id, email, domain.SubscriptionInactive, uuid.NewString()); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	return d.GetUserByID(ctx, id)
}

// EnsureUser returns the user linked to authID, linking an existing row with
// the same email or creating a new one when needed.
func (d *Database) EnsureUser(ctx context.Context, authID string, email string) (domain.User, error) {
	authID = strings.TrimSpace(authID)
	if authID == "" {
		return domain.User{}, errors.New("auth ID is empty")
	}

	u, err := d.GetUserByAuthID(ctx, authID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.User{}, fmt.Errorf("get user by auth ID: %w", err)
	}

	u, err = d.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if _, err = d.exec(ctx, "update users set auth_id = ? where id = ?", authID, u.ID); err != nil {
			return domain.User{}, fmt.Errorf("link auth ID: %w", err)
		}
		u.AuthID = authID

		return u, nil
	case !errors.Is(err, ErrNotFound):
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, errors.New("email is empty")
	}

	id := uuid.NewString()

	query := `insert into users (id, auth_id, email, subscription_status, unsubscribe_token)
	values (?, ?, ?, ?, ?)`

	if _, err = d.exec(ctx, query, id, authID, email, domain.SubscriptionInactive, uuid.NewString()); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}

	return d.GetUserByID(ctx, id)
}

// UpdateSubscription writes the non-empty fields of update.
func (d *Database) UpdateSubscription(ctx context.Context, userID string, update SubscriptionUpdate) error {
	var (
		sets []string
		args []any
	)

	if update.Status != "" {
		sets = append(sets, "subscription_status = ?")
		args = append(args, update.Status)
	}
	if update.StripeCustomerID != "" {
		sets = append(sets, "stripe_customer_id = ?")
		args = append(args, update.StripeCustomerID)
	}
	if update.StripeSubscriptionID != "" {
		sets = append(sets, "stripe_subscription_id = ?")
		args = append(args, update.StripeSubscriptionID)
	}

	if len(sets) == 0 {
		return nil
	}

	args = append(args, userID)
	query := "update users set " + strings.Join(sets, ", ") + " where id = ?"

	res, err := d.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	return requireAffected(res)
}

func (d *Database) SetSubscriptionStatus(ctx context.Context, userID string, status string) error {
	return d.UpdateSubscription(ctx, userID, SubscriptionUpdate{Status: status})
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

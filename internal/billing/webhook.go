package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"dailydigest/internal/database"
	"dailydigest/internal/domain"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

var statusMapping = map[stripe.SubscriptionStatus]string{
	stripe.SubscriptionStatusActive:            domain.SubscriptionActive,
	stripe.SubscriptionStatusTrialing:          domain.SubscriptionTrialing,
	stripe.SubscriptionStatusPastDue:           domain.SubscriptionPastDue,
	stripe.SubscriptionStatusUnpaid:            domain.SubscriptionPastDue,
	stripe.SubscriptionStatusCanceled:          domain.SubscriptionCanceled,
	stripe.SubscriptionStatusIncomplete:        domain.SubscriptionIncomplete,
	stripe.SubscriptionStatusIncompleteExpired: domain.SubscriptionCanceled,
	stripe.SubscriptionStatusPaused:            domain.SubscriptionPaused,
}

// MapStatus converts a Stripe subscription status to ours.
func MapStatus(status stripe.SubscriptionStatus) (string, bool) {
	s, ok := statusMapping[status]
	return s, ok
}

// Store is the slice of the database webhooks write to.
type Store interface {
	GetUserByID(ctx context.Context, userID string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (domain.User, error)
	UpdateSubscription(ctx context.Context, userID string, update database.SubscriptionUpdate) error
}

type Webhooks struct {
	store  Store
	secret string
	log    *slog.Logger
}

func NewWebhooks(store Store, secret string, log *slog.Logger) *Webhooks {
	return &Webhooks{store: store, secret: secret, log: log}
}

// Process verifies and applies one webhook delivery. Nothing is written when
// the signature does not verify. Events for unknown users are acknowledged.
func (w *Webhooks) Process(ctx context.Context, payload []byte, signature string) (string, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	w.log.InfoContext(ctx, "Processing Stripe webhook event",
		"eventID", event.ID,
		"eventType", event.Type)

	switch event.Type {
	case "checkout.session.completed":
		err = w.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.created", "customer.subscription.updated":
		err = w.handleSubscriptionChanged(ctx, event, "")
	case "customer.subscription.deleted":
		err = w.handleSubscriptionChanged(ctx, event, domain.SubscriptionCanceled)
	default:
		w.log.DebugContext(ctx, "Unhandled webhook event type",
			"eventType", event.Type)
	}

	if err != nil {
		return string(event.Type), fmt.Errorf("handle %s: %w", event.Type, err)
	}

	return string(event.Type), nil
}

func (w *Webhooks) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return fmt.Errorf("unmarshal checkout session: %w", err)
	}

	email := sess.CustomerEmail
	if email == "" && sess.CustomerDetails != nil {
		email = sess.CustomerDetails.Email
	}

	userID := sess.Metadata["user_id"]
	if userID == "" {
		userID = sess.ClientReferenceID
	}

	user, err := w.findUser(ctx, userID, "", email)
	if err != nil {
		return err
	}
	if user == nil {
		w.log.WarnContext(ctx, "User not found for checkout session",
			"sessionID", sess.ID,
			"email", email)
		return nil
	}

	update := database.SubscriptionUpdate{}
	if sess.Customer != nil {
		update.StripeCustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		update.StripeSubscriptionID = sess.Subscription.ID
	}

	if err = w.store.UpdateSubscription(ctx, user.ID, update); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	return nil
}

// handleSubscriptionChanged applies the subscription's mapped status, or
// forced when it is set.
func (w *Webhooks) handleSubscriptionChanged(ctx context.Context, event stripe.Event, forced string) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("unmarshal subscription: %w", err)
	}

	status := forced
	if status == "" {
		mapped, ok := MapStatus(sub.Status)
		if !ok {
			w.log.WarnContext(ctx, "Unknown subscription status",
				"subscriptionID", sub.ID,
				"status", sub.Status)
			return nil
		}
		status = mapped
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	user, err := w.findUser(ctx, sub.Metadata["user_id"], customerID, "")
	if err != nil {
		return err
	}
	if user == nil {
		w.log.WarnContext(ctx, "User not found for subscription",
			"subscriptionID", sub.ID,
			"customerID", customerID)
		return nil
	}

	err = w.store.UpdateSubscription(ctx, user.ID, database.SubscriptionUpdate{
		Status:               status,
		StripeCustomerID:     customerID,
		StripeSubscriptionID: sub.ID,
	})
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}

	w.log.InfoContext(ctx, "Updated subscription status",
		"userID", user.ID,
		"subscriptionID", sub.ID,
		"status", status)

	return nil
}

// findUser tries the user id, then the Stripe customer, then the email. It
// returns nil without error when no lookup matches.
func (w *Webhooks) findUser(ctx context.Context, userID, customerID, email string) (*domain.User, error) {
	lookups := []struct {
		value string
		get   func(context.Context, string) (domain.User, error)
	}{
		{userID, w.store.GetUserByID},
		{customerID, w.store.GetUserByStripeCustomerID},
		{email, w.store.GetUserByEmail},
	}

	for _, l := range lookups {
		if l.value == "" {
			continue
		}

		u, err := l.get(ctx, l.value)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("find user: %w", err)
		}

		return &u, nil
	}

	return nil, nil
}

package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
)

const trialPeriodDays = 7

var (
	ErrInvalidPlan   = errors.New("invalid plan")
	ErrNotConfigured = errors.New("billing is not configured")
)

type CheckoutInput struct {
	UserID     string
	Email      string
	CustomerID string
	Plan       string
}

// Gateway creates hosted Stripe pages.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
}

type Stripe struct {
	prices map[string]string
	appURL string
	log    *slog.Logger
}

// NewStripe sets the process-wide Stripe key. prices maps plan names to
// price IDs.
func NewStripe(secretKey string, prices map[string]string, appURL string, log *slog.Logger) (*Stripe, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("%w: secret key is required", ErrNotConfigured)
	}

	stripe.Key = secretKey

	return &Stripe{
		prices: prices,
		appURL: strings.TrimRight(appURL, "/"),
		log:    log,
	}, nil
}

func (s *Stripe) PriceID(plan string) (string, error) {
	price := s.prices[plan]
	if plan == "" || price == "" {
		return "", ErrInvalidPlan
	}
	return price, nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (string, error) {
	price, err := s.PriceID(in.Plan)
	if err != nil {
		return "", err
	}

	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(price),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			TrialPeriodDays: stripe.Int64(trialPeriodDays),
			Metadata:        map[string]string{"user_id": in.UserID},
		},
		ClientReferenceID: stripe.String(in.UserID),
		SuccessURL:        stripe.String(s.appURL + "/dashboard?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.appURL + "#pricing"),
	}
	params.Context = ctx
	params.AddMetadata("user_id", in.UserID)

	if in.CustomerID != "" {
		params.Customer = stripe.String(in.CustomerID)
	} else {
		params.CustomerEmail = stripe.String(in.Email)
	}

	s.log.DebugContext(ctx, "Creating checkout session",
		"userID", in.UserID,
		"plan", in.Plan)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}

	return sess.URL, nil
}

func (s *Stripe) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	if customerID == "" {
		return "", errors.New("customer id is empty")
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(s.appURL + "/dashboard"),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create portal session: %w", err)
	}

	return sess.URL, nil
}

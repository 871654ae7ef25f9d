package domain

import "time"

const (
	SubscriptionInactive     = "inactive"
	SubscriptionTrialing     = "trialing"
	SubscriptionActive       = "active"
	SubscriptionPastDue      = "past_due"
	SubscriptionCanceled     = "canceled"
	SubscriptionIncomplete   = "incomplete"
	SubscriptionPaused       = "paused"
	SubscriptionUnsubscribed = "unsubscribed"
)

const (
	SummaryShort    = "short"
	SummaryNormal   = "normal"
	SummaryDetailed = "detailed"

	DefaultDeliveryHour  = 7
	DefaultTimezone      = "America/Chicago"
	DefaultSummaryLength = SummaryNormal
)

const (
	DigestStatusSent    = "sent"
	DigestStatusFailed  = "failed"
	DigestStatusSkipped = "skipped"
)

type User struct {
	ID                   string
	AuthID               string
	Email                string
	SubscriptionStatus   string
	StripeCustomerID     string
	StripeSubscriptionID string
	UnsubscribeToken     string
	CreatedAt            time.Time
}

type Feed struct {
	URL   string
	Title string
}

type UserFeed struct {
	ID        string
	UserID    string
	URL       string
	Title     string
	CreatedAt time.Time
}

type Settings struct {
	UserID        string
	DeliveryHour  int
	Timezone      string
	SummaryLength string
	UpdatedAt     time.Time
}

func DefaultSettings(userID string) Settings {
	return Settings{
		UserID:        userID,
		DeliveryHour:  DefaultDeliveryHour,
		Timezone:      DefaultTimezone,
		SummaryLength: DefaultSummaryLength,
	}
}

type GitHubConnection struct {
	UserID         string
	GitHubUsername string
	AccessToken    string
	CreatedAt      time.Time
}

// Profile is a user row together with everything hanging off it.
type Profile struct {
	User     User
	GitHub   *GitHubConnection
	Settings *Settings
	Feeds    []UserFeed
}

// Recipient is a user that is eligible to receive digests.
type Recipient struct {
	User     User
	Settings Settings
	GitHub   *GitHubConnection
	Feeds    []UserFeed
}

type DigestRecord struct {
	ID           string
	UserID       string
	Status       string
	GitHubEvents int
	FeedItems    int
	Error        string
	CreatedAt    time.Time
}

type FeedItem struct {
	Title       string
	URL         string
	Summary     string
	PublishedAt time.Time
}

type FeedDigest struct {
	FeedID string
	Source string
	URL    string
	Items  []FeedItem
}

type GitHubEvent struct {
	Type      string
	Repo      string
	Actor     string
	Summary   string
	URL       string
	CreatedAt time.Time
}

func IsDeliverableStatus(status string) bool {
	return status == SubscriptionActive || status == SubscriptionTrialing
}

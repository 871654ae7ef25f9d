package digestapi

import (
	"time"

	"dailydigest/internal/domain"
)

type feedView struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type settingsView struct {
	DeliveryHour  int    `json:"deliveryHour"`
	Timezone      string `json:"timezone"`
	SummaryLength string `json:"summaryLength"`
}

type githubView struct {
	Connected bool   `json:"connected"`
	Username  string `json:"username,omitempty"`
}

type accountView struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}

type meView struct {
	ID                 string        `json:"id"`
	AuthID             string        `json:"authId"`
	Email              string        `json:"email"`
	SubscriptionStatus string        `json:"subscriptionStatus"`
	CreatedAt          time.Time     `json:"createdAt"`
	GitHub             *githubView   `json:"github"`
	Settings           *settingsView `json:"settings"`
	Feeds              []feedView    `json:"feeds"`
}

type historyView struct {
	Status       string    `json:"status"`
	GitHubEvents int       `json:"githubEvents"`
	FeedItems    int       `json:"feedItems"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newHistoryViews(records []domain.DigestRecord) []historyView {
	views := make([]historyView, 0, len(records))
	for _, r := range records {
		views = append(views, historyView{
			Status:       r.Status,
			GitHubEvents: r.GitHubEvents,
			FeedItems:    r.FeedItems,
			Error:        r.Error,
			CreatedAt:    r.CreatedAt,
		})
	}
	return views
}

func newFeedViews(feeds []domain.UserFeed) []feedView {
	views := make([]feedView, 0, len(feeds))
	for _, f := range feeds {
		views = append(views, feedView{ID: f.ID, URL: f.URL, Title: f.Title})
	}
	return views
}

func newSettingsView(s domain.Settings) settingsView {
	return settingsView{
		DeliveryHour:  s.DeliveryHour,
		Timezone:      s.Timezone,
		SummaryLength: s.SummaryLength,
	}
}

func newMeView(authID string, p *domain.Profile) meView {
	v := meView{
		ID:                 p.User.ID,
		AuthID:             authID,
		Email:              p.User.Email,
		SubscriptionStatus: p.User.SubscriptionStatus,
		CreatedAt:          p.User.CreatedAt,
		Feeds:              newFeedViews(p.Feeds),
	}
	if p.GitHub != nil {
		v.GitHub = &githubView{Connected: true, Username: p.GitHub.GitHubUsername}
	}
	if p.Settings != nil {
		s := newSettingsView(*p.Settings)
		v.Settings = &s
	}

	return v
}

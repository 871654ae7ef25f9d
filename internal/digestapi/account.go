package digestapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/domain"
	"dailydigest/internal/feed"
	"dailydigest/internal/httpx"
)

const stateHistoryLimit = 10

type feedRequest struct {
	Action string `json:"action" binding:"omitempty,oneof=add remove"`
	URL    string `json:"url"    binding:"required_unless=Action remove"`
	ID     string `json:"id"     binding:"required_if=Action remove,omitempty,uuid"`
}

var feedMessages = map[string]string{
	"action":         "Action must be add or remove",
	"url":            "URL is required",
	"id.required_if": "Feed ID is required",
	"id.uuid":        "Invalid feed ID",
}

func (s *Server) handleFeeds(c *gin.Context) {
	var req feedRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": httpx.ValidationMessage(err, feedMessages, "Invalid request body")})
		return
	}

	if req.Action == "remove" {
		s.removeFeed(c, req.ID)
		return
	}

	s.addFeed(c, strings.TrimSpace(req.URL))
}

func (s *Server) addFeed(c *gin.Context, raw string) {
	feedURL := feed.ExtractURL(raw)
	if feedURL == "" {
		feedURL = raw
	}

	ctx := c.Request.Context()
	u := currentUser(c)

	resolved, err := s.Feeds.Resolve(ctx, feedURL)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to resolve feed",
			"error", err,
			"userID", u.ID,
			"feedURL", feedURL)
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "No RSS or Atom feed found at that URL"})
		return
	}

	f, err := s.Store.AddFeed(ctx, u.ID, resolved.URL, resolved.Title)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to add feed",
			"error", err,
			"userID", u.ID,
			"feedURL", resolved.URL)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to add feed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "feed": feedView{ID: f.ID, URL: f.URL, Title: f.Title}})
}

func (s *Server) removeFeed(c *gin.Context, id string) {
	ctx := c.Request.Context()
	u := currentUser(c)

	err := s.Store.RemoveFeed(ctx, u.ID, id)
	if isNotFound(err) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "Feed not found"})
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to remove feed",
			"error", err,
			"userID", u.ID,
			"feedID", id)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to remove feed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type settingsRequest struct {
	DeliveryHour  *int   `json:"deliveryHour"  binding:"omitempty,min=0,max=23"`
	Timezone      string `json:"timezone"      binding:"omitempty,timezone"`
	SummaryLength string `json:"summaryLength" binding:"omitempty,oneof=short normal detailed"`
}

const invalidSettingsMessage = "Delivery hour must be 0-23, timezone a valid IANA name and summary length short, normal or detailed"

var settingsMessages = map[string]string{
	"deliveryHour":  invalidSettingsMessage,
	"timezone":      invalidSettingsMessage,
	"summaryLength": invalidSettingsMessage,
}

// settings fills omitted fields with defaults.
func (r settingsRequest) settings(userID string) domain.Settings {
	s := domain.DefaultSettings(userID)
	if r.DeliveryHour != nil {
		s.DeliveryHour = *r.DeliveryHour
	}
	if r.Timezone != "" {
		s.Timezone = r.Timezone
	}
	if r.SummaryLength != "" {
		s.SummaryLength = r.SummaryLength
	}

	return s
}

func (s *Server) handleSaveSettings(c *gin.Context) {
	var req settingsRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": httpx.ValidationMessage(err, settingsMessages, "Invalid request body")})
		return
	}

	u := currentUser(c)
	settings := req.settings(u.ID)

	if err := s.Store.UpsertSettings(c.Request.Context(), settings); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to save settings",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to save settings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "settings": newSettingsView(settings)})
}

func (s *Server) handleUserState(c *gin.Context) {
	ctx := c.Request.Context()
	u := currentUser(c)

	p, err := s.Store.GetProfileByUserID(ctx, u.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load profile",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	settings, err := s.Store.GetSettingsWithDefault(ctx, u.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load settings",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	history, err := s.Store.ListDigestHistory(ctx, u.ID, stateHistoryLimit)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load digest history",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	gh := githubView{}
	if p.GitHub != nil {
		gh = githubView{Connected: true, Username: p.GitHub.GitHubUsername}
	}

	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"user": accountView{
			ID:                 p.User.ID,
			Email:              p.User.Email,
			SubscriptionStatus: p.User.SubscriptionStatus,
		},
		"github":   gh,
		"feeds":    newFeedViews(p.Feeds),
		"settings": newSettingsView(settings),
		"history":  newHistoryViews(history),
	})
}

// handleTestDigest runs the digest pipeline for the caller right away.
func (s *Server) handleTestDigest(c *gin.Context) {
	ctx := c.Request.Context()
	u := currentUser(c)

	p, err := s.Store.GetProfileByUserID(ctx, u.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load profile",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	settings, err := s.Store.GetSettingsWithDefault(ctx, u.ID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load settings",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "Failed to load user"})
		return
	}

	r := domain.Recipient{
		User:     p.User,
		Settings: settings,
		GitHub:   p.GitHub,
		Feeds:    p.Feeds,
	}

	res, err := s.Digests.Send(ctx, r, s.Now())
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to send test digest",
			"error", err,
			"userID", u.ID)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "Failed to send test digest", "result": res})
		return
	}

	message := "Test digest sent"
	if res.Status == domain.DigestStatusSkipped {
		message = "Nothing new to summarize yet"
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "message": message, "result": res})
}

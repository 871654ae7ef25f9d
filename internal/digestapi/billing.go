package digestapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/billing"
	"dailydigest/internal/domain"
	"dailydigest/internal/httpx"
)

const maxWebhookBody = 64 << 10

type stripeRequest struct {
	Action string `json:"action" binding:"omitempty,oneof=portal checkout"`
	Plan   string `json:"plan"   binding:"omitempty,oneof=monthly yearly"`
}

var stripeMessages = map[string]string{
	"action": "Invalid action",
	"plan":   "Invalid plan",
}

func bindStripeRequest(c *gin.Context) (stripeRequest, bool) {
	var req stripeRequest
	if err := httpx.BindJSON(c, &req); err != nil {
		httpx.Error(c, http.StatusBadRequest, httpx.ValidationMessage(err, stripeMessages, "Invalid request body"))
		return req, false
	}
	return req, true
}

// handlePortalRedirect sends a browser straight to the billing portal.
func (s *Server) handlePortalRedirect(c *gin.Context) {
	if c.Query("action") != "portal" {
		httpx.Error(c, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	_, u, err := s.identify(c)
	if err != nil {
		c.Redirect(http.StatusFound, loginPath)
		return
	}
	if u.StripeCustomerID == "" {
		c.Redirect(http.StatusFound, homePath+"#pricing")
		return
	}
	if s.Billing == nil {
		redirectError(c, "billing_failed")
		return
	}

	portalURL, err := s.Billing.CreatePortalSession(c.Request.Context(), u.StripeCustomerID)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to create portal session",
			"error", err,
			"userID", u.ID)
		redirectError(c, "billing_failed")
		return
	}

	c.Redirect(http.StatusFound, portalURL)
}

func (s *Server) handleStripe(c *gin.Context) {
	req, ok := bindStripeRequest(c)
	if !ok {
		return
	}

	if req.Action == "portal" {
		s.portal(c, currentUser(c))
		return
	}

	s.checkout(c, currentUser(c), req.Plan)
}

func (s *Server) handleCheckout(c *gin.Context) {
	req, ok := bindStripeRequest(c)
	if !ok {
		return
	}

	s.checkout(c, currentUser(c), req.Plan)
}

func (s *Server) portal(c *gin.Context, u *domain.User) {
	if u.StripeCustomerID == "" {
		httpx.Error(c, http.StatusBadRequest, "No subscription found")
		return
	}
	if s.Billing == nil {
		httpx.Error(c, http.StatusServiceUnavailable, "Billing is not configured")
		return
	}

	portalURL, err := s.Billing.CreatePortalSession(c.Request.Context(), u.StripeCustomerID)
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to create portal session",
			"error", err,
			"userID", u.ID)
		httpx.Error(c, http.StatusInternalServerError, "Failed to create portal session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": portalURL})
}

func (s *Server) checkout(c *gin.Context, u *domain.User, plan string) {
	if s.Billing == nil {
		httpx.Error(c, http.StatusServiceUnavailable, "Billing is not configured")
		return
	}

	checkoutURL, err := s.Billing.CreateCheckoutSession(c.Request.Context(), billing.CheckoutInput{
		UserID:     u.ID,
		Email:      u.Email,
		CustomerID: u.StripeCustomerID,
		Plan:       plan,
	})
	if errors.Is(err, billing.ErrInvalidPlan) {
		httpx.Error(c, http.StatusBadRequest, "Invalid plan")
		return
	}
	if err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to create checkout session",
			"error", err,
			"userID", u.ID,
			"plan", plan)
		httpx.Error(c, http.StatusInternalServerError, "Failed to create checkout session")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": checkoutURL})
}

// handleWebhook answers 400 for payloads that fail verification and 500 for
// verified events that could not be applied, so Stripe retries them.
func (s *Server) handleWebhook(c *gin.Context) {
	if s.Webhooks == nil {
		httpx.Error(c, http.StatusServiceUnavailable, "Billing is not configured")
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}

	ctx := c.Request.Context()

	eventType, err := s.Webhooks.Process(ctx, payload, c.GetHeader("Stripe-Signature"))
	if errors.Is(err, billing.ErrInvalidSignature) {
		s.log.WarnContext(ctx, "Webhook signature verification failed", "error", err)
		c.String(http.StatusBadRequest, "Webhook Error: %s", err.Error())
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to process webhook",
			"error", err,
			"eventType", eventType)
		httpx.Error(c, http.StatusInternalServerError, "Webhook handler failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

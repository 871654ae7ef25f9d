package digestapi

import (
	"bytes"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"dailydigest/internal/domain"
)

var unsubscribeTemplate = template.Must(template.New("unsubscribe").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Unsubscribe | Daily Digest</title>
  <style>
    * { box-sizing: border-box; margin: 0; padding: 0; }
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; background: #0a0a0a; color: #e5e5e5; min-height: 100vh; display: flex; align-items: center; justify-content: center; padding: 2rem; }
    .container { max-width: 400px; text-align: center; }
    .icon { font-size: 3rem; margin-bottom: 1rem; }
    h1 { font-size: 1.5rem; margin-bottom: 1rem; }
    p { color: #888; margin-bottom: 1.5rem; line-height: 1.6; }
    .btn { display: inline-block; padding: 0.75rem 1.5rem; border-radius: 8px; font-size: 1rem; font-weight: 600; cursor: pointer; text-decoration: none; border: none; margin: 0.25rem; }
    .btn-danger { background: #dc2626; color: white; }
    .btn-secondary { background: #333; color: #e5e5e5; }
    .success { color: #22c55e; }
  </style>
</head>
<body>
  <div class="container">
    {{- if .Success}}
    <div class="icon">✅</div>
    <h1>Unsubscribed</h1>
    <p class="success">{{.Message}}</p>
    <a href="/daily-digest/" class="btn btn-secondary">Back to Home</a>
    {{- else if .Confirm}}
    <div class="icon">📬</div>
    <h1>Unsubscribe</h1>
    <p>{{.Message}}</p>
    <form method="POST">
      <button type="submit" class="btn btn-danger">Yes, Unsubscribe</button>
      <a href="/daily-digest/dashboard" class="btn btn-secondary">Cancel</a>
    </form>
    {{- else}}
    <div class="icon">❌</div>
    <h1>Oops</h1>
    <p>{{.Message}}</p>
    <a href="/daily-digest/" class="btn btn-secondary">Go Home</a>
    {{- end}}
  </div>
</body>
</html>
`))

type unsubscribePage struct {
	Message string
	Success bool
	Confirm bool
}

func (s *Server) renderUnsubscribe(c *gin.Context, status int, page unsubscribePage) {
	var buf bytes.Buffer
	if err := unsubscribeTemplate.Execute(&buf, page); err != nil {
		s.log.ErrorContext(c.Request.Context(), "Failed to render unsubscribe page", "error", err)
		c.String(http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

// handleUnsubscribe shows a confirmation page on GET and unsubscribes on
// POST, which also serves one-click List-Unsubscribe requests.
func (s *Server) handleUnsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		s.renderUnsubscribe(c, http.StatusBadRequest, unsubscribePage{Message: "Missing unsubscribe token"})
		return
	}

	ctx := c.Request.Context()

	u, err := s.Store.GetUserByUnsubscribeToken(ctx, token)
	if isNotFound(err) {
		s.renderUnsubscribe(c, http.StatusNotFound, unsubscribePage{Message: "Invalid or expired unsubscribe link"})
		return
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to look up unsubscribe token", "error", err)
		s.renderUnsubscribe(c, http.StatusInternalServerError, unsubscribePage{Message: "Something went wrong. Please try again."})
		return
	}

	if c.Request.Method != http.MethodPost {
		s.renderUnsubscribe(c, http.StatusOK, unsubscribePage{
			Message: "Are you sure you want to unsubscribe " + u.Email + " from Daily Digest?",
			Confirm: true,
		})
		return
	}

	if err = s.Store.SetSubscriptionStatus(ctx, u.ID, domain.SubscriptionUnsubscribed); err != nil {
		s.log.ErrorContext(ctx, "Failed to unsubscribe user",
			"error", err,
			"userID", u.ID)
		s.renderUnsubscribe(c, http.StatusInternalServerError, unsubscribePage{Message: "Failed to unsubscribe. Please try again."})
		return
	}

	s.log.InfoContext(ctx, "User unsubscribed", "userID", u.ID)

	s.renderUnsubscribe(c, http.StatusOK, unsubscribePage{
		Message: "You've been unsubscribed. We're sorry to see you go!",
		Success: true,
	})
}

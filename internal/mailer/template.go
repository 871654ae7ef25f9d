package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

const subjectDateLayout = "Monday, Jan 2"

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="UTF-8">
    <style>
      body { font-family: -apple-system, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
      h1 { color: #6366f1; }
      h2 { color: #666; font-size: 1.1rem; margin-top: 1.5rem; }
      ul { padding-left: 1.5rem; }
      li { margin-bottom: 0.5rem; }
      .footer { margin-top: 2rem; padding-top: 1rem; border-top: 1px solid #eee; color: #999; font-size: 0.85rem; }
    </style>
  </head>
  <body>
    <h1>📬 Daily Digest</h1>
    <p style="color:#999">{{.Date}}</p>
    {{.Body}}
    <div class="footer">
      <p>You're receiving this because you subscribed to Daily Digest.</p>
      <p><a href="{{.ManageURL}}">Manage preferences</a> | <a href="{{.UnsubscribeURL}}">Unsubscribe</a></p>
    </div>
  </body>
</html>
`))

type DigestEmail struct {
	Date time.Time
	// Body is model output and is trusted as HTML.
	Body           string
	ManageURL      string
	UnsubscribeURL string
}

func Subject(date time.Time) string {
	return "📬 Your Daily Digest — " + date.Format(subjectDateLayout)
}

// RenderDigest returns the subject and HTML body of a digest email.
func RenderDigest(e DigestEmail) (string, string, error) {
	var buf bytes.Buffer

	err := digestTemplate.Execute(&buf, struct {
		Date           string
		Body           template.HTML
		ManageURL      string
		UnsubscribeURL string
	}{
		Date:           e.Date.Format("Monday, January 2, 2006"),
		Body:           template.HTML(e.Body), //nolint:gosec // generated digest HTML
		ManageURL:      e.ManageURL,
		UnsubscribeURL: e.UnsubscribeURL,
	})
	if err != nil {
		return "", "", fmt.Errorf("execute template: %w", err)
	}

	return Subject(e.Date), buf.String(), nil
}

package mailer

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubject(t *testing.T) {
	got := Subject(time.Date(2006, 1, 2, 7, 0, 0, 0, time.UTC))
	if got != "📬 Your Daily Digest — Monday, Jan 2" {
		t.Fatalf("unexpected subject: %q", got)
	}
}

func TestRenderDigest(t *testing.T) {
	subject, html, err := RenderDigest(DigestEmail{
		Date:           time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC),
		Body:           "<h2>🐙 GitHub Highlights</h2><ul><li>Merged</li></ul>",
		ManageURL:      "https://app.example.com/dashboard",
		UnsubscribeURL: "https://app.example.com/api/unsubscribe?token=abc&x=1",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if subject != "📬 Your Daily Digest — Tuesday, Mar 4" {
		t.Fatalf("unexpected subject: %q", subject)
	}

	for _, want := range []string{
		"<h2>🐙 GitHub Highlights</h2><ul><li>Merged</li></ul>",
		`href="https://app.example.com/dashboard"`,
		`href="https://app.example.com/api/unsubscribe?token=abc&amp;x=1"`,
		"Tuesday, March 4, 2025",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered HTML missing %q:\n%s", want, html)
		}
	}
}

func TestResendSend(t *testing.T) {
	var got map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/emails") {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("unexpected auth header: %q", r.Header.Get("Authorization"))
		}

		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"email_123"}`)
	}))
	defer srv.Close()

	sender, err := NewResend("re_test", "", testLogger(), WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}

	id, err := sender.Send(context.Background(), Message{
		To:             "a@example.com",
		Subject:        "hello",
		HTML:           "<p>hi</p>",
		UnsubscribeURL: "https://app/u?token=t",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if id != "email_123" {
		t.Fatalf("unexpected id: %q", id)
	}

	if got["from"] != DefaultFrom || got["subject"] != "hello" || got["html"] != "<p>hi</p>" {
		t.Fatalf("unexpected payload: %v", got)
	}
	headers, _ := got["headers"].(map[string]any)
	if headers["List-Unsubscribe"] != "<https://app/u?token=t>" {
		t.Fatalf("unexpected headers: %v", got["headers"])
	}
}

func TestResendValidation(t *testing.T) {
	if _, err := NewResend(" ", "", testLogger()); err == nil {
		t.Fatalf("expected error for empty API key")
	}

	sender, err := NewResend("re_test", "", testLogger())
	if err != nil {
		t.Fatalf("new sender: %v", err)
	}
	if _, err = sender.Send(context.Background(), Message{}); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}

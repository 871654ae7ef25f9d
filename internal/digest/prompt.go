package digest

import (
	"fmt"
	"strings"
	"time"

	"dailydigest/internal/domain"
)

type lengthProfile struct {
	githubBullets string
	feedBullets   string
	tldr          string
	maxTokens     int64
}

var lengthProfiles = map[string]lengthProfile{
	domain.SummaryShort:    {"2-3", "2-3", "1 sentence", 600},
	domain.SummaryNormal:   {"3-5", "3-5", "2-3 sentences", 1024},
	domain.SummaryDetailed: {"5-8", "5-8", "3-4 sentences", 2048},
}

func profileFor(length string) lengthProfile {
	if p, ok := lengthProfiles[length]; ok {
		return p
	}
	return lengthProfiles[domain.DefaultSummaryLength]
}

// BuildPrompt asks for an HTML digest body sized by the user's summary length.
func BuildPrompt(activity []domain.GitHubEvent, feeds []domain.FeedDigest, length string) string {
	p := profileFor(length)

	var b strings.Builder
	b.WriteString("You are creating a morning digest email. ")
	b.WriteString("Summarize the following activity into a brief, scannable email format.\n\n")

	b.WriteString("GitHub Activity:\n")
	if len(activity) == 0 {
		b.WriteString("(no activity)\n")
	}
	for _, e := range activity {
		fmt.Fprintf(&b, "- [%s] %s: %s (%s)\n", e.CreatedAt.UTC().Format(time.RFC3339), e.Repo, e.Summary, e.URL)
	}

	b.WriteString("\nRSS Feed Updates:\n")
	if len(feeds) == 0 {
		b.WriteString("(no feed updates)\n")
	}
	for _, f := range feeds {
		fmt.Fprintf(&b, "## %s\n", f.Source)
		for _, it := range f.Items {
			fmt.Fprintf(&b, "- %s (%s)", it.Title, it.URL)
			if it.Summary != "" {
				fmt.Fprintf(&b, ": %s", it.Summary)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("\nFormat the response as HTML email content with sections for:\n")
	fmt.Fprintf(&b, "1. 🐙 GitHub Highlights (%s bullet points)\n", p.githubBullets)
	fmt.Fprintf(&b, "2. 📰 From Your Feeds (%s interesting items)\n", p.feedBullets)
	fmt.Fprintf(&b, "3. 💡 TL;DR (%s summary)\n\n", p.tldr)
	b.WriteString("Omit a section when it has nothing to report. ")
	b.WriteString("Keep it concise and scannable. Use <strong> for emphasis. ")
	b.WriteString("Return only the HTML fragment, without <html> or <body> tags and without code fences.")

	return b.String()
}

// stripFences removes a Markdown code fence the model may wrap HTML in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}

	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

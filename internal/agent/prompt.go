package agent

import (
	"fmt"
	"strings"

	"dailydigest/internal/domain"
)

const (
	bodyMaxChars          = 500
	commitMessageMaxChars = 200
	unknown               = "Unknown"
)

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}

	return string(runes[:maxChars]) + "..."
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func writeIssues(b *strings.Builder, heading string, issues []domain.Issue) {
	if len(issues) == 0 {
		return
	}

	fmt.Fprintf(b, "## %s\n\n", heading)
	for i, it := range issues {
		fmt.Fprintf(b, "### %d. %s\n", i+1, it.Title)
		fmt.Fprintf(b, "- **Repository**: %s\n", orUnknown(it.Repository.NameWithOwner))
		fmt.Fprintf(b, "- **State**: %s\n", it.State)
		fmt.Fprintf(b, "- **URL**: %s\n", it.URL)
		fmt.Fprintf(b, "- **Author**: %s\n", orUnknown(it.Author.Login))
		if it.Body != "" {
			fmt.Fprintf(b, "- **Description**: %s\n", truncate(it.Body, bodyMaxChars))
		}
		b.WriteString("\n")
	}
}

// FormatContext renders search results as Markdown for the model.
func FormatContext(r domain.SearchResults) string {
	var b strings.Builder

	writeIssues(&b, "Issues Found", r.Issues)
	writeIssues(&b, "Pull Requests Found", r.PullRequests)

	if len(r.Code) > 0 {
		b.WriteString("## Code Files Found\n\n")
		for i, f := range r.Code {
			fmt.Fprintf(&b, "%d. **%s** in %s\n", i+1, f.Path, orUnknown(f.Repository.NameWithOwner))
			fmt.Fprintf(&b, "   - URL: %s\n", f.URL)
		}
		b.WriteString("\n")
	}

	if len(r.Commits) > 0 {
		b.WriteString("## Commits Found\n\n")
		for i, c := range r.Commits {
			msg := c.Commit.Message
			if msg == "" {
				msg = "No message"
			}
			fmt.Fprintf(&b, "%d. **%s**\n", i+1, truncate(msg, commitMessageMaxChars))
			fmt.Fprintf(&b, "   - Repository: %s\n", orUnknown(c.Repository.NameWithOwner))
			fmt.Fprintf(&b, "   - URL: %s\n", c.URL)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func BuildAnswerPrompt(question string, r domain.SearchResults) string {
	context := FormatContext(r)
	if context == "" {
		context = "No results found for this search."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# User Question\n%s\n\n", question)
	fmt.Fprintf(&b, "# GitHub Search Results\n%s\n\n", context)
	b.WriteString("# Search Summary\n")
	fmt.Fprintf(&b, "- Issues found: %d\n", r.Summary.IssuesFound)
	fmt.Fprintf(&b, "- Pull requests found: %d\n", r.Summary.PRsFound)
	fmt.Fprintf(&b, "- Code files found: %d\n", r.Summary.CodeFilesFound)
	fmt.Fprintf(&b, "- Commits found: %d\n\n", r.Summary.CommitsFound)
	b.WriteString("Please answer the user's question based on the search results above.")

	return b.String()
}

package ghclient

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v66/github"

	"dailydigest/internal/domain"
)

func describeEvent(e *github.Event) domain.GitHubEvent {
	repo := e.GetRepo().GetName()

	out := domain.GitHubEvent{
		Type:      e.GetType(),
		Repo:      repo,
		Actor:     e.GetActor().GetLogin(),
		URL:       "https://github.com/" + repo,
		CreatedAt: e.GetCreatedAt().Time,
	}

	payload, err := e.ParsePayload()
	if err != nil {
		out.Summary = fmt.Sprintf("%s in %s", strings.TrimSuffix(out.Type, "Event"), repo)
		return out
	}

	switch p := payload.(type) {
	case *github.PushEvent:
		n := p.GetSize()
		if n == 0 {
			n = len(p.Commits)
		}
		out.Summary = fmt.Sprintf("Pushed %d commit(s) to %s", n, strings.TrimPrefix(p.GetRef(), "refs/heads/"))
		if len(p.Commits) > 0 {
			out.Summary += ": " + firstLine(p.Commits[0].GetMessage())
		}
	case *github.PullRequestEvent:
		out.Summary = fmt.Sprintf("%s pull request #%d: %s", capitalize(p.GetAction()), p.GetNumber(), p.GetPullRequest().GetTitle())
		out.URL = orDefault(p.GetPullRequest().GetHTMLURL(), out.URL)
	case *github.PullRequestReviewEvent:
		out.Summary = fmt.Sprintf("Reviewed pull request: %s (%s)", p.GetPullRequest().GetTitle(), p.GetReview().GetState())
		out.URL = orDefault(p.GetReview().GetHTMLURL(), out.URL)
	case *github.IssuesEvent:
		out.Summary = fmt.Sprintf("%s issue #%d: %s", capitalize(p.GetAction()), p.GetIssue().GetNumber(), p.GetIssue().GetTitle())
		out.URL = orDefault(p.GetIssue().GetHTMLURL(), out.URL)
	case *github.IssueCommentEvent:
		out.Summary = fmt.Sprintf("Commented on #%d: %s", p.GetIssue().GetNumber(), p.GetIssue().GetTitle())
		out.URL = orDefault(p.GetComment().GetHTMLURL(), out.URL)
	case *github.CreateEvent:
		out.Summary = strings.TrimSpace(fmt.Sprintf("Created %s %s", p.GetRefType(), p.GetRef()))
	case *github.DeleteEvent:
		out.Summary = fmt.Sprintf("Deleted %s %s", p.GetRefType(), p.GetRef())
	case *github.ReleaseEvent:
		out.Summary = fmt.Sprintf("%s release %s", capitalize(p.GetAction()), orDefault(p.GetRelease().GetName(), p.GetRelease().GetTagName()))
		out.URL = orDefault(p.GetRelease().GetHTMLURL(), out.URL)
	case *github.WatchEvent:
		out.Summary = "Starred " + repo
	case *github.ForkEvent:
		out.Summary = "Forked to " + p.GetForkee().GetFullName()
	default:
		out.Summary = fmt.Sprintf("%s in %s", strings.TrimSuffix(out.Type, "Event"), repo)
	}

	return out
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

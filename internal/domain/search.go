package domain

type Repository struct {
	NameWithOwner string `json:"nameWithOwner"`
}

type Author struct {
	Login string `json:"login"`
}

// Issue covers both issues and pull requests returned by the search API.
type Issue struct {
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	URL        string     `json:"url"`
	Repository Repository `json:"repository"`
	State      string     `json:"state"`
	CreatedAt  string     `json:"createdAt"`
	Author     Author     `json:"author"`
}

type CodeFile struct {
	Path       string     `json:"path"`
	Repository Repository `json:"repository"`
	URL        string     `json:"url"`
}

type CommitMessage struct {
	Message string `json:"message"`
}

type Commit struct {
	SHA        string        `json:"sha"`
	Commit     CommitMessage `json:"commit"`
	Repository Repository    `json:"repository"`
	URL        string        `json:"url"`
}

type SearchSummary struct {
	IssuesFound    int `json:"issuesFound"`
	PRsFound       int `json:"prsFound"`
	CodeFilesFound int `json:"codeFilesFound"`
	CommitsFound   int `json:"commitsFound"`
}

type SearchResults struct {
	Issues       []Issue       `json:"issues"`
	PullRequests []Issue       `json:"pullRequests"`
	Code         []CodeFile    `json:"code"`
	Commits      []Commit      `json:"commits"`
	Summary      SearchSummary `json:"summary"`
}

// Summarize recomputes Summary from the current list lengths.
func (r *SearchResults) Summarize() {
	r.Summary = SearchSummary{
		IssuesFound:    len(r.Issues),
		PRsFound:       len(r.PullRequests),
		CodeFilesFound: len(r.Code),
		CommitsFound:   len(r.Commits),
	}
}

type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	UpdatedAt   string `json:"updatedAt"`
}

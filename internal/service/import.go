package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/odvcencio/codehub/internal/config"
	"github.com/odvcencio/codehub/internal/models"
)

const (
	defaultImportCommits = 50
	maxImportCommits     = 500
)

// ImportService materializes a GitHub repository's metadata, branches, recent
// commits and labels as a local repository.
type ImportService struct {
	client *github.Client
	repos  *RepoService
	labels *LabelService
}

// NewGitHubClient builds a go-github client, authenticated when cfg.Token is set
// and pointed at a GitHub Enterprise host when cfg.BaseURL is set.
func NewGitHubClient(cfg config.GitHubConfig) (*github.Client, error) {
	var hc *http.Client
	if cfg.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	client := github.NewClient(hc)
	if cfg.BaseURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
	}
	return client, nil
}

func NewImportService(client *github.Client, repos *RepoService, labels *LabelService) *ImportService {
	return &ImportService{client: client, repos: repos, labels: labels}
}

// ImportInput selects the source repository and how the local copy is created.
type ImportInput struct {
	Source  string `json:"source"` // "owner/name" on GitHub
	Name    string `json:"name"`   // local name, defaults to the source name
	Org     string `json:"org"`
	Private *bool  `json:"private"`
	Commits int    `json:"commits"` // commits per branch, newest first
}

// ImportResult reports what was created.
type ImportResult struct {
	Repository *models.Repository `json:"repository"`
	Branches   int                `json:"branches"`
	Commits    int                `json:"commits"`
	Labels     int                `json:"labels"`
}

func (s *ImportService) Import(ctx context.Context, actor *Actor, in ImportInput) (*ImportResult, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(in.Source), "/")
	if !ok || owner == "" || name == "" {
		return nil, invalid("source must be owner/name")
	}
	limit := in.Commits
	if limit <= 0 {
		limit = defaultImportCommits
	}
	limit = min(limit, maxImportCommits)

	src, _, err := s.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, fmt.Errorf("fetch github repository %s/%s: %w", owner, name, err)
	}
	private := src.GetPrivate()
	if in.Private != nil {
		private = *in.Private
	}
	localName := in.Name
	if localName == "" {
		localName = src.GetName()
	}
	repo, err := s.repos.Create(ctx, actor, CreateRepoInput{
		Name:          localName,
		Description:   src.GetDescription(),
		Private:       private,
		Org:           in.Org,
		DefaultBranch: src.GetDefaultBranch(),
		Homepage:      src.GetHomepage(),
		Language:      src.GetLanguage(),
		Topics:        src.Topics,
	})
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Repository: repo}
	localOwner := repo.OwnerName

	branches, err := s.listBranches(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	// The default branch goes first so its files and commits exist before others.
	slices.SortStableFunc(branches, func(a, b *github.Branch) int {
		switch {
		case a.GetName() == repo.DefaultBranch:
			return -1
		case b.GetName() == repo.DefaultBranch:
			return 1
		}
		return 0
	})
	for _, b := range branches {
		commits, _, err := s.client.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
			SHA:         b.GetName(),
			ListOptions: github.ListOptions{PerPage: limit},
		})
		if err != nil {
			return nil, fmt.Errorf("list commits of %s: %w", b.GetName(), err)
		}
		if len(commits) == 0 {
			continue
		}
		push := PushInput{Branch: b.GetName(), Commits: make([]CommitInput, 0, len(commits))}
		// GitHub lists newest first; pushes are oldest first.
		for i := len(commits) - 1; i >= 0; i-- {
			push.Commits = append(push.Commits, commitInput(commits[i]))
		}
		res, err := s.repos.Push(ctx, actor, localOwner, repo.Name, push)
		if err != nil {
			return nil, fmt.Errorf("import branch %s: %w", b.GetName(), err)
		}
		result.Branches++
		result.Commits += len(res.Commits)
	}

	labels, _, err := s.client.Issues.ListLabels(ctx, owner, name, &github.ListOptions{PerPage: 100})
	if err != nil {
		slog.Warn("import labels", "source", in.Source, "error", err)
	} else {
		for _, l := range labels {
			_, err := s.labels.Create(ctx, actor, localOwner, repo.Name, LabelInput{
				Name:        l.GetName(),
				Color:       l.GetColor(),
				Description: l.GetDescription(),
			})
			if err != nil {
				slog.Warn("import label", "source", in.Source, "label", l.GetName(), "error", err)
				continue
			}
			result.Labels++
		}
	}

	slog.Info("repository imported", "source", in.Source, "repo", repo.FullName(),
		"branches", result.Branches, "commits", result.Commits, "labels", result.Labels)
	return result, nil
}

func (s *ImportService) listBranches(ctx context.Context, owner, name string) ([]*github.Branch, error) {
	var all []*github.Branch
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		branches, resp, err := s.client.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return nil, fmt.Errorf("list github branches: %w", err)
		}
		all = append(all, branches...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func commitInput(c *github.RepositoryCommit) CommitInput {
	gc := c.GetCommit()
	in := CommitInput{
		SHA:            c.GetSHA(),
		Message:        gc.GetMessage(),
		AuthorName:     gc.GetAuthor().GetName(),
		AuthorEmail:    gc.GetAuthor().GetEmail(),
		CommitterName:  gc.GetCommitter().GetName(),
		CommitterEmail: gc.GetCommitter().GetEmail(),
		TreeSHA:        gc.GetTree().GetSHA(),
		CommittedAt:    gc.GetCommitter().GetDate().Time,
		ParentSHAs:     make([]string, 0, len(c.Parents)),
	}
	if in.CommittedAt.IsZero() {
		in.CommittedAt = gc.GetAuthor().GetDate().Time
	}
	if st := c.GetStats(); st != nil {
		in.Additions, in.Deletions = st.GetAdditions(), st.GetDeletions()
	}
	for _, p := range c.Parents {
		in.ParentSHAs = append(in.ParentSHAs, p.GetSHA())
	}
	return in
}

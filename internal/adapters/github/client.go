// Package github opens fix pull requests through the GitHub REST API.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gogithub "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"

	"github.com/target/healwright/internal/core"
)

// Options configures the Client.
type Options struct {
	// BaseURL is the API root, e.g. https://ghe.example.com/api/v3/. Empty means api.github.com.
	BaseURL string
	// Timeout bounds each API call.
	Timeout time.Duration
	// Transport is the base transport under the OAuth2 token transport.
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Client implements core.SourceControl. Each call authenticates with the token carried by the
// FixPR, since credentials belong to the project owner.
type Client struct {
	baseURL   string
	timeout   time.Duration
	transport http.RoundTripper
	logger    *slog.Logger
}

var _ core.SourceControl = (*Client)(nil)

// NewClient constructs a Client.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:   strings.TrimSpace(opts.BaseURL),
		timeout:   opts.Timeout,
		transport: opts.Transport,
		logger:    opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if c.transport == nil {
		c.transport = http.DefaultTransport
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", "github")
	return c
}

func (c *Client) api(ctx context.Context, token string) (*gogithub.Client, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Transport: c.transport})
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	httpClient.Timeout = c.timeout

	client := gogithub.NewClient(httpClient)
	if c.baseURL == "" {
		return client, nil
	}
	base, err := url.Parse(strings.TrimSuffix(c.baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("github base url: %w", err)
	}
	client.BaseURL = base
	return client, nil
}

// OpenFixPR creates the fix branch from the default branch head, commits the fix file to it and
// opens the pull request. When the branch already exists its open pull request is returned. A
// branch created by this call is deleted again if the commit or pull request step fails.
func (c *Client) OpenFixPR(ctx context.Context, pr core.FixPR) (core.PRHandle, error) {
	if pr.Owner == "" || pr.Repo == "" || pr.Branch == "" {
		return core.PRHandle{}, errors.New("owner, repo and branch are required")
	}
	if pr.Token == "" {
		return core.PRHandle{}, errors.New("github token is required")
	}
	api, err := c.api(ctx, pr.Token)
	if err != nil {
		return core.PRHandle{}, err
	}
	logger := c.logger.With("owner", pr.Owner, "repo", pr.Repo, "branch", pr.Branch)

	repo, _, err := api.Repositories.Get(ctx, pr.Owner, pr.Repo)
	if err != nil {
		return core.PRHandle{}, fmt.Errorf("get repository: %w", err)
	}
	base := repo.GetDefaultBranch()
	if base == "" {
		base = "main"
	}
	head, _, err := api.Git.GetRef(ctx, pr.Owner, pr.Repo, "heads/"+base)
	if err != nil {
		return core.PRHandle{}, fmt.Errorf("get %s head: %w", base, err)
	}

	branchRef := "refs/heads/" + pr.Branch
	_, _, err = api.Git.CreateRef(ctx, pr.Owner, pr.Repo, &gogithub.Reference{
		Ref:    gogithub.String(branchRef),
		Object: &gogithub.GitObject{SHA: head.GetObject().SHA},
	})
	createdBranch := err == nil
	switch {
	case createdBranch:
	case isUnprocessable(err):
		existing, found, lerr := c.findOpenPR(ctx, api, pr)
		if lerr != nil {
			return core.PRHandle{}, lerr
		}
		if found {
			logger.InfoContext(ctx, "fix branch already has an open pull request", "pr_url", existing.URL)
			return existing, nil
		}
		// Branch left behind without a PR: finish the job on it.
	default:
		return core.PRHandle{}, fmt.Errorf("create branch: %w", err)
	}

	handle, err := c.commitAndOpen(ctx, api, pr, base)
	if err != nil {
		if createdBranch {
			if _, derr := api.Git.DeleteRef(context.WithoutCancel(ctx), pr.Owner, pr.Repo, "heads/"+pr.Branch); derr != nil {
				logger.WarnContext(ctx, "failed to delete fix branch after error", "error", derr)
			}
		}
		return core.PRHandle{}, err
	}
	logger.InfoContext(ctx, "opened fix pull request", "pr_url", handle.URL, "number", handle.Number)
	return handle, nil
}

func (c *Client) commitAndOpen(ctx context.Context, api *gogithub.Client, pr core.FixPR, base string) (core.PRHandle, error) {
	_, _, err := api.Repositories.CreateFile(ctx, pr.Owner, pr.Repo, pr.FilePath, &gogithub.RepositoryContentFileOptions{
		Message: gogithub.String(pr.CommitMessage),
		Content: pr.FileContent,
		Branch:  gogithub.String(pr.Branch),
	})
	// 422 means the file is already on the branch from an earlier attempt.
	if err != nil && !isUnprocessable(err) {
		return core.PRHandle{}, fmt.Errorf("commit fix file: %w", err)
	}

	created, _, err := api.PullRequests.Create(ctx, pr.Owner, pr.Repo, &gogithub.NewPullRequest{
		Title: gogithub.String(pr.Title),
		Head:  gogithub.String(pr.Branch),
		Base:  gogithub.String(base),
		Body:  gogithub.String(pr.Body),
	})
	if err == nil {
		return handleFor(created, false), nil
	}
	if isUnprocessable(err) {
		existing, found, lerr := c.findOpenPR(ctx, api, pr)
		if lerr != nil {
			return core.PRHandle{}, lerr
		}
		if found {
			return existing, nil
		}
	}
	return core.PRHandle{}, fmt.Errorf("create pull request: %w", err)
}

func (c *Client) findOpenPR(ctx context.Context, api *gogithub.Client, pr core.FixPR) (core.PRHandle, bool, error) {
	prs, _, err := api.PullRequests.List(ctx, pr.Owner, pr.Repo, &gogithub.PullRequestListOptions{
		State:       "open",
		Head:        pr.Owner + ":" + pr.Branch,
		ListOptions: gogithub.ListOptions{PerPage: 1},
	})
	if err != nil {
		return core.PRHandle{}, false, fmt.Errorf("list pull requests: %w", err)
	}
	if len(prs) == 0 {
		return core.PRHandle{}, false, nil
	}
	return handleFor(prs[0], true), true, nil
}

func handleFor(p *gogithub.PullRequest, existing bool) core.PRHandle {
	return core.PRHandle{
		URL:      p.GetHTMLURL(),
		Branch:   p.GetHead().GetRef(),
		Number:   p.GetNumber(),
		Existing: existing,
	}
}

func isUnprocessable(err error) bool {
	var resp *gogithub.ErrorResponse
	return errors.As(err, &resp) && resp.Response != nil && resp.Response.StatusCode == http.StatusUnprocessableEntity
}

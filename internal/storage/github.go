package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v66/github"
)

// GitHubBackend commits each object as a file in a GitHub repository.
type GitHubBackend struct {
	client *github.Client
	owner  string
	repo   string
	branch string
}

// NewGitHubClient returns an authenticated API client. apiURL overrides the
// default https://api.github.com/ endpoint when set.
func NewGitHubClient(token, apiURL string, httpClient *http.Client) (*github.Client, error) {
	client := github.NewClient(httpClient).WithAuthToken(token)
	if apiURL == "" {
		return client, nil
	}

	if !strings.HasSuffix(apiURL, "/") {
		apiURL += "/"
	}
	base, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("parse github api url: %w", err)
	}
	client.BaseURL = base
	return client, nil
}

// NewGitHubBackend returns a backend writing to owner/repo. An empty branch
// targets the repository's default branch.
func NewGitHubBackend(client *github.Client, owner, repo, branch string) *GitHubBackend {
	return &GitHubBackend{client: client, owner: owner, repo: repo, branch: branch}
}

// Put creates the file at key, or updates it in place when it already exists.
// CreateFile and UpdateFile take the path as-is, so it is escaped here;
// GetContents escapes on its own.
func (b *GitHubBackend) Put(ctx context.Context, key string, content []byte, message string) error {
	path := escapePath(key)
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
	}
	if b.branch != "" {
		opts.Branch = github.String(b.branch)
	}

	_, _, err := b.client.Repositories.CreateFile(ctx, b.owner, b.repo, path, opts)
	if err == nil {
		return nil
	}
	if !isStatus(err, http.StatusUnprocessableEntity) {
		return classifyGitHub(fmt.Errorf("create file %q: %w", key, err))
	}

	// 422 means the path already exists; updating requires the current blob SHA.
	existing, _, _, err := b.client.Repositories.GetContents(ctx, b.owner, b.repo, key,
		&github.RepositoryContentGetOptions{Ref: b.branch})
	if err != nil {
		return classifyGitHub(fmt.Errorf("get file %q: %w", key, err))
	}
	if existing == nil {
		return fmt.Errorf("%w: %q is a directory", ErrRejected, key)
	}

	opts.SHA = existing.SHA
	if _, _, err := b.client.Repositories.UpdateFile(ctx, b.owner, b.repo, path, opts); err != nil {
		return classifyGitHub(fmt.Errorf("update file %q: %w", key, err))
	}
	return nil
}

func escapePath(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func isStatus(err error, code int) bool {
	var ghErr *github.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == code
}

// classifyGitHub marks client errors as permanent. Rate limits and server
// errors stay retryable.
func classifyGitHub(err error) error {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return err
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests {
			return fmt.Errorf("%w: %w", ErrRejected, err)
		}
	}
	return err
}

var _ Backend = (*GitHubBackend)(nil)

package oracle

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"

	"devcollab/domain"
)

// GitHub answers pull request state questions through the GitHub REST API.
// It implements domain.PullRequestOracle.
type GitHub struct {
	http    *http.Client
	baseURL *url.URL
}

// Option customizes a GitHub oracle.
type Option func(*GitHub) error

// WithBaseURL points the oracle at another API root, e.g. a GitHub
// Enterprise server or a test server.
func WithBaseURL(raw string) Option {
	return func(g *GitHub) error {
		if raw == "" {
			return nil
		}
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("github base url: %w", err)
		}
		g.baseURL = u
		return nil
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GitHub) error {
		g.http = c
		return nil
	}
}

func NewGitHub(opts ...Option) (*GitHub, error) {
	g := &GitHub{http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func (g *GitHub) client(credential string) *github.Client {
	c := github.NewClient(g.http)
	if credential != "" {
		c = c.WithAuthToken(credential)
	}
	if g.baseURL != nil {
		c.BaseURL = g.baseURL
	}
	return c
}

// IsMerged reports whether the pull request has been merged. GitHub answers
// 404 for an unmerged pull request, which reads as false.
func (g *GitHub) IsMerged(ctx context.Context, ref domain.PullRequestRef, credential string) (bool, error) {
	merged, _, err := g.client(credential).PullRequests.IsMerged(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return false, fmt.Errorf("%w: merge state of %s: %v", domain.ErrOracleUnavailable, ref, err)
	}
	return merged, nil
}

// IsClosed reports whether the pull request is closed, merged or not.
func (g *GitHub) IsClosed(ctx context.Context, ref domain.PullRequestRef, credential string) (bool, error) {
	pr, _, err := g.client(credential).PullRequests.Get(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return false, fmt.Errorf("%w: state of %s: %v", domain.ErrOracleUnavailable, ref, err)
	}
	return pr.GetState() == "closed", nil
}

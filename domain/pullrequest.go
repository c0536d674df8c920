package domain

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

// PullRequestRef identifies a pull request on the code host.
type PullRequestRef struct {
	Owner  string
	Repo   string
	Number int
}

func (r PullRequestRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

var pullRequestPattern = regexp.MustCompile(`([^/]+)/([^/]+)/pull/(\d+)`)

// ParsePullRequestURL extracts owner, repo and number from a URL shaped like
// .../<owner>/<repo>/pull/<number>.
func ParsePullRequestURL(raw string) (PullRequestRef, error) {
	m := pullRequestPattern.FindStringSubmatch(raw)
	if m == nil {
		return PullRequestRef{}, fmt.Errorf("%w: malformed pull request url %q", ErrInvalidArgument, raw)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return PullRequestRef{}, fmt.Errorf("%w: bad pull request number in %q", ErrInvalidArgument, raw)
	}
	return PullRequestRef{Owner: m[1], Repo: m[2], Number: n}, nil
}

// PullRequestOracle reports the true state of a pull request. Failures wrap
// ErrOracleUnavailable.
type PullRequestOracle interface {
	IsMerged(ctx context.Context, ref PullRequestRef, credential string) (bool, error)
	IsClosed(ctx context.Context, ref PullRequestRef, credential string) (bool, error)
}

package gitlab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// NewClient creates a new GitLab client for the instance at baseURL.
func NewClient(token, baseURL string) *Client {
	return &Client{
		Token:     token,
		BaseURL:   strings.TrimSuffix(baseURL, "/"),
		UserAgent: "gitlab-artifact-cleaner",
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		Retry: DefaultRetryPolicy(),
	}
}

// WithHTTPClient returns a copy of the client using hc for requests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	nc := *c
	nc.HTTPClient = hc
	return &nc
}

// WithRetry returns a copy of the client using policy for transient failures.
func (c *Client) WithRetry(policy RetryPolicy) *Client {
	nc := *c
	nc.Retry = policy
	return &nc
}

// WithHooks returns a copy of the client reporting to hooks.
func (c *Client) WithHooks(hooks Hooks) *Client {
	nc := *c
	nc.Hooks = hooks
	return &nc
}

// GroupProjects lists every project of a group, subgroups included.
func (c *Client) GroupProjects(ctx context.Context, groupID string) ([]Project, error) {
	u := c.buildURL("/groups/"+url.PathEscape(groupID)+"/projects", map[string]string{
		"include_subgroups": "true",
		"per_page":          strconv.Itoa(MaxPageSize),
	})

	var projects []Project
	err := walkPages(ctx, c, u, func(_ string, page []Project) error {
		projects = append(projects, page...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list projects of group %s: %w", groupID, err)
	}
	return projects, nil
}

// MergeRequestStates snapshots the state of every merge request of a project.
// Records without an IID are skipped.
func (c *Client) MergeRequestStates(ctx context.Context, projectID string) (MergeRequestStates, error) {
	u := c.buildURL("/projects/"+url.PathEscape(projectID)+"/merge_requests", map[string]string{
		"scope":    "all",
		"per_page": strconv.Itoa(MaxPageSize),
		"page":     "1",
	})

	states := make(MergeRequestStates)
	err := walkPages(ctx, c, u, func(_ string, page []MergeRequest) error {
		for _, mr := range page {
			if mr.IID == 0 {
				continue
			}
			states[mr.IID] = mr.State
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list merge requests of project %s: %w", projectID, err)
	}
	return states, nil
}

// UnmergedBranches returns the names of a project's branches that are not
// yet merged.
func (c *Client) UnmergedBranches(ctx context.Context, projectID string) (BranchSet, error) {
	u := c.buildURL("/projects/"+url.PathEscape(projectID)+"/repository/branches", map[string]string{
		"per_page": strconv.Itoa(MaxPageSize),
		"page":     "1",
	})

	unmerged := make(BranchSet)
	err := walkPages(ctx, c, u, func(_ string, page []Branch) error {
		for _, b := range page {
			if !b.Merged {
				unmerged[b.Name] = struct{}{}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list branches of project %s: %w", projectID, err)
	}
	return unmerged, nil
}

// WalkJobs calls fn for every page of a project's jobs, in API order.
// A non-nil error from fn stops the walk and is returned unchanged.
func (c *Client) WalkJobs(ctx context.Context, projectID string, fn func(JobPage) error) error {
	u := c.buildURL("/projects/"+url.PathEscape(projectID)+"/jobs", map[string]string{
		"per_page": strconv.Itoa(MaxPageSize),
		"page":     "1",
	})

	n := 0
	var fnErr error
	err := walkPages(ctx, c, u, func(pageURL string, jobs []Job) error {
		n++
		if err := fn(JobPage{Number: n, URL: pageURL, Jobs: jobs}); err != nil {
			fnErr = err
			return err
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return fmt.Errorf("list jobs of project %s: %w", projectID, err)
	}
	return nil
}

// DeleteJobArtifacts deletes the artifacts of one job and returns the
// response status. A non-2xx status is returned together with a
// *StatusError.
func (c *Client) DeleteJobArtifacts(ctx context.Context, projectID string, jobID int) (int, error) {
	u := c.buildURL(fmt.Sprintf("/projects/%s/jobs/%d/artifacts", url.PathEscape(projectID), jobID), nil)

	resp, err := c.do(ctx, http.MethodDelete, u)
	if err != nil {
		var serr *StatusError
		if errors.As(err, &serr) {
			return serr.StatusCode, err
		}
		return 0, err
	}
	return resp.StatusCode, nil
}

// buildURL joins the instance URL, the API prefix, path, and query params.
// path is expected to be escaped already.
func (c *Client) buildURL(path string, params map[string]string) string {
	base := c.BaseURL
	if !strings.HasSuffix(base, DefaultAPIEndpoint) {
		base += DefaultAPIEndpoint
	}
	u := base + path
	if len(params) == 0 {
		return u
	}
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	return u + "?" + q.Encode()
}

type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do performs an authenticated request, retrying transient failures under
// the client's RetryPolicy. Non-2xx responses become *StatusError.
func (c *Client) do(ctx context.Context, method, rawURL string) (*response, error) {
	var (
		resp     *response
		attempts int
	)

	op := func() error {
		attempts++
		r, err := c.doOnce(ctx, method, rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			serr := newStatusError(method, rawURL, r.StatusCode, r.Body)
			if serr.Transient() {
				return serr
			}
			return backoff.Permanent(serr)
		}
		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		if c.Hooks.OnRetry != nil {
			c.Hooks.OnRetry(method, rawURL, err, wait)
		}
	}

	if err := backoff.RetryNotify(op, c.Retry.newBackOff(ctx), notify); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if attempts > 1 {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempts, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) doOnce(ctx context.Context, method, rawURL string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.Token)
	req.Header.Set("Accept", "application/json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	httpResp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

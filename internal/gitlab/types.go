// Package gitlab provides client and data types for the GitLab REST API.
//
// This package covers the subset of the v4 API needed to reclaim job
// artifact storage: listing a group's projects, snapshotting merge request
// and branch state, walking a project's jobs and deleting job artifacts.
package gitlab

import (
	"encoding/json"
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitLab API v4 endpoint suffix.
	DefaultAPIEndpoint = "/api/v4"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// MaxPageSize is the largest per_page value GitLab honours.
	MaxPageSize = 100

	// JobLogFilename is the trace file GitLab lists among a job's artifacts.
	// It is never counted as artifact storage.
	JobLogFilename = "job.log"
)

// Merge request states as reported by GitLab.
const (
	StateOpened = "opened"
	StateMerged = "merged"
	StateClosed = "closed"
	StateLocked = "locked"
)

// Client provides methods to interact with the GitLab REST API.
type Client struct {
	Token      string       // GitLab personal access token
	BaseURL    string       // GitLab instance URL (e.g., "https://gitlab.com")
	UserAgent  string       // Sent with every request
	HTTPClient *http.Client // Optional custom HTTP client
	Retry      RetryPolicy  // Applied to transient failures
	Hooks      Hooks        // Optional observers
}

// Hooks are optional callbacks invoked by the client. Nil fields are skipped.
type Hooks struct {
	// OnRetry is called before each retry of a transient failure.
	OnRetry func(method, url string, err error, wait time.Duration)
}

// Project represents a GitLab project.
type Project struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// MergeRequest is the part of a GitLab merge request the cleaner reads.
type MergeRequest struct {
	ID    int    `json:"id"`
	IID   int    `json:"iid"` // Project-scoped merge request number
	State string `json:"state"`
}

// Branch is a repository branch.
type Branch struct {
	Name   string `json:"name"`
	Merged bool   `json:"merged"`
}

// Job is a CI job with its artifact listing.
type Job struct {
	ID                int        `json:"id"`
	Name              string     `json:"name"`
	Ref               string     `json:"ref"` // Branch, tag, or refs/merge-requests/<iid>/head
	Status            string     `json:"status"`
	Artifacts         []Artifact `json:"artifacts"`
	ArtifactsExpireAt *time.Time `json:"artifacts_expire_at"`
}

// UnmarshalJSON decodes a job, reading a null, empty or unparseable
// artifacts_expire_at as no expiry.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var raw struct {
		plain
		ArtifactsExpireAt expiryTime `json:"artifacts_expire_at"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*j = Job(raw.plain)
	j.ArtifactsExpireAt = raw.ArtifactsExpireAt.t
	return nil
}

// expiryTime is an optional timestamp that never fails to decode.
type expiryTime struct{ t *time.Time }

func (e *expiryTime) UnmarshalJSON(data []byte) error {
	e.t = nil
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			e.t = &t
			return nil
		}
	}
	return nil
}

// Artifact is one file attached to a job.
type Artifact struct {
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	Size     int64  `json:"size"`
}

// IsLog reports whether the artifact is the job trace.
func (a Artifact) IsLog() bool {
	return a.Filename == JobLogFilename
}

// JobPage is one page of jobs as returned by the API.
type JobPage struct {
	Number int    // 1-based position in the walk
	URL    string // URL the page was fetched from
	Jobs   []Job
}

// MergeRequestStates maps a merge request IID to its state.
type MergeRequestStates map[int]string

// State returns the recorded state for iid and whether it was known.
func (m MergeRequestStates) State(iid int) (string, bool) {
	s, ok := m[iid]
	return s, ok
}

// BranchSet is a set of branch names.
type BranchSet map[string]struct{}

// NewBranchSet builds a set from names.
func NewBranchSet(names ...string) BranchSet {
	s := make(BranchSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Contains reports whether name is in the set.
func (s BranchSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

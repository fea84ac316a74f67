// Package retention decides which job artifacts may be deleted.
//
// A job's artifacts are eligible once expired. Eligibility is then refined by
// the job's ref: artifacts of an open merge request or of a branch that is
// not yet merged are retained.
package retention

import (
	"regexp"
	"strconv"
	"time"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
)

// mergeRequestRefPattern matches MR pipeline refs: refs/merge-requests/42/head
var mergeRequestRefPattern = regexp.MustCompile(`refs/merge-requests/(\d+)/head`)

// Reason explains a Decision.
type Reason string

const (
	ReasonNoArtifacts    Reason = "no-artifacts"
	ReasonNotExpired     Reason = "not-expired"
	ReasonExpired        Reason = "expired" // merge request checks skipped
	ReasonMRMerged       Reason = "mr-merged"
	ReasonMRClosed       Reason = "mr-closed"
	ReasonMRUnknown      Reason = "mr-unknown"
	ReasonMROpen         Reason = "mr-open"
	ReasonBranchMerged   Reason = "branch-merged"
	ReasonBranchUnmerged Reason = "branch-unmerged"
)

// Tally counts artifacts and their size in bytes.
type Tally struct {
	Count int
	Bytes int64
}

// Add accumulates o into t.
func (t *Tally) Add(o Tally) {
	t.Count += o.Count
	t.Bytes += o.Bytes
}

// Sub returns t minus o.
func (t Tally) Sub(o Tally) Tally {
	return Tally{Count: t.Count - o.Count, Bytes: t.Bytes - o.Bytes}
}

// Decision is the outcome of evaluating one job.
type Decision struct {
	Delete  bool
	Reason  Reason
	Present Tally // Artifacts stored, job.log excluded
	Expired Tally // Subset of Present past expiry
}

// Reclaimed is what deleting the job frees; zero unless Delete is set.
func (d Decision) Reclaimed() Tally {
	if !d.Delete {
		return Tally{}
	}
	return d.Expired
}

// Policy holds the inputs that are fixed for a run.
type Policy struct {
	// Now is the reference time for expiry comparisons.
	Now time.Time
	// IgnoreExpiry treats every artifact as expired.
	IgnoreExpiry bool
	// IgnoreMergeRequests skips the merge request and branch checks.
	IgnoreMergeRequests bool
}

// Evaluate decides whether job's artifacts are deleted. mrs and unmerged are
// the project's snapshots; either may be nil.
func (p Policy) Evaluate(job gitlab.Job, mrs gitlab.MergeRequestStates, unmerged gitlab.BranchSet) Decision {
	d := Decision{Reason: ReasonNoArtifacts}
	if len(job.Artifacts) == 0 {
		return d
	}

	expired := p.expired(job.ArtifactsExpireAt)
	for _, a := range job.Artifacts {
		if a.IsLog() {
			continue
		}
		d.Present.Add(Tally{Count: 1, Bytes: a.Size})
		if expired {
			d.Expired.Add(Tally{Count: 1, Bytes: a.Size})
		}
	}

	switch {
	case d.Present.Count == 0:
		return d
	case d.Expired.Count == 0:
		d.Reason = ReasonNotExpired
		return d
	case p.IgnoreMergeRequests:
		d.Delete = true
		d.Reason = ReasonExpired
		return d
	}

	d.Reason = refReason(job.Ref, mrs, unmerged)
	switch d.Reason {
	case ReasonMROpen, ReasonBranchUnmerged:
		d.Delete = false
	default:
		d.Delete = true
	}
	return d
}

// expired reports whether artifacts with the given expiry are past it.
// A missing expiry counts as expired.
func (p Policy) expired(expireAt *time.Time) bool {
	return p.IgnoreExpiry || expireAt == nil || expireAt.Before(p.Now)
}

func refReason(ref string, mrs gitlab.MergeRequestStates, unmerged gitlab.BranchSet) Reason {
	if iid, ok := MergeRequestIID(ref); ok {
		state, known := mrs.State(iid)
		switch {
		case !known:
			return ReasonMRUnknown
		case state == gitlab.StateMerged:
			return ReasonMRMerged
		case state == gitlab.StateClosed:
			return ReasonMRClosed
		default:
			return ReasonMROpen
		}
	}
	if unmerged.Contains(ref) {
		return ReasonBranchUnmerged
	}
	return ReasonBranchMerged
}

// MergeRequestIID extracts the MR number from a merge request head ref.
func MergeRequestIID(ref string) (int, bool) {
	m := mergeRequestRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return 0, false
	}
	iid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return iid, true
}

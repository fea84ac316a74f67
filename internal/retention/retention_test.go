package retention_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/retention"
)

var now = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func buildZip(size int64) gitlab.Artifact {
	return gitlab.Artifact{Filename: "build.zip", FileType: "archive", Size: size}
}

func jobLog(size int64) gitlab.Artifact {
	return gitlab.Artifact{Filename: "job.log", FileType: "trace", Size: size}
}

func TestEvaluateNoArtifacts(t *testing.T) {
	policies := []retention.Policy{
		{Now: now},
		{Now: now, IgnoreExpiry: true},
		{Now: now, IgnoreMergeRequests: true},
		{Now: now, IgnoreExpiry: true, IgnoreMergeRequests: true},
	}
	for _, p := range policies {
		d := p.Evaluate(gitlab.Job{ID: 1, Ref: "main"}, nil, nil)
		assert.False(t, d.Delete)
		assert.Equal(t, retention.ReasonNoArtifacts, d.Reason)
		assert.Zero(t, d.Present)
		assert.Zero(t, d.Expired)
	}
}

func TestEvaluateExcludesJobLog(t *testing.T) {
	p := retention.Policy{Now: now, IgnoreExpiry: true, IgnoreMergeRequests: true}

	onlyLog := p.Evaluate(gitlab.Job{Ref: "main", Artifacts: []gitlab.Artifact{jobLog(4096)}}, nil, nil)
	assert.False(t, onlyLog.Delete, "a job with only its log has nothing to delete")
	assert.Zero(t, onlyLog.Present)
	assert.Zero(t, onlyLog.Expired)

	mixed := p.Evaluate(gitlab.Job{Ref: "main", Artifacts: []gitlab.Artifact{jobLog(4096), buildZip(100)}}, nil, nil)
	assert.True(t, mixed.Delete)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 100}, mixed.Present)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 100}, mixed.Expired)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 100}, mixed.Reclaimed())
}

func TestEvaluateExpiry(t *testing.T) {
	tests := []struct {
		name         string
		expireAt     *time.Time
		ignoreExpiry bool
		wantExpired  bool
	}{
		{name: "no expiry timestamp", expireAt: nil, wantExpired: true},
		{name: "expiry in the past", expireAt: at(-time.Minute), wantExpired: true},
		{name: "expiry equal to now is not past", expireAt: at(0), wantExpired: false},
		{name: "expiry in the future", expireAt: at(time.Hour), wantExpired: false},
		{name: "future expiry with override", expireAt: at(time.Hour), ignoreExpiry: true, wantExpired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := retention.Policy{Now: now, IgnoreExpiry: tt.ignoreExpiry, IgnoreMergeRequests: true}
			job := gitlab.Job{Ref: "main", ArtifactsExpireAt: tt.expireAt, Artifacts: []gitlab.Artifact{buildZip(10), buildZip(20)}}

			d := p.Evaluate(job, nil, nil)
			assert.Equal(t, tt.wantExpired, d.Delete)
			assert.Equal(t, retention.Tally{Count: 2, Bytes: 30}, d.Present)
			if tt.wantExpired {
				assert.Equal(t, retention.Tally{Count: 2, Bytes: 30}, d.Expired)
			} else {
				assert.Zero(t, d.Expired)
				assert.Equal(t, retention.ReasonNotExpired, d.Reason)
			}
		})
	}
}

func TestEvaluateMergeRequestRefs(t *testing.T) {
	mrs := gitlab.MergeRequestStates{
		42: gitlab.StateOpened,
		43: gitlab.StateMerged,
		44: gitlab.StateClosed,
		45: gitlab.StateLocked,
	}

	tests := []struct {
		ref        string
		wantDelete bool
		wantReason retention.Reason
	}{
		{"refs/merge-requests/42/head", false, retention.ReasonMROpen},
		{"refs/merge-requests/43/head", true, retention.ReasonMRMerged},
		{"refs/merge-requests/44/head", true, retention.ReasonMRClosed},
		{"refs/merge-requests/45/head", false, retention.ReasonMROpen},
		{"refs/merge-requests/99/head", true, retention.ReasonMRUnknown},
	}

	p := retention.Policy{Now: now}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			job := gitlab.Job{Ref: tt.ref, Artifacts: []gitlab.Artifact{buildZip(1024)}}
			d := p.Evaluate(job, mrs, nil)

			assert.Equal(t, tt.wantDelete, d.Delete)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, retention.Tally{Count: 1, Bytes: 1024}, d.Expired)
			if tt.wantDelete {
				assert.Equal(t, d.Expired, d.Reclaimed())
			} else {
				assert.Zero(t, d.Reclaimed())
			}
		})
	}
}

// An open merge request keeps its artifacts even though they are expired.
// Only IgnoreMergeRequests lets them go.
func TestEvaluateOpenMergeRequestRetained(t *testing.T) {
	mrs := gitlab.MergeRequestStates{42: gitlab.StateOpened}
	job := gitlab.Job{Ref: "refs/merge-requests/42/head", Artifacts: []gitlab.Artifact{buildZip(1)}}

	kept := retention.Policy{Now: now}.Evaluate(job, mrs, nil)
	assert.False(t, kept.Delete)
	assert.Zero(t, kept.Reclaimed())

	forced := retention.Policy{Now: now, IgnoreMergeRequests: true}.Evaluate(job, mrs, nil)
	assert.True(t, forced.Delete)
	assert.Equal(t, retention.ReasonExpired, forced.Reason)
}

func TestEvaluateBranchRefs(t *testing.T) {
	unmerged := gitlab.NewBranchSet("feature/wip")
	p := retention.Policy{Now: now}

	wip := p.Evaluate(gitlab.Job{Ref: "feature/wip", Artifacts: []gitlab.Artifact{buildZip(5)}}, nil, unmerged)
	assert.False(t, wip.Delete)
	assert.Equal(t, retention.ReasonBranchUnmerged, wip.Reason)
	assert.Zero(t, wip.Reclaimed())

	done := p.Evaluate(gitlab.Job{Ref: "feature/done", Artifacts: []gitlab.Artifact{buildZip(5)}}, nil, unmerged)
	assert.True(t, done.Delete)
	assert.Equal(t, retention.ReasonBranchMerged, done.Reason)
}

// A single job on a merged branch with no expiry is deleted in full.
func TestEvaluateMergedBranchWithoutExpiry(t *testing.T) {
	job := gitlab.Job{ID: 1, Ref: "main", Artifacts: []gitlab.Artifact{buildZip(1048576)}}

	d := retention.Policy{Now: now}.Evaluate(job, gitlab.MergeRequestStates{}, gitlab.BranchSet{})
	require.True(t, d.Delete)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 1048576}, d.Present)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 1048576}, d.Reclaimed())

	job.ArtifactsExpireAt = at(time.Hour)
	d = retention.Policy{Now: now}.Evaluate(job, gitlab.MergeRequestStates{}, gitlab.BranchSet{})
	assert.False(t, d.Delete)
	assert.Equal(t, retention.Tally{Count: 1, Bytes: 1048576}, d.Present)
	assert.Zero(t, d.Reclaimed())
}

func TestMergeRequestIID(t *testing.T) {
	tests := []struct {
		ref    string
		want   int
		wantOK bool
	}{
		{"refs/merge-requests/42/head", 42, true},
		{"refs/merge-requests/7/merge", 0, false},
		{"main", 0, false},
		{"refs/merge-requests//head", 0, false},
	}
	for _, tt := range tests {
		got, ok := retention.MergeRequestIID(tt.ref)
		assert.Equal(t, tt.wantOK, ok, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}
}

func TestTally(t *testing.T) {
	var total retention.Tally
	total.Add(retention.Tally{Count: 2, Bytes: 300})
	total.Add(retention.Tally{Count: 1, Bytes: 100})
	assert.Equal(t, retention.Tally{Count: 3, Bytes: 400}, total)
	assert.Equal(t, retention.Tally{Count: 2, Bytes: 300}, total.Sub(retention.Tally{Count: 1, Bytes: 100}))
}

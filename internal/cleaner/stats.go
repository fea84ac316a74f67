package cleaner

import "github.com/steveyegge/gitlab-artifact-cleaner/internal/retention"

// ProjectStats accumulates over one project's jobs. Counters start at zero
// for every project.
type ProjectStats struct {
	ProjectID string
	Jobs      int
	Present   retention.Tally // Before cleaning, job.log excluded
	Deleted   retention.Tally // Confirmed (or, in dry-run, projected) deletions
	Failed    int             // Deletions the server rejected
}

// Remaining is what is left stored after cleaning.
func (s ProjectStats) Remaining() retention.Tally {
	return s.Present.Sub(s.Deleted)
}

// Totals sums ProjectStats over a run.
type Totals struct {
	Projects int
	Jobs     int
	Present  retention.Tally
	Deleted  retention.Tally
	Failed   int
}

// Add folds one project's stats into the totals.
func (t *Totals) Add(s ProjectStats) {
	t.Projects++
	t.Jobs += s.Jobs
	t.Present.Add(s.Present)
	t.Deleted.Add(s.Deleted)
	t.Failed += s.Failed
}

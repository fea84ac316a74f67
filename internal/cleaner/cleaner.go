// Package cleaner walks GitLab projects and deletes the job artifacts the
// retention policy releases, keeping per-project and overall accounts.
package cleaner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/retention"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/telemetry"
)

// Client is the part of the GitLab API a Runner needs.
type Client interface {
	GroupProjects(ctx context.Context, groupID string) ([]gitlab.Project, error)
	MergeRequestStates(ctx context.Context, projectID string) (gitlab.MergeRequestStates, error)
	UnmergedBranches(ctx context.Context, projectID string) (gitlab.BranchSet, error)
	WalkJobs(ctx context.Context, projectID string, fn func(gitlab.JobPage) error) error
	DeleteJobArtifacts(ctx context.Context, projectID string, jobID int) (int, error)
}

// Reporter receives progress for user-facing output.
type Reporter interface {
	ProjectsFound(n int)
	ProjectStarted(projectID string)
	JobDeleted(projectID string, jobID, status int)
	PageProcessed(projectID string, page gitlab.JobPage)
	ProjectFinished(stats ProjectStats)
	Finished(totals Totals)
}

// Target selects what to clean: a group (with subgroups) or one project.
type Target struct {
	GroupID   string
	ProjectID string
}

// Validate checks that exactly one of GroupID and ProjectID is set.
func (t Target) Validate() error {
	switch {
	case t.GroupID == "" && t.ProjectID == "":
		return errors.New("one of group-id or project-id is required")
	case t.GroupID != "" && t.ProjectID != "":
		return errors.New("group-id and project-id are mutually exclusive")
	}
	return nil
}

// Options configure a Runner.
type Options struct {
	Policy   retention.Policy
	DryRun   bool // Evaluate and count, but never delete
	Logger   *slog.Logger
	Reporter Reporter
}

// Runner runs one cleaning pass. It is not safe for concurrent use.
type Runner struct {
	client  Client
	policy  retention.Policy
	dryRun  bool
	log     *slog.Logger
	report  Reporter
	tracer  trace.Tracer
	metrics runMetrics
}

// New returns a Runner using client for all API calls.
func New(client Client, opts Options) *Runner {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	report := opts.Reporter
	if report == nil {
		report = nopReporter{}
	}
	return &Runner{
		client:  client,
		policy:  opts.Policy,
		dryRun:  opts.DryRun,
		log:     log,
		report:  report,
		tracer:  telemetry.Tracer(""),
		metrics: newRunMetrics(telemetry.Meter("")),
	}
}

// Run cleans every project of target in order and returns the totals.
// The first fatal error stops the run; deletions already made stand.
func (r *Runner) Run(ctx context.Context, target Target) (Totals, error) {
	var totals Totals
	if err := target.Validate(); err != nil {
		return totals, err
	}

	projectIDs, err := r.projectIDs(ctx, target)
	if err != nil {
		return totals, err
	}
	r.report.ProjectsFound(len(projectIDs))

	for _, id := range projectIDs {
		stats, err := r.cleanProject(ctx, id)
		if err != nil {
			return totals, fmt.Errorf("project %s: %w", id, err)
		}
		totals.Add(stats)
		r.report.ProjectFinished(stats)
	}

	r.report.Finished(totals)
	return totals, nil
}

func (r *Runner) projectIDs(ctx context.Context, target Target) ([]string, error) {
	if target.ProjectID != "" {
		return []string{target.ProjectID}, nil
	}
	projects, err := r.client.GroupProjects(ctx, target.GroupID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, strconv.Itoa(p.ID))
	}
	return ids, nil
}

func (r *Runner) cleanProject(ctx context.Context, projectID string) (stats ProjectStats, err error) {
	ctx, span := r.tracer.Start(ctx, "cleaner.project",
		trace.WithAttributes(attribute.String("gitlab.project_id", projectID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	stats.ProjectID = projectID
	r.report.ProjectStarted(projectID)
	log := r.log.With("project", projectID)

	var (
		mrs      gitlab.MergeRequestStates
		unmerged gitlab.BranchSet
	)
	if !r.policy.IgnoreMergeRequests {
		if mrs, err = r.client.MergeRequestStates(ctx, projectID); err != nil {
			return stats, err
		}
		if unmerged, err = r.client.UnmergedBranches(ctx, projectID); err != nil {
			return stats, err
		}
		log.Debug("indexed refs", "merge_requests", len(mrs), "unmerged_branches", len(unmerged))
	}

	projectAttr := metric.WithAttributes(attribute.String("gitlab.project_id", projectID))
	err = r.client.WalkJobs(ctx, projectID, func(page gitlab.JobPage) error {
		for _, job := range page.Jobs {
			stats.Jobs++
			r.metrics.jobs.Add(ctx, 1, projectAttr)

			d := r.policy.Evaluate(job, mrs, unmerged)
			stats.Present.Add(d.Present)
			log.Debug("evaluated job",
				"job", job.ID, "ref", job.Ref, "delete", d.Delete, "reason", d.Reason,
				"artifacts", d.Present.Count, "expired", d.Expired.Count)

			if d.Delete {
				if err := r.deleteArtifacts(ctx, log, &stats, job, d); err != nil {
					return err
				}
			}
		}
		r.report.PageProcessed(projectID, page)
		return nil
	})
	return stats, err
}

// deleteArtifacts removes one job's artifacts and books the result. Only a
// cancelled context is fatal; a rejected deletion is counted and skipped.
func (r *Runner) deleteArtifacts(ctx context.Context, log *slog.Logger, stats *ProjectStats, job gitlab.Job, d retention.Decision) error {
	freed := d.Reclaimed()
	attrs := metric.WithAttributes(attribute.String("gitlab.project_id", stats.ProjectID))

	if r.dryRun {
		log.Debug("would delete artifacts", "job", job.ID, "bytes", freed.Bytes)
		stats.Deleted.Add(freed)
		return nil
	}

	status, err := r.client.DeleteJobArtifacts(ctx, stats.ProjectID, job.ID)
	r.report.JobDeleted(stats.ProjectID, job.ID, status)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("delete artifacts failed", "job", job.ID, "status", status, "error", err)
		stats.Failed++
		r.metrics.failures.Add(ctx, 1, attrs)
		return nil
	}

	stats.Deleted.Add(freed)
	r.metrics.deleted.Add(ctx, int64(freed.Count), attrs)
	r.metrics.reclaimed.Add(ctx, freed.Bytes, attrs)
	return nil
}

type nopReporter struct{}

func (nopReporter) ProjectsFound(int)                    {}
func (nopReporter) ProjectStarted(string)                {}
func (nopReporter) JobDeleted(string, int, int)          {}
func (nopReporter) PageProcessed(string, gitlab.JobPage) {}
func (nopReporter) ProjectFinished(ProjectStats)         {}
func (nopReporter) Finished(Totals)                      {}

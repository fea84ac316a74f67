package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/cleaner"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
)

const bytesPerMB = 1024 * 1024

// MB converts bytes to mebibytes.
func MB(bytes int64) float64 {
	return float64(bytes) / bytesPerMB
}

// ReportOptions configure a Report.
type ReportOptions struct {
	// Live rewrites a single progress line in place. Use it only when out
	// is a terminal.
	Live bool
	// DryRun labels post-cleaning figures as projected.
	DryRun bool
}

// Report writes human-readable progress and summaries. It implements
// cleaner.Reporter.
type Report struct {
	out     io.Writer
	opts    ReportOptions
	styles  Styles
	pending bool // a live progress line is on screen
}

var _ cleaner.Reporter = (*Report)(nil)

// NewReport returns a Report writing to out. Colors follow ShouldUseColor.
func NewReport(out io.Writer, opts ReportOptions) *Report {
	r := lipgloss.NewRenderer(out)
	applyColor(r)
	return &Report{out: out, opts: opts, styles: NewStyles(r)}
}

// NewAutoReport is NewReport with Live enabled when out is a terminal.
func NewAutoReport(out io.Writer, dryRun bool) *Report {
	return NewReport(out, ReportOptions{Live: isTerminalWriter(out), DryRun: dryRun})
}

// Banner announces overrides that change what gets deleted.
func (r *Report) Banner(ignoreExpiry, ignoreMR bool) {
	if r.opts.DryRun {
		fmt.Fprintln(r.out, r.styles.Accent.Render("Dry run: no artifacts will be deleted."))
	}
	if ignoreExpiry {
		fmt.Fprintln(r.out, r.styles.Warn.Render(IconWarn+" Executed with ignoring expiry date."))
	}
	if ignoreMR {
		fmt.Fprintln(r.out, r.styles.Warn.Render(IconWarn+" Executed with ignoring existing MRs."))
	}
}

func (r *Report) ProjectsFound(n int) {
	fmt.Fprintf(r.out, "Number of projects found: %d\n", n)
}

func (r *Report) ProjectStarted(projectID string) {
	fmt.Fprintln(r.out, r.styles.Category.Render(fmt.Sprintf("Processing project %s:", projectID)))
}

func (r *Report) JobDeleted(_ string, jobID, status int) {
	if !r.opts.Live {
		return
	}
	r.progress(fmt.Sprintf("Processing job ID: %d - status: %d", jobID, status))
}

func (r *Report) PageProcessed(_ string, page gitlab.JobPage) {
	if !r.opts.Live {
		return
	}
	r.progress(fmt.Sprintf("Processed page %d (%d jobs).", page.Number, len(page.Jobs)))
}

func (r *Report) ProjectFinished(s cleaner.ProjectStats) {
	r.endProgress()
	post := s.Remaining()

	postLabel := "Post"
	if r.opts.DryRun {
		postLabel = "Projected post"
	}
	r.row("Jobs analysed", fmt.Sprintf("%d", s.Jobs))
	r.row("Pre artifact count", fmt.Sprintf("%d", s.Present.Count))
	r.row("Pre artifact size [MB]", fmt.Sprintf("%.2f", MB(s.Present.Bytes)))
	r.row(postLabel+" artifact count", fmt.Sprintf("%d", post.Count))
	r.row(postLabel+" artifact size [MB]", fmt.Sprintf("%.2f", MB(post.Bytes)))
	if s.Failed > 0 {
		fmt.Fprintf(r.out, "%s %s\n",
			r.styles.Fail.Render(IconFail+" Failed deletions:"),
			r.styles.Fail.Render(fmt.Sprintf("%d", s.Failed)))
	}
	fmt.Fprintln(r.out)
}

func (r *Report) Finished(t cleaner.Totals) {
	r.endProgress()
	label := "Overall savings [MB]:"
	if r.opts.DryRun {
		label = "Projected savings [MB]:"
	}
	fmt.Fprintln(r.out, r.styles.Muted.Render(SeparatorLight))
	fmt.Fprintf(r.out, "%s %s\n",
		r.styles.Pass.Render(IconPass+" "+label),
		r.styles.Pass.Render(fmt.Sprintf("%.2f", MB(t.Deleted.Bytes))))
	if t.Failed > 0 {
		fmt.Fprintln(r.out, r.styles.Fail.Render(fmt.Sprintf("%s %d deletions failed; see log for details.", IconFail, t.Failed)))
	}
}

func (r *Report) row(label, value string) {
	fmt.Fprintf(r.out, "%s %s\n", r.styles.Muted.Render(label+":"), value)
}

// progress replaces the live line with text.
func (r *Report) progress(text string) {
	fmt.Fprintf(r.out, "\r%s\033[K", text)
	r.pending = true
}

func (r *Report) endProgress() {
	if r.pending {
		fmt.Fprintln(r.out)
		r.pending = false
	}
}

package cleaner

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/telemetry"
)

type runMetrics struct {
	jobs      metric.Int64Counter
	deleted   metric.Int64Counter
	reclaimed metric.Int64Counter
	failures  metric.Int64Counter
}

func newRunMetrics(m metric.Meter) runMetrics {
	return runMetrics{
		jobs:      telemetry.Int64Counter(m, "glac.jobs.evaluated", "Jobs evaluated against the retention policy", "{job}"),
		deleted:   telemetry.Int64Counter(m, "glac.artifacts.deleted", "Artifacts deleted", "{artifact}"),
		reclaimed: telemetry.Int64Counter(m, "glac.artifacts.reclaimed_bytes", "Artifact storage reclaimed", "By"),
		failures:  telemetry.Int64Counter(m, "glac.artifacts.delete_failures", "Artifact deletions rejected by the server", "{job}"),
	}
}

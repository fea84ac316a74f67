package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/steveyegge/gitlab-artifact-cleaner/internal/cleaner"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/config"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/gitlab"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/retention"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/telemetry"
	"github.com/steveyegge/gitlab-artifact-cleaner/internal/ui"
)

const serviceName = "gitlab-artifact-cleaner"

func runClean(ctx context.Context, cfg config.Config, log *slog.Logger, stdout io.Writer) error {
	now, err := cfg.Reference(time.Now())
	if err != nil {
		return fmt.Errorf("as-of: %w", err)
	}

	if err := telemetry.Init(ctx, serviceName, Version); err != nil {
		log.Warn("telemetry disabled", "error", err)
	}
	defer telemetry.Shutdown(context.Background())

	report := ui.NewAutoReport(stdout, cfg.DryRun)
	report.Banner(cfg.IgnoreExpire, cfg.IgnoreMR)
	if cfg.AsOf != "" {
		log.Info("checking expiry against reference time", "as_of", now.Format(time.RFC3339))
	}

	runner := cleaner.New(newGitLabClient(cfg, log), cleaner.Options{
		Policy: retention.Policy{
			Now:                 now,
			IgnoreExpiry:        cfg.IgnoreExpire,
			IgnoreMergeRequests: cfg.IgnoreMR,
		},
		DryRun:   cfg.DryRun,
		Logger:   log,
		Reporter: report,
	})
	_, err = runner.Run(ctx, cleaner.Target{GroupID: cfg.GroupID, ProjectID: cfg.ProjectID})
	return err
}

func newGitLabClient(cfg config.Config, log *slog.Logger) *gitlab.Client {
	retries := telemetry.Int64Counter(telemetry.Meter(""),
		"glac.http.retries", "GitLab API requests retried after a transient failure", "{retry}")

	c := gitlab.NewClient(cfg.Token, cfg.Server).
		WithHTTPClient(&http.Client{
			Timeout:   cfg.HTTP.Timeout,
			Transport: telemetry.WrapTransport(nil),
		}).
		WithRetry(cfg.RetryPolicy()).
		WithHooks(gitlab.Hooks{
			OnRetry: func(method, url string, err error, wait time.Duration) {
				log.Warn("retrying request", "method", method, "url", url, "error", err, "wait", wait)
				retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("http.request.method", method)))
			},
		})
	c.UserAgent = serviceName + "/" + Version
	return c
}

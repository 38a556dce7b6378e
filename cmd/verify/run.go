package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/browser"
	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/evidence"
	"github.com/kuitang/pillbridge-verify/internal/journey"
	"github.com/kuitang/pillbridge-verify/internal/notify"
	"github.com/kuitang/pillbridge-verify/internal/obs"
	"github.com/kuitang/pillbridge-verify/internal/report"
)

// session is a launched browser page.
type session interface {
	journey.Page
	Close() error
}

// deps holds the collaborators a run needs, so tests can swap the browser,
// the bucket and the mailer.
type deps struct {
	launch      func(ctx context.Context, opts browser.Options) (session, error)
	newBucket   func(ctx context.Context, cfg evidence.BucketConfig) (*evidence.Bucket, error)
	newNotifier func(cfg config.NotifyConfig) notify.Notifier
	sleep       func(ctx context.Context, d time.Duration) error
}

func defaultDeps() *deps {
	return &deps{
		launch: func(ctx context.Context, opts browser.Options) (session, error) {
			s, err := browser.Launch(ctx, opts)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		newBucket: evidence.NewBucket,
		newNotifier: func(cfg config.NotifyConfig) notify.Notifier {
			return notify.NewResendNotifier(cfg.ResendAPIKey, cfg.From, cfg.To)
		},
	}
}

// runJourneys runs each journey in its own browser. A failure does not stop
// later journeys; every failure is returned.
func runJourneys(ctx context.Context, out io.Writer, cfg *config.Config, d *deps, js []journey.Journey) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg.PrintSummary()

	saver, err := newSaver(ctx, cfg, d)
	if err != nil {
		return err
	}
	var notifier notify.Notifier
	if cfg.Notify.Enabled() {
		notifier = d.newNotifier(cfg.Notify)
	}

	runID := obs.NewRunID()
	var failures []error
	for _, j := range js {
		res, err := runOne(ctx, out, cfg, d, saver, runID, j)
		if res != nil {
			finish(ctx, out, cfg, notifier, res)
		}
		if err != nil {
			failures = append(failures, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(failures...)
}

func runOne(ctx context.Context, out io.Writer, cfg *config.Config, d *deps, saver evidence.Saver, runID string, j journey.Journey) (*journey.Result, error) {
	page, err := d.launch(ctx, browser.Options{
		Headless:       cfg.Headless,
		DefaultTimeout: cfg.StepTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", j.Name, err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			obs.From(ctx).Warn("browser close failed", "journey", j.Name, "error", cerr)
		}
	}()

	env := journey.Env{
		TargetURL:         cfg.TargetURL,
		AIResponseTimeout: cfg.AIResponseTimeout,
	}
	if cfg.UniqueEmails {
		env.EmailSuffix = journey.NewEmailSuffix()
	}

	r := &journey.Runner{
		Page:     page,
		Evidence: saver,
		Out:      out,
		Sleep:    d.sleep,
		RunID:    runID,
	}
	return r.Run(ctx, j, env)
}

// finish writes the report, emails it and prints the one-line outcome.
// Failures here are logged and do not change the journey's outcome.
func finish(ctx context.Context, out io.Writer, cfg *config.Config, notifier notify.Notifier, res *journey.Result) {
	ctx = obs.WithRun(ctx, res.RunID, res.Journey)
	var body string
	if cfg.WriteReport || notifier != nil {
		rendered, err := report.Render(res)
		if err != nil {
			obs.From(ctx).Warn("report render failed", "error", err)
		}
		body = rendered
	}
	if cfg.WriteReport {
		if path, err := report.WriteFile(cfg.OutputDir, res); err != nil {
			obs.From(ctx).Warn("report write failed", "error", err)
		} else {
			obs.From(ctx).Info("report written", "path", path)
		}
	}
	if notifier != nil {
		if err := notifier.Send(ctx, res, body); err != nil {
			obs.From(ctx).Warn("report email failed", "error", err)
		}
	}

	if res.OK() {
		fmt.Fprintf(out, "PASS %s (%s) %s\n", res.Journey, res.Duration().Round(time.Millisecond), res.Screenshot)
		return
	}
	fmt.Fprintf(out, "FAIL %s at %q: %v\n", res.Journey, res.FailedStep(), res.Err)
}

func newSaver(ctx context.Context, cfg *config.Config, d *deps) (evidence.Saver, error) {
	local := evidence.NewFileStore(cfg.OutputDir)
	if !cfg.Evidence.Enabled() {
		return local, nil
	}
	bucket, err := d.newBucket(ctx, evidence.BucketConfig{
		Endpoint:        cfg.Evidence.Endpoint,
		Region:          cfg.Evidence.Region,
		AccessKeyID:     cfg.Evidence.AccessKeyID,
		SecretAccessKey: cfg.Evidence.SecretAccessKey,
		BucketName:      cfg.Evidence.Bucket,
		UsePathStyle:    cfg.Evidence.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	return evidence.NewS3Mirror(local, bucket, cfg.Evidence.Prefix), nil
}

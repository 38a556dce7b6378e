package journey

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/logutil"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Runner executes journeys against one Page.
type Runner struct {
	Page     Page
	Evidence Evidence
	// Out receives short progress lines. Nil discards them.
	Out io.Writer
	// Sleep waits for settle steps. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// RunID correlates logs, evidence keys and reports. Empty generates one.
	RunID string

	now func() time.Time
}

// Run executes every step of j in order and stops at the first failure.
// The returned Result is never nil; its Err equals the returned error.
func (r *Runner) Run(ctx context.Context, j Journey, env Env) (*Result, error) {
	now := r.now
	if now == nil {
		now = time.Now
	}
	ctx = obs.WithRun(ctx, r.RunID, j.Name)
	corr := obs.CorrelationFromContext(ctx)
	logger := obs.From(ctx)

	res := &Result{Journey: j.Name, RunID: corr.RunID, Started: now()}
	st := &State{
		Page:           r.Page,
		Env:            env,
		evidence:       r.Evidence,
		screenshotName: j.Screenshot,
		sleep:          r.sleep,
	}

	steps := j.Build(env)
	logger.Info("journey start", "target", env.TargetURL, "steps", len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			res.Err = errs.Wrap(errs.Canceled, fmt.Sprintf("%s canceled before %q", j.Name, step.Name), err)
			break
		}
		stepCtx := obs.WithStep(ctx, step.Name)
		if step.Say != "" {
			r.say(step.Say)
		}

		started := now()
		err := step.Do(stepCtx, st)
		sr := StepResult{Name: step.Name, Duration: now().Sub(started)}
		if err != nil {
			sr.Err = err
			res.Steps = append(res.Steps, sr)
			res.Err = errs.Wrap(errs.StepFailed, fmt.Sprintf("%s: step %q failed", j.Name, step.Name), err)
			obs.From(stepCtx).Error("step failed", "duration_ms", sr.Duration.Milliseconds(), "error", err)
			break
		}
		res.Steps = append(res.Steps, sr)
		obs.From(stepCtx).Debug("step ok", append(step.logAttrs(), "duration_ms", sr.Duration.Milliseconds())...)
		if step.Done != "" {
			r.say(step.Done)
		}
	}

	res.Screenshot = st.ScreenshotPath
	res.Finished = now()
	if res.Err != nil {
		logger.Error("journey failed", "failed_step", res.FailedStep(), "duration_ms", res.Duration().Milliseconds())
		return res, res.Err
	}
	logger.Info("journey passed", "screenshot", res.Screenshot, "duration_ms", res.Duration().Milliseconds())
	return res, nil
}

func (r *Runner) say(line string) {
	if r.Out == nil {
		return
	}
	fmt.Fprintln(r.Out, line)
}

func (r *Runner) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return errs.Wrap(errs.Canceled, "settle interrupted", ctx.Err())
	case <-t.C:
		return nil
	}
}

func (s Step) logAttrs() []any {
	attrs := make([]any, 0, len(s.Fields)*2)
	for k, v := range s.Fields {
		attrs = append(attrs, k, logutil.RedactValue(k, v))
	}
	return attrs
}

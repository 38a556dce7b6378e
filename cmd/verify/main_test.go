package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/pillbridge-verify/internal/browser"
	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/evidence"
	"github.com/kuitang/pillbridge-verify/internal/journey"
	"github.com/kuitang/pillbridge-verify/internal/notify"
	"github.com/kuitang/pillbridge-verify/internal/report"
)

var fakePNG = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// scriptedPage succeeds at everything unless an action mentions failOn.
type scriptedPage struct {
	mu     sync.Mutex
	failOn string
	calls  []string
	closed bool
}

func (p *scriptedPage) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.failOn != "" && strings.Contains(call, p.failOn) {
		return errs.New(errs.Timeout, call+" timed out")
	}
	return nil
}

func (p *scriptedPage) Goto(_ context.Context, url string) error { return p.record("goto " + url) }
func (p *scriptedPage) ClickText(_ context.Context, t string) error {
	return p.record("click text " + t)
}
func (p *scriptedPage) ClickFirstText(_ context.Context, t string) error {
	return p.record("click first " + t)
}
func (p *scriptedPage) ClickButton(_ context.Context, n string) error {
	return p.record("click button " + n)
}
func (p *scriptedPage) FillLabel(_ context.Context, l, _ string) error {
	return p.record("fill label " + l)
}
func (p *scriptedPage) FillPlaceholder(_ context.Context, ph, _ string) error {
	return p.record("fill placeholder " + ph)
}
func (p *scriptedPage) ExpectText(_ context.Context, t string, _ time.Duration) error {
	return p.record("expect text " + t)
}
func (p *scriptedPage) ExpectSelector(_ context.Context, s string, _ time.Duration) error {
	return p.record("expect " + s)
}
func (p *scriptedPage) ExpectNotEmpty(_ context.Context, s string, _ time.Duration) error {
	return p.record("not empty " + s)
}
func (p *scriptedPage) InnerText(_ context.Context, s string) (string, error) {
	if err := p.record("inner text " + s); err != nil {
		return "", err
	}
	if s == journey.CaregiverCodeSelector {
		return " abc123 ", nil
	}
	return "Paracetamol is not listed.", nil
}
func (p *scriptedPage) ClearSession(context.Context) error { return p.record("clear session") }
func (p *scriptedPage) Screenshot(context.Context, bool) ([]byte, error) {
	if err := p.record("screenshot"); err != nil {
		return nil, err
	}
	return fakePNG, nil
}
func (p *scriptedPage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type harness struct {
	out      string
	pages    []*scriptedPage
	failOn   string
	notifier *notify.MockNotifier
	bucket   *evidence.Bucket
	launched []browser.Options
}

func (h *harness) deps(t *testing.T) *deps {
	return &deps{
		launch: func(_ context.Context, opts browser.Options) (session, error) {
			h.launched = append(h.launched, opts)
			p := &scriptedPage{failOn: h.failOn}
			h.pages = append(h.pages, p)
			return p, nil
		},
		newBucket: func(context.Context, evidence.BucketConfig) (*evidence.Bucket, error) {
			if h.bucket == nil {
				h.bucket = evidence.TestBucket(t, "evidence")
			}
			return h.bucket, nil
		},
		newNotifier: func(cfg config.NotifyConfig) notify.Notifier {
			h.notifier = notify.NewMockNotifier(cfg.To)
			return h.notifier
		},
		sleep: func(context.Context, time.Duration) error { return nil },
	}
}

func cleanEnv(t *testing.T) string {
	t.Helper()
	for _, k := range []string{
		"TARGET_URL", "STEP_TIMEOUT", "AI_RESPONSE_TIMEOUT", "HEADLESS", "UNIQUE_EMAILS", "WRITE_REPORT",
		"EVIDENCE_BUCKET", "EVIDENCE_PREFIX", "AWS_ENDPOINT_URL_S3", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"RESEND_API_KEY", "REPORT_TO_EMAIL",
	} {
		t.Setenv(k, "")
	}
	dir := t.TempDir()
	t.Setenv("OUTPUT_DIR", dir)
	return dir
}

func execute(t *testing.T, h *harness, args ...string) error {
	t.Helper()
	cmd := newRootCmd(h.deps(t))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	h.out = out.String()
	return err
}

func TestNewRootCmd(t *testing.T) {
	cleanEnv(t)
	cmd := NewRootCmd()

	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"hello", "auth-page", "chat", "final", "all", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
	for _, flag := range []string{"target-url", "output-dir", "timeout", "ai-timeout", "headed", "unique-emails", "report", "verbose"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %s", flag)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestVersionCmd(t *testing.T) {
	cleanEnv(t)
	t.Setenv("TARGET_URL", "not a url")
	h := &harness{}
	require.NoError(t, execute(t, h, "version"))
	assert.Contains(t, h.out, "verify version ")
}

func TestHello_WritesScreenshotAndReport(t *testing.T) {
	dir := cleanEnv(t)
	h := &harness{}

	require.NoError(t, execute(t, h, "hello", "--target-url", "http://app.test:5173/"))

	assert.Contains(t, h.out, "Navigating to http://app.test:5173...")
	assert.Contains(t, h.out, "Screenshot captured.")
	assert.Contains(t, h.out, "PASS hello")

	info, err := os.Stat(filepath.Join(dir, "hello.png"))
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	md, err := os.ReadFile(filepath.Join(dir, report.FileName("hello")))
	require.NoError(t, err)
	assert.Contains(t, string(md), "Passed")

	require.Len(t, h.pages, 1)
	assert.True(t, h.pages[0].closed)
	assert.Equal(t, "goto http://app.test:5173", h.pages[0].calls[0])
	assert.True(t, h.launched[0].Headless)
}

func TestFlagsOverrideEnv(t *testing.T) {
	cleanEnv(t)
	t.Setenv("STEP_TIMEOUT", "5s")
	h := &harness{}
	require.NoError(t, execute(t, h, "auth-page", "--headed", "--timeout", "7s", "--report=false"))
	require.Len(t, h.launched, 1)
	assert.False(t, h.launched[0].Headless)
	assert.Equal(t, 7*time.Second, h.launched[0].DefaultTimeout)
	assert.Contains(t, h.pages[0].calls, "goto http://localhost:5173/auth")
}

func TestInvalidConfig(t *testing.T) {
	cleanEnv(t)
	h := &harness{}
	err := execute(t, h, "hello", "--target-url", "ftp://nope")
	require.Error(t, err)
	var verr *config.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, h.pages)
	assert.Equal(t, 1, errs.ExitCode(err))
}

func TestFinal_FailureExitsNonZero(t *testing.T) {
	dir := cleanEnv(t)
	h := &harness{failOn: "Caregiver Dashboard"}

	err := execute(t, h, "final")
	require.Error(t, err)
	assert.True(t, errs.Has(err, errs.StepFailed))
	assert.Equal(t, 1, errs.ExitCode(err))
	assert.Contains(t, h.out, `FAIL final at "dashboard: heading visible"`)

	_, statErr := os.Stat(filepath.Join(dir, "final_verification.png"))
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, h.pages[0].closed)
}

func TestAll_RunsEveryJourneyInOwnBrowser(t *testing.T) {
	dir := cleanEnv(t)
	h := &harness{}
	require.NoError(t, execute(t, h, "all", "--unique-emails"))

	assert.Len(t, h.pages, len(journey.Names()))
	for _, name := range []string{"verification.png", "final_verification.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
	for _, p := range h.pages {
		assert.True(t, p.closed)
	}
}

var runIDPattern = regexp.MustCompile(`\(([^)]+)\)$`)

func TestMirrorAndNotify(t *testing.T) {
	cleanEnv(t)
	t.Setenv("EVIDENCE_BUCKET", "evidence")
	t.Setenv("EVIDENCE_PREFIX", "runs")
	t.Setenv("RESEND_API_KEY", "re_test")
	t.Setenv("REPORT_TO_EMAIL", "qa@pillbridge.test")
	h := &harness{}

	require.NoError(t, execute(t, h, "final"))

	require.NotNil(t, h.notifier)
	require.Equal(t, 1, h.notifier.Count())
	msg := h.notifier.Last()
	assert.Equal(t, "qa@pillbridge.test", msg.To)
	assert.True(t, strings.HasPrefix(msg.Subject, "[PASS] pillbridge final"))
	assert.Contains(t, msg.Text, "final_verification.png")

	m := runIDPattern.FindStringSubmatch(msg.Subject)
	require.Len(t, m, 2)
	data, err := h.bucket.GetObject(context.Background(), evidence.ObjectKey("runs", m[1], "final_verification.png"))
	require.NoError(t, err)
	assert.Equal(t, fakePNG, data)
}

func TestJourneyCmdRejectsArgs(t *testing.T) {
	cleanEnv(t)
	h := &harness{}
	err := execute(t, h, "hello", "extra")
	assert.Error(t, err)
	assert.Empty(t, h.pages)
}

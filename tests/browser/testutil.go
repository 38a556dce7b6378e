// Package browser runs the verification journeys against the stand-in app
// in a real Chromium. Tests skip when Playwright browsers are not installed.
package browser

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/assistant"
	"github.com/kuitang/pillbridge-verify/internal/auth"
	pbrowser "github.com/kuitang/pillbridge-verify/internal/browser"
	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/evidence"
	"github.com/kuitang/pillbridge-verify/internal/fakeapp"
	"github.com/kuitang/pillbridge-verify/internal/journey"
)

const (
	// BrowserMaxTimeout bounds every browser action in these tests.
	BrowserMaxTimeout = 5 * time.Second
	// AIResponseTimeout matches the production reply budget.
	AIResponseTimeout = 20 * time.Second
)

// JourneyTestEnv is one stand-in app with a fresh database.
type JourneyTestEnv struct {
	App       *fakeapp.App
	Server    *httptest.Server
	BaseURL   string
	OutputDir string
}

// SetupJourneyTestEnv starts the stand-in app with the given copy preset.
func SetupJourneyTestEnv(t *testing.T, copyName string) *JourneyTestEnv {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping browser test in short mode")
	}

	cfg := &config.AppConfig{
		ListenAddr:  "127.0.0.1:0",
		OpenAIModel: config.DefaultOpenAIModel,
		Copy:        copyName,
		ChatRPS:     5,
		ChatBurst:   10,
	}
	app, err := fakeapp.New(context.Background(), cfg, fakeapp.Options{
		Hasher:    auth.FakeInsecureHasher{},
		Responder: assistant.CannedResponder{Delay: fakeapp.CannedDelay},
	})
	if err != nil {
		t.Fatalf("Failed to start stand-in app: %v", err)
	}
	srv := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Close()
	})

	return &JourneyTestEnv{
		App:       app,
		Server:    srv,
		BaseURL:   srv.URL,
		OutputDir: t.TempDir(),
	}
}

// Launch opens a browser, skipping the test when Playwright is unavailable.
func (e *JourneyTestEnv) Launch(t *testing.T) *pbrowser.Session {
	t.Helper()
	s, err := pbrowser.Launch(context.Background(), pbrowser.Options{
		Headless:       true,
		DefaultTimeout: BrowserMaxTimeout,
		Viewport:       pbrowser.Viewport{Width: 1280, Height: 800},
	})
	if errs.CodeOf(err) == errs.Unavailable {
		t.Skipf("Playwright not available: %v", err)
	}
	if err != nil {
		t.Fatalf("Failed to launch browser: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Env returns the journey environment for this app.
func (e *JourneyTestEnv) Env(suffix string) journey.Env {
	return journey.Env{
		TargetURL:         e.BaseURL,
		AIResponseTimeout: AIResponseTimeout,
		EmailSuffix:       suffix,
	}
}

// Run executes j in a fresh browser and saves evidence through saver, or
// under OutputDir when saver is nil.
func (e *JourneyTestEnv) Run(t *testing.T, j journey.Journey, suffix string, saver journey.Evidence) (*journey.Result, error) {
	t.Helper()
	if saver == nil {
		saver = evidence.NewFileStore(e.OutputDir)
	}
	r := &journey.Runner{
		Page:     e.Launch(t),
		Evidence: saver,
		Out:      testWriter{t},
	}
	return r.Run(context.Background(), j, e.Env(suffix))
}

// APIClient returns an HTTP client with its own cookie jar.
func (e *JourneyTestEnv) APIClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar, Timeout: BrowserMaxTimeout}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

package journey

import (
	"context"
	"time"
)

// Page is the browser surface the journeys drive. Locators follow the
// user-facing conventions of the automation library: text and role names
// match case-insensitive substrings, and an assertion fails if more than one
// element matches.
//
// A zero timeout means the page default.
type Page interface {
	Goto(ctx context.Context, url string) error
	ClickText(ctx context.Context, text string) error
	// ClickFirstText clicks the first element containing text.
	ClickFirstText(ctx context.Context, text string) error
	ClickButton(ctx context.Context, name string) error
	FillLabel(ctx context.Context, label, value string) error
	FillPlaceholder(ctx context.Context, placeholder, value string) error
	ExpectText(ctx context.Context, text string, timeout time.Duration) error
	ExpectSelector(ctx context.Context, selector string, timeout time.Duration) error
	ExpectNotEmpty(ctx context.Context, selector string, timeout time.Duration) error
	InnerText(ctx context.Context, selector string) (string, error)
	// ClearSession drops cookies and localStorage for the current origin.
	ClearSession(ctx context.Context) error
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
}

// Evidence stores a screenshot and returns where it was written.
type Evidence interface {
	Save(ctx context.Context, name string, png []byte) (string, error)
}

// State is shared by the steps of one run.
type State struct {
	Page Page
	Env  Env

	// CaregiverCode is scraped after caregiver registration and re-entered
	// during patient registration.
	CaregiverCode string
	// Reply is the assistant bubble text, when a chat journey reads it.
	Reply string

	// ScreenshotPath is set once the evidence screenshot is saved.
	ScreenshotPath string

	evidence       Evidence
	screenshotName string
	sleep          func(ctx context.Context, d time.Duration) error
}

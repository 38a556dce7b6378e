// Package journey runs the PillBridge end-to-end verification journeys.
//
// A journey is a fixed, linear list of steps driven through a Page. The first
// failing step ends the run; nothing is retried. A successful run ends with a
// screenshot saved as evidence.
package journey

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Role is a PillBridge account role as labelled on the sign-up form.
type Role string

const (
	RoleCaregiver Role = "Caregiver"
	RolePatient   Role = "Patient"
)

// DefaultPassword is used by both personas.
const DefaultPassword = "password123"

// DefaultQuestion is sent to the assistant by the chat journeys.
const DefaultQuestion = "What are the side effects of Paracetamol?"

// Persona is one simulated user.
type Persona struct {
	Name     string
	Email    string
	Password string
	Role     Role
}

// WithEmailSuffix returns a copy whose email local part carries suffix, so
// reruns against a persistent app do not collide on registration.
func (p Persona) WithEmailSuffix(suffix string) Persona {
	if suffix == "" {
		return p
	}
	for i := 0; i < len(p.Email); i++ {
		if p.Email[i] == '@' {
			p.Email = p.Email[:i] + "+" + suffix + p.Email[i:]
			return p
		}
	}
	p.Email += "+" + suffix
	return p
}

// Copy holds the UI strings that changed between front-end revisions.
type Copy struct {
	Name         string
	SignUpButton string
	ChatHeading  func(patient string) string
}

var (
	// CopyCurrent matches the current front end.
	CopyCurrent = Copy{
		Name:         "current",
		SignUpButton: "Create Account",
		ChatHeading:  func(patient string) string { return "AI Assistant for " + patient },
	}
	// CopyLegacy matches the earlier front end.
	CopyLegacy = Copy{
		Name:         "legacy",
		SignUpButton: "Sign Up",
		ChatHeading:  func(patient string) string { return "Conversation with AI for " + patient },
	}
)

// CopyByName returns the preset with the given name.
func CopyByName(name string) (Copy, bool) {
	switch name {
	case CopyCurrent.Name:
		return CopyCurrent, true
	case CopyLegacy.Name:
		return CopyLegacy, true
	}
	return Copy{}, false
}

// StepResult records one executed step.
type StepResult struct {
	Name     string
	Duration time.Duration
	Err      error
}

// Result is the outcome of one journey run.
type Result struct {
	Journey    string
	RunID      string
	Steps      []StepResult
	Screenshot string // path of the saved screenshot, empty if the run failed first
	Started    time.Time
	Finished   time.Time
	Err        error
}

// OK reports whether every step passed.
func (r *Result) OK() bool {
	return r != nil && r.Err == nil
}

// Duration is the wall time of the run.
func (r *Result) Duration() time.Duration {
	if r == nil || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// FailedStep returns the name of the failing step, or "".
func (r *Result) FailedStep() string {
	if r == nil {
		return ""
	}
	for _, s := range r.Steps {
		if s.Err != nil {
			return s.Name
		}
	}
	return ""
}

// Step is one action or assertion.
type Step struct {
	Name string
	// Say is printed to the progress writer before the step runs, if set.
	Say string
	// Done is printed after the step succeeds, if set.
	Done string
	// Fields are logged with the step; sensitive keys are redacted.
	Fields map[string]string
	Do     func(ctx context.Context, st *State) error
}

// Journey is a named, linear sequence of steps.
type Journey struct {
	Name        string
	Description string
	Screenshot  string
	// Build returns the steps for one run.
	Build func(env Env) []Step
}

// Env parameterizes the steps of one run.
type Env struct {
	TargetURL         string
	AIResponseTimeout time.Duration
	EmailSuffix       string
}

// AuthURL is the target's sign-in/sign-up route.
func (e Env) AuthURL() string {
	return e.TargetURL + "/auth"
}

var registry = map[string]Journey{}

func register(j Journey) Journey {
	if _, dup := registry[j.Name]; dup {
		panic(fmt.Sprintf("journey %q registered twice", j.Name))
	}
	registry[j.Name] = j
	return j
}

// Lookup returns the journey with the given name.
func Lookup(name string) (Journey, bool) {
	j, ok := registry[name]
	return j, ok
}

// Names returns all journey names in run order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Slice(names, func(i, k int) bool {
		return order(names[i]) < order(names[k])
	})
	return names
}

func order(name string) int {
	switch name {
	case Hello.Name:
		return 0
	case AuthPage.Name:
		return 1
	case Chat.Name:
		return 2
	case Final.Name:
		return 3
	}
	return 100
}

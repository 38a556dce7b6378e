package journey

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/errs"
)

// fakePage records every call and answers from canned values.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	code  string
	reply string
	// failOn makes the call with this exact record fail with a timeout.
	failOn string

	timeouts map[string]time.Duration
}

func newFakePage(code, reply string) *fakePage {
	return &fakePage{code: code, reply: reply, timeouts: map[string]time.Duration{}}
}

func (p *fakePage) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	if p.failOn != "" && call == p.failOn {
		return errs.Wrap(errs.Timeout, "timed out: "+call, context.DeadlineExceeded)
	}
	return nil
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) has(call string) bool {
	for _, c := range p.Calls() {
		if c == call {
			return true
		}
	}
	return false
}

func (p *fakePage) Goto(_ context.Context, url string) error { return p.record("goto " + url) }
func (p *fakePage) ClickText(_ context.Context, text string) error {
	return p.record("clickText " + text)
}
func (p *fakePage) ClickFirstText(_ context.Context, text string) error {
	return p.record("clickFirstText " + text)
}
func (p *fakePage) ClickButton(_ context.Context, name string) error {
	return p.record("clickButton " + name)
}
func (p *fakePage) FillLabel(_ context.Context, label, value string) error {
	return p.record(fmt.Sprintf("fillLabel %s=%s", label, value))
}
func (p *fakePage) FillPlaceholder(_ context.Context, placeholder, value string) error {
	return p.record(fmt.Sprintf("fillPlaceholder %s=%s", placeholder, value))
}
func (p *fakePage) ExpectText(_ context.Context, text string, timeout time.Duration) error {
	p.mu.Lock()
	p.timeouts["expectText "+text] = timeout
	p.mu.Unlock()
	return p.record("expectText " + text)
}
func (p *fakePage) ExpectSelector(_ context.Context, selector string, timeout time.Duration) error {
	p.mu.Lock()
	p.timeouts["expectSelector "+selector] = timeout
	p.mu.Unlock()
	return p.record("expectSelector " + selector)
}
func (p *fakePage) ExpectNotEmpty(_ context.Context, selector string, timeout time.Duration) error {
	if err := p.record("expectNotEmpty " + selector); err != nil {
		return err
	}
	if strings.TrimSpace(p.reply) == "" {
		return errs.New(errs.Timeout, "element is empty")
	}
	return nil
}
func (p *fakePage) InnerText(_ context.Context, selector string) (string, error) {
	if err := p.record("innerText " + selector); err != nil {
		return "", err
	}
	switch selector {
	case CaregiverCodeSelector:
		return p.code, nil
	case AssistantBubble:
		return p.reply, nil
	}
	return "", nil
}
func (p *fakePage) ClearSession(_ context.Context) error { return p.record("clearSession") }
func (p *fakePage) Screenshot(_ context.Context, fullPage bool) ([]byte, error) {
	if err := p.record(fmt.Sprintf("screenshot full=%t", fullPage)); err != nil {
		return nil, err
	}
	return []byte("\x89PNG fake"), nil
}

type memEvidence struct {
	saved map[string][]byte
}

func (m *memEvidence) Save(_ context.Context, name string, png []byte) (string, error) {
	if m.saved == nil {
		m.saved = map[string][]byte{}
	}
	m.saved[name] = png
	return "mem/" + name, nil
}

// Package notify emails journey reports.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/kuitang/pillbridge-verify/internal/journey"
	"github.com/kuitang/pillbridge-verify/internal/mdrender"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Notifier delivers a rendered run report.
type Notifier interface {
	Send(ctx context.Context, res *journey.Result, report string) error
}

// Message is one outgoing report email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Compose builds the email for a run. The Markdown report is the text part
// and its rendering is the HTML part.
func Compose(to string, res *journey.Result, report string) Message {
	status := "PASS"
	if !res.OK() {
		status = "FAIL"
	}
	return Message{
		To:      to,
		Subject: fmt.Sprintf("[%s] pillbridge %s (%s)", status, res.Journey, res.RunID),
		HTML:    mdrender.ToHTML(report),
		Text:    report,
	}
}

// MockNotifier captures messages in memory.
type MockNotifier struct {
	mu       sync.Mutex
	To       string
	Messages []Message
}

// NewMockNotifier returns a notifier that records instead of sending.
func NewMockNotifier(to string) *MockNotifier {
	return &MockNotifier{To: to}
}

// Send records the message.
func (m *MockNotifier) Send(ctx context.Context, res *journey.Result, report string) error {
	msg := Compose(m.To, res, report)
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.mu.Unlock()
	obs.From(ctx).Info("report captured", "to", msg.To, "subject", msg.Subject)
	return nil
}

// Last returns the most recent message, or the zero value.
func (m *MockNotifier) Last() Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return Message{}
	}
	return m.Messages[len(m.Messages)-1]
}

// Count returns the number of captured messages.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

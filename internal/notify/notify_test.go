package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/journey"
)

const sampleReport = "# Journey report: final\n\n| Property | Value |\n|---|---|\n| Status | ✅ Passed |\n"

func TestCompose(t *testing.T) {
	ok := &journey.Result{Journey: "final", RunID: "run-1"}
	msg := Compose("qa@example.com", ok, sampleReport)
	assert.Equal(t, "qa@example.com", msg.To)
	assert.Equal(t, "[PASS] pillbridge final (run-1)", msg.Subject)
	assert.Contains(t, msg.HTML, "<h1")
	assert.Contains(t, msg.HTML, "<table>")
	assert.Equal(t, sampleReport, msg.Text)

	failed := &journey.Result{Journey: "chat", RunID: "run-2", Err: errs.New(errs.StepFailed, "boom")}
	assert.Equal(t, "[FAIL] pillbridge chat (run-2)", Compose("qa@example.com", failed, "").Subject)
}

func TestMockNotifier_CapturesConcurrently(t *testing.T) {
	m := NewMockNotifier("qa@example.com")
	res := &journey.Result{Journey: "hello", RunID: "run-3"}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, m.Send(context.Background(), res, sampleReport))
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, m.Count())
	assert.Equal(t, "[PASS] pillbridge hello (run-3)", m.Last().Subject)
}

func TestMockNotifier_LastEmpty(t *testing.T) {
	assert.Equal(t, Message{}, NewMockNotifier("x@y").Last())
}

func TestResendRequest(t *testing.T) {
	r := NewResendNotifier("re_test", "verify@pillbridge.local", "qa@example.com")
	msg := Compose("qa@example.com", &journey.Result{Journey: "final", RunID: "run-4"}, sampleReport)

	req := r.request(msg)
	assert.Equal(t, "verify@pillbridge.local", req.From)
	assert.Equal(t, []string{"qa@example.com"}, req.To)
	assert.Equal(t, msg.Subject, req.Subject)
	assert.Equal(t, msg.HTML, req.Html)
	assert.Equal(t, sampleReport, req.Text)
}

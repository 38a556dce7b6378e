package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/journey"
)

func passedResult() *journey.Result {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &journey.Result{
		Journey:    "final",
		RunID:      "run-1234",
		Screenshot: "verification/final_verification.png",
		Started:    start,
		Finished:   start.Add(12 * time.Second),
		Steps: []journey.StepResult{
			{Name: "open auth page", Duration: 350 * time.Millisecond},
			{Name: "chat: reply visible", Duration: 4 * time.Second},
		},
	}
}

func TestRender_Passed(t *testing.T) {
	out, err := Render(passedResult())
	require.NoError(t, err)

	assert.Contains(t, out, "# Journey report: final")
	assert.Contains(t, out, "run-1234")
	assert.Contains(t, out, "2026-03-01 12:00:00 UTC")
	assert.Contains(t, out, "✅ Passed")
	assert.Contains(t, out, "`verification/final_verification.png`")
	assert.Contains(t, out, "chat: reply visible")
	assert.Contains(t, out, "350ms")
	assert.Contains(t, out, "[!TIP]")
	assert.NotContains(t, out, "[!CAUTION]")
}

func TestRender_Failed(t *testing.T) {
	res := passedResult()
	res.Screenshot = ""
	res.Steps[1].Err = errs.New(errs.Timeout, "expect .bg-gray-200: timed out")
	res.Err = errs.Wrap(errs.StepFailed, `final: step "chat: reply visible" failed`, res.Steps[1].Err)

	out, err := Render(res)
	require.NoError(t, err)
	assert.Contains(t, out, "❌ Failed")
	assert.Contains(t, out, "[!CAUTION]")
	assert.Contains(t, out, `Step "chat: reply visible" failed`)
	assert.Contains(t, out, "**failed**")
	assert.Contains(t, out, "timed out")
}

func TestRender_CanceledWithoutSteps(t *testing.T) {
	res := &journey.Result{Journey: "hello", RunID: "run-x", Started: time.Now(), Finished: time.Now()}
	res.Err = errs.New(errs.Canceled, "hello canceled")

	out, err := Render(res)
	require.NoError(t, err)
	assert.Contains(t, out, "⚠️ Canceled")
	assert.Contains(t, out, "No steps ran.")
}

func TestWrite_NilResult(t *testing.T) {
	_, err := Render(nil)
	assert.Equal(t, errs.InvalidArgument, errs.CodeOf(err))
}

func TestWriteFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	path, err := WriteFile(dir, passedResult())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "final-report.md"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "# Journey report: final"))
}

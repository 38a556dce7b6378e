package journey

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/pillbridge-verify/internal/errs"
)

const testTarget = "http://pillbridge.test"

type harness struct {
	page     *fakePage
	evidence *memEvidence
	out      *bytes.Buffer
	slept    []time.Duration
	runner   *Runner
}

func newHarness(code, reply string) *harness {
	h := &harness{
		page:     newFakePage(code, reply),
		evidence: &memEvidence{},
		out:      &bytes.Buffer{},
	}
	h.runner = &Runner{
		Page:     h.page,
		Evidence: h.evidence,
		Out:      h.out,
		RunID:    "run-test",
		Sleep: func(_ context.Context, d time.Duration) error {
			h.slept = append(h.slept, d)
			return nil
		},
	}
	return h
}

func testEnv() Env {
	return Env{TargetURL: testTarget, AIResponseTimeout: 20 * time.Second}
}

func TestRun_Hello(t *testing.T) {
	h := newHarness("", "")

	res, err := h.runner.Run(context.Background(), Hello, testEnv())
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "run-test", res.RunID)
	assert.Equal(t, "mem/hello.png", res.Screenshot)
	assert.Equal(t, []string{"goto " + testTarget, "screenshot full=false"}, h.page.Calls())
	assert.Equal(t, []time.Duration{5 * time.Second}, h.slept)
	assert.Contains(t, h.evidence.saved, "hello.png")
	assert.Equal(t, "Navigating to "+testTarget+"...\nWaiting for 5 seconds...\nTaking screenshot...\nScreenshot captured.\n", h.out.String())
	assert.Len(t, res.Steps, 3)
}

func TestRun_AuthPageTakesFullPageScreenshot(t *testing.T) {
	h := newHarness("", "")

	res, err := h.runner.Run(context.Background(), AuthPage, testEnv())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"goto " + testTarget + "/auth",
		"clickText Sign up",
		"screenshot full=true",
	}, h.page.Calls())
	assert.Equal(t, []time.Duration{3 * time.Second}, h.slept)
	assert.Equal(t, "mem/register_page_full.png", res.Screenshot)
}

func TestRun_FinalFlowCarriesCodeIntoPatientRegistration(t *testing.T) {
	h := newHarness("  K7Q2ZP \n", "Paracetamol is generally well tolerated.")

	res, err := h.runner.Run(context.Background(), Final, testEnv())
	require.NoError(t, err)

	calls := h.page.Calls()
	auth := "goto " + testTarget + "/auth"
	want := []string{
		auth,
		"clickText Sign up",
		"expectText Create your account",
		"clickButton Caregiver",
		"fillLabel Full Name=Test Caregiver",
		"fillLabel Email=caregiver-final@test.com",
		"fillLabel Password=password123",
		"clickButton Create Account",
		"expectText Your Caregiver Code",
		"innerText " + CaregiverCodeSelector,
		"clearSession",
		auth,
		"clickText Sign up",
		"clickButton Patient",
		"fillLabel Full Name=Test Patient",
		"fillLabel Email=patient-final@test.com",
		"fillLabel Password=password123",
		"fillLabel Caregiver Code=K7Q2ZP",
		"clickButton Create Account",
		"clearSession",
		auth,
		"fillLabel Email=caregiver-final@test.com",
		"fillLabel Password=password123",
		"clickButton Sign In",
		"expectText Caregiver Dashboard",
		"expectText Test Patient",
		"clickFirstText Test Patient",
		"expectText AI Assistant for Test Patient",
		"fillPlaceholder Ask the AI assistant...=What are the side effects of Paracetamol?",
		"clickButton Send",
		"expectSelector " + AssistantBubble,
		"expectNotEmpty " + AssistantBubble,
		"innerText " + AssistantBubble,
		"screenshot full=false",
	}
	assert.Equal(t, want, calls)
	assert.Equal(t, 20*time.Second, h.page.timeouts["expectSelector "+AssistantBubble])
	assert.Equal(t, "mem/final_verification.png", res.Screenshot)
	assert.Equal(t, "AI response received.\nScreenshot captured successfully.\n", h.out.String())
	assert.Len(t, res.Steps, len(want))
}

func TestRun_ChatUsesEarlierCopy(t *testing.T) {
	h := newHarness("ABC123", "reply")

	res, err := h.runner.Run(context.Background(), Chat, testEnv())
	require.NoError(t, err)

	assert.True(t, h.page.has("clickButton Sign Up"))
	assert.False(t, h.page.has("clickButton Create Account"))
	assert.True(t, h.page.has("expectText Conversation with AI for Test Patient"))
	assert.True(t, h.page.has("fillLabel Email=caregiver@test.com"))
	assert.True(t, h.page.has("fillLabel Email=patient@test.com"))
	assert.False(t, h.page.has("expectNotEmpty "+AssistantBubble))
	assert.Equal(t, time.Duration(0), h.page.timeouts["expectSelector "+AssistantBubble], "page default applies")
	assert.Equal(t, "mem/verification.png", res.Screenshot)
}

func TestRun_StopsAtFirstFailure(t *testing.T) {
	h := newHarness("ABC123", "reply")
	h.page.failOn = "expectText Your Caregiver Code"

	res, err := h.runner.Run(context.Background(), Final, testEnv())
	require.Error(t, err)
	assert.Equal(t, errs.StepFailed, errs.CodeOf(err))
	assert.True(t, errs.Has(err, errs.Timeout))
	assert.Contains(t, err.Error(), `"caregiver: code heading visible"`)

	assert.False(t, res.OK())
	assert.Equal(t, "caregiver: code heading visible", res.FailedStep())
	assert.Empty(t, res.Screenshot)
	assert.Empty(t, h.evidence.saved)
	calls := h.page.Calls()
	assert.Equal(t, "expectText Your Caregiver Code", calls[len(calls)-1], "no step runs after the failure")
}

func TestRun_RejectsMalformedCode(t *testing.T) {
	h := newHarness("AB-12", "reply")

	res, err := h.runner.Run(context.Background(), Final, testEnv())
	require.Error(t, err)
	assert.True(t, errs.Has(err, errs.InvalidArgument))
	assert.Equal(t, "caregiver: read code", res.FailedStep())
	assert.False(t, h.page.has("clickButton Patient"))
}

func TestRun_EmptyReplyFails(t *testing.T) {
	h := newHarness("ABC123", "   ")

	res, err := h.runner.Run(context.Background(), Final, testEnv())
	require.Error(t, err)
	assert.Equal(t, "chat: reply not empty", res.FailedStep())
	assert.Empty(t, res.Screenshot)
}

func TestRun_CanceledBeforeStep(t *testing.T) {
	h := newHarness("", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.runner.Run(ctx, Hello, testEnv())
	require.Error(t, err)
	assert.Equal(t, errs.Canceled, errs.CodeOf(err))
	assert.Empty(t, h.page.Calls())
	assert.Empty(t, res.Steps)
}

func TestRun_UniqueEmails(t *testing.T) {
	h := newHarness("ABC123", "reply")
	env := testEnv()
	env.EmailSuffix = "a1b2"

	_, err := h.runner.Run(context.Background(), Final, env)
	require.NoError(t, err)
	assert.True(t, h.page.has("fillLabel Email=caregiver-final+a1b2@test.com"))
	assert.True(t, h.page.has("fillLabel Email=patient-final+a1b2@test.com"))
}

func TestRun_DefaultSleepHonorsCancel(t *testing.T) {
	h := newHarness("", "")
	h.runner.Sleep = nil
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, err := h.runner.Run(ctx, Hello, testEnv())
	require.Error(t, err)
	assert.True(t, errs.Has(err, errs.Canceled))
	assert.Equal(t, "settle 5s", res.FailedStep())
}

func TestNames_RunOrder(t *testing.T) {
	assert.Equal(t, []string{"hello", "auth-page", "chat", "final"}, Names())
	j, ok := Lookup("final")
	require.True(t, ok)
	assert.Equal(t, "final_verification.png", j.Screenshot)
	_, ok = Lookup("nope")
	assert.False(t, ok)
}

func TestCopyByName(t *testing.T) {
	c, ok := CopyByName("legacy")
	require.True(t, ok)
	assert.Equal(t, "Sign Up", c.SignUpButton)
	assert.Equal(t, "Conversation with AI for Ann", c.ChatHeading("Ann"))
	_, ok = CopyByName("beta")
	assert.False(t, ok)
}

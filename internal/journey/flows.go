package journey

import (
	"context"
	"strings"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/logutil"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Selectors the front end exposes for the caregiver code and the assistant's
// reply bubble.
const (
	CaregiverCodeSelector = "p.text-2xl.font-mono.font-bold.text-blue-700"
	AssistantBubble       = ".bg-gray-200.text-gray-800.rounded-bl-none"
	ChatPlaceholder       = "Ask the AI assistant..."
)

const (
	helloSettle    = 5 * time.Second
	authPageSettle = 3 * time.Second
)

// Hello loads the landing page and screenshots it.
var Hello = register(Journey{
	Name:        "hello",
	Description: "Load the landing page and capture it",
	Screenshot:  "hello.png",
	Build: func(env Env) []Step {
		return []Step{
			gotoStep("open landing page", env.TargetURL, "Navigating to "+env.TargetURL+"..."),
			settleStep(helloSettle, "Waiting for 5 seconds..."),
			screenshotStep(false, "Taking screenshot...", "Screenshot captured."),
		}
	},
})

// AuthPage opens the registration form and captures the full page.
var AuthPage = register(Journey{
	Name:        "auth-page",
	Description: "Open the registration form and capture the full page",
	Screenshot:  "register_page_full.png",
	Build: func(env Env) []Step {
		return []Step{
			gotoStep("open auth page", env.AuthURL(), "Navigating to auth page..."),
			{
				Name: "switch to sign up",
				Say:  "Clicking 'Sign up'...",
				Do: func(ctx context.Context, st *State) error {
					return st.Page.ClickText(ctx, "Sign up")
				},
			},
			settleStep(authPageSettle, "Waiting for registration form to load..."),
			screenshotStep(true, "Taking full page screenshot of registration page...", "Full page screenshot captured."),
		}
	},
})

// Chat runs the caregiver and patient flow against the earlier front-end copy.
var Chat = register(Journey{
	Name:        "chat",
	Description: "Register a caregiver and linked patient, then chat with the assistant (earlier copy)",
	Screenshot:  "verification.png",
	Build: func(env Env) []Step {
		return chatFlow(env, chatFlowOptions{
			copy:      CopyLegacy,
			caregiver: Persona{Name: "Test Caregiver", Email: "caregiver@test.com", Password: DefaultPassword, Role: RoleCaregiver},
			patient:   Persona{Name: "Test Patient", Email: "patient@test.com", Password: DefaultPassword, Role: RolePatient},
		})
	},
})

// Final runs the same flow against the current copy and requires a non-empty
// reply within the assistant timeout.
var Final = register(Journey{
	Name:        "final",
	Description: "Register a caregiver and linked patient, then require a non-empty assistant reply (current copy)",
	Screenshot:  "final_verification.png",
	Build: func(env Env) []Step {
		return chatFlow(env, chatFlowOptions{
			copy:        CopyCurrent,
			caregiver:   Persona{Name: "Test Caregiver", Email: "caregiver-final@test.com", Password: DefaultPassword, Role: RoleCaregiver},
			patient:     Persona{Name: "Test Patient", Email: "patient-final@test.com", Password: DefaultPassword, Role: RolePatient},
			strictReply: true,
		})
	},
})

type chatFlowOptions struct {
	copy      Copy
	caregiver Persona
	patient   Persona
	// strictReply bounds the reply wait by the assistant timeout and
	// requires the bubble to have text.
	strictReply bool
}

func chatFlow(env Env, o chatFlowOptions) []Step {
	caregiver := o.caregiver.WithEmailSuffix(env.EmailSuffix)
	patient := o.patient.WithEmailSuffix(env.EmailSuffix)

	var steps []Step

	// Caregiver registration.
	steps = append(steps,
		gotoStep("open auth page", env.AuthURL(), ""),
		clickTextStep("caregiver: switch to sign up", "Sign up"),
		expectTextStep("caregiver: sign-up form visible", "Create your account"),
	)
	steps = append(steps, registerSteps("caregiver", caregiver, o.copy, false)...)
	steps = append(steps,
		expectTextStep("caregiver: code heading visible", "Your Caregiver Code"),
		Step{
			Name: "caregiver: read code",
			Do: func(ctx context.Context, st *State) error {
				raw, err := st.Page.InnerText(ctx, CaregiverCodeSelector)
				if err != nil {
					return err
				}
				code, err := NormalizeCaregiverCode(raw)
				if err != nil {
					return err
				}
				st.CaregiverCode = code
				obs.From(ctx).Info("caregiver code captured", "code", code)
				return nil
			},
		},
	)
	steps = append(steps, logOutSteps("caregiver", env)...)

	// Patient registration with the captured code.
	steps = append(steps, clickTextStep("patient: switch to sign up", "Sign up"))
	steps = append(steps, registerSteps("patient", patient, o.copy, true)...)
	steps = append(steps, logOutSteps("patient", env)...)

	// Caregiver sign-in and chat.
	steps = append(steps,
		fillLabelStep("login: fill Email", "Email", caregiver.Email),
		fillLabelStep("login: fill Password", "Password", caregiver.Password),
		clickButtonStep("login: submit", "Sign In"),
		expectTextStep("dashboard: heading visible", "Caregiver Dashboard"),
		expectTextStep("dashboard: patient listed", patient.Name),
		Step{
			Name: "dashboard: select patient",
			Do: func(ctx context.Context, st *State) error {
				return st.Page.ClickFirstText(ctx, patient.Name)
			},
		},
		expectTextStep("chat: panel visible", o.copy.ChatHeading(patient.Name)),
		Step{
			Name:   "chat: fill question",
			Fields: map[string]string{"question": DefaultQuestion},
			Do: func(ctx context.Context, st *State) error {
				return st.Page.FillPlaceholder(ctx, ChatPlaceholder, DefaultQuestion)
			},
		},
		clickButtonStep("chat: send", "Send"),
	)

	if o.strictReply {
		steps = append(steps,
			Step{
				Name: "chat: reply visible",
				Do: func(ctx context.Context, st *State) error {
					return st.Page.ExpectSelector(ctx, AssistantBubble, st.Env.AIResponseTimeout)
				},
			},
			Step{
				Name: "chat: reply not empty",
				Done: "AI response received.",
				Do: func(ctx context.Context, st *State) error {
					if err := st.Page.ExpectNotEmpty(ctx, AssistantBubble, st.Env.AIResponseTimeout); err != nil {
						return err
					}
					reply, err := st.Page.InnerText(ctx, AssistantBubble)
					if err != nil {
						return err
					}
					st.Reply = strings.TrimSpace(reply)
					obs.From(ctx).Info("assistant replied", "reply", logutil.TruncateForLog(st.Reply, 200))
					return nil
				},
			},
			screenshotStep(false, "", "Screenshot captured successfully."),
		)
		return steps
	}

	steps = append(steps,
		Step{
			Name: "chat: reply visible",
			Do: func(ctx context.Context, st *State) error {
				return st.Page.ExpectSelector(ctx, AssistantBubble, 0)
			},
		},
		screenshotStep(false, "", ""),
	)
	return steps
}

func registerSteps(prefix string, p Persona, c Copy, withCode bool) []Step {
	steps := []Step{
		clickButtonStep(prefix+": choose role", string(p.Role)),
		fillLabelStep(prefix+": fill Full Name", "Full Name", p.Name),
		fillLabelStep(prefix+": fill Email", "Email", p.Email),
		fillLabelStep(prefix+": fill Password", "Password", p.Password),
	}
	if withCode {
		steps = append(steps, Step{
			Name: prefix + ": fill Caregiver Code",
			Do: func(ctx context.Context, st *State) error {
				if st.CaregiverCode == "" {
					return errs.New(errs.InvalidArgument, "no caregiver code captured")
				}
				return st.Page.FillLabel(ctx, "Caregiver Code", st.CaregiverCode)
			},
		})
	}
	return append(steps, clickButtonStep(prefix+": submit registration", c.SignUpButton))
}

func logOutSteps(prefix string, env Env) []Step {
	return []Step{
		{
			Name: prefix + ": clear session",
			Do: func(ctx context.Context, st *State) error {
				return st.Page.ClearSession(ctx)
			},
		},
		gotoStep(prefix+": reopen auth page", env.AuthURL(), ""),
	}
}

func gotoStep(name, url, say string) Step {
	return Step{
		Name:   name,
		Say:    say,
		Fields: map[string]string{"url": url},
		Do: func(ctx context.Context, st *State) error {
			return st.Page.Goto(ctx, url)
		},
	}
}

func clickTextStep(name, text string) Step {
	return Step{
		Name: name,
		Do: func(ctx context.Context, st *State) error {
			return st.Page.ClickText(ctx, text)
		},
	}
}

func clickButtonStep(name, button string) Step {
	return Step{
		Name:   name,
		Fields: map[string]string{"button": button},
		Do: func(ctx context.Context, st *State) error {
			return st.Page.ClickButton(ctx, button)
		},
	}
}

func fillLabelStep(name, label, value string) Step {
	return Step{
		Name:   name,
		Fields: map[string]string{label: value},
		Do: func(ctx context.Context, st *State) error {
			return st.Page.FillLabel(ctx, label, value)
		},
	}
}

func expectTextStep(name, text string) Step {
	return Step{
		Name:   name,
		Fields: map[string]string{"text": text},
		Do: func(ctx context.Context, st *State) error {
			return st.Page.ExpectText(ctx, text, 0)
		},
	}
}

func settleStep(d time.Duration, say string) Step {
	return Step{
		Name: "settle " + d.String(),
		Say:  say,
		Do: func(ctx context.Context, st *State) error {
			return st.sleep(ctx, d)
		},
	}
}

func screenshotStep(fullPage bool, say, done string) Step {
	return Step{
		Name: "screenshot",
		Say:  say,
		Done: done,
		Do: func(ctx context.Context, st *State) error {
			png, err := st.Page.Screenshot(ctx, fullPage)
			if err != nil {
				return err
			}
			if st.evidence == nil {
				return errs.New(errs.Internal, "no evidence store configured")
			}
			path, err := st.evidence.Save(ctx, st.screenshotName, png)
			if err != nil {
				return err
			}
			st.ScreenshotPath = path
			return nil
		},
	}
}

package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/kuitang/pillbridge-verify/internal/errs"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-3.5-turbo"

// Responder answers one caregiver question.
type Responder interface {
	Reply(ctx context.Context, systemPrompt, question string) (string, error)
}

// OpenAIResponder calls the Chat Completions API.
type OpenAIResponder struct {
	client openai.Client
	model  string
}

// NewOpenAIResponder creates a responder. An empty baseURL uses the public
// API; an empty model uses DefaultModel. Extra options are appended last.
func NewOpenAIResponder(apiKey, baseURL, model string, opts ...option.RequestOption) *OpenAIResponder {
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIResponder{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

// Model returns the configured model name.
func (r *OpenAIResponder) Model() string { return r.model }

func (r *OpenAIResponder) Reply(ctx context.Context, systemPrompt, question string) (string, error) {
	resp, err := r.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(r.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(question),
		},
	})
	if err != nil {
		return "", errs.Wrap(errs.Unavailable, "chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.Internal, "chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// CannedResponder answers without a model. Replies depend only on the
// question, so journeys against the stand-in app are reproducible.
type CannedResponder struct {
	// Delay holds the reply back so the front end shows its loading state.
	Delay time.Duration
}

func (c CannedResponder) Reply(ctx context.Context, _ string, question string) (string, error) {
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", errs.Wrap(errs.Canceled, "canned reply canceled", ctx.Err())
		case <-t.C:
		}
	}
	return CannedReply(question), nil
}

// CannedReply is the deterministic answer for question.
func CannedReply(question string) string {
	q := strings.TrimSpace(question)
	if strings.Contains(strings.ToLower(q), "paracetamol") {
		return "**Paracetamol** is not on this patient's medication list, so I can't confirm a schedule.\n\n" +
			"- Check the label for the maximum daily dose.\n" +
			"- Ask the patient's doctor or pharmacist before combining it with other medicines."
	}
	return fmt.Sprintf("I don't have enough data in this patient's record to answer %q. "+
		"Please consult the patient's doctor for medical advice.", q)
}

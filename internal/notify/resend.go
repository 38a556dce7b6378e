package notify

import (
	"context"

	"github.com/resend/resend-go/v3"

	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/journey"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// ResendNotifier sends reports through the Resend API.
type ResendNotifier struct {
	client      *resend.Client
	fromAddress string
	to          string
}

// NewResendNotifier creates a notifier. fromAddress must be verified in Resend.
func NewResendNotifier(apiKey, fromAddress, to string) *ResendNotifier {
	return &ResendNotifier{
		client:      resend.NewClient(apiKey),
		fromAddress: fromAddress,
		to:          to,
	}
}

// Send emails the report.
func (r *ResendNotifier) Send(ctx context.Context, res *journey.Result, report string) error {
	msg := Compose(r.to, res, report)
	params := r.request(msg)

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "resend: failed to send report", err)
	}
	obs.From(ctx).Info("report emailed", "to", msg.To, "email_id", sent.Id)
	return nil
}

func (r *ResendNotifier) request(msg Message) *resend.SendEmailRequest {
	return &resend.SendEmailRequest{
		From:    r.fromAddress,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
		Text:    msg.Text,
	}
}

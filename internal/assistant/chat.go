// Package assistant answers caregiver questions about a patient and keeps
// the conversation history.
package assistant

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/pillbridge-verify/internal/db"
	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/logutil"
	"github.com/kuitang/pillbridge-verify/internal/mdrender"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Messages returned to the front end.
const (
	MsgMissingFields   = "patientId and prompt are required"
	MsgPatientNotFound = "Patient not found"
	MsgModelFailed     = "Failed to get AI response due to a server error."
)

// Sender values stored in chat history.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message is one chat history entry. HTML is Content rendered from Markdown
// and sanitized.
type Message struct {
	ID        string
	PatientID string
	Sender    string
	Content   string
	HTML      string
	CreatedAt time.Time
}

// Service runs the assistant for patients stored in db.
type Service struct {
	store     *db.Store
	responder Responder
	now       func() time.Time
}

// NewService creates a chat service.
func NewService(store *db.Store, responder Responder) *Service {
	return &Service{store: store, responder: responder, now: time.Now}
}

// Patient returns the patient record, or a NotFound error.
func (s *Service) Patient(ctx context.Context, patientID string) (db.User, error) {
	u, err := s.store.Queries().GetUserByID(ctx, patientID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && u.Role != "patient") {
		return db.User{}, errs.New(errs.NotFound, MsgPatientNotFound)
	}
	if err != nil {
		return db.User{}, errs.Wrap(errs.Internal, "lookup patient", err)
	}
	return u, nil
}

// Ask answers prompt about the patient and appends both sides of the
// exchange to the history. Nothing is stored when the model fails.
func (s *Service) Ask(ctx context.Context, patientID, prompt string) (*Message, error) {
	prompt = strings.TrimSpace(prompt)
	if patientID == "" || prompt == "" {
		return nil, errs.New(errs.InvalidArgument, MsgMissingFields)
	}
	patient, err := s.Patient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	log := obs.From(ctx).With("patient_id", patientID)
	log.Info("assistant request", "prompt", logutil.TruncateForLog(prompt, 200))

	reply, err := s.responder.Reply(ctx, SystemPrompt(patient.FullName, prompt), prompt)
	if err != nil {
		log.Error("assistant failed", "error", err)
		return nil, errs.Wrap(errs.Internal, MsgModelFailed, err)
	}
	log.Info("assistant replied", "reply", logutil.TruncateForLog(reply, 200))

	now := s.now().UTC()
	userMsg := db.ChatMessage{
		ID: uuid.NewString(), PatientID: patientID, Sender: SenderUser, Content: prompt,
		CreatedAt: now.Unix(), Seq: now.UnixNano(),
	}
	aiMsg := db.ChatMessage{
		ID: uuid.NewString(), PatientID: patientID, Sender: SenderAI, Content: reply,
		CreatedAt: now.Unix(), Seq: now.UnixNano() + 1,
	}
	if err := s.save(ctx, userMsg, aiMsg); err != nil {
		return nil, errs.Wrap(errs.Internal, MsgModelFailed, err)
	}
	return toMessage(aiMsg), nil
}

// History returns the patient's conversation, oldest first.
func (s *Service) History(ctx context.Context, patientID string) ([]*Message, error) {
	rows, err := s.store.Queries().ListChatHistory(ctx, patientID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "Failed to fetch chat history", err)
	}
	out := make([]*Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, toMessage(r))
	}
	return out, nil
}

func (s *Service) save(ctx context.Context, msgs ...db.ChatMessage) error {
	tx, err := s.store.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	q := s.store.Queries().WithTx(tx)
	for _, m := range msgs {
		if err := q.InsertChatMessage(ctx, m); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func toMessage(m db.ChatMessage) *Message {
	msg := &Message{
		ID:        m.ID,
		PatientID: m.PatientID,
		Sender:    m.Sender,
		Content:   m.Content,
		CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
	}
	if m.Sender == SenderAI {
		msg.HTML = mdrender.ToHTML(m.Content)
	}
	return msg
}

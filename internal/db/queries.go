package db

import (
	"context"
	"database/sql"
	"errors"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

// ErrUniqueViolation is returned when an insert hits a UNIQUE constraint.
var ErrUniqueViolation = errors.New("db: unique constraint violation")

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the typed statements for the stand-in app.
type Queries struct {
	db DBTX
}

// New returns queries bound to db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns queries bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// User is a row of users.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	FullName          string
	Role              string
	CaregiverCode     sql.NullString
	LinkedCaregiverID sql.NullString
	CreatedAt         int64
	UpdatedAt         int64
}

const userColumns = `id, email, password_hash, full_name, role, caregiver_code, linked_caregiver_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role,
		&u.CaregiverCode, &u.LinkedCaregiverID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser inserts a user. A duplicate email or caregiver code yields ErrUniqueViolation.
func (q *Queries) CreateUser(ctx context.Context, u User) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, u.FullName, u.Role, u.CaregiverCode, u.LinkedCaregiverID, u.CreatedAt, u.UpdatedAt)
	return mapConstraint(err)
}

// GetUserByID returns sql.ErrNoRows when missing.
func (q *Queries) GetUserByID(ctx context.Context, id string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail matches the email case-insensitively.
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower(?)`, email))
}

// GetCaregiverByCode looks a caregiver up by normalized code.
func (q *Queries) GetCaregiverByCode(ctx context.Context, code string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'caregiver' AND caregiver_code = normalize_code(?)`, code))
}

// CaregiverCodeExists reports whether a code is taken.
func (q *Queries) CaregiverCodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE caregiver_code = normalize_code(?)`, code).Scan(&n)
	return n > 0, err
}

// ListPatientsByCaregiver returns linked patients in registration order.
func (q *Queries) ListPatientsByCaregiver(ctx context.Context, caregiverID string) ([]User, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE role = 'patient' AND linked_caregiver_id = ? ORDER BY created_at, rowid`, caregiverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Session is a row of sessions.
type Session struct {
	SessionID string
	UserID    string
	ExpiresAt int64
	CreatedAt int64
}

// UpsertSession stores a session.
func (q *Queries) UpsertSession(ctx context.Context, s Session) error {
	_, err := q.db.ExecContext(ctx, `INSERT INTO sessions (session_id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET user_id = excluded.user_id, expires_at = excluded.expires_at`,
		s.SessionID, s.UserID, s.ExpiresAt, s.CreatedAt)
	return err
}

// GetValidSession returns the session if it has not expired at now.
func (q *Queries) GetValidSession(ctx context.Context, sessionID string, now int64) (Session, error) {
	var s Session
	err := q.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, expires_at, created_at FROM sessions WHERE session_id = ? AND expires_at > ?`, sessionID, now).
		Scan(&s.SessionID, &s.UserID, &s.ExpiresAt, &s.CreatedAt)
	return s, err
}

// DeleteSession removes one session.
func (q *Queries) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	return err
}

// DeleteExpiredSessions removes sessions expired at now and returns how many.
func (q *Queries) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ChatMessage is a row of chat_history.
type ChatMessage struct {
	ID        string
	PatientID string
	Sender    string
	Content   string
	CreatedAt int64
	Seq       int64
}

// InsertChatMessage appends one message.
func (q *Queries) InsertChatMessage(ctx context.Context, m ChatMessage) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO chat_history (id, patient_id, sender, content, created_at, seq) VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.PatientID, m.Sender, m.Content, m.CreatedAt, m.Seq)
	return err
}

// ListChatHistory returns a patient's messages oldest first.
func (q *Queries) ListChatHistory(ctx context.Context, patientID string) ([]ChatMessage, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, patient_id, sender, content, created_at, seq FROM chat_history WHERE patient_id = ? ORDER BY created_at, seq`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Sender, &m.Content, &m.CreatedAt, &m.Seq); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func mapConstraint(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return errors.Join(ErrUniqueViolation, err)
	}
	return err
}

// Package auth implements accounts and cookie sessions for the stand-in
// PillBridge app: caregiver/patient registration, login, and the caregiver
// code that links a patient to a caregiver.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/pillbridge-verify/internal/db"
	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
)

// Role is a stored account role.
type Role string

const (
	RoleCaregiver Role = "caregiver"
	RolePatient   Role = "patient"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCaregiver:
		return RoleCaregiver, true
	case RolePatient:
		return RolePatient, true
	}
	return "", false
}

// Messages returned to the front end. They match the product's backend.
const (
	MsgMissingFields   = "Email, password, full name, and role are required."
	MsgEmailRegistered = "Email already registered"
	MsgUserNotFound    = "User not found"
	MsgInvalidPassword = "Invalid password"
)

const (
	// CaregiverCodeLength is the length of generated caregiver codes.
	CaregiverCodeLength = 6
	codeAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts        = 8
)

// User is an account without its password hash.
type User struct {
	ID                string
	Email             string
	FullName          string
	Role              Role
	CaregiverCode     string // caregivers only
	LinkedCaregiverID string // patients only; empty when unlinked
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RegisterParams are the fields of the sign-up form.
type RegisterParams struct {
	Email         string
	Password      string
	FullName      string
	Role          string
	CaregiverCode string
}

// UserService manages accounts.
type UserService struct {
	store  *db.Store
	hasher PasswordHasher
	clock  Clock
}

// NewUserService creates a user service. A nil clock uses wall time.
func NewUserService(store *db.Store, hasher PasswordHasher, clock Clock) *UserService {
	if clock == nil {
		clock = realClock{}
	}
	return &UserService{store: store, hasher: hasher, clock: clock}
}

// Register creates an account. Caregivers receive a fresh code. A patient
// whose code matches a caregiver is linked to that caregiver; an unknown code
// leaves the patient unlinked.
func (s *UserService) Register(ctx context.Context, p RegisterParams) (*User, error) {
	email := strings.TrimSpace(p.Email)
	name := strings.TrimSpace(p.FullName)
	if email == "" || p.Password == "" || name == "" || strings.TrimSpace(p.Role) == "" {
		return nil, errs.New(errs.InvalidArgument, MsgMissingFields)
	}
	role, ok := ParseRole(p.Role)
	if !ok {
		return nil, errs.New(errs.InvalidArgument, "Role must be patient or caregiver.")
	}

	q := s.store.Queries()
	if _, err := q.GetUserByEmail(ctx, email); err == nil {
		return nil, errs.New(errs.InvalidArgument, MsgEmailRegistered)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, errs.Wrap(errs.Internal, "lookup email", err)
	}

	hash, err := s.hasher.HashPassword(p.Password)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "hash password", err)
	}

	now := s.clock.Now().UTC()
	row := db.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		FullName:     name,
		Role:         string(role),
		CreatedAt:    now.Unix(),
		UpdatedAt:    now.Unix(),
	}

	switch role {
	case RoleCaregiver:
		code, err := s.newCaregiverCode(ctx)
		if err != nil {
			return nil, err
		}
		row.CaregiverCode = sql.NullString{String: code, Valid: true}
	case RolePatient:
		if code := db.NormalizeCode(p.CaregiverCode); code != "" {
			cg, err := q.GetCaregiverByCode(ctx, code)
			switch {
			case err == nil:
				row.LinkedCaregiverID = sql.NullString{String: cg.ID, Valid: true}
			case errors.Is(err, sql.ErrNoRows):
				obs.From(ctx).Info("unknown caregiver code; patient left unlinked", "code", code)
			default:
				return nil, errs.Wrap(errs.Internal, "lookup caregiver code", err)
			}
		}
	}

	if err := q.CreateUser(ctx, row); err != nil {
		if errors.Is(err, db.ErrUniqueViolation) {
			return nil, errs.New(errs.InvalidArgument, MsgEmailRegistered)
		}
		return nil, errs.Wrap(errs.Internal, "create user", err)
	}

	obs.From(ctx).Info("user registered", "user_id", row.ID, "role", row.Role, "linked", row.LinkedCaregiverID.Valid)
	return toUser(row), nil
}

// Login checks credentials and returns the account.
func (s *UserService) Login(ctx context.Context, email, password string) (*User, error) {
	row, err := s.store.Queries().GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.InvalidArgument, MsgUserNotFound)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "lookup user", err)
	}
	if !s.hasher.VerifyPassword(password, row.PasswordHash) {
		return nil, errs.New(errs.InvalidArgument, MsgInvalidPassword)
	}
	return toUser(row), nil
}

// Get returns the account with id.
func (s *UserService) Get(ctx context.Context, id string) (*User, error) {
	row, err := s.store.Queries().GetUserByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.New(errs.NotFound, MsgUserNotFound)
	}
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "get user", err)
	}
	return toUser(row), nil
}

// PatientsOf lists the patients linked to a caregiver.
func (s *UserService) PatientsOf(ctx context.Context, caregiverID string) ([]*User, error) {
	rows, err := s.store.Queries().ListPatientsByCaregiver(ctx, caregiverID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list patients", err)
	}
	out := make([]*User, 0, len(rows))
	for _, r := range rows {
		out = append(out, toUser(r))
	}
	return out, nil
}

func (s *UserService) newCaregiverCode(ctx context.Context) (string, error) {
	for i := 0; i < codeAttempts; i++ {
		code, err := GenerateCaregiverCode()
		if err != nil {
			return "", errs.Wrap(errs.Internal, "generate caregiver code", err)
		}
		taken, err := s.store.Queries().CaregiverCodeExists(ctx, code)
		if err != nil {
			return "", errs.Wrap(errs.Internal, "check caregiver code", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", errs.New(errs.Internal, fmt.Sprintf("no free caregiver code after %d attempts", codeAttempts))
}

// GenerateCaregiverCode returns CaregiverCodeLength random upper-case letters and digits.
func GenerateCaregiverCode() (string, error) {
	buf := make([]byte, CaregiverCodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

func toUser(r db.User) *User {
	return &User{
		ID:                r.ID,
		Email:             r.Email,
		FullName:          r.FullName,
		Role:              Role(r.Role),
		CaregiverCode:     r.CaregiverCode.String,
		LinkedCaregiverID: r.LinkedCaregiverID.String,
		CreatedAt:         time.Unix(r.CreatedAt, 0).UTC(),
		UpdatedAt:         time.Unix(r.UpdatedAt, 0).UTC(),
	}
}

// Package api serves the stand-in app's JSON endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/assistant"
	"github.com/kuitang/pillbridge-verify/internal/auth"
	"github.com/kuitang/pillbridge-verify/internal/errs"
	"github.com/kuitang/pillbridge-verify/internal/obs"
	"github.com/kuitang/pillbridge-verify/internal/ratelimit"
)

const maxBodyBytes = 1 << 20

// Handler wires the user, session and assistant services to HTTP.
type Handler struct {
	users    *auth.UserService
	sessions *auth.SessionService
	chat     *assistant.Service
	limiter  *ratelimit.RateLimiter
	mw       *auth.Middleware
}

// NewHandler creates the API handler. limiter may be nil to disable chat
// rate limiting.
func NewHandler(users *auth.UserService, sessions *auth.SessionService, chat *assistant.Service, limiter *ratelimit.RateLimiter) *Handler {
	h := &Handler{users: users, sessions: sessions, chat: chat, limiter: limiter}
	h.mw = &auth.Middleware{Sessions: sessions, Users: users, OnError: writeErr}
	return h
}

// RegisterRoutes registers the API on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/users/register", h.Register)
	mux.HandleFunc("POST /api/users/login", h.Login)
	mux.HandleFunc("POST /api/users/logout", h.Logout)
	mux.Handle("GET /api/users/me", h.mw.RequireSession(http.HandlerFunc(h.Me)))
	mux.Handle("GET /api/users/patients/{caregiverId}", h.mw.RequireSession(http.HandlerFunc(h.Patients)))

	var ask http.Handler = http.HandlerFunc(h.Ask)
	if h.limiter != nil {
		ask = ratelimit.Middleware(h.limiter, caregiverKey)(ask)
	}
	mux.Handle("POST /api/ai/chat", h.mw.RequireSession(ask))
	mux.Handle("GET /api/ai/chat/{patientId}", h.mw.RequireSession(http.HandlerFunc(h.History)))
}

// UserView is the JSON form of an account. It never carries the password hash.
type UserView struct {
	ID                string    `json:"_id"`
	Email             string    `json:"email"`
	FullName          string    `json:"full_name"`
	Role              string    `json:"role"`
	CaregiverCode     string    `json:"caregiver_code,omitempty"`
	LinkedCaregiverID string    `json:"linked_caregiver_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func userView(u *auth.User) UserView {
	return UserView{
		ID:                u.ID,
		Email:             u.Email,
		FullName:          u.FullName,
		Role:              string(u.Role),
		CaregiverCode:     u.CaregiverCode,
		LinkedCaregiverID: u.LinkedCaregiverID,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
}

// UserResponse wraps a single account.
type UserResponse struct {
	User UserView `json:"user"`
}

// MessageView is the JSON form of a chat history entry.
type MessageView struct {
	ID        string    `json:"_id"`
	PatientID string    `json:"patient_id"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	HTML      string    `json:"html,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterRequest is the sign-up form body.
type RegisterRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	Role          string `json:"role"`
	CaregiverCode string `json:"caregiver_code"`
}

// LoginRequest is the sign-in form body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChatRequest asks the assistant about a patient.
type ChatRequest struct {
	PatientID string `json:"patientId"`
	Prompt    string `json:"prompt"`
}

// ChatResponse carries the assistant's reply as text and sanitized HTML.
type ChatResponse struct {
	Response string `json:"response"`
	HTML     string `json:"html"`
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Register handles POST /api/users/register and signs the new account in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := h.users.Register(r.Context(), auth.RegisterParams{
		Email:         req.Email,
		Password:      req.Password,
		FullName:      req.FullName,
		Role:          req.Role,
		CaregiverCode: req.CaregiverCode,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !h.startSession(w, r, u.ID) {
		return
	}
	writeJSON(w, http.StatusCreated, UserResponse{User: userView(u)})
}

// Login handles POST /api/users/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		writeErr(w, r, errs.New(errs.InvalidArgument, "Email and password are required."))
		return
	}
	u, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if !h.startSession(w, r, u.ID) {
		return
	}
	writeJSON(w, http.StatusOK, UserResponse{User: userView(u)})
}

// Logout handles POST /api/users/logout. It succeeds without a session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if sid := auth.GetFromRequest(r); sid != "" {
		if err := h.sessions.Delete(r.Context(), sid); err != nil {
			writeErr(w, r, err)
			return
		}
	}
	auth.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Me handles GET /api/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserResponse{User: userView(auth.UserFromContext(r.Context()))})
}

// Patients handles GET /api/users/patients/{caregiverId}.
func (h *Handler) Patients(w http.ResponseWriter, r *http.Request) {
	caregiverID := r.PathValue("caregiverId")
	me := auth.UserFromContext(r.Context())
	if me.Role != auth.RoleCaregiver || me.ID != caregiverID {
		writeErr(w, r, errs.New(errs.PermissionDenied, "Only the caregiver can list their patients"))
		return
	}
	patients, err := h.users.PatientsOf(r.Context(), caregiverID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	views := make([]UserView, 0, len(patients))
	for _, p := range patients {
		views = append(views, userView(p))
	}
	writeJSON(w, http.StatusOK, map[string][]UserView{"patients": views})
}

// Ask handles POST /api/ai/chat.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PatientID == "" || req.Prompt == "" {
		writeErr(w, r, errs.New(errs.InvalidArgument, assistant.MsgMissingFields))
		return
	}
	if !h.canSee(w, r, req.PatientID) {
		return
	}
	msg, err := h.chat.Ask(r.Context(), req.PatientID, req.Prompt)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ChatResponse{Response: msg.Content, HTML: msg.HTML})
}

// History handles GET /api/ai/chat/{patientId}. The body is a bare array,
// oldest message first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	patientID := r.PathValue("patientId")
	if !h.canSee(w, r, patientID) {
		return
	}
	msgs, err := h.chat.History(r.Context(), patientID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{
			ID:        m.ID,
			PatientID: m.PatientID,
			Sender:    m.Sender,
			Content:   m.Content,
			HTML:      m.HTML,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// canSee requires the signed-in caregiver to be linked to the patient.
func (h *Handler) canSee(w http.ResponseWriter, r *http.Request, patientID string) bool {
	patient, err := h.chat.Patient(r.Context(), patientID)
	if err != nil {
		writeErr(w, r, err)
		return false
	}
	me := auth.UserFromContext(r.Context())
	if me.Role != auth.RoleCaregiver || patient.LinkedCaregiverID.String != me.ID {
		writeErr(w, r, errs.New(errs.PermissionDenied, "This patient is not linked to you"))
		return false
	}
	return true
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, userID string) bool {
	sid, err := h.sessions.Create(r.Context(), userID)
	if err != nil {
		writeErr(w, r, err)
		return false
	}
	auth.SetCookie(w, sid)
	return true
}

func caregiverKey(r *http.Request) string {
	if u := auth.UserFromContext(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErr(w, r, errs.Wrap(errs.InvalidArgument, "Invalid JSON", err))
		return false
	}
	return true
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeErr maps a coded error to its status. Uncoded errors surface as
// "internal error" and are logged.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(errs.CodeOf(err))
	if status >= http.StatusInternalServerError {
		obs.From(r.Context()).Error("request failed", "status", status, "error", err)
	} else {
		obs.From(r.Context()).Info("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: errs.MessageOf(err)})
}

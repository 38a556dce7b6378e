// Package web serves the stand-in app's single-page front end: one HTML
// shell for every client route plus the embedded script and stylesheet.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/kuitang/pillbridge-verify/internal/obs"
)

//go:embed templates/*.html static/*
var assets embed.FS

// ShellData is passed to the shell template.
type ShellData struct {
	Title string
	Copy  UICopy
}

// Handler renders the shell and serves static assets.
type Handler struct {
	tmpl   *template.Template
	copy   UICopy
	static http.Handler
}

// NewHandler parses the embedded templates for the named copy preset.
func NewHandler(copyName string) (*Handler, error) {
	c, ok := CopyByName(copyName)
	if !ok {
		return nil, fmt.Errorf("unknown UI copy %q", copyName)
	}
	tmpl, err := template.ParseFS(assets, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}
	return &Handler{
		tmpl:   tmpl,
		copy:   c,
		static: http.StripPrefix("/static/", http.FileServerFS(sub)),
	}, nil
}

// Copy returns the active copy preset.
func (h *Handler) Copy() UICopy { return h.copy }

// RegisterRoutes registers the client routes and /static/.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.HandleShell)
	mux.HandleFunc("GET /auth", h.HandleShell)
	mux.Handle("GET /static/", h.static)
}

// HandleShell renders the SPA shell. Routing happens in the browser.
func (h *Handler) HandleShell(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "shell", ShellData{Title: "PillBridge", Copy: h.copy}); err != nil {
		obs.From(r.Context()).Error("render shell", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

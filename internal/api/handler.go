// Package api provides HTTP handlers for the prediction app.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ashureev/persona-predict/internal/csrf"
	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/language"
	"github.com/ashureev/persona-predict/internal/persona"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/internal/store"
	"github.com/ashureev/persona-predict/internal/vocab"
	"github.com/ashureev/persona-predict/web"
)

// Predictor runs assistant predictions for a session.
type Predictor interface {
	EnsureThread(ctx context.Context, sess *session.Session) error
	RunPrediction(ctx context.Context, sess *session.Session, p domain.Persona, lex *vocab.Lexicon) (string, error)
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Audit           store.AuditLog
	Predictor       Predictor
	Validator       *persona.Validator
	Guard           *csrf.Guard
	Vocab           *vocab.Store
	Resolver        *language.Resolver
	Renderer        *web.Renderer
	DownloadURL     string
	HeroBackgrounds map[string]string
}

// Handler serves the landing page, prediction API and dashboard.
type Handler struct {
	audit           store.AuditLog
	predictor       Predictor
	validator       *persona.Validator
	guard           *csrf.Guard
	vocab           *vocab.Store
	resolver        *language.Resolver
	renderer        *web.Renderer
	downloadURL     string
	heroBackgrounds map[string]string
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	downloadURL := d.DownloadURL
	if downloadURL == "" {
		downloadURL = "/"
	}
	return &Handler{
		audit:           d.Audit,
		predictor:       d.Predictor,
		validator:       d.Validator,
		guard:           d.Guard,
		vocab:           d.Vocab,
		resolver:        d.Resolver,
		renderer:        d.Renderer,
		downloadURL:     downloadURL,
		heroBackgrounds: d.HeroBackgrounds,
	}
}

// envelope is the body of every JSON response.
type envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error","data":{},"message":"encode_error"}`, http.StatusInternalServerError)
	}
}

// Success writes {"status":"success","data":data}.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

// Error writes {"status":"error","data":{},"message":code}.
func Error(w http.ResponseWriter, status int, code string) {
	JSON(w, status, envelope{Status: "error", Data: struct{}{}, Message: code})
}

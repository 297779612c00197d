package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/persona-predict/internal/assistant"
	"github.com/ashureev/persona-predict/internal/csrf"
	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/internal/vocab"
)

const maxPredictBody = 16 << 10

// Predict validates the persona and returns the assistant's answer.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	if !h.guard.Validate(sess, r.Header.Get(csrf.HeaderName)) {
		slog.Warn("CSRF validation failed", "session_id", sess.ID)
		Error(w, http.StatusForbidden, "invalid_csrf")
		return
	}

	// A body that does not decode is treated as an empty persona and fails validation.
	var raw domain.Persona
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPredictBody)).Decode(&raw); err != nil {
		slog.Debug("Undecodable predict body", "session_id", sess.ID, "error", err)
		raw = domain.Persona{}
	}

	ok, clean := h.validator.IsValid(raw)
	if !ok {
		slog.Warn("Persona rejected", "session_id", sess.ID, "industry", clean.Industry, "businesProblem", clean.BusinesProblem)
		h.audit.LogTampering(ctx, sess.ThreadID(), clean)
		Error(w, http.StatusMethodNotAllowed, "invalid_persona")
		return
	}
	sess.SetPersona(clean)

	lex := sess.Lexicon()
	if lex == nil {
		lex = h.vocab.VocabFor(vocab.DefaultLanguage)
	}

	answer, err := h.predictor.RunPrediction(ctx, sess, clean, lex)
	if err != nil {
		Error(w, http.StatusInternalServerError, assistant.CodeOf(err))
		return
	}

	h.audit.LogRequest(ctx, sess.ThreadID(), clean)
	Success(w, map[string]string{"response": answer})
}

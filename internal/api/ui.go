package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/middleware"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/web"
)

const defaultHeroBackground = "images/background_section_1_left.jpg"

// Index renders the landing page. The session gets a thread, a language,
// a lexicon and a fresh CSRF token.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := session.FromContext(ctx)

	if err := h.predictor.EnsureThread(ctx, sess); err != nil {
		h.audit.LogError(ctx, sess.ThreadID(), "thread initialization failed", domain.Persona{})
		Error(w, http.StatusInternalServerError, "thread_error")
		return
	}

	h.audit.LogSession(ctx, visitFrom(sess.ThreadID(), r))

	code := h.resolver.Resolve(sess, r)
	lex := h.vocab.VocabFor(code)
	sess.SetLexicon(lex)

	token, err := h.guard.IssueToken(sess)
	if err != nil {
		slog.Error("Failed to issue CSRF token", "session_id", sess.ID, "error", err)
		Error(w, http.StatusInternalServerError, "csrf_error")
		return
	}

	var buf bytes.Buffer
	err = h.renderer.RenderIndex(&buf, web.IndexData{
		Lexicon:        lex,
		Language:       lex.Code,
		Nonce:          middleware.Nonce(ctx),
		CSRFToken:      token,
		HeroBackground: h.heroBackground(r.URL.Query().Get("bg")),
	})
	if err != nil {
		slog.Error("Failed to render index", "error", err)
		Error(w, http.StatusInternalServerError, "render_error")
		return
	}
	writeHTML(w, buf.Bytes())
}

// Download logs the click with the session's last persona and redirects.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	h.audit.LogDownload(r.Context(), sess.ThreadID(), sess.Persona())
	http.Redirect(w, r, h.downloadURL, http.StatusFound)
}

// Peekaboo renders the analytics dashboard.
func (h *Handler) Peekaboo(w http.ResponseWriter, r *http.Request) {
	reports, err := h.audit.FetchLogs(r.Context())
	if err != nil {
		slog.Error("Failed to fetch logs", "error", err)
		Error(w, http.StatusInternalServerError, "logs_unavailable")
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.RenderPeekaboo(&buf, web.NewPeekabooData(reports)); err != nil {
		slog.Error("Failed to render dashboard", "error", err)
		Error(w, http.StatusInternalServerError, "render_error")
		return
	}
	writeHTML(w, buf.Bytes())
}

// Up is the liveness probe.
func (h *Handler) Up(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RateLimited answers throttled requests and records them as errors.
func (h *Handler) RateLimited(w http.ResponseWriter, r *http.Request) {
	var threadID string
	if sess := session.FromContext(r.Context()); sess != nil {
		threadID = sess.ThreadID()
	}
	h.audit.LogError(r.Context(), threadID, "rate_limit", domain.Persona{})
	Error(w, http.StatusTooManyRequests, "rate_limit")
}

func (h *Handler) heroBackground(key string) string {
	fallback := h.heroBackgrounds["default"]
	if fallback == "" && len(h.heroBackgrounds) > 0 {
		keys := make([]string, 0, len(h.heroBackgrounds))
		for k := range h.heroBackgrounds {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fallback = h.heroBackgrounds[keys[0]]
	}
	if fallback == "" {
		fallback = defaultHeroBackground
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if bg, ok := h.heroBackgrounds[key]; ok && key != "" {
		return bg
	}
	return fallback
}

func visitFrom(sessionID string, r *http.Request) domain.SessionVisit {
	q := r.URL.Query()
	utm := make(map[string]string, len(domain.UTMKeys))
	for _, key := range domain.UTMKeys {
		if v := q.Get(key); v != "" {
			utm[key] = v
		}
	}
	return domain.SessionVisit{SessionID: sessionID, Referrer: r.Referer(), UTM: utm}
}

func writeHTML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}

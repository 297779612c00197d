package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/ashureev/persona-predict/internal/assistant"
	"github.com/ashureev/persona-predict/internal/config"
	"github.com/ashureev/persona-predict/internal/csrf"
	"github.com/ashureev/persona-predict/internal/language"
	"github.com/ashureev/persona-predict/internal/persona"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/internal/store"
	"github.com/ashureev/persona-predict/internal/vocab"
	"github.com/ashureev/persona-predict/web"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVocab = `{
  "en": {
    "_language": "English",
    "html": {"title": "Predict"},
    "industries": {"retail": "Retail", "finance": "Finance"},
    "business_problems": {"inventory": "Inventory", "churn": "Churn"}
  },
  "de": {
    "_language": "Deutsch",
    "html": {"title": "Vorhersage"},
    "industries": {"retail": "Einzelhandel"},
    "business_problems": {"inventory": "Lager"}
  }
}`

type stubAssistant struct {
	threadErr error
	prompts   []string
}

func (s *stubAssistant) CreateThread(context.Context) (string, error) {
	if s.threadErr != nil {
		return "", s.threadErr
	}
	return "thread_1", nil
}

func (s *stubAssistant) CreateMessage(_ context.Context, _, content string) error {
	s.prompts = append(s.prompts, content)
	return nil
}

func (s *stubAssistant) CreateRun(context.Context, string, string) (assistant.Run, error) {
	return assistant.Run{ID: "run_1", Status: assistant.StatusQueued}, nil
}

func (s *stubAssistant) RetrieveRun(context.Context, string, string) (assistant.Run, error) {
	return assistant.Run{ID: "run_1", Status: assistant.StatusCompleted}, nil
}

func (s *stubAssistant) ListMessages(context.Context, string) ([]assistant.Message, error) {
	return []assistant.Message{
		{Role: "assistant", Text: "Revenue grew[1] fast", Annotations: []string{"[1]"}},
	}, nil
}

type testApp struct {
	t       *testing.T
	handler  http.Handler
	audit    *store.SQLiteStore
	dbPath   string
	sessions *session.Store
	client   *stubAssistant
	cookies  []*http.Cookie
}

func newTestApp(t *testing.T, client *stubAssistant, limits config.RateLimits) *testApp {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "logs.db")
	audit, err := store.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = audit.Close() })

	vs, err := vocab.Parse([]byte(testVocab))
	require.NoError(t, err)
	renderer, err := web.NewRenderer()
	require.NoError(t, err)

	h := NewHandler(Deps{
		Audit:       audit,
		Predictor:   assistant.NewOrchestrator(client, audit, assistant.Options{AssistantID: "asst_1", MaxPolls: 3}),
		Validator:   persona.NewValidator(vs.Industries(), vs.BusinessProblems()),
		Guard:       csrf.NewGuard(),
		Vocab:       vs,
		Resolver:    language.NewResolver("en", nil),
		Renderer:    renderer,
		DownloadURL: "https://example.com/report.pdf",
	})

	if limits.App == "" {
		limits.App = "100 per minute"
	}
	if limits.Predict == "" {
		limits.Predict = "100 per minute"
	}
	sessions := session.NewStore()
	router, stop, err := NewRouter(h, RouterOptions{
		Sessions:   sessions,
		Codec:      session.NewCodec("test-secret"),
		RateLimits: limits,
		BasicAuth: config.BasicAuthConfig{
			Username: "admin",
			Password: "hunter2",
			Folders:  []string{"/peekaboo"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(stop)

	return &testApp{t: t, handler: router, audit: audit, dbPath: dbPath, sessions: sessions, client: client}
}

func (a *testApp) do(req *http.Request) *httptest.ResponseRecorder {
	a.t.Helper()
	req.RemoteAddr = "192.0.2.1:1234"
	for _, c := range a.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		a.cookies = set
	}
	return rec
}

var csrfMeta = regexp.MustCompile(`name="csrf-token" content="([^"]+)"`)

// visit loads the landing page and returns the issued CSRF token.
func (a *testApp) visit(target string) string {
	a.t.Helper()
	rec := a.do(httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	m := csrfMeta.FindStringSubmatch(rec.Body.String())
	require.Len(a.t, m, 2)
	return m[1]
}

func (a *testApp) predict(token, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set(csrf.HeaderName, token)
	}
	return a.do(req)
}

func (a *testApp) reports() store.Reports {
	a.t.Helper()
	reports, err := a.audit.FetchLogs(context.Background())
	require.NoError(a.t, err)
	return reports
}

// sessionIDs returns the session_id column of table in insertion order.
func (a *testApp) sessionIDs(table string) []sql.NullString {
	a.t.Helper()
	db, err := sql.Open("sqlite", a.dbPath)
	require.NoError(a.t, err)
	defer func() { _ = db.Close() }()

	rows, err := db.Query(`SELECT session_id FROM ` + table + ` ORDER BY id`)
	require.NoError(a.t, err)
	defer func() { _ = rows.Close() }()

	var ids []sql.NullString
	for rows.Next() {
		var id sql.NullString
		require.NoError(a.t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(a.t, rows.Err())
	return ids
}

type body struct {
	Status  string            `json:"status"`
	Data    map[string]string `json:"data"`
	Message string            `json:"message"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) body {
	t.Helper()
	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b), rec.Body.String())
	return b
}

func TestPredictSuccess(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/?lang=de&utm_source=newsletter")

	rec := app.predict(token, `{"industry":"retail","businesProblem":"inventory"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode(t, rec)
	assert.Equal(t, "success", got.Status)
	assert.Equal(t, "Revenue grew fast", got.Data["response"])

	require.Len(t, app.client.prompts, 1)
	assert.Contains(t, app.client.prompts[0], "respond in Deutsch")

	reports := app.reports()
	assert.Equal(t, map[string]int64{"retail": 1}, reports["industry_counts"].Counts("industry"))
	assert.Len(t, reports["unique_sessions_per_day"].Rows, 1)
	assert.Empty(t, reports["errors"].Rows)
}

func TestPredictRejectsTampering(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/")

	rec := app.predict(token, `{"industry":"<script>x</script>","businesProblem":"inventory"}`)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, body{Status: "error", Data: map[string]string{}, Message: "invalid_persona"}, decode(t, rec))
	assert.Empty(t, app.client.prompts)

	tampering := app.reports()["tampering"]
	require.Len(t, tampering.Rows, 1)
	industry, _ := tampering.Rows[0][1].(string)
	assert.NotContains(t, industry, "<")
	assert.Equal(t, "inventory", tampering.Rows[0][2])
}

func TestPredictRejectsUndecodableBody(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/")

	rec := app.predict(token, `not json`)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Len(t, app.reports()["tampering"].Rows, 1)
}

func TestPredictRequiresCSRF(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/")

	for name, header := range map[string]string{"missing": "", "wrong": token + "x"} {
		t.Run(name, func(t *testing.T) {
			rec := app.predict(header, `{"industry":"retail","businesProblem":"inventory"}`)
			assert.Equal(t, http.StatusForbidden, rec.Code)
			assert.Equal(t, "invalid_csrf", decode(t, rec).Message)
		})
	}

	reports := app.reports()
	assert.Empty(t, reports["tampering"].Rows)
	assert.Empty(t, reports["industry_counts"].Rows)
	assert.Empty(t, app.client.prompts)
}

func TestPredictWithoutVisitIsForbidden(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})

	rec := app.predict("anything", `{"industry":"retail","businesProblem":"inventory"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIndexThreadFailure(t *testing.T) {
	app := newTestApp(t, &stubAssistant{threadErr: errors.New("upstream down")}, config.RateLimits{})

	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "thread_error", decode(t, rec).Message)

	reports := app.reports()
	errs := reports["errors"]
	require.Len(t, errs.Rows, 1)
	assert.Equal(t, "thread initialization failed", errs.Rows[0][3])
	assert.Empty(t, reports["unique_sessions_per_day"].Rows)
}

func TestRateLimitIsLogged(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{App: "1 per minute"})
	app.visit("/")

	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limit", decode(t, rec).Message)

	errs := app.reports()["errors"]
	require.Len(t, errs.Rows, 1)
	assert.Equal(t, []any{"unknown", "unknown", "rate_limit"}, errs.Rows[0][1:])
}

func TestUpIsExemptAndEmpty(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{App: "1 per minute"})

	for i := 0; i < 3; i++ {
		rec := app.do(httptest.NewRequest(http.MethodGet, "/up", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Empty(t, rec.Result().Cookies())
	}
}

func TestDownloadLogsCachedPersona(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/")
	require.Equal(t, http.StatusOK, app.predict(token, `{"industry":"finance","businesProblem":"churn"}`).Code)

	rec := app.do(httptest.NewRequest(http.MethodGet, "/download", nil))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://example.com/report.pdf", rec.Header().Get("Location"))
	assert.Equal(t, map[string]int64{"finance": 1}, app.reports()["download_counts"].Counts("industry"))
}

func TestPeekabooRequiresAuth(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})

	rec := app.do(httptest.NewRequest(http.MethodGet, "/peekaboo", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/peekaboo", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec = app.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	for _, name := range store.ReportNames() {
		assert.Contains(t, rec.Body.String(), `data-report="`+name+`"`)
	}
}

func TestSecurityHeadersOnIndex(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})

	rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	m := regexp.MustCompile(`'nonce-([^']+)'`).FindStringSubmatch(csp)
	require.Len(t, m, 2, csp)
	assert.Contains(t, rec.Body.String(), `nonce="`+m[1]+`"`)
}

func TestAuditRowsCarryThreadID(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{})
	token := app.visit("/")

	require.Equal(t, http.StatusMethodNotAllowed, app.predict(token, `{"industry":"mining","businesProblem":"inventory"}`).Code)
	require.Equal(t, http.StatusOK, app.predict(token, `{"industry":"retail","businesProblem":"inventory"}`).Code)
	require.Equal(t, http.StatusFound, app.do(httptest.NewRequest(http.MethodGet, "/download", nil)).Code)

	thread := sql.NullString{String: "thread_1", Valid: true}
	for _, table := range []string{"sessions", "tampering", "requests", "downloads"} {
		assert.Equal(t, []sql.NullString{thread}, app.sessionIDs(table), table)
	}
}

func TestThreadFailureRowHasNoSessionID(t *testing.T) {
	app := newTestApp(t, &stubAssistant{threadErr: errors.New("upstream down")}, config.RateLimits{})

	require.Equal(t, http.StatusInternalServerError, app.do(httptest.NewRequest(http.MethodGet, "/", nil)).Code)

	assert.Equal(t, []sql.NullString{{}}, app.sessionIDs("errors"))
}

func TestCookielessRequestsDoNotStoreSessions(t *testing.T) {
	app := newTestApp(t, &stubAssistant{}, config.RateLimits{App: "1 per minute"})

	for i := 0; i < 50; i++ {
		app.cookies = nil
		rec := app.do(httptest.NewRequest(http.MethodGet, "/download", nil))
		require.Equal(t, http.StatusFound, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
		app.cookies = nil
		app.do(httptest.NewRequest(http.MethodGet, "/peekaboo", nil))
	}
	assert.Zero(t, app.sessions.Len())

	app.cookies = nil
	app.visit("/")
	assert.Equal(t, 1, app.sessions.Len())

	for i := 0; i < 20; i++ {
		app.cookies = nil
		rec := app.do(httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Empty(t, rec.Result().Cookies())
	}
	assert.Equal(t, 1, app.sessions.Len())
}

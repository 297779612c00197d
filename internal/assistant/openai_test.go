package assistant

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFakeAssistantsAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}

	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		reply(w, `{"id":"thread_abc","object":"thread"}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user", body.Role)
		assert.Equal(t, "hello", body.Content)
		reply(w, `{"id":"msg_1","object":"thread.message","role":"user","content":[]}`)
	})
	mux.HandleFunc("POST /v1/threads/thread_abc/runs", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AssistantID string `json:"assistant_id"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "asst_1", body.AssistantID)
		reply(w, `{"id":"run_1","object":"thread.run","status":"queued"}`)
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/runs/run_1", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, `{"id":"run_1","object":"thread.run","status":"completed"}`)
	})
	mux.HandleFunc("GET /v1/threads/thread_abc/messages", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "desc", r.URL.Query().Get("order"))
		reply(w, `{"object":"list","data":[
			{"id":"msg_2","object":"thread.message","role":"assistant","content":[
				{"type":"text","text":{"value":"Margins improve[0]","annotations":[
					{"type":"file_citation","text":"[0]","start_index":15,"end_index":18}
				]}}
			]},
			{"id":"msg_1","object":"thread.message","role":"user","content":[
				{"type":"text","text":{"value":"hello","annotations":[]}}
			]}
		]}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClientRoundTrip(t *testing.T) {
	srv := newFakeAssistantsAPI(t)
	c := NewOpenAIClient("sk-test", srv.URL+"/v1")
	ctx := context.Background()

	threadID, err := c.CreateThread(ctx)
	require.NoError(t, err)
	assert.Equal(t, "thread_abc", threadID)

	require.NoError(t, c.CreateMessage(ctx, threadID, "hello"))

	run, err := c.CreateRun(ctx, threadID, "asst_1")
	require.NoError(t, err)
	assert.Equal(t, Run{ID: "run_1", Status: StatusQueued}, run)

	run, err = c.RetrieveRun(ctx, threadID, run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)

	messages, err := c.ListMessages(ctx, threadID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, Message{Role: "assistant", Text: "Margins improve[0]", Annotations: []string{"[0]"}}, messages[0])

	answer, err := extractAnswer(messages)
	require.NoError(t, err)
	assert.Equal(t, "Margins improve", answer)
}

func TestOpenAIClientWrapsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient("sk-test", srv.URL+"/v1")
	_, err := c.CreateThread(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create thread")
}

package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/persona-predict/internal/domain"
	"github.com/ashureev/persona-predict/internal/session"
	"github.com/ashureev/persona-predict/internal/store"
	"github.com/ashureev/persona-predict/internal/vocab"
	"golang.org/x/sync/singleflight"
)

// Defaults for run polling.
const (
	DefaultMaxPolls     = 20
	DefaultPollInterval = 500 * time.Millisecond
)

// Options tunes the orchestrator.
type Options struct {
	AssistantID  string
	MaxPolls     int
	PollInterval time.Duration
}

// Orchestrator runs the thread, message, run and poll sequence for one prediction.
type Orchestrator struct {
	client       Client
	audit        store.AuditLog
	assistantID  string
	maxPolls     int
	pollInterval time.Duration

	threads singleflight.Group
}

// NewOrchestrator creates an orchestrator. A non-positive MaxPolls falls back
// to DefaultMaxPolls; a zero PollInterval polls without sleeping.
func NewOrchestrator(client Client, audit store.AuditLog, opts Options) *Orchestrator {
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.PollInterval < 0 {
		opts.PollInterval = 0
	}
	return &Orchestrator{
		client:       client,
		audit:        audit,
		assistantID:  opts.AssistantID,
		maxPolls:     opts.MaxPolls,
		pollInterval: opts.PollInterval,
	}
}

// EnsureThread makes sure the session holds a conversation thread.
// Concurrent calls for one session share a single creation. On failure the
// session is left unchanged and a ThreadError is returned.
func (o *Orchestrator) EnsureThread(ctx context.Context, sess *session.Session) error {
	if sess.ThreadID() != "" {
		return nil
	}

	_, err, _ := o.threads.Do(sess.ID, func() (any, error) {
		if id := sess.ThreadID(); id != "" {
			return id, nil
		}
		id, err := o.client.CreateThread(ctx)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, errors.New("empty thread id")
		}
		sess.SetThreadID(id)
		return id, nil
	})
	if err != nil {
		slog.Error("Thread creation failed", "session_id", sess.ID, "error", err)
		return &Failure{Kind: ThreadError, Err: err}
	}
	return nil
}

// RunPrediction asks the assistant about the persona and returns the cleaned
// answer. Predictions on one session run one at a time. Any failure after the
// thread exists is written to the audit log once, keyed by thread ID, with
// the persona attached.
func (o *Orchestrator) RunPrediction(ctx context.Context, sess *session.Session, p domain.Persona, lex *vocab.Lexicon) (string, error) {
	unlock := sess.LockPrediction()
	defer unlock()

	if err := o.EnsureThread(ctx, sess); err != nil {
		return "", err
	}
	threadID := sess.ThreadID()

	answer, err := o.predict(ctx, threadID, BuildPrompt(p, lex))
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Kind: ExternalFault, Err: err}
		}
		slog.Error("Prediction failed",
			"session_id", sess.ID,
			"thread_id", threadID,
			"kind", f.Kind,
			"error", f.Err)
		o.audit.LogError(context.WithoutCancel(ctx), threadID, f.Err.Error(), p)
		return "", f
	}
	return answer, nil
}

func (o *Orchestrator) predict(ctx context.Context, threadID, prompt string) (string, error) {
	if err := o.client.CreateMessage(ctx, threadID, prompt); err != nil {
		return "", err
	}
	run, err := o.client.CreateRun(ctx, threadID, o.assistantID)
	if err != nil {
		return "", err
	}
	if err := o.pollRun(ctx, threadID, run.ID); err != nil {
		return "", err
	}
	messages, err := o.client.ListMessages(ctx, threadID)
	if err != nil {
		return "", err
	}
	return extractAnswer(messages)
}

// pollRun waits for the run to complete, retrieving its state at most maxPolls times.
func (o *Orchestrator) pollRun(ctx context.Context, threadID, runID string) error {
	for attempt := 0; attempt < o.maxPolls; attempt++ {
		if attempt > 0 && o.pollInterval > 0 {
			select {
			case <-time.After(o.pollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		run, err := o.client.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return err
		}
		switch run.Status {
		case StatusCompleted:
			return nil
		case StatusQueued, StatusInProgress:
		default:
			return &Failure{Kind: RunFailed, Err: fmt.Errorf("%w %s", errUnexpectedStatus, run.Status)}
		}
	}
	return &Failure{Kind: RunTimeout, Err: errRunTimeout}
}

func extractAnswer(messages []Message) (string, error) {
	for _, m := range messages {
		if m.Role != "assistant" {
			continue
		}
		text := m.Text
		for _, a := range m.Annotations {
			text = strings.ReplaceAll(text, a, "")
		}
		return text, nil
	}
	return "", errNoAssistantAnswer
}

// BuildPrompt renders the instruction sent for a persona.
func BuildPrompt(p domain.Persona, lex *vocab.Lexicon) string {
	return fmt.Sprintf("I am working in `%s` and I am concerned about %s. IMPORTANT: respond in %s.",
		p.Industry, p.BusinesProblem, lex.DisplayName())
}

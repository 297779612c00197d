package assistant

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

const listMessagesLimit = 20

// OpenAIClient implements Client over the OpenAI Assistants API.
type OpenAIClient struct {
	api *openai.Client
}

// NewOpenAIClient creates a client. baseURL overrides the API endpoint when non-empty.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	slog.Debug("OpenAI client configured", "base_url", cfg.BaseURL)
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg)}
}

// CreateThread implements Client.
func (c *OpenAIClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// CreateMessage implements Client.
func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID, content string) error {
	_, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// CreateRun implements Client.
func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, assistantID string) (Run, error) {
	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return Run{ID: run.ID, Status: string(run.Status)}, nil
}

// RetrieveRun implements Client.
func (c *OpenAIClient) RetrieveRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	return Run{ID: run.ID, Status: string(run.Status)}, nil
}

// ListMessages implements Client.
func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	limit := listMessagesLimit
	order := "desc"
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func toMessage(m openai.Message) Message {
	msg := Message{Role: m.Role}
	for _, content := range m.Content {
		if content.Text == nil {
			continue
		}
		msg.Text = content.Text.Value
		for _, a := range content.Text.Annotations {
			if text := annotationText(a); text != "" {
				msg.Annotations = append(msg.Annotations, text)
			}
		}
		break
	}
	return msg
}

// annotationText pulls the replaced span out of a loosely typed annotation.
func annotationText(a any) string {
	fields, ok := a.(map[string]any)
	if !ok {
		return ""
	}
	text, _ := fields["text"].(string)
	return text
}

var _ Client = (*OpenAIClient)(nil)

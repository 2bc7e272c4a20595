package services

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"chatagent-backend/models"
)

// RunState is the coarse status of one assistant run.
type RunState string

const (
	RunPending   RunState = "pending"
	RunCompleted RunState = "completed"
	RunFailed    RunState = "failed"
)

// AssistantBackend is the AI completion collaborator: a persistent
// conversation session per chat, content submission, run-status polling and
// result retrieval.
type AssistantBackend interface {
	CreateSession(ctx context.Context) (string, error)
	Submit(ctx context.Context, sessionID, content string) (string, error)
	PollStatus(ctx context.Context, sessionID, runID string) (RunState, error)
	FetchResult(ctx context.Context, sessionID string) (string, error)
}

// AssistantFactory builds a backend from one tenant's AI credentials.
type AssistantFactory func(app *models.App) AssistantBackend

// NewAssistantFactory returns the production factory over the OpenAI
// Assistants API.
func NewAssistantFactory() AssistantFactory {
	return func(app *models.App) AssistantBackend {
		return NewOpenAIAssistant(app.OpenAIAPIKey, app.AssistantID)
	}
}

// OpenAIAssistant implements AssistantBackend on the Assistants API: the
// session is an API thread, a submission is a message plus a run.
type OpenAIAssistant struct {
	client      *openai.Client
	assistantID string
}

func NewOpenAIAssistant(apiKey, assistantID string) *OpenAIAssistant {
	return &OpenAIAssistant{
		client:      openai.NewClient(apiKey),
		assistantID: assistantID,
	}
}

func (a *OpenAIAssistant) CreateSession(ctx context.Context) (string, error) {
	thread, err := a.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("failed to create assistant thread: %w", err)
	}
	return thread.ID, nil
}

func (a *OpenAIAssistant) Submit(ctx context.Context, sessionID, content string) (string, error) {
	_, err := a.client.CreateMessage(ctx, sessionID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add message to thread: %w", err)
	}

	run, err := a.client.CreateRun(ctx, sessionID, openai.RunRequest{
		AssistantID: a.assistantID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return run.ID, nil
}

func (a *OpenAIAssistant) PollStatus(ctx context.Context, sessionID, runID string) (RunState, error) {
	run, err := a.client.RetrieveRun(ctx, sessionID, runID)
	if err != nil {
		return RunPending, fmt.Errorf("failed to retrieve run: %w", err)
	}

	switch run.Status {
	case openai.RunStatusCompleted:
		return RunCompleted, nil
	case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired,
		openai.RunStatusRequiresAction:
		return RunFailed, nil
	default:
		return RunPending, nil
	}
}

// FetchResult returns the newest message of the session, which after a
// completed run is the assistant's reply.
func (a *OpenAIAssistant) FetchResult(ctx context.Context, sessionID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := a.client.ListMessage(ctx, sessionID, &limit, &order, nil, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list thread messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return "", errors.New("assistant produced no reply")
	}
	for _, content := range list.Messages[0].Content {
		if content.Text != nil {
			return content.Text.Value, nil
		}
	}
	return "", errors.New("assistant reply had no text content")
}

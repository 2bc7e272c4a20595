package services

import (
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// AssistantError is a classified failure from the assistant backend, used by
// the worker to decide between retrying a job and failing it permanently.
type AssistantError struct {
	StatusCode int
	Message    string
}

func (e *AssistantError) Error() string {
	return fmt.Sprintf("[assistant %d] %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for temporary failures worth another attempt.
func (e *AssistantError) IsRetryable() bool {
	return e.StatusCode == 408 || // Request Timeout
		e.StatusCode == 429 || // Too Many Requests
		e.StatusCode == 500 ||
		e.StatusCode == 502 ||
		e.StatusCode == 503
}

// IsAuthError returns true when the tenant's API key is rejected.
func (e *AssistantError) IsAuthError() bool {
	return e.StatusCode == 401
}

// IsQuotaError returns true when the tenant's account is out of quota.
func (e *AssistantError) IsQuotaError() bool {
	return e.StatusCode == 402 || e.StatusCode == 429 && strings.Contains(strings.ToLower(e.Message), "quota")
}

// ClassifyAssistantError converts an SDK error into an AssistantError.
func ClassifyAssistantError(err error) *AssistantError {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &AssistantError{
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
		}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return &AssistantError{StatusCode: 408, Message: "request timeout"}
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "invalid api key"):
		return &AssistantError{StatusCode: 401, Message: "authentication failed"}
	case strings.Contains(lower, "quota") || strings.Contains(lower, "insufficient") || strings.Contains(lower, "billing"):
		return &AssistantError{StatusCode: 402, Message: "quota exceeded"}
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return &AssistantError{StatusCode: 429, Message: "rate limit exceeded"}
	case strings.Contains(lower, "bad gateway") || strings.Contains(lower, "service unavailable"):
		return &AssistantError{StatusCode: 503, Message: "service temporarily unavailable"}
	default:
		return &AssistantError{StatusCode: 500, Message: msg}
	}
}

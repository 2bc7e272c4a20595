package services

import (
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestClassifyAssistantErrorFromAPIError(t *testing.T) {
	t.Parallel()

	err := &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}
	classified := ClassifyAssistantError(err)

	if classified.StatusCode != 429 {
		t.Fatalf("unexpected status: %d", classified.StatusCode)
	}
	if !classified.IsRetryable() {
		t.Fatalf("429 must be retryable")
	}
	if classified.IsAuthError() {
		t.Fatalf("429 is not an auth error")
	}
}

func TestClassifyAssistantErrorHeuristics(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		err        error
		wantStatus int
		retryable  bool
	}{
		{"timeout", errors.New("context deadline exceeded"), 408, true},
		{"auth", errors.New("Unauthorized: invalid API key provided"), 401, false},
		{"quota", errors.New("You exceeded your current quota"), 402, false},
		{"rate limit", errors.New("rate limit exceeded, retry later"), 429, true},
		{"bad gateway", errors.New("502 Bad Gateway"), 503, true},
		{"unknown", errors.New("something odd"), 500, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyAssistantError(tc.err)
			if got.StatusCode != tc.wantStatus {
				t.Fatalf("want status %d, got %d", tc.wantStatus, got.StatusCode)
			}
			if got.IsRetryable() != tc.retryable {
				t.Fatalf("want retryable=%v, got %v", tc.retryable, got.IsRetryable())
			}
		})
	}
}

func TestClassifyAssistantErrorNil(t *testing.T) {
	t.Parallel()

	if got := ClassifyAssistantError(nil); got != nil {
		t.Fatalf("nil error must classify to nil, got %#v", got)
	}
}

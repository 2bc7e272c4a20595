package services

import "errors"

// Error taxonomy for the inbound pipeline. Verification-layer failures map
// to non-200 HTTP responses; everything downstream of a verified webhook
// degrades to a user-visible fallback message instead (upstream platforms
// aggressively retry non-2xx, which would duplicate processing).
var (
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrTenantNotFound     = errors.New("app not found for platform identifier")
	ErrMalformedPayload   = errors.New("malformed webhook payload")
	ErrNotAMessageEvent   = errors.New("not a message event")
	ErrDuplicateMessage   = errors.New("duplicate message")
	ErrUnsupportedContent = errors.New("unsupported media type")
	ErrMediaRelay         = errors.New("media relay failed")
	ErrDispatchFailed     = errors.New("assistant dispatch failed")
	ErrDispatchTimeout    = errors.New("assistant dispatch timed out")
)

// Fallback texts sent when the pipeline cannot produce a real reply. The
// liveness guarantee is that the user always receives some response.
const (
	FallbackUnsupported  = "Sorry, I can only process text, images, or documents."
	FallbackMediaFailed  = "Sorry, we couldn't process your file. Please try again later."
	FallbackDispatchFail = "Sorry, we were unable to process your message. Please try again later."
)

package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"chatagent-backend/config"
)

func verifyRouter(verifyToken string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.WhatsApp.VerifyToken = verifyToken

	h := NewWebhookHandler(cfg, nil, nil, nil, nil)
	router := gin.New()
	router.GET("/webhook", h.Verify)
	router.POST("/webhook", h.Receive)
	return router
}

func TestVerifyHandshakeEchoesChallenge(t *testing.T) {
	router := verifyRouter("token-123")

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=token-123&hub.challenge=4815162342", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Body.String() != "4815162342" {
		t.Fatalf("challenge not echoed: %q", w.Body.String())
	}
}

func TestVerifyHandshakeWrongToken(t *testing.T) {
	router := verifyRouter("token-123")

	req := httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=x", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestVerifyHandshakeMissingParams(t *testing.T) {
	router := verifyRouter("token-123")

	req := httptest.NewRequest(http.MethodGet, "/webhook?hub.mode=subscribe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestReceiveStatusUpdateAcknowledgedWithoutSideEffects(t *testing.T) {
	router := verifyRouter("token-123")

	// Tenant resolution and persistence are nil in this handler; reaching
	// either would panic, so a 200 also proves the early return.
	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"metadata": {"phone_number_id": "999"},
			"statuses": [{"id": "wamid.x", "status": "read"}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestReceiveNonEventPayload(t *testing.T) {
	router := verifyRouter("token-123")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"hello":"world"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for a non-event payload, got %d", w.Code)
	}
}

func TestReceiveMessageEventWithoutMetadata(t *testing.T) {
	router := verifyRouter("token-123")

	payload := `{
		"object": "whatsapp_business_account",
		"entry": [{"changes": [{"value": {
			"contacts": [{"wa_id": "628", "profile": {"name": "B"}}],
			"messages": [{"id": "wamid.y", "type": "text", "text": {"body": "hi"}}]
		}}]}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without phone_number_id, got %d", w.Code)
	}
}

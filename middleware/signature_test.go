package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func signedRequest(t *testing.T, secret string, body []byte, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/webhook", SignatureRequired(secret), func(c *gin.Context) {
		got, err := io.ReadAll(c.Request.Body)
		if err != nil {
			t.Errorf("handler could not read body: %v", err)
		}
		if !bytes.Equal(got, body) {
			t.Errorf("body not preserved for the handler: %q", got)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	signature := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", signature)
	if mutate != nil {
		mutate(req)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSignatureRequiredAcceptsValidSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	w := signedRequest(t, "topsecret", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSignatureRequiredRejectsTamperedSignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	w := signedRequest(t, "topsecret", body, func(req *http.Request) {
		sig := req.Header.Get("X-Hub-Signature-256")
		// Flip the last hex digit.
		last := sig[len(sig)-1]
		if last == 'a' {
			last = 'b'
		} else {
			last = 'a'
		}
		req.Header.Set("X-Hub-Signature-256", sig[:len(sig)-1]+string(last))
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSignatureRequiredRejectsMissingHeader(t *testing.T) {
	body := []byte(`{}`)
	w := signedRequest(t, "topsecret", body, func(req *http.Request) {
		req.Header.Del("X-Hub-Signature-256")
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
}

func TestSignatureRequiredSkipsWithoutSecret(t *testing.T) {
	body := []byte(`{}`)
	w := signedRequest(t, "", body, func(req *http.Request) {
		req.Header.Del("X-Hub-Signature-256")
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 when verification is disabled, got %d", w.Code)
	}
}

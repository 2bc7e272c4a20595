package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SignatureRequired verifies the X-Hub-Signature-256 header the WhatsApp
// Cloud API attaches to every webhook delivery: HMAC-SHA256 of the raw body
// keyed with the app secret. The body is re-attached for the handler.
// An empty secret disables verification (local development only).
func SignatureRequired(appSecret string) gin.HandlerFunc {
	if appSecret == "" {
		log.Println("⚠️  WA_APP_SECRET not set - webhook signature verification disabled")
	}

	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable body"})
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if appSecret == "" {
			c.Next()
			return
		}

		signature := strings.TrimPrefix(c.GetHeader("X-Hub-Signature-256"), "sha256=")
		if !verifySignature(body, appSecret, signature) {
			log.Println("🚫 Webhook signature verification failed")
			c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "invalid signature"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// verifySignature compares the expected HMAC digest in constant time.
func verifySignature(body []byte, secret, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

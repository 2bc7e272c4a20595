package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chatagent-backend/config"
	"chatagent-backend/models"
	"chatagent-backend/services"
)

// WebhookHandler terminates the WhatsApp Cloud API webhook: handshake
// verification on GET, inbound message processing on POST. Everything past
// verification answers 200 - the platform retries non-2xx aggressively and
// retries would re-run the pipeline.
type WebhookHandler struct {
	cfg           *config.Config
	db            *gorm.DB
	resolver      *services.TenantResolver
	conversations *services.ConversationService
	relay         *services.MediaRelay
}

func NewWebhookHandler(cfg *config.Config, db *gorm.DB, resolver *services.TenantResolver,
	conversations *services.ConversationService, relay *services.MediaRelay) *WebhookHandler {
	return &WebhookHandler{
		cfg:           cfg,
		db:            db,
		resolver:      resolver,
		conversations: conversations,
		relay:         relay,
	}
}

// Verify implements the subscription handshake: echo hub.challenge when the
// verify token matches.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "Missing parameters"})
		return
	}
	if mode != "subscribe" || token != h.cfg.WhatsApp.VerifyToken {
		log.Println("🚫 Webhook verification failed: token mismatch")
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "Verification failed"})
		return
	}

	log.Println("✅ Webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive processes one webhook delivery. The signature middleware has
// already authenticated the body.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable body"})
		return
	}

	event, err := services.DecodeWhatsAppEvent(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "not a valid payload"})
		return
	}

	// Delivery-status callbacks fire for every outbound message; acknowledge
	// and do nothing.
	if event.IsStatusUpdate() {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if !event.IsMessageEvent() {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "not a whatsapp api event"})
		return
	}

	phoneNumberID := event.PhoneNumberID()
	if phoneNumberID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "missing phone_number_id"})
		return
	}

	app, err := h.resolver.ResolveByWabaPhoneID(phoneNumberID)
	if err != nil {
		log.Printf("🚫 No app for phone_number_id=%s", phoneNumberID)
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "unknown phone number id"})
		return
	}

	channel := services.NewWhatsAppChannel(app, h.cfg.WhatsApp.APIVersion)
	ctx := c.Request.Context()

	in, err := event.Message()
	if err != nil {
		if errors.Is(err, services.ErrUnsupportedContent) && in != nil && in.ChatID != "" {
			h.sendFallback(ctx, channel, in.ChatID, services.FallbackUnsupported)
			c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "unsupported content"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "malformed message"})
		return
	}

	log.Printf("📨 [%s] Inbound %s from %s (message: %s)", app.AppID, in.MessageType, in.ChatID, in.MessageID)

	status, resp := processInbound(ctx, &inboundDeps{
		db:            h.db,
		conversations: h.conversations,
		relay:         h.relay,
	}, app, channel, in)
	c.JSON(status, resp)
}

func (h *WebhookHandler) sendFallback(ctx context.Context, channel services.MessageChannel, chatID, text string) {
	if err := channel.SendText(ctx, chatID, text); err != nil {
		log.Printf("⚠️  Failed to send fallback reply: %v", err)
	}
}

// inboundDeps bundles what the shared pipeline tail needs; both platform
// webhooks converge here once they hold an app and a canonical message.
type inboundDeps struct {
	db            *gorm.DB
	conversations *services.ConversationService
	relay         *services.MediaRelay
}

// processInbound runs the platform-independent tail of the pipeline: media
// relay, persistence, reply-mode gate, job enqueue. Always returns 200 -
// failures degrade to fallback replies.
func processInbound(ctx context.Context, deps *inboundDeps, app *models.App,
	channel services.MessageChannel, in *services.InboundMessage) (int, gin.H) {

	mediaURL := ""
	if in.HasMedia() {
		url, err := deps.relay.Relay(ctx, channel, app.AppID, in.MediaID, in.MimeType)
		if err != nil {
			text := services.FallbackMediaFailed
			if errors.Is(err, services.ErrUnsupportedContent) {
				text = services.FallbackUnsupported
			}
			log.Printf("⚠️  Media relay failed for %s: %v", in.MessageID, err)
			if sendErr := channel.SendText(ctx, in.ChatID, text); sendErr != nil {
				log.Printf("⚠️  Failed to send fallback reply: %v", sendErr)
			}
			return http.StatusOK, gin.H{"status": "ok", "message": "media rejected"}
		}
		mediaURL = url
	}

	if err := deps.conversations.EnsureContact(app, in.ChatID, in.SenderName, in.Phone); err != nil {
		log.Printf("⚠️  Failed to ensure contact %s: %v", in.ChatID, err)
	}

	dispatch := services.ShouldAutoReply(app, time.Now())

	// The message row and its dispatch job commit together. A partial write
	// would make the duplicate-message guard absorb the platform's retry
	// while no job exists, and the message would never be answered.
	var msg *models.Message
	job := models.DispatchJob{
		Status:     models.JobPending,
		Priority:   5,
		AppID:      app.AppID,
		ChatID:     in.ChatID,
		SenderName: in.SenderName,
		Content:    in.Text,
		MediaURL:   mediaURL,
	}
	err := deps.db.Transaction(func(tx *gorm.DB) error {
		var appendErr error
		msg, appendErr = deps.conversations.WithTx(tx).AppendMessage(services.AppendInput{
			App:         app,
			ChatID:      in.ChatID,
			Direction:   models.DirectionInbound,
			Role:        models.RoleUser,
			Content:     in.Text,
			MessageType: in.MessageType,
			MediaURL:    mediaURL,
			MessageID:   in.MessageID,
			ContactName: in.SenderName,
		})
		if appendErr != nil {
			return appendErr
		}
		if !dispatch {
			return nil
		}
		job.MessageID = msg.MessageID
		return tx.Create(&job).Error
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateMessage) {
			log.Printf("Duplicate message %s - skipped", in.MessageID)
			return http.StatusOK, gin.H{"status": "ok", "message": "duplicate message"}
		}
		log.Printf("⚠️  Failed to save message %s: %v", in.MessageID, err)
		return http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to save message"}
	}

	if !dispatch {
		log.Printf("💤 [%s] Auto-reply off/outside window - stored only", app.AppID)
		return http.StatusOK, gin.H{"status": "ok", "message": "stored"}
	}

	// The insert trigger fires NOTIFY; the worker wakes instantly.
	log.Printf("✅ Job #%d queued (message: %s)", job.ID, msg.MessageID)
	return http.StatusOK, gin.H{"status": "queued", "message_id": msg.MessageID, "job_id": job.ID}
}

package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"gorm.io/gorm"

	"chatagent-backend/services"
)

// TelegramWebhookHandler terminates Telegram Bot API webhooks. Tenancy is
// carried by the unguessable app_token query parameter the tenant put in its
// setWebhook URL; there is no signature scheme on this platform.
type TelegramWebhookHandler struct {
	db            *gorm.DB
	resolver      *services.TenantResolver
	conversations *services.ConversationService
	relay         *services.MediaRelay
	telegram      *services.TelegramFactory
}

func NewTelegramWebhookHandler(db *gorm.DB, resolver *services.TenantResolver,
	conversations *services.ConversationService, relay *services.MediaRelay,
	telegram *services.TelegramFactory) *TelegramWebhookHandler {
	return &TelegramWebhookHandler{
		db:            db,
		resolver:      resolver,
		conversations: conversations,
		relay:         relay,
		telegram:      telegram,
	}
}

// Receive processes one Update delivery.
func (h *TelegramWebhookHandler) Receive(c *gin.Context) {
	app, err := h.resolver.ResolveByAppToken(c.Query("app_token"))
	if err != nil {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "unknown app token"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "not a valid update"})
		return
	}

	in, err := services.ParseTelegramUpdate(&update)
	if err != nil && !errors.Is(err, services.ErrUnsupportedContent) {
		// Edited messages, channel posts and other non-message updates are
		// acknowledged so Telegram stops redelivering them.
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "ignored"})
		return
	}

	channel, chErr := h.telegram.Channel(app)
	if chErr != nil {
		log.Printf("⚠️  Failed to build telegram channel for app %s: %v", app.AppID, chErr)
		c.JSON(http.StatusOK, gin.H{"status": "error", "message": "channel unavailable"})
		return
	}
	ctx := c.Request.Context()

	if errors.Is(err, services.ErrUnsupportedContent) {
		if sendErr := channel.SendText(ctx, in.ChatID, services.FallbackUnsupported); sendErr != nil {
			log.Printf("⚠️  Failed to send fallback reply: %v", sendErr)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "unsupported content"})
		return
	}

	// Bot commands get canned replies and never reach the assistant or the
	// conversation log.
	if strings.HasPrefix(in.Text, "/") {
		command := strings.Fields(in.Text)[0]
		reply := services.TelegramCommandReply(command, in.SenderName)
		if sendErr := channel.SendText(ctx, in.ChatID, reply); sendErr != nil {
			log.Printf("⚠️  Failed to send command reply: %v", sendErr)
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "command handled"})
		return
	}

	log.Printf("📨 [%s] Inbound %s from telegram chat %s", app.AppID, in.MessageType, in.ChatID)

	status, resp := processInbound(ctx, &inboundDeps{
		db:            h.db,
		conversations: h.conversations,
		relay:         h.relay,
	}, app, channel, in)
	c.JSON(status, resp)
}

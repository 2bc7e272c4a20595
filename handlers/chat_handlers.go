package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"chatagent-backend/config"
	"chatagent-backend/middleware"
	"chatagent-backend/models"
	"chatagent-backend/services"
)

// ChatHandler serves the dashboard inbox: thread listing, per-chat history
// and manual agent sends.
type ChatHandler struct {
	cfg           *config.Config
	db            *gorm.DB
	conversations *services.ConversationService
	telegram      *services.TelegramFactory
}

func NewChatHandler(cfg *config.Config, db *gorm.DB, conversations *services.ConversationService,
	telegram *services.TelegramFactory) *ChatHandler {
	return &ChatHandler{
		cfg:           cfg,
		db:            db,
		conversations: conversations,
		telegram:      telegram,
	}
}

// ownedApp loads the app named by the app_id query parameter and checks it
// belongs to the authenticated owner.
func ownedApp(db *gorm.DB, c *gin.Context, appID string) (*models.App, bool) {
	if appID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "app_id is required"})
		return nil, false
	}

	var app models.App
	err := db.Where("app_id = ?", appID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "message": "app not found"})
		return nil, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to load app"})
		return nil, false
	}
	if app.OwnerID != c.GetString(middleware.CtxOwnerID) {
		c.JSON(http.StatusForbidden, gin.H{"status": "error", "message": "not your app"})
		return nil, false
	}
	return &app, true
}

// ListThreads returns the inbox, most recently active first.
// GET /api/v1/messages?app_id=...&platform=...&limit=...&cursor=...
func (h *ChatHandler) ListThreads(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Query("app_id"))
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, err := h.conversations.ListThreads(app.AppID, c.Query("platform"), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, services.ErrMalformedPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid cursor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list threads"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"threads": page.Threads,
		"metadata": gin.H{
			"count":       len(page.Threads),
			"limit":       limit,
			"has_more":    page.HasMore,
			"next_cursor": page.NextCursor,
		},
	})
}

// ListMessages returns one chat's log, most recent first.
// GET /api/v1/messages/:chat_id?app_id=...&limit=...&cursor=...
func (h *ChatHandler) ListMessages(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Query("app_id"))
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	page, err := h.conversations.ListMessages(app.AppID, c.Param("chat_id"), limit, c.Query("cursor"))
	if err != nil {
		if errors.Is(err, services.ErrMalformedPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid cursor"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"messages": page.Messages,
		"metadata": gin.H{
			"count":       len(page.Messages),
			"limit":       limit,
			"has_more":    page.HasMore,
			"next_cursor": page.NextCursor,
		},
	})
}

type agentSendRequest struct {
	AppID string `json:"app_id" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// SendMessage lets a human agent reply into a chat from the dashboard. The
// message goes out on the app's platform channel and lands in the log as an
// outbound agent message.
// POST /api/v1/messages/:chat_id/send
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req agentSendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "app_id and text are required"})
		return
	}

	app, ok := ownedApp(h.db, c, req.AppID)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")

	var channel services.MessageChannel
	switch app.Platform {
	case models.PlatformWhatsApp:
		channel = services.NewWhatsAppChannel(app, h.cfg.WhatsApp.APIVersion)
	case models.PlatformTelegram:
		tg, err := h.telegram.Channel(app)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "telegram bot unavailable"})
			return
		}
		channel = tg
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "unknown platform"})
		return
	}

	if err := channel.SendText(c.Request.Context(), chatID, req.Text); err != nil {
		log.Printf("⚠️  Agent send failed for chat %s: %v", chatID, err)
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "message": "failed to deliver message"})
		return
	}

	msg, err := h.conversations.AppendMessage(services.AppendInput{
		App:         app,
		ChatID:      chatID,
		Direction:   models.DirectionOutbound,
		Role:        models.RoleAgent,
		Content:     req.Text,
		MessageType: models.TypeText,
	})
	if err != nil {
		log.Printf("⚠️  Failed to record agent message: %v", err)
		c.JSON(http.StatusOK, gin.H{"status": "sent", "message": "delivered but not recorded"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent", "message_id": msg.MessageID})
}

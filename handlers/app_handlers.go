package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"chatagent-backend/middleware"
	"chatagent-backend/models"
)

// AppHandler manages tenant app records and their credential blocks.
type AppHandler struct {
	db *gorm.DB
}

func NewAppHandler(db *gorm.DB) *AppHandler {
	return &AppHandler{db: db}
}

type createAppRequest struct {
	Name             string `json:"name" binding:"required"`
	Platform         string `json:"platform" binding:"required"`
	WabaPhoneID      string `json:"waba_phone_id"`
	WabaAccessToken  string `json:"waba_access_token"`
	TelegramBotToken string `json:"telegram_bot_token"`
	AssistantID      string `json:"assistant_id"`
	OpenAIAPIKey     string `json:"openai_api_key"`
	ReplyMode        string `json:"reply_mode"`
	ReplySchedule    string `json:"reply_schedule"`
}

// Create registers a new app. Telegram apps get a generated app token for
// their webhook URL.
// POST /api/v1/apps
func (h *AppHandler) Create(c *gin.Context) {
	var req createAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "name and platform are required"})
		return
	}
	if req.Platform != models.PlatformWhatsApp && req.Platform != models.PlatformTelegram {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "platform must be whatsapp or telegram"})
		return
	}

	if req.WabaPhoneID != "" && h.wabaPhoneIDTaken(req.WabaPhoneID, "") {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "waba_phone_id already registered to another app"})
		return
	}

	app := models.App{
		AppID:            uuid.NewString(),
		OwnerID:          c.GetString(middleware.CtxOwnerID),
		Name:             req.Name,
		Platform:         req.Platform,
		WabaPhoneID:      req.WabaPhoneID,
		WabaAccessToken:  req.WabaAccessToken,
		TelegramBotToken: req.TelegramBotToken,
		AssistantID:      req.AssistantID,
		OpenAIAPIKey:     req.OpenAIAPIKey,
		ReplyMode:        req.ReplyMode,
		ReplySchedule:    req.ReplySchedule,
	}
	if app.ReplyMode == "" {
		app.ReplyMode = models.ReplyModeAuto
	}
	if app.Platform == models.PlatformTelegram {
		app.AppToken = uuid.NewString()
	}

	if err := h.db.Create(&app).Error; err != nil {
		log.Printf("⚠️  Failed to create app: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to create app"})
		return
	}

	log.Printf("✅ App %s created (%s, owner %s)", app.AppID, app.Platform, app.OwnerID)
	c.JSON(http.StatusCreated, gin.H{"status": "ok", "app": app})
}

// List returns the caller's apps.
// GET /api/v1/apps
func (h *AppHandler) List(c *gin.Context) {
	var apps []models.App
	err := h.db.Where("owner_id = ?", c.GetString(middleware.CtxOwnerID)).
		Order("created_at DESC").Find(&apps).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to list apps"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "apps": apps})
}

// Get returns one app.
// GET /api/v1/apps/:app_id
func (h *AppHandler) Get(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Param("app_id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "app": app})
}

type updateAppRequest struct {
	Name             *string `json:"name"`
	WabaPhoneID      *string `json:"waba_phone_id"`
	WabaAccessToken  *string `json:"waba_access_token"`
	TelegramBotToken *string `json:"telegram_bot_token"`
	AssistantID      *string `json:"assistant_id"`
	OpenAIAPIKey     *string `json:"openai_api_key"`
	ReplyMode        *string `json:"reply_mode"`
	ReplySchedule    *string `json:"reply_schedule"`
}

// Update patches credentials and reply settings. Only fields present in the
// body change.
// PUT /api/v1/apps/:app_id
func (h *AppHandler) Update(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Param("app_id"))
	if !ok {
		return
	}

	var req updateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid body"})
		return
	}

	updates := map[string]interface{}{}
	setIf := func(column string, value *string) {
		if value != nil {
			updates[column] = *value
		}
	}
	if req.WabaPhoneID != nil && *req.WabaPhoneID != "" && h.wabaPhoneIDTaken(*req.WabaPhoneID, app.AppID) {
		c.JSON(http.StatusConflict, gin.H{"status": "error", "message": "waba_phone_id already registered to another app"})
		return
	}

	setIf("name", req.Name)
	setIf("waba_phone_id", req.WabaPhoneID)
	setIf("waba_access_token", req.WabaAccessToken)
	setIf("telegram_bot_token", req.TelegramBotToken)
	setIf("assistant_id", req.AssistantID)
	setIf("openai_api_key", req.OpenAIAPIKey)
	setIf("reply_schedule", req.ReplySchedule)

	if req.ReplyMode != nil {
		switch *req.ReplyMode {
		case models.ReplyModeOff, models.ReplyModeAuto, models.ReplyModeScheduled:
			updates["reply_mode"] = *req.ReplyMode
		default:
			c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "reply_mode must be off, auto or scheduled"})
			return
		}
	}

	if len(updates) == 0 {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "app": app})
		return
	}

	if err := h.db.Model(app).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to update app"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "app": app})
}

// Delete removes an app. Conversation history stays; webhooks for the app
// start answering 403 once the record is gone.
// DELETE /api/v1/apps/:app_id
func (h *AppHandler) Delete(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Param("app_id"))
	if !ok {
		return
	}
	if err := h.db.Delete(app).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to delete app"})
		return
	}
	log.Printf("🗑️  App %s deleted", app.AppID)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// wabaPhoneIDTaken reports whether another app already routes the given
// WhatsApp phone number id. Inbound routing needs the mapping to be
// one-to-one; the partial unique index backstops this check.
func (h *AppHandler) wabaPhoneIDTaken(phoneNumberID, exceptAppID string) bool {
	var count int64
	query := h.db.Model(&models.App{}).Where("waba_phone_id = ?", phoneNumberID)
	if exceptAppID != "" {
		query = query.Where("app_id <> ?", exceptAppID)
	}
	if err := query.Count(&count).Error; err != nil {
		log.Printf("⚠️  Failed to check waba_phone_id uniqueness: %v", err)
		return true
	}
	return count > 0
}

// RotateToken issues a fresh webhook app token for a Telegram app.
// POST /api/v1/apps/:app_id/rotate-token
func (h *AppHandler) RotateToken(c *gin.Context) {
	app, ok := ownedApp(h.db, c, c.Param("app_id"))
	if !ok {
		return
	}
	if app.Platform != models.PlatformTelegram {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "only telegram apps use app tokens"})
		return
	}

	token := uuid.NewString()
	if err := h.db.Model(app).Update("app_token", token).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "message": "failed to rotate token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "app_token": token})
}

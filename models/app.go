package models

import "time"

// Bot platforms an app can be connected to.
const (
	PlatformWhatsApp = "whatsapp"
	PlatformTelegram = "telegram"
)

// AI reply modes. Scheduled mode replies only inside the weekly windows
// stored in ReplySchedule.
const (
	ReplyModeOff       = "off"
	ReplyModeAuto      = "auto"
	ReplyModeScheduled = "scheduled"
)

// App is one tenant: a single bot deployment with its messaging and AI
// credentials. The platform credential block is only meaningful when it
// matches Platform.
type App struct {
	AppID   string `gorm:"primaryKey" json:"app_id"`
	OwnerID string `gorm:"index;not null" json:"owner_id"`
	Name    string `gorm:"not null" json:"name"`

	Platform string `gorm:"index;not null" json:"platform"` // whatsapp|telegram

	// WhatsApp Cloud API credentials. A phone number id routes inbound
	// webhooks to exactly one app, so it is unique whenever set; Telegram
	// apps leave it empty, hence the partial index.
	WabaPhoneID     string `gorm:"index:idx_apps_waba_phone_id,unique,where:waba_phone_id <> ''" json:"waba_phone_id,omitempty"`
	WabaAccessToken string `json:"-"`

	// Telegram credentials. AppToken is the unguessable webhook token the
	// tenant puts in its webhook URL; unique whenever set, empty for
	// WhatsApp apps.
	TelegramBotToken string `json:"-"`
	AppToken         string `gorm:"index:idx_apps_app_token,unique,where:app_token <> ''" json:"app_token,omitempty"`

	// Assistant credentials
	AssistantID  string `json:"assistant_id,omitempty"`
	OpenAIAPIKey string `gorm:"column:openai_api_key" json:"-"`

	ReplyMode     string `gorm:"default:'auto'" json:"reply_mode"` // off|auto|scheduled
	ReplySchedule string `gorm:"type:text" json:"reply_schedule,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (App) TableName() string {
	return "apps"
}

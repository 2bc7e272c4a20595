package services

import (
	"errors"
	"fmt"

	"chatagent-backend/models"

	"gorm.io/gorm"
)

// TenantResolver maps an inbound webhook's platform identifier to the owning
// app record. Pure lookup, no side effects. An unresolvable identifier may be
// a stale or forged webhook, so callers map ErrTenantNotFound to 403 rather
// than a retryable server error.
type TenantResolver struct {
	db *gorm.DB
}

func NewTenantResolver(db *gorm.DB) *TenantResolver {
	return &TenantResolver{db: db}
}

// ResolveByWabaPhoneID resolves a WhatsApp tenant by the phone-number-id in
// the webhook metadata block.
func (r *TenantResolver) ResolveByWabaPhoneID(phoneNumberID string) (*models.App, error) {
	if phoneNumberID == "" {
		return nil, ErrTenantNotFound
	}
	return r.lookup("waba_phone_id = ? AND platform = ?", phoneNumberID, models.PlatformWhatsApp)
}

// ResolveByAppToken resolves a Telegram tenant by the app_token query
// parameter of its webhook URL.
func (r *TenantResolver) ResolveByAppToken(appToken string) (*models.App, error) {
	if appToken == "" {
		return nil, ErrTenantNotFound
	}
	return r.lookup("app_token = ? AND platform = ?", appToken, models.PlatformTelegram)
}

func (r *TenantResolver) lookup(query string, args ...interface{}) (*models.App, error) {
	var app models.App
	err := r.db.Where(query, args...).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve app: %w", err)
	}
	return &app, nil
}

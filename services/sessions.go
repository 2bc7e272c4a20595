package services

import (
	"errors"
	"fmt"

	"chatagent-backend/models"

	"gorm.io/gorm"
)

// SessionStore resolves the persistent AI conversation session for a
// (app, chat) pair. Faked in dispatcher tests.
type SessionStore interface {
	Lookup(appID, chatID string) (string, error)
	Save(appID, chatID, sessionID string) error
}

// DBSessionStore keeps the session mapping in the document store, replacing
// the legacy file-backed map keyed by chat identifier alone.
type DBSessionStore struct {
	db *gorm.DB
}

func NewDBSessionStore(db *gorm.DB) *DBSessionStore {
	return &DBSessionStore{db: db}
}

// Lookup returns the stored session id, or empty when none exists yet.
func (s *DBSessionStore) Lookup(appID, chatID string) (string, error) {
	var session models.AISession
	err := s.db.Where("app_id = ? AND chat_id = ?", appID, chatID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up AI session: %w", err)
	}
	return session.SessionID, nil
}

func (s *DBSessionStore) Save(appID, chatID, sessionID string) error {
	session := models.AISession{AppID: appID, ChatID: chatID, SessionID: sessionID}
	if err := s.db.Create(&session).Error; err != nil {
		if isUniqueViolation(err) {
			// Concurrent dispatches raced on session creation; keep the
			// winner.
			return nil
		}
		return fmt.Errorf("failed to save AI session: %w", err)
	}
	return nil
}

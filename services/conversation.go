package services

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatagent-backend/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultPageSize caps thread/message listing pages.
const DefaultPageSize = 20

// ConversationService owns the message log and the thread projection. Every
// append inserts one immutable Message row and then merge-upserts the Thread
// for (app, chat). The projection is last-write-wins under concurrent
// inbound/outbound appends; the log keeps true order.
type ConversationService struct {
	db *gorm.DB
}

func NewConversationService(db *gorm.DB) *ConversationService {
	return &ConversationService{db: db}
}

// WithTx returns a service bound to tx, so an append can share one
// transaction with related writes such as the dispatch-job enqueue.
func (s *ConversationService) WithTx(tx *gorm.DB) *ConversationService {
	return &ConversationService{db: tx}
}

// AppendInput describes one message to record.
type AppendInput struct {
	App         *models.App
	ChatID      string
	Direction   string // models.DirectionInbound / DirectionOutbound
	Role        string // models.RoleUser / RoleAssistant / RoleAgent
	Content     string
	MessageType string
	MediaURL    string
	SessionID   string // AI conversation correlation id, when known
	MessageID   string // platform message id; generated when empty
	ContactName string
}

// AppendMessage persists the message and refreshes the thread summary.
// A platform message id that was already recorded returns
// ErrDuplicateMessage, which is how duplicate webhook deliveries are
// absorbed.
func (s *ConversationService) AppendMessage(in AppendInput) (*models.Message, error) {
	if in.MessageID == "" {
		in.MessageID = fmt.Sprintf("out_%s", uuid.NewString())
	}

	msg := models.Message{
		MessageID:   in.MessageID,
		AppID:       in.App.AppID,
		Platform:    in.App.Platform,
		ChatID:      in.ChatID,
		Direction:   in.Direction,
		Role:        in.Role,
		Content:     in.Content,
		MessageType: in.MessageType,
		MediaURL:    in.MediaURL,
		SessionID:   in.SessionID,
	}

	if err := s.db.Create(&msg).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateMessage
		}
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if err := s.upsertThread(&msg, in.ContactName); err != nil {
		// The log row is the source of truth; a stale projection is
		// tolerable and repaired by the next append.
		return &msg, err
	}
	return &msg, nil
}

func (s *ConversationService) upsertThread(msg *models.Message, contactName string) error {
	var thread models.Thread
	err := s.db.Where("app_id = ? AND chat_id = ?", msg.AppID, msg.ChatID).First(&thread).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		thread = models.Thread{
			AppID:        msg.AppID,
			ChatID:       msg.ChatID,
			Platform:     msg.Platform,
			ContactName:  contactName,
			LastMessage:  msg.Content,
			LastRole:     msg.Role,
			LastType:     msg.MessageType,
			LastMediaURL: msg.MediaURL,
		}
		if createErr := s.db.Create(&thread).Error; createErr != nil {
			if isUniqueViolation(createErr) {
				// Lost the creation race; fall through to an update.
				return s.updateThread(msg, contactName)
			}
			return fmt.Errorf("failed to create thread: %w", createErr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find thread: %w", err)
	}
	return s.updateThread(msg, contactName)
}

func (s *ConversationService) updateThread(msg *models.Message, contactName string) error {
	updates := map[string]interface{}{
		"last_message":   msg.Content,
		"last_role":      msg.Role,
		"last_type":      msg.MessageType,
		"last_media_url": msg.MediaURL,
		"updated_at":     time.Now(),
	}
	if contactName != "" {
		updates["contact_name"] = contactName
	}
	err := s.db.Model(&models.Thread{}).
		Where("app_id = ? AND chat_id = ?", msg.AppID, msg.ChatID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to update thread: %w", err)
	}
	return nil
}

// EnsureContact records a chat participant on first inbound message.
// Existing contacts are left untouched.
func (s *ConversationService) EnsureContact(app *models.App, chatID, displayName, phone string) error {
	contact := models.Contact{
		OwnerID:     app.OwnerID,
		Platform:    app.Platform,
		ChatID:      chatID,
		AppID:       app.AppID,
		DisplayName: displayName,
		Phone:       phone,
	}
	err := s.db.Where("owner_id = ? AND platform = ? AND chat_id = ?",
		app.OwnerID, app.Platform, chatID).
		FirstOrCreate(&contact).Error
	if err != nil {
		return fmt.Errorf("failed to ensure contact: %w", err)
	}
	return nil
}

// ThreadPage is one page of the inbox listing.
type ThreadPage struct {
	Threads    []models.Thread
	NextCursor string
	HasMore    bool
}

// ListThreads returns thread projections by most-recent activity, optionally
// filtered by platform. The cursor is opaque and derived from the last
// item's updated_at.
func (s *ConversationService) ListThreads(appID, platform string, limit int, cursor string) (*ThreadPage, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultPageSize
	}

	query := s.db.Where("app_id = ?", appID)
	if platform != "" {
		query = query.Where("platform = ?", platform)
	}
	if cursor != "" {
		after, err := DecodeCursor(cursor)
		if err != nil {
			return nil, ErrMalformedPayload
		}
		query = query.Where("updated_at < ?", after)
	}

	var threads []models.Thread
	if err := query.Order("updated_at DESC").Limit(limit).Find(&threads).Error; err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}

	page := &ThreadPage{Threads: threads, HasMore: len(threads) == limit}
	if page.HasMore {
		page.NextCursor = EncodeCursor(threads[len(threads)-1].UpdatedAt)
	}
	return page, nil
}

// MessagePage is one page of a chat's message log, most recent first.
type MessagePage struct {
	Messages   []models.Message
	NextCursor string
	HasMore    bool
}

// ListMessages returns the message log for one chat, most recent first, with
// a created_at cursor.
func (s *ConversationService) ListMessages(appID, chatID string, limit int, cursor string) (*MessagePage, error) {
	if limit <= 0 || limit > 100 {
		limit = DefaultPageSize
	}

	query := s.db.Where("app_id = ? AND chat_id = ?", appID, chatID)
	if cursor != "" {
		after, err := DecodeCursor(cursor)
		if err != nil {
			return nil, ErrMalformedPayload
		}
		query = query.Where("created_at < ?", after)
	}

	var messages []models.Message
	if err := query.Order("created_at DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &MessagePage{Messages: messages, HasMore: len(messages) == limit}
	if page.HasMore {
		page.NextCursor = EncodeCursor(messages[len(messages)-1].CreatedAt)
	}
	return page, nil
}

// EncodeCursor turns an ordering timestamp into an opaque page cursor.
func EncodeCursor(t time.Time) string {
	return base64.RawURLEncoding.EncodeToString([]byte(t.UTC().Format(time.RFC3339Nano)))
}

// DecodeCursor reverses EncodeCursor.
func DecodeCursor(cursor string) (time.Time, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cursor: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cursor: %w", err)
	}
	return t, nil
}

// isUniqueViolation matches Postgres duplicate-key failures surfaced
// through gorm.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	text := err.Error()
	return strings.Contains(text, "duplicate key") || strings.Contains(text, "UNIQUE constraint")
}

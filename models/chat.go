package models

import "time"

// Message directions and roles.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

// Message types.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeDocument = "document"
)

// Message is the append-only conversation log. One row per inbound or
// outbound communication; rows are never updated after insert. MessageID is
// the platform-native id for inbound messages (unique index doubles as the
// duplicate-webhook guard) and a generated id for outbound ones.
type Message struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"uniqueIndex;not null" json:"message_id"`
	AppID       string    `gorm:"index;not null" json:"app_id"`
	Platform    string    `gorm:"index;not null" json:"platform"`
	ChatID      string    `gorm:"index;not null" json:"chat_id"`
	Direction   string    `gorm:"index;not null" json:"direction"` // inbound|outbound
	Role        string    `gorm:"not null" json:"role"`            // user|assistant|agent
	Content     string    `gorm:"type:text" json:"content"`
	MessageType string    `gorm:"not null;default:'text'" json:"message_type"`
	MediaURL    string    `json:"media_url,omitempty"`
	SessionID   string    `gorm:"index" json:"session_id,omitempty"` // AI conversation correlation id
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}

// Thread is the cached latest-state projection of one conversation, exactly
// one row per (app_id, chat_id). It is merge-upserted on every append and is
// last-write-wins under concurrent inbound/outbound traffic; readers that
// need ordering must use the messages log.
type Thread struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AppID        string    `gorm:"uniqueIndex:idx_threads_app_chat;not null" json:"app_id"`
	ChatID       string    `gorm:"uniqueIndex:idx_threads_app_chat;not null" json:"chat_id"`
	Platform     string    `gorm:"index;not null" json:"platform"`
	ContactName  string    `json:"contact_name,omitempty"`
	LastMessage  string    `gorm:"type:text" json:"last_message"`
	LastRole     string    `json:"last_role"`
	LastType     string    `json:"last_type"`
	LastMediaURL string    `json:"last_media_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `gorm:"index" json:"updated_at"`
}

func (Thread) TableName() string {
	return "threads"
}

// Contact is a known chat participant, unique per (owner, platform, chat_id).
// Created on first inbound message or explicit API call; never auto-deleted.
type Contact struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	OwnerID     string    `gorm:"uniqueIndex:idx_contacts_owner_platform_chat;not null" json:"owner_id"`
	Platform    string    `gorm:"uniqueIndex:idx_contacts_owner_platform_chat;not null" json:"platform"`
	ChatID      string    `gorm:"uniqueIndex:idx_contacts_owner_platform_chat;not null" json:"chat_id"`
	AppID       string    `gorm:"index" json:"app_id"`
	DisplayName string    `json:"display_name"`
	Phone       string    `json:"phone,omitempty"`
	Labels      string    `gorm:"type:text" json:"labels,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

package services

import (
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"chatagent-backend/models"
)

func openConversationDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// One connection keeps the in-memory database alive and shared.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Message{}, &models.Thread{}, &models.Contact{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestAppendMessageUpsertsSingleThread(t *testing.T) {
	t.Parallel()

	db := openConversationDB(t)
	svc := NewConversationService(db)
	app := &models.App{AppID: "app-1", OwnerID: "owner-1", Platform: models.PlatformWhatsApp}

	for i, input := range []AppendInput{
		{App: app, ChatID: "628123", Direction: models.DirectionInbound, Role: models.RoleUser,
			Content: "first", MessageType: models.TypeText, MessageID: "wamid.1", ContactName: "Budi"},
		{App: app, ChatID: "628123", Direction: models.DirectionInbound, Role: models.RoleUser,
			Content: "second", MessageType: models.TypeText, MessageID: "wamid.2", ContactName: "Budi"},
	} {
		if _, err := svc.AppendMessage(input); err != nil {
			t.Fatalf("append %d: expected no error, got %v", i, err)
		}
	}

	var threads int64
	if err := db.Model(&models.Thread{}).Where("app_id = ? AND chat_id = ?", "app-1", "628123").Count(&threads).Error; err != nil {
		t.Fatalf("failed to count threads: %v", err)
	}
	if threads != 1 {
		t.Fatalf("expected exactly one thread for the chat, got %d", threads)
	}

	var thread models.Thread
	if err := db.Where("app_id = ? AND chat_id = ?", "app-1", "628123").First(&thread).Error; err != nil {
		t.Fatalf("failed to load thread: %v", err)
	}
	if thread.LastMessage != "second" || thread.LastRole != models.RoleUser {
		t.Fatalf("thread projection stale: %#v", thread)
	}
	if thread.ContactName != "Budi" {
		t.Fatalf("contact name lost on upsert: %q", thread.ContactName)
	}

	var messages int64
	if err := db.Model(&models.Message{}).Count(&messages).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if messages != 2 {
		t.Fatalf("expected two log rows, got %d", messages)
	}
}

func TestAppendMessageDuplicateIDKeepsLog(t *testing.T) {
	t.Parallel()

	db := openConversationDB(t)
	svc := NewConversationService(db)
	app := &models.App{AppID: "app-1", OwnerID: "owner-1", Platform: models.PlatformWhatsApp}

	input := AppendInput{App: app, ChatID: "628123", Direction: models.DirectionInbound,
		Role: models.RoleUser, Content: "first", MessageType: models.TypeText,
		MessageID: "wamid.dup", ContactName: "Budi"}

	if _, err := svc.AppendMessage(input); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	input.Content = "redelivered"
	if _, err := svc.AppendMessage(input); !errors.Is(err, ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}

	var messages int64
	if err := db.Model(&models.Message{}).Count(&messages).Error; err != nil {
		t.Fatalf("failed to count messages: %v", err)
	}
	if messages != 1 {
		t.Fatalf("duplicate delivery must not add a log row, got %d", messages)
	}

	var thread models.Thread
	if err := db.Where("app_id = ? AND chat_id = ?", "app-1", "628123").First(&thread).Error; err != nil {
		t.Fatalf("failed to load thread: %v", err)
	}
	if thread.LastMessage != "first" {
		t.Fatalf("duplicate delivery must not touch the projection: %q", thread.LastMessage)
	}
}

func TestUpdateThreadKeepsContactNameWhenEmpty(t *testing.T) {
	t.Parallel()

	db := openConversationDB(t)
	svc := NewConversationService(db)
	app := &models.App{AppID: "app-1", OwnerID: "owner-1", Platform: models.PlatformWhatsApp}

	if _, err := svc.AppendMessage(AppendInput{App: app, ChatID: "628123",
		Direction: models.DirectionInbound, Role: models.RoleUser, Content: "hello",
		MessageType: models.TypeText, MessageID: "wamid.a", ContactName: "Budi"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	// Outbound appends carry no contact name.
	if _, err := svc.AppendMessage(AppendInput{App: app, ChatID: "628123",
		Direction: models.DirectionOutbound, Role: models.RoleAssistant, Content: "hi!",
		MessageType: models.TypeText}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var thread models.Thread
	if err := db.Where("app_id = ? AND chat_id = ?", "app-1", "628123").First(&thread).Error; err != nil {
		t.Fatalf("failed to load thread: %v", err)
	}
	if thread.ContactName != "Budi" {
		t.Fatalf("outbound append erased the contact name: %q", thread.ContactName)
	}
	if thread.LastMessage != "hi!" || thread.LastRole != models.RoleAssistant {
		t.Fatalf("thread projection stale: %#v", thread)
	}
}

package services

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatagent-backend/models"
)

func TestParseTelegramUpdateText(t *testing.T) {
	t.Parallel()

	update := &tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 42,
			Chat:      &tgbotapi.Chat{ID: 1001},
			From:      &tgbotapi.User{FirstName: "Alice"},
			Text:      "hello there",
		},
	}

	in, err := ParseTelegramUpdate(update)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if in.MessageID != "tg_1001_42" {
		t.Fatalf("unexpected message id: %q", in.MessageID)
	}
	if in.ChatID != "1001" || in.SenderName != "Alice" {
		t.Fatalf("unexpected identity: %#v", in)
	}
	if in.MessageType != models.TypeText || in.Text != "hello there" {
		t.Fatalf("unexpected content: %#v", in)
	}
}

func TestParseTelegramUpdatePhotoPicksLargestVariant(t *testing.T) {
	t.Parallel()

	update := &tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 7,
			Chat:      &tgbotapi.Chat{ID: 55},
			Photo: []tgbotapi.PhotoSize{
				{FileID: "small", Width: 90},
				{FileID: "medium", Width: 320},
				{FileID: "large", Width: 1280},
			},
		},
	}

	in, err := ParseTelegramUpdate(update)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if in.MediaID != "large" {
		t.Fatalf("expected highest-resolution variant, got %q", in.MediaID)
	}
	if in.MimeType != "image/jpeg" || in.MessageType != models.TypeImage {
		t.Fatalf("unexpected media info: %#v", in)
	}
	if in.Text != "Describe this image" {
		t.Fatalf("expected default caption, got %q", in.Text)
	}
}

func TestParseTelegramUpdateDocumentKeepsCaption(t *testing.T) {
	t.Parallel()

	update := &tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 8,
			Chat:      &tgbotapi.Chat{ID: 55},
			Caption:   "check this contract",
			Document:  &tgbotapi.Document{FileID: "doc-1", MimeType: "application/pdf"},
		},
	}

	in, err := ParseTelegramUpdate(update)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if in.MessageType != models.TypeDocument || in.MediaID != "doc-1" {
		t.Fatalf("unexpected document message: %#v", in)
	}
	if in.Text != "check this contract" {
		t.Fatalf("caption lost: %q", in.Text)
	}
}

func TestParseTelegramUpdateNonMessage(t *testing.T) {
	t.Parallel()

	if _, err := ParseTelegramUpdate(&tgbotapi.Update{}); !errors.Is(err, ErrNotAMessageEvent) {
		t.Fatalf("expected ErrNotAMessageEvent, got %v", err)
	}
}

func TestParseTelegramUpdateUnsupportedKind(t *testing.T) {
	t.Parallel()

	update := &tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 9,
			Chat:      &tgbotapi.Chat{ID: 55},
			Sticker:   &tgbotapi.Sticker{FileID: "stk"},
		},
	}

	in, err := ParseTelegramUpdate(update)
	if !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("expected ErrUnsupportedContent, got %v", err)
	}
	if in == nil || in.ChatID != "55" {
		t.Fatalf("partial message should carry the chat id: %#v", in)
	}
}

func TestTelegramCommandReply(t *testing.T) {
	t.Parallel()

	t.Run("start greets by name", func(t *testing.T) {
		got := TelegramCommandReply("/start", "Alice")
		if got != "Hello Alice! Welcome to this bot." {
			t.Fatalf("unexpected reply: %q", got)
		}
	})

	t.Run("start without name", func(t *testing.T) {
		got := TelegramCommandReply("/start", "")
		if got != "Hello User! Welcome to this bot." {
			t.Fatalf("unexpected reply: %q", got)
		}
	})

	t.Run("matching ignores case", func(t *testing.T) {
		got := TelegramCommandReply("/Start", "Alice")
		if got != "Hello Alice! Welcome to this bot." {
			t.Fatalf("mixed-case command not recognized: %q", got)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		got := TelegramCommandReply("/frobnicate", "Alice")
		if got == "" {
			t.Fatalf("expected a reply for unknown commands")
		}
	})
}

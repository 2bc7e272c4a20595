package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatagent-backend/models"
)

// TelegramChannel talks to the Telegram Bot API for one tenant's bot.
type TelegramChannel struct {
	bot    *tgbotapi.BotAPI
	client *http.Client
}

// TelegramFactory caches one BotAPI per bot token. Creating a BotAPI calls
// getMe, so instances are reused across webhook deliveries.
type TelegramFactory struct {
	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI
}

func NewTelegramFactory() *TelegramFactory {
	return &TelegramFactory{bots: make(map[string]*tgbotapi.BotAPI)}
}

// Channel returns the cached channel for a tenant's bot token.
func (f *TelegramFactory) Channel(app *models.App) (*TelegramChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	bot, ok := f.bots[app.TelegramBotToken]
	if !ok {
		var err error
		bot, err = tgbotapi.NewBotAPI(app.TelegramBotToken)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram bot: %w", err)
		}
		f.bots[app.TelegramBotToken] = bot
	}
	return &TelegramChannel{bot: bot, client: &http.Client{Timeout: 30 * time.Second}}, nil
}

func (t *TelegramChannel) Platform() string {
	return models.PlatformTelegram
}

func (t *TelegramChannel) SendText(ctx context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// Typing shows the "typing..." chat action while the assistant is working.
func (t *TelegramChannel) Typing(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

// FetchMedia downloads a file by its Telegram file id.
func (t *TelegramChannel) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	file, err := t.bot.GetFile(tgbotapi.FileConfig{FileID: mediaID})
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve telegram file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(t.bot.Token), nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download telegram file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("telegram file download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// ParseTelegramUpdate normalizes a Bot API Update into an InboundMessage.
// Commands come back as plain text messages; the webhook handler branches on
// the "/" prefix before anything touches the assistant path. Unsupported
// message kinds return ErrUnsupportedContent with the chat id filled in so a
// fallback reply can still be sent.
func ParseTelegramUpdate(update *tgbotapi.Update) (*InboundMessage, error) {
	if update == nil || update.Message == nil {
		return nil, ErrNotAMessageEvent
	}

	msg := update.Message
	if msg.Chat == nil {
		return nil, ErrMalformedPayload
	}

	in := &InboundMessage{
		// Telegram message ids are only unique per chat.
		MessageID: fmt.Sprintf("tg_%d_%d", msg.Chat.ID, msg.MessageID),
		ChatID:    strconv.FormatInt(msg.Chat.ID, 10),
	}
	if msg.From != nil {
		in.SenderName = msg.From.FirstName
	}

	switch {
	case msg.Text != "":
		in.MessageType = models.TypeText
		in.Text = msg.Text
	case len(msg.Photo) > 0:
		// Size variants are ordered ascending; take the highest resolution.
		in.MessageType = models.TypeImage
		in.MediaID = msg.Photo[len(msg.Photo)-1].FileID
		in.MimeType = "image/jpeg"
		in.Text = msg.Caption
		if in.Text == "" {
			in.Text = "Describe this image"
		}
	case msg.Document != nil:
		in.MessageType = models.TypeDocument
		in.MediaID = msg.Document.FileID
		in.MimeType = msg.Document.MimeType
		in.Text = msg.Caption
		if in.Text == "" {
			in.Text = "Summarize this document"
		}
	default:
		return in, ErrUnsupportedContent
	}
	return in, nil
}

// TelegramCommandReply returns the canned reply for a "/" command, bypassing
// the assistant path entirely. Matching is case-insensitive, so "/Start"
// greets the same as "/start".
func TelegramCommandReply(command, firstName string) string {
	if firstName == "" {
		firstName = "User"
	}
	switch strings.ToLower(command) {
	case "/start":
		return fmt.Sprintf("Hello %s! Welcome to this bot.", firstName)
	case "/help":
		return "Here are some things you can try:\n" +
			"/start - Start the bot\n" +
			"/help - Show this help message\n" +
			"/about - Learn about this bot"
	case "/about":
		return "This bot connects your chat to an AI assistant."
	default:
		return fmt.Sprintf("Sorry, I don't recognize the command %q.", command)
	}
}

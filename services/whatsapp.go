package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"chatagent-backend/models"
)

const graphAPIBase = "https://graph.facebook.com"

// WhatsAppChannel talks to the WhatsApp Cloud API for one tenant.
type WhatsAppChannel struct {
	accessToken   string
	phoneNumberID string
	apiVersion    string
	apiBase       string
	client        *http.Client
}

// NewWhatsAppChannel builds the channel from a tenant's WABA credentials.
func NewWhatsAppChannel(app *models.App, apiVersion string) *WhatsAppChannel {
	return &WhatsAppChannel{
		accessToken:   app.WabaAccessToken,
		phoneNumberID: app.WabaPhoneID,
		apiVersion:    apiVersion,
		apiBase:       graphAPIBase,
		client:        &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsAppChannel) Platform() string {
	return models.PlatformWhatsApp
}

// SendText delivers a text message, reformatted for WhatsApp syntax first.
func (w *WhatsAppChannel) SendText(ctx context.Context, chatID, text string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                chatID,
		"type":              "text",
		"text":              map[string]interface{}{"preview_url": false, "body": FormatForWhatsApp(text)},
	}
	return w.postMessages(ctx, payload)
}

// MarkRead flags an inbound message as read so the sender sees blue ticks
// while the assistant is working.
func (w *WhatsAppChannel) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}
	return w.postMessages(ctx, payload)
}

func (w *WhatsAppChannel) postMessages(ctx context.Context, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", w.apiBase, w.apiVersion, w.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.accessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call WhatsApp API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("WhatsApp API returned %d: %s", resp.StatusCode, text)
	}
	return nil
}

// FetchMedia resolves a media id to its short-lived download URL, then
// fetches the bytes. Both calls require the tenant's access token.
func (w *WhatsAppChannel) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	metaURL := fmt.Sprintf("%s/%s/%s", w.apiBase, w.apiVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+w.accessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve media url: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media lookup returned %d", resp.StatusCode)
	}

	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media lookup: %w", err)
	}
	if meta.URL == "" {
		return nil, "", errors.New("media lookup returned no url")
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", err
	}
	dlReq.Header.Set("Authorization", "Bearer "+w.accessToken)

	dlResp, err := w.client.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer dlResp.Body.Close()
	if dlResp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media download returned %d", dlResp.StatusCode)
	}

	data, err := io.ReadAll(dlResp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media body: %w", err)
	}
	return data, meta.MimeType, nil
}

// WhatsAppEvent is the Cloud API webhook envelope; the payload of interest
// lives at entry[0].changes[0].value.
type WhatsAppEvent struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value waValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type waValue struct {
	Metadata struct {
		PhoneNumberID string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []waMessage       `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type waMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text struct {
		Body string `json:"body"`
	} `json:"text"`
	Image    *waMedia `json:"image"`
	Document *waMedia `json:"document"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
	Filename string `json:"filename"`
}

// DecodeWhatsAppEvent parses the webhook body into the envelope.
func DecodeWhatsAppEvent(body []byte) (*WhatsAppEvent, error) {
	var event WhatsAppEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, ErrMalformedPayload
	}
	return &event, nil
}

func (e *WhatsAppEvent) value() *waValue {
	if len(e.Entry) == 0 || len(e.Entry[0].Changes) == 0 {
		return nil
	}
	return &e.Entry[0].Changes[0].Value
}

// IsStatusUpdate reports whether this is a delivery-status callback
// (sent/delivered/read). The API fires one for every outbound message; they
// are acknowledged and produce no further action. An empty statuses array
// does not count, so a payload carrying messages alongside it still gets
// processed.
func (e *WhatsAppEvent) IsStatusUpdate() bool {
	v := e.value()
	return v != nil && len(v.Statuses) > 0
}

// IsMessageEvent mirrors the structural validity check of the Cloud API
// event: object set, and a messages array present under the first change.
func (e *WhatsAppEvent) IsMessageEvent() bool {
	v := e.value()
	return e.Object != "" && v != nil && len(v.Messages) > 0
}

// PhoneNumberID extracts the WABA phone-number-id used for tenant
// resolution. Empty when the metadata block is missing.
func (e *WhatsAppEvent) PhoneNumberID() string {
	if v := e.value(); v != nil {
		return v.Metadata.PhoneNumberID
	}
	return ""
}

// Message normalizes the event into an InboundMessage. For unsupported
// message types it returns ErrUnsupportedContent together with a partial
// message carrying the chat id, so the caller can send the fallback reply.
func (e *WhatsAppEvent) Message() (*InboundMessage, error) {
	v := e.value()
	if v == nil || len(v.Messages) == 0 {
		return nil, ErrNotAMessageEvent
	}

	in := &InboundMessage{MessageID: v.Messages[0].ID}
	if len(v.Contacts) > 0 {
		in.ChatID = v.Contacts[0].WaID
		in.Phone = v.Contacts[0].WaID
		in.SenderName = v.Contacts[0].Profile.Name
	}
	if in.ChatID == "" {
		return nil, ErrMalformedPayload
	}

	msg := v.Messages[0]
	switch msg.Type {
	case "text":
		in.MessageType = models.TypeText
		in.Text = msg.Text.Body
	case "image":
		if msg.Image == nil {
			return nil, ErrMalformedPayload
		}
		in.MessageType = models.TypeImage
		in.MediaID = msg.Image.ID
		in.MimeType = msg.Image.MimeType
		in.Text = msg.Image.Caption
		if in.Text == "" {
			in.Text = "Describe this image"
		}
	case "document":
		if msg.Document == nil {
			return nil, ErrMalformedPayload
		}
		in.MessageType = models.TypeDocument
		in.MediaID = msg.Document.ID
		in.MimeType = msg.Document.MimeType
		in.Text = msg.Document.Caption
		if in.Text == "" {
			in.Text = "Summarize this document"
		}
	default:
		return in, ErrUnsupportedContent
	}
	return in, nil
}

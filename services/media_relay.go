package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ObjectUploader is the durable storage side of the relay. Implemented by
// storage.Client; faked in tests.
type ObjectUploader interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// allowedMediaTypes maps every accepted declared content type to the file
// extension used for the re-hosted object.
var allowedMediaTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"application/pdf": ".pdf",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
	"text/plain": ".txt",
	"text/csv":   ".csv",
}

// MediaRelay moves an attachment from a platform's short-lived media URL to
// durable object storage, returning a stable public URL.
type MediaRelay struct {
	uploader ObjectUploader
}

func NewMediaRelay(uploader ObjectUploader) *MediaRelay {
	return &MediaRelay{uploader: uploader}
}

// Relay validates the declared content type against the allow-list, fetches
// the bytes through the platform channel and re-uploads them under a
// tenant/platform-scoped key. The allow-list check fails closed before any
// network fetch is attempted.
func (r *MediaRelay) Relay(ctx context.Context, channel MessageChannel, appID, mediaID, declaredMime string) (string, error) {
	ext, ok := allowedMediaTypes[normalizeMime(declaredMime)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContent, declaredMime)
	}

	data, fetchedMime, err := channel.FetchMedia(ctx, mediaID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaRelay, err)
	}

	contentType := normalizeMime(declaredMime)
	if contentType == "" {
		contentType = normalizeMime(fetchedMime)
	}

	key := fmt.Sprintf("media/%s/%s/%s%s", appID, channel.Platform(), uuid.NewString(), ext)
	url, err := r.uploader.Upload(ctx, data, key, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaRelay, err)
	}
	return url, nil
}

// normalizeMime drops parameters like "; codecs=..." and lowercases.
func normalizeMime(mime string) string {
	mime = strings.TrimSpace(strings.ToLower(mime))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

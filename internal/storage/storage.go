// Package storage holds letters of intention in S3-compatible object storage.
// Buyers upload the document through a presigned PUT before submitting an LOI
// inspection; sellers and admins read it back through a presigned GET.
package storage

import (
	"context"
	"strings"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
)

// presignTTL bounds how long an issued upload or download link stays usable.
const presignTTL = 15 * time.Minute

// allowedContentTypes lists the MIME types accepted for letters of intention.
// Scans of signed letters arrive as images often enough that plain image
// types are allowed alongside the document formats.
var allowedContentTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// PresignedURL is a time-limited link to a single object.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// DocumentStore is the narrow surface the HTTP layer needs for LOI documents.
type DocumentStore interface {
	// PresignUpload issues a PUT URL for a new document. The returned file
	// key is what the client must echo back as the letterOfIntention value.
	PresignUpload(ctx context.Context, fileName, contentType string, sizeBytes int64) (*PresignedURL, error)

	// PresignDownload issues a GET URL for a previously uploaded document.
	PresignDownload(ctx context.Context, fileKey string) (*PresignedURL, error)
}

func validateContentType(contentType string) error {
	normalized := strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
	if !allowedContentTypes[normalized] {
		return apperr.Validation("content type is not allowed for a letter of intention")
	}
	return nil
}

func validateFileSize(sizeBytes, maxBytes int64) error {
	if sizeBytes <= 0 {
		return apperr.Validation("file size must be greater than 0")
	}
	if sizeBytes > maxBytes {
		return apperr.Validation("file exceeds the maximum allowed size")
	}
	return nil
}

package chat

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/app/delivery"
	"marketchat/internal/pkg/errs"
)

const (
	// MaxAttachmentSizeMB is the maximum allowed image size in megabytes.
	MaxAttachmentSizeMB = 5

	// MaxAttachmentSize is the maximum allowed image size in bytes.
	MaxAttachmentSize = MaxAttachmentSizeMB * 1024 * 1024

	// PresignedURLDuration is the fixed duration for which an upload or download URL is valid.
	PresignedURLDuration = 5 * time.Minute
)

// ExtToMIME maps the permitted image extensions to their MIME types.
var ExtToMIME = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// AttachmentRequest describes an image a client intends to upload into a room.
type AttachmentRequest struct {
	RoomID   int64  `json:"roomId"`
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"fileSize"`
}

// Validate checks the size and type of the image.
func (r AttachmentRequest) Validate() *errs.CustomError {
	if r.RoomID <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if err := ValidateFileSize(r.Size); err != nil {
		return err
	}
	return ValidateFileType(r.FileName, r.MimeType)
}

// ValidateFileSize checks if the provided file size is within acceptable limits.
func ValidateFileSize(fileSize int64) *errs.CustomError {
	if fileSize <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}

	if fileSize > MaxAttachmentSize {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}

	return nil
}

// ValidateFileType checks that the extension is a permitted image type matching mimeType.
func ValidateFileType(fileName string, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.Wrap(errs.ErrInvalidParams, errors.New("file extension is required"))
	}

	expectedMIME, ok := ExtToMIME[ext]
	if !ok || expectedMIME != strings.ToLower(mimeType) {
		return errs.Wrap(errs.ErrInvalidParams, errors.New("only jpeg, png, webp and gif images are allowed"))
	}

	return nil
}

// AttachmentKey generates the object key for a new image in roomID. IMAGE messages carry
// this key as their content.
func AttachmentKey(roomID int64, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return delivery.ImageKeyPrefix(roomID) + uuid.NewString() + ext
}

// ValidateAttachmentKey checks that key was issued for roomID.
func ValidateAttachmentKey(roomID int64, key string) *errs.CustomError {
	prefix := delivery.ImageKeyPrefix(roomID)
	if !strings.HasPrefix(key, prefix) || len(key) == len(prefix) || strings.Contains(key, "..") {
		return errs.NewError(errs.ErrAttachmentKeyInvalid)
	}
	return nil
}

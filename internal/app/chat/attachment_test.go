package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"marketchat/internal/pkg/errs"
)

func TestAttachmentRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  AttachmentRequest
		code int
	}{
		{"ok", AttachmentRequest{RoomID: 1, FileName: "a.PNG", MimeType: "image/png", Size: 10}, 0},
		{"no room", AttachmentRequest{FileName: "a.png", MimeType: "image/png", Size: 10}, errs.ErrInvalidParams},
		{"empty", AttachmentRequest{RoomID: 1, FileName: "a.png", MimeType: "image/png"}, errs.ErrInvalidParams},
		{"too large", AttachmentRequest{RoomID: 1, FileName: "a.png", MimeType: "image/png", Size: MaxAttachmentSize + 1}, errs.ErrFileSizeTooLarge},
		{"not image", AttachmentRequest{RoomID: 1, FileName: "a.pdf", MimeType: "application/pdf", Size: 10}, errs.ErrInvalidParams},
		{"mismatch", AttachmentRequest{RoomID: 1, FileName: "a.png", MimeType: "image/jpeg", Size: 10}, errs.ErrInvalidParams},
		{"no ext", AttachmentRequest{RoomID: 1, FileName: "png", MimeType: "image/png", Size: 10}, errs.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.code == 0 {
				assert.Nil(t, err)
				return
			}
			if assert.NotNil(t, err) {
				assert.Equal(t, tt.code, err.Code)
			}
		})
	}
}

func TestAttachmentKey(t *testing.T) {
	key := AttachmentKey(42, "Photo.JPG")
	assert.True(t, strings.HasPrefix(key, "rooms/42/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.Nil(t, ValidateAttachmentKey(42, key))
	assert.NotNil(t, ValidateAttachmentKey(43, key))
	assert.NotNil(t, ValidateAttachmentKey(42, "rooms/42/"))
	assert.NotNil(t, ValidateAttachmentKey(42, "rooms/42/../1/x.png"))
}

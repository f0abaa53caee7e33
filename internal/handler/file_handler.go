package handler

import (
	"net/http"

	"marketchat/internal/app/chat"
	"marketchat/internal/pkg/errs"
	"marketchat/internal/pkg/req"
	"marketchat/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating an upload URL.
type PresignUploadInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignUploadURL creates an HTTP HandlerFunc to generate a time-limited,
// pre-signed URL for an image upload, scoped to a room the caller participates in.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		var input PresignUploadInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		attachment := chat.AttachmentRequest{
			RoomID:   roomID,
			FileName: input.FileName,
			MimeType: input.MimeType,
			Size:     input.FileSize,
		}
		if customErr := attachment.Validate(); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		fileKey := chat.AttachmentKey(roomID, input.FileName)

		url, err := deps.StorageService.PresignUpload(
			r.Context(),
			fileKey,
			input.MimeType,
			input.FileSize,
			chat.PresignedURLDuration,
		)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"presignedUrl": url,
			"fileKey":      fileKey,
			"fileName":     input.FileName,
			"expiresIn":    int(chat.PresignedURLDuration.Seconds()),
		})
	}
}

// HandlePresignDownloadURL redirects to a time-limited, pre-signed download URL for an
// image of a room the caller participates in.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, roomID, ok := participantFor(deps, w, r)
		if !ok {
			return
		}

		fileKey := r.URL.Query().Get("k")
		if fileKey == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if customErr := chat.ValidateAttachmentKey(roomID, fileKey); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		exists, err := deps.StorageService.Exists(r.Context(), fileKey)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}
		if !exists {
			resp.RespondError(w, r, errs.NewError(errs.ErrAttachmentKeyInvalid))
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), fileKey, chat.PresignedURLDuration)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

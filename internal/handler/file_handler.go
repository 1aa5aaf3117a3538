package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"roomchat/internal/pkg/req"
	"roomchat/internal/pkg/resp"
)

// PresignUploadInput defines the JSON input structure for generating upload URL.
type PresignUploadInput struct {
	RoomID   string `json:"roomId" validate:"required"`
	FileName string `json:"file_name" validate:"required"`
	MimeType string `json:"mime_type" validate:"required"`
	FileSize int64  `json:"file_size" validate:"gt=0"`
}

// HandlePresignUploadURL creates an HTTP HandlerFunc that reserves a file reference owned by
// the caller and returns a time-limited, pre-signed URL to upload its body to.
func HandlePresignUploadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PresignUploadInput
		if customErr := req.BindAndValidate(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		upload, err := deps.Files.Presign(
			r.Context(),
			principalFrom(r).UID,
			input.RoomID,
			input.FileName,
			input.MimeType,
			input.FileSize,
		)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondCreated(w, r, upload)
	}
}

// HandlePresignDownloadURL redirects a room member to a time-limited, pre-signed download URL.
func HandlePresignDownloadURL(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := deps.Files.DownloadURL(r.Context(), chi.URLParam(r, "id"), principalFrom(r).UID)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

package storage

import (
	"path/filepath"
	"strings"

	"roomchat/internal/pkg/errs"
)

// allowedTypes maps permitted file extensions to their MIME type.
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".zip":  "application/zip",
	".json": "application/json",
	".csv":  "text/csv",
}

// ValidateFileSize checks that size is positive and at most maxBytes.
func ValidateFileSize(size, maxBytes int64) *errs.CustomError {
	if size <= 0 {
		return errs.NewError(errs.ErrInvalidParams)
	}
	if size > maxBytes {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}
	return nil
}

// ValidateFileType checks that the extension of fileName is allowed and agrees with mimeType.
func ValidateFileType(fileName, mimeType string) *errs.CustomError {
	ext := strings.ToLower(filepath.Ext(fileName))
	if len(ext) < 2 {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	expected, ok := allowedTypes[ext]
	if !ok || expected != strings.ToLower(mimeType) {
		return errs.NewError(errs.ErrFileTypeInvalid)
	}

	return nil
}

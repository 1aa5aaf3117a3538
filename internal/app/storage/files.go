package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"roomchat/internal/app/db"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

const (
	// PresignedURLDuration is how long upload and download URLs stay valid.
	PresignedURLDuration = 5 * time.Minute

	// MaxFileNameLength bounds stored file names, in characters.
	MaxFileNameLength = 255
)

// Upload is a reserved file reference plus the URL the owner uploads the body to.
type Upload struct {
	FileID    string    `json:"fileId"`
	Key       string    `json:"fileKey"`
	URL       string    `json:"presignedUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FilesConfig bounds file references.
type FilesConfig struct {
	Validity     time.Duration
	MaxSizeBytes int64
}

// Files issues file references and removes their objects once released.
type Files struct {
	store   *db.Store
	objects StorageService
	clock   clockwork.Clock
	cfg     FilesConfig
	logger  zerolog.Logger
}

func NewFiles(store *db.Store, objects StorageService, clock clockwork.Clock, cfg FilesConfig) *Files {
	return &Files{
		store:   store,
		objects: objects,
		clock:   clock,
		cfg:     cfg,
		logger:  logx.Component("Files"),
	}
}

// Presign reserves a file reference owned by ownerUID in roomID, valid until the configured
// validity elapses, and returns an upload URL for its body.
func (f *Files) Presign(ctx context.Context, ownerUID, roomID, name, mimeType string, size int64) (Upload, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxFileNameLength {
		return Upload{}, errs.NewError(errs.ErrInvalidParams)
	}
	if err := ValidateFileSize(size, f.cfg.MaxSizeBytes); err != nil {
		return Upload{}, err
	}
	if err := ValidateFileType(name, mimeType); err != nil {
		return Upload{}, err
	}

	if err := f.requireMember(ctx, roomID, ownerUID); err != nil {
		return Upload{}, err
	}

	id := randx.ID()
	key := fmt.Sprintf("%s/%s%s", roomID, id, strings.ToLower(filepath.Ext(name)))
	now := f.clock.Now()
	expiresAt := now.Add(f.cfg.Validity)

	url, err := f.objects.PresignUpload(ctx, key, strings.ToLower(mimeType), size, PresignedURLDuration)
	if err != nil {
		return Upload{}, errs.NewError(errs.ErrFileStorageFailed)
	}

	err = f.store.CreateFile(ctx, db.File{
		ID:         id,
		OwnerUID:   ownerUID,
		RoomID:     roomID,
		StorageKey: key,
		Name:       name,
		MimeType:   strings.ToLower(mimeType),
		Size:       size,
		CreatedAt:  now.UnixMilli(),
		ExpiresAt:  expiresAt.UnixMilli(),
	})
	if err != nil {
		return Upload{}, errs.Store(err)
	}

	f.logger.Info().Str("file_id", id).Str("room_id", roomID).Str("owner_uid", ownerUID).Int64("size", size).Msg("File reference issued.")
	return Upload{FileID: id, Key: key, URL: url, ExpiresAt: expiresAt}, nil
}

// DownloadURL returns a short-lived URL for an attached file of a room requesterUID belongs to.
func (f *Files) DownloadURL(ctx context.Context, fileID, requesterUID string) (string, error) {
	file, err := f.store.GetFile(ctx, fileID)
	if err != nil {
		if db.IsNotFound(err) {
			return "", errs.NewError(errs.ErrFileNotFound)
		}
		return "", errs.Store(err)
	}
	if file.Status != db.FileActive {
		return "", errs.NewError(errs.ErrFileExpired)
	}
	if file.OwnerUID != requesterUID {
		if err := f.requireMember(ctx, file.RoomID, requesterUID); err != nil {
			return "", err
		}
	}

	url, err := f.objects.PresignDownload(ctx, file.StorageKey, PresignedURLDuration)
	if err != nil {
		return "", errs.NewError(errs.ErrFileStorageFailed)
	}
	return url, nil
}

// ConfirmUpload checks that the body of file has actually been uploaded and is no larger
// than was declared when the reference was issued.
func (f *Files) ConfirmUpload(ctx context.Context, file db.File) error {
	info, err := f.objects.Stat(ctx, file.StorageKey)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return errs.NewError(errs.ErrFileNotFound)
		}
		return errs.NewError(errs.ErrFileStorageFailed)
	}

	if info.Size > file.Size {
		return errs.NewError(errs.ErrFileSizeTooLarge)
	}
	return nil
}

func (f *Files) requireMember(ctx context.Context, roomID, uid string) error {
	m, err := f.store.GetMembership(ctx, roomID, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return errs.NewError(errs.ErrNotInRoom)
		}
		return errs.Store(err)
	}
	if m.Status == db.MembershipLeft {
		return errs.NewError(errs.ErrNotInRoom)
	}
	return nil
}

// Remove deletes the object behind a released file and records the removal. Both steps
// are idempotent; a failure leaves the row pending for the next sweep.
func (f *Files) Remove(ctx context.Context, file db.File) error {
	if err := f.objects.Delete(ctx, file.StorageKey); err != nil {
		return err
	}
	if _, err := f.store.MarkFileRemoved(ctx, file.ID, f.clock.Now().UnixMilli()); err != nil {
		return err
	}

	f.logger.Debug().Str("file_id", file.ID).Str("key", file.StorageKey).Msg("File object removed.")
	return nil
}

// RemoveByID loads fileID and removes its object when it has been released.
func (f *Files) RemoveByID(ctx context.Context, fileID string) error {
	file, err := f.store.GetFile(ctx, fileID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil
		}
		return err
	}
	if file.Status != db.FileExpired || file.RemovedAt.Valid {
		return nil
	}
	return f.Remove(ctx, file)
}

// ExpireUnused marks never-attached references past their validity as expired.
func (f *Files) ExpireUnused(ctx context.Context) (int64, error) {
	return f.store.ExpireUnusedFiles(ctx, f.clock.Now().UnixMilli())
}

// RemovePending removes up to limit expired objects not yet confirmed removed. Individual
// failures are logged and left for the next run.
func (f *Files) RemovePending(ctx context.Context, limit int) (int, error) {
	pending, err := f.store.ListPendingRemovals(ctx, limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, file := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := f.Remove(ctx, file); err != nil {
			f.logger.Warn().Err(err).Str("file_id", file.ID).Msg("File removal failed, will retry.")
			continue
		}
		removed++
	}
	return removed, nil
}

package db

import "context"

const fileColumns = `id, owner_uid, room_id, storage_key, name, mime_type, size, status, message_id, created_at, expires_at, removed_at`

func scanFile(row interface{ Scan(...any) error }) (File, error) {
	var f File
	err := row.Scan(&f.ID, &f.OwnerUID, &f.RoomID, &f.StorageKey, &f.Name, &f.MimeType, &f.Size,
		&f.Status, &f.MessageID, &f.CreatedAt, &f.ExpiresAt, &f.RemovedAt)
	return f, err
}

const createFile = `INSERT INTO files (id, owner_uid, room_id, storage_key, name, mime_type, size, status, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, $9)`

func (q *Queries) CreateFile(ctx context.Context, f File) error {
	_, err := q.db.ExecContext(ctx, createFile, f.ID, f.OwnerUID, f.RoomID, f.StorageKey, f.Name, f.MimeType,
		f.Size, f.CreatedAt, f.ExpiresAt)
	return err
}

const getFile = `SELECT ` + fileColumns + ` FROM files WHERE id = $1`

func (q *Queries) GetFile(ctx context.Context, id string) (File, error) {
	return scanFile(q.db.QueryRowContext(ctx, getFile, id))
}

const attachFile = `UPDATE files SET message_id = $2 WHERE id = $1 AND message_id IS NULL AND status = 'active'`

// AttachFile binds an unattached active file to a message; zero rows means it was taken.
func (q *Queries) AttachFile(ctx context.Context, id, messageID string) (int64, error) {
	return affected(q.db.ExecContext(ctx, attachFile, id, messageID))
}

const releaseFile = `UPDATE files SET message_id = NULL, status = 'expired' WHERE id = $1`

// ReleaseFile detaches a file from its message and queues it for physical removal.
func (q *Queries) ReleaseFile(ctx context.Context, id string) (int64, error) {
	return affected(q.db.ExecContext(ctx, releaseFile, id))
}

const markFileRemoved = `UPDATE files SET removed_at = $2 WHERE id = $1 AND removed_at IS NULL`

func (q *Queries) MarkFileRemoved(ctx context.Context, id string, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, markFileRemoved, id, now))
}

const expireUnusedFiles = `UPDATE files SET status = 'expired'
WHERE status = 'active' AND message_id IS NULL AND expires_at < $1`

// ExpireUnusedFiles marks never-attached files past their validity as expired.
func (q *Queries) ExpireUnusedFiles(ctx context.Context, now int64) (int64, error) {
	return affected(q.db.ExecContext(ctx, expireUnusedFiles, now))
}

const listPendingRemovals = `SELECT ` + fileColumns + ` FROM files
WHERE status = 'expired' AND removed_at IS NULL
ORDER BY created_at ASC, id ASC
LIMIT $1`

// ListPendingRemovals returns expired files whose object has not been confirmed removed.
func (q *Queries) ListPendingRemovals(ctx context.Context, limit int) ([]File, error) {
	rows, err := q.db.QueryContext(ctx, listPendingRemovals, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

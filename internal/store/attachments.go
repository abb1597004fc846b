package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/reviewlog/internal/ir"
)

// StoreAttachment stores attachment bytes under their content-addressed ID.
// Storing identical bytes again reports ir.AlreadyExists.
func (s *Store) StoreAttachment(ctx context.Context, contents []byte, mimeType ir.AttachmentMimeType) (ir.AttachmentStoreResult, error) {
	if mimeType.FileExtension() == "" {
		return ir.AttachmentStoreResult{}, fmt.Errorf("store attachment: %q: %w", mimeType, ErrUnsupportedMimeType)
	}
	if contents == nil {
		contents = []byte{}
	}

	id := ir.AttachmentID(contents)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, mime_type, byte_length, contents) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, string(mimeType), len(contents), contents)
	if err != nil {
		return ir.AttachmentStoreResult{}, fmt.Errorf("store attachment %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return ir.AttachmentStoreResult{}, fmt.Errorf("store attachment %s: rows affected: %w", id, err)
	}

	status := ir.Stored
	if n == 0 {
		status = ir.AlreadyExists
	}
	return ir.AttachmentStoreResult{Status: status, ID: id, URL: s.AttachmentURL(id)}, nil
}

// AttachmentURL returns the URL an attachment is served from.
func (s *Store) AttachmentURL(id string) string {
	return s.attachmentBaseURL + "/" + id
}

// ReadAttachment returns the stored bytes and mime type.
// Returns ErrNotFound if no attachment has the ID.
func (s *Store) ReadAttachment(ctx context.Context, id string) ([]byte, ir.AttachmentMimeType, error) {
	var contents []byte
	var mimeType string
	err := s.db.QueryRowContext(ctx, `
		SELECT contents, mime_type FROM attachments WHERE id = ?
	`, id).Scan(&contents, &mimeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("read attachment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, "", fmt.Errorf("read attachment %s: %w", id, err)
	}
	return contents, ir.AttachmentMimeType(mimeType), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// SaveBlob inserts or replaces a tool-output blob.
func (d *DB) SaveBlob(ctx context.Context, blob store.ToolBlob) error {
	if blob.ID == "" {
		blob.ID = store.GenNewID()
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now()
	}
	if blob.CharCount == 0 {
		blob.CharCount = len(blob.Output)
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tool_blobs (id, tool_name, output, summary, session_key, access_count, char_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		blob.ID, blob.ToolName, blob.Output, blob.Summary, blob.SessionKey,
		blob.AccessCount, blob.CharCount, blob.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save blob: %w", err)
	}
	return nil
}

// GetBlob fetches a blob and increments its access counter.
func (d *DB) GetBlob(ctx context.Context, id string) (store.ToolBlob, error) {
	var b store.ToolBlob
	var createdAt int64
	err := d.db.QueryRowContext(ctx,
		`SELECT id, tool_name, output, summary, session_key, access_count, char_count, created_at
		 FROM tool_blobs WHERE id = ?`, id,
	).Scan(&b.ID, &b.ToolName, &b.Output, &b.Summary, &b.SessionKey, &b.AccessCount, &b.CharCount, &createdAt)
	if err == sql.ErrNoRows {
		return store.ToolBlob{}, store.ErrNotFound
	}
	if err != nil {
		return store.ToolBlob{}, fmt.Errorf("get blob: %w", err)
	}
	b.CreatedAt = time.UnixMilli(createdAt)

	if _, err := d.db.ExecContext(ctx,
		`UPDATE tool_blobs SET access_count = access_count + 1 WHERE id = ?`, id); err != nil {
		return store.ToolBlob{}, fmt.Errorf("bump blob access: %w", err)
	}
	b.AccessCount++
	return b, nil
}

// CleanupBlobs deletes blobs created before cutoff and returns how many.
func (d *DB) CleanupBlobs(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM tool_blobs WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cleanup blobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

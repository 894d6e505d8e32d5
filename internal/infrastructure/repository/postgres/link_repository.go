package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ryanlane/archive-brain/internal/core/domain"
)

type LinkRepository struct {
	db *sql.DB
}

func NewLinkRepository(db *sql.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

// ReplaceForDocument rewrites the link facts of one document atomically.
// Segmentation re-runs call this, so stale links never accumulate.
func (r *LinkRepository) ReplaceForDocument(ctx context.Context, documentID int64, links []domain.Link) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin link tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM links WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete links: %w", err)
	}
	for _, link := range links {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO links (document_id, url, text, type, domain)
VALUES ($1,$2,$3,$4,$5)
`, documentID, link.URL, link.Text, string(link.Type), link.Domain); err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit link tx: %w", err)
	}
	return nil
}

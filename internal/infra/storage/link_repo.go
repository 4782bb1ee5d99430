package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type LinkRepo struct{ db *sql.DB }

func NewLinkRepo(db *sql.DB) *LinkRepo { return &LinkRepo{db: db} }

// Upsert por subject_id; external_id es único, si otro subject ya lo tiene es conflicto.
func (r *LinkRepo) Upsert(ctx context.Context, l domain.AccountLink) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO user_links (subject_id, external_id, external_name, display_name, linked_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (subject_id) DO UPDATE SET
  external_id   = EXCLUDED.external_id,
  external_name = EXCLUDED.external_name,
  display_name  = EXCLUDED.display_name,
  updated_at    = now()
`, l.SubjectID, l.ExternalID, l.ExternalName, l.DisplayName, l.LinkedAt)
	if isUniqueViolation(err) {
		return domain.Conflict(domain.CodeAlreadyLinked, "la cuenta **%s** ya está vinculada a otro usuario", l.ExternalName)
	}
	if err != nil {
		return fmt.Errorf("upsert link: %w", err)
	}
	return nil
}

func (r *LinkRepo) Get(ctx context.Context, subjectID int64) (domain.AccountLink, error) {
	var l domain.AccountLink
	err := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT subject_id, external_id, external_name, display_name, linked_at
  FROM user_links
 WHERE subject_id = $1
`, subjectID).Scan(&l.SubjectID, &l.ExternalID, &l.ExternalName, &l.DisplayName, &l.LinkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return l, domain.ErrRecordNotFound
	}
	if err != nil {
		return l, fmt.Errorf("get link: %w", err)
	}
	return l, nil
}

func (r *LinkRepo) Delete(ctx context.Context, subjectID int64) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM user_links WHERE subject_id = $1`, subjectID)
	if err != nil {
		return false, fmt.Errorf("delete link: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

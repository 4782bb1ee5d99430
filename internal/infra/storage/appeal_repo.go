package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type AppealRepo struct{ db *sql.DB }

func NewAppealRepo(db *sql.DB) *AppealRepo { return &AppealRepo{db: db} }

const appealCols = `id, subject_id, punishment_id, text, status, reviewer_id, reviewed_at, decision_text, created_at`

func scanAppeal(s scanner) (domain.Appeal, error) {
	var a domain.Appeal
	var st string
	err := s.Scan(&a.ID, &a.SubjectID, &a.PunishmentID, &a.Text, &st, &a.ReviewerID, &a.ReviewedAt, &a.DecisionText, &a.CreatedAt)
	a.Status = domain.AppealStatus(st)
	return a, err
}

// Insert: el índice parcial appeals_one_pending_idx garantiza una sola pending por punishment.
func (r *AppealRepo) Insert(ctx context.Context, a domain.Appeal) (int64, error) {
	var id int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `
INSERT INTO appeals (subject_id, punishment_id, text, status, created_at)
VALUES ($1,$2,$3,'pending',$4)
RETURNING id
`, a.SubjectID, a.PunishmentID, a.Text, a.CreatedAt).Scan(&id)
	if isUniqueViolation(err) {
		return 0, domain.Conflict(domain.CodeDuplicatePendingAppeal, "ya tienes una apelación pendiente para esta sanción")
	}
	if err != nil {
		return 0, fmt.Errorf("insert appeal: %w", err)
	}
	return id, nil
}

func (r *AppealRepo) Get(ctx context.Context, id int64) (domain.Appeal, error) {
	a, err := scanAppeal(conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+appealCols+` FROM appeals WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return a, domain.ErrRecordNotFound
	}
	if err != nil {
		return a, fmt.Errorf("get appeal %d: %w", id, err)
	}
	return a, nil
}

func (r *AppealRepo) HasPending(ctx context.Context, subjectID, punishmentID int64) (bool, error) {
	var ok bool
	err := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT EXISTS (
  SELECT 1 FROM appeals WHERE subject_id = $1 AND punishment_id = $2 AND status = 'pending'
)`, subjectID, punishmentID).Scan(&ok)
	return ok, err
}

func (r *AppealRepo) Resolve(ctx context.Context, id int64, status domain.AppealStatus, reviewerID int64, decision string, at time.Time) (bool, error) {
	var text *string
	if decision != "" {
		text = &decision
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE appeals
   SET status = $2, reviewer_id = $3, decision_text = $4, reviewed_at = $5
 WHERE id = $1 AND status = 'pending'
`, id, string(status), reviewerID, text, at)
	if err != nil {
		return false, fmt.Errorf("resolve appeal %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *AppealRepo) ListPending(ctx context.Context, limit int) ([]domain.Appeal, error) {
	return r.list(ctx, `
SELECT `+appealCols+` FROM appeals
 WHERE status = 'pending'
 ORDER BY created_at ASC, id ASC
 LIMIT $1
`, limit)
}

func (r *AppealRepo) ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.Appeal, error) {
	return r.list(ctx, `
SELECT `+appealCols+` FROM appeals
 WHERE subject_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2
`, subjectID, limit)
}

func (r *AppealRepo) list(ctx context.Context, q string, args ...any) ([]domain.Appeal, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list appeals: %w", err)
	}
	defer rows.Close()
	var out []domain.Appeal
	for rows.Next() {
		a, err := scanAppeal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

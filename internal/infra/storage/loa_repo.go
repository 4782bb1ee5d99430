package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type LoaRepo struct{ db *sql.DB }

func NewLoaRepo(db *sql.DB) *LoaRepo { return &LoaRepo{db: db} }

const loaCols = `id, subject_id, start_date, end_date, reason, status, reviewer_id, reviewed_at, decision_text, created_at`

func scanLoa(s scanner) (domain.Loa, error) {
	var l domain.Loa
	var st string
	err := s.Scan(&l.ID, &l.SubjectID, &l.StartDate, &l.EndDate, &l.Reason, &st, &l.ReviewerID, &l.ReviewedAt, &l.DecisionText, &l.CreatedAt)
	l.Status = domain.LoaStatus(st)
	l.StartDate = domain.Date(l.StartDate)
	l.EndDate = domain.Date(l.EndDate)
	return l, err
}

func (r *LoaRepo) Insert(ctx context.Context, l domain.Loa) (int64, error) {
	var id int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `
INSERT INTO loa_requests (subject_id, start_date, end_date, reason, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id
`, l.SubjectID, l.StartDate, l.EndDate, l.Reason, string(l.Status), l.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert loa: %w", err)
	}
	return id, nil
}

func (r *LoaRepo) Get(ctx context.Context, id int64) (domain.Loa, error) {
	l, err := scanLoa(conn(ctx, r.db).QueryRowContext(ctx, `SELECT `+loaCols+` FROM loa_requests WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return l, domain.ErrRecordNotFound
	}
	if err != nil {
		return l, fmt.Errorf("get loa %d: %w", id, err)
	}
	return l, nil
}

func (r *LoaRepo) ListOpen(ctx context.Context, subjectID int64) ([]domain.Loa, error) {
	return r.list(ctx, `
SELECT `+loaCols+` FROM loa_requests
 WHERE subject_id = $1 AND status IN ('pending','approved')
 ORDER BY start_date ASC
`, subjectID)
}

func (r *LoaRepo) Review(ctx context.Context, id int64, status domain.LoaStatus, reviewerID int64, reason *string, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE loa_requests
   SET status = $2, reviewer_id = $3, decision_text = $4, reviewed_at = $5
 WHERE id = $1 AND status = 'pending'
`, id, string(status), reviewerID, reason, at)
	if err != nil {
		return false, fmt.Errorf("review loa %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpireApproved es un único UPDATE ... RETURNING: dos sweeps concurrentes no ven la misma fila.
func (r *LoaRepo) ExpireApproved(ctx context.Context, now time.Time) ([]domain.Loa, error) {
	return r.list(ctx, `
UPDATE loa_requests
   SET status = 'expired'
 WHERE status = 'approved' AND end_date <= $1
RETURNING `+loaCols, domain.Date(now))
}

func (r *LoaRepo) ListPending(ctx context.Context, limit int) ([]domain.Loa, error) {
	return r.list(ctx, `
SELECT `+loaCols+` FROM loa_requests
 WHERE status = 'pending'
 ORDER BY created_at ASC, id ASC
 LIMIT $1
`, limit)
}

func (r *LoaRepo) ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.Loa, error) {
	return r.list(ctx, `
SELECT `+loaCols+` FROM loa_requests
 WHERE subject_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2
`, subjectID, limit)
}

func (r *LoaRepo) OnLeave(ctx context.Context, subjectIDs []int64, day time.Time) (map[int64]bool, error) {
	out := map[int64]bool{}
	if len(subjectIDs) == 0 {
		return out, nil
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT DISTINCT subject_id
  FROM loa_requests
 WHERE subject_id = ANY($1)
   AND status = 'approved'
   AND start_date <= $2 AND end_date >= $2
`, pq.Array(subjectIDs), domain.Date(day))
	if err != nil {
		return nil, fmt.Errorf("loa on leave: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *LoaRepo) list(ctx context.Context, q string, args ...any) ([]domain.Loa, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list loa: %w", err)
	}
	defer rows.Close()
	var out []domain.Loa
	for rows.Next() {
		l, err := scanLoa(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

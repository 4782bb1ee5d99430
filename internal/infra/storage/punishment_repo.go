package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type PunishmentRepo struct{ db *sql.DB }

func NewPunishmentRepo(db *sql.DB) *PunishmentRepo { return &PunishmentRepo{db: db} }

const punishmentCols = `id, subject_id, subject_name, type, reason, issuer_id, issued_at, active, auto, expires_at, removed_by, removed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPunishment(s scanner) (domain.Punishment, error) {
	var p domain.Punishment
	var typ string
	err := s.Scan(&p.ID, &p.SubjectID, &p.SubjectName, &typ, &p.Reason, &p.IssuerID, &p.IssuedAt,
		&p.Active, &p.Auto, &p.ExpiresAt, &p.RemovedBy, &p.RemovedAt)
	p.Type = domain.PunishmentType(typ)
	return p, err
}

func (r *PunishmentRepo) Insert(ctx context.Context, p domain.NewPunishment, at time.Time) (int64, error) {
	var id int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `
INSERT INTO punishments (subject_id, subject_name, type, reason, issuer_id, issued_at, auto, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id
`, p.SubjectID, p.SubjectName, string(p.Type), p.Reason, p.IssuerID, at, p.Auto, p.ExpiresAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert punishment: %w", err)
	}
	return id, nil
}

func (r *PunishmentRepo) Get(ctx context.Context, id int64) (domain.Punishment, error) {
	p, err := scanPunishment(conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+punishmentCols+` FROM punishments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, domain.ErrRecordNotFound
	}
	if err != nil {
		return p, fmt.Errorf("get punishment %d: %w", id, err)
	}
	return p, nil
}

func (r *PunishmentRepo) Deactivate(ctx context.Context, id, removedBy int64, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE punishments
   SET active = FALSE, removed_by = $2, removed_at = $3
 WHERE id = $1 AND active
`, id, removedBy, at)
	if err != nil {
		return false, fmt.Errorf("deactivate punishment %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *PunishmentRepo) DeactivateActive(ctx context.Context, subjectID int64, t domain.PunishmentType, removedBy int64, at time.Time) ([]int64, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
UPDATE punishments
   SET active = FALSE, removed_by = $3, removed_at = $4
 WHERE subject_id = $1 AND type = $2 AND active
RETURNING id
`, subjectID, string(t), removedBy, at)
	if err != nil {
		return nil, fmt.Errorf("deactivate %s of %d: %w", t, subjectID, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PunishmentRepo) CountActive(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT count(*) FROM punishments WHERE subject_id = $1 AND type = $2 AND active
`, subjectID, string(t)).Scan(&n)
	return n, err
}

func (r *PunishmentRepo) CountAll(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT count(*) FROM punishments WHERE subject_id = $1 AND type = $2
`, subjectID, string(t)).Scan(&n)
	return n, err
}

func (r *PunishmentRepo) ListActive(ctx context.Context, subjectID int64, t domain.PunishmentType) ([]domain.Punishment, error) {
	return r.list(ctx, `
SELECT `+punishmentCols+`
  FROM punishments
 WHERE subject_id = $1 AND active AND ($2 = '' OR type = $2)
 ORDER BY issued_at DESC, id DESC
`, subjectID, string(t))
}

func (r *PunishmentRepo) History(ctx context.Context, subjectID int64, limit int) ([]domain.Punishment, error) {
	return r.list(ctx, `
SELECT `+punishmentCols+`
  FROM punishments
 WHERE subject_id = $1
 ORDER BY issued_at DESC, id DESC
 LIMIT $2
`, subjectID, limit)
}

func (r *PunishmentRepo) ListExpiredTimeouts(ctx context.Context, now time.Time) ([]domain.Punishment, error) {
	return r.list(ctx, `
SELECT `+punishmentCols+`
  FROM punishments
 WHERE active AND type = 'timeout' AND expires_at IS NOT NULL AND expires_at <= $1
 ORDER BY expires_at ASC
`, now)
}

func (r *PunishmentRepo) list(ctx context.Context, q string, args ...any) ([]domain.Punishment, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list punishments: %w", err)
	}
	defer rows.Close()
	var out []domain.Punishment
	for rows.Next() {
		p, err := scanPunishment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type NoteRepo struct{ db *sql.DB }

func NewNoteRepo(db *sql.DB) *NoteRepo { return &NoteRepo{db: db} }

func (r *NoteRepo) Insert(ctx context.Context, n domain.StaffNote) (int64, error) {
	var id int64
	err := conn(ctx, r.db).QueryRowContext(ctx, `
INSERT INTO staff_notes (subject_id, note, author_id, created_at)
VALUES ($1,$2,$3,$4)
RETURNING id
`, n.SubjectID, n.Note, n.AuthorID, n.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert note: %w", err)
	}
	return id, nil
}

func (r *NoteRepo) ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.StaffNote, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT id, subject_id, note, author_id, created_at
  FROM staff_notes
 WHERE subject_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2
`, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	var out []domain.StaffNote
	for rows.Next() {
		var n domain.StaffNote
		if err := rows.Scan(&n.ID, &n.SubjectID, &n.Note, &n.AuthorID, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

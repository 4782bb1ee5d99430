package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// ActivityRepo es append-only: no hay UPDATE ni DELETE sobre staff_activity.
type ActivityRepo struct{ db *sql.DB }

func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

func (r *ActivityRepo) Append(ctx context.Context, e domain.ActivityEntry) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO staff_activity (staff_id, action, target_id, details, ts)
VALUES ($1,$2,$3,$4,$5)
`, e.StaffID, e.Action, e.TargetID, e.Details, e.Timestamp)
	if err != nil {
		return fmt.Errorf("append activity: %w", err)
	}
	return nil
}

func (r *ActivityRepo) CountByAction(ctx context.Context, staffID int64, since time.Time) (map[string]int, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT action, count(*)
  FROM staff_activity
 WHERE staff_id = $1 AND ts >= $2
 GROUP BY action
`, staffID, since)
	if err != nil {
		return nil, fmt.Errorf("count activity: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var a string
		var n int
		if err := rows.Scan(&a, &n); err != nil {
			return nil, err
		}
		out[a] = n
	}
	return out, rows.Err()
}

// Totals ya viene ordenado igual que el leaderboard; el actor de sistema no cuenta.
func (r *ActivityRepo) Totals(ctx context.Context, since time.Time) ([]domain.LeaderboardRow, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT staff_id, count(*) AS total
  FROM staff_activity
 WHERE ts >= $1 AND staff_id <> $2
 GROUP BY staff_id
 ORDER BY total DESC, staff_id ASC
`, since, domain.SystemActor)
	if err != nil {
		return nil, fmt.Errorf("activity totals: %w", err)
	}
	defer rows.Close()
	var out []domain.LeaderboardRow
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.StaffID, &row.Total); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *ActivityRepo) TotalsFor(ctx context.Context, staffIDs []int64, since time.Time) (map[int64]int, error) {
	out := map[int64]int{}
	if len(staffIDs) == 0 {
		return out, nil
	}
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT staff_id, count(*)
  FROM staff_activity
 WHERE staff_id = ANY($1) AND ts >= $2
 GROUP BY staff_id
`, pq.Array(staffIDs), since)
	if err != nil {
		return nil, fmt.Errorf("activity totals for: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (r *ActivityRepo) Since(ctx context.Context, since time.Time, limit int) ([]domain.ActivityEntry, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT id, staff_id, action, target_id, details, ts
  FROM staff_activity
 WHERE ts >= $1
 ORDER BY ts DESC, id DESC
 LIMIT $2
`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()
	var out []domain.ActivityEntry
	for rows.Next() {
		var e domain.ActivityEntry
		if err := rows.Scan(&e.ID, &e.StaffID, &e.Action, &e.TargetID, &e.Details, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DedupRepo guarda hashes de payloads de webhook ya procesados.
type DedupRepo struct{ db *sql.DB }

func NewDedupRepo(db *sql.DB) *DedupRepo { return &DedupRepo{db: db} }

// Seen inserta el hash; devuelve true si ya existía.
func (r *DedupRepo) Seen(ctx context.Context, hash string) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
INSERT INTO webhook_dedup (hash) VALUES ($1) ON CONFLICT DO NOTHING
`, hash)
	if err != nil {
		return false, fmt.Errorf("dedup insert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 0, nil
}

// Forget borra un hash (p.ej. si el procesamiento falló y se quiere permitir reintento).
func (r *DedupRepo) Forget(ctx context.Context, hash string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM webhook_dedup WHERE hash = $1`, hash)
	return err
}

func (r *DedupRepo) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
DELETE FROM webhook_dedup WHERE received_at < now() - $1::interval
`, durToInterval(olderThan))
	if err != nil {
		return 0, fmt.Errorf("dedup prune: %w", err)
	}
	return res.RowsAffected()
}

func durToInterval(d time.Duration) string {
	secs := int64(d.Seconds())
	if secs <= 0 {
		return "0 seconds"
	}
	return fmt.Sprintf("%d seconds", secs)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type TicketRepo struct {
	db *sql.DB
	tx *TxManager
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db, tx: NewTxManager(db)} }

const ticketCols = `id, guild_id, ticket_number, subject_id, channel_id, category, topic, status, created_at, closed_at, closed_by`

func scanTicket(s scanner) (domain.Ticket, error) {
	var t domain.Ticket
	var st string
	err := s.Scan(&t.ID, &t.GuildID, &t.Number, &t.SubjectID, &t.ChannelID, &t.Category, &t.Topic, &st, &t.CreatedAt, &t.ClosedAt, &t.ClosedBy)
	t.Status = domain.TicketStatus(st)
	return t, err
}

// Create toma un advisory lock por guild para que max+1 no se repita.
func (r *TicketRepo) Create(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	var out domain.Ticket
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		c := conn(ctx, r.db)
		if _, err := c.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, t.GuildID); err != nil {
			return fmt.Errorf("ticket lock: %w", err)
		}
		var err error
		out, err = scanTicket(c.QueryRowContext(ctx, `
INSERT INTO tickets (guild_id, ticket_number, subject_id, category, topic, status, created_at)
SELECT $1, COALESCE(MAX(ticket_number), 0) + 1, $2, $3, $4, 'open', $5
  FROM tickets WHERE guild_id = $1
RETURNING `+ticketCols,
			t.GuildID, t.SubjectID, t.Category, t.Topic, t.CreatedAt))
		if err != nil {
			return fmt.Errorf("insert ticket: %w", err)
		}
		return nil
	})
	return out, err
}

func (r *TicketRepo) Get(ctx context.Context, id int64) (domain.Ticket, error) {
	return r.one(ctx, `SELECT `+ticketCols+` FROM tickets WHERE id = $1`, id)
}

func (r *TicketRepo) GetByChannel(ctx context.Context, channelID int64) (domain.Ticket, error) {
	return r.one(ctx, `SELECT `+ticketCols+` FROM tickets WHERE channel_id = $1`, channelID)
}

func (r *TicketRepo) one(ctx context.Context, q string, arg int64) (domain.Ticket, error) {
	t, err := scanTicket(conn(ctx, r.db).QueryRowContext(ctx, q, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return t, domain.ErrRecordNotFound
	}
	if err != nil {
		return t, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (r *TicketRepo) SetChannel(ctx context.Context, id, channelID int64) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE tickets SET channel_id = $2 WHERE id = $1`, id, channelID)
	if err != nil {
		return fmt.Errorf("set ticket channel: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}

func (r *TicketRepo) CountOpen(ctx context.Context, guildID, subjectID int64) (int, error) {
	var n int
	err := conn(ctx, r.db).QueryRowContext(ctx, `
SELECT count(*) FROM tickets WHERE guild_id = $1 AND subject_id = $2 AND status = 'open'
`, guildID, subjectID).Scan(&n)
	return n, err
}

func (r *TicketRepo) Close(ctx context.Context, id, closedBy int64, at time.Time) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
UPDATE tickets
   SET status = 'closed', closed_by = $2, closed_at = $3
 WHERE id = $1 AND status = 'open'
`, id, closedBy, at)
	if err != nil {
		return false, fmt.Errorf("close ticket %d: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *TicketRepo) Stats(ctx context.Context, guildID int64) (domain.TicketStats, error) {
	st := domain.TicketStats{ByCategory: map[string]int{}}
	rows, err := conn(ctx, r.db).QueryContext(ctx, `
SELECT category, count(*), count(*) FILTER (WHERE status = 'open')
  FROM tickets
 WHERE guild_id = $1
 GROUP BY category
`, guildID)
	if err != nil {
		return st, fmt.Errorf("ticket stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var total, open int
		if err := rows.Scan(&cat, &total, &open); err != nil {
			return st, err
		}
		st.ByCategory[cat] = total
		st.Total += total
		st.Open += open
	}
	return st, rows.Err()
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// testDB usa TEST_DATABASE_URL; sin ella los tests se saltan.
func testDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := Open(context.Background(), url)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	_, err = db.Exec(`TRUNCATE appeals, punishments, loa_requests, staff_activity, tickets, staff_notes, user_links, webhook_dedup RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

var at = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

func TestPunishmentRepo(t *testing.T) {
	db := testDB(t)
	r := NewPunishmentRepo(db)
	ctx := context.Background()

	id1, err := r.Insert(ctx, domain.NewPunishment{SubjectID: 1, Type: domain.Warn, Reason: "a", IssuerID: 9}, at)
	require.NoError(t, err)
	id2, err := r.Insert(ctx, domain.NewPunishment{SubjectID: 1, Type: domain.Warn, Reason: "b", IssuerID: 9}, at.Add(time.Minute))
	require.NoError(t, err)

	n, err := r.CountActive(ctx, 1, domain.Warn)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err := r.ListActive(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, id2, list[0].ID)

	ok, err := r.Deactivate(ctx, id1, 7, at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.Deactivate(ctx, id1, 7, at)
	require.NoError(t, err)
	assert.False(t, ok)

	// no se puede reactivar ni reescribir
	_, err = db.Exec(`UPDATE punishments SET active = TRUE WHERE id = $1`, id1)
	assert.Error(t, err)
	_, err = db.Exec(`UPDATE punishments SET reason = 'x' WHERE id = $1`, id2)
	assert.Error(t, err)

	ids, err := r.DeactivateActive(ctx, 1, domain.Warn, 7, at)
	require.NoError(t, err)
	assert.Equal(t, []int64{id2}, ids)

	all, err := r.CountAll(ctx, 1, domain.Warn)
	require.NoError(t, err)
	assert.Equal(t, 2, all)

	_, err = r.Get(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrRecordNotFound))
}

func TestExpiredTimeouts(t *testing.T) {
	db := testDB(t)
	r := NewPunishmentRepo(db)
	ctx := context.Background()
	past, future := at.Add(-time.Hour), at.Add(time.Hour)

	old, err := r.Insert(ctx, domain.NewPunishment{SubjectID: 2, Type: domain.Timeout, Reason: "t", IssuerID: 9, ExpiresAt: &past}, at.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = r.Insert(ctx, domain.NewPunishment{SubjectID: 2, Type: domain.Timeout, Reason: "t", IssuerID: 9, ExpiresAt: &future}, at)
	require.NoError(t, err)

	got, err := r.ListExpiredTimeouts(ctx, at)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, old, got[0].ID)
}

func TestAppealPendingUniqueness(t *testing.T) {
	db := testDB(t)
	pr, ar := NewPunishmentRepo(db), NewAppealRepo(db)
	ctx := context.Background()
	pid, err := pr.Insert(ctx, domain.NewPunishment{SubjectID: 3, Type: domain.Ban, Reason: "x", IssuerID: 9}, at)
	require.NoError(t, err)

	aid, err := ar.Insert(ctx, domain.Appeal{SubjectID: 3, PunishmentID: pid, Text: "texto", CreatedAt: at})
	require.NoError(t, err)
	_, err = ar.Insert(ctx, domain.Appeal{SubjectID: 3, PunishmentID: pid, Text: "texto", CreatedAt: at})
	assert.True(t, errors.Is(err, domain.ErrDuplicatePendingAppeal))

	ok, err := ar.Resolve(ctx, aid, domain.AppealDenied, 8, "no", at)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = ar.Resolve(ctx, aid, domain.AppealApproved, 8, "", at)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ar.Insert(ctx, domain.Appeal{SubjectID: 3, PunishmentID: pid, Text: "otra", CreatedAt: at})
	assert.NoError(t, err)
}

func TestLoaExpireAndOnLeave(t *testing.T) {
	db := testDB(t)
	r := NewLoaRepo(db)
	ctx := context.Background()
	start, end := domain.Date(at), domain.Date(at).AddDate(0, 0, 5)

	id, err := r.Insert(ctx, domain.Loa{SubjectID: 4, StartDate: start, EndDate: end, Reason: "x", Status: domain.LoaPending, CreatedAt: at})
	require.NoError(t, err)
	ok, err := r.Review(ctx, id, domain.LoaApproved, 8, nil, at)
	require.NoError(t, err)
	assert.True(t, ok)

	on, err := r.OnLeave(ctx, []int64{4, 5}, start.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{4: true}, on)

	got, err := r.ExpireApproved(ctx, end.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.LoaExpired, got[0].Status)
	assert.Equal(t, end, got[0].EndDate)

	got, err = r.ExpireApproved(ctx, end.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestActivityTotals(t *testing.T) {
	db := testDB(t)
	r := NewActivityRepo(db)
	ctx := context.Background()
	for staff, n := range map[int64]int{10: 2, 20: 2, 30: 1, domain.SystemActor: 5} {
		for i := 0; i < n; i++ {
			require.NoError(t, r.Append(ctx, domain.ActivityEntry{StaffID: staff, Action: "warn", Timestamp: at}))
		}
	}
	rows, err := r.Totals(ctx, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []domain.LeaderboardRow{{StaffID: 10, Total: 2}, {StaffID: 20, Total: 2}, {StaffID: 30, Total: 1}}, rows)

	m, err := r.TotalsFor(ctx, []int64{10, 99}, at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[int64]int{10: 2}, m)
}

func TestTicketNumbersConcurrent(t *testing.T) {
	db := testDB(t)
	r := NewTicketRepo(db)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(s int64) {
			defer wg.Done()
			_, err := r.Create(ctx, domain.Ticket{GuildID: 1, SubjectID: s, Category: "general", Topic: "t", CreatedAt: at})
			errs <- err
		}(int64(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	st, err := r.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Total)

	var maxN int
	require.NoError(t, db.QueryRow(`SELECT max(ticket_number) FROM tickets WHERE guild_id = 1`).Scan(&maxN))
	assert.Equal(t, 10, maxN)
}

func TestTxRollback(t *testing.T) {
	db := testDB(t)
	tx := NewTxManager(db)
	r := NewNoteRepo(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := r.Insert(ctx, domain.StaffNote{SubjectID: 1, Note: "n", AuthorID: 2, CreatedAt: at}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	notes, err := r.ListBySubject(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func TestDedup(t *testing.T) {
	db := testDB(t)
	r := NewDedupRepo(db)
	ctx := context.Background()
	seen, err := r.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, seen)
	seen, err = r.Seen(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestDurToInterval(t *testing.T) {
	assert.Equal(t, "0 seconds", durToInterval(0))
	assert.Equal(t, "90 seconds", durToInterval(90*time.Second))
}

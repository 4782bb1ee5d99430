package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// ---- punishments ----

type fakePunishments struct {
	mu          sync.Mutex
	rows        []domain.Punishment
	countAllErr error
}

func (f *fakePunishments) Insert(_ context.Context, p domain.NewPunishment, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := int64(len(f.rows) + 1)
	f.rows = append(f.rows, domain.Punishment{
		ID: id, SubjectID: p.SubjectID, SubjectName: p.SubjectName, Type: p.Type, Reason: p.Reason,
		IssuerID: p.IssuerID, IssuedAt: at, Active: true, Auto: p.Auto, ExpiresAt: p.ExpiresAt,
	})
	return id, nil
}

func (f *fakePunishments) Get(_ context.Context, id int64) (domain.Punishment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.rows {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Punishment{}, domain.ErrRecordNotFound
}

func (f *fakePunishments) Deactivate(_ context.Context, id, by int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			if !f.rows[i].Active {
				return false, nil
			}
			f.rows[i].Active = false
			f.rows[i].RemovedBy = &by
			f.rows[i].RemovedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePunishments) DeactivateActive(_ context.Context, subject int64, t domain.PunishmentType, by int64, at time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for i := range f.rows {
		r := &f.rows[i]
		if r.SubjectID == subject && r.Type == t && r.Active {
			r.Active = false
			r.RemovedBy = &by
			r.RemovedAt = &at
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

func (f *fakePunishments) count(subject int64, t domain.PunishmentType, activeOnly bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.SubjectID == subject && r.Type == t && (r.Active || !activeOnly) {
			n++
		}
	}
	return n
}

func (f *fakePunishments) CountActive(_ context.Context, subject int64, t domain.PunishmentType) (int, error) {
	return f.count(subject, t, true), nil
}

func (f *fakePunishments) CountAll(_ context.Context, subject int64, t domain.PunishmentType) (int, error) {
	if f.countAllErr != nil {
		return 0, f.countAllErr
	}
	return f.count(subject, t, false), nil
}

func (f *fakePunishments) filter(keep func(domain.Punishment) bool) []domain.Punishment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Punishment
	for _, r := range f.rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].IssuedAt.After(out[j].IssuedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (f *fakePunishments) ListActive(_ context.Context, subject int64, t domain.PunishmentType) ([]domain.Punishment, error) {
	return f.filter(func(r domain.Punishment) bool {
		return r.SubjectID == subject && r.Active && (t == "" || r.Type == t)
	}), nil
}

func (f *fakePunishments) History(_ context.Context, subject int64, limit int) ([]domain.Punishment, error) {
	out := f.filter(func(r domain.Punishment) bool { return r.SubjectID == subject })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakePunishments) ListExpiredTimeouts(_ context.Context, now time.Time) ([]domain.Punishment, error) {
	return f.filter(func(r domain.Punishment) bool {
		return r.Active && r.Type == domain.Timeout && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
	}), nil
}

// ---- appeals ----

type fakeAppeals struct {
	mu   sync.Mutex
	rows []domain.Appeal
}

func (f *fakeAppeals) Insert(_ context.Context, a domain.Appeal) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SubjectID == a.SubjectID && r.PunishmentID == a.PunishmentID && r.Status == domain.AppealPending {
			return 0, domain.Conflict(domain.CodeDuplicatePendingAppeal, "duplicada")
		}
	}
	a.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, a)
	return a.ID, nil
}

func (f *fakeAppeals) Get(_ context.Context, id int64) (domain.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Appeal{}, domain.ErrRecordNotFound
}

func (f *fakeAppeals) HasPending(_ context.Context, subject, punishment int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.SubjectID == subject && r.PunishmentID == punishment && r.Status == domain.AppealPending {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppeals) Resolve(_ context.Context, id int64, st domain.AppealStatus, reviewer int64, text string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		r := &f.rows[i]
		if r.ID == id {
			if r.Status != domain.AppealPending {
				return false, nil
			}
			r.Status = st
			r.ReviewerID = &reviewer
			r.ReviewedAt = &at
			r.DecisionText = &text
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAppeals) ListPending(_ context.Context, limit int) ([]domain.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Appeal
	for _, r := range f.rows {
		if r.Status == domain.AppealPending && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeAppeals) ListBySubject(_ context.Context, subject int64, limit int) ([]domain.Appeal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Appeal
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].SubjectID == subject {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

// ---- loas ----

type fakeLoas struct {
	mu        sync.Mutex
	rows      []domain.Loa
	insertErr error
}

func (f *fakeLoas) Insert(_ context.Context, l domain.Loa) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	l.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, l)
	return l.ID, nil
}

func (f *fakeLoas) Get(_ context.Context, id int64) (domain.Loa, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Loa{}, domain.ErrRecordNotFound
}

func (f *fakeLoas) ListOpen(_ context.Context, subject int64) ([]domain.Loa, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loa
	for _, r := range f.rows {
		if r.SubjectID == subject && (r.Status == domain.LoaPending || r.Status == domain.LoaApproved) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLoas) Review(_ context.Context, id int64, st domain.LoaStatus, reviewer int64, reason *string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		r := &f.rows[i]
		if r.ID == id {
			if r.Status != domain.LoaPending {
				return false, nil
			}
			r.Status = st
			r.ReviewerID = &reviewer
			r.ReviewedAt = &at
			r.DecisionText = reason
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeLoas) ExpireApproved(_ context.Context, now time.Time) ([]domain.Loa, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loa
	for i := range f.rows {
		r := &f.rows[i]
		if r.Status == domain.LoaApproved && !r.EndDate.After(now) {
			r.Status = domain.LoaExpired
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeLoas) ListPending(_ context.Context, limit int) ([]domain.Loa, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loa
	for _, r := range f.rows {
		if r.Status == domain.LoaPending && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeLoas) ListBySubject(_ context.Context, subject int64, limit int) ([]domain.Loa, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loa
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].SubjectID == subject {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeLoas) OnLeave(_ context.Context, subjects []int64, day time.Time) (map[int64]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[int64]bool{}
	for _, s := range subjects {
		want[s] = true
	}
	out := map[int64]bool{}
	for _, r := range f.rows {
		if want[r.SubjectID] && r.Status == domain.LoaApproved && !day.Before(r.StartDate) && !day.After(r.EndDate) {
			out[r.SubjectID] = true
		}
	}
	return out, nil
}

// ---- activity ----

type fakeActivity struct {
	mu   sync.Mutex
	rows []domain.ActivityEntry
	err  error
}

func (f *fakeActivity) Append(_ context.Context, e domain.ActivityEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	e.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, e)
	return nil
}

func (f *fakeActivity) CountByAction(_ context.Context, staff int64, since time.Time) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]int{}
	for _, r := range f.rows {
		if r.StaffID == staff && !r.Timestamp.Before(since) {
			out[r.Action]++
		}
	}
	return out, nil
}

func (f *fakeActivity) Totals(_ context.Context, since time.Time) ([]domain.LeaderboardRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := map[int64]int{}
	for _, r := range f.rows {
		if !r.Timestamp.Before(since) {
			m[r.StaffID]++
		}
	}
	var out []domain.LeaderboardRow
	for id, n := range m {
		out = append(out, domain.LeaderboardRow{StaffID: id, Total: n})
	}
	return out, nil
}

func (f *fakeActivity) TotalsFor(ctx context.Context, ids []int64, since time.Time) (map[int64]int, error) {
	rows, _ := f.Totals(ctx, since)
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := map[int64]int{}
	for _, r := range rows {
		if want[r.StaffID] {
			out[r.StaffID] = r.Total
		}
	}
	return out, nil
}

func (f *fakeActivity) Since(_ context.Context, since time.Time, limit int) ([]domain.ActivityEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActivityEntry
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if !f.rows[i].Timestamp.Before(since) {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

func (f *fakeActivity) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, r := range f.rows {
		out = append(out, r.Action)
	}
	return out
}

// ---- tickets ----

// ticketTx deshace los cambios de fakeTickets si fn falla, como un rollback.
type ticketTx struct{ repo *fakeTickets }

func (x ticketTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	x.repo.mu.Lock()
	snap := append([]domain.Ticket(nil), x.repo.rows...)
	x.repo.mu.Unlock()
	if err := fn(ctx); err != nil {
		x.repo.mu.Lock()
		x.repo.rows = snap
		x.repo.mu.Unlock()
		return err
	}
	return nil
}

type fakeTickets struct {
	mu   sync.Mutex
	rows []domain.Ticket
}

func (f *fakeTickets) Create(_ context.Context, t domain.Ticket) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	max := 0
	for _, r := range f.rows {
		if r.GuildID == t.GuildID && r.Number > max {
			max = r.Number
		}
	}
	t.ID = int64(len(f.rows) + 1)
	t.Number = max + 1
	f.rows = append(f.rows, t)
	return t, nil
}

func (f *fakeTickets) Get(_ context.Context, id int64) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			return r, nil
		}
	}
	return domain.Ticket{}, domain.ErrRecordNotFound
}

func (f *fakeTickets) GetByChannel(_ context.Context, ch int64) (domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ChannelID != nil && *r.ChannelID == ch {
			return r, nil
		}
	}
	return domain.Ticket{}, domain.ErrRecordNotFound
}

func (f *fakeTickets) SetChannel(_ context.Context, id, ch int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].ChannelID = &ch
			return nil
		}
	}
	return domain.ErrRecordNotFound
}

func (f *fakeTickets) CountOpen(_ context.Context, guild, subject int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.rows {
		if r.GuildID == guild && r.SubjectID == subject && r.Status == domain.TicketOpen {
			n++
		}
	}
	return n, nil
}

func (f *fakeTickets) Close(_ context.Context, id, by int64, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rows {
		r := &f.rows[i]
		if r.ID == id && r.Status == domain.TicketOpen {
			r.Status = domain.TicketClosed
			r.ClosedBy = &by
			r.ClosedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTickets) Stats(_ context.Context, guild int64) (domain.TicketStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := domain.TicketStats{ByCategory: map[string]int{}}
	for _, r := range f.rows {
		if r.GuildID != guild {
			continue
		}
		st.Total++
		st.ByCategory[r.Category]++
		if r.Status == domain.TicketOpen {
			st.Open++
		}
	}
	return st, nil
}

// ---- notes / links ----

type fakeNotes struct {
	mu   sync.Mutex
	rows []domain.StaffNote
}

func (f *fakeNotes) Insert(_ context.Context, n domain.StaffNote) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n.ID = int64(len(f.rows) + 1)
	f.rows = append(f.rows, n)
	return n.ID, nil
}

func (f *fakeNotes) ListBySubject(_ context.Context, subject int64, limit int) ([]domain.StaffNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StaffNote
	for i := len(f.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if f.rows[i].SubjectID == subject {
			out = append(out, f.rows[i])
		}
	}
	return out, nil
}

type fakeLinks struct {
	mu   sync.Mutex
	rows map[int64]domain.AccountLink
}

func newFakeLinks() *fakeLinks { return &fakeLinks{rows: map[int64]domain.AccountLink{}} }

func (f *fakeLinks) Get(_ context.Context, subject int64) (domain.AccountLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.rows[subject]
	if !ok {
		return l, domain.ErrRecordNotFound
	}
	return l, nil
}

func (f *fakeLinks) Upsert(_ context.Context, l domain.AccountLink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[l.SubjectID] = l
	return nil
}

func (f *fakeLinks) Delete(_ context.Context, subject int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[subject]
	delete(f.rows, subject)
	return ok, nil
}

// ---- collaborators ----

type fakeEnforcer struct {
	mu                               sync.Mutex
	kicks, bans, unbans, timeouts    []int64
	kickErr, banErr, unbanErr, toErr error
}

func (f *fakeEnforcer) Kick(_ context.Context, subject int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.kickErr != nil {
		return f.kickErr
	}
	f.kicks = append(f.kicks, subject)
	return nil
}

func (f *fakeEnforcer) Ban(_ context.Context, subject int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.banErr != nil {
		return f.banErr
	}
	f.bans = append(f.bans, subject)
	return nil
}

func (f *fakeEnforcer) Unban(_ context.Context, subject int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unbanErr != nil {
		return f.unbanErr
	}
	f.unbans = append(f.unbans, subject)
	return nil
}

func (f *fakeEnforcer) Timeout(_ context.Context, subject int64, _ *time.Time, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.toErr != nil {
		return f.toErr
	}
	f.timeouts = append(f.timeouts, subject)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	dms   map[int64][]string
	staff map[string][]string
	err   error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{dms: map[int64][]string{}, staff: map[string][]string{}}
}

func (f *fakeNotifier) Notify(_ context.Context, subject int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dms[subject] = append(f.dms[subject], msg)
	return f.err
}

func (f *fakeNotifier) Staff(_ context.Context, ch, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staff[ch] = append(f.staff[ch], msg)
	return f.err
}

type fakeCooldown struct {
	mu   sync.Mutex
	next map[string]time.Time
	now  func() time.Time
}

func (f *fakeCooldown) Allow(_ context.Context, key string, win time.Duration) (bool, time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if until, ok := f.next[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}
	f.next[key] = now.Add(win)
	return true, 0, nil
}

func (f *fakeCooldown) Reset(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.next, key)
	return nil
}

type fakeLookup struct {
	users map[string]domain.AccountLink
}

func (f fakeLookup) UserByName(_ context.Context, name string) (domain.AccountLink, error) {
	u, ok := f.users[name]
	if !ok {
		return u, domain.NotFound("no existe el usuario %s", name)
	}
	return u, nil
}

// ---- env ----

type env struct {
	mu  sync.Mutex
	at  time.Time
	now func() time.Time

	punish   *fakePunishments
	appeals  *fakeAppeals
	loas     *fakeLoas
	act      *fakeActivity
	links    *fakeLinks
	enf      *fakeEnforcer
	notifier *fakeNotifier
	cd       *fakeCooldown

	ledger   *Ledger
	activity *ActivityService
	mod      *ModerationService
	appeal   *AppealService
	loa      *LoaService
}

var t0 = time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)

func newEnv(t *testing.T, th Thresholds) *env {
	t.Helper()
	e := &env{
		at:       t0,
		punish:   &fakePunishments{},
		appeals:  &fakeAppeals{},
		loas:     &fakeLoas{},
		act:      &fakeActivity{},
		links:    newFakeLinks(),
		enf:      &fakeEnforcer{},
		notifier: newFakeNotifier(),
	}
	e.now = func() time.Time {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.at
	}
	e.cd = &fakeCooldown{next: map[string]time.Time{}, now: e.now}
	locks := NewKeyLock()
	e.ledger = NewLedger(e.punish, e.now)
	e.activity = NewActivityService(e.act, e.loas, e.now)
	esc := NewEscalator(e.ledger, passTx{}, e.enf, e.activity, th, time.Second)
	e.mod = NewModerationService(ModerationDeps{
		Ledger: e.ledger, Escalator: esc, Activity: e.activity, Enforcer: e.enf,
		Notifier: e.notifier, Links: e.links, Tx: passTx{}, Locks: locks,
		EnforceTimeout: time.Second, NotifyTimeout: time.Second, Now: e.now,
	})
	e.appeal = NewAppealService(AppealDeps{
		Appeals: e.appeals, Ledger: e.ledger, Activity: e.activity, Enforcer: e.enf,
		Notifier: e.notifier, Tx: passTx{}, Locks: locks, Policy: AppealPolicy{MinChars: 20, MaxChars: 1000},
		EnforceTimeout: time.Second, NotifyTimeout: time.Second, Now: e.now,
	})
	e.loa = NewLoaService(LoaDeps{
		Loas: e.loas, Activity: e.activity, Notifier: e.notifier, Tx: passTx{}, Locks: locks,
		Policy: LoaPolicy{MaxDays: 60, RequestCooldown: 24 * time.Hour}, NotifyTimeout: time.Second, Now: e.now,
	})
	return e
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.at = e.at.Add(d)
}

func defaults() Thresholds { return Thresholds{VerbalWarns: 3, Warns: 3, Kicks: 2} }

func act(subject int64, reason string) Action {
	return Action{SubjectID: subject, IssuerID: 900, Reason: reason}
}

func date(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

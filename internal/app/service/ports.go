package service

import (
	"context"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// Lo implementa internal/infra/storage.TxManager
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Lo implementa internal/infra/storage.PunishmentRepo
type PunishmentRepo interface {
	Insert(ctx context.Context, p domain.NewPunishment, at time.Time) (int64, error)
	Get(ctx context.Context, id int64) (domain.Punishment, error)
	// Deactivate sólo toca filas activas; devuelve false si ya estaba inactiva.
	Deactivate(ctx context.Context, id, removedBy int64, at time.Time) (bool, error)
	// DeactivateActive desactiva todas las activas de ese tipo y devuelve sus ids.
	DeactivateActive(ctx context.Context, subjectID int64, t domain.PunishmentType, removedBy int64, at time.Time) ([]int64, error)
	CountActive(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error)
	CountAll(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error)
	// ListActive ordena por issued_at DESC; t vacío = todos los tipos.
	ListActive(ctx context.Context, subjectID int64, t domain.PunishmentType) ([]domain.Punishment, error)
	History(ctx context.Context, subjectID int64, limit int) ([]domain.Punishment, error)
	ListExpiredTimeouts(ctx context.Context, now time.Time) ([]domain.Punishment, error)
}

// Lo implementa internal/infra/storage.AppealRepo
type AppealRepo interface {
	Insert(ctx context.Context, a domain.Appeal) (int64, error)
	Get(ctx context.Context, id int64) (domain.Appeal, error)
	HasPending(ctx context.Context, subjectID, punishmentID int64) (bool, error)
	// Resolve sólo actualiza si sigue pending; false = ya resuelta.
	Resolve(ctx context.Context, id int64, status domain.AppealStatus, reviewerID int64, decision string, at time.Time) (bool, error)
	ListPending(ctx context.Context, limit int) ([]domain.Appeal, error)
	ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.Appeal, error)
}

// Lo implementa internal/infra/storage.LoaRepo
type LoaRepo interface {
	Insert(ctx context.Context, l domain.Loa) (int64, error)
	Get(ctx context.Context, id int64) (domain.Loa, error)
	// ListOpen devuelve las pending/approved del subject.
	ListOpen(ctx context.Context, subjectID int64) ([]domain.Loa, error)
	Review(ctx context.Context, id int64, status domain.LoaStatus, reviewerID int64, reason *string, at time.Time) (bool, error)
	// ExpireApproved pasa a expired todo approved con end_date <= now y devuelve lo que cambió.
	ExpireApproved(ctx context.Context, now time.Time) ([]domain.Loa, error)
	ListPending(ctx context.Context, limit int) ([]domain.Loa, error)
	ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.Loa, error)
	// OnLeave: subjects con approved que cubre day.
	OnLeave(ctx context.Context, subjectIDs []int64, day time.Time) (map[int64]bool, error)
}

// Lo implementa internal/infra/storage.ActivityRepo
type ActivityRepo interface {
	Append(ctx context.Context, e domain.ActivityEntry) error
	CountByAction(ctx context.Context, staffID int64, since time.Time) (map[string]int, error)
	Totals(ctx context.Context, since time.Time) ([]domain.LeaderboardRow, error)
	TotalsFor(ctx context.Context, staffIDs []int64, since time.Time) (map[int64]int, error)
	Since(ctx context.Context, since time.Time, limit int) ([]domain.ActivityEntry, error)
}

// Lo implementa internal/infra/storage.TicketRepo
type TicketRepo interface {
	// Create asigna ticket_number = max+1 dentro del guild de forma atómica.
	Create(ctx context.Context, t domain.Ticket) (domain.Ticket, error)
	Get(ctx context.Context, id int64) (domain.Ticket, error)
	GetByChannel(ctx context.Context, channelID int64) (domain.Ticket, error)
	SetChannel(ctx context.Context, id, channelID int64) error
	CountOpen(ctx context.Context, guildID, subjectID int64) (int, error)
	Close(ctx context.Context, id, closedBy int64, at time.Time) (bool, error)
	Stats(ctx context.Context, guildID int64) (domain.TicketStats, error)
}

// Lo implementa internal/infra/storage.NoteRepo
type NoteRepo interface {
	Insert(ctx context.Context, n domain.StaffNote) (int64, error)
	ListBySubject(ctx context.Context, subjectID int64, limit int) ([]domain.StaffNote, error)
}

// Lo implementa internal/infra/storage.LinkRepo
type LinkRepo interface {
	Get(ctx context.Context, subjectID int64) (domain.AccountLink, error)
	Upsert(ctx context.Context, l domain.AccountLink) error
	Delete(ctx context.Context, subjectID int64) (bool, error)
}

// Colaborador de enforcement (lo implementa internal/adapters/discord.Enforcer).
// Los errores deben ser *domain.Error de KindEnforcement.
type Enforcer interface {
	Kick(ctx context.Context, subjectID int64, reason string) error
	Ban(ctx context.Context, subjectID int64, reason string) error
	Unban(ctx context.Context, subjectID int64, reason string) error
	Timeout(ctx context.Context, subjectID int64, until *time.Time, reason string) error
}

// Notificaciones best-effort (DM al subject y canal de staff).
type Notifier interface {
	Notify(ctx context.Context, subjectID int64, message string) error
	Staff(ctx context.Context, channel, message string) error
}

// Lo implementa internal/adapters/roblox.Client
type IdentityLookup interface {
	UserByName(ctx context.Context, username string) (domain.AccountLink, error)
}

// Lo implementa internal/infra/cooldown.{Memory,Redis}
type Cooldown interface {
	// Allow devuelve false y lo que falta si la key sigue en ventana.
	Allow(ctx context.Context, key string, window time.Duration) (bool, time.Duration, error)
	// Reset libera la key; se usa cuando la escritura que consumió la ventana no llegó a commitear.
	Reset(ctx context.Context, key string) error
}

// Canales de staff lógicos para Notifier.Staff.
const (
	ChannelModLog = "modlog"
	ChannelAppeal = "appeals"
	ChannelLoa    = "loa"
)

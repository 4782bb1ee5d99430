// Package bootstrap arma repos y servicios a partir de la config. Lo comparten
// el bot y las lambdas para que todos apliquen las mismas reglas.
package bootstrap

import (
	"database/sql"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/adapters/roblox"
	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/config"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/storage"
)

// Platform son los colaboradores externos: en el bot, el adapter de Discord.
type Platform struct {
	Enforcer service.Enforcer
	Notifier service.Notifier
	Cooldown service.Cooldown
}

type App struct {
	Moderation *service.ModerationService
	Appeals    *service.AppealService
	Loa        *service.LoaService
	Activity   *service.ActivityService
	Tickets    *service.TicketService
	Notes      *service.NoteService
	Links      *service.LinkService
	Sweeper    *service.Sweeper
	Dedup      *storage.DedupRepo
}

func Build(db *sql.DB, cfg config.Config, p Platform) *App {
	now := time.Now
	tx := storage.NewTxManager(db)
	locks := service.NewKeyLock()

	punishRepo := storage.NewPunishmentRepo(db)
	loaRepo := storage.NewLoaRepo(db)
	linkRepo := storage.NewLinkRepo(db)
	dedup := storage.NewDedupRepo(db)

	ledger := service.NewLedger(punishRepo, now)
	activity := service.NewActivityService(storage.NewActivityRepo(db), loaRepo, now)
	esc := service.NewEscalator(ledger, tx, p.Enforcer, activity, service.Thresholds{
		VerbalWarns: cfg.Escalation.VerbalWarns,
		Warns:       cfg.Escalation.Warns,
		Kicks:       cfg.Escalation.Kicks,
	}, cfg.EnforcementTimeout)

	mod := service.NewModerationService(service.ModerationDeps{
		Ledger:         ledger,
		Escalator:      esc,
		Activity:       activity,
		Enforcer:       p.Enforcer,
		Notifier:       p.Notifier,
		Links:          linkRepo,
		Tx:             tx,
		Locks:          locks,
		EnforceTimeout: cfg.EnforcementTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
		Now:            now,
	})
	appeals := service.NewAppealService(service.AppealDeps{
		Appeals:        storage.NewAppealRepo(db),
		Ledger:         ledger,
		Activity:       activity,
		Enforcer:       p.Enforcer,
		Notifier:       p.Notifier,
		Tx:             tx,
		Locks:          locks,
		Policy:         service.AppealPolicy{MinChars: cfg.AppealMinChars, MaxChars: cfg.AppealMaxChars},
		EnforceTimeout: cfg.EnforcementTimeout,
		NotifyTimeout:  cfg.NotifyTimeout,
		Now:            now,
	})
	loa := service.NewLoaService(service.LoaDeps{
		Loas:          loaRepo,
		Activity:      activity,
		Cooldown:      p.Cooldown,
		Notifier:      p.Notifier,
		Tx:            tx,
		Locks:         locks,
		Policy:        service.LoaPolicy{MaxDays: cfg.LoaMaxDays, RequestCooldown: cfg.LoaRequestCooldown},
		NotifyTimeout: cfg.NotifyTimeout,
		Now:           now,
	})
	tickets := service.NewTicketService(storage.NewTicketRepo(db), activity, p.Cooldown, locks, tx,
		service.TicketPolicy{OpenLimit: cfg.TicketOpenLimit, Cooldown: cfg.TicketCooldown}, now)

	return &App{
		Moderation: mod,
		Appeals:    appeals,
		Loa:        loa,
		Activity:   activity,
		Tickets:    tickets,
		Notes:      service.NewNoteService(storage.NewNoteRepo(db), activity, now),
		Links:      service.NewLinkService(roblox.New(roblox.WithBaseURL(cfg.RobloxUsersURL)), linkRepo, now),
		Sweeper:    service.NewSweeper(loa, mod, dedup, now),
		Dedup:      dedup,
	}
}

package service

import (
	"context"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// Ledger es el único que cambia `active` en punishments.
// Todas las lecturas van al repo: no hay caché de estado.
type Ledger struct {
	repo PunishmentRepo
	now  func() time.Time
}

func NewLedger(repo PunishmentRepo, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{repo: repo, now: now}
}

// Add crea un registro activo. No deduplica: castigos repetidos son historia válida.
func (l *Ledger) Add(ctx context.Context, p domain.NewPunishment) (int64, error) {
	if !p.Type.Valid() {
		return 0, domain.Validation(domain.CodeInvalidArgument, "tipo de sanción inválido: %q", p.Type)
	}
	if p.Type != domain.Timeout {
		p.ExpiresAt = nil
	}
	id, err := l.repo.Insert(ctx, p, l.now().UTC())
	if err != nil {
		return 0, storageErr(err)
	}
	metrics.PunishmentsTotal.WithLabelValues(string(p.Type), metrics.Source(p.Auto)).Inc()
	return id, nil
}

// Remove desactiva un registro. Inactivo => AlreadyInactive, nunca reescribe removed_at/removed_by.
func (l *Ledger) Remove(ctx context.Context, id, removedBy int64) (domain.Punishment, error) {
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return domain.Punishment{}, notFoundOr(err, "no existe la sanción #%d", id)
	}
	if !p.Active {
		return p, domain.Conflict(domain.CodeAlreadyInactive, "la sanción #%d ya estaba inactiva", id)
	}
	at := l.now().UTC()
	ok, err := l.repo.Deactivate(ctx, id, removedBy, at)
	if err != nil {
		return p, storageErr(err)
	}
	if !ok {
		return p, domain.Conflict(domain.CodeAlreadyInactive, "la sanción #%d ya estaba inactiva", id)
	}
	p.Active = false
	p.RemovedBy = &removedBy
	p.RemovedAt = &at
	metrics.PunishmentsRemovedTotal.WithLabelValues(string(p.Type)).Inc()
	return p, nil
}

// DeactivateAll desactiva todas las activas de un tipo; devuelve los ids tocados.
func (l *Ledger) DeactivateAll(ctx context.Context, subjectID int64, t domain.PunishmentType, removedBy int64) ([]int64, error) {
	ids, err := l.repo.DeactivateActive(ctx, subjectID, t, removedBy, l.now().UTC())
	if err != nil {
		return nil, storageErr(err)
	}
	metrics.PunishmentsRemovedTotal.WithLabelValues(string(t)).Add(float64(len(ids)))
	return ids, nil
}

func (l *Ledger) CountActive(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error) {
	n, err := l.repo.CountActive(ctx, subjectID, t)
	return n, storageErr(err)
}

// CountAll cuenta también los inactivos (lifetime).
func (l *Ledger) CountAll(ctx context.Context, subjectID int64, t domain.PunishmentType) (int, error) {
	n, err := l.repo.CountAll(ctx, subjectID, t)
	return n, storageErr(err)
}

// ListActive ordena por issued_at desc. t vacío = todos.
func (l *Ledger) ListActive(ctx context.Context, subjectID int64, t domain.PunishmentType) ([]domain.Punishment, error) {
	ps, err := l.repo.ListActive(ctx, subjectID, t)
	return ps, storageErr(err)
}

func (l *Ledger) Get(ctx context.Context, id int64) (domain.Punishment, error) {
	p, err := l.repo.Get(ctx, id)
	if err != nil {
		return domain.Punishment{}, notFoundOr(err, "no existe la sanción #%d", id)
	}
	return p, nil
}

func (l *Ledger) History(ctx context.Context, subjectID int64, limit int) ([]domain.Punishment, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	ps, err := l.repo.History(ctx, subjectID, limit)
	return ps, storageErr(err)
}

// ExpiredTimeouts lista timeouts activos con expires_at <= now.
func (l *Ledger) ExpiredTimeouts(ctx context.Context) ([]domain.Punishment, error) {
	ps, err := l.repo.ListExpiredTimeouts(ctx, l.now().UTC())
	return ps, storageErr(err)
}

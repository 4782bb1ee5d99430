package service

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// Action tags del log de actividad.
const (
	ActVerbalWarn     = "verbal_warn"
	ActWarn           = "warn"
	ActKick           = "kick"
	ActBan            = "ban"
	ActTimeout        = "timeout"
	ActUnwarn         = "unwarn"
	ActUntimeout      = "untimeout"
	ActUnban          = "unban"
	ActRemove         = "remove_punishment"
	ActAutoWarn       = "auto_warn"
	ActAutoKick       = "auto_kick"
	ActAutoBan        = "auto_ban"
	ActEscalation     = "auto_escalation"
	ActTimeoutExpired = "timeout_expired"
	ActAppealCreate   = "appeal_create"
	ActAppealApprove  = "appeal_approve"
	ActAppealDeny     = "appeal_deny"
	ActLoaRequest     = "loa_request"
	ActLoaApprove     = "loa_approve"
	ActLoaDeny        = "loa_deny"
	ActLoaExpired     = "loa_expired"
	ActNote           = "staff_note"
	ActTicketOpen     = "ticket_open"
	ActTicketClose    = "ticket_close"
)

// ActivityService es el stream append-only de acciones de staff y sus reportes.
type ActivityService struct {
	repo ActivityRepo
	loas LoaRepo
	now  func() time.Time
}

func NewActivityService(repo ActivityRepo, loas LoaRepo, now func() time.Time) *ActivityService {
	if now == nil {
		now = time.Now
	}
	return &ActivityService{repo: repo, loas: loas, now: now}
}

// Log sólo falla por storage.
func (s *ActivityService) Log(ctx context.Context, staffID int64, action string, target *int64, details string) error {
	err := s.repo.Append(ctx, domain.ActivityEntry{
		StaffID:   staffID,
		Action:    action,
		TargetID:  target,
		Details:   details,
		Timestamp: s.now().UTC(),
	})
	return storageErr(err)
}

// Failed registra "<action>_failed" para auditoría. Los errores de validación no se registran
// y un fallo al escribir sólo se loguea.
func (s *ActivityService) Failed(ctx context.Context, staffID int64, action string, target *int64, cause error) {
	if cause == nil {
		return
	}
	if domain.KindOf(cause) == domain.KindValidation {
		return
	}
	if err := s.Log(context.WithoutCancel(ctx), staffID, action+"_failed", target, string(domain.CodeOf(cause))+": "+domain.UserMessage(cause)); err != nil {
		log.Error().Err(err).Str("action", action).Msg("activity: failed entry not stored")
	}
}

func (s *ActivityService) since(days int) time.Time {
	return s.now().UTC().Add(-time.Duration(days) * 24 * time.Hour)
}

// StatsFor: conteo por action en los últimos sinceDays (1..365).
func (s *ActivityService) StatsFor(ctx context.Context, staffID int64, sinceDays int) (map[string]int, error) {
	if sinceDays < 1 || sinceDays > 365 {
		return nil, domain.Validation(domain.CodeInvalidWindow, "los días deben estar entre 1 y 365")
	}
	m, err := s.repo.CountByAction(ctx, staffID, s.since(sinceDays))
	if err != nil {
		return nil, storageErr(err)
	}
	if m == nil {
		m = map[string]int{}
	}
	return m, nil
}

// Leaderboard ordena por total desc y, en empate, por staffID asc.
func (s *ActivityService) Leaderboard(ctx context.Context, sinceDays, limit int) ([]domain.LeaderboardRow, error) {
	if sinceDays < 1 || sinceDays > 365 {
		return nil, domain.Validation(domain.CodeInvalidWindow, "los días deben estar entre 1 y 365")
	}
	all, err := s.repo.Totals(ctx, s.since(sinceDays))
	if err != nil {
		return nil, storageErr(err)
	}
	rows := all[:0]
	for _, r := range all {
		if r.StaffID != domain.SystemActor {
			rows = append(rows, r)
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].StaffID < rows[j].StaffID
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Recent: feed de las últimas horas (1..168).
func (s *ActivityService) Recent(ctx context.Context, hours, limit int) ([]domain.ActivityEntry, error) {
	if hours < 1 || hours > 168 {
		return nil, domain.Validation(domain.CodeInvalidWindow, "las horas deben estar entre 1 y 168")
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	es, err := s.repo.Since(ctx, s.now().UTC().Add(-time.Duration(hours)*time.Hour), limit)
	return es, storageErr(err)
}

// Inactive devuelve el staff sin actividad en days (1..90), marcando quién tiene LOA aprobado hoy.
func (s *ActivityService) Inactive(ctx context.Context, staffIDs []int64, days int) ([]domain.InactiveStaff, error) {
	if days < 1 || days > 90 {
		return nil, domain.Validation(domain.CodeInvalidWindow, "los días deben estar entre 1 y 90")
	}
	if len(staffIDs) == 0 {
		return nil, nil
	}
	totals, err := s.repo.TotalsFor(ctx, staffIDs, s.since(days))
	if err != nil {
		return nil, storageErr(err)
	}
	var idle []int64
	seen := map[int64]bool{}
	for _, id := range staffIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if totals[id] == 0 {
			idle = append(idle, id)
		}
	}
	if len(idle) == 0 {
		return nil, nil
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i] < idle[j] })

	onLeave := map[int64]bool{}
	if s.loas != nil {
		onLeave, err = s.loas.OnLeave(ctx, idle, domain.Date(s.now()))
		if err != nil {
			return nil, storageErr(err)
		}
	}
	out := make([]domain.InactiveStaff, 0, len(idle))
	for _, id := range idle {
		out = append(out, domain.InactiveStaff{StaffID: id, OnLoa: onLeave[id]})
	}
	return out, nil
}

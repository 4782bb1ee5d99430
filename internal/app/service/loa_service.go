package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

type LoaPolicy struct {
	MaxDays         int
	RequestCooldown time.Duration
}

type LoaService struct {
	loas     LoaRepo
	activity *ActivityService
	cooldown Cooldown
	tx       TxRunner
	locks    *KeyLock
	courier  courier
	policy   LoaPolicy
	now      func() time.Time
}

type LoaDeps struct {
	Loas          LoaRepo
	Activity      *ActivityService
	Cooldown      Cooldown
	Notifier      Notifier
	Tx            TxRunner
	Locks         *KeyLock
	Policy        LoaPolicy
	NotifyTimeout time.Duration
	Now           func() time.Time
}

func NewLoaService(d LoaDeps) *LoaService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = NewKeyLock()
	}
	return &LoaService{
		loas:     d.Loas,
		activity: d.Activity,
		cooldown: d.Cooldown,
		tx:       d.Tx,
		locks:    d.Locks,
		courier:  courier{n: d.Notifier, timeout: d.NotifyTimeout},
		policy:   d.Policy,
		now:      d.Now,
	}
}

func loaKey(id int64) string { return fmt.Sprintf("loa:%d", id) }

// Request valida fechas, duración y solapamiento con pending/approved del mismo subject.
func (s *LoaService) Request(ctx context.Context, subjectID int64, start, end time.Time, reason string) (domain.Loa, error) {
	start, end = domain.Date(start), domain.Date(end)
	reason = strings.TrimSpace(reason)
	if !start.Before(end) {
		return domain.Loa{}, domain.Validation(domain.CodeInvalidDateRange, "la fecha de fin debe ser posterior a la de inicio")
	}
	if start.Before(domain.Date(s.now())) {
		return domain.Loa{}, domain.Validation(domain.CodeStartInPast, "la fecha de inicio no puede estar en el pasado")
	}
	req := domain.Loa{SubjectID: subjectID, StartDate: start, EndDate: end, Reason: reason, Status: domain.LoaPending}
	if req.Days() > s.policy.MaxDays {
		return domain.Loa{}, domain.Validation(domain.CodeDurationExceeded, "un LOA no puede superar %d días", s.policy.MaxDays)
	}
	if reason == "" {
		return domain.Loa{}, domain.Validation(domain.CodeInvalidArgument, "el motivo es obligatorio")
	}

	var out outbox
	unlock := s.locks.Lock(loaKey(subjectID))
	l, err := s.requestLocked(ctx, req, &out)
	unlock()
	if err != nil {
		s.activity.Failed(ctx, subjectID, ActLoaRequest, &subjectID, err)
		return l, err
	}
	s.courier.send(ctx, &out)
	return l, nil
}

func (s *LoaService) requestLocked(ctx context.Context, req domain.Loa, out *outbox) (domain.Loa, error) {
	open, err := s.loas.ListOpen(ctx, req.SubjectID)
	if err != nil {
		return domain.Loa{}, storageErr(err)
	}
	for _, o := range open {
		if o.Overlaps(req.StartDate, req.EndDate) {
			return domain.Loa{}, domain.Validation(domain.CodeOverlappingInterval,
				"se solapa con el LOA #%d (%s a %s)", o.ID, o.StartDate.Format(time.DateOnly), o.EndDate.Format(time.DateOnly))
		}
	}
	cdKey := "loa:" + fmt.Sprint(req.SubjectID)
	if s.cooldown != nil {
		ok, wait, err := s.cooldown.Allow(ctx, cdKey, s.policy.RequestCooldown)
		if err != nil {
			return domain.Loa{}, storageErr(err)
		}
		if !ok {
			return domain.Loa{}, domain.Validation(domain.CodeOnCooldown, "ya pediste un LOA hace poco, intenta de nuevo en %s", wait.Round(time.Minute))
		}
	}

	req.CreatedAt = s.now().UTC()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.loas.Insert(ctx, req)
		if err != nil {
			return storageErr(err)
		}
		req.ID = id
		return s.activity.Log(ctx, req.SubjectID, ActLoaRequest, nil, fmt.Sprintf("LOA #%d: %d días", id, req.Days()))
	})
	if err != nil {
		// sin fila guardada la ventana no cuenta
		if s.cooldown != nil {
			if rerr := s.cooldown.Reset(ctx, cdKey); rerr != nil {
				log.Warn().Err(rerr).Str("key", cdKey).Msg("cooldown reset failed")
			}
		}
		return domain.Loa{}, err
	}
	metrics.LoaTotal.WithLabelValues("request").Inc()
	out.staff(ChannelLoa, fmt.Sprintf("📝 Nuevo LOA **#%d** de <@%d>: %s → %s (%d días)\nMotivo: %s",
		req.ID, req.SubjectID, req.StartDate.Format(time.DateOnly), req.EndDate.Format(time.DateOnly), req.Days(), req.Reason))
	return req, nil
}

// Review aprueba o rechaza un LOA pendiente. Rechazar exige motivo.
func (s *LoaService) Review(ctx context.Context, id int64, d domain.Decision, reviewerID int64, reason string) (domain.Loa, error) {
	if !d.Valid() {
		return domain.Loa{}, domain.Validation(domain.CodeInvalidArgument, "decisión inválida")
	}
	reason = strings.TrimSpace(reason)
	if d == domain.Deny && reason == "" {
		return domain.Loa{}, domain.Validation(domain.CodeDenyReasonRequired, "para rechazar un LOA hay que indicar el motivo")
	}
	action, status := ActLoaApprove, domain.LoaApproved
	if d == domain.Deny {
		action, status = ActLoaDeny, domain.LoaDenied
	}

	l, err := s.loas.Get(ctx, id)
	if err != nil {
		err = notFoundOr(err, "no existe el LOA #%d", id)
		s.activity.Failed(ctx, reviewerID, action, nil, err)
		return domain.Loa{}, err
	}
	if l.Status != domain.LoaPending {
		err := domain.Conflict(domain.CodeAlreadyReviewed, "el LOA #%d ya fue %s", id, l.Status)
		s.activity.Failed(ctx, reviewerID, action, &l.SubjectID, err)
		return l, err
	}

	at := s.now().UTC()
	var note *string
	if reason != "" {
		note = &reason
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.loas.Review(ctx, id, status, reviewerID, note, at)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			return domain.Conflict(domain.CodeAlreadyReviewed, "el LOA #%d ya fue revisado", id)
		}
		return s.activity.Log(ctx, reviewerID, action, &l.SubjectID, fmt.Sprintf("LOA #%d", id))
	})
	if err != nil {
		s.activity.Failed(ctx, reviewerID, action, &l.SubjectID, err)
		return l, err
	}
	l.Status = status
	l.ReviewerID = &reviewerID
	l.ReviewedAt = &at
	l.DecisionText = note
	metrics.LoaTotal.WithLabelValues(string(status)).Inc()

	var out outbox
	if status == domain.LoaApproved {
		out.dm(l.SubjectID, fmt.Sprintf("✅ Tu LOA **#%d** (%s → %s) fue aprobado.", id, l.StartDate.Format(time.DateOnly), l.EndDate.Format(time.DateOnly)))
	} else {
		out.dm(l.SubjectID, fmt.Sprintf("❌ Tu LOA **#%d** fue rechazado.\nMotivo: %s", id, reason))
	}
	out.staff(ChannelLoa, fmt.Sprintf("LOA **#%d** de <@%d>: **%s** por <@%d>", id, l.SubjectID, status, reviewerID))
	s.courier.send(ctx, &out)
	return l, nil
}

// SweepExpired pasa a expired todo approved con end_date <= now. Idempotente:
// un segundo llamado con el mismo now no devuelve nada.
func (s *LoaService) SweepExpired(ctx context.Context, now time.Time) ([]int64, error) {
	expired, err := s.loas.ExpireApproved(ctx, now.UTC())
	if err != nil {
		return nil, storageErr(err)
	}
	ids := make([]int64, 0, len(expired))
	var out outbox
	for _, l := range expired {
		ids = append(ids, l.ID)
		if err := s.activity.Log(ctx, domain.SystemActor, ActLoaExpired, &l.SubjectID, fmt.Sprintf("LOA #%d", l.ID)); err != nil {
			log.Error().Err(err).Int64("loa", l.ID).Msg("loa sweep: activity not stored")
		}
		out.dm(l.SubjectID, fmt.Sprintf("👋 Tu LOA **#%d** terminó. ¡Bienvenido de vuelta!", l.ID))
		out.staff(ChannelLoa, fmt.Sprintf("⏰ LOA **#%d** de <@%d> expiró.", l.ID, l.SubjectID))
	}
	if len(ids) > 0 {
		metrics.SweepTransitionsTotal.WithLabelValues("loa").Add(float64(len(ids)))
		log.Info().Int("count", len(ids)).Msg("loa sweep: expired")
	}
	s.courier.send(ctx, &out)
	return ids, nil
}

func (s *LoaService) ListPending(ctx context.Context, limit int) ([]domain.Loa, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	ls, err := s.loas.ListPending(ctx, limit)
	return ls, storageErr(err)
}

func (s *LoaService) ListForSubject(ctx context.Context, subjectID int64, limit int) ([]domain.Loa, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	ls, err := s.loas.ListBySubject(ctx, subjectID, limit)
	return ls, storageErr(err)
}

// OnLeave indica si el subject tiene un LOA aprobado que cubre day.
func (s *LoaService) OnLeave(ctx context.Context, subjectID int64, day time.Time) (bool, error) {
	m, err := s.loas.OnLeave(ctx, []int64{subjectID}, domain.Date(day))
	if err != nil {
		return false, storageErr(err)
	}
	return m[subjectID], nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// MaxTimeout es el límite de la plataforma para un timeout.
const MaxTimeout = 28 * 24 * time.Hour

const maxReasonLen = 512

// Action son los argumentos comunes de un comando de moderación.
type Action struct {
	SubjectID int64
	IssuerID  int64
	Reason    string
}

// ActionResult: Warning != nil => el registro quedó creado pero la acción en la plataforma falló.
type ActionResult struct {
	Punishment  domain.Punishment
	Escalation  EscalationReport
	Warning     error
	ActiveCount int
}

type ModerationService struct {
	ledger   *Ledger
	esc      *Escalator
	activity *ActivityService
	enforcer Enforcer
	links    LinkRepo
	tx       TxRunner
	locks    *KeyLock
	courier  courier
	timeout  time.Duration
	now      func() time.Time
}

type ModerationDeps struct {
	Ledger         *Ledger
	Escalator      *Escalator
	Activity       *ActivityService
	Enforcer       Enforcer
	Notifier       Notifier
	Links          LinkRepo
	Tx             TxRunner
	Locks          *KeyLock
	EnforceTimeout time.Duration
	NotifyTimeout  time.Duration
	Now            func() time.Time
}

func NewModerationService(d ModerationDeps) *ModerationService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = NewKeyLock()
	}
	return &ModerationService{
		ledger:   d.Ledger,
		esc:      d.Escalator,
		activity: d.Activity,
		enforcer: d.Enforcer,
		links:    d.Links,
		tx:       d.Tx,
		locks:    d.Locks,
		courier:  courier{n: d.Notifier, timeout: d.NotifyTimeout},
		timeout:  d.EnforceTimeout,
		now:      d.Now,
	}
}

func subjectKey(id int64) string { return fmt.Sprintf("subject:%d", id) }

func (s *ModerationService) VerbalWarn(ctx context.Context, a Action) (ActionResult, error) {
	return s.issue(ctx, a, domain.VerbalWarn, nil, nil)
}

func (s *ModerationService) Warn(ctx context.Context, a Action) (ActionResult, error) {
	return s.issue(ctx, a, domain.Warn, nil, nil)
}

func (s *ModerationService) Kick(ctx context.Context, a Action) (ActionResult, error) {
	return s.issue(ctx, a, domain.Kick, nil, func(ctx context.Context) error {
		return s.enforcer.Kick(ctx, a.SubjectID, a.Reason)
	})
}

func (s *ModerationService) Ban(ctx context.Context, a Action) (ActionResult, error) {
	return s.issue(ctx, a, domain.Ban, nil, func(ctx context.Context) error {
		return s.enforcer.Ban(ctx, a.SubjectID, a.Reason)
	})
}

func (s *ModerationService) Timeout(ctx context.Context, a Action, d time.Duration) (ActionResult, error) {
	if d <= 0 {
		return ActionResult{}, domain.Validation(domain.CodeInvalidArgument, "la duración debe ser positiva")
	}
	if d > MaxTimeout {
		return ActionResult{}, domain.Validation(domain.CodeDurationExceeded, "el timeout máximo es de 28 días")
	}
	until := s.now().UTC().Add(d)
	return s.issue(ctx, a, domain.Timeout, &until, func(ctx context.Context) error {
		return s.enforcer.Timeout(ctx, a.SubjectID, &until, a.Reason)
	})
}

func validReason(r string) (string, error) {
	r = strings.TrimSpace(r)
	if r == "" {
		return "", domain.Validation(domain.CodeInvalidArgument, "el motivo es obligatorio")
	}
	if len([]rune(r)) > maxReasonLen {
		return "", domain.Validation(domain.CodeTextTooLong, "el motivo no puede superar %d caracteres", maxReasonLen)
	}
	return r, nil
}

// issue: registro + enforcement + escalado bajo el lock del subject.
// Las notificaciones se mandan después de soltar el lock, salvo el DM previo a kick/ban.
func (s *ModerationService) issue(ctx context.Context, a Action, t domain.PunishmentType, expires *time.Time, do func(context.Context) error) (ActionResult, error) {
	reason, err := validReason(a.Reason)
	if err != nil {
		return ActionResult{}, err
	}
	a.Reason = reason
	name := s.displayName(ctx, a.SubjectID)

	var out outbox
	unlock := s.locks.Lock(subjectKey(a.SubjectID))
	res, err := s.issueLocked(ctx, a, t, expires, name, do, &out)
	unlock()

	s.courier.send(ctx, &out)
	if err != nil {
		s.activity.Failed(ctx, a.IssuerID, string(t), &a.SubjectID, err)
	}
	return res, err
}

func (s *ModerationService) issueLocked(ctx context.Context, a Action, t domain.PunishmentType, expires *time.Time, name *string, do func(context.Context) error, out *outbox) (ActionResult, error) {
	var res ActionResult
	var id int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.ledger.Add(ctx, domain.NewPunishment{
			SubjectID: a.SubjectID, SubjectName: name, Type: t,
			Reason: a.Reason, IssuerID: a.IssuerID, ExpiresAt: expires,
		})
		if err != nil {
			return err
		}
		return s.activity.Log(ctx, a.IssuerID, string(t), &a.SubjectID, a.Reason)
	})
	if err != nil {
		return res, err
	}
	// a partir de acá el castigo base ya está commiteado: nada de lo que sigue lo convierte en error
	if res.Punishment, err = s.ledger.Get(ctx, id); err != nil {
		log.Warn().Err(err).Int64("punishment", id).Msg("reload after issue failed")
		res.Punishment = domain.Punishment{
			ID: id, SubjectID: a.SubjectID, SubjectName: name, Type: t, Reason: a.Reason,
			IssuerID: a.IssuerID, IssuedAt: s.now().UTC(), Active: true, ExpiresAt: expires,
		}
	}
	log.Info().Int64("subject", a.SubjectID).Int64("issuer", a.IssuerID).Int64("punishment", id).Str("type", string(t)).Msg("punishment issued")

	dm := fmt.Sprintf("Recibiste un **%s** en el servidor.\nMotivo: %s", t.Label(), a.Reason)
	if expires != nil {
		dm += fmt.Sprintf("\nTermina: <t:%d:R>", expires.Unix())
	}
	if do != nil {
		if t == domain.Kick || t == domain.Ban {
			// después del kick/ban ya no hay DM posible
			pre := outbox{}
			pre.dm(a.SubjectID, dm)
			s.courier.send(ctx, &pre)
		} else {
			out.dm(a.SubjectID, dm)
		}
		if err := enforce(ctx, s.timeout, do); err != nil {
			res.Warning = err
			metrics.EnforcementFailuresTotal.WithLabelValues(string(t), string(domain.CodeOf(err))).Inc()
			log.Warn().Err(err).Int64("subject", a.SubjectID).Int64("punishment", id).Str("code", string(domain.CodeOf(err))).Msg("enforcement failed, record kept")
			s.activity.Failed(ctx, a.IssuerID, string(t), &a.SubjectID, err)
		}
	} else {
		out.dm(a.SubjectID, dm)
	}
	out.staff(ChannelModLog, fmt.Sprintf("**%s** a <@%d> por <@%d> (#%d)\nMotivo: %s", strings.ToUpper(t.Label()), a.SubjectID, a.IssuerID, id, a.Reason))

	res.Escalation, err = s.esc.Evaluate(ctx, Trigger{SubjectID: a.SubjectID, SubjectName: name, IssuerID: a.IssuerID, Type: t})
	for _, st := range res.Escalation.Steps {
		if st.PunishmentID == 0 {
			out.staff(ChannelModLog, fmt.Sprintf("⚠️ Auto-escalado a **%s** para <@%d> no se pudo aplicar: %s", st.Tier.Label(), a.SubjectID, domain.UserMessage(st.Err)))
			continue
		}
		out.staff(ChannelModLog, fmt.Sprintf("🔄 Auto-escalado: <@%d> recibió **%s** (#%d)", a.SubjectID, st.Tier.Label(), st.PunishmentID))
		if st.Tier == domain.Warn {
			out.dm(a.SubjectID, fmt.Sprintf("Acumulaste advertencias verbales y recibiste un **warn** automático (#%d).", st.PunishmentID))
		}
	}
	if err != nil {
		res.Escalation.Err = err
		log.Error().Err(err).Int64("subject", a.SubjectID).Int64("punishment", id).Msg("escalation aborted, punishment kept")
		s.activity.Failed(ctx, a.IssuerID, ActEscalation, &a.SubjectID, err)
		out.staff(ChannelModLog, fmt.Sprintf("⚠️ El auto-escalado de <@%d> quedó incompleto: %s", a.SubjectID, domain.UserMessage(err)))
	}
	if n, err := s.ledger.CountActive(ctx, a.SubjectID, t); err != nil {
		log.Warn().Err(err).Int64("subject", a.SubjectID).Msg("active count failed")
	} else {
		res.ActiveCount = n
	}
	return res, nil
}

// Unwarn quita el castigo activo más reciente del tipo indicado.
func (s *ModerationService) Unwarn(ctx context.Context, subjectID int64, t domain.PunishmentType, by int64) (ActionResult, error) {
	if t != domain.VerbalWarn && t != domain.Warn {
		return ActionResult{}, domain.Validation(domain.CodeInvalidArgument, "sólo se pueden quitar verbal warns o warns")
	}
	var res ActionResult
	var out outbox
	unlock := s.locks.Lock(subjectKey(subjectID))
	err := func() error {
		active, err := s.ledger.ListActive(ctx, subjectID, t)
		if err != nil {
			return err
		}
		if len(active) == 0 {
			return domain.NotFound("<@%d> no tiene %ss activos", subjectID, t.Label())
		}
		err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
			p, err := s.ledger.Remove(ctx, active[0].ID, by)
			if err != nil {
				return err
			}
			res.Punishment = p
			return s.activity.Log(ctx, by, ActUnwarn, &subjectID, fmt.Sprintf("%s #%d", t, p.ID))
		})
		if err != nil {
			return err
		}
		res.ActiveCount, err = s.ledger.CountActive(ctx, subjectID, t)
		return err
	}()
	unlock()
	if err != nil {
		s.activity.Failed(ctx, by, ActUnwarn, &subjectID, err)
		return res, err
	}
	out.staff(ChannelModLog, fmt.Sprintf("✅ <@%d> quitó un %s a <@%d> (quedan %d)", by, t.Label(), subjectID, res.ActiveCount))
	s.courier.send(ctx, &out)
	return res, nil
}

// Untimeout desactiva todos los timeouts activos y lo levanta en la plataforma.
func (s *ModerationService) Untimeout(ctx context.Context, subjectID, by int64) (ActionResult, error) {
	return s.lift(ctx, subjectID, by, domain.Timeout, ActUntimeout, "", func(ctx context.Context) error {
		return s.enforcer.Timeout(ctx, subjectID, nil, "untimeout")
	})
}

// Unban desactiva los bans activos y llama al unban de la plataforma.
func (s *ModerationService) Unban(ctx context.Context, subjectID, by int64, reason string) (ActionResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "sin motivo"
	}
	return s.lift(ctx, subjectID, by, domain.Ban, ActUnban, reason, func(ctx context.Context) error {
		return s.enforcer.Unban(ctx, subjectID, reason)
	})
}

func (s *ModerationService) lift(ctx context.Context, subjectID, by int64, t domain.PunishmentType, action, reason string, do func(context.Context) error) (ActionResult, error) {
	var res ActionResult
	var out outbox
	unlock := s.locks.Lock(subjectKey(subjectID))
	err := func() error {
		var ids []int64
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			if ids, err = s.ledger.DeactivateAll(ctx, subjectID, t, by); err != nil {
				return err
			}
			return s.activity.Log(ctx, by, action, &subjectID, strings.TrimSpace(fmt.Sprintf("%d registros %s", len(ids), reason)))
		})
		if err != nil {
			return err
		}
		if err := enforce(ctx, s.timeout, do); err != nil {
			res.Warning = err
			metrics.EnforcementFailuresTotal.WithLabelValues(action, string(domain.CodeOf(err))).Inc()
			s.activity.Failed(ctx, by, action, &subjectID, err)
		}
		return nil
	}()
	unlock()
	if err != nil {
		s.activity.Failed(ctx, by, action, &subjectID, err)
		return res, err
	}
	out.staff(ChannelModLog, fmt.Sprintf("✅ %s de <@%d> por <@%d>", action, subjectID, by))
	s.courier.send(ctx, &out)
	return res, nil
}

// RemovePunishment desactiva un registro puntual. Si era ban o timeout también lo levanta (best-effort).
func (s *ModerationService) RemovePunishment(ctx context.Context, id, by int64) (ActionResult, error) {
	p, err := s.ledger.Get(ctx, id)
	if err != nil {
		s.activity.Failed(ctx, by, ActRemove, nil, err)
		return ActionResult{}, err
	}
	var res ActionResult
	unlock := s.locks.Lock(subjectKey(p.SubjectID))
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if res.Punishment, err = s.ledger.Remove(ctx, id, by); err != nil {
			return err
		}
		return s.activity.Log(ctx, by, ActRemove, &p.SubjectID, fmt.Sprintf("%s #%d", p.Type, id))
	})
	if err == nil {
		var do func(context.Context) error
		switch p.Type {
		case domain.Ban:
			do = func(ctx context.Context) error { return s.enforcer.Unban(ctx, p.SubjectID, "sanción retirada") }
		case domain.Timeout:
			do = func(ctx context.Context) error { return s.enforcer.Timeout(ctx, p.SubjectID, nil, "sanción retirada") }
		}
		if do != nil {
			if werr := enforce(ctx, s.timeout, do); werr != nil && !errors.Is(werr, domain.ErrSubjectNotPresent) {
				res.Warning = werr
				s.activity.Failed(ctx, by, ActRemove, &p.SubjectID, werr)
			}
		}
	}
	unlock()
	if err != nil {
		s.activity.Failed(ctx, by, ActRemove, &p.SubjectID, err)
		return res, err
	}
	return res, nil
}

func (s *ModerationService) History(ctx context.Context, subjectID int64, limit int) ([]domain.Punishment, error) {
	return s.ledger.History(ctx, subjectID, limit)
}

func (s *ModerationService) Active(ctx context.Context, subjectID int64) ([]domain.Punishment, error) {
	return s.ledger.ListActive(ctx, subjectID, "")
}

// ExpireTimeouts desactiva los timeouts vencidos como SystemActor. Devuelve cuántos cambió.
func (s *ModerationService) ExpireTimeouts(ctx context.Context) (int, error) {
	expired, err := s.ledger.ExpiredTimeouts(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range expired {
		unlock := s.locks.Lock(subjectKey(p.SubjectID))
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := s.ledger.Remove(ctx, p.ID, domain.SystemActor); err != nil {
				return err
			}
			return s.activity.Log(ctx, domain.SystemActor, ActTimeoutExpired, &p.SubjectID, fmt.Sprintf("timeout #%d", p.ID))
		})
		unlock()
		switch {
		case err == nil:
			n++
		case errors.Is(err, domain.ErrAlreadyInactive):
			// otro proceso se adelantó
		default:
			return n, err
		}
	}
	if n > 0 {
		metrics.SweepTransitionsTotal.WithLabelValues("timeouts").Add(float64(n))
	}
	return n, nil
}

// displayName busca el link para adjuntar el nombre externo. Best-effort.
func (s *ModerationService) displayName(ctx context.Context, subjectID int64) *string {
	if s.links == nil {
		return nil
	}
	l, err := s.links.Get(ctx, subjectID)
	if err != nil {
		if !errors.Is(err, domain.ErrRecordNotFound) {
			log.Debug().Err(err).Int64("subject", subjectID).Msg("display name lookup failed")
		}
		return nil
	}
	if l.DisplayName != "" {
		return ptr(l.DisplayName)
	}
	if l.ExternalName != "" {
		return ptr(l.ExternalName)
	}
	return nil
}

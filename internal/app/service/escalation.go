package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/metrics"
)

// Thresholds: VerbalWarns y Warns cuentan activos, Kicks cuenta lifetime.
type Thresholds struct {
	VerbalWarns int
	Warns       int
	Kicks       int
}

// Trigger es el castigo que disparó la evaluación.
type Trigger struct {
	SubjectID   int64
	SubjectName *string
	IssuerID    int64
	Type        domain.PunishmentType
}

// EscalationStep describe un tier que alcanzó su umbral.
// PunishmentID == 0 si el enforcement falló (Err != nil).
type EscalationStep struct {
	Tier         domain.PunishmentType
	PunishmentID int64
	Deactivated  []int64
	Err          error
}

type EscalationReport struct {
	Steps []EscalationStep
	// Err: el pipeline se cortó por storage después de registrar el castigo base.
	Err error
}

// Created devuelve los tiers que efectivamente crearon registro, en orden.
func (r EscalationReport) Created() []domain.PunishmentType {
	var out []domain.PunishmentType
	for _, s := range r.Steps {
		if s.PunishmentID != 0 {
			out = append(out, s.Tier)
		}
	}
	return out
}

// Failures son los errores de enforcement (resultado parcial, no fatal).
func (r EscalationReport) Failures() []error {
	var out []error
	for _, s := range r.Steps {
		if s.Err != nil {
			out = append(out, s.Err)
		}
	}
	return out
}

// Escalator aplica el pipeline fijo verbal_warn -> warn -> kick -> ban.
// Cada paso corre como mucho una vez por trigger. El caller debe tener el lock del subject.
type Escalator struct {
	ledger   *Ledger
	tx       TxRunner
	enforcer Enforcer
	activity *ActivityService
	th       Thresholds
	timeout  time.Duration
}

func NewEscalator(ledger *Ledger, tx TxRunner, enforcer Enforcer, activity *ActivityService, th Thresholds, enforceTimeout time.Duration) *Escalator {
	return &Escalator{ledger: ledger, tx: tx, enforcer: enforcer, activity: activity, th: th, timeout: enforceTimeout}
}

// firstStep: el pipeline arranca en el tier del castigo que lo disparó.
// Ban y Timeout no escalan.
func firstStep(t domain.PunishmentType) int {
	switch t {
	case domain.VerbalWarn:
		return 1
	case domain.Warn:
		return 2
	case domain.Kick:
		return 3
	}
	return 0
}

// Evaluate corre los pasos que correspondan. Un error devuelto es siempre de storage;
// los fallos de enforcement quedan en el reporte.
func (e *Escalator) Evaluate(ctx context.Context, tr Trigger) (EscalationReport, error) {
	var rep EscalationReport
	start := firstStep(tr.Type)
	if start == 0 {
		return rep, nil
	}
	lg := log.With().Int64("subject", tr.SubjectID).Int64("issuer", tr.IssuerID).Logger()

	// 1) N verbal warns activos => warn sintético + limpiar verbal warns
	if start <= 1 {
		var step *EscalationStep
		err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
			n, err := e.ledger.CountActive(ctx, tr.SubjectID, domain.VerbalWarn)
			if err != nil || n < e.th.VerbalWarns {
				return err
			}
			reason := fmt.Sprintf("auto-escalation: %d verbal warnings", e.th.VerbalWarns)
			id, err := e.ledger.Add(ctx, domain.NewPunishment{
				SubjectID: tr.SubjectID, SubjectName: tr.SubjectName,
				Type: domain.Warn, Reason: reason, IssuerID: tr.IssuerID, Auto: true,
			})
			if err != nil {
				return err
			}
			ids, err := e.ledger.DeactivateAll(ctx, tr.SubjectID, domain.VerbalWarn, tr.IssuerID)
			if err != nil {
				return err
			}
			if err := e.activity.Log(ctx, tr.IssuerID, ActAutoWarn, &tr.SubjectID,
				fmt.Sprintf("warn #%d, %d verbal warns retirados", id, len(ids))); err != nil {
				return err
			}
			step = &EscalationStep{Tier: domain.Warn, PunishmentID: id, Deactivated: ids}
			return nil
		})
		if err != nil {
			return rep, err
		}
		if step != nil {
			rep.Steps = append(rep.Steps, *step)
			metrics.EscalationsTotal.WithLabelValues(string(domain.Warn), "created").Inc()
			lg.Info().Int("step", 1).Int64("punishment", step.PunishmentID).Msg("escalation: warn")
		}
	}

	// 2) N warns activos => kick
	if start <= 2 {
		n, err := e.ledger.CountActive(ctx, tr.SubjectID, domain.Warn)
		if err != nil {
			return rep, err
		}
		if n >= e.th.Warns {
			reason := fmt.Sprintf("auto-escalation: %d warnings", e.th.Warns)
			step, err := e.enforced(ctx, tr, domain.Kick, ActAutoKick, reason, func(ctx context.Context) error {
				return e.enforcer.Kick(ctx, tr.SubjectID, reason)
			})
			if err != nil {
				return rep, err
			}
			rep.Steps = append(rep.Steps, step)
		}
	}

	// 3) N kicks lifetime => ban (salvo que ya tenga un ban activo)
	n, err := e.ledger.CountAll(ctx, tr.SubjectID, domain.Kick)
	if err != nil {
		return rep, err
	}
	if n < e.th.Kicks {
		return rep, nil
	}
	bans, err := e.ledger.CountActive(ctx, tr.SubjectID, domain.Ban)
	if err != nil {
		return rep, err
	}
	if bans > 0 {
		lg.Debug().Int("step", 3).Msg("escalation: already banned")
		return rep, nil
	}
	reason := fmt.Sprintf("auto-escalation: %d kicks", e.th.Kicks)
	step, err := e.enforced(ctx, tr, domain.Ban, ActAutoBan, reason, func(ctx context.Context) error {
		return e.enforcer.Ban(ctx, tr.SubjectID, reason)
	})
	if err != nil {
		return rep, err
	}
	rep.Steps = append(rep.Steps, step)
	return rep, nil
}

// enforced ejecuta la acción en la plataforma y sólo si tuvo éxito registra el castigo sintético.
func (e *Escalator) enforced(ctx context.Context, tr Trigger, tier domain.PunishmentType, action, reason string, do func(context.Context) error) (EscalationStep, error) {
	step := EscalationStep{Tier: tier}
	if err := enforce(ctx, e.timeout, do); err != nil {
		step.Err = err
		metrics.EscalationsTotal.WithLabelValues(string(tier), "enforcement_failed").Inc()
		metrics.EnforcementFailuresTotal.WithLabelValues(string(tier), string(domain.CodeOf(err))).Inc()
		log.Warn().Err(err).Int64("subject", tr.SubjectID).Str("step", string(tier)).Str("code", string(domain.CodeOf(err))).
			Msg("escalation: enforcement failed, step skipped")
		e.activity.Failed(ctx, tr.IssuerID, action, &tr.SubjectID, err)
		return step, nil
	}
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := e.ledger.Add(ctx, domain.NewPunishment{
			SubjectID: tr.SubjectID, SubjectName: tr.SubjectName,
			Type: tier, Reason: reason, IssuerID: tr.IssuerID, Auto: true,
		})
		if err != nil {
			return err
		}
		step.PunishmentID = id
		return e.activity.Log(ctx, tr.IssuerID, action, &tr.SubjectID, fmt.Sprintf("%s #%d", tier, id))
	})
	if err != nil {
		return step, err
	}
	metrics.EscalationsTotal.WithLabelValues(string(tier), "created").Inc()
	log.Info().Int64("subject", tr.SubjectID).Str("step", string(tier)).Int64("punishment", step.PunishmentID).Msg("escalation: applied")
	return step, nil
}

// enforce llama al colaborador con timeout acotado y normaliza el error a KindEnforcement.
func enforce(ctx context.Context, timeout time.Duration, do func(context.Context) error) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := do(cctx)
	if err == nil {
		return nil
	}
	if domain.KindOf(err) == domain.KindEnforcement {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return domain.Enforcement(domain.CodeTimeout, err)
	}
	return domain.Enforcement(domain.CodePlatformError, err)
}

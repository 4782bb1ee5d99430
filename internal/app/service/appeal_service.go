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

type AppealPolicy struct {
	MinChars int
	MaxChars int
}

type AppealService struct {
	appeals  AppealRepo
	ledger   *Ledger
	activity *ActivityService
	enforcer Enforcer
	tx       TxRunner
	locks    *KeyLock
	courier  courier
	policy   AppealPolicy
	timeout  time.Duration
	now      func() time.Time
}

type AppealDeps struct {
	Appeals        AppealRepo
	Ledger         *Ledger
	Activity       *ActivityService
	Enforcer       Enforcer
	Notifier       Notifier
	Tx             TxRunner
	Locks          *KeyLock
	Policy         AppealPolicy
	EnforceTimeout time.Duration
	NotifyTimeout  time.Duration
	Now            func() time.Time
}

func NewAppealService(d AppealDeps) *AppealService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Locks == nil {
		d.Locks = NewKeyLock()
	}
	return &AppealService{
		appeals:  d.Appeals,
		ledger:   d.Ledger,
		activity: d.Activity,
		enforcer: d.Enforcer,
		tx:       d.Tx,
		locks:    d.Locks,
		courier:  courier{n: d.Notifier, timeout: d.NotifyTimeout},
		policy:   d.Policy,
		timeout:  d.EnforceTimeout,
		now:      d.Now,
	}
}

// AppealResult: Warning != nil si el unban en la plataforma falló (la decisión igual quedó guardada).
type AppealResult struct {
	Appeal     domain.Appeal
	Punishment domain.Punishment
	Warning    error
}

func (s *AppealService) checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	n := len([]rune(text))
	if n < s.policy.MinChars {
		return "", domain.Validation(domain.CodeTextTooShort, "la apelación debe tener al menos %d caracteres", s.policy.MinChars)
	}
	if n > s.policy.MaxChars {
		return "", domain.Validation(domain.CodeTextTooLong, "la apelación no puede superar %d caracteres", s.policy.MaxChars)
	}
	return text, nil
}

// Create abre una apelación sobre un castigo activo del propio subject.
func (s *AppealService) Create(ctx context.Context, subjectID, punishmentID int64, text string) (domain.Appeal, error) {
	text, err := s.checkText(text)
	if err != nil {
		return domain.Appeal{}, err
	}
	var out outbox
	unlock := s.locks.Lock(subjectKey(subjectID))
	a, err := s.createLocked(ctx, subjectID, punishmentID, text, &out)
	unlock()
	if err != nil {
		s.activity.Failed(ctx, domain.SystemActor, ActAppealCreate, &subjectID, err)
		return a, err
	}
	s.courier.send(ctx, &out)
	return a, nil
}

// CreateForLatest apela el castigo activo más reciente del tipo dado.
func (s *AppealService) CreateForLatest(ctx context.Context, subjectID int64, t domain.PunishmentType, text string) (domain.Appeal, error) {
	if !t.Valid() {
		return domain.Appeal{}, domain.Validation(domain.CodeInvalidArgument, "tipo de sanción inválido")
	}
	if _, err := s.checkText(text); err != nil {
		return domain.Appeal{}, err
	}
	active, err := s.ledger.ListActive(ctx, subjectID, t)
	if err != nil {
		return domain.Appeal{}, err
	}
	if len(active) == 0 {
		return domain.Appeal{}, domain.NotFound("no tienes ningún %s activo para apelar", t.Label())
	}
	return s.Create(ctx, subjectID, active[0].ID, text)
}

func (s *AppealService) createLocked(ctx context.Context, subjectID, punishmentID int64, text string, out *outbox) (domain.Appeal, error) {
	p, err := s.ledger.Get(ctx, punishmentID)
	if err != nil {
		return domain.Appeal{}, err
	}
	if p.SubjectID != subjectID {
		return domain.Appeal{}, domain.Conflict(domain.CodeNotOwner, "la sanción #%d no es tuya", punishmentID)
	}
	if !p.Active {
		return domain.Appeal{}, domain.Conflict(domain.CodeNotActive, "la sanción #%d ya no está activa", punishmentID)
	}
	dup, err := s.appeals.HasPending(ctx, subjectID, punishmentID)
	if err != nil {
		return domain.Appeal{}, storageErr(err)
	}
	if dup {
		return domain.Appeal{}, domain.Conflict(domain.CodeDuplicatePendingAppeal, "ya tienes una apelación pendiente para la sanción #%d", punishmentID)
	}

	a := domain.Appeal{
		SubjectID:    subjectID,
		PunishmentID: punishmentID,
		Text:         text,
		Status:       domain.AppealPending,
		CreatedAt:    s.now().UTC(),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		id, err := s.appeals.Insert(ctx, a)
		if err != nil {
			return storageErr(err)
		}
		a.ID = id
		return s.activity.Log(ctx, domain.SystemActor, ActAppealCreate, &subjectID, fmt.Sprintf("apelación #%d sobre %s #%d", id, p.Type, p.ID))
	})
	if err != nil {
		return domain.Appeal{}, err
	}
	metrics.AppealsTotal.WithLabelValues("create").Inc()
	out.staff(ChannelAppeal, fmt.Sprintf("📨 Nueva apelación **#%d** de <@%d> sobre %s #%d\n>>> %s", a.ID, subjectID, p.Type.Label(), p.ID, text))
	return a, nil
}

// Resolve aplica la decisión. Approve desactiva el castigo dentro de la misma transacción;
// si era ban, el unban es best-effort.
func (s *AppealService) Resolve(ctx context.Context, appealID int64, d domain.Decision, reviewerID int64, decisionText string) (AppealResult, error) {
	if !d.Valid() {
		return AppealResult{}, domain.Validation(domain.CodeInvalidArgument, "decisión inválida")
	}
	decisionText = strings.TrimSpace(decisionText)
	a, err := s.appeals.Get(ctx, appealID)
	if err != nil {
		err = notFoundOr(err, "no existe la apelación #%d", appealID)
		s.activity.Failed(ctx, reviewerID, "appeal_"+string(d), nil, err)
		return AppealResult{}, err
	}
	action := ActAppealDeny
	if d == domain.Approve {
		action = ActAppealApprove
	}

	var out outbox
	unlock := s.locks.Lock(subjectKey(a.SubjectID))
	res, err := s.resolveLocked(ctx, a, d, reviewerID, decisionText, action, &out)
	unlock()
	if err != nil {
		s.activity.Failed(ctx, reviewerID, action, &a.SubjectID, err)
		return res, err
	}
	s.courier.send(ctx, &out)
	return res, nil
}

func (s *AppealService) resolveLocked(ctx context.Context, a domain.Appeal, d domain.Decision, reviewerID int64, decisionText, action string, out *outbox) (AppealResult, error) {
	res := AppealResult{Appeal: a}
	if a.Status != domain.AppealPending {
		return res, domain.Conflict(domain.CodeAlreadyResolved, "la apelación #%d ya fue resuelta", a.ID)
	}
	status := domain.AppealDenied
	if d == domain.Approve {
		status = domain.AppealApproved
	}
	at := s.now().UTC()

	// lifted: el ledger desactivó la sanción en esta misma resolución
	lifted := false
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.appeals.Resolve(ctx, a.ID, status, reviewerID, decisionText, at)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			return domain.Conflict(domain.CodeAlreadyResolved, "la apelación #%d ya fue resuelta", a.ID)
		}
		if d == domain.Approve {
			p, err := s.ledger.Remove(ctx, a.PunishmentID, reviewerID)
			switch {
			case errors.Is(err, domain.ErrAlreadyInactive):
				// retirada por otra vía mientras estaba pendiente; la decisión sigue valiendo
				log.Info().Int64("appeal", a.ID).Int64("punishment", a.PunishmentID).Msg("appeal approved on inactive punishment")
			case err != nil:
				return err
			default:
				lifted = true
			}
			res.Punishment = p
		}
		return s.activity.Log(ctx, reviewerID, action, &a.SubjectID, fmt.Sprintf("apelación #%d (sanción #%d)", a.ID, a.PunishmentID))
	})
	if err != nil {
		return res, err
	}
	res.Appeal.Status = status
	res.Appeal.ReviewerID = &reviewerID
	res.Appeal.ReviewedAt = &at
	if decisionText != "" {
		res.Appeal.DecisionText = &decisionText
	}
	metrics.AppealsTotal.WithLabelValues(string(status)).Inc()

	if d == domain.Approve {
		var do func(context.Context) error
		// si ya estaba inactiva no se toca la plataforma: puede haber un ban o timeout posterior vigente
		switch t := res.Punishment.Type; {
		case !lifted:
		case t == domain.Ban:
			do = func(ctx context.Context) error { return s.enforcer.Unban(ctx, a.SubjectID, "apelación aprobada") }
		case t == domain.Timeout:
			do = func(ctx context.Context) error { return s.enforcer.Timeout(ctx, a.SubjectID, nil, "apelación aprobada") }
		}
		if do != nil {
			if err := enforce(ctx, s.timeout, do); err != nil {
				res.Warning = err
				metrics.EnforcementFailuresTotal.WithLabelValues("unban", string(domain.CodeOf(err))).Inc()
				log.Warn().Err(err).Int64("subject", a.SubjectID).Int64("appeal", a.ID).Msg("appeal approved, platform lift failed")
				s.activity.Failed(ctx, reviewerID, action, &a.SubjectID, err)
			}
		}
		out.dm(a.SubjectID, fmt.Sprintf("✅ Tu apelación **#%d** fue **aprobada**. La sanción #%d quedó sin efecto.%s", a.ID, a.PunishmentID, suffix(decisionText)))
	} else {
		out.dm(a.SubjectID, fmt.Sprintf("❌ Tu apelación **#%d** fue **rechazada**.%s", a.ID, suffix(decisionText)))
	}
	out.staff(ChannelAppeal, fmt.Sprintf("Apelación **#%d** de <@%d>: **%s** por <@%d>", a.ID, a.SubjectID, status, reviewerID))
	return res, nil
}

func suffix(text string) string {
	if text == "" {
		return ""
	}
	return "\nMotivo: " + text
}

func (s *AppealService) Get(ctx context.Context, id int64) (domain.Appeal, error) {
	a, err := s.appeals.Get(ctx, id)
	if err != nil {
		return a, notFoundOr(err, "no existe la apelación #%d", id)
	}
	return a, nil
}

func (s *AppealService) ListPending(ctx context.Context, limit int) ([]domain.Appeal, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	as, err := s.appeals.ListPending(ctx, limit)
	return as, storageErr(err)
}

func (s *AppealService) ListForSubject(ctx context.Context, subjectID int64, limit int) ([]domain.Appeal, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	as, err := s.appeals.ListBySubject(ctx, subjectID, limit)
	return as, storageErr(err)
}

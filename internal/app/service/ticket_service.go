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

// Categorías de ticket aceptadas.
var TicketCategories = map[string]string{
	"general": "Soporte general",
	"report":  "Reporte de jugador",
	"appeal":  "Apelación",
	"dev":     "Soporte técnico",
}

type TicketPolicy struct {
	OpenLimit int
	Cooldown  time.Duration
}

type TicketService struct {
	tickets  TicketRepo
	activity *ActivityService
	cooldown Cooldown
	locks    *KeyLock
	tx       TxRunner
	policy   TicketPolicy
	now      func() time.Time
}

func NewTicketService(tickets TicketRepo, activity *ActivityService, cd Cooldown, locks *KeyLock, tx TxRunner, policy TicketPolicy, now func() time.Time) *TicketService {
	if now == nil {
		now = time.Now
	}
	if locks == nil {
		locks = NewKeyLock()
	}
	return &TicketService{tickets: tickets, activity: activity, cooldown: cd, locks: locks, tx: tx, policy: policy, now: now}
}

// Open crea un ticket con número secuencial por guild. Respeta límite de abiertos y cooldown.
func (s *TicketService) Open(ctx context.Context, guildID, subjectID int64, category, topic string) (domain.Ticket, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if _, ok := TicketCategories[category]; !ok {
		return domain.Ticket{}, domain.Validation(domain.CodeInvalidArgument, "categoría de ticket inválida: %q", category)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = TicketCategories[category]
	}

	unlock := s.locks.Lock(fmt.Sprintf("ticket:%d:%d", guildID, subjectID))
	defer unlock()

	n, err := s.tickets.CountOpen(ctx, guildID, subjectID)
	if err != nil {
		return domain.Ticket{}, storageErr(err)
	}
	if n >= s.policy.OpenLimit {
		return domain.Ticket{}, domain.Validation(domain.CodeOpenTicketLimit, "ya tienes %d tickets abiertos, cierra alguno antes de abrir otro", n)
	}
	cdKey := fmt.Sprintf("ticket:%d", subjectID)
	if s.cooldown != nil {
		ok, wait, err := s.cooldown.Allow(ctx, cdKey, s.policy.Cooldown)
		if err != nil {
			return domain.Ticket{}, storageErr(err)
		}
		if !ok {
			return domain.Ticket{}, domain.Validation(domain.CodeOnCooldown, "espera %s antes de abrir otro ticket", wait.Round(time.Second))
		}
	}

	// fila + actividad en la misma transacción
	var t domain.Ticket
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		t, err = s.tickets.Create(ctx, domain.Ticket{
			GuildID:   guildID,
			SubjectID: subjectID,
			Category:  category,
			Topic:     topic,
			Status:    domain.TicketOpen,
			CreatedAt: s.now().UTC(),
		})
		if err != nil {
			return storageErr(err)
		}
		return s.activity.Log(ctx, domain.SystemActor, ActTicketOpen, &subjectID, fmt.Sprintf("ticket #%04d (%s)", t.Number, category))
	})
	if err != nil {
		s.releaseCooldown(ctx, cdKey)
		s.activity.Failed(ctx, domain.SystemActor, ActTicketOpen, &subjectID, err)
		return domain.Ticket{}, err
	}
	metrics.TicketsTotal.WithLabelValues("open").Inc()
	return t, nil
}

// releaseCooldown devuelve la ventana consumida por un intento que no se guardó.
func (s *TicketService) releaseCooldown(ctx context.Context, key string) {
	if s.cooldown == nil {
		return
	}
	if err := s.cooldown.Reset(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cooldown reset failed")
	}
}

// AttachChannel guarda el canal creado para el ticket.
func (s *TicketService) AttachChannel(ctx context.Context, ticketID, channelID int64) error {
	return storageErr(s.tickets.SetChannel(ctx, ticketID, channelID))
}

func (s *TicketService) Close(ctx context.Context, ticketID, closedBy int64) (domain.Ticket, error) {
	t, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return t, notFoundOr(err, "no existe el ticket #%d", ticketID)
	}
	return s.close(ctx, t, closedBy)
}

func (s *TicketService) CloseByChannel(ctx context.Context, channelID, closedBy int64) (domain.Ticket, error) {
	t, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		return t, notFoundOr(err, "este canal no es un ticket")
	}
	return s.close(ctx, t, closedBy)
}

// ByChannel devuelve el ticket asociado a un canal.
func (s *TicketService) ByChannel(ctx context.Context, channelID int64) (domain.Ticket, error) {
	t, err := s.tickets.GetByChannel(ctx, channelID)
	if err != nil {
		return t, notFoundOr(err, "este canal no es un ticket")
	}
	return t, nil
}

func (s *TicketService) close(ctx context.Context, t domain.Ticket, closedBy int64) (domain.Ticket, error) {
	if t.Status == domain.TicketClosed {
		return t, domain.Conflict(domain.CodeAlreadyClosed, "el ticket #%04d ya está cerrado", t.Number)
	}
	at := s.now().UTC()
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.tickets.Close(ctx, t.ID, closedBy, at)
		if err != nil {
			return storageErr(err)
		}
		if !ok {
			return domain.Conflict(domain.CodeAlreadyClosed, "el ticket #%04d ya está cerrado", t.Number)
		}
		return s.activity.Log(ctx, closedBy, ActTicketClose, &t.SubjectID, fmt.Sprintf("ticket #%04d", t.Number))
	})
	if err != nil {
		if domain.KindOf(err) != domain.KindConflict {
			s.activity.Failed(ctx, closedBy, ActTicketClose, &t.SubjectID, err)
		}
		return t, err
	}
	t.Status = domain.TicketClosed
	t.ClosedAt = &at
	t.ClosedBy = &closedBy
	metrics.TicketsTotal.WithLabelValues("close").Inc()
	return t, nil
}

func (s *TicketService) Stats(ctx context.Context, guildID int64) (domain.TicketStats, error) {
	st, err := s.tickets.Stats(ctx, guildID)
	if st.ByCategory == nil {
		st.ByCategory = map[string]int{}
	}
	return st, storageErr(err)
}

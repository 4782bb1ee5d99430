package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

const (
	listLimit     = 10
	historyLimit  = 15
	recentLimit   = 25
	defaultWindow = 7
)

func (r *Router) cmdPing(_ context.Context, c *Ctx) error {
	ReplyEphemeral(c.Session, c.Event, "🏓 pong")
	return nil
}

func requiredUser(c *Ctx) (int64, error) {
	id, ok := optUser(c.Event, "user")
	if !ok {
		return 0, domain.Validation(domain.CodeInvalidArgument, "falta el usuario")
	}
	return id, nil
}

// --- moderación ---

func (r *Router) cmdModerate(t domain.PunishmentType) CommandHandler {
	return func(ctx context.Context, c *Ctx) error {
		target, err := requiredUser(c)
		if err != nil {
			return err
		}
		if err := r.checkHierarchy(c.Session, c.Event, target); err != nil {
			return err
		}
		reason, _ := optStr(c.Event, "reason")
		a := service.Action{SubjectID: target, IssuerID: c.ActorID, Reason: reason}

		var res service.ActionResult
		switch t {
		case domain.VerbalWarn:
			res, err = r.svc.Moderation.VerbalWarn(ctx, a)
		case domain.Warn:
			res, err = r.svc.Moderation.Warn(ctx, a)
		case domain.Kick:
			res, err = r.svc.Moderation.Kick(ctx, a)
		case domain.Ban:
			res, err = r.svc.Moderation.Ban(ctx, a)
		case domain.Timeout:
			n, _ := optInt(c.Event, "duration")
			unit, _ := optStr(c.Event, "unit")
			var d time.Duration
			if d, err = durationOf(n, unit); err != nil {
				return err
			}
			res, err = r.svc.Moderation.Timeout(ctx, a, d)
		}
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, renderAction(t, target, res))
		return nil
	}
}

func (r *Router) cmdUntimeout(ctx context.Context, c *Ctx) error {
	target, err := requiredUser(c)
	if err != nil {
		return err
	}
	res, err := r.svc.Moderation.Untimeout(ctx, target, c.ActorID)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderLift("Timeout levantado", target, res))
	return nil
}

func (r *Router) cmdUnwarn(ctx context.Context, c *Ctx) error {
	target, err := requiredUser(c)
	if err != nil {
		return err
	}
	raw, _ := optStr(c.Event, "type")
	t, ok := domain.ParsePunishmentType(raw)
	if !ok {
		return domain.Validation(domain.CodeInvalidArgument, "tipo inválido: %s", raw)
	}
	res, err := r.svc.Moderation.Unwarn(ctx, target, t, c.ActorID)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderUnwarn(t, target, res))
	return nil
}

func (r *Router) cmdUnban(ctx context.Context, c *Ctx) error {
	raw, _ := optStr(c.Event, "user_id")
	ids := parseIDs(raw)
	if len(ids) != 1 {
		return domain.Validation(domain.CodeInvalidArgument, "pasá un único ID de usuario")
	}
	target, err := snowflake(ids[0])
	if err != nil {
		return err
	}
	reason, _ := optStr(c.Event, "reason")
	res, err := r.svc.Moderation.Unban(ctx, target, c.ActorID, reason)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderLift("Unban aplicado", target, res))
	return nil
}

func (r *Router) cmdRemovePunishment(ctx context.Context, c *Ctx) error {
	id, _ := optInt(c.Event, "id")
	res, err := r.svc.Moderation.RemovePunishment(ctx, int64(id), c.ActorID)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderLift("Sanción #"+sf(int64(id))+" retirada", res.Punishment.SubjectID, res))
	return nil
}

func (r *Router) cmdHistory(ctx context.Context, c *Ctx) error {
	target, err := requiredUser(c)
	if err != nil {
		return err
	}
	ps, err := r.svc.Moderation.History(ctx, target, historyLimit)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, "", renderHistory(target, ps))
	return nil
}

// --- apelaciones ---

func (r *Router) cmdAppeal(ctx context.Context, c *Ctx) error {
	raw, _ := optStr(c.Event, "type")
	t, ok := domain.ParsePunishmentType(raw)
	if !ok {
		return domain.Validation(domain.CodeInvalidArgument, "tipo inválido: %s", raw)
	}
	text, _ := optStr(c.Event, "reason")
	a, err := r.svc.Appeals.CreateForLatest(ctx, c.ActorID, t, text)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, "📨 Apelación **#"+sf(a.ID)+"** enviada. El staff la va a revisar.")
	return nil
}

func (r *Router) cmdMyAppeals(ctx context.Context, c *Ctx) error {
	list, err := r.svc.Appeals.ListForSubject(ctx, c.ActorID, listLimit)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, "", renderAppeals("Tus apelaciones", list))
	return nil
}

func (r *Router) cmdViewAppeals(ctx context.Context, c *Ctx) error {
	list, err := r.svc.Appeals.ListPending(ctx, listLimit)
	if err != nil {
		return err
	}
	ReplyWithButtons(c.Session, c.Event, "", []*discordgo.MessageEmbed{renderAppeals("Apelaciones pendientes", list)}, appealButtons(list))
	return nil
}

func (r *Router) cmdReviewAppeal(ctx context.Context, c *Ctx) error {
	id, _ := optInt(c.Event, "id")
	raw, _ := optStr(c.Event, "decision")
	text, _ := optStr(c.Event, "reason")
	return r.resolveAppeal(ctx, c, int64(id), domain.Decision(raw), text)
}

func (r *Router) resolveAppeal(ctx context.Context, c *Ctx, id int64, d domain.Decision, text string) error {
	res, err := r.svc.Appeals.Resolve(ctx, id, d, c.ActorID, text)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderResolution(res))
	return nil
}

// --- LOA ---

func (r *Router) cmdLoa(ctx context.Context, c *Ctx) error {
	sub, _ := subcmdName(c.Event)
	switch sub {
	case "request":
		rawStart, _ := optStr(c.Event, "start")
		rawEnd, _ := optStr(c.Event, "end")
		start, err := parseDate("start", rawStart)
		if err != nil {
			return err
		}
		end, err := parseDate("end", rawEnd)
		if err != nil {
			return err
		}
		reason, _ := optStr(c.Event, "reason")
		l, err := r.svc.Loa.Request(ctx, c.ActorID, start, end, reason)
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, "🏖️ Licencia **#"+sf(l.ID)+"** pedida del "+day(l.StartDate)+" al "+day(l.EndDate)+". Queda pendiente de aprobación.")
		return nil

	case "review":
		if !r.require(c.Session, c.Event, AccessAdmin) {
			return nil
		}
		id, _ := optInt(c.Event, "id")
		raw, _ := optStr(c.Event, "decision")
		reason, _ := optStr(c.Event, "reason")
		return r.reviewLoa(ctx, c, int64(id), domain.Decision(raw), reason)

	case "pending":
		if !r.require(c.Session, c.Event, AccessAdmin) {
			return nil
		}
		list, err := r.svc.Loa.ListPending(ctx, listLimit)
		if err != nil {
			return err
		}
		ReplyWithButtons(c.Session, c.Event, "", []*discordgo.MessageEmbed{renderLoas("Licencias pendientes", list)}, loaButtons(list))
		return nil

	case "mine":
		list, err := r.svc.Loa.ListForSubject(ctx, c.ActorID, listLimit)
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, "", renderLoas("Tus licencias", list))
		return nil

	case "status":
		target, err := requiredUser(c)
		if err != nil {
			return err
		}
		on, err := r.svc.Loa.OnLeave(ctx, target, time.Now())
		if err != nil {
			return err
		}
		msg := mention(target) + " no está de licencia hoy."
		if on {
			msg = "🏖️ " + mention(target) + " está de licencia hoy."
		}
		ReplyEphemeral(c.Session, c.Event, msg)
		return nil
	}
	return domain.Validation(domain.CodeInvalidArgument, "subcomando desconocido")
}

func (r *Router) reviewLoa(ctx context.Context, c *Ctx, id int64, d domain.Decision, reason string) error {
	l, err := r.svc.Loa.Review(ctx, id, d, c.ActorID, reason)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, "Licencia **#"+sf(l.ID)+"** de "+mention(l.SubjectID)+": **"+string(l.Status)+"**.")
	return nil
}

// --- actividad ---

func (r *Router) cmdStaffStats(ctx context.Context, c *Ctx) error {
	target, ok := optUser(c.Event, "user")
	if !ok {
		target = c.ActorID
	}
	days, ok := optInt(c.Event, "days")
	if !ok {
		days = defaultWindow
	}
	st, err := r.svc.Activity.StatsFor(ctx, target, days)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderStats(target, days, st))
	return nil
}

func (r *Router) cmdLeaderboard(ctx context.Context, c *Ctx) error {
	days, ok := optInt(c.Event, "days")
	if !ok {
		days = defaultWindow
	}
	rows, err := r.svc.Activity.Leaderboard(ctx, days, listLimit)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderLeaderboard(days, rows))
	return nil
}

func (r *Router) cmdRecent(ctx context.Context, c *Ctx) error {
	hours, ok := optInt(c.Event, "hours")
	if !ok {
		hours = 24
	}
	list, err := r.svc.Activity.Recent(ctx, hours, recentLimit)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderRecent(hours, list))
	return nil
}

func (r *Router) cmdInactive(ctx context.Context, c *Ctx) error {
	days, ok := optInt(c.Event, "days")
	if !ok {
		days = defaultWindow
	}
	var ids []int64
	if raw, ok := optStr(c.Event, "staff"); ok && raw != "" {
		for _, s := range parseIDs(raw) {
			id, err := snowflake(s)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	} else {
		var err error
		if ids, err = r.staffMembers(ctx, c.GuildID); err != nil {
			return err
		}
	}
	list, err := r.svc.Activity.Inactive(ctx, ids, days)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, renderInactive(days, len(ids), list))
	return nil
}

// staffMembers lista los miembros con algún rol de staff o admin configurado.
func (r *Router) staffMembers(ctx context.Context, guildID string) ([]int64, error) {
	want := append(append([]string{}, r.roles.Staff...), r.roles.Admin...)
	if len(want) == 0 {
		return nil, domain.Validation(domain.CodeInvalidArgument, "no hay roles de staff configurados; pasá la lista en `staff`")
	}
	var out []int64
	after := ""
	for {
		page, err := r.s.GuildMembers(guildID, after, 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify(ctx, err)
		}
		for _, m := range page {
			if m.User == nil || m.User.Bot || !hasAny(m.Roles, want) {
				continue
			}
			if id, err := snowflake(m.User.ID); err == nil {
				out = append(out, id)
			}
		}
		if len(page) < 1000 {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// --- notas ---

func (r *Router) cmdNote(ctx context.Context, c *Ctx) error {
	target, err := requiredUser(c)
	if err != nil {
		return err
	}
	sub, _ := subcmdName(c.Event)
	switch sub {
	case "add":
		text, _ := optStr(c.Event, "text")
		n, err := r.svc.Notes.Add(ctx, target, c.ActorID, text)
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, "📝 Nota **#"+sf(n.ID)+"** guardada para "+mention(target)+".")
		return nil
	case "list":
		notes, err := r.svc.Notes.List(ctx, target, listLimit)
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, "", renderNotes(target, notes))
		return nil
	}
	return domain.Validation(domain.CodeInvalidArgument, "subcomando desconocido")
}

// --- cuentas ---

func (r *Router) cmdLink(ctx context.Context, c *Ctx) error {
	name, _ := optStr(c.Event, "username")
	msg, err := r.svc.Links.Link(ctx, c.ActorID, name)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, msg)
	return nil
}

func (r *Router) cmdUnlink(ctx context.Context, c *Ctx) error {
	msg, err := r.svc.Links.Unlink(ctx, c.ActorID)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, msg)
	return nil
}

func (r *Router) cmdWhoAmI(ctx context.Context, c *Ctx) error {
	msg, err := r.svc.Links.WhoIs(ctx, c.ActorID)
	if err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, msg)
	return nil
}

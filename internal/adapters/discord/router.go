package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
	"github.com/jose-valero/kronoz-mod-bot/internal/infra/cooldown"
)

// Services agrupa los casos de uso que expone el bot.
type Services struct {
	Moderation *service.ModerationService
	Appeals    *service.AppealService
	Loa        *service.LoaService
	Activity   *service.ActivityService
	Tickets    *service.TicketService
	Notes      *service.NoteService
	Links      *service.LinkService
}

// TicketCfg: categoría donde se crean los canales de ticket.
type TicketCfg struct {
	CategoryID string
}

const (
	commandTimeout = 12 * time.Second
	clickWindow    = time.Second
)

type Router struct {
	s       *discordgo.Session
	guildID string
	roles   Roles
	svc     Services
	tickets TicketCfg

	clicks *cooldown.Memory
	cmds   map[string]Command
	comps  map[ComponentKey]Component
}

func NewRouter(s *discordgo.Session, guildID string, roles Roles, svc Services, tickets TicketCfg) *Router {
	r := &Router{
		s:       s,
		guildID: guildID,
		roles:   roles,
		svc:     svc,
		tickets: tickets,
		clicks:  cooldown.NewMemory(nil),
	}
	r.cmds = r.commandTable()
	r.comps = r.componentTable()
	return r
}

func (r *Router) Register() error {
	appID := r.s.State.User.ID
	for _, cmd := range Commands {
		if _, err := r.s.ApplicationCommandCreate(appID, r.guildID, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Handlers() {
	r.s.AddHandler(func(s *discordgo.Session, rd *discordgo.Ready) {
		log.Info().Str("user", rd.User.Username).Int("guilds", len(rd.Guilds)).Msg("✅ discord ready")
	})
	r.s.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ic.Member == nil || ic.Member.User == nil {
			// DMs: los comandos son de guild
			return
		}
		switch ic.Type {
		case discordgo.InteractionApplicationCommand:
			r.handleCommand(s, ic)
		case discordgo.InteractionMessageComponent:
			r.handleMessageComponent(s, ic)
		case discordgo.InteractionModalSubmit:
			r.handleModal(s, ic)
		}
	})
}

func (r *Router) handleCommand(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.ApplicationCommandData()
	l, _ := newTrace("slash", data.Name, ic.Member.User.ID)
	l.Info().Str("guild", ic.GuildID).Msg("slash")

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("panic in slash")
			ReplyEphemeral(s, ic, "⚠️ Ocurrió un error inesperado.")
		}
	}()

	_ = DeferEphemeral(s, ic)
	cmd, ok := r.cmds[data.Name]
	if !ok {
		ReplyEphemeral(s, ic, "Comando desconocido.")
		return
	}
	if !r.require(s, ic, cmd.Access) {
		return
	}
	c, err := r.newCtx(s, ic, l, nil)
	if err != nil {
		r.fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	defer step(l, "slash.total")()
	if err := cmd.Handler(ctx, c); err != nil {
		r.fail(c, err)
	}
}

func (r *Router) newCtx(s *discordgo.Session, ic *discordgo.InteractionCreate, l zerolog.Logger, params []string) (*Ctx, error) {
	c := &Ctx{
		Log:     l,
		Session: s,
		Event:   ic,
		GuildID: ic.GuildID,
		UserID:  ic.Member.User.ID,
		Params:  params,
	}
	id, err := snowflake(c.UserID)
	c.ActorID = id
	return c, err
}

// fail muestra el mensaje de usuario; lo interno sólo va al log.
func (r *Router) fail(c *Ctx, err error) {
	ev := c.Log.Debug()
	switch domain.KindOf(err) {
	case domain.KindEnforcement:
		ev = c.Log.Warn()
	case domain.KindStorage:
		ev = c.Log.Error()
	}
	ev.Err(err).Str("code", string(domain.CodeOf(err))).Msg("interaction failed")
	ReplyEphemeral(c.Session, c.Event, "⚠️ "+domain.UserMessage(err))
}

func (r *Router) commandTable() map[string]Command {
	list := []Command{
		{Name: "ping", Access: AccessMember, Handler: r.cmdPing},

		{Name: "verbalwarn", Access: AccessStaff, Handler: r.cmdModerate(domain.VerbalWarn)},
		{Name: "warn", Access: AccessStaff, Handler: r.cmdModerate(domain.Warn)},
		{Name: "kick", Access: AccessStaff, Handler: r.cmdModerate(domain.Kick)},
		{Name: "ban", Access: AccessStaff, Handler: r.cmdModerate(domain.Ban)},
		{Name: "timeout", Access: AccessStaff, Handler: r.cmdModerate(domain.Timeout)},
		{Name: "untimeout", Access: AccessStaff, Handler: r.cmdUntimeout},
		{Name: "unwarn", Access: AccessStaff, Handler: r.cmdUnwarn},
		{Name: "unban", Access: AccessStaff, Handler: r.cmdUnban},
		{Name: "removepunishment", Access: AccessAdmin, Handler: r.cmdRemovePunishment},
		{Name: "history", Access: AccessStaff, Handler: r.cmdHistory},

		{Name: "appeal", Access: AccessMember, Handler: r.cmdAppeal},
		{Name: "myappeals", Access: AccessMember, Handler: r.cmdMyAppeals},
		{Name: "viewappeals", Access: AccessStaff, Handler: r.cmdViewAppeals},
		{Name: "reviewappeal", Access: AccessStaff, Handler: r.cmdReviewAppeal},

		{Name: "loa", Access: AccessStaff, Handler: r.cmdLoa},

		{Name: "staffstats", Access: AccessStaff, Handler: r.cmdStaffStats},
		{Name: "leaderboard", Access: AccessStaff, Handler: r.cmdLeaderboard},
		{Name: "recentactions", Access: AccessStaff, Handler: r.cmdRecent},
		{Name: "inactive", Access: AccessAdmin, Handler: r.cmdInactive},

		{Name: "note", Access: AccessStaff, Handler: r.cmdNote},
		{Name: "ticket", Access: AccessMember, Handler: r.cmdTicket},

		{Name: "link", Access: AccessMember, Handler: r.cmdLink},
		{Name: "unlink", Access: AccessMember, Handler: r.cmdUnlink},
		{Name: "whoami", Access: AccessMember, Handler: r.cmdWhoAmI},
	}
	out := make(map[string]Command, len(list))
	for _, c := range list {
		out[c.Name] = c
	}
	return out
}

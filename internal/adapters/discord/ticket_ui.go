package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/app/service"
	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

const (
	ticketDeleteDelay = 5 * time.Second
	ticketViewPerms   = discordgo.PermissionViewChannel | discordgo.PermissionSendMessages | discordgo.PermissionReadMessageHistory | discordgo.PermissionAttachFiles
)

var panelOrder = []struct {
	key   string
	emoji string
	style discordgo.ButtonStyle
}{
	{"general", "💬", discordgo.SuccessButton},
	{"report", "🚨", discordgo.DangerButton},
	{"appeal", "📝", discordgo.PrimaryButton},
	{"dev", "⚙️", discordgo.SecondaryButton},
}

func (r *Router) cmdTicket(ctx context.Context, c *Ctx) error {
	sub, _ := subcmdName(c.Event)
	switch sub {
	case "open":
		cat, _ := optStr(c.Event, "category")
		topic, _ := optStr(c.Event, "topic")
		return r.openTicket(ctx, c, cat, topic)
	case "close":
		return r.closeTicket(ctx, c)
	case "stats":
		if !r.require(c.Session, c.Event, AccessStaff) {
			return nil
		}
		gid, err := snowflake(c.GuildID)
		if err != nil {
			return err
		}
		st, err := r.svc.Tickets.Stats(ctx, gid)
		if err != nil {
			return err
		}
		ReplyEphemeral(c.Session, c.Event, renderTicketStats(st))
		return nil
	case "panel":
		if !r.require(c.Session, c.Event, AccessAdmin) {
			return nil
		}
		if err := r.publishTicketPanel(c.Event.ChannelID); err != nil {
			return classify(ctx, err)
		}
		ReplyEphemeral(c.Session, c.Event, "✅ Panel publicado.")
		return nil
	}
	return domain.Validation(domain.CodeInvalidArgument, "subcomando desconocido")
}

// Publica el panel de tickets en ESTE canal
func (r *Router) publishTicketPanel(channelID string) error {
	embed, comps := renderTicketPanel()
	_, err := r.s.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{comps},
	})
	return err
}

func renderTicketPanel() (*discordgo.MessageEmbed, discordgo.MessageComponent) {
	var b strings.Builder
	row := discordgo.ActionsRow{}
	for _, p := range panelOrder {
		name := service.TicketCategories[p.key]
		fmt.Fprintf(&b, "%s **%s**\n", p.emoji, name)
		row.Components = append(row.Components, discordgo.Button{
			Style:    p.style,
			Label:    name,
			CustomID: "ticket:open:" + p.key,
			Emoji:    &discordgo.ComponentEmoji{Name: p.emoji},
		})
	}
	embed := &discordgo.MessageEmbed{
		Title:       "🎫 Soporte",
		Description: "Elegí una categoría para abrir un ticket privado con el staff.\n\n" + b.String(),
		Color:       colorAppeal,
	}
	return embed, row
}

func (r *Router) btnTicketOpen(ctx context.Context, c *Ctx) error {
	if len(c.Params) != 1 {
		return domain.Validation(domain.CodeInvalidArgument, "botón inválido")
	}
	return r.openTicket(ctx, c, c.Params[0], "")
}

func (r *Router) btnTicketClose(ctx context.Context, c *Ctx) error {
	return r.closeTicket(ctx, c)
}

// openTicket registra el ticket y le crea un canal privado.
func (r *Router) openTicket(ctx context.Context, c *Ctx, category, topic string) error {
	gid, err := snowflake(c.GuildID)
	if err != nil {
		return err
	}
	t, err := r.svc.Tickets.Open(ctx, gid, c.ActorID, category, topic)
	if err != nil {
		return err
	}
	defer step(c.Log, "ticket.channel")()

	ch, err := r.s.GuildChannelCreateComplex(c.GuildID, discordgo.GuildChannelCreateData{
		Name:                 fmt.Sprintf("ticket-%04d", t.Number),
		Type:                 discordgo.ChannelTypeGuildText,
		Topic:                fmt.Sprintf("%s | %s", t.Topic, c.UserID),
		ParentID:             r.tickets.CategoryID,
		PermissionOverwrites: r.ticketOverwrites(c.GuildID, c.UserID),
	}, discordgo.WithContext(ctx))
	if err != nil {
		c.Log.Error().Err(err).Int64("ticket", t.ID).Msg("ticket channel create failed")
		// sin canal el ticket no sirve: se cierra para no ocupar el cupo
		if _, cerr := r.svc.Tickets.Close(ctx, t.ID, domain.SystemActor); cerr != nil {
			c.Log.Error().Err(cerr).Int64("ticket", t.ID).Msg("ticket rollback failed")
		}
		return classify(ctx, err)
	}
	chID, err := snowflake(ch.ID)
	if err != nil {
		return err
	}
	if err := r.svc.Tickets.AttachChannel(ctx, t.ID, chID); err != nil {
		return err
	}

	_, err = r.s.ChannelMessageSendComplex(ch.ID, &discordgo.MessageSend{
		Content: fmt.Sprintf("%s abrió el ticket **#%04d**: %s\nEl staff te va a responder acá.", mention(c.ActorID), t.Number, t.Topic),
		Components: []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Style: discordgo.DangerButton, Label: "Cerrar ticket", CustomID: "ticket:close", Emoji: &discordgo.ComponentEmoji{Name: "🔒"}},
		}}},
	}, discordgo.WithContext(ctx))
	if err != nil {
		c.Log.Warn().Err(err).Str("channel", ch.ID).Msg("ticket welcome failed")
	}
	ReplyEphemeral(c.Session, c.Event, fmt.Sprintf("🎫 Ticket **#%04d** creado: <#%s>", t.Number, ch.ID))
	return nil
}

func (r *Router) ticketOverwrites(guildID, userID string) []*discordgo.PermissionOverwrite {
	ows := []*discordgo.PermissionOverwrite{
		// @everyone tiene el mismo ID que el guild
		{ID: guildID, Type: discordgo.PermissionOverwriteTypeRole, Deny: discordgo.PermissionViewChannel},
		{ID: userID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketViewPerms},
	}
	if r.s.State.User != nil {
		ows = append(ows, &discordgo.PermissionOverwrite{ID: r.s.State.User.ID, Type: discordgo.PermissionOverwriteTypeMember, Allow: ticketViewPerms | discordgo.PermissionManageChannels})
	}
	for _, rid := range append(append([]string{}, r.roles.Staff...), r.roles.Admin...) {
		ows = append(ows, &discordgo.PermissionOverwrite{ID: rid, Type: discordgo.PermissionOverwriteTypeRole, Allow: ticketViewPerms})
	}
	return ows
}

// closeTicket: lo cierra el dueño del ticket o el staff. El canal se borra unos segundos después.
func (r *Router) closeTicket(ctx context.Context, c *Ctx) error {
	chID, err := snowflake(c.Event.ChannelID)
	if err != nil {
		return err
	}
	t, err := r.svc.Tickets.ByChannel(ctx, chID)
	if err != nil {
		return err
	}
	if t.SubjectID != c.ActorID && r.accessOf(c.Session, c.Event) < AccessStaff {
		return domain.Conflict(domain.CodeNotOwner, "sólo el dueño del ticket o el staff pueden cerrarlo")
	}
	if t, err = r.svc.Tickets.CloseByChannel(ctx, chID, c.ActorID); err != nil {
		return err
	}
	ReplyEphemeral(c.Session, c.Event, fmt.Sprintf("🔒 Ticket **#%04d** cerrado. El canal se borra en %s.", t.Number, ticketDeleteDelay))
	_ = SendResponse(c.Session, c.Event.ChannelID, fmt.Sprintf("🔒 Ticket cerrado por %s.", mention(c.ActorID)))

	channelID := c.Event.ChannelID
	l := c.Log
	time.AfterFunc(ticketDeleteDelay, func() {
		if _, err := r.s.ChannelDelete(channelID); err != nil {
			l.Warn().Err(err).Str("channel", channelID).Msg("ticket channel delete failed")
		}
	})
	return nil
}

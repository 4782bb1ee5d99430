package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

const componentTimeout = 8 * time.Second

func (r *Router) componentTable() map[ComponentKey]Component {
	return map[ComponentKey]Component{
		"appeal:approve": {Access: AccessStaff, Handler: r.btnAppeal(domain.Approve)},
		"appeal:deny":    {Access: AccessStaff, Handler: r.btnAppeal(domain.Deny)},
		"loa:approve":    {Access: AccessAdmin, Handler: r.btnLoaApprove},
		"ticket:open":    {Access: AccessMember, Handler: r.btnTicketOpen},
		"ticket:close":   {Access: AccessMember, Handler: r.btnTicketClose},
	}
}

func (r *Router) handleMessageComponent(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.MessageComponentData()
	key, params := splitCustomID(data.CustomID)
	l, _ := newTrace("component", string(key), ic.Member.User.ID)

	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Interface("panic", rec).Msg("panic in component")
			ReplyEphemeral(s, ic, "⚠️ Ocurrió un error inesperado.")
		}
	}()

	// la denegación de LOA pide motivo: se responde con modal, sin defer
	if key == "loa:deny" {
		if r.accessOf(s, ic) < AccessAdmin {
			_ = SendEphemeral(s, ic, "🔒 No tienes permisos para esta acción.")
			return
		}
		if len(params) == 1 {
			_ = OpenModal(s, ic, data.CustomID, "Denegar licencia #"+params[0], "Motivo", 512)
		}
		return
	}

	_ = DeferEphemeral(s, ic)
	if ok, _, _ := r.clicks.Allow(context.Background(), "click:"+ic.Member.User.ID, clickWindow); !ok {
		ReplyEphemeral(s, ic, "⏳ Esperá un segundo…")
		return
	}
	comp, ok := r.comps[key]
	if !ok {
		l.Warn().Str("custom_id", data.CustomID).Msg("component desconocido")
		return
	}
	if !r.require(s, ic, comp.Access) {
		return
	}
	c, err := r.newCtx(s, ic, l, params)
	if err != nil {
		r.fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), componentTimeout)
	defer cancel()
	defer step(l, "component.total")()
	if err := comp.Handler(ctx, c); err != nil {
		r.fail(c, err)
	}
}

func (r *Router) handleModal(s *discordgo.Session, ic *discordgo.InteractionCreate) {
	data := ic.ModalSubmitData()
	key, params := splitCustomID(data.CustomID)
	l, _ := newTrace("modal", string(key), ic.Member.User.ID)

	_ = DeferEphemeral(s, ic)
	if key != "loa:deny" {
		l.Warn().Str("custom_id", data.CustomID).Msg("modal desconocido")
		return
	}
	if !r.require(s, ic, AccessAdmin) {
		return
	}
	c, err := r.newCtx(s, ic, l, params)
	if err != nil {
		r.fail(c, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), componentTimeout)
	defer cancel()

	id, err := paramID(c)
	if err == nil {
		err = r.reviewLoa(ctx, c, id, domain.Deny, modalText(ic))
	}
	if err != nil {
		r.fail(c, err)
	}
}

func (r *Router) btnAppeal(d domain.Decision) ComponentHandler {
	return func(ctx context.Context, c *Ctx) error {
		id, err := paramID(c)
		if err != nil {
			return err
		}
		return r.resolveAppeal(ctx, c, id, d, "")
	}
}

func (r *Router) btnLoaApprove(ctx context.Context, c *Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return err
	}
	return r.reviewLoa(ctx, c, id, domain.Approve, "")
}

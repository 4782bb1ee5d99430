package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// Roles: IDs de rol que habilitan comandos de admin y de staff.
type Roles struct {
	Admin []string
	Staff []string
}

func (r *Router) guildOwner(s *discordgo.Session, guildID string) string {
	if g, _ := s.State.Guild(guildID); g != nil {
		return g.OwnerID
	}
	if g, err := s.Guild(guildID); err == nil {
		return g.OwnerID
	}
	return ""
}

func (r *Router) guildRoles(s *discordgo.Session, guildID string) []*discordgo.Role {
	if g, _ := s.State.Guild(guildID); g != nil && len(g.Roles) > 0 {
		return g.Roles
	}
	roles, _ := s.GuildRoles(guildID)
	return roles
}

// accessOf calcula el nivel del miembro: owner/Administrator/rol admin > rol staff > miembro.
func (r *Router) accessOf(s *discordgo.Session, ic *discordgo.InteractionCreate) Access {
	if ic.Member == nil || ic.Member.User == nil {
		return AccessMember
	}
	if ic.Member.User.ID == r.guildOwner(s, ic.GuildID) {
		return AccessAdmin
	}
	if memberPerms(r.guildRoles(s, ic.GuildID), ic.Member.Roles)&discordgo.PermissionAdministrator != 0 {
		return AccessAdmin
	}
	if hasAny(ic.Member.Roles, r.roles.Admin) {
		return AccessAdmin
	}
	if hasAny(ic.Member.Roles, r.roles.Staff) {
		return AccessStaff
	}
	return AccessMember
}

func (r *Router) require(s *discordgo.Session, ic *discordgo.InteractionCreate, need Access) bool {
	if need == AccessMember || r.accessOf(s, ic) >= need {
		return true
	}
	ReplyEphemeral(s, ic, "🔒 No tienes permisos para esta acción.")
	return false
}

// checkHierarchy: nadie sanciona a alguien con rol igual o superior, salvo el owner.
func (r *Router) checkHierarchy(s *discordgo.Session, ic *discordgo.InteractionCreate, target int64) error {
	actor := ic.Member.User.ID
	if actor == sf(target) {
		return domain.Validation(domain.CodeInvalidArgument, "no puedes sancionarte a ti mismo")
	}
	if s.State.User != nil && s.State.User.ID == sf(target) {
		return domain.Validation(domain.CodeInvalidArgument, "no puedo sancionarme a mí mismo")
	}
	owner := r.guildOwner(s, ic.GuildID)
	if actor == owner {
		return nil
	}
	if sf(target) == owner {
		return domain.Validation(domain.CodeBelowPermission, "no puedes sancionar al dueño del servidor")
	}
	tm := r.targetMember(s, ic, target)
	if tm == nil {
		// fuera del guild: no hay jerarquía que comparar
		return nil
	}
	if !outranks(r.guildRoles(s, ic.GuildID), ic.Member.Roles, tm.Roles) {
		return domain.Validation(domain.CodeBelowPermission, "no puedes sancionar a alguien con un rol igual o superior al tuyo")
	}
	return nil
}

func (r *Router) targetMember(s *discordgo.Session, ic *discordgo.InteractionCreate, target int64) *discordgo.Member {
	id := sf(target)
	if ic.Type == discordgo.InteractionApplicationCommand {
		if res := ic.ApplicationCommandData().Resolved; res != nil {
			if m, ok := res.Members[id]; ok && m != nil {
				return m
			}
		}
	}
	if m, err := s.State.Member(ic.GuildID, id); err == nil {
		return m
	}
	if m, err := s.GuildMember(ic.GuildID, id); err == nil {
		return m
	}
	return nil
}

func memberPerms(roles []*discordgo.Role, memberRoles []string) int64 {
	var perms int64
	for _, rid := range memberRoles {
		for _, ro := range roles {
			if ro.ID == rid {
				perms |= ro.Permissions
			}
		}
	}
	return perms
}

// topPosition: posición del rol más alto; 0 = sólo @everyone.
func topPosition(roles []*discordgo.Role, memberRoles []string) int {
	top := 0
	for _, rid := range memberRoles {
		for _, ro := range roles {
			if ro.ID == rid && ro.Position > top {
				top = ro.Position
			}
		}
	}
	return top
}

func outranks(roles []*discordgo.Role, actorRoles, targetRoles []string) bool {
	return topPosition(roles, actorRoles) > topPosition(roles, targetRoles)
}

func hasAny(have, want []string) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(have))
	for _, rid := range have {
		set[rid] = struct{}{}
	}
	for _, w := range want {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}

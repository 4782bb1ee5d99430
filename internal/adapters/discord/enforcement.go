package discord

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// códigos JSON de la API de Discord que nos importan
const (
	apiUnknownChannel     = 10003
	apiUnknownMember      = 10007
	apiUnknownUser        = 10013
	apiUnknownWebhook     = 10015
	apiUnknownBan         = 10026
	apiCannotDMUser       = 50007
	apiMissingPermissions = 50013
)

// Enforcer aplica las sanciones en el guild. Cumple service.Enforcer.
type Enforcer struct {
	s       *discordgo.Session
	guildID string
}

func NewEnforcer(s *discordgo.Session, guildID string) *Enforcer {
	return &Enforcer{s: s, guildID: guildID}
}

func (e *Enforcer) Kick(ctx context.Context, subjectID int64, reason string) error {
	err := e.s.GuildMemberDeleteWithReason(e.guildID, sf(subjectID), auditReason(reason), discordgo.WithContext(ctx))
	return classify(ctx, err)
}

func (e *Enforcer) Ban(ctx context.Context, subjectID int64, reason string) error {
	err := e.s.GuildBanCreateWithReason(e.guildID, sf(subjectID), auditReason(reason), 0, discordgo.WithContext(ctx))
	return classify(ctx, err)
}

func (e *Enforcer) Unban(ctx context.Context, subjectID int64, reason string) error {
	err := e.s.GuildBanDelete(e.guildID, sf(subjectID),
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditReason(reason)))
	return classify(ctx, err)
}

// Timeout con until == nil levanta el timeout.
func (e *Enforcer) Timeout(ctx context.Context, subjectID int64, until *time.Time, reason string) error {
	err := e.s.GuildMemberTimeout(e.guildID, sf(subjectID), until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(auditReason(reason)))
	return classify(ctx, err)
}

// Discord corta el audit log reason en 512.
func auditReason(r string) string {
	rs := []rune(r)
	if len(rs) > 512 {
		return string(rs[:512])
	}
	return r
}

// classify traduce errores REST a *domain.Error de KindEnforcement.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return domain.Enforcement(domain.CodeTimeout, err)
	}
	var re *discordgo.RESTError
	if !errors.As(err, &re) {
		return domain.Enforcement(domain.CodePlatformError, err)
	}
	if re.Message != nil {
		switch re.Message.Code {
		case apiMissingPermissions, apiCannotDMUser:
			return domain.Enforcement(domain.CodePermissionDenied, err)
		case apiUnknownMember, apiUnknownUser, apiUnknownBan, apiUnknownChannel:
			return domain.Enforcement(domain.CodeSubjectNotPresent, err)
		}
	}
	if re.Response != nil {
		switch re.Response.StatusCode {
		case http.StatusForbidden:
			return domain.Enforcement(domain.CodePermissionDenied, err)
		case http.StatusNotFound:
			return domain.Enforcement(domain.CodeSubjectNotPresent, err)
		}
	}
	return domain.Enforcement(domain.CodePlatformError, err)
}

func sf(id int64) string { return strconv.FormatInt(id, 10) }

func snowflake(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.Validation(domain.CodeInvalidArgument, "id inválido: %q", s)
	}
	return id, nil
}

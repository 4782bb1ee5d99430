package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// LinkService vincula una cuenta de Discord con su usuario de Roblox.
// El nombre vinculado es el que se adjunta a las sanciones.
type LinkService struct {
	lookup IdentityLookup
	links  LinkRepo
	now    func() time.Time
}

func NewLinkService(lookup IdentityLookup, links LinkRepo, now func() time.Time) *LinkService {
	if now == nil {
		now = time.Now
	}
	return &LinkService{lookup: lookup, links: links, now: now}
}

func (s *LinkService) Link(ctx context.Context, subjectID int64, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", domain.Validation(domain.CodeInvalidArgument, "indica tu usuario de Roblox")
	}
	u, err := s.lookup.UserByName(ctx, username)
	if err != nil {
		return "", err
	}

	// ¿ya está vinculado este discord?
	existing, err := s.links.Get(ctx, subjectID)
	switch {
	case err == nil && existing.ExternalID == u.ExternalID:
		// refresca snapshot
		u.SubjectID = subjectID
		u.LinkedAt = existing.LinkedAt
		if err := s.links.Upsert(ctx, u); err != nil {
			return "", storageErr(err)
		}
		return "✅ Ya estabas vinculado como **" + u.ExternalName + "**.", nil
	case err == nil:
		return "", domain.Conflict(domain.CodeAlreadyLinked, "ya estás vinculado a **%s**. Usa `/unlink` y luego `/link` con la nueva", existing.ExternalName)
	case !errors.Is(err, domain.ErrRecordNotFound):
		return "", storageErr(err)
	}

	u.SubjectID = subjectID
	u.LinkedAt = s.now().UTC()
	if err := s.links.Upsert(ctx, u); err != nil {
		return "", storageErr(err)
	}
	return "✅ Vinculado: **" + u.ExternalName + "**.", nil
}

func (s *LinkService) Unlink(ctx context.Context, subjectID int64) (string, error) {
	ok, err := s.links.Delete(ctx, subjectID)
	if err != nil {
		return "", storageErr(err)
	}
	if !ok {
		return "ℹ️ No tenías una cuenta vinculada.", nil
	}
	return "✅ Listo, desvinculado. Usa `/link` cuando quieras volver a vincular.", nil
}

func (s *LinkService) WhoIs(ctx context.Context, subjectID int64) (string, error) {
	l, err := s.links.Get(ctx, subjectID)
	if err != nil {
		return "", notFoundOr(err, "<@%d> no tiene cuenta de Roblox vinculada", subjectID)
	}
	return fmt.Sprintf(
		"**Discord:** <@%d>\n**Roblox:** `%s` (%d)\n**Display:** %s\n**Vinculado:** <t:%d:R>",
		l.SubjectID, l.ExternalName, l.ExternalID, l.DisplayName, l.LinkedAt.Unix(),
	), nil
}

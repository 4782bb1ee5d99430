package roblox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jose-valero/kronoz-mod-bot/internal/domain"
)

// UserByName resuelve username -> cuenta. Cumple service.IdentityLookup.
func (c *Client) UserByName(ctx context.Context, username string) (domain.AccountLink, error) {
	var dto usernamesDTO
	err := c.doJSON(ctx, "POST", "/usernames/users", usernamesRequest{Usernames: []string{username}}, &dto)
	if err != nil {
		return domain.AccountLink{}, lookupErr(ctx, err, username)
	}
	for _, u := range dto.Data {
		if strings.EqualFold(u.RequestedUsername, username) || strings.EqualFold(u.Name, username) {
			return domain.AccountLink{ExternalID: u.ID, ExternalName: u.Name, DisplayName: u.DisplayName}, nil
		}
	}
	return domain.AccountLink{}, domain.NotFound("no encontré el usuario de Roblox **%s**", username)
}

// UserByID sirve para refrescar el display name de un link existente.
func (c *Client) UserByID(ctx context.Context, id int64) (domain.AccountLink, error) {
	var dto userDTO
	if err := c.doJSON(ctx, "GET", fmt.Sprintf("/users/%d", id), nil, &dto); err != nil {
		return domain.AccountLink{}, lookupErr(ctx, err, fmt.Sprint(id))
	}
	return domain.AccountLink{ExternalID: dto.ID, ExternalName: dto.Name, DisplayName: dto.DisplayName}, nil
}

func lookupErr(ctx context.Context, err error, who string) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return domain.NotFound("no encontré el usuario de Roblox **%s**", who)
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		return domain.Enforcement(domain.CodeTimeout, err)
	}
	return domain.Enforcement(domain.CodePlatformError, err)
}

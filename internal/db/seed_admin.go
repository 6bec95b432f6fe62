package db

import (
	"context"
	"errors"

	"github.com/geocoder89/centinel/internal/config"
	"github.com/geocoder89/centinel/internal/domain/client"
)

type ClientRegistrar interface {
	Register(ctx context.Context, username, password string) (client.Client, error)
}

type RoleAssigner interface {
	AssignRole(ctx context.Context, username, role string) error
}

// EnsureAdminClient registers the configured admin client (with its artifact
// directories) when it does not exist yet and tags it with the admin role.
// The role is informational; no endpoint checks it.
func EnsureAdminClient(ctx context.Context, reg ClientRegistrar, roles RoleAssigner, cfg config.Config) error {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil
	}

	_, err := reg.Register(ctx, cfg.AdminUsername, cfg.AdminPassword)

	if err != nil && !errors.Is(err, client.ErrDuplicateUsername) {
		return err
	}

	return roles.AssignRole(ctx, cfg.AdminUsername, client.RoleAdmin)
}

package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/centinel/internal/domain/client"
	"github.com/jackc/pgx/v5"
)

// Roles live on the same repo as clients because the link table joins both.

func (r *ClientsRepo) EnsureRole(ctx context.Context, name string) (role client.Role, err error) {
	err = r.prom.ObserveDB("roles.ensure", func() error {
		return r.pool.QueryRow(ctx, `
			INSERT INTO roles (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, name
		`, name).Scan(&role.ID, &role.Name)
	})
	return role, err
}

func (r *ClientsRepo) AssignRole(ctx context.Context, username, roleName string) error {
	role, err := r.EnsureRole(ctx, roleName)

	if err != nil {
		return err
	}

	return r.prom.ObserveDB("roles.assign", func() error {
		tag, err := r.pool.Exec(ctx, `
			INSERT INTO client_roles (client_id, role_id)
			SELECT c.id, $2 FROM clients c WHERE c.username = $1
			ON CONFLICT DO NOTHING
		`, username, role.ID)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			// either already assigned or no such client
			var exists bool
			if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM clients WHERE username = $1)`, username).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return client.ErrNotFound
			}
		}
		return nil
	})
}

func (r *ClientsRepo) RolesFor(ctx context.Context, username string) ([]client.Role, error) {
	var roles []client.Role

	err := r.prom.ObserveDB("roles.for_client", func() error {
		var clientID int64
		err := r.pool.QueryRow(ctx, `SELECT id FROM clients WHERE username = $1`, username).Scan(&clientID)

		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return client.ErrNotFound
			}
			return err
		}

		rows, err := r.pool.Query(ctx, `
			SELECT r.id, r.name
			FROM roles r
			JOIN client_roles cr ON cr.role_id = r.id
			WHERE cr.client_id = $1
			ORDER BY r.name
		`, clientID)

		if err != nil {
			return err
		}

		roles, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (client.Role, error) {
			var role client.Role
			err := row.Scan(&role.ID, &role.Name)
			return role, err
		})
		return err
	})

	if err != nil {
		return nil, err
	}
	return roles, nil
}

package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is idempotent so it can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS clients (
	id                 BIGSERIAL PRIMARY KEY,
	username           VARCHAR(36) NOT NULL,
	password_hash      VARCHAR(64) NOT NULL,
	last_ip            VARCHAR(20),
	last_seen          TIMESTAMPTZ,
	registered_date    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	has_given_consent  BOOLEAN NOT NULL DEFAULT FALSE,
	date_given_consent TIMESTAMPTZ,
	is_vpn             BOOLEAN NOT NULL DEFAULT FALSE,
	country            VARCHAR(2)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_clients_username ON clients(username);

CREATE TABLE IF NOT EXISTS roles (
	id   BIGSERIAL PRIMARY KEY,
	name VARCHAR(20) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS client_roles (
	client_id BIGINT NOT NULL REFERENCES clients(id) ON DELETE CASCADE,
	role_id   BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
	PRIMARY KEY (client_id, role_id)
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)

	if err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

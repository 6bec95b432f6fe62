package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/centinel/internal/domain/client"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ClientsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewClientsRepo(pool *pgxpool.Pool, prom *observability.Prom) *ClientsRepo {
	return &ClientsRepo{pool: pool, prom: prom}
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}

const clientColumns = `id, username, password_hash, COALESCE(last_ip, ''), last_seen, registered_date,
	has_given_consent, date_given_consent, is_vpn, COALESCE(country, '')`

func scanClient(row pgx.Row) (client.Client, error) {
	var c client.Client

	err := row.Scan(
		&c.ID,
		&c.Username,
		&c.PasswordHash,
		&c.LastIP,
		&c.LastSeen,
		&c.RegisteredDate,
		&c.HasGivenConsent,
		&c.DateGivenConsent,
		&c.IsVPN,
		&c.Country,
	)
	return c, err
}

func (r *ClientsRepo) FindByUsername(ctx context.Context, username string) (c client.Client, err error) {
	err = r.prom.ObserveDB("clients.find_by_username", func() error {
		var scanErr error
		c, scanErr = scanClient(r.pool.QueryRow(ctx,
			`SELECT `+clientColumns+` FROM clients WHERE username = $1`,
			username,
		))
		return scanErr
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return client.Client{}, client.ErrNotFound
		}

		return client.Client{}, err
	}
	return c, nil
}

// Create inserts the client and runs onCreate before committing. If onCreate
// fails the insert is rolled back, so no credential exists without storage.
func (r *ClientsRepo) Create(ctx context.Context, c client.Client, onCreate func(client.Client) error) (client.Client, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

	if err != nil {
		return client.Client{}, fmt.Errorf("begin tx: %w", err)
	}

	defer func() { _ = tx.Rollback(ctx) }()

	err = r.prom.ObserveDB("clients.create", func() error {
		return tx.QueryRow(ctx, `
			INSERT INTO clients (username, password_hash, registered_date, has_given_consent, is_vpn)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, c.Username, c.PasswordHash, c.RegisteredDate, c.HasGivenConsent, c.IsVPN).Scan(&c.ID)
	})

	if err != nil {
		if IsUniqueViolation(err) {
			return client.Client{}, client.ErrDuplicateUsername
		}

		return client.Client{}, err
	}

	if onCreate != nil {
		if err := onCreate(c); err != nil {
			return client.Client{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return client.Client{}, fmt.Errorf("commit client: %w", err)
	}

	return c, nil
}

func (r *ClientsRepo) ListUsernames(ctx context.Context) ([]string, error) {
	var names []string

	err := r.prom.ObserveDB("clients.list_usernames", func() error {
		rows, err := r.pool.Query(ctx, `SELECT username FROM clients ORDER BY id`)

		if err != nil {
			return err
		}

		names, err = pgx.CollectRows(rows, pgx.RowTo[string])
		return err
	})

	if err != nil {
		return nil, err
	}

	if names == nil {
		names = []string{}
	}
	return names, nil
}

func (r *ClientsRepo) Touch(ctx context.Context, username string, a client.Activity) error {
	return r.prom.ObserveDB("clients.touch", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE clients
			SET last_seen = $2, last_ip = $3, country = NULLIF($4, '')
			WHERE username = $1
		`, username, a.SeenAt, a.IP, a.Country)

		if err != nil {
			return err
		}

		if tag.RowsAffected() == 0 {
			return client.ErrNotFound
		}
		return nil
	})
}

// Package auth verifies client credentials and registers new clients. It is the
// only place that knows a registration spans both the identity store and the
// artifact directories.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/geocoder89/centinel/internal/artifacts"
	"github.com/geocoder89/centinel/internal/domain/client"
	"github.com/geocoder89/centinel/internal/geo"
	"github.com/geocoder89/centinel/internal/observability"
	"github.com/geocoder89/centinel/internal/security"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrBadRequest   = errors.New("bad request")
	ErrConflict     = errors.New("conflict")
)

type ClientStore interface {
	FindByUsername(ctx context.Context, username string) (client.Client, error)
	Create(ctx context.Context, c client.Client, onCreate func(client.Client) error) (client.Client, error)
	ListUsernames(ctx context.Context) ([]string, error)
	Touch(ctx context.Context, username string, a client.Activity) error
}

// Provisioner creates the per-client storage. The returned undo removes only
// what the call created.
type Provisioner interface {
	Provision(username string) (undo func() error, err error)
}

type Gateway struct {
	clients ClientStore
	storage Provisioner
	geo     *geo.Resolver
	log     *slog.Logger
	prom    *observability.Prom

	now func() time.Time
}

func NewGateway(clients ClientStore, storage Provisioner, resolver *geo.Resolver, log *slog.Logger, prom *observability.Prom) *Gateway {
	if log == nil {
		log = slog.Default()
	}

	return &Gateway{
		clients: clients,
		storage: storage,
		geo:     resolver,
		log:     log,
		prom:    prom,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Verify checks username and password. Bad credentials are reported through
// ok, never through err; err means the store could not be consulted.
func (g *Gateway) Verify(ctx context.Context, username, password string) (client.Client, bool, error) {
	ctx, span := observability.StartSpan(ctx, "auth.verify")
	defer span.End()

	if username == "" || password == "" {
		return client.Client{}, false, nil
	}

	c, err := g.clients.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			security.BurnCompare(password)
			return client.Client{}, false, nil
		}
		return client.Client{}, false, fmt.Errorf("find client: %w", err)
	}

	if err := security.CheckPassword(c.PasswordHash, password); err != nil {
		return client.Client{}, false, nil
	}

	return c, true, nil
}

// Authenticate is Verify with every failure folded into ErrUnauthorized, except
// storage errors which are returned as-is.
func (g *Gateway) Authenticate(ctx context.Context, username, password string) (client.Client, error) {
	c, ok, err := g.Verify(ctx, username, password)

	switch {
	case err != nil:
		g.prom.ObserveAuth("error")
		return client.Client{}, err
	case !ok:
		g.prom.ObserveAuth("denied")
		return client.Client{}, ErrUnauthorized
	}

	g.prom.ObserveAuth("ok")
	return c, nil
}

// Register creates the client record and its artifact directories as one unit.
func (g *Gateway) Register(ctx context.Context, username, password string) (client.Client, error) {
	if username == "" || password == "" {
		return client.Client{}, fmt.Errorf("%w: username and password are required", ErrBadRequest)
	}

	if len(username) > client.MaxUsernameLen {
		return client.Client{}, fmt.Errorf("%w: username longer than %d characters", ErrBadRequest, client.MaxUsernameLen)
	}

	if !artifacts.ValidUsername(username) {
		return client.Client{}, fmt.Errorf("%w: username is not allowed", ErrBadRequest)
	}

	ctx, span := observability.StartSpan(ctx, "auth.register")
	defer span.End()

	hash, err := security.HashPassword(password)
	if err != nil {
		if errors.Is(err, security.ErrPasswordTooLong) {
			return client.Client{}, fmt.Errorf("%w: %w", ErrBadRequest, err)
		}
		return client.Client{}, fmt.Errorf("hash password: %w", err)
	}

	var undo func() error

	created, err := g.clients.Create(ctx, client.New(username, hash), func(client.Client) error {
		u, err := g.storage.Provision(username)
		if err != nil {
			return fmt.Errorf("provision storage: %w", err)
		}
		undo = u
		return nil
	})

	if err != nil {
		// provisioning succeeded but the record did not make it
		if undo != nil {
			if uerr := undo(); uerr != nil {
				g.log.ErrorContext(ctx, "could not remove directories of failed registration", "username", username, "err", uerr)
			}
		}

		if errors.Is(err, client.ErrDuplicateUsername) {
			return client.Client{}, fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return client.Client{}, fmt.Errorf("register client: %w", err)
	}

	g.log.InfoContext(ctx, "client registered", "username", username)

	return created, nil
}

// RecordActivity refreshes last-seen metadata after an authenticated request.
// It never fails the request.
func (g *Gateway) RecordActivity(ctx context.Context, c client.Client, remoteIP string) {
	country := g.geo.CountryFor(remoteIP)
	if country == geo.Unknown {
		country = ""
	}

	ip := geo.AggregateIP(remoteIP)
	if ip == geo.Unknown {
		ip = ""
	}

	err := g.clients.Touch(ctx, c.Username, client.Activity{
		IP:      ip,
		Country: country,
		SeenAt:  g.now(),
	})

	if err != nil {
		g.log.WarnContext(ctx, "could not record client activity", "err", err)
	}
}

// ListClients returns every registered username in registration order.
func (g *Gateway) ListClients(ctx context.Context) ([]string, error) {
	names, err := g.clients.ListUsernames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return names, nil
}

package memory

import (
	"context"
	"sync"

	"github.com/geocoder89/centinel/internal/domain/client"
)

// ClientsRepo keeps identities in process memory. Used for IDENTITY_STORE=memory
// and by tests; behaves like the postgres repo, including rollback on onCreate failure.
type ClientsRepo struct {
	mu     sync.RWMutex
	nextID int64
	items  map[string]client.Client // username -> client
	order  []string
	roles  map[string]map[string]struct{} // username -> role names
	known  map[string]struct{}            // role names

	// usernames whose onCreate is still running
	pending map[string]struct{}
}

func NewClientsRepo() *ClientsRepo {
	return &ClientsRepo{
		items: make(map[string]client.Client),
		roles: make(map[string]map[string]struct{}),
		known: make(map[string]struct{}),

		pending: make(map[string]struct{}),
	}
}

func (r *ClientsRepo) FindByUsername(_ context.Context, username string) (client.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[username]
	if !ok {
		return client.Client{}, client.ErrNotFound
	}
	return c, nil
}

// Create reserves the username before running onCreate without holding the
// lock, so lookups are not blocked on provisioning. A concurrent registration
// of a reserved username fails as a duplicate.
func (r *ClientsRepo) Create(_ context.Context, c client.Client, onCreate func(client.Client) error) (client.Client, error) {
	r.mu.Lock()

	_, exists := r.items[c.Username]
	_, reserved := r.pending[c.Username]
	if exists || reserved {
		r.mu.Unlock()
		return client.Client{}, client.ErrDuplicateUsername
	}

	r.nextID++
	c.ID = r.nextID
	r.pending[c.Username] = struct{}{}

	r.mu.Unlock()

	var err error
	if onCreate != nil {
		err = onCreate(c)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.pending, c.Username)

	if err != nil {
		return client.Client{}, err
	}

	r.items[c.Username] = c
	r.order = append(r.order, c.Username)

	return c, nil
}

func (r *ClientsRepo) ListUsernames(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out, nil
}

func (r *ClientsRepo) Touch(_ context.Context, username string, a client.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.items[username]
	if !ok {
		return client.ErrNotFound
	}

	seen := a.SeenAt
	c.LastSeen = &seen
	c.LastIP = a.IP
	c.Country = a.Country
	r.items[username] = c

	return nil
}

func (r *ClientsRepo) EnsureRole(_ context.Context, name string) (client.Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.known[name] = struct{}{}
	return client.Role{Name: name}, nil
}

func (r *ClientsRepo) AssignRole(_ context.Context, username, role string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[username]; !ok {
		return client.ErrNotFound
	}

	r.known[role] = struct{}{}

	set, ok := r.roles[username]
	if !ok {
		set = make(map[string]struct{})
		r.roles[username] = set
	}
	set[role] = struct{}{}

	return nil
}

func (r *ClientsRepo) RolesFor(_ context.Context, username string) ([]client.Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.items[username]; !ok {
		return nil, client.ErrNotFound
	}

	out := make([]client.Role, 0, len(r.roles[username]))
	for name := range r.roles[username] {
		out = append(out, client.Role{Name: name})
	}
	return out, nil
}

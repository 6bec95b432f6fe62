package client

import (
	"errors"
	"time"
)

// Client is one registered measurement agent.
type Client struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	PasswordHash     string     `json:"-"` // never expose hash in JSON
	LastIP           string     `json:"lastIp,omitempty"`
	LastSeen         *time.Time `json:"lastSeen,omitempty"`
	RegisteredDate   time.Time  `json:"registeredDate"`
	HasGivenConsent  bool       `json:"hasGivenConsent"`
	DateGivenConsent *time.Time `json:"dateGivenConsent,omitempty"`
	IsVPN            bool       `json:"isVpn"`
	Country          string     `json:"country,omitempty"`
}

// Role is a named permission tag. Clients and roles are linked many-to-many
// through the client_roles table; nothing reads the link for authorization yet.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

const RoleAdmin = "admin"

// MaxUsernameLen matches the uuid-sized username column.
const MaxUsernameLen = 36

// Activity is the auxiliary metadata refreshed on authenticated access.
type Activity struct {
	IP      string
	Country string
	SeenAt  time.Time
}

var (
	ErrNotFound          = errors.New("client not found")
	ErrDuplicateUsername = errors.New("username already registered")
)

type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=36"`
	Password string `json:"password" binding:"required"`
}

// New builds a fresh record for a registration.
func New(username, passwordHash string) Client {
	return Client{
		Username:       username,
		PasswordHash:   passwordHash,
		RegisteredDate: time.Now().UTC(),
	}
}

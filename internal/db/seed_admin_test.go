package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/geocoder89/centinel/internal/config"
	"github.com/geocoder89/centinel/internal/domain/client"
)

type fakeRegistrar struct {
	err   error
	calls int
}

func (f *fakeRegistrar) Register(context.Context, string, string) (client.Client, error) {
	f.calls++
	return client.Client{}, f.err
}

type fakeAssigner struct {
	assigned map[string]string
}

func (f *fakeAssigner) AssignRole(_ context.Context, username, role string) error {
	if f.assigned == nil {
		f.assigned = map[string]string{}
	}
	f.assigned[username] = role
	return nil
}

func TestEnsureAdminClient(t *testing.T) {
	cfg := config.Config{AdminUsername: "admin", AdminPassword: "pw"}

	tests := []struct {
		name    string
		regErr  error
		wantErr bool
	}{
		{"fresh", nil, false},
		{"already registered", fmt.Errorf("conflict: %w", client.ErrDuplicateUsername), false},
		{"store down", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := &fakeRegistrar{err: tt.regErr}
			roles := &fakeAssigner{}

			err := EnsureAdminClient(context.Background(), reg, roles, cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}

			if !tt.wantErr && roles.assigned["admin"] != client.RoleAdmin {
				t.Fatalf("admin role not assigned: %v", roles.assigned)
			}
		})
	}
}

func TestEnsureAdminClient_DisabledWithoutCredentials(t *testing.T) {
	reg := &fakeRegistrar{}

	if err := EnsureAdminClient(context.Background(), reg, &fakeAssigner{}, config.Config{AdminUsername: "admin"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reg.calls != 0 {
		t.Fatalf("expected no registration without a password")
	}
}

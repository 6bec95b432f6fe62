package security

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret-pass")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if hash == "s3cret-pass" {
		t.Fatalf("expected password to be hashed")
	}

	if err := CheckPassword(hash, "s3cret-pass"); err != nil {
		t.Fatalf("CheckPassword rejected the right password: %v", err)
	}

	if err := CheckPassword(hash, "wrong"); err == nil {
		t.Fatalf("CheckPassword accepted a wrong password")
	}
}

func TestHashPassword_SaltsEachHash(t *testing.T) {
	a, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	b, err := HashPassword("same")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}

	if a == b {
		t.Fatalf("expected distinct salted hashes, got identical %q", a)
	}
}

func TestHashPassword_TooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("x", 73))
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestBurnCompare_DoesNotPanic(t *testing.T) {
	BurnCompare("anything")
	BurnCompare("")
}

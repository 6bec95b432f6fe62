package artifacts

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestSafeJoin(t *testing.T) {
	root := filepath.Join("srv", "experiments")

	tests := []struct {
		name    string
		segment string
		want    string
		wantErr bool
	}{
		{name: "plain", segment: "ping", want: filepath.Join(root, "ping")},
		{name: "parent", segment: "../secret", wantErr: true},
		{name: "embedded parent", segment: "a/../../b", wantErr: true},
		{name: "double dot anywhere", segment: "a..b", wantErr: true},
		{name: "absolute", segment: "/etc/passwd", wantErr: true},
		{name: "backslash root", segment: `\windows`, wantErr: true},
		{name: "empty", segment: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SafeJoin(root, tc.segment)

			if tc.wantErr {
				if !errors.Is(err, ErrUnsafePath) {
					t.Fatalf("SafeJoin(%q) err = %v, want ErrUnsafePath", tc.segment, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("SafeJoin(%q) unexpected err: %v", tc.segment, err)
			}
			if got != tc.want {
				t.Fatalf("SafeJoin(%q) = %q, want %q", tc.segment, got, tc.want)
			}
		})
	}
}

func TestValidUsername(t *testing.T) {
	valid := []string{"probe-1", "3f0e2a4c-1b7d-4f0e-9a51-2c8f8d7e6b10", "a.b"}
	invalid := []string{"", "..", ".", "a/b", `a\b`, "/root", " padded", "x..y", "a\x00b", "tab\there", "bell\x07", "del\x7f"}

	for _, u := range valid {
		if !ValidUsername(u) {
			t.Fatalf("expected %q to be valid", u)
		}
	}

	for _, u := range invalid {
		if ValidUsername(u) {
			t.Fatalf("expected %q to be invalid", u)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "result.json", want: "result.json"},
		{in: "My cool result.json", want: "My_cool_result.json"},
		{in: "../../etc/passwd", want: "etc_passwd"},
		{in: `..\..\boot.ini`, want: "boot.ini"},
		{in: "_private.json", want: "private.json"},
		{in: ".hidden.json", want: "hidden.json"},
		{in: "résumé.json", want: "resume.json"},
		{in: "a;rm -rf.json", want: "arm_-rf.json"},
		{in: "日本語", want: ""},
		{in: "...", want: ""},
	}

	for _, tc := range tests {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestKeyedLocks_ReleaseDropsEntries(t *testing.T) {
	k := newKeyedLocks()

	unlockA := k.Lock("a")
	unlockB := k.RLock("b")
	unlockB2 := k.RLock("b")

	if k.size() != 2 {
		t.Fatalf("size = %d, want 2", k.size())
	}

	unlockA()
	unlockB()
	unlockB2()

	if k.size() != 0 {
		t.Fatalf("size = %d, want 0 after release", k.size())
	}
}

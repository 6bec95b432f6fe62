package artifacts

import (
	"errors"
	"path/filepath"
	"strings"
)

var ErrUnsafePath = errors.New("unsafe path segment")

// checkSegment rejects untrusted input before it is ever joined onto a root.
// Order matters: parent references first, then anything rooted.
func checkSegment(segment string) error {
	if segment == "" {
		return ErrUnsafePath
	}

	if strings.Contains(segment, "..") {
		return ErrUnsafePath
	}

	if strings.HasPrefix(segment, "/") || strings.HasPrefix(segment, `\`) ||
		filepath.IsAbs(segment) || filepath.VolumeName(segment) != "" {
		return ErrUnsafePath
	}

	return nil
}

// SafeJoin joins an untrusted segment onto a trusted root, refusing anything
// that could climb out of it. Nothing is normalised before the checks run.
func SafeJoin(root, segment string) (string, error) {
	if err := checkSegment(segment); err != nil {
		return "", err
	}

	return filepath.Join(root, segment), nil
}

// clientDir resolves the directory owned by username under root. A username
// is a single path component, so separators are refused as well.
func clientDir(root, username string) (string, error) {
	if strings.ContainsAny(username, `/\`) {
		return "", ErrUnsafePath
	}

	return SafeJoin(root, username)
}

// ValidUsername reports whether username can name a client directory.
func ValidUsername(username string) bool {
	_, err := clientDir("", username)
	if err != nil || username == "." || strings.TrimSpace(username) != username {
		return false
	}

	return strings.IndexFunc(username, isControl) < 0
}

// isControl matches the ASCII control range, including DEL.
func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

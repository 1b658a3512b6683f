// Package auth implements the shared-secret gate in front of mutating API calls.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
)

// DefaultPasskeyPath is where the shared secret lives unless configured otherwise.
const DefaultPasskeyPath = "./key/pass.key"

var (
	// ErrUnauthorized is returned when a presented token does not match the passkey.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPasskeyUnavailable is returned when the passkey file cannot be read.
	ErrPasskeyUnavailable = errors.New("passkey unavailable")
)

// KeyReader supplies the current shared secret.
type KeyReader interface {
	Read() (string, error)
}

// FilePasskey reads the shared secret from a file.
type FilePasskey struct {
	Path string
}

// Read returns the file content verbatim. A trailing newline is part of the secret.
func (f FilePasskey) Read() (string, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPasskeyUnavailable, err)
	}
	return string(content), nil
}

// Gate checks presented tokens against a KeyReader.
type Gate struct {
	Keys KeyReader
}

// NewGate returns a gate reading the passkey file at path.
func NewGate(path string) *Gate {
	return &Gate{Keys: FilePasskey{Path: path}}
}

// Authorize re-reads the passkey and compares it byte for byte with token.
func (g *Gate) Authorize(token string) error {
	key, err := g.Keys.Read()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Package engine implements the folio storage engine: the working/backup JSON files,
// the remote origin fallback and the dense-id mutations on the catalogue.
package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is returned when a store file cannot be opened, read or written.
	ErrIO = errors.New("store io failure")
	// ErrParse is returned when a store file or origin payload is not a valid collection array.
	ErrParse = errors.New("malformed collection data")
	// ErrNetwork is returned when the remote origin cannot be reached or answers with an error.
	ErrNetwork = errors.New("remote origin unavailable")
	// ErrIndex is returned when an id does not address a position in the catalogue.
	ErrIndex = errors.New("collection id out of range")
	// ErrNoSource is returned by LoadWithFallback when both the working file and the origin failed.
	ErrNoSource = errors.New("no collection source available")
)

// IndexError reports an id outside [0, Len).
type IndexError struct {
	ID  int
	Len int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("collection id %d out of range [0, %d)", e.ID, e.Len)
}

// Unwrap lets errors.Is(err, ErrIndex) match.
func (e *IndexError) Unwrap() error {
	return ErrIndex
}

// Source tells where Initialize took the catalogue from.
type Source int

const (
	SourceNone Source = iota
	SourceLocal
	SourceRemote
	SourcePlaceholder
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	case SourcePlaceholder:
		return "placeholder"
	default:
		return "none"
	}
}

// Paths locates the two local copies of the catalogue.
type Paths struct {
	Working string
	Backup  string
}

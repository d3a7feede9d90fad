package rewind

import (
	"context"
	"errors"
)

// Archiver persists exported History records under a name. The Bus never
// reads an archive back; Get exists for audit tooling
type Archiver interface {
	Get(context.Context, string) ([]Record, error)
	Put(context.Context, string, []Record) error
	Delete(context.Context, string) error
}

var (
	// ErrArchiveNotFound indicates no records were archived under a name
	ErrArchiveNotFound = errors.New("archived history not found")

	// ErrArchiveNameRequired indicates an empty archive name
	ErrArchiveNameRequired = errors.New("archive name is required")
)

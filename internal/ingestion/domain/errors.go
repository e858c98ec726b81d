package ingestion

import (
	"errors"
	"fmt"
)

// ErrDuplicateFile is the sentinel behind DuplicateFileError, for errors.Is checks.
var ErrDuplicateFile = errors.New("ingestion: duplicate file")

// ErrFileNotFound indicates an unknown file id.
var ErrFileNotFound = errors.New("ingestion: file not found")

// ErrInvalidCategory indicates an unknown declared file category.
var ErrInvalidCategory = errors.New("ingestion: invalid file category")

// DuplicateFileError reports a re-submission of already-processed content.
type DuplicateFileError struct {
	Hash       string
	ExistingID string
}

func (e *DuplicateFileError) Error() string {
	return fmt.Sprintf("ingestion: duplicate file (hash %s already ingested as %s)", e.Hash, e.ExistingID)
}

func (e *DuplicateFileError) Unwrap() error { return ErrDuplicateFile }

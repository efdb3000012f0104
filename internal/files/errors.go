package files

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("files: record not found")

// StorageError reports an attachment I/O failure for one content id.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("files: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("files: %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

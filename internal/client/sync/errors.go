package sync

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrConflictsDetected  = errors.New("conflicts detected")
)

// ConflictsDetectedError blocks a manual push or pull. Paths lists every
// path that differs on both sides.
type ConflictsDetectedError struct {
	Paths []string
}

func (e *ConflictsDetectedError) Error() string {
	return fmt.Sprintf("%d conflicts detected, resolve them first: %s", len(e.Paths), strings.Join(e.Paths, ", "))
}

func (e *ConflictsDetectedError) Is(target error) bool {
	return target == ErrConflictsDetected
}

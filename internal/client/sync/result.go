package sync

import (
	"fmt"
	"time"
)

// SyncResult summarizes one pass.
type SyncResult struct {
	Added     int
	Modified  int
	Deleted   int
	Conflicts []string
	Errors    []string
	Duration  time.Duration
}

func (r *SyncResult) Success() bool {
	return len(r.Errors) == 0
}

// Unchanged reports whether the pass transferred nothing.
func (r *SyncResult) Unchanged() bool {
	return r.Added == 0 && r.Modified == 0 && r.Deleted == 0
}

func (r *SyncResult) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

func (r *SyncResult) String() string {
	return fmt.Sprintf("added=%d modified=%d deleted=%d conflicts=%d errors=%d",
		r.Added, r.Modified, r.Deleted, len(r.Conflicts), len(r.Errors))
}

// DiffResult is what a manual push or pull would do.
type DiffResult struct {
	LocalOnly  []string
	RemoteOnly []string
	Conflicts  []string
}

func (d *DiffResult) Empty() bool {
	return len(d.LocalOnly) == 0 && len(d.RemoteOnly) == 0 && len(d.Conflicts) == 0
}

package relocate

import (
	"errors"
	"time"
)

// ErrNotRegular is returned in Result.Err when the source path exists but is
// not a regular file (a directory, socket, device, ...).
var ErrNotRegular = errors.New("not a regular file")

// Outcome describes what happened to a single relocation attempt.
type Outcome int

const (
	// Relocated means the file was copied to the target directory and the
	// original was deleted.
	Relocated Outcome = iota
	// Duplicate means the path was already in the seen-set.
	Duplicate
	// Vanished means the source no longer existed when processing began.
	Vanished
	// Skipped means the path does not match the naming rule or is not a
	// regular file.
	Skipped
	// Failed means the settle wait, copy, or delete failed. Result.Err holds
	// the cause.
	Failed
)

// String returns a human-readable representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case Relocated:
		return "relocated"
	case Duplicate:
		return "duplicate"
	case Vanished:
		return "vanished"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Trigger identifies what caused a relocation attempt.
type Trigger string

const (
	TriggerSweep  Trigger = "sweep"
	TriggerCreate Trigger = "create"
	TriggerModify Trigger = "modify"
	TriggerPoll   Trigger = "poll"
)

// Result is the outcome of one Relocate call.
type Result struct {
	// Path is the source path that was inspected.
	Path string
	// Target is the destination path inside the target directory.
	Target string
	// Trigger is what caused the attempt.
	Trigger Trigger
	// Outcome is what happened.
	Outcome Outcome
	// Bytes is the number of bytes copied (Relocated only).
	Bytes int64
	// At is when the attempt finished.
	At time.Time
	// Err is set for Failed outcomes and for sources that are not regular files.
	Err error
}

// Stats holds running counters for a Relocator.
type Stats struct {
	Relocated  int
	Duplicates int
	Vanished   int
	Skipped    int
	Failed     int
}

// SweepSummary reports the result of a single directory sweep.
type SweepSummary struct {
	Scanned   int
	Relocated int
	Skipped   int
	Failed    int
}

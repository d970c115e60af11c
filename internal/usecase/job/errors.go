// Package job provides the registration use case: the single write entry
// point through which new jobs enter the store.
package job

import (
	"errors"
	"fmt"

	"pagefeed/internal/domain/entity"
)

// Sentinel errors for job use case operations.
var (
	// ErrDuplicateJob indicates that a job with the same source URL and
	// format is already registered.
	ErrDuplicateJob = errors.New("job for this source and format already exists")
)

// DuplicateError carries the job that a registration collided with.
type DuplicateError struct {
	Job *entity.Job
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateJob, e.Job.ID)
}

// Is lets callers match any DuplicateError with ErrDuplicateJob.
func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicateJob
}

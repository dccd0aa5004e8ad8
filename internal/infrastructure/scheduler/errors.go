package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a run is triggered on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")

	// ErrRunInProgress is returned when a manual run overlaps a scheduled one
	ErrRunInProgress = errors.New("bulk billing run already in progress")
)

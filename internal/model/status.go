package model

// TaskStatus represents the lifecycle state of a download task
type TaskStatus string

const (
	// TaskStatusPending means the task is registered but its worker has not started
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusProcessing covers every download attempt and the reconcile step
	TaskStatusProcessing TaskStatus = "processing"

	// TaskStatusCompleted means a result file exists on disk
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusError means the task failed with an error
	TaskStatusError TaskStatus = "error"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if a worker is currently driving the task
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusProcessing
}

// IsFinished returns true if the task is in a terminal state (completed or error)
func (ts TaskStatus) IsFinished() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusError
}

// rank orders statuses along the only allowed direction of travel.
func (ts TaskStatus) rank() int {
	switch ts {
	case TaskStatusPending:
		return 0
	case TaskStatusProcessing:
		return 1
	case TaskStatusCompleted, TaskStatusError:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from ts to next respects
// pending -> processing -> {completed | error}.
func (ts TaskStatus) CanTransitionTo(next TaskStatus) bool {
	if ts.IsFinished() || next.rank() < 0 {
		return false
	}
	// completion needs a worker to have run
	if next == TaskStatusCompleted {
		return ts == TaskStatusProcessing
	}
	return next.rank() >= ts.rank()
}

package model

import "time"

// TaskPatch is a partial update merged into an existing Task. Nil fields are
// left untouched, so concurrent writers only overwrite what they own.
type TaskPatch struct {
	Status   *TaskStatus
	Progress *int
	Message  *string
	Info     *VideoInfo
	Result   *ResultFile
}

// UpdateFunc receives patches for a single task in the order they are issued
type UpdateFunc func(TaskPatch)

// MessagePatch overwrites the message only
func MessagePatch(message string) TaskPatch {
	return TaskPatch{Message: &message}
}

// ProgressPatch updates progress and message together
func ProgressPatch(progress int, message string) TaskPatch {
	return TaskPatch{Progress: &progress, Message: &message}
}

// StatusPatch moves the task to status with a new message
func StatusPatch(status TaskStatus, message string) TaskPatch {
	return TaskPatch{Status: &status, Message: &message}
}

// CompletedPatch is the single terminal success transition
func CompletedPatch(message string, result ResultFile) TaskPatch {
	status := TaskStatusCompleted
	progress := 100
	return TaskPatch{Status: &status, Progress: &progress, Message: &message, Result: &result}
}

// ErrorPatch is the single terminal failure transition. A result is attached
// only when a file already exists on disk.
func ErrorPatch(message string, result *ResultFile) TaskPatch {
	status := TaskStatusError
	return TaskPatch{Status: &status, Message: &message, Result: result}
}

// Apply merges p into t. It returns false and leaves t untouched when t is
// terminal or the patch would move the status backwards. Progress never
// decreases and is pinned to 100 on completion.
func (p TaskPatch) Apply(t *Task) bool {
	if t.Status.IsFinished() {
		return false
	}

	status := t.Status
	if p.Status != nil {
		if !t.Status.CanTransitionTo(*p.Status) {
			return false
		}
		status = *p.Status
	}

	progress := t.Progress
	if p.Progress != nil {
		progress = clampPercent(*p.Progress)
		if progress < t.Progress {
			progress = t.Progress
		}
	}
	if status == TaskStatusCompleted {
		progress = 100
	}

	t.Status = status
	t.Progress = progress
	if p.Message != nil {
		t.Message = *p.Message
	}
	if p.Info != nil {
		info := *p.Info
		t.Info = &info
	}
	if p.Result != nil {
		result := *p.Result
		t.Result = &result
	}
	t.UpdatedAt = time.Now()
	return true
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// FetchStatus is the extractor-reported phase of a transfer
type FetchStatus string

const (
	FetchStarting       FetchStatus = "starting"
	FetchDownloading    FetchStatus = "downloading"
	FetchPostProcessing FetchStatus = "post_processing"
	FetchFinished       FetchStatus = "finished"
	FetchError          FetchStatus = "error"
)

// FetchProgress is one progress event emitted by the extractor while transferring
type FetchProgress struct {
	Status          FetchStatus
	DownloadedBytes int64
	TotalBytes      int64
	ETASec          int // -1 if unknown
	Filename        string
}

// Percent returns the transfer completion in whole percent, 0 when the size is unknown
func (p FetchProgress) Percent() int {
	if p.TotalBytes <= 0 {
		return 0
	}
	return clampPercent(int(float64(p.DownloadedBytes) / float64(p.TotalBytes) * 100))
}

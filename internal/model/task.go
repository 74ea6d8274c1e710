package model

import (
	"fmt"
	"strings"
	"time"
)

// VideoInfo is display metadata resolved by the extractor
type VideoInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`  // seconds
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"viewCount"`
	Thumbnail string  `json:"thumbnail"`
	Ext       string  `json:"ext,omitempty"`
}

// ResultFile describes a file that exists on disk
type ResultFile struct {
	Path   string `json:"path"`
	Size   int64  `json:"sizeBytes"`
	Format string `json:"actualFormat"` // lower-case extension without dot
}

// Task represents a single download task
type Task struct {
	ID        string      `json:"taskId"`
	URL       string      `json:"sourceUrl"`
	Format    Format      `json:"requestedFormat"`
	Quality   string      `json:"requestedQuality"`
	Status    TaskStatus  `json:"status"`
	Progress  int         `json:"progress"` // 0 to 100
	Message   string      `json:"message"`
	Info      *VideoInfo  `json:"info,omitempty"`
	Result    *ResultFile `json:"resultFile,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// NewTask creates a pending task for req
func NewTask(id string, req Request, message string) *Task {
	now := time.Now()
	return &Task{
		ID:        id,
		URL:       req.URL,
		Format:    req.Format,
		Quality:   req.Quality,
		Status:    TaskStatusPending,
		Message:   message,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Request returns the immutable request the task was created from
func (t *Task) Request() Request {
	return Request{URL: t.URL, Format: t.Format, Quality: t.Quality}
}

// Clone returns a deep copy safe to hand out of a store
func (t *Task) Clone() Task {
	c := *t
	if t.Info != nil {
		info := *t.Info
		c.Info = &info
	}
	if t.Result != nil {
		result := *t.Result
		c.Result = &result
	}
	return c
}

// DisplayTitle returns title, filename, or URL in order of preference
func (t *Task) DisplayTitle() string {
	if t.Info != nil && t.Info.Title != "" && !strings.HasPrefix(t.Info.Title, "http") {
		return t.Info.Title
	}

	if t.Result != nil && t.Result.Path != "" {
		// Support both / and \ separators
		parts := strings.FieldsFunc(t.Result.Path, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	return t.URL
}

// FormatETA returns seconds formatted as hh:mm:ss or mm:ss, or "—" if unknown
func FormatETA(etaSec int) string {
	if etaSec <= 0 {
		return "—"
	}

	hours := etaSec / 3600
	minutes := (etaSec % 3600) / 60
	seconds := etaSec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

package api

import (
	"time"

	"github.com/ytget/yt-downloader-api/internal/model"
)

// DownloadRequest is the body of POST /download
type DownloadRequest struct {
	URL     string `json:"url" binding:"required"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
}

// DownloadResponse acknowledges a scheduled task
type DownloadResponse struct {
	TaskID  string           `json:"taskId"`
	Status  model.TaskStatus `json:"status"`
	Message string           `json:"message"`
}

// InfoResponse is the metadata returned by GET /info
type InfoResponse struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Uploader  string  `json:"uploader"`
	ViewCount int64   `json:"viewCount"`
}

// StatusResponse is a task snapshot, shared by GET /status and the status stream
type StatusResponse struct {
	TaskID       string           `json:"taskId"`
	Status       model.TaskStatus `json:"status"`
	Progress     int              `json:"progress"`
	Message      string           `json:"message"`
	FilePath     string           `json:"filePath,omitempty"`
	FileSize     int64            `json:"fileSize,omitempty"`
	ActualFormat string           `json:"actualFormat,omitempty"`
	Info         *InfoResponse    `json:"info,omitempty"`
}

// TaskSummary is one entry of GET /tasks
type TaskSummary struct {
	TaskID    string           `json:"taskId"`
	Status    model.TaskStatus `json:"status"`
	Progress  int              `json:"progress"`
	CreatedAt time.Time        `json:"createdAt"`
	Format    model.Format     `json:"format"`
}

// TaskListResponse is the body of GET /tasks
type TaskListResponse struct {
	TotalTasks int           `json:"totalTasks"`
	Tasks      []TaskSummary `json:"tasks"`
}

// UpdateResponse reports the outcome of POST /update-ytdlp
type UpdateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Output  string `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newInfoResponse(info *model.VideoInfo) *InfoResponse {
	if info == nil {
		return nil
	}
	return &InfoResponse{
		Title:     info.Title,
		Duration:  info.Duration,
		Thumbnail: info.Thumbnail,
		Uploader:  info.Uploader,
		ViewCount: info.ViewCount,
	}
}

func newStatusResponse(t model.Task) StatusResponse {
	resp := StatusResponse{
		TaskID:   t.ID,
		Status:   t.Status,
		Progress: t.Progress,
		Message:  t.Message,
		Info:     newInfoResponse(t.Info),
	}
	if t.Result != nil {
		resp.FilePath = t.Result.Path
		resp.FileSize = t.Result.Size
		resp.ActualFormat = t.Result.Format
	}
	return resp
}

func newTaskList(tasks []model.Task) TaskListResponse {
	summaries := make([]TaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, TaskSummary{
			TaskID:    t.ID,
			Status:    t.Status,
			Progress:  t.Progress,
			CreatedAt: t.CreatedAt,
			Format:    t.Format,
		})
	}
	return TaskListResponse{TotalTasks: len(summaries), Tasks: summaries}
}

package api

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ytget/yt-downloader-api/internal/download"
	"github.com/ytget/yt-downloader-api/internal/failure"
	"github.com/ytget/yt-downloader-api/internal/model"
	"github.com/ytget/yt-downloader-api/internal/platform"
)

// ServiceName is reported by the root endpoint
const ServiceName = "YouTube Downloader API"

// Response messages
const (
	msgDownloadStarted = "Download started. Use /status/{taskId} to check progress."
	msgTaskNotFound    = "Task not found"
	msgFileNotFound    = "File not found"
	msgNotCompleted    = "Download is not completed"
	msgTaskDeleted     = "Task deleted successfully"
	msgUpdated         = "yt-dlp updated successfully"
	msgUpdateFailed    = "Error updating yt-dlp"
)

// updateTimeout bounds POST /update-ytdlp
const updateTimeout = 60 * time.Second

// Handler serves the HTTP API on top of a Downloader
type Handler struct {
	svc     download.Downloader
	hub     *Hub
	log     logrus.FieldLogger
	version string
}

// NewHandler creates the API handler. hub may be nil, which disables status streams.
func NewHandler(svc download.Downloader, hub *Hub, version string, log logrus.FieldLogger) *Handler {
	return &Handler{svc: svc, hub: hub, log: log, version: version}
}

// Root returns the service banner and endpoint index
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": ServiceName,
		"version": h.version,
		"endpoints": gin.H{
			"info":     "/info?url=<youtube_url>",
			"download": "/download (POST)",
			"status":   "/status/{taskId}",
			"stream":   "/status/{taskId}/ws",
			"file":     "/file/{taskId}",
			"delete":   "/task/{taskId} (DELETE)",
			"tasks":    "/tasks",
			"health":   "/health",
			"update":   "/update-ytdlp (POST)",
		},
	})
}

// Health returns capability and version information
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Health(c.Request.Context()))
}

// Info resolves metadata for ?url= without downloading
func (h *Handler) Info(c *gin.Context) {
	raw := c.Query("url")
	if err := validateURL(raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.svc.Info(c.Request.Context(), raw)
	if err != nil {
		h.log.WithError(err).WithField("url", raw).Warn("Could not get video info")
		c.JSON(infoErrorStatus(err), gin.H{"error": "Error getting video info: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, newInfoResponse(info))
}

// Download validates the request and schedules a task
func (h *Handler) Download(c *gin.Context) {
	var req DownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: url is required"})
		return
	}
	if err := validateURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	format, err := model.ParseFormat(req.Format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid format. Use: " + model.FormatList()})
		return
	}

	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		quality = model.DefaultQuality
	}

	task, err := h.svc.Submit(model.Request{URL: req.URL, Format: format, Quality: quality})
	if err != nil {
		h.log.WithError(err).Error("Could not create task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create task"})
		return
	}

	c.JSON(http.StatusOK, DownloadResponse{
		TaskID:  task.ID,
		Status:  task.Status,
		Message: msgDownloadStarted,
	})
}

// Status returns the current snapshot of a task
func (h *Handler) Status(c *gin.Context) {
	task, ok := h.svc.Get(c.Param("taskId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgTaskNotFound})
		return
	}
	c.JSON(http.StatusOK, newStatusResponse(task))
}

// StatusStream upgrades to a WebSocket and pushes snapshots until the task ends
func (h *Handler) StatusStream(c *gin.Context) {
	id := c.Param("taskId")
	if _, ok := h.svc.Get(id); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgTaskNotFound})
		return
	}
	if h.hub == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Status streaming is disabled"})
		return
	}

	conn, err := h.hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).WithField("task", id).Warn("WebSocket upgrade failed")
		return
	}
	h.hub.serve(conn, id, h.svc.Get)
}

// File streams the result file of a completed task as an attachment
func (h *Handler) File(c *gin.Context) {
	task, ok := h.svc.Get(c.Param("taskId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgTaskNotFound})
		return
	}
	if task.Status != model.TaskStatusCompleted || task.Result == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNotCompleted})
		return
	}
	if !platform.FileExists(task.Result.Path) {
		c.JSON(http.StatusNotFound, gin.H{"error": msgFileNotFound})
		return
	}

	c.Header("Content-Type", "application/octet-stream")
	c.FileAttachment(task.Result.Path, filepath.Base(task.Result.Path))
}

// DeleteTask removes a task and its file
func (h *Handler) DeleteTask(c *gin.Context) {
	if _, ok := h.svc.Remove(c.Param("taskId")); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": msgTaskNotFound})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msgTaskDeleted})
}

// Tasks lists every task in creation order
func (h *Handler) Tasks(c *gin.Context) {
	c.JSON(http.StatusOK, newTaskList(h.svc.List()))
}

// UpdateExtractor upgrades yt-dlp in place
func (h *Handler) UpdateExtractor(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), updateTimeout)
	defer cancel()

	out, err := h.svc.UpdateExtractor(ctx)
	if err != nil {
		h.log.WithError(err).Error("yt-dlp update failed")
		c.JSON(http.StatusOK, UpdateResponse{Success: false, Message: msgUpdateFailed, Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, UpdateResponse{Success: true, Message: msgUpdated, Output: out})
}

// validateURL accepts absolute http and https URLs only
func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrap(err, "invalid url")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Errorf("invalid url %q: must be an http or https URL", raw)
	}
	return nil
}

// infoErrorStatus maps a metadata failure to a 4xx status
func infoErrorStatus(err error) int {
	switch failure.KindOf(err) {
	case failure.NotFoundOrRestricted:
		return http.StatusNotFound
	case failure.GeoRestricted:
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

// Package api exposes the download service over HTTP with gin.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with every route registered
func NewRouter(h *Handler, log logrus.FieldLogger) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(log), gin.Recovery())

	router.GET("/", h.Root)
	router.GET("/health", h.Health)
	router.GET("/info", h.Info)
	router.POST("/download", h.Download)
	router.GET("/status/:taskId", h.Status)
	router.GET("/status/:taskId/ws", h.StatusStream)
	router.GET("/file/:taskId", h.File)
	router.DELETE("/task/:taskId", h.DeleteTask)
	router.GET("/tasks", h.Tasks)
	router.POST("/update-ytdlp", h.UpdateExtractor)

	return router
}

// Package server exposes the HTTP API: submit a prompt, poll the task, fetch
// the finished video.
package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"shortvid-pipeline/config"
	"shortvid-pipeline/taskstore"
	"shortvid-pipeline/types"
)

const (
	defaultDurationSec = 20
	minDurationSec     = 5
	maxDurationSec     = 60
)

// TaskSubmitter starts a generation task and returns its ID.
type TaskSubmitter interface {
	Submit(prompt string, totalSeconds float64, orientation types.Orientation) string
}

// Server wires the HTTP surface to the orchestrator and task store.
type Server struct {
	cfg   *config.Config
	store taskstore.Store
	orch  TaskSubmitter
	log   zerolog.Logger
}

func New(cfg *config.Config, store taskstore.Store, orch TaskSubmitter, log zerolog.Logger) *Server {
	return &Server{
		cfg:   cfg,
		store: store,
		orch:  orch,
		log:   log.With().Str("comp", "server").Logger(),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/generate-video", s.handleGenerate)
	r.GET("/status/:task_id", s.handleStatus)
	r.GET("/download/:task_id", s.handleDownload)
	return r
}

// Run blocks serving HTTP on the configured address.
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("listening")
	return s.Router().Run(s.cfg.Server.ListenAddr)
}

type generateRequest struct {
	Prompt          string  `json:"prompt" binding:"required"`
	DurationSeconds float64 `json:"duration_seconds"`
	Orientation     string  `json:"orientation"`
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	orientation, err := types.ParseOrientation(req.Orientation)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	duration := req.DurationSeconds
	if duration == 0 {
		duration = defaultDurationSec
	}
	if duration < minDurationSec || duration > maxDurationSec {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("duration_seconds must be between %d and %d", minDurationSec, maxDurationSec),
		})
		return
	}

	id := s.orch.Submit(req.Prompt, duration, orientation)
	s.log.Info().Str("task", id).Float64("duration", duration).Msg("task accepted")
	c.JSON(http.StatusAccepted, gin.H{
		"message":    "video generation started",
		"task_id":    id,
		"status_url": "/status/" + id,
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	id := c.Param("task_id")
	task, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	resp := gin.H{
		"task_id":    task.ID,
		"status":     task.Status,
		"message":    task.Message,
		"created_at": task.CreatedAt,
		"updated_at": task.UpdatedAt,
	}
	if task.Status == types.StatusComplete {
		resp["download_url"] = "/download/" + task.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDownload(c *gin.Context) {
	id := c.Param("task_id")
	task, ok := s.store.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if task.Status != types.StatusComplete || task.ResultPath == "" {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "video not ready",
			"status": task.Status,
		})
		return
	}
	c.FileAttachment(task.ResultPath, "video.mp4")
}

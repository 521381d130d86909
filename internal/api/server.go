// Package api exposes the job service over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
	"github.com/rs/cors"

	"shortstack/internal/domain"
	"shortstack/internal/inputs"
	"shortstack/internal/jobs"
	"shortstack/internal/store"
)

// JobService is the dispatcher surface the handlers need.
type JobService interface {
	Submit(layout domain.Layout, inputAPath, inputBPath string) (domain.Job, error)
	Status(id string) (domain.Job, error)
	Cancel(id string) error
}

// Prober extracts metadata from a local media file.
type Prober interface {
	Probe(ctx context.Context, path string) (domain.MediaInfo, error)
}

// Options configures the HTTP server.
type Options struct {
	Jobs       JobService
	Resolver   *inputs.Resolver
	Prober     Prober
	Health     func() domain.DiagnosticReport
	OutputsDir string
	Logger     hclog.Logger
}

// Server holds the routed gin engine and its collaborators.
type Server struct {
	jobs       JobService
	resolver   *inputs.Resolver
	prober     Prober
	health     func() domain.DiagnosticReport
	outputsDir string
	logger     hclog.Logger

	handler http.Handler
}

// NewServer builds the router. All routes live under /api.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}

	s := &Server{
		jobs:       opts.Jobs,
		resolver:   opts.Resolver,
		prober:     opts.Prober,
		health:     opts.Health,
		outputsDir: opts.OutputsDir,
		logger:     opts.Logger,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	{
		api.POST("/jobs", s.submitJob)
		api.GET("/jobs/:id", s.jobStatus)
		api.DELETE("/jobs/:id", s.cancelJob)
		api.POST("/metadata", s.probeMetadata)
		api.GET("/download/:name", s.download)
		api.GET("/health", s.healthReport)
	}

	s.handler = cors.AllowAll().Handler(router)
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// submitRequest is the JSON submission body. Multipart submissions carry
// the same field names as form values, plus optional file parts named
// input_a / input_b.
type submitRequest struct {
	Layout   string `json:"layout" form:"layout"`
	Platform string `json:"platform" form:"platform"`

	InputABase64 string `json:"input_a_base64" form:"input_a_base64"`
	InputAURL    string `json:"input_a_url" form:"input_a_url"`
	InputBBase64 string `json:"input_b_base64" form:"input_b_base64"`
	InputBURL    string `json:"input_b_url" form:"input_b_url"`
}

// submitJob validates the request, materializes both inputs, and creates
// a queued job. Validation failures never leave a job record behind.
func (s *Server) submitJob(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}

	layout, err := domain.ParseLayout(req.Layout)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := domain.ParsePlatform(req.Platform); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	slotA := inputs.Slot{Inline: req.InputABase64, URL: req.InputAURL}
	slotB := inputs.Slot{Inline: req.InputBBase64, URL: req.InputBURL}
	if file, err := c.FormFile("input_a"); err == nil {
		slotA.File = file
	}
	if file, err := c.FormFile("input_b"); err == nil {
		slotB.File = file
	}
	if slotA.Empty() || slotB.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "both input_a and input_b are required"})
		return
	}

	pathA, err := s.resolver.Resolve(c.Request.Context(), "input_a", slotA)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pathB, err := s.resolver.Resolve(c.Request.Context(), "input_b", slotB)
	if err != nil {
		_ = os.Remove(pathA)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jobs.Submit(layout, pathA, pathB)
	if err != nil {
		_ = os.Remove(pathA)
		_ = os.Remove(pathB)
		s.logger.Error("job submission failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cannot persist job"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID})
}

// jobStatusResponse is the polling payload. Terminal jobs answer with the
// same payload on every poll until the record is reclaimed.
type jobStatusResponse struct {
	JobID    string           `json:"job_id"`
	Status   domain.JobStatus `json:"status"`
	Progress int              `json:"progress"`
	Result   *domain.Result   `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// jobStatus returns a snapshot of one job.
func (s *Server) jobStatus(c *gin.Context) {
	job, err := s.jobs.Status(c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, jobStatusResponse{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Result:   job.Result,
		Error:    job.Error,
	})
}

// cancelJob requests best-effort cancellation of an in-flight job.
func (s *Server) cancelJob(c *gin.Context) {
	err := s.jobs.Cancel(c.Param("id"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "cancellation requested"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, store.ErrTerminal):
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
	case errors.Is(err, jobs.ErrNoRunningJob):
		c.JSON(http.StatusConflict, gin.H{"error": "job is not running"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// probeMetadata resolves a single input, probes it, and discards the
// temporary file. No job record is created.
func (s *Server) probeMetadata(c *gin.Context) {
	var req struct {
		InputBase64 string `json:"input_base64" form:"input_base64"`
		InputURL    string `json:"input_url" form:"input_url"`
	}
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request: " + err.Error()})
		return
	}

	slot := inputs.Slot{Inline: req.InputBase64, URL: req.InputURL}
	if file, err := c.FormFile("input"); err == nil {
		slot.File = file
	}
	if slot.Empty() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "an input is required"})
		return
	}

	path, err := s.resolver.Resolve(c.Request.Context(), "metadata", slot)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer os.Remove(path)

	info, err := s.prober.Probe(c.Request.Context(), path)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

// download serves a final artifact from the outputs directory. Only bare
// file names are accepted; anything path-like is rejected.
func (s *Server) download(c *gin.Context) {
	name := c.Param("name")
	if name == "" || name != filepath.Base(name) || name[0] == '.' {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	path := filepath.Join(s.outputsDir, name)
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}

	c.FileAttachment(path, name)
}

// healthReport runs the diagnostics checks. A failing report answers 503
// so load balancers can act on it.
func (s *Server) healthReport(c *gin.Context) {
	report := s.health()
	status := http.StatusOK
	if report.HasFailures {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

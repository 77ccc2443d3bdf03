// Package server 提供 IES 上传与任务查询的 HTTP API
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/autofund-ai/autofund/internal/report"
	"github.com/autofund-ai/autofund/pkg/config"
	apperrors "github.com/autofund-ai/autofund/pkg/errors"
	"github.com/autofund-ai/autofund/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// multipart 表单中除文件外的开销上限
const formOverhead = 1 << 20

// Server HTTP 服务
type Server struct {
	cfg      config.ServerConfig
	version  string
	jobs     JobService
	router   *chi.Mux
	server   *http.Server
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// New 创建 HTTP 服务
func New(cfg config.ServerConfig, version string, jobs JobService, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		version:  version,
		jobs:     jobs,
		router:   chi.NewRouter(),
		validate: validator.New(),
		logger:   logger.With(zap.String("component", "server")),
		now:      time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler 返回路由
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/ies", s.handleUpload)
		r.Route("/jobs/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Get("/result", s.handleResult)
			r.Get("/files/{kind}", s.handleDownload)
		})
	})
}

// Start 启动 HTTP 服务
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.cfg.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"version":   s.version,
		"timestamp": s.now().UTC(),
	})
}

// uploadForm 上传表单校验规则
type uploadForm struct {
	FileName       string `validate:"required,max=255"`
	Size           int64  `validate:"gt=0"`
	CompanyContext string `validate:"max=5000"`
}

type uploadResponse struct {
	JobID   string   `json:"job_id"`
	Status  JobState `json:"status"`
	Message string   `json:"message"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.reject(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes))
			return
		}
		s.reject(w, http.StatusBadRequest, "INVALID_FORM", "expected multipart/form-data with a file field")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.reject(w, http.StatusBadRequest, "MISSING_FILE", "file field is required")
		return
	}
	defer file.Close()

	form := uploadForm{
		FileName:       filepath.Base(header.Filename),
		Size:           header.Size,
		CompanyContext: strings.TrimSpace(r.FormValue("company_context")),
	}
	if err := s.validate.Struct(form); err != nil {
		s.reject(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if form.Size > s.cfg.MaxUploadBytes {
		s.reject(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxUploadBytes))
		return
	}
	if !strings.EqualFold(filepath.Ext(form.FileName), ".pdf") {
		s.reject(w, http.StatusBadRequest, "NOT_PDF", "only PDF files are accepted")
		return
	}

	head := make([]byte, 5)
	if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, []byte("%PDF-")) {
		s.reject(w, http.StatusBadRequest, "NOT_PDF", "file is not a PDF document")
		return
	}

	jobID := uuid.NewString()
	path, err := s.store(jobID, io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		s.logger.Error("Failed to store upload", zap.String("job_id", jobID), zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "STORAGE_FAILED", "failed to store the uploaded file")
		return
	}

	job := Job{
		ID:             jobID,
		DocumentPath:   path,
		FileName:       form.FileName,
		CompanyContext: form.CompanyContext,
		SubmittedAt:    s.now(),
	}
	if err := s.jobs.Submit(r.Context(), job); err != nil {
		_ = os.Remove(path)
		s.logger.Error("Failed to submit job", zap.String("job_id", jobID), zap.Error(err))
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusServiceUnavailable, "SUBMIT_FAILED", "failed to start processing")
		return
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	s.logger.Info("Upload accepted", zap.String("job_id", jobID), zap.String("file", form.FileName), zap.Int64("bytes", form.Size))
	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:   jobID,
		Status:  JobQueued,
		Message: fmt.Sprintf("File %s received, processing started", form.FileName),
	})
}

func (s *Server) store(jobID string, src io.Reader) (string, error) {
	dir, err := filepath.Abs(s.cfg.UploadDir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, jobID+".pdf")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", err
	}
	return path, f.Close()
}

func (s *Server) reject(w http.ResponseWriter, status int, code, message string) {
	metrics.UploadsTotal.WithLabelValues("rejected").Inc()
	writeError(w, status, code, message)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) (*JobStatus, bool) {
	jobID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(jobID); err != nil {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
		return nil, false
	}
	st, err := s.jobs.Status(r.Context(), jobID)
	if errors.Is(err, apperrors.ErrNotFound) {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", "job not found")
		return nil, false
	}
	if err != nil {
		s.logger.Error("Failed to load job status", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "STATUS_UNAVAILABLE", "job status unavailable")
		return nil, false
	}
	return st, true
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	st, ok := s.status(w, r)
	if !ok {
		return
	}
	if st.State != JobCompleted || st.Result == nil {
		writeError(w, http.StatusNotFound, "RESULT_UNAVAILABLE", "result not available")
		return
	}
	rep, err := report.LoadJSON(st.Result.Files.JSON)
	if err != nil {
		s.logger.Error("Failed to load report", zap.String("job_id", st.JobID), zap.Error(err))
		writeError(w, http.StatusNotFound, "RESULT_UNAVAILABLE", "result not available")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := report.WriteJSON(w, rep); err != nil {
		s.logger.Warn("Failed to write report", zap.Error(err))
	}
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if kind != "excel" && kind != "json" {
		writeError(w, http.StatusBadRequest, "INVALID_FILE_TYPE", "file type must be excel or json")
		return
	}
	st, ok := s.status(w, r)
	if !ok {
		return
	}
	if st.State != JobCompleted || st.Result == nil {
		writeError(w, http.StatusNotFound, "FILE_UNAVAILABLE", "file not available")
		return
	}

	path, name := st.Result.Files.Excel, fmt.Sprintf("autofund_%s.xlsx", st.Result.TaxID)
	if kind == "json" {
		path, name = st.Result.Files.JSON, fmt.Sprintf("autofund_%s.json", st.Result.TaxID)
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "FILE_NOT_FOUND", "file not found")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	http.ServeFile(w, r, path)
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

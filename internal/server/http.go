package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/doc-extractor/internal/common"
	"github.com/joseph-ayodele/doc-extractor/internal/extract"
	"github.com/joseph-ayodele/doc-extractor/internal/pipeline"
	"github.com/joseph-ayodele/doc-extractor/internal/repository"
)

const requestIDHeader = "X-Request-ID"

// HTTPServer serves POST /api/extract and the health and job endpoints.
type HTTPServer struct {
	cfg    Config
	proc   Extractor
	jobs   JobStore
	logger *slog.Logger
	router chi.Router
	srv    *http.Server
}

type HTTPOption func(*HTTPServer)

// WithJobStore exposes GET /api/jobs/{id} and /api/jobs/stats.
func WithJobStore(js JobStore) HTTPOption {
	return func(s *HTTPServer) { s.jobs = js }
}

func NewHTTPServer(cfg Config, proc Extractor, logger *slog.Logger, opts ...HTTPOption) *HTTPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HTTPServer{cfg: cfg, proc: proc, logger: logger}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/api/extract", s.handleExtract)
	if s.jobs != nil {
		r.Get("/api/jobs/stats", s.handleJobStats)
		r.Get("/api/jobs/{jobID}", s.handleJob)
	}
	s.router = r

	s.srv = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler { return s.router }

// Serve blocks until the listener fails or Shutdown is called.
func (s *HTTPServer) Serve(lis net.Listener) error {
	s.logger.Info("http.serve", "addr", lis.Addr().String())
	if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx ends.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type extractBody struct {
	Text       string `json:"text"`
	FileBase64 string `json:"fileBase64"`
	MediaType  string `json:"mediaType"`
	Filename   string `json:"filename"`
	Mode       string `json:"mode"`
	ModeInput  string `json:"modeInput"`
}

func (s *HTTPServer) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()
	logger := common.LoggerFromContext(ctx, s.logger)

	limit := s.proc.MaxInputBytes()
	r.Body = http.MaxBytesReader(w, r.Body, bodyCap(r.Header.Get("Content-Type"), limit))

	req, status, err := s.decodeExtract(r, limit)
	if err != nil {
		logger.Warn("http.extract.bad_request", "status", status, "error", err)
		writeJSON(w, status, pipeline.Result{Success: false, Error: common.MessageOf(err)})
		return
	}

	res := s.proc.Process(ctx, req)
	code := http.StatusOK
	if !res.Success {
		code = StatusFor(res.Kind)
	}
	writeJSON(w, code, res)
}

// bodyCap bounds the raw request body. A JSON body carries the file base64
// encoded, so its cap grows with the encoding; the decoded size is still checked
// against limit by the pipeline.
func bodyCap(contentType string, limit int64) int64 {
	ct, _, _ := mime.ParseMediaType(contentType)
	if ct == "application/json" {
		return int64(base64.StdEncoding.EncodedLen(int(limit))) + bodySlack
	}
	return limit + bodySlack
}

// decodeExtract reads the request body into a pipeline request. The returned
// status is only meaningful when err is non-nil.
func (s *HTTPServer) decodeExtract(r *http.Request, limit int64) (pipeline.Request, int, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		ct = ""
	}

	switch ct {
	case "multipart/form-data":
		return s.decodeMultipart(r, limit)
	case "application/json":
		var body extractBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return pipeline.Request{}, bodyStatus(err), bodyError(err)
		}
		req := pipeline.Request{
			Text:      body.Text,
			MediaType: body.MediaType,
			Filename:  body.Filename,
			Mode:      body.Mode,
			ModeInput: body.ModeInput,
		}
		if body.FileBase64 != "" {
			data, err := base64.StdEncoding.DecodeString(body.FileBase64)
			if err != nil {
				return req, http.StatusBadRequest, common.NewAppError(common.KindInvalidRequest, "fileBase64 is not valid base64", err)
			}
			req.File = data
			if req.MediaType == "" {
				req.MediaType = extract.DetectMediaType(body.Filename, data)
			}
		}
		return req, 0, nil
	default:
		return pipeline.Request{}, http.StatusUnsupportedMediaType,
			common.Errorf(common.KindInvalidRequest, "Unsupported request content type %q: use multipart/form-data or application/json", ct)
	}
}

func (s *HTTPServer) decodeMultipart(r *http.Request, limit int64) (pipeline.Request, int, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return pipeline.Request{}, bodyStatus(err), bodyError(err)
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			s.logger.Warn("http.multipart.cleanup_failed", "error", err)
		}
	}()

	req := pipeline.Request{
		Text:      r.FormValue("text"),
		Mode:      r.FormValue("mode"),
		ModeInput: r.FormValue("modeInput"),
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, 0, nil
	}
	if err != nil {
		return req, http.StatusBadRequest, common.NewAppError(common.KindInvalidRequest, "Could not read the uploaded file", err)
	}
	defer func() { _ = file.Close() }()

	if header.Size > limit {
		return req, http.StatusRequestEntityTooLarge,
			common.Errorf(common.KindInputTooLarge, "Input is %d bytes, the limit is %d bytes", header.Size, limit)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return req, http.StatusBadRequest, common.NewAppError(common.KindInvalidRequest, "Could not read the uploaded file", err)
	}

	req.File = data
	req.Filename = header.Filename
	req.MediaType = header.Header.Get("Content-Type")
	if req.MediaType == "" || strings.EqualFold(req.MediaType, "application/octet-stream") {
		req.MediaType = extract.DetectMediaType(header.Filename, data)
	}
	return req, 0, nil
}

func bodyStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func bodyError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return common.NewAppError(common.KindInputTooLarge, "Request body is too large", err)
	}
	return common.NewAppError(common.KindInvalidRequest, "Invalid request body", err)
}

func (s *HTTPServer) handleJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")
	// ids are uuids; postgres rejects anything else with a cast error
	if _, err := uuid.Parse(id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	job, err := s.jobs.Get(r.Context(), id)
	if errors.Is(err, repository.ErrJobNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("http.job.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *HTTPServer) handleJobStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.CountByStatus(r.Context())
	if err != nil {
		common.LoggerFromContext(r.Context(), s.logger).Error("http.job_stats.failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal error"})
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// requestID takes X-Request-ID from the caller or mints one, and stores it and
// a tagged logger in the request context.
func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		ctx := common.WithRequestID(r.Context(), rid)
		ctx = common.WithLogger(ctx, s.logger.With("req_id", rid))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		common.LoggerFromContext(r.Context(), s.logger).Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

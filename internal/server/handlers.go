package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/audiosplit-api/internal/artifact"
	"github.com/maauso/audiosplit-api/internal/job"
	"github.com/maauso/audiosplit-api/internal/job/id"
)

// DefaultMaxUploadBytes bounds a single submitted file.
const DefaultMaxUploadBytes = 100 << 20

// statusByCode maps job failure codes to HTTP statuses for inline processing.
var statusByCode = map[string]int{
	job.CodeInputRejected:   http.StatusUnprocessableEntity,
	job.CodeDecode:          http.StatusUnprocessableEntity,
	job.CodeInvalidDuration: http.StatusUnprocessableEntity,
	job.CodeEngineInit:      http.StatusServiceUnavailable,
	job.CodeExecution:       http.StatusInternalServerError,
	job.CodeInternal:        http.StatusInternalServerError,
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.SplitService
	artifacts artifact.Registry
	validator *validator.Validate
	logger    *slog.Logger

	maxUploadBytes int64
	inline         bool

	// background tracks jobs started by CreateJob that outlive their request.
	background sync.WaitGroup
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithInlineProcessing runs accepted jobs inside the request and responds
// with the finished job. By default jobs run in the background.
func WithInlineProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.inline = enabled
	}
}

// WithMaxUploadBytes sets the largest accepted input file.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.SplitService, artifacts artifact.Registry, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		artifacts:      artifacts,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		JobStatus: string(h.service.Current().Status),
	})
}

// CreateJob handles POST /jobs requests.
// It accepts either a JSON body with base64 audio or a multipart form with
// a "file" field.
func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	in, status, code, err := h.readInput(w, r)
	if err != nil {
		writeError(w, status, err.Error(), code)
		return
	}

	accepted, err := h.service.Accept(ctx, in)
	switch {
	case err == nil:
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, err.Error(), "JOB_ACTIVE")
		return
	case errors.Is(err, job.ErrNotIdle):
		writeError(w, http.StatusConflict, err.Error(), "NOT_IDLE")
		return
	case errors.Is(err, artifact.ErrPublishUnavailable):
		writeError(w, http.StatusBadRequest, "S3 is not configured", "PUBLISH_UNAVAILABLE")
		return
	case errors.Is(err, job.ErrInputRejected), errors.Is(err, job.ErrDecode):
		writeJSON(w, http.StatusUnprocessableEntity, toJobResponse(accepted))
		return
	default:
		h.logger.Error("failed to accept job", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to accept job", "INTERNAL_ERROR")
		return
	}

	if h.inline {
		done, err := h.service.Process(ctx)
		if err != nil && done == nil {
			writeError(w, http.StatusInternalServerError, err.Error(), job.CodeOf(err))
			return
		}
		status := http.StatusOK
		if err != nil {
			status = statusByCode[job.CodeOf(err)]
		}
		writeJSON(w, status, toJobResponse(done))
		return
	}

	// The job outlives the request; errors are recorded on the job.
	h.background.Add(1)
	go func(ctx context.Context) {
		defer h.background.Done()
		if _, err := h.service.Process(ctx); err != nil {
			h.logger.Warn("split job failed",
				slog.String("job_id", accepted.ID),
				slog.String("code", job.CodeOf(err)),
			)
		}
	}(context.WithoutCancel(ctx))

	writeJSON(w, http.StatusAccepted, CreateJobResponse{
		ID:      accepted.ID,
		Status:  string(accepted.Status),
		Message: accepted.Message,
	})
}

// Wait blocks until background jobs finish or ctx is done.
func (h *Handlers) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readInput decodes the request into an InputFile. On failure it returns
// the HTTP status and error code to respond with.
func (h *Handlers) readInput(w http.ResponseWriter, r *http.Request) (job.InputFile, int, string, error) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return h.readMultipart(w, r)
	}

	// base64 expands the payload by 4/3.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes/3*4+64<<10)

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return job.InputFile{}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", errors.New("file is too large")
		}
		return job.InputFile{}, http.StatusBadRequest, "INVALID_JSON", errors.New("invalid JSON body")
	}
	if err := h.validator.Struct(req); err != nil {
		return job.InputFile{}, http.StatusBadRequest, "VALIDATION_ERROR", err
	}

	data, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return job.InputFile{}, http.StatusBadRequest, "VALIDATION_ERROR", errors.New("audio_base64 is not valid base64")
	}
	if int64(len(data)) > h.maxUploadBytes {
		return job.InputFile{}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", errors.New("file is too large")
	}

	return job.InputFile{
		Name:      req.FileName,
		MediaType: req.MediaType,
		Data:      data,
		PushToS3:  req.PushToS3,
	}, 0, "", nil
}

func (h *Handlers) readMultipart(w http.ResponseWriter, r *http.Request) (job.InputFile, int, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64<<10)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return job.InputFile{}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", errors.New("file is too large")
		}
		return job.InputFile{}, http.StatusBadRequest, "VALIDATION_ERROR", errors.New("multipart field \"file\" is required")
	}
	defer file.Close()

	form := uploadForm{
		FileName:  header.Filename,
		MediaType: header.Header.Get("Content-Type"),
		Size:      header.Size,
	}
	if v := r.FormValue("media_type"); v != "" {
		form.MediaType = v
	}
	if err := h.validator.Struct(form); err != nil {
		return job.InputFile{}, http.StatusBadRequest, "VALIDATION_ERROR", err
	}
	if form.Size > h.maxUploadBytes {
		return job.InputFile{}, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", errors.New("file is too large")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return job.InputFile{}, http.StatusBadRequest, "VALIDATION_ERROR", errors.New("failed to read file")
	}
	push, _ := strconv.ParseBool(r.FormValue("push_to_s3"))

	return job.InputFile{
		Name:      form.FileName,
		MediaType: form.MediaType,
		Data:      data,
		PushToS3:  push,
	}, 0, "", nil
}

// CurrentJob handles GET /jobs/current requests.
func (h *Handlers) CurrentJob(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toJobResponse(h.service.Current()))
}

// GetJob handles GET /jobs/{id} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "malformed job ID", "INVALID_ID")
		return
	}

	j, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
			return
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "INTERNAL_ERROR")
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(j))
}

// DeleteJob handles DELETE /jobs/{id} requests.
func (h *Handlers) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if !id.Valid(jobID) {
		writeError(w, http.StatusBadRequest, "malformed job ID", "INVALID_ID")
		return
	}

	err := h.service.DeleteJob(r.Context(), jobID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "NOT_FOUND")
	case errors.Is(err, job.ErrJobActive):
		writeError(w, http.StatusConflict, err.Error(), "JOB_ACTIVE")
	case errors.Is(err, job.ErrNotIdle):
		writeError(w, http.StatusConflict, "reset the current job first", "NOT_IDLE")
	default:
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "INTERNAL_ERROR")
	}
}

// ListJobs handles GET /jobs requests.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
		return
	}
	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ResetJob handles POST /jobs/reset requests.
func (h *Handlers) ResetJob(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Reset(r.Context()); err != nil {
		if errors.Is(err, job.ErrJobActive) {
			writeError(w, http.StatusConflict, err.Error(), "JOB_ACTIVE")
			return
		}
		// The job is reset even when some artifacts could not be released.
		h.logger.Warn("reset released artifacts with errors", slog.String("error", err.Error()))
	}
	writeJSON(w, http.StatusOK, toJobResponse(h.service.Current()))
}

// DownloadArtifact handles GET /artifacts/{handle} requests.
func (h *Handlers) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := h.artifacts.Open(r.Context(), r.PathValue("handle"))
	if err != nil {
		if errors.Is(err, artifact.ErrArtifactNotFound) {
			writeError(w, http.StatusNotFound, "artifact not found", "ARTIFACT_NOT_FOUND")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to open artifact", "INTERNAL_ERROR")
		return
	}

	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Name}))
	http.ServeContent(w, r, a.Name, time.Time{}, bytes.NewReader(a.Data))
}

// Events handles GET /events?since=N requests.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	var since int64
	if v := strings.TrimSpace(r.URL.Query().Get("since")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "since must be a non-negative integer", "INVALID_SINCE")
			return
		}
		since = n
	}

	events := h.service.Events(since)
	last := since
	if len(events) > 0 {
		last = events[len(events)-1].Seq
	}
	writeJSON(w, http.StatusOK, EventsResponse{Events: events, Last: last})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

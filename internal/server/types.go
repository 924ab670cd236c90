// Package server provides the HTTP server for the audio split API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/audiosplit-api/internal/job"
)

// CreateJobRequest is the JSON request body for submitting a file.
type CreateJobRequest struct {
	// FileName is the display name of the file, e.g. "voice.m4a".
	FileName string `json:"file_name" validate:"required,max=255"`
	// MediaType is the declared media type. Only audio/* is split.
	MediaType string `json:"media_type" validate:"required,max=127"`
	// AudioBase64 is the base64-encoded file.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// PushToS3 indicates whether to also upload both parts to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// uploadForm is the validated view of a multipart upload.
type uploadForm struct {
	FileName  string `validate:"required,max=255"`
	MediaType string `validate:"required,max=127"`
	Size      int64  `validate:"gt=0"`
}

// CreateJobResponse is the HTTP response after accepting a file.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the job status at the time of the response.
	Status string `json:"status"`
	// Message is the localized progress text.
	Message string `json:"message,omitempty"`
}

// ArtifactResponse describes one output part.
type ArtifactResponse struct {
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	MediaType string `json:"media_type"`
	Size      int    `json:"size"`
	// DownloadURL is the API path serving the bytes while the handle is live.
	DownloadURL string `json:"download_url"`
	// URL is the S3 URL if the part was published.
	URL string `json:"url,omitempty"`
}

// JobResponse is the HTTP response for job details.
type JobResponse struct {
	// ID is empty while the service is idle.
	ID              string             `json:"id,omitempty"`
	Status          string             `json:"status"`
	Message         string             `json:"message,omitempty"`
	Error           string             `json:"error,omitempty"`
	ErrorCode       string             `json:"error_code,omitempty"`
	InputName       string             `json:"input_name,omitempty"`
	InputSize       int                `json:"input_size,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	SplitAt         float64            `json:"split_at,omitempty"`
	Artifacts       []ArtifactResponse `json:"artifacts,omitempty"`
	Released        bool               `json:"released,omitempty"`
}

// JobListResponse is the HTTP response for the job history.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// EventsResponse is the HTTP response for incremental event reads.
type EventsResponse struct {
	Events []job.Event `json:"events"`
	// Last is the sequence to pass as ?since= on the next poll.
	Last int64 `json:"last"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// JobStatus is the status of the current job.
	JobStatus string `json:"job_status"`
}

func toJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:              j.ID,
		Status:          string(j.Status),
		Message:         j.Message,
		Error:           j.Error,
		ErrorCode:       j.ErrorCode,
		InputName:       j.InputName,
		InputSize:       j.InputSize,
		DurationSeconds: j.DurationSeconds,
		SplitAt:         j.SplitAt,
		Released:        !j.ReleasedAt.IsZero(),
	}
	for _, a := range j.Artifacts {
		resp.Artifacts = append(resp.Artifacts, ArtifactResponse{
			Handle:      a.Handle,
			Name:        a.Name,
			MediaType:   a.MediaType,
			Size:        a.Size,
			DownloadURL: "/artifacts/" + a.Handle,
			URL:         a.URL,
		})
	}
	return resp
}

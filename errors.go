package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/Tutortoise/pneumonia-service/annotations"
	"github.com/Tutortoise/pneumonia-service/detections"
	"github.com/Tutortoise/pneumonia-service/history"
	"github.com/Tutortoise/pneumonia-service/logging"

	"github.com/sirupsen/logrus"
)

var (
	ErrStorage     = errors.New("storage failure")
	ErrRateLimited = errors.New("too many requests")
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{ErrMissingFile, http.StatusBadRequest, "missing_file", "No file part"},
	{ErrEmptyFile, http.StatusBadRequest, "empty_file", "No selected file"},
	{ErrUnsupportedContentType, http.StatusUnsupportedMediaType, "unsupported_content_type", "Unsupported content type"},
	{ErrRequestTooLarge, http.StatusRequestEntityTooLarge, "request_too_large", "Upload exceeds the size limit"},
	{ErrInvalidRequest, http.StatusBadRequest, "invalid_request", "Malformed request"},
	{detections.ErrDecode, http.StatusBadRequest, "invalid_image", "Failed to decode image"},
	{detections.ErrLoad, http.StatusServiceUnavailable, "model_unavailable", "Model is not available"},
	{ErrPoolTimeout, http.StatusServiceUnavailable, "session_error", "No model session available"},
	{ErrPoolClosed, http.StatusServiceUnavailable, "session_error", "Model sessions are shutting down"},
	{detections.ErrInference, http.StatusInternalServerError, "inference_error", "Model inference failed"},
	{ErrStorage, http.StatusInternalServerError, "storage_error", "Failed to store result"},
	{history.ErrNotFound, http.StatusNotFound, "not_found", "Prediction not found"},
	{annotations.ErrInvalidName, http.StatusNotFound, "not_found", "Annotation not found"},
	{ErrRateLimited, http.StatusTooManyRequests, "too_many_requests", "Too many requests"},
	{context.DeadlineExceeded, http.StatusRequestTimeout, "request_timeout", "Request timed out"},
	{context.Canceled, http.StatusRequestTimeout, "request_timeout", "Request was cancelled"},
}

func classifyError(err error) (int, ErrorResponse) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, ErrorResponse{Code: m.code, Message: m.message, Details: err.Error()}
		}
	}
	return http.StatusInternalServerError, ErrorResponse{
		Code:    "processing_error",
		Message: "Failed to process request",
		Details: err.Error(),
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message, details string, status int) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// fail logs err with the request context and writes the mapped JSON error.
func (s *AppState) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, body := classifyError(err)

	entry := logging.WithRequestID(r.Context(), s.log).WithFields(logrus.Fields{
		"operation": operation,
		"code":      body.Code,
		"status":    status,
		"error":     err.Error(),
	})
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Warn("request rejected")
	}

	sendErrorResponse(w, body.Code, body.Message, body.Details, status)
}

// Package http provides chi-compatible handler helpers for the operational API
package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/moviesearch/movies-etl/pkg/app/errors"
)

// HandlerFunc defines a function that returns an error for clean error handling
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
}

// HandleError wraps an error-returning HandlerFunc into a standard http.HandlerFunc.
//
//	r.Get("/api/v1/status", http.HandleError(logger, h.status))
func HandleError(logger *zap.Logger, h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			DefaultErrorHandler(logger, w, r, err)
		}
	}
}

// DefaultErrorHandler writes err as a JSON error body. Unknown errors become 500s
// and only the service message of a ServiceError reaches the client.
func DefaultErrorHandler(logger *zap.Logger, w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{ErrMsg: "Unexpected Service Error", ErrMsgCode: http.StatusInternalServerError}

	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		resp = errorResponse{ErrMsg: svcErr.Message, ErrMsgCode: svcErr.StatusCode()}
	}

	if logger != nil && resp.ErrMsgCode >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.ErrMsgCode),
			zap.Error(err))
	}

	_ = writeJSON(w, resp.ErrMsgCode, &resp)
}

// WriteJSON encodes v with status 200
func WriteJSON(w http.ResponseWriter, v any) error {
	return writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

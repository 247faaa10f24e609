package server

import (
	"encoding/json"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/joseph-ayodele/label-checker/internal/common"
)

type errorBody struct {
	Detail string `json:"detail"`
	Reason string `json:"reason,omitempty"`
}

// httpStatus maps an application error to its HTTP status.
func httpStatus(err error) int {
	if common.ReasonOf(err) == common.ReasonPayloadTooLarge {
		return http.StatusRequestEntityTooLarge
	}
	switch common.CodeOf(err) {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatus(err)
	body := errorBody{Detail: common.MessageOf(err), Reason: common.ReasonOf(err)}
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", common.RequestIDFromContext(r.Context()),
			"error", err)
		body = errorBody{Detail: "internal error", Reason: common.ReasonInternal}
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

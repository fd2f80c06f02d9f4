package api

import (
	"encoding/json"
	"math"
	"net/http"

	"github.com/tfomics/tfomics/pkg/errors"
)

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeJSON encodes v as the response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "err", err)
	}
}

// writeError maps an error to an HTTP status using its code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)

	var resp errorResponse
	resp.Error.Code = string(code)
	if resp.Error.Code == "" {
		resp.Error.Code = string(errors.ErrCodeInternal)
	}
	resp.Error.Message = errors.UserMessage(err)

	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	s.writeJSON(w, status, resp)
}

// statusFor picks the HTTP status for an error code.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidSequence,
		errors.ErrCodeInvalidColumn, errors.ErrCodeInvalidFile,
		errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidRegion:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound,
		errors.ErrCodeSNPNotFound, errors.ErrCodeRunNotFound,
		errors.ErrCodeRegionNotFound:
		return http.StatusNotFound
	case errors.ErrCodeGenomeMismatch, errors.ErrCodeNoReads,
		errors.ErrCodeZeroExposure, errors.ErrCodeSingularFit:
		return http.StatusUnprocessableEntity
	case errors.ErrCodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// badRequest replies with a 400 and a plain message.
func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeError(w, errors.New(errors.ErrCodeInvalidInput, "%s", message))
}

// jsonFloat makes a float JSON-safe: NaN and infinities become null.
func jsonFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

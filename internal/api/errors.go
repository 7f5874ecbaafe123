package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mayuresh141/urbanhcf/internal/model"
)

// Kinds reported for failures that are not pipeline errors.
const (
	kindTimeout     = "timeout"
	kindUnavailable = "unavailable"
	kindInternal    = "internal"
	kindBadRequest  = "bad_request"
)

// errorResponse is the JSON body of every failed request.
type errorResponse struct {
	Status  string         `json:"status"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// statusFor maps a pipeline error kind to an HTTP status.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInvalidInput, model.KindInvalidRequest, model.KindUnknownFeature,
		model.KindUnsupportedOperation, model.KindDivisionByZero:
		return http.StatusBadRequest
	case model.KindDataUnavailable:
		return http.StatusNotFound
	case model.KindShapeMismatch, model.KindEmptyClass, model.KindMissingFeature:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError converts err into a structured failure response. Classified
// pipeline errors keep their message and context; anything else is logged
// and reported without internals.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var perr *model.Error
	switch {
	case errors.As(err, &perr):
		writeJSON(w, statusFor(perr.Kind), errorResponse{
			Status:  "error",
			Kind:    string(perr.Kind),
			Message: perr.Msg,
			Details: details(perr.Fields),
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{
			Status:  "error",
			Kind:    kindTimeout,
			Message: "analysis did not finish in time",
		})
	default:
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Kind:    kindInternal,
			Message: "internal error",
		})
	}
}

func writeFailure(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Kind: kind, Message: msg})
}

// details renders error context as JSON-safe strings.
func details(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case string, int, bool:
			out[k] = t
		case float64:
			out[k] = model.Float(t)
		case interface{ String() string }:
			out[k] = t.String()
		default:
			out[k] = v
		}
	}
	return out
}

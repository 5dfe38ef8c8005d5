package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"tgforward-web/internal/apiclient"
	"tgforward-web/internal/model"
	"tgforward-web/internal/session"
	"tgforward-web/pkg/apierror"
)

func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var statusErr *apiclient.StatusError
	var transportErr *apiclient.TransportError
	if errors.As(err, &apiErr) {
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	} else if errors.Is(err, apiclient.ErrLoginRequired) {
		status = http.StatusUnauthorized
		body.Code = "LOGIN_REQUIRED"
		body.Message = "Please log in again"
	} else if errors.Is(err, model.ErrInvalidCredentials) {
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Invalid credentials"
	} else if errors.Is(err, model.ErrInvalidInput) {
		status = http.StatusBadRequest
		body.Code = "BAD_REQUEST"
		body.Message = "Invalid input"
		body.Details = err.Error()
	} else if errors.As(err, &statusErr) {
		status = http.StatusBadGateway
		body.Code = "GATEWAY_ERROR"
		body.Message = fmt.Sprintf("Request failed with status code %d", statusErr.StatusCode)
		body.Details = statusErr.Reason
	} else if errors.As(err, &transportErr) {
		status = http.StatusBadGateway
		body.Code = "GATEWAY_UNREACHABLE"
		body.Message = "Gateway unreachable"
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
			body.Code = "GATEWAY_TIMEOUT"
			body.Message = "Gateway timed out"
		}
	} else {
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// currentSession is the session attached by session.Manager.Middleware.
func currentSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("SESSION_MISSING", "browser session not available", "", http.StatusInternalServerError))
		return nil, false
	}
	return s, true
}

// userMessage turns a failed action into a toast line. Gateway failures
// already produced their own toast, so they yield "".
func userMessage(err error) string {
	var apiErr *apierror.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Message
	case errors.Is(err, model.ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, model.ErrInvalidInput):
		return err.Error()
	default:
		return ""
	}
}

func parseForm(r *http.Request) error {
	if err := r.ParseForm(); err != nil {
		return apierror.Wrap(err, "BAD_REQUEST", "The form could not be read.", http.StatusBadRequest)
	}
	return nil
}

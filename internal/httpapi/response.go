// Package httpapi is the API surface (spec.md §6): chi routing, request
// validation, and the error-taxonomy-to-HTTP-status mapping, grounded on
// the teacher's pkg/server/response and pkg/server/router packages.
package httpapi

import (
	"net/http"

	"github.com/go-chi/render"

	pkgerrors "github.com/zenalign/tokencore/pkg/errors"
	"github.com/zenalign/tokencore/pkg/log"
)

// Object is the JSON response envelope, matching the teacher's
// pkg/server/response.Object shape.
type Object struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// OK renders a 200 success envelope.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, Object{Success: true, Data: data})
}

// Created renders a 201 success envelope.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, Object{Success: true, Data: data})
}

// Error renders err using its domain HTTP status, except
// pkgerrors.ErrGatewayRejected, which spec.md §6 defines as a 200 response
// carrying a failure body rather than an HTTP error status.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	if traceID := log.GetTraceID(r.Context()); traceID != "" {
		w.Header().Set("X-Trace-Id", traceID)
	}

	var domainErr *pkgerrors.Error
	if pkgerrors.As(err, &domainErr) && pkgerrors.Is(domainErr, pkgerrors.ErrGatewayRejected) {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, Object{Success: false, Message: domainErr.Message, Data: domainErr.Details})
		return
	}

	status := pkgerrors.GetHTTPStatus(err)
	msg := err.Error()
	if pkgerrors.As(err, &domainErr) {
		msg = domainErr.Message
	}

	render.Status(r, status)
	var data any
	if domainErr != nil {
		data = domainErr.Details
	}
	render.JSON(w, r, Object{Success: false, Message: msg, Data: data})
}

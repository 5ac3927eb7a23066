package jsonapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/DataDog/jsonapi"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-jsonapi/internal/adapter"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/entity"
)

// Error is a failure the engine reports to the client as is
type Error struct {
	Status    int
	Detail    string
	Pointer   string
	Parameter string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, http.StatusText(e.Status), e.Detail)
}

func newError(status int, format string, args ...any) *Error {
	return &Error{Status: status, Detail: fmt.Sprintf(format, args...)}
}

func badParameter(parameter, format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Detail: fmt.Sprintf(format, args...), Parameter: parameter}
}

func badPointer(status int, pointer, format string, args ...any) *Error {
	return &Error{Status: status, Detail: fmt.Sprintf(format, args...), Pointer: pointer}
}

// StatusOf maps an error to the HTTP status it is reported with
func StatusOf(err error) int {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Status
	case adapter.IsContractViolation(err):
		return http.StatusBadRequest
	case errors.Is(err, adapter.ErrInvalidValue):
		return http.StatusUnprocessableEntity
	case entity.IsNotFound(err):
		return http.StatusNotFound
	case entity.IsUniqueViolation(err):
		return http.StatusConflict
	case entity.IsConstraintViolation(err), errors.Is(err, entity.ErrTransientRelation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// toErrorObject converts err to a JSON:API error object. Details of
// internal errors are not exposed.
func toErrorObject(err error, status int) *jsonapi.Error {
	obj := &jsonapi.Error{
		Status: &status,
		Code:   errorCodeFromStatus(status),
		Title:  http.StatusText(status),
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		obj.Detail = apiErr.Detail
		if apiErr.Pointer != "" || apiErr.Parameter != "" {
			obj.Source = &jsonapi.ErrorSource{Pointer: apiErr.Pointer, Parameter: apiErr.Parameter}
		}
		return obj
	}
	if status != http.StatusInternalServerError {
		obj.Detail = err.Error()
	}
	return obj
}

// renderError is the single place where failures become error documents
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	} else {
		s.logger.Debug("request rejected",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	RenderErrors(w, status, toErrorObject(err, status))
}

// RenderErrors writes an error document
func RenderErrors(w http.ResponseWriter, status int, errs ...*jsonapi.Error) {
	data, err := json.Marshal(map[string][]*jsonapi.Error{"errors": errs})
	if err != nil {
		w.Header().Set("Content-Type", MediaType)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"errors":[{"status":"500","code":"internal_error","title":"Internal Server Error"}]}`))
		return
	}

	w.Header().Set("Content-Type", MediaType)
	w.WriteHeader(status)
	w.Write(data)
}

// RenderStatus writes an error document for status with its standard text
func RenderStatus(w http.ResponseWriter, status int) {
	RenderErrors(w, status, &jsonapi.Error{
		Status: &status,
		Code:   errorCodeFromStatus(status),
		Title:  http.StatusText(status),
	})
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusNotAcceptable:
		return "not_acceptable"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}

package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrInvalid       = errors.New("invalid")
	ErrConflict      = errors.New("conflict")
	ErrTooMany       = errors.New("too many requests")
	ErrInternal      = errors.New("internal")
	ErrStreamAborted = errors.New("stream aborted")
	ErrRetrieval     = errors.New("retrieval failed")
)

// Upstream services that the core talks to.
const (
	ServiceEmbedding   = "embedding"
	ServiceNER         = "ner"
	ServiceVectorIndex = "vector_index"
	ServiceLLM         = "llm"
	ServiceStore       = "document_store"
)

type UpstreamKind string

const (
	UpstreamTimeout     UpstreamKind = "timeout"
	UpstreamUnavailable UpstreamKind = "unavailable"
	UpstreamBadResponse UpstreamKind = "bad_response"
)

// UpstreamError is returned by every client adapter when the collaborator
// fails, times out or answers with something that does not validate.
type UpstreamError struct {
	Service string
	Kind    UpstreamKind
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Service, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Kind, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func NewUpstreamError(service string, kind UpstreamKind, err error) error {
	return &UpstreamError{Service: service, Kind: kind, Err: err}
}

// Upstream wraps err as an UpstreamError, picking the kind from the error
// itself. Errors that already are UpstreamError are returned as is.
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	return &UpstreamError{Service: service, Kind: classify(err), Err: err}
}

// BadResponse marks a reply that reached us but failed validation.
func BadResponse(service string, format string, args ...interface{}) error {
	return &UpstreamError{Service: service, Kind: UpstreamBadResponse, Err: fmt.Errorf(format, args...)}
}

func classify(err error) UpstreamKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return UpstreamTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return UpstreamTimeout
	}
	return UpstreamUnavailable
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUpstreamTimeout(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Kind == UpstreamTimeout
}

// Kind returns the machine readable kind carried by error responses and
// stream error events.
func Kind(err error) string {
	var ue *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalid):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTooMany):
		return "too_many_requests"
	case errors.Is(err, ErrStreamAborted), errors.Is(err, context.Canceled):
		return "stream_aborted"
	case errors.As(err, &ue):
		return "upstream_" + string(ue.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return "upstream_timeout"
	default:
		return "internal"
	}
}

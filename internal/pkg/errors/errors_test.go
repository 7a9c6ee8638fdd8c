package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "invalid", err: fmt.Errorf("bad query: %w", ErrInvalid), want: "validation"},
		{name: "not found", err: ErrNotFound, want: "not_found"},
		{name: "conflict", err: ErrConflict, want: "conflict"},
		{name: "aborted", err: ErrStreamAborted, want: "stream_aborted"},
		{name: "canceled", err: context.Canceled, want: "stream_aborted"},
		{name: "upstream timeout", err: Upstream(ServiceLLM, context.DeadlineExceeded), want: "upstream_timeout"},
		{name: "upstream unavailable", err: Upstream(ServiceNER, errors.New("refused")), want: "upstream_unavailable"},
		{name: "bad response", err: BadResponse(ServiceEmbedding, "empty"), want: "upstream_bad_response"},
		{name: "retrieval wraps upstream", err: fmt.Errorf("%w: %w", ErrRetrieval, Upstream(ServiceEmbedding, errors.New("x"))), want: "upstream_unavailable"},
		{name: "other", err: errors.New("boom"), want: "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Kind(tt.err))
		})
	}
}

func TestUpstreamKeepsExisting(t *testing.T) {
	orig := BadResponse(ServiceLLM, "x")
	wrapped := Upstream(ServiceEmbedding, orig)
	require.Same(t, orig, wrapped)

	var ue *UpstreamError
	require.ErrorAs(t, fmt.Errorf("outer: %w", wrapped), &ue)
	require.Equal(t, ServiceLLM, ue.Service)
	require.Nil(t, Upstream(ServiceLLM, nil))
}

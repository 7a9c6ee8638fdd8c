package errcode

const (
	ErrUnknown = 10000000 + iota
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrInvalid
	ErrConflict
	ErrTooMany
	ErrInternal
	ErrAIUnavailable
	ErrUpstreamTimeout
	ErrUpstreamUnavailable
	ErrUpstreamBadResponse
	ErrStreamAborted
	ErrRetrieval
)

package message

import "errors"

var (
	// ErrStoreUnavailable is returned when the persisted log cannot be reached.
	// No id is consumed by a failed append.
	ErrStoreUnavailable = errors.New("remq: store unavailable")
	// ErrLiveChannelUnavailable is returned when a live registration fails.
	ErrLiveChannelUnavailable = errors.New("remq: live channel unavailable")
	ErrInvalidPattern         = errors.New("remq: invalid pattern")
	ErrInvalidChannel         = errors.New("remq: invalid channel")
	ErrInvalidCursor          = errors.New("remq: invalid cursor")
	ErrInvalidPolicy          = errors.New("remq: invalid prune policy")
	// ErrMalformed marks a framed message or stored record that fails to decode.
	ErrMalformed = errors.New("remq: malformed message")
)

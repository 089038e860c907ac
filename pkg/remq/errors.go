package remq

import (
	"errors"

	"github.com/kainosnoema/remq/pkg/message"
)

var (
	ErrStoreUnavailable       = message.ErrStoreUnavailable
	ErrLiveChannelUnavailable = message.ErrLiveChannelUnavailable
	ErrInvalidPattern         = message.ErrInvalidPattern
	ErrInvalidChannel         = message.ErrInvalidChannel
	ErrInvalidCursor          = message.ErrInvalidCursor
	ErrInvalidPolicy          = message.ErrInvalidPolicy
	ErrMalformed              = message.ErrMalformed

	// ErrInvalidFilter reports a filter expression that does not compile to a
	// boolean program.
	ErrInvalidFilter = errors.New("remq: invalid filter")
	// ErrClosed is returned by operations on a closed Client.
	ErrClosed = errors.New("remq: client closed")
)

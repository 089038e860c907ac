package message

import (
	"bytes"
	"fmt"
	"strconv"
)

// Message is an immutable record assigned an id by the persisted log.
type Message struct {
	ID      uint64
	Channel string
	Body    []byte
}

const (
	headerSep = '@'
	headerEnd = '\n'
)

// Encode frames m as "<channel>@<id>\n<body>".
func Encode(m Message) []byte {
	out := make([]byte, 0, len(m.Channel)+22+len(m.Body))
	out = append(out, m.Channel...)
	out = append(out, headerSep)
	out = strconv.AppendUint(out, m.ID, 10)
	out = append(out, headerEnd)
	out = append(out, m.Body...)
	return out
}

// Decode parses a framed message. The body aliases raw.
func Decode(raw []byte) (Message, error) {
	end := bytes.IndexByte(raw, headerEnd)
	if end < 0 {
		return Message{}, fmt.Errorf("%w: missing header delimiter", ErrMalformed)
	}
	header := raw[:end]
	at := bytes.LastIndexByte(header, headerSep)
	if at <= 0 {
		return Message{}, fmt.Errorf("%w: header %q has no channel", ErrMalformed, header)
	}
	id, err := strconv.ParseUint(string(header[at+1:]), 10, 64)
	if err != nil || id == 0 {
		return Message{}, fmt.Errorf("%w: header %q has no valid id", ErrMalformed, header)
	}
	return Message{ID: id, Channel: string(header[:at]), Body: raw[end+1:]}, nil
}

// String renders the header only; bodies may be large or binary.
func (m Message) String() string {
	return m.Channel + "@" + strconv.FormatUint(m.ID, 10)
}

// DeliverFunc receives a framed message delivered live for a registered
// pattern. Calls for one registration are sequential and in publish order.
type DeliverFunc func(pattern string, raw []byte)

package rpc

import (
	"errors"
	"fmt"

	"github.com/kainosnoema/remq/pkg/message"
	"google.golang.org/protobuf/encoding/protowire"
)

var errWireType = errors.New("rpc: unexpected wire type")

// wireMessage is implemented by every LogService request and response.
type wireMessage interface {
	appendWire(b []byte) []byte
	readWire(b []byte) error
}

// decoder walks the fields of one protobuf message. Unknown fields are
// skipped.
type decoder struct {
	b   []byte
	err error
}

func (d *decoder) next() (protowire.Number, protowire.Type, bool) {
	if d.err != nil || len(d.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(d.b)
	if n < 0 {
		d.err = protowire.ParseError(n)
		return 0, 0, false
	}
	d.b = d.b[n:]
	return num, typ, true
}

func (d *decoder) consume(n int) {
	if n < 0 {
		d.err = protowire.ParseError(n)
		d.b = nil
		return
	}
	d.b = d.b[n:]
}

func (d *decoder) bytes(typ protowire.Type) []byte {
	if typ != protowire.BytesType {
		d.err = errWireType
		return nil
	}
	v, n := protowire.ConsumeBytes(d.b)
	d.consume(n)
	return v
}

func (d *decoder) varint(typ protowire.Type) uint64 {
	if typ != protowire.VarintType {
		d.err = errWireType
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	d.consume(n)
	return v
}

func (d *decoder) skip(num protowire.Number, typ protowire.Type) {
	d.consume(protowire.ConsumeFieldValue(num, typ, d.b))
}

func (d *decoder) done(what string) error {
	if d.err != nil {
		return fmt.Errorf("rpc: decode %s: %w", what, d.err)
	}
	return nil
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendRequest appends Body to Channel.
type AppendRequest struct {
	Channel string
	Body    []byte
}

func (m *AppendRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Channel)
	return appendBytes(b, 2, m.Body)
}

func (m *AppendRequest) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case 1:
			m.Channel = string(d.bytes(typ))
		case 2:
			m.Body = append([]byte(nil), d.bytes(typ)...)
		default:
			d.skip(num, typ)
		}
	}
	return d.done("AppendRequest")
}

// AppendResponse carries the id assigned to an append.
type AppendResponse struct {
	ID uint64
}

func (m *AppendResponse) appendWire(b []byte) []byte { return appendVarint(b, 1, m.ID) }

func (m *AppendResponse) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		if num == 1 {
			m.ID = d.varint(typ)
			continue
		}
		d.skip(num, typ)
	}
	return d.done("AppendResponse")
}

// ReadRangeRequest asks for up to Limit messages matching Pattern with ids
// above AfterID.
type ReadRangeRequest struct {
	Pattern string
	AfterID uint64
	Limit   uint32
}

func (m *ReadRangeRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Pattern)
	b = appendVarint(b, 2, m.AfterID)
	return appendVarint(b, 3, uint64(m.Limit))
}

func (m *ReadRangeRequest) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case 1:
			m.Pattern = string(d.bytes(typ))
		case 2:
			m.AfterID = d.varint(typ)
		case 3:
			m.Limit = uint32(d.varint(typ))
		default:
			d.skip(num, typ)
		}
	}
	return d.done("ReadRangeRequest")
}

// ReadRangeResponse holds the page in ascending id order. More is set when
// the server cut the page at its byte budget; a short page with More does
// not mean the range is exhausted.
type ReadRangeResponse struct {
	Messages []message.Message
	More     bool
}

func (m *ReadRangeResponse) appendWire(b []byte) []byte {
	var entry []byte
	for _, msg := range m.Messages {
		entry = appendVarint(entry[:0], 1, msg.ID)
		entry = appendString(entry, 2, msg.Channel)
		entry = appendBytes(entry, 3, msg.Body)
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	if m.More {
		b = appendVarint(b, 2, 1)
	}
	return b
}

func (m *ReadRangeResponse) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		if num == 2 {
			m.More = d.varint(typ) != 0
			continue
		}
		if num != 1 {
			d.skip(num, typ)
			continue
		}
		raw := d.bytes(typ)
		if d.err != nil {
			break
		}
		msg, err := readEntry(raw)
		if err != nil {
			return err
		}
		m.Messages = append(m.Messages, msg)
	}
	return d.done("ReadRangeResponse")
}

func readEntry(b []byte) (message.Message, error) {
	var msg message.Message
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case 1:
			msg.ID = d.varint(typ)
		case 2:
			msg.Channel = string(d.bytes(typ))
		case 3:
			msg.Body = append([]byte(nil), d.bytes(typ)...)
		default:
			d.skip(num, typ)
		}
	}
	return msg, d.done("Entry")
}

// PruneRequest removes messages matching Pattern according to the policy
// fields. Mode is 1 for before and 2 for keep.
type PruneRequest struct {
	Pattern  string
	Mode     uint32
	BeforeID uint64
	Keep     uint64
}

const (
	pruneModeBefore = 1
	pruneModeKeep   = 2
)

func pruneRequest(pattern string, p message.PrunePolicy) *PruneRequest {
	req := &PruneRequest{Pattern: pattern}
	switch p.Mode {
	case message.PruneModeBefore:
		req.Mode, req.BeforeID = pruneModeBefore, p.BeforeID
	case message.PruneModeKeep:
		req.Mode, req.Keep = pruneModeKeep, uint64(p.Keep)
	}
	return req
}

// Policy converts the request's policy fields. Unknown modes yield the zero
// policy, which fails validation.
func (m *PruneRequest) Policy() message.PrunePolicy {
	switch m.Mode {
	case pruneModeBefore:
		return message.PruneBefore(m.BeforeID)
	case pruneModeKeep:
		return message.PruneKeep(int(m.Keep))
	}
	return message.PrunePolicy{}
}

func (m *PruneRequest) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Pattern)
	b = appendVarint(b, 2, uint64(m.Mode))
	b = appendVarint(b, 3, m.BeforeID)
	return appendVarint(b, 4, m.Keep)
}

func (m *PruneRequest) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case 1:
			m.Pattern = string(d.bytes(typ))
		case 2:
			m.Mode = uint32(d.varint(typ))
		case 3:
			m.BeforeID = d.varint(typ)
		case 4:
			m.Keep = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.done("PruneRequest")
}

// PruneResponse reports how many messages were removed.
type PruneResponse struct {
	Removed uint64
}

func (m *PruneResponse) appendWire(b []byte) []byte { return appendVarint(b, 1, m.Removed) }

func (m *PruneResponse) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		if num == 1 {
			m.Removed = d.varint(typ)
			continue
		}
		d.skip(num, typ)
	}
	return d.done("PruneResponse")
}

type HealthRequest struct{}

func (*HealthRequest) appendWire(b []byte) []byte { return b }

func (*HealthRequest) readWire([]byte) error { return nil }

// HealthResponse reports "ok" or "not_serving", with the namespace and the
// last assigned id when serving.
type HealthResponse struct {
	Status    string
	Namespace string
	LastID    uint64
}

func (m *HealthResponse) appendWire(b []byte) []byte {
	b = appendString(b, 1, m.Status)
	b = appendString(b, 2, m.Namespace)
	return appendVarint(b, 3, m.LastID)
}

func (m *HealthResponse) readWire(b []byte) error {
	d := decoder{b: b}
	for num, typ, ok := d.next(); ok; num, typ, ok = d.next() {
		switch num {
		case 1:
			m.Status = string(d.bytes(typ))
		case 2:
			m.Namespace = string(d.bytes(typ))
		case 3:
			m.LastID = d.varint(typ)
		default:
			d.skip(num, typ)
		}
	}
	return d.done("HealthResponse")
}

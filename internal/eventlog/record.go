package eventlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/kainosnoema/remq/pkg/message"
	"google.golang.org/protobuf/encoding/protowire"
)

// Record encoding: protowire {1: channel, 2: body} | crc32c(fields)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const (
	fieldChannel protowire.Number = 1
	fieldBody    protowire.Number = 2
)

// Record is the stored form of an entry; its id lives in the key.
type Record struct {
	Channel string
	Body    []byte
}

func EncodeRecord(channel string, body []byte) []byte {
	out := make([]byte, 0, len(channel)+len(body)+16)
	out = protowire.AppendTag(out, fieldChannel, protowire.BytesType)
	out = protowire.AppendString(out, channel)
	out = protowire.AppendTag(out, fieldBody, protowire.BytesType)
	out = protowire.AppendBytes(out, body)
	return binary.BigEndian.AppendUint32(out, crc32.Checksum(out, castagnoli))
}

func DecodeRecord(b []byte) (Record, error) {
	if len(b) < 4 {
		return Record{}, fmt.Errorf("%w: short record", message.ErrMalformed)
	}
	fields := b[:len(b)-4]
	if crc32.Checksum(fields, castagnoli) != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return Record{}, fmt.Errorf("%w: checksum mismatch", message.ErrMalformed)
	}
	var rec Record
	for len(fields) > 0 {
		num, typ, n := protowire.ConsumeTag(fields)
		if n < 0 {
			return Record{}, fmt.Errorf("%w: %v", message.ErrMalformed, protowire.ParseError(n))
		}
		fields = fields[n:]
		switch {
		case num == fieldChannel && typ == protowire.BytesType:
			v, m := protowire.ConsumeString(fields)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: channel: %v", message.ErrMalformed, protowire.ParseError(m))
			}
			rec.Channel = v
			n = m
		case num == fieldBody && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(fields)
			if m < 0 {
				return Record{}, fmt.Errorf("%w: body: %v", message.ErrMalformed, protowire.ParseError(m))
			}
			rec.Body = append([]byte(nil), v...)
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, fields)
			if n < 0 {
				return Record{}, fmt.Errorf("%w: %v", message.ErrMalformed, protowire.ParseError(n))
			}
		}
		fields = fields[n:]
	}
	if rec.Channel == "" {
		return Record{}, fmt.Errorf("%w: missing channel", message.ErrMalformed)
	}
	return rec, nil
}

// peekChannel returns the channel of an encoded record without copying the
// body. Used to filter scans before paying for a full decode.
func peekChannel(b []byte) (string, bool) {
	if len(b) < 4 {
		return "", false
	}
	num, typ, n := protowire.ConsumeTag(b[:len(b)-4])
	if n < 0 || num != fieldChannel || typ != protowire.BytesType {
		return "", false
	}
	v, m := protowire.ConsumeString(b[n : len(b)-4])
	if m < 0 {
		return "", false
	}
	return v, true
}

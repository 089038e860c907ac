package rpc

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content-subtype of LogService messages.
const CodecName = "remq-wire"

type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("rpc: cannot marshal %T", v)
	}
	return m.appendWire(nil), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("rpc: cannot unmarshal into %T", v)
	}
	return m.readWire(data)
}

func (codec) Name() string { return CodecName }

// Codec returns the codec servers pass to grpc.ForceServerCodec.
func Codec() encoding.Codec { return codec{} }

func init() {
	encoding.RegisterCodec(codec{})
}

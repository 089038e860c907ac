// Package rpc defines the remq.v1.LogService gRPC contract: request and
// response messages in protobuf wire format, the codec that carries them, the
// service descriptor servers register, and a Client that exposes a remote log
// as a remq.Store.
//
// The messages follow api/remq/v1/log.proto field for field. They are
// encoded with protowire directly, so any protobuf implementation built from
// that file interoperates with the "remq-wire" codec.
//
// Example:
//
//	c, _ := rpc.Dial("127.0.0.1:7070")
//	defer c.Close()
//	client, _ := remq.New(c, live, remq.Options{})
package rpc

// Package transport is the gRPC shell around a swim.Instance: it
// translates wire messages into Instance method calls and Instance
// directives into outgoing RPCs. The retrieval pack's generated
// kvstorepb package (built from a .proto this repository's domain has no
// use for) never survived into this tree, so instead of protoc-generated
// messages this package registers its own encoding.Codec and hand-builds
// the grpc.ServiceDesc values grpc-go expects from protoc output — both
// are supported, documented extension points of google.golang.org/grpc,
// not a workaround.
package transport

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

const codecName = "gob"

// gobCodec implements encoding.Codec by delegating to encoding/gob. It is
// registered globally in init() and selected per-call via
// grpc.CallContentSubtype on the client; the server picks it up from the
// registry by the request's content subtype.
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// Package wire implements the frame encoding shared by the data-plane
// driver and the local control socket.
//
// Directord's retrieval pack ships no generated Protocol Buffer stubs,
// so rather than hand-authoring protoreflect-satisfying types this
// package registers a plain JSON codec with grpc-go via the same
// encoding.Codec extension point the generated stubs would otherwise
// use. The gRPC driver forces this codec explicitly on both ends
// (grpc.ForceServerCodec / grpc.ForceCodec), and the control socket,
// which does not use gRPC, calls Marshal/Unmarshal directly, so no
// client ever needs the protobuf wire format.
package wire

import (
	"encoding/json"
	"fmt"
)

// Name is the codec name both server and client force via
// grpc.ForceServerCodec / grpc.ForceCodec.
const Name = "directord-json"

// Codec implements google.golang.org/grpc/encoding.Codec over JSON.
type Codec struct{}

// Marshal encodes v as JSON. v is expected to implement
// json.Marshaler or be a plain struct; proto.Message is never
// required since no generated stubs exist in this module.
func (Codec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal %T: %w", v, err)
	}
	return b, nil
}

// Unmarshal decodes JSON data into v.
func (Codec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("wire: unmarshal into %T: %w", v, err)
	}
	return nil
}

// Name returns the codec's registered name.
func (Codec) Name() string {
	return Name
}

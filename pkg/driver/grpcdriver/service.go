// Package grpcdriver is Directord's reference transport: a single
// bidirectional-streaming gRPC method multiplexing all four logical
// channels over one persistent stream per identity.
//
// No generated Protocol Buffer stubs ship with this module, so the
// service is described by hand with a grpc.ServiceDesc — the same
// mechanism protoc-gen-go-grpc uses to emit its registration code —
// paired with the JSON encoding.Codec in pkg/wire.
package grpcdriver

import (
	"google.golang.org/grpc"
)

const (
	serviceName = "directord.Driver"
	methodName  = "Exchange"
	fullMethod  = "/" + serviceName + "/" + methodName
)

// envelope is the single message type exchanged on the stream. The
// identity travels with every message because a bidi stream has no
// other place to carry it once the call is established.
type envelope struct {
	Identity  string     `json:"identity"`
	SharedKey string     `json:"shared_key,omitempty"`
	Frame     *wireFrame `json:"frame"`
}

// wireFrame mirrors driver.Frame field-for-field; it lives in this
// package so pkg/driver never imports a transport-specific codec
// concern.
type wireFrame struct {
	MessageID    string `json:"message_id"`
	Channel      string `json:"channel"`
	ControlFlags uint32 `json:"control_flags"`
	Command      string `json:"command,omitempty"`
	Data         []byte `json:"data,omitempty"`
	Info         []byte `json:"info,omitempty"`
	Stderr       []byte `json:"stderr,omitempty"`
	Stdout       []byte `json:"stdout,omitempty"`
	Identity     string `json:"identity,omitempty"`
	JobSHA       string `json:"job_sha,omitempty"`
}

var streamDesc = grpc.StreamDesc{
	StreamName:    methodName,
	ServerStreams: true,
	ClientStreams: true,
}

func serviceDesc(handler grpc.StreamHandler) *grpc.ServiceDesc {
	d := streamDesc
	d.Handler = handler
	return &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*any)(nil),
		Streams:     []grpc.StreamDesc{d},
		Metadata:    "directord/driver.proto",
	}
}

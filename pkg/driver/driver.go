// Package driver defines Directord's transport-neutral contract
// between the coordinator and its clients, plus the reference and
// plug-in transports that implement it.
package driver

import (
	"context"
	"fmt"
	"time"
)

// Channel names one of the four logical wire channels a Frame can
// travel on. Every frame is self-describing: the Channel field alone
// is enough for a transport to demultiplex it.
type Channel string

const (
	ChannelHeartbeat Channel = "heartbeat"
	ChannelJob       Channel = "job"
	ChannelTransfer  Channel = "transfer"
	ChannelReturn    Channel = "return"
)

// Frame is the unit every transport encodes. Stdout/Stderr/Info/Data
// carry sealed-box ciphertext instead of plaintext when
// curve_encryption is enabled (see pkg/driver/grpcdriver).
type Frame struct {
	MessageID    string
	Channel      Channel
	ControlFlags uint32
	Command      string
	Data         []byte
	Info         []byte
	Stderr       []byte
	Stdout       []byte
	Identity     string
	JobSHA       string
}

// Config holds the subset of pkg/config's Config a driver needs to
// bind or connect: listen/dial address, shared_key and
// curve_encryption toggle, plus the transport's own name.
type Config struct {
	Driver           string
	BindAddr         string
	ServerAddr       string
	SharedKey        string
	CurveEncryption  bool
	KeyDir           string
	HeartbeatTimeout time.Duration

	// AMQP-specific, ignored by grpcdriver.
	AMQPURL string
}

// Driver is the transport-neutral contract spec.md names: bind on the
// server side, connect on the client side, then exchange frames on
// the data channels and the heartbeat channel independently.
type Driver interface {
	Bind(ctx context.Context, cfg Config) error
	Connect(ctx context.Context, cfg Config) error
	Send(ctx context.Context, identity string, f *Frame) error
	Receive(ctx context.Context) (identity string, f *Frame, err error)
	HeartbeatSend(ctx context.Context, identity string, f *Frame) error
	HeartbeatRecv(ctx context.Context) (identity string, f *Frame, err error)
	Close() error
}

// Builder constructs a fresh, unbound/unconnected Driver instance.
type Builder func() Driver

var registry = map[string]Builder{}

// Register associates a driver name (the config "driver" key's value)
// with a constructor. Called from each transport's init().
func Register(name string, build Builder) {
	registry[name] = build
}

// New looks up a registered driver by name.
func New(name string) (Driver, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("driver: no transport registered under %q", name)
	}
	return build(), nil
}

// RetryPolicy is the bounded exponential backoff every driver applies
// before a frame it could not deliver is declared NACKED.
type RetryPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
	Attempts   int
}

// DefaultRetryPolicy is the policy named in spec.md §4.1: 0.5s initial
// backoff, doubling, capped at 30s, 5 attempts before giving up.
var DefaultRetryPolicy = RetryPolicy{
	Initial:    500 * time.Millisecond,
	Multiplier: 2,
	Max:        30 * time.Second,
	Attempts:   5,
}

// Backoff returns the delay before retry attempt n (0-indexed).
func (p RetryPolicy) Backoff(n int) time.Duration {
	d := p.Initial
	for i := 0; i < n; i++ {
		d = time.Duration(float64(d) * p.Multiplier)
		if d > p.Max {
			return p.Max
		}
	}
	return d
}

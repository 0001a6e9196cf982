package grpcdriver

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/cuemby/directord/pkg/driver"
	"github.com/cuemby/directord/pkg/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func init() {
	driver.Register("grpc", func() driver.Driver { return &Driver{} })
}

// inbound is a frame tagged with the identity it arrived from, used
// by the coordinator side where a single Receive/HeartbeatRecv call
// serves every connected identity.
type inbound struct {
	identity string
	frame    *driver.Frame
}

// peer is one identity's live stream on the server side: frames Send
// enqueues here are written out by the stream's own goroutine so that
// ordering within (identity, channel) matches arrival order.
type peer struct {
	out chan *driver.Frame
}

// Driver implements driver.Driver over a single bidirectional gRPC
// stream per identity (method Exchange), multiplexing all four
// logical channels by Frame.Channel. The same value plays the
// coordinator's Bind role or a client's Connect role depending on
// which method is called first; a process never calls both.
type Driver struct {
	cfg driver.Config

	// server-side state
	listener net.Listener
	server   *grpc.Server
	mu       sync.Mutex
	peers    map[string]*peer
	data     chan inbound
	hb       chan inbound

	// client-side state
	conn       *grpc.ClientConn
	clientCtx  context.Context
	stream     grpc.ClientStream
	clientData chan *driver.Frame
	clientHB   chan *driver.Frame

	// curve_encryption state, populated by SetOwnKeys/SetPeerKey before
	// Bind/Connect when cfg.CurveEncryption is set.
	ownKeys  *KeyPair
	peerKeys map[string]*[32]byte
}

// SetOwnKeys installs this process's long-term keypair, required
// before Bind or Connect when curve_encryption is enabled.
func (d *Driver) SetOwnKeys(kp *KeyPair) { d.ownKeys = kp }

// SetPeerKey records a remote identity's public key so frames to/from
// it can be sealed and opened.
func (d *Driver) SetPeerKey(identity string, pub *[32]byte) {
	if d.peerKeys == nil {
		d.peerKeys = make(map[string]*[32]byte)
	}
	d.peerKeys[identity] = pub
}

// Bind starts the gRPC listener and registers the hand-written
// Exchange service description from service.go.
func (d *Driver) Bind(ctx context.Context, cfg driver.Config) error {
	d.cfg = cfg
	d.peers = make(map[string]*peer)
	d.data = make(chan inbound, 256)
	d.hb = make(chan inbound, 256)

	lis, err := net.Listen("tcp", cfg.BindAddr)
	if err != nil {
		return fmt.Errorf("grpcdriver: listen %s: %w", cfg.BindAddr, err)
	}
	d.listener = lis

	d.server = grpc.NewServer(grpc.ForceServerCodec(wire.Codec{}))
	d.server.RegisterService(serviceDesc(d.handleStream), nil)

	go func() {
		<-ctx.Done()
		d.server.GracefulStop()
	}()

	go func() {
		_ = d.server.Serve(lis)
	}()

	return nil
}

func (d *Driver) handleStream(_ any, stream grpc.ServerStream) error {
	var env envelope
	if err := stream.RecvMsg(&env); err != nil {
		return err
	}
	if d.cfg.SharedKey != "" && env.SharedKey != d.cfg.SharedKey {
		return fmt.Errorf("grpcdriver: shared_key mismatch from %q", env.Identity)
	}

	p := &peer{out: make(chan *driver.Frame, 64)}
	d.mu.Lock()
	d.peers[env.Identity] = p
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.peers, env.Identity)
		d.mu.Unlock()
		close(p.out)
	}()

	d.openIfEncrypted(env.Frame)
	d.route(env.Identity, fromWire(env.Frame))

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for f := range p.out {
			wf := toWire(f)
			if d.cfg.CurveEncryption && d.ownKeys != nil {
				if pub, ok := d.peerKeys[env.Identity]; ok {
					if err := sealFrame(wf, pub); err != nil {
						continue
					}
				}
			}
			out := envelope{Identity: env.Identity, Frame: wf}
			if err := stream.SendMsg(&out); err != nil {
				return
			}
		}
	}()

	for {
		var next envelope
		if err := stream.RecvMsg(&next); err != nil {
			return err
		}
		d.openIfEncrypted(next.Frame)
		d.route(env.Identity, fromWire(next.Frame))
	}
}

// openIfEncrypted decrypts a frame's payload fields with this
// process's own keypair when curve_encryption is configured.
func (d *Driver) openIfEncrypted(wf *wireFrame) {
	if wf == nil || !d.cfg.CurveEncryption || d.ownKeys == nil {
		return
	}
	_ = openFrame(wf, d.ownKeys.Public, d.ownKeys.Private)
}

func (d *Driver) route(identity string, f *driver.Frame) {
	if f == nil {
		return
	}
	item := inbound{identity: identity, frame: f}
	if f.Channel == driver.ChannelHeartbeat {
		d.hb <- item
	} else {
		d.data <- item
	}
}

// Connect dials the coordinator and opens the single persistent
// Exchange stream this identity will multiplex every channel over.
func (d *Driver) Connect(ctx context.Context, cfg driver.Config) error {
	d.cfg = cfg
	d.clientData = make(chan *driver.Frame, 256)
	d.clientHB = make(chan *driver.Frame, 256)

	conn, err := grpc.NewClient(cfg.ServerAddr,
		grpc.WithDefaultCallOptions(grpc.ForceCodec(wire.Codec{})),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("grpcdriver: dial %s: %w", cfg.ServerAddr, err)
	}
	d.conn = conn

	stream, err := conn.NewStream(ctx, &streamDesc, fullMethod)
	if err != nil {
		return fmt.Errorf("grpcdriver: open stream: %w", err)
	}
	d.stream = stream
	d.clientCtx = ctx

	go d.clientReadLoop()
	return nil
}

func (d *Driver) clientReadLoop() {
	for {
		var env envelope
		if err := d.stream.RecvMsg(&env); err != nil {
			close(d.clientData)
			close(d.clientHB)
			return
		}
		d.openIfEncrypted(env.Frame)
		f := fromWire(env.Frame)
		if f == nil {
			continue
		}
		if f.Channel == driver.ChannelHeartbeat {
			d.clientHB <- f
		} else {
			d.clientData <- f
		}
	}
}

// Send writes f to identity's outbound queue (server role) or to the
// single open stream (client role).
func (d *Driver) Send(ctx context.Context, identity string, f *driver.Frame) error {
	if d.stream != nil {
		wf := toWire(f)
		if d.cfg.CurveEncryption && d.ownKeys != nil {
			if pub, ok := d.peerKeys[identity]; ok {
				if err := sealFrame(wf, pub); err != nil {
					return err
				}
			}
		}
		return d.stream.SendMsg(&envelope{Identity: identity, SharedKey: d.cfg.SharedKey, Frame: wf})
	}
	d.mu.Lock()
	p, ok := d.peers[identity]
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("grpcdriver: identity %q not connected", identity)
	}
	select {
	case p.out <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the next data-channel frame for either role.
func (d *Driver) Receive(ctx context.Context) (string, *driver.Frame, error) {
	if d.stream != nil {
		select {
		case f, ok := <-d.clientData:
			if !ok {
				return "", nil, fmt.Errorf("grpcdriver: stream closed")
			}
			return f.Identity, f, nil
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	select {
	case item, ok := <-d.data:
		if !ok {
			return "", nil, fmt.Errorf("grpcdriver: driver closed")
		}
		return item.identity, item.frame, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// HeartbeatSend writes f to the heartbeat channel, reusing the same
// multiplexed stream/queue as Send.
func (d *Driver) HeartbeatSend(ctx context.Context, identity string, f *driver.Frame) error {
	f.Channel = driver.ChannelHeartbeat
	return d.Send(ctx, identity, f)
}

// HeartbeatRecv returns the next heartbeat-channel frame.
func (d *Driver) HeartbeatRecv(ctx context.Context) (string, *driver.Frame, error) {
	if d.stream != nil {
		select {
		case f, ok := <-d.clientHB:
			if !ok {
				return "", nil, fmt.Errorf("grpcdriver: stream closed")
			}
			return f.Identity, f, nil
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
	select {
	case item, ok := <-d.hb:
		if !ok {
			return "", nil, fmt.Errorf("grpcdriver: driver closed")
		}
		return item.identity, item.frame, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

// Close tears down whichever role was active.
func (d *Driver) Close() error {
	if d.stream != nil {
		if cs, ok := d.stream.(interface{ CloseSend() error }); ok {
			_ = cs.CloseSend()
		}
		if d.conn != nil {
			return d.conn.Close()
		}
		return nil
	}
	if d.server != nil {
		d.server.Stop()
	}
	if d.listener != nil {
		return d.listener.Close()
	}
	return nil
}

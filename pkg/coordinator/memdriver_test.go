package coordinator

import (
	"context"
	"sync"

	"github.com/cuemby/directord/pkg/driver"
)

// memDriver is a minimal in-process driver.Driver for coordinator
// tests: Send on one identity's outbound queue, Receive drains a
// single shared inbound queue fed by test code via deliver/returnFrom.
type memDriver struct {
	mu       sync.Mutex
	sent     map[string][]*driver.Frame
	inbound  chan frameEnvelope
}

type frameEnvelope struct {
	identity string
	frame    *driver.Frame
}

func newMemDriver() *memDriver {
	return &memDriver{
		sent:    make(map[string][]*driver.Frame),
		inbound: make(chan frameEnvelope, 256),
	}
}

func (m *memDriver) Bind(ctx context.Context, cfg driver.Config) error    { return nil }
func (m *memDriver) Connect(ctx context.Context, cfg driver.Config) error { return nil }

func (m *memDriver) Send(ctx context.Context, identity string, f *driver.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[identity] = append(m.sent[identity], f)
	return nil
}

func (m *memDriver) Receive(ctx context.Context) (string, *driver.Frame, error) {
	select {
	case env := <-m.inbound:
		return env.identity, env.frame, nil
	case <-ctx.Done():
		return "", nil, ctx.Err()
	}
}

func (m *memDriver) HeartbeatSend(ctx context.Context, identity string, f *driver.Frame) error {
	return nil
}

func (m *memDriver) HeartbeatRecv(ctx context.Context) (string, *driver.Frame, error) {
	<-ctx.Done()
	return "", nil, ctx.Err()
}

func (m *memDriver) Close() error { return nil }

// deliverReturn injects a return frame as if it arrived from identity.
func (m *memDriver) deliverReturn(identity string, f *driver.Frame) {
	f.Channel = driver.ChannelReturn
	m.inbound <- frameEnvelope{identity: identity, frame: f}
}

// sentTo returns every frame sent to identity, in send order.
func (m *memDriver) sentTo(identity string) []*driver.Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*driver.Frame, len(m.sent[identity]))
	copy(out, m.sent[identity])
	return out
}

package wayland

import (
	"context"

	"github.com/Zereker/wayland/wire"
)

// Dispatcher handles the messages addressed to one object. Implementations
// switch on m.Opcode, decode the arguments with m.Reader() and return
// wire.UnknownOpcode for opcodes outside their table. A returned error is
// fatal for the connection unless the connection's error callback decides
// otherwise.
//
// Handlers may be invoked concurrently only when the host shares them across
// connections; they synchronize their own state.
type Dispatcher interface {
	Dispatch(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
	return f(ctx, c, sender, m)
}

// Dispatch routes m to the handler registered for its sender.
func (c *Conn) Dispatch(ctx context.Context, m *wire.Message) error {
	handler, ok := c.store.Get(m.Sender)
	if !ok {
		return wire.MissingObject(m.Sender)
	}
	return handler.Dispatch(ctx, c, m.Sender, m)
}

package wayland

import (
	"context"
	"fmt"

	"github.com/Zereker/wayland/wire"
)

// wl_display opcodes.
const (
	displaySync        uint16 = 0
	displayGetRegistry uint16 = 1

	displayEventError    uint16 = 0
	displayEventDeleteID uint16 = 1
)

// wl_display error codes.
const (
	DisplayErrorInvalidObject  uint32 = 0
	DisplayErrorInvalidMethod  uint32 = 1
	DisplayErrorNoMemory       uint32 = 2
	DisplayErrorImplementation uint32 = 3
)

// DisplayInterface describes wl_display.
var DisplayInterface = &Interface{
	Name:    "wl_display",
	Version: 1,
	Requests: []Method{
		{Name: "sync", Signature: "n"},
		{Name: "get_registry", Signature: "n"},
	},
	Events: []Method{
		{Name: "error", Signature: "ous"},
		{Name: "delete_id", Signature: "u"},
	},
	Errors: map[string]uint32{
		"invalid_object": DisplayErrorInvalidObject,
		"invalid_method": DisplayErrorInvalidMethod,
		"no_memory":      DisplayErrorNoMemory,
		"implementation": DisplayErrorImplementation,
	},
}

// CallbackInterface describes wl_callback.
var CallbackInterface = &Interface{
	Name:    "wl_callback",
	Version: 1,
	Events:  []Method{{Name: "done", Signature: "u"}},
}

// Display is the server-side handler of the wl_display singleton. It answers
// sync with a callback and hands out registries advertising its globals.
type Display struct {
	globals []Global
}

// NewDisplay returns a display advertising globals. Globals without a name
// are numbered by position, starting at 1.
func NewDisplay(globals ...Global) *Display {
	d := &Display{globals: make([]Global, len(globals))}
	for i, g := range globals {
		if g.Name == 0 {
			g.Name = uint32(i + 1)
		}
		d.globals[i] = g
	}
	return d
}

// Interface implements Described.
func (d *Display) Interface() *Interface { return DisplayInterface }

// Globals returns the advertised globals.
func (d *Display) Globals() []Global { return d.globals }

// Dispatch implements Dispatcher.
func (d *Display) Dispatch(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
	r := m.Reader()
	switch m.Opcode {
	case displaySync:
		id, err := r.NewID()
		if err != nil {
			return err
		}
		if err := r.Finish(); err != nil {
			return err
		}
		if err := c.store.InsertPeer(id, callback{}); err != nil {
			return err
		}
		if err := c.Post(ctx, id, 0, wire.NewBuilder().Uint(c.NextSerial())); err != nil {
			return err
		}
		return c.DeleteID(ctx, id)

	case displayGetRegistry:
		id, err := r.NewID()
		if err != nil {
			return err
		}
		if err := r.Finish(); err != nil {
			return err
		}
		reg := &Registry{id: id, globals: d.globals}
		if err := c.store.InsertPeer(id, reg); err != nil {
			return err
		}
		return reg.advertise(ctx, c)

	default:
		return wire.UnknownOpcode(m.Opcode)
	}
}

// callback is a wl_callback: it only ever emits done.
type callback struct{}

func (callback) Interface() *Interface { return CallbackInterface }

func (callback) Dispatch(_ context.Context, _ *Conn, _ wire.ObjectID, m *wire.Message) error {
	return wire.UnknownOpcode(m.Opcode)
}

// PostError sends wl_display.error for object and returns the matching error.
// Handlers return it so the connection closes after the event is flushed.
func (c *Conn) PostError(ctx context.Context, object wire.ObjectID, code uint32, msg string) error {
	c.errorPosted.Store(true)
	b := wire.NewBuilder().Object(object).Uint(code).String(msg)
	if err := c.Post(ctx, wire.DisplayID, displayEventError, b); err != nil {
		return err
	}
	return &wire.Error{
		Kind: wire.KindCustom,
		N:    code,
		Text: fmt.Sprintf("object %d: error %d: %s", object, code, msg),
	}
}

// DeleteID removes id from the store. On the server side, ids allocated by
// the client are acknowledged with wl_display.delete_id so the client can
// reuse them.
func (c *Conn) DeleteID(ctx context.Context, id wire.ObjectID) error {
	c.store.Remove(id)
	if c.opts.role != RoleServer || id.IsServer() {
		return nil
	}
	return c.Post(ctx, wire.DisplayID, displayEventDeleteID, wire.NewBuilder().Uint(uint32(id)))
}

package wayland

import (
	"context"
	"fmt"

	"github.com/Zereker/wayland/wire"
)

const (
	registryBind uint16 = 0

	registryEventGlobal       uint16 = 0
	registryEventGlobalRemove uint16 = 1
)

// RegistryInterface describes wl_registry.
var RegistryInterface = &Interface{
	Name:     "wl_registry",
	Version:  1,
	Requests: []Method{{Name: "bind", Signature: "usun"}},
	Events: []Method{
		{Name: "global", Signature: "usu"},
		{Name: "global_remove", Signature: "u"},
	},
}

// BindFunc creates the handler of a newly bound global.
type BindFunc func(ctx context.Context, c *Conn, id wire.ObjectID, version uint32) (Dispatcher, error)

// Global is an object advertised through the registry.
type Global struct {
	Name      uint32
	Interface string
	Version   uint32
	Bind      BindFunc
}

// Registry is the server-side handler of one wl_registry object.
type Registry struct {
	id      wire.ObjectID
	globals []Global
}

// Interface implements Described.
func (r *Registry) Interface() *Interface { return RegistryInterface }

func (r *Registry) advertise(ctx context.Context, c *Conn) error {
	for _, g := range r.globals {
		b := wire.NewBuilder().Uint(g.Name).String(g.Interface).Uint(g.Version)
		if err := c.Post(ctx, r.id, registryEventGlobal, b); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) lookup(name uint32) (Global, bool) {
	for _, g := range r.globals {
		if g.Name == name {
			return g, true
		}
	}
	return Global{}, false
}

// Dispatch implements Dispatcher.
func (r *Registry) Dispatch(ctx context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
	if m.Opcode != registryBind {
		return wire.UnknownOpcode(m.Opcode)
	}

	rd := m.Reader()
	name, err := rd.Uint()
	if err != nil {
		return err
	}
	nid, err := rd.UntypedNewID()
	if err != nil {
		return err
	}
	if err := rd.Finish(); err != nil {
		return err
	}
	if err := c.store.checkPeerID(nid.ID); err != nil {
		return err
	}

	g, ok := r.lookup(name)
	if !ok || g.Interface != nid.Interface {
		return c.PostError(ctx, sender, DisplayErrorInvalidObject,
			fmt.Sprintf("invalid global %s (%d)", nid.Interface, name))
	}
	if nid.Version == 0 || nid.Version > g.Version {
		return c.PostError(ctx, sender, DisplayErrorInvalidObject,
			fmt.Sprintf("invalid version for global %s (%d): have %d, wanted %d",
				g.Interface, name, g.Version, nid.Version))
	}
	if g.Bind == nil {
		return c.PostError(ctx, sender, DisplayErrorImplementation,
			fmt.Sprintf("global %s (%d) cannot be bound", g.Interface, name))
	}

	handler, err := g.Bind(ctx, c, nid.ID, nid.Version)
	if err != nil {
		return err
	}
	return c.store.InsertPeer(nid.ID, handler)
}

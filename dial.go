package wayland

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"

	"github.com/Zereker/wayland/wire"
)

// SocketPath resolves the server socket from WAYLAND_DISPLAY: an absolute
// path is used as is, anything else names a socket in the runtime directory.
// An unset display defaults to wayland-0.
func SocketPath() (string, error) {
	name, ok := os.LookupEnv(EnvDisplay)
	if !ok || name == "" {
		name = DefaultDisplay
	}
	if filepath.IsAbs(name) {
		return name, nil
	}

	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// Dial connects to the compositor named by the environment and returns a
// client connection with the display proxy registered at id 1. An inherited
// socket in WAYLAND_SOCKET takes precedence over WAYLAND_DISPLAY.
func Dial(ctx context.Context, opts ...Option) (*Conn, error) {
	if v, ok := os.LookupEnv(EnvSocket); ok {
		uc, err := inheritedSocket(v)
		if err != nil {
			return nil, err
		}
		return newClientConn(uc, opts)
	}

	path, err := SocketPath()
	if err != nil {
		return nil, err
	}
	return DialPath(ctx, path, opts...)
}

// DialPath connects to the compositor socket at path.
func DialPath(ctx context.Context, path string, opts ...Option) (*Conn, error) {
	var d net.Dialer
	c, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, wire.IOError(errors.Wrapf(err, "dial %s", path))
	}
	return newClientConn(c.(*net.UnixConn), opts)
}

func inheritedSocket(v string) (*net.UnixConn, error) {
	fd, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %s", EnvSocket)
	}
	os.Unsetenv(EnvSocket)

	file := os.NewFile(uintptr(fd), EnvSocket)
	defer file.Close()

	c, err := net.FileConn(file)
	if err != nil {
		return nil, wire.IOError(errors.Wrapf(err, "open %s connection", EnvSocket))
	}
	uc, ok := c.(*net.UnixConn)
	if !ok {
		c.Close()
		return nil, errors.Errorf("%s is not a unix socket", EnvSocket)
	}
	return uc, nil
}

// clientConns tracks the open client connections of the process so that
// their ConnRefs resolve.
var clientConns = newConnTable()

func newClientConn(uc *net.UnixConn, opts []Option) (*Conn, error) {
	opts = append(opts, RoleOption(RoleClient), ObjectOption(wire.DisplayID, clientDisplay{}))
	c, err := NewConn(uc, opts...)
	if err != nil {
		uc.Close()
		return nil, err
	}
	clientConns.add(c)
	return c, nil
}

// clientDisplay receives wl_display events on the client side.
type clientDisplay struct{}

func (clientDisplay) Interface() *Interface { return DisplayInterface }

func (clientDisplay) Dispatch(_ context.Context, c *Conn, _ wire.ObjectID, m *wire.Message) error {
	r := m.Reader()
	switch m.Opcode {
	case displayEventError:
		object, err := r.NullableObject()
		if err != nil {
			return err
		}
		code, err := r.Uint()
		if err != nil {
			return err
		}
		msg, err := r.String()
		if err != nil {
			return err
		}
		c.errorPosted.Store(true)
		return &wire.Error{
			Kind: wire.KindCustom,
			N:    code,
			Text: "protocol error on object " + strconv.FormatUint(uint64(object), 10) + ": " + msg,
		}

	case displayEventDeleteID:
		id, err := r.Uint()
		if err != nil {
			return err
		}
		c.store.Remove(wire.ObjectID(id))
		return nil

	default:
		return wire.UnknownOpcode(m.Opcode)
	}
}

// Sync sends wl_display.sync and registers done to run when the server
// answers. All requests sent before Sync have been processed by then.
func (c *Conn) Sync(ctx context.Context, done func(serial uint32)) error {
	id, err := c.store.NextID()
	if err != nil {
		return err
	}
	cb := DispatcherFunc(func(_ context.Context, c *Conn, sender wire.ObjectID, m *wire.Message) error {
		if m.Opcode != 0 {
			return wire.UnknownOpcode(m.Opcode)
		}
		serial, err := m.Reader().Uint()
		if err != nil {
			return err
		}
		c.store.Remove(sender)
		if done != nil {
			done(serial)
		}
		return nil
	})
	if err := c.store.Insert(id, cb); err != nil {
		return err
	}
	return c.Post(ctx, wire.DisplayID, displaySync, wire.NewBuilder().NewID(id))
}

// GetRegistry sends wl_display.get_registry with handler receiving the
// registry events, and returns the new registry's id.
func (c *Conn) GetRegistry(ctx context.Context, handler Dispatcher) (wire.ObjectID, error) {
	id, err := c.store.NextID()
	if err != nil {
		return 0, err
	}
	if err := c.store.Insert(id, handler); err != nil {
		return 0, err
	}
	return id, c.Post(ctx, wire.DisplayID, displayGetRegistry, wire.NewBuilder().NewID(id))
}

// Bind sends wl_registry.bind for the global name, registering handler as
// the new object, and returns its id.
func (c *Conn) Bind(ctx context.Context, registry wire.ObjectID, name uint32, iface string, version uint32, handler Dispatcher) (wire.ObjectID, error) {
	id, err := c.store.NextID()
	if err != nil {
		return 0, err
	}
	if err := c.store.Insert(id, handler); err != nil {
		return 0, err
	}
	b := wire.NewBuilder().Uint(name).UntypedNewID(wire.NewID{Interface: iface, Version: version, ID: id})
	return id, c.Post(ctx, registry, registryBind, b)
}

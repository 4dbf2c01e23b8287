package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Zereker/wayland"
	"github.com/Zereker/wayland/wire"
)

// wl_shm formats sent on bind.
const (
	shmFormatARGB8888 uint32 = 0
	shmFormatXRGB8888 uint32 = 1
)

// tracer logs every request sent to one object. Objects created by a traced
// request are traced too; destructors delete the object.
type tracer struct {
	iface   *wayland.Interface
	version uint32
	log     *logrus.Entry
}

func newTracer(iface *wayland.Interface, version uint32, log *logrus.Entry) *tracer {
	return &tracer{iface: iface, version: version, log: log}
}

func (t *tracer) Interface() *wayland.Interface { return t.iface }

func (t *tracer) Dispatch(ctx context.Context, c *wayland.Conn, sender wire.ObjectID, m *wire.Message) error {
	method, args, err := t.iface.DecodeRequest(m)
	if err != nil {
		return err
	}

	t.log.WithFields(logrus.Fields{
		"conn":   c.ID(),
		"object": fmt.Sprintf("%s@%d", t.iface.Name, sender),
	}).Info(formatCall(method.Name, args))

	for _, a := range args {
		switch v := a.Value.(type) {
		case *wire.FD:
			if err := v.Close(); err != nil {
				t.log.WithError(err).Warn("close received fd")
			}
		case wire.ObjectID:
			if a.Type != wire.ArgNewID {
				continue
			}
			if err := t.create(c, method.Name, v); err != nil {
				return err
			}
		}
	}

	if destructors[method.Name] {
		return c.DeleteID(ctx, sender)
	}
	return nil
}

func (t *tracer) create(c *wayland.Conn, request string, id wire.ObjectID) error {
	key := t.iface.Name + "." + request
	child, ok := children[key]
	if !ok {
		return wire.Errorf("no description for objects created by %s", key)
	}
	return c.Store().InsertPeer(id, newTracer(child, t.version, t.log))
}

func formatCall(name string, args []wire.Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.String()
	}
	return name + "(" + strings.Join(parts, ", ") + ")"
}

// traceGlobal returns the global advertising iface whose bound objects are
// traced.
func traceGlobal(iface *wayland.Interface, log *logrus.Entry) wayland.Global {
	return wayland.Global{
		Interface: iface.Name,
		Version:   iface.Version,
		Bind: func(ctx context.Context, c *wayland.Conn, id wire.ObjectID, version uint32) (wayland.Dispatcher, error) {
			log.WithFields(logrus.Fields{
				"conn":    c.ID(),
				"object":  fmt.Sprintf("%s@%d", iface.Name, id),
				"version": version,
			}).Info("bind")

			if iface.Name == shmInterface.Name {
				for _, format := range []uint32{shmFormatARGB8888, shmFormatXRGB8888} {
					if err := c.Post(ctx, id, 0, wire.NewBuilder().Uint(format)); err != nil {
						return nil, err
					}
				}
			}
			return newTracer(iface, version, log), nil
		},
	}
}

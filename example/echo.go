package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Zereker/wayland"
	"github.com/Zereker/wayland/wire"
)

// echoInterface is a toy protocol: every say request is answered with a
// said event carrying the same text.
var echoInterface = &wayland.Interface{
	Name:    "example_echo",
	Version: 1,
	Requests: []wayland.Method{
		{Name: "say", Signature: "s"},
		{Name: "destroy", Signature: ""},
	},
	Events: []wayland.Method{{Name: "said", Signature: "s"}},
}

type echo struct{}

func (echo) Interface() *wayland.Interface { return echoInterface }

func (echo) Dispatch(ctx context.Context, c *wayland.Conn, sender wire.ObjectID, m *wire.Message) error {
	switch m.Opcode {
	case 0:
		r := m.Reader()
		text, err := r.String()
		if err != nil {
			return err
		}
		if err := r.Finish(); err != nil {
			return err
		}
		c.Logger().Info("say", "object", sender, "text", text)
		return c.Post(ctx, sender, 0, wire.NewBuilder().String(text))
	case 1:
		return c.DeleteID(ctx, sender)
	default:
		return wire.UnknownOpcode(m.Opcode)
	}
}

func main() {
	listener, err := wayland.Listen()
	if err != nil {
		slog.Error("failed to create listener", "error", err)
		return
	}

	server := wayland.NewServer(listener,
		wayland.GlobalOption(wayland.Global{
			Interface: echoInterface.Name,
			Version:   echoInterface.Version,
			Bind: func(context.Context, *wayland.Conn, wire.ObjectID, uint32) (wayland.Dispatcher, error) {
				return echo{}, nil
			},
		}),
		wayland.ConnOption(wayland.OnErrorOption(func(err error) wayland.ErrorAction {
			slog.Error("connection error", "error", err)
			return wayland.Disconnect
		})),
	)
	defer server.Close()

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down server...")
		cancel()
	}()

	slog.Info("server start", "display", listener.Name())
	if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
		slog.Error("server error", "error", err)
	}
}

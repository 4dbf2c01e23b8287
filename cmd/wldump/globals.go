package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Zereker/wayland"
	"github.com/Zereker/wayland/wire"
)

var globalsTimeout time.Duration

var globalsCmd = &cobra.Command{
	Use:   "globals",
	Short: "list the globals of a running compositor",
	Long:  `Connects to the compositor named by WAYLAND_DISPLAY and prints the globals its registry advertises`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), globalsTimeout)
		defer cancel()
		return listGlobals(ctx, os.Stdout)
	},
}

func init() {
	globalsCmd.Flags().DurationVar(&globalsTimeout, "timeout", 5*time.Second, "Time to wait for the compositor")
}

type globalEntry struct {
	name    uint32
	iface   string
	version uint32
}

// globalCollector records wl_registry.global events.
type globalCollector struct {
	mu      sync.Mutex
	globals []globalEntry
}

func (g *globalCollector) Dispatch(_ context.Context, _ *wayland.Conn, _ wire.ObjectID, m *wire.Message) error {
	if m.Opcode != 0 {
		return nil
	}
	r := m.Reader()
	name, err := r.Uint()
	if err != nil {
		return err
	}
	iface, err := r.String()
	if err != nil {
		return err
	}
	version, err := r.Uint()
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.globals = append(g.globals, globalEntry{name, iface, version})
	return nil
}

func listGlobals(ctx context.Context, out io.Writer) error {
	c, err := wayland.Dial(ctx, wayland.LoggerOption(newLogger(logrus.WithField("component", "wldump"))))
	if err != nil {
		return err
	}
	return printGlobals(ctx, c, out)
}

// printGlobals runs c until the registry has been advertised and writes it
// to out.
func printGlobals(ctx context.Context, c *wayland.Conn, out io.Writer) error {
	defer c.Close()

	runErr := make(chan error, 1)
	go func() {
		runErr <- c.Run(ctx)
	}()

	collector := &globalCollector{}
	if _, err := c.GetRegistry(ctx, collector); err != nil {
		return err
	}
	synced := make(chan struct{})
	if err := c.Sync(ctx, func(uint32) { close(synced) }); err != nil {
		return err
	}

	select {
	case <-synced:
	case err := <-runErr:
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("connection ended before sync: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}

	collector.mu.Lock()
	defer collector.mu.Unlock()

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tINTERFACE\tVERSION")
	for _, g := range collector.globals {
		fmt.Fprintf(w, "%d\t%s\t%d\n", g.name, g.iface, g.version)
	}
	return w.Flush()
}

package wayland

import (
	"context"
	"net"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/Zereker/wayland/wire"
)

// Server runs a Conn for every stream accepted by a Listener. Each connection
// gets the shared Display at object id 1 and is tracked in a connection table
// for as long as it runs.
type Server struct {
	listener *Listener
	display  *Display
	logger   Logger
	connOpts []Option

	conns *connTable
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// ServerLoggerOption sets the logger for the server and its connections.
func ServerLoggerOption(logger Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// GlobalOption advertises g through the registry of every connection.
func GlobalOption(g Global) ServerOption {
	return func(s *Server) {
		s.display.globals = append(s.display.globals, g)
	}
}

// ConnOption applies opt to every connection the server creates.
func ConnOption(opt Option) ServerOption {
	return func(s *Server) {
		s.connOpts = append(s.connOpts, opt)
	}
}

// NewServer returns a server accepting on l.
func NewServer(l *Listener, opts ...ServerOption) *Server {
	s := &Server{
		listener: l,
		display:  &Display{},
		logger:   l.logger,
		conns:    newConnTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.display = NewDisplay(s.display.globals...)
	return s
}

// Serve accepts and runs connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	return s.listener.Serve(ctx, s)
}

// Handle implements Handler.
func (s *Server) Handle(ctx context.Context, uc *net.UnixConn) {
	opts := append([]Option{LoggerOption(s.logger)}, s.connOpts...)
	opts = append(opts, RoleOption(RoleServer), ObjectOption(wire.DisplayID, s.display))

	c, err := NewConn(uc, opts...)
	if err != nil {
		s.logger.Error("failed to create connection", "error", err)
		uc.Close()
		return
	}

	// Run untracks c when it returns.
	s.conns.add(c)

	if err := c.Run(ctx); err != nil {
		s.logger.Debug("connection ended", "conn", c.ID(), "error", err)
	}
}

// Display returns the display shared by all connections.
func (s *Server) Display() *Display {
	return s.display
}

// Conns returns the number of running connections.
func (s *Server) Conns() int {
	return s.conns.len()
}

// Close closes the listener and every running connection.
func (s *Server) Close() error {
	var result *multierror.Error
	if err := s.listener.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, c := range s.conns.all() {
		if err := c.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// connTable maps connection ids to open connections. A connection leaves
// its table when it is closed.
type connTable struct {
	mu    sync.RWMutex
	conns map[uint64]*Conn
}

func newConnTable() *connTable {
	return &connTable{conns: make(map[uint64]*Conn)}
}

func (t *connTable) add(c *Conn) {
	id := c.ID()
	t.mu.Lock()
	t.conns[id] = c
	t.mu.Unlock()

	c.track(ConnRef{id: id, table: t}, func() { t.remove(id) })
}

func (t *connTable) remove(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.conns, id)
}

func (t *connTable) get(id uint64) (*Conn, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

func (t *connTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

func (t *connTable) all() []*Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	conns := make([]*Conn, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	return conns
}

// ConnRef refers to a connection without keeping it alive. It resolves only
// while the connection is open.
type ConnRef struct {
	id    uint64
	table *connTable
}

// ID returns the identity of the referenced connection.
func (r ConnRef) ID() uint64 {
	return r.id
}

// Conn resolves the reference, failing with wire.ErrConnectionDropped once
// the connection has ended.
func (r ConnRef) Conn() (*Conn, error) {
	if r.table == nil {
		return nil, wire.ErrConnectionDropped
	}
	c, ok := r.table.get(r.id)
	if !ok || c.IsClosed() {
		return nil, wire.ErrConnectionDropped
	}
	return c, nil
}

// Package wayland implements the connection side of the Wayland protocol:
// per-connection object stores, request and event dispatch, the runtime
// directory listener and client dialing. The wire format itself lives in
// package wire.
package wayland

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Zereker/wayland/wire"
)

// Errors returned by connection operations.
var (
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrBufferFull is returned when the send buffer cannot accept more messages.
	ErrBufferFull = errors.New("send buffer full")
)

// Default configuration values.
const (
	// defaultBufferSize is the default size of the message channel buffer.
	defaultBufferSize = 32
)

var connIDs atomic.Uint64

// Conn is one Wayland connection. Run reads and dispatches messages in the
// order they arrive and writes submitted messages in the order they were
// submitted.
type Conn struct {
	id     uint64
	sock   *wire.Socket
	store  *Store
	logger Logger

	opts options

	sendMsg     chan wire.Message
	serial      atomic.Uint32
	errorPosted atomic.Bool
	closed      atomic.Bool

	// sendMu orders enqueues against the final drain of sendMsg.
	sendMu    sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	cancel  context.CancelFunc
	ref     ConnRef
	untrack func()
}

// NewConn creates a connection over conn with the given options.
func NewConn(conn *net.UnixConn, opt ...Option) (*Conn, error) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	sock, err := wire.NewSocket(conn)
	if err != nil {
		return nil, err
	}

	id := connIDs.Add(1)
	c := &Conn{
		id:      id,
		sock:    sock,
		store:   NewStore(opts.role),
		logger:  loggerWith(opts.logger, "conn", id),
		opts:    opts,
		sendMsg: make(chan wire.Message, opts.bufferSize),
		done:    make(chan struct{}),
	}

	for oid, handler := range opts.objects {
		if err := c.store.Insert(oid, handler); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// ID returns the connection's identity.
func (c *Conn) ID() uint64 {
	return c.id
}

// Store returns the connection's object store.
func (c *Conn) Store() *Store {
	return c.store
}

// Role returns the side of the protocol this connection speaks.
func (c *Conn) Role() Role {
	return c.opts.role
}

// Logger returns the connection's logger.
func (c *Conn) Logger() Logger {
	return c.logger
}

// NextSerial returns the next event serial. Serials start at 0 and wrap.
func (c *Conn) NextSerial() uint32 {
	return c.serial.Add(1) - 1
}

// Ref returns a token that resolves to this connection until it is closed.
func (c *Conn) Ref() ConnRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ref
}

func (c *Conn) track(ref ConnRef, untrack func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ref = ref
	c.untrack = untrack
}

// Run starts the connection's read and write loops.
// It blocks until the peer disconnects, an error occurs or the context is
// canceled. The connection is closed when Run returns. An orderly close by
// the peer returns nil.
func (c *Conn) Run(ctx context.Context) error {
	c.logger.Info("connection established", "role", c.opts.role)
	c.logger.Debug("connection options", "buffer_size", c.opts.bufferSize)

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	group, child := errgroup.WithContext(ctx)
	readDone := make(chan struct{})

	group.Go(func() error {
		defer close(readDone)
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(ctx, readDone)
	})

	err := group.Wait()
	if cerr := c.closeConn(); cerr != nil {
		c.logger.Debug("close error", "error", cerr)
	}

	if errors.Is(err, io.EOF) {
		c.logger.Info("connection closed")
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Info("connection closed with error", "error", err)
	} else {
		c.logger.Info("connection closed")
	}
	return err
}

// Close closes the connection. Safe to call multiple times.
func (c *Conn) Close() error {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return c.closeConn()
}

// IsClosed returns true if the connection has been closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

// Send queues m without blocking. The connection takes ownership of m.FDs
// once m is queued.
//
// Returns:
//   - nil: message was queued (not yet written)
//   - ErrBufferFull: send buffer is full, message was NOT queued
//   - ErrConnectionClosed: connection is closed
//   - a *wire.Error if m cannot be framed
func (c *Conn) Send(m wire.Message) error {
	if err := c.checkSend(m); err != nil {
		return err
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- m:
		return nil
	default:
		return ErrBufferFull
	}
}

// SendBlocking queues m, blocking until there is room or ctx is done.
func (c *Conn) SendBlocking(ctx context.Context, m wire.Message) error {
	if err := c.checkSend(m); err != nil {
		return err
	}

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- m:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendTimeout queues m, waiting at most timeout for room in the buffer.
func (c *Conn) SendTimeout(m wire.Message, timeout time.Duration) error {
	if err := c.checkSend(m); err != nil {
		return err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	select {
	case c.sendMsg <- m:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-timer.C:
		return ErrBufferFull
	}
}

func (c *Conn) checkSend(m wire.Message) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if m.Sender == 0 {
		return wire.ErrInvalidSenderID
	}
	if m.Size() > wire.MaxMessageSize || len(m.Payload)%4 != 0 {
		return wire.InvalidLength(m.Size())
	}
	return nil
}

// Post frames the arguments accumulated in b as a message from sender and
// queues it, blocking while the send buffer is full.
func (c *Conn) Post(ctx context.Context, sender wire.ObjectID, opcode uint16, b *wire.Builder) error {
	m, err := b.Message(sender, opcode)
	if err != nil {
		return err
	}
	return c.SendBlocking(ctx, m)
}

// readLoop reads messages and dispatches each before reading the next.
// Returns when the context is canceled or an unrecoverable error occurs.
func (c *Conn) readLoop(ctx context.Context) error {
	for {
		msg, err := c.sock.ReadMessage(ctx)
		if err != nil {
			c.logger.Debug("read error", "error", err)
			return err
		}

		if err := c.Dispatch(ctx, &msg); err != nil {
			c.logger.Debug("dispatch error", "object", msg.Sender, "opcode", msg.Opcode, "error", err)
			if c.fatal(err) {
				return err
			}
		}
	}
}

func (c *Conn) fatal(err error) bool {
	if wire.IsProtocolError(err) || c.errorPosted.Load() || ctxDone(err) {
		return true
	}
	var we *wire.Error
	if errors.As(err, &we) && we.Kind == wire.KindIO {
		return true
	}
	return c.opts.onError(err) == Disconnect
}

func ctxDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// writeLoop writes queued messages. Once the read side stops it flushes what
// is still queued, so a posted protocol error reaches the peer.
func (c *Conn) writeLoop(ctx context.Context, readDone <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-c.sendMsg:
			if err := c.write(ctx, m); err != nil {
				return err
			}
		case <-readDone:
			return c.flush(ctx)
		}
	}
}

func (c *Conn) flush(ctx context.Context) error {
	for {
		select {
		case m := <-c.sendMsg:
			if err := c.write(ctx, m); err != nil {
				return nil
			}
		default:
			return nil
		}
	}
}

func (c *Conn) write(ctx context.Context, m wire.Message) error {
	err := c.sock.WriteMessage(ctx, m)
	if err != nil {
		c.logger.Debug("write error", "object", m.Sender, "opcode", m.Opcode, "error", err)
		closeFDs(m.FDs)
	}
	return err
}

// closeConn marks the connection as closed, closes the socket, releases the
// descriptors of messages that were never written and drops the connection
// from its table.
func (c *Conn) closeConn() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		c.closeErr = c.sock.Close()

		// blocked senders have left through done; new ones see closed
		c.sendMu.Lock()
		c.drain()
		c.sendMu.Unlock()

		c.mu.Lock()
		untrack := c.untrack
		c.mu.Unlock()
		if untrack != nil {
			untrack()
		}
	})
	return c.closeErr
}

func (c *Conn) drain() {
	for {
		select {
		case m := <-c.sendMsg:
			closeFDs(m.FDs)
		default:
			return
		}
	}
}

func closeFDs(fds []int) {
	for _, fd := range fds {
		_ = wire.NewFD(fd).Close()
	}
}

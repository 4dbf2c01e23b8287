package wayland

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"
	perrors "github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/Zereker/wayland/wire"
)

// Environment variables and conventions of the runtime directory rendezvous.
const (
	EnvRuntimeDir = "XDG_RUNTIME_DIR"
	EnvDisplay    = "WAYLAND_DISPLAY"
	EnvSocket     = "WAYLAND_SOCKET"

	DefaultDisplay = "wayland-0"

	// maxDisplays is the number of wayland-N names Listen tries.
	maxDisplays = 32
)

var errLocked = errors.New("lock file held by another server")

// Handler is the interface for handling accepted connections.
type Handler interface {
	// Handle is called in its own goroutine for each accepted stream.
	// The implementation owns conn.
	Handle(ctx context.Context, conn *net.UnixConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, conn *net.UnixConn)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, conn *net.UnixConn) { f(ctx, conn) }

// Listener is a Wayland server socket. Sockets created by Listen hold an
// exclusive lock on the adjacent wayland-N.lock file until Close.
type Listener struct {
	listener *net.UnixListener
	path     string
	lock     *os.File
	logger   Logger

	mu     sync.Mutex
	closed bool
}

type listenerOptions struct {
	logger     Logger
	runtimeDir string
}

// ListenerOption configures a Listener.
type ListenerOption func(*listenerOptions)

// ListenerLoggerOption sets the logger for the listener.
func ListenerLoggerOption(logger Logger) ListenerOption {
	return func(o *listenerOptions) {
		o.logger = logger
	}
}

// RuntimeDirOption overrides the runtime directory read from XDG_RUNTIME_DIR.
func RuntimeDirOption(dir string) ListenerOption {
	return func(o *listenerOptions) {
		o.runtimeDir = dir
	}
}

func newListenerOptions(opts []ListenerOption) listenerOptions {
	var o listenerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	return o
}

// RuntimeDir returns the runtime directory named by XDG_RUNTIME_DIR.
func RuntimeDir() (string, error) {
	dir, ok := os.LookupEnv(EnvRuntimeDir)
	if !ok || dir == "" {
		return "", wire.Xdg("%s is not set", EnvRuntimeDir)
	}
	return dir, nil
}

// Listen binds the first free wayland-N socket, N in [1, 32], in the runtime
// directory. A name is free when its lock file can be locked exclusively.
func Listen(opts ...ListenerOption) (*Listener, error) {
	o := newListenerOptions(opts)

	dir := o.runtimeDir
	if dir == "" {
		var err error
		if dir, err = RuntimeDir(); err != nil {
			return nil, err
		}
	}

	for n := 1; n <= maxDisplays; n++ {
		path := filepath.Join(dir, fmt.Sprintf("wayland-%d", n))
		l, err := listenLocked(path, o.logger)
		if errors.Is(err, errLocked) {
			o.logger.Debug("display name in use", "path", path)
			continue
		}
		if err != nil {
			return nil, err
		}
		return l, nil
	}

	return nil, wire.Xdg("all %d display names in %s are taken", maxDisplays, dir)
}

func listenLocked(path string, logger Logger) (*Listener, error) {
	lockPath := path + ".lock"
	lock, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o660)
	if err != nil {
		return nil, perrors.Wrapf(err, "open lock file %s", lockPath)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, errLocked
		}
		return nil, perrors.Wrapf(err, "lock %s", lockPath)
	}

	// The lock is ours, so any socket file left behind belongs to a server
	// that died without cleaning up.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		releaseLock(lock)
		return nil, perrors.Wrapf(err, "remove stale socket %s", path)
	}

	l, err := listenUnix(path, logger)
	if err != nil {
		releaseLock(lock)
		return nil, err
	}
	l.lock = lock
	return l, nil
}

// ListenPath binds the socket at path without a lock file.
func ListenPath(path string, opts ...ListenerOption) (*Listener, error) {
	o := newListenerOptions(opts)
	return listenUnix(path, o.logger)
}

func listenUnix(path string, logger Logger) (*Listener, error) {
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, perrors.Wrapf(err, "bind %s", path)
	}
	ln.SetUnlinkOnClose(true)

	return &Listener{
		listener: ln,
		path:     path,
		logger:   logger,
	}, nil
}

func releaseLock(lock *os.File) error {
	name := lock.Name()
	var result *multierror.Error
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	if err := lock.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Name returns the display name clients put in WAYLAND_DISPLAY.
func (l *Listener) Name() string {
	return filepath.Base(l.path)
}

// Addr returns the listener's network address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Accept waits for the next connection.
func (l *Listener) Accept(ctx context.Context) (*net.UnixConn, error) {
	defer wire.InterruptOn(ctx, l.listener.SetDeadline)()

	conn, err := l.listener.AcceptUnix()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, wire.IOError(err)
	}
	return conn, nil
}

// Serve accepts connections and hands each to handler in its own goroutine.
// It blocks until the context is canceled or the listener fails, and waits
// for running handlers before returning.
func (l *Listener) Serve(ctx context.Context, handler Handler) error {
	l.logger.Info("server started", "path", l.path)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept(ctx)
		if err != nil {
			if l.isClosed() || ctx.Err() != nil {
				l.logger.Info("server stopped", "path", l.path)
				return ctx.Err()
			}
			// Check if it's a temporary error
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error("accept error", "error", err)
			return err
		}

		l.logger.Debug("accepted connection", "path", l.path)
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.Handle(ctx, conn)
		}()
	}
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops the listener, removes the socket file and releases the lock.
// Any blocked Accept calls will return with an error.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	var result *multierror.Error
	if err := l.listener.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	if l.lock != nil {
		if err := releaseLock(l.lock); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

package wayland

import (
	"github.com/Zereker/wayland/wire"
)

// ErrorAction defines the action to take when a handler returns an error.
type ErrorAction int

const (
	// Disconnect closes the connection when an error occurs.
	Disconnect ErrorAction = iota
	// Continue suppresses the error and continues processing.
	Continue
)

// options holds the configuration for a connection.
type options struct {
	logger Logger
	role   Role

	// onError is called when a handler fails. Protocol violations, I/O
	// errors and posted protocol errors always disconnect.
	onError func(error) ErrorAction

	bufferSize int // size of buffered send channel
	objects    map[wire.ObjectID]Dispatcher
}

// Option is a function that configures connection options.
type Option func(*options)

// BufferSizeOption returns an Option that sets the size of the send channel buffer.
// A larger buffer allows more messages to be queued before blocking.
func BufferSizeOption(size int) Option {
	return func(o *options) {
		o.bufferSize = size
	}
}

// OnErrorOption returns an Option that sets the handler error callback.
// Return Disconnect to close the connection, or Continue to suppress the error.
func OnErrorOption(cb func(error) ErrorAction) Option {
	return func(o *options) {
		o.onError = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// RoleOption returns an Option that selects the id range the connection
// allocates from. Connections default to RoleServer.
func RoleOption(role Role) Option {
	return func(o *options) {
		o.role = role
	}
}

// ObjectOption returns an Option that registers handler under id before the
// connection starts, typically the display object.
func ObjectOption(id wire.ObjectID, handler Dispatcher) Option {
	return func(o *options) {
		if o.objects == nil {
			o.objects = make(map[wire.ObjectID]Dispatcher)
		}
		o.objects[id] = handler
	}
}

// checkOptions sets default values for connection options.
func checkOptions(opts *options) {
	if opts.bufferSize <= 0 {
		opts.bufferSize = defaultBufferSize
	}

	if opts.onError == nil {
		opts.onError = func(err error) ErrorAction { return Disconnect }
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}
}

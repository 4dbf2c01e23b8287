package wire

import (
	"context"
	"io"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

const (
	// MaxFDsPerRead is the number of descriptors one read can receive.
	MaxFDsPerRead = 28

	readChunkSize = 4096
)

// Socket carries framed messages and their file descriptors over a unix
// stream socket. One reader and one writer may use a Socket concurrently;
// concurrent writers are not allowed.
type Socket struct {
	conn *net.UnixConn
	raw  syscall.RawConn

	// read side
	buf     []byte
	start   int
	scratch []byte
	oob     []byte
	inbound FDQueue

	// write side
	wbuf   []byte
	outFDs []int

	closeOnce sync.Once
	closeErr  error
}

// NewSocket wraps conn.
func NewSocket(conn *net.UnixConn) (*Socket, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, IOError(err)
	}
	return &Socket{
		conn:    conn,
		raw:     raw,
		scratch: make([]byte, readChunkSize),
		oob:     make([]byte, unix.CmsgSpace(MaxFDsPerRead*4)),
	}, nil
}

// Conn returns the underlying connection.
func (s *Socket) Conn() *net.UnixConn {
	return s.conn
}

// FDs returns the queue of received descriptors not yet claimed.
func (s *Socket) FDs() *FDQueue {
	return &s.inbound
}

// ReadMessage returns the next complete message. Its payload is a private
// copy and its Reader claims descriptors from the socket's queue.
func (s *Socket) ReadMessage(ctx context.Context) (Message, error) {
	for {
		msg, need, err := Decode(s.buf[s.start:])
		if err != nil {
			return Message{}, err
		}
		if need == 0 {
			msg.Payload = append([]byte{}, msg.Payload...)
			msg.queue = &s.inbound
			s.start += msg.Size()
			return msg, nil
		}
		if err := s.fill(ctx); err != nil {
			return Message{}, err
		}
	}
}

// fill performs one receive, appending bytes to the decode buffer and
// descriptors to the inbound queue.
func (s *Socket) fill(ctx context.Context) error {
	if s.start > 0 {
		n := copy(s.buf, s.buf[s.start:])
		s.buf = s.buf[:n]
		s.start = 0
	}

	defer InterruptOn(ctx, s.conn.SetReadDeadline)()

	var (
		n, oobn, rflags int
		operr           error
	)
	err := s.raw.Read(func(fd uintptr) bool {
		for {
			n, oobn, rflags, _, operr = unix.Recvmsg(int(fd), s.scratch, s.oob, recvFlags)
			if operr == unix.EINTR {
				continue
			}
			return operr != unix.EAGAIN
		}
	})
	if err == nil {
		err = operr
	}
	if oobn > 0 {
		if perr := s.parseRights(s.oob[:oobn]); perr != nil && err == nil {
			err = perr
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return IOError(err)
	}
	if rflags&unix.MSG_CTRUNC != 0 {
		return IOError(syscall.EMSGSIZE)
	}
	if n == 0 {
		return IOError(io.EOF)
	}
	s.buf = append(s.buf, s.scratch[:n]...)
	return nil
}

// InterruptOn expires a deadline through setDeadline once ctx is done. The
// returned function stops watching ctx and clears the deadline again if it
// was set, so the connection stays usable with a later context.
func InterruptOn(ctx context.Context, setDeadline func(time.Time) error) func() {
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		defer close(fired)
		_ = setDeadline(time.Unix(1, 0))
	})
	return func() {
		if stop() {
			return
		}
		<-fired
		_ = setDeadline(time.Time{})
	}
}

func (s *Socket) parseRights(oob []byte) error {
	msgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return err
	}
	for i := range msgs {
		if msgs[i].Header.Level != unix.SOL_SOCKET || msgs[i].Header.Type != unix.SCM_RIGHTS {
			continue
		}
		fds, err := unix.ParseUnixRights(&msgs[i])
		if err != nil {
			return err
		}
		s.inbound.Push(fds...)
	}
	return nil
}

// WriteMessage writes m with its descriptors attached to the first byte. On
// success the descriptors are closed; on failure m still owns them.
func (s *Socket) WriteMessage(ctx context.Context, m Message) error {
	var err error
	s.wbuf, err = Encode(s.wbuf[:0], m)
	if err != nil {
		return err
	}
	s.outFDs = m.FDs

	defer InterruptOn(ctx, s.conn.SetWriteDeadline)()

	data := s.wbuf
	for len(data) > 0 {
		var oob []byte
		if len(s.outFDs) > 0 {
			oob = unix.UnixRights(s.outFDs...)
		}
		n, err := s.send(data, oob)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return IOError(err)
		}
		// descriptors travel with the first chunk only
		s.outFDs = nil
		data = data[n:]
	}

	var result *multierror.Error
	for _, fd := range m.FDs {
		if err := unix.Close(fd); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (s *Socket) send(data, oob []byte) (int, error) {
	var (
		n     int
		operr error
	)
	err := s.raw.Write(func(fd uintptr) bool {
		for {
			n, operr = unix.SendmsgN(int(fd), data, oob, nil, sendFlags)
			if operr == unix.EINTR {
				continue
			}
			return operr != unix.EAGAIN
		}
	})
	if err == nil {
		err = operr
	}
	return n, err
}

// CloseWrite shuts down the write side of the socket.
func (s *Socket) CloseWrite() error {
	return IOError(s.conn.CloseWrite())
}

// Close closes the connection and every unclaimed received descriptor.
func (s *Socket) Close() error {
	s.closeOnce.Do(func() {
		var result *multierror.Error
		if err := s.conn.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		if err := s.inbound.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		s.closeErr = result.ErrorOrNil()
	})
	return s.closeErr
}

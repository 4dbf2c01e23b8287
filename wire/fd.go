package wire

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"
)

// FD holds a received file descriptor until a handler takes ownership of it.
// Ownership can be transferred exactly once.
type FD struct {
	fd    int
	taken atomic.Bool
}

// NewFD wraps fd. The FD owns it until Take or Close.
func NewFD(fd int) *FD {
	return &FD{fd: fd}
}

// Raw returns the descriptor for inspection, or -1 once it was taken or closed.
func (f *FD) Raw() int {
	if f.taken.Load() {
		return -1
	}
	return f.fd
}

// TakeRaw transfers ownership of the descriptor to the caller. Only the first
// call succeeds.
func (f *FD) TakeRaw() (int, bool) {
	if f.taken.Swap(true) {
		return -1, false
	}
	return f.fd, true
}

// Take transfers ownership as an *os.File.
func (f *FD) Take() (*os.File, bool) {
	fd, ok := f.TakeRaw()
	if !ok {
		return nil, false
	}
	return os.NewFile(uintptr(fd), "wayland-fd:"+strconv.Itoa(fd)), true
}

// Close closes the descriptor unless ownership was already transferred.
func (f *FD) Close() error {
	fd, ok := f.TakeRaw()
	if !ok {
		return nil
	}
	return unix.Close(fd)
}

// FDSource yields file descriptors in the order their arguments are decoded.
type FDSource interface {
	PopFD() (*FD, bool)
}

// FDQueue is the inbound descriptor queue of a socket. Descriptors are appended
// in arrival order and claimed in argument order across messages.
type FDQueue struct {
	mu  sync.Mutex
	fds []*FD
}

// Push appends received descriptors.
func (q *FDQueue) Push(fds ...int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, fd := range fds {
		q.fds = append(q.fds, NewFD(fd))
	}
}

// PopFD removes the oldest descriptor.
func (q *FDQueue) PopFD() (*FD, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.fds) == 0 {
		return nil, false
	}
	fd := q.fds[0]
	q.fds[0] = nil
	q.fds = q.fds[1:]
	return fd, true
}

// Len returns the number of unclaimed descriptors.
func (q *FDQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fds)
}

// Close closes every unclaimed descriptor.
func (q *FDQueue) Close() error {
	q.mu.Lock()
	fds := q.fds
	q.fds = nil
	q.mu.Unlock()

	var result *multierror.Error
	for _, fd := range fds {
		if err := fd.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// fdList serves descriptors from a fixed list, wrapping each raw value.
type fdList struct {
	fds []int
}

func (l *fdList) PopFD() (*FD, bool) {
	if len(l.fds) == 0 {
		return nil, false
	}
	fd := l.fds[0]
	l.fds = l.fds[1:]
	return NewFD(fd), true
}

//go:build unix && !linux

package wire

import "golang.org/x/sys/unix"

// Descriptors are received without close-on-exec and SIGPIPE is ignored by the
// Go runtime for sockets on these systems.
const (
	recvFlags = unix.MSG_DONTWAIT
	sendFlags = unix.MSG_DONTWAIT
)

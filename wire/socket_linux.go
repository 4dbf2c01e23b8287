package wire

import "golang.org/x/sys/unix"

const (
	recvFlags = unix.MSG_CMSG_CLOEXEC | unix.MSG_DONTWAIT
	sendFlags = unix.MSG_NOSIGNAL | unix.MSG_DONTWAIT
)

//go:build linux

package session

import (
	"net"
	"syscall"
)

const (
	tcpQuickAck    = 12
	tcpUserTimeout = 18
	recvBufBytes   = 256 * 1024
	sendBufBytes   = 256 * 1024
)

// tuneConn applies the low-latency socket options a whale-alert stream
// wants: Nagle disabled, immediate ACKs, and generous buffers so a burst
// of whale events doesn't stall on a slow receive window. Best-effort:
// failures are ignored since none of these change protocol correctness.
func tuneConn(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	file, err := tcpConn.File()
	if err != nil {
		return
	}
	defer file.Close()

	fd := int(file.Fd())
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_NODELAY, 1)
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpQuickAck, 1)
	syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_KEEPALIVE, 1)
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_KEEPIDLE, 30)
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_KEEPINTVL, 10)
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, syscall.TCP_KEEPCNT, 3)
	syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, recvBufBytes)
	syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_SNDBUF, sendBufBytes)
	syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpUserTimeout, 30000)
}

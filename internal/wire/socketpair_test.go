package wire

import (
	"net"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns a connected pair of *net.UnixConn backed by a real
// AF_UNIX SOCK_STREAM socketpair, so tests can exercise SCM_RIGHTS FD
// passing end to end.
func socketpair(t *testing.T) (a, b *net.UnixConn) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	a = fdConn(t, fds[0])
	b = fdConn(t, fds[1])
	return a, b
}

func fdConn(t *testing.T, fd int) *net.UnixConn {
	t.Helper()
	f := os.NewFile(uintptr(fd), "socketpair")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		t.Fatalf("FileConn: %v", err)
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		t.Fatalf("FileConn did not return a *net.UnixConn")
	}
	return unixConn
}

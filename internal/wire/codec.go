package wire

import (
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// Send writes a frame as one envelope message (header+union, carrying any
// FDs as SCM_RIGHTS) followed, for bytestream frames, by the out-of-line
// payload as a plain write.
func Send(conn *net.UnixConn, f *Frame) error {
	envelope := make([]byte, EnvelopeSize)
	copy(envelope[:HeaderSize], EncodeHeader(&f.Header))
	if f.Header.Bytestream == 0 {
		copy(envelope[HeaderSize:], f.Union[:])
	}

	var oob []byte
	if len(f.FDs) > 0 {
		oob = unix.UnixRights(f.FDs...)
	}

	if _, _, err := conn.WriteMsgUnix(envelope, oob, nil); err != nil {
		return err
	}

	if f.Header.Bytestream != 0 && len(f.Data) > 0 {
		if _, err := writeFull(conn, f.Data); err != nil {
			return err
		}
	}
	return nil
}

// Recv reads one frame: the fixed envelope (extracting any SCM_RIGHTS
// FDs), then the out-of-line payload if the header says Bytestream != 0.
func Recv(conn *net.UnixConn) (*Frame, error) {
	envelope := make([]byte, EnvelopeSize)
	// Room for one descriptor more than MaxFDs, so an oversized set is
	// seen (and rejected) rather than silently truncated by the kernel.
	oob := make([]byte, unix.CmsgSpace((MaxFDs+1)*4))

	n, oobn, _, _, err := conn.ReadMsgUnix(envelope, oob)
	if err != nil {
		return nil, err
	}
	if n < EnvelopeSize {
		if _, err := io.ReadFull(conn, envelope[n:]); err != nil {
			return nil, err
		}
	}

	hdr, err := DecodeHeader(envelope[:HeaderSize])
	if err != nil {
		return nil, err
	}

	fds, err := parseFDs(oob[:oobn])
	if err != nil {
		return nil, err
	}

	f := &Frame{Header: hdr, FDs: fds}
	if hdr.Bytestream == 0 {
		copy(f.Union[:], envelope[HeaderSize:])
	} else if hdr.Size > 0 {
		data := GetBuffer(hdr.Size)
		if _, err := io.ReadFull(conn, data); err != nil {
			return nil, err
		}
		f.Data = data
	}

	if err := Validate(f); err != nil {
		f.Release()
		return nil, err
	}
	return f, nil
}

func parseFDs(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	scms, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, err
	}
	var fds []int
	for _, scm := range scms {
		rights, err := unix.ParseUnixRights(&scm)
		if err != nil {
			continue
		}
		if fds != nil {
			// Only the first SCM_RIGHTS entry is accepted.
			for _, fd := range rights {
				closeFD(fd)
			}
			continue
		}
		fds = rights
	}
	if len(fds) > MaxFDs {
		for _, fd := range fds {
			closeFD(fd)
		}
		return nil, ErrTooManyFDs
	}
	return fds, nil
}

func writeFull(w io.Writer, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := w.Write(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

package wire

import "errors"

var (
	ErrShortHeader    = errors.New("wire: short header")
	ErrTooManyFDs     = errors.New("wire: too many file descriptors")
	ErrMalformedFrame = errors.New("wire: malformed frame")
)

// Frame is a single decoded wire message: a header, an inline union
// payload (valid only when Header.Bytestream == 0), an out-of-line
// payload (valid only when Header.Bytestream != 0), and any file
// descriptors carried alongside it.
//
// FDs are owned by the Frame until Release is called or a handler takes
// ownership of an entry by clearing it to -1.
type Frame struct {
	Header Header
	Union  [UnionSize]byte
	Data   []byte
	FDs    []int
}

// NewFrame builds a frame with no bytestream payload, copying union into
// the fixed inline slot.
func NewFrame(cmd Command, id uint64, union []byte, fds ...int) *Frame {
	f := &Frame{FDs: fds}
	f.Header.Cmd = uint32(cmd)
	f.Header.ID = id
	f.Header.NumFDs = uint8(len(fds))
	copy(f.Union[:], union)
	return f
}

// NewBytestreamFrame builds a frame carrying an out-of-line payload.
func NewBytestreamFrame(cmd Command, id uint64, data []byte, fds ...int) *Frame {
	f := &Frame{Data: data, FDs: fds}
	f.Header.Cmd = uint32(cmd)
	f.Header.Bytestream = 1
	f.Header.Size = uint64(len(data))
	f.Header.ID = id
	f.Header.NumFDs = uint8(len(fds))
	return f
}

// Command returns the frame's command tag.
func (f *Frame) Command() Command { return Command(f.Header.Cmd) }

// TakeFD removes and returns the FD at index i, leaving the slot empty so
// Release will not close it a second time. Returns -1 if i is out of
// range or already taken.
func (f *Frame) TakeFD(i int) int {
	if i < 0 || i >= len(f.FDs) {
		return -1
	}
	fd := f.FDs[i]
	f.FDs[i] = -1
	return fd
}

// Release closes any FDs the frame still owns and returns a bytestream
// payload to the buffer pool it came from, if any.
func (f *Frame) Release() {
	for i, fd := range f.FDs {
		if fd >= 0 {
			closeFD(fd)
			f.FDs[i] = -1
		}
	}
	if f.Header.Bytestream != 0 && f.Data != nil {
		PutBuffer(f.Data)
		f.Data = nil
	}
}

// Package wire implements the framed wire protocol between a hypervisor
// proxy and an out-of-process device emulator: a fixed header, an inline
// union payload or an out-of-line bytestream, and SCM_RIGHTS-passed file
// descriptors.
package wire

import (
	"encoding/binary"
	"unsafe"
)

// Command tags, in wire order. The numeric value is part of the wire
// contract and must never be reordered once a peer depends on it.
type Command uint32

const (
	CmdInit Command = iota
	CmdGetPCIInfo
	CmdRetPCIInfo
	CmdPCIConfigWrite
	CmdPCIConfigRead
	CmdBARWrite
	CmdBARRead
	CmdMMIOReturn
	CmdSyncSysmem
	CmdSetIRQFD
	CmdDevOpts
	CmdDeviceAdd
	CmdDeviceDel
	CmdDeviceReset
	CmdRemotePing
	CmdStartMigOut
	CmdStartMigIn
	CmdRunstateSet
	cmdMax
)

func (c Command) Valid() bool { return c < cmdMax }

func (c Command) String() string {
	if int(c) < len(cmdNames) {
		return cmdNames[c]
	}
	return "unknown"
}

var cmdNames = [...]string{
	"INIT", "GET_PCI_INFO", "RET_PCI_INFO", "PCI_CONFIG_WRITE",
	"PCI_CONFIG_READ", "BAR_WRITE", "BAR_READ", "MMIO_RETURN",
	"SYNC_SYSMEM", "SET_IRQFD", "DEV_OPTS", "DEVICE_ADD", "DEVICE_DEL",
	"DEVICE_RESET", "REMOTE_PING", "START_MIG_OUT", "START_MIG_IN",
	"RUNSTATE_SET",
}

// Header is the fixed, packed wire header. Field order and widths are the
// wire contract; never reorder or resize without bumping a protocol
// version (there is none yet).
type Header struct {
	Cmd        uint32
	Bytestream uint32
	Size       uint64
	ID         uint64
	SizeID     uint64
	NumFDs     uint8
	_          [7]byte // pad to 8-byte alignment
}

// HeaderSize is the on-wire size of Header in bytes.
const HeaderSize = 40

// Compile-time check that Header matches the documented wire size.
var _ [HeaderSize]byte = [unsafe.Sizeof(Header{})]byte{}

// UnionSize is the size in bytes of the inline payload union that follows
// the header for non-bytestream commands.
const UnionSize = 32

// EnvelopeSize is HeaderSize+UnionSize: every frame begins with exactly
// this many bytes, whether or not the command uses the union.
const EnvelopeSize = HeaderSize + UnionSize

// MaxFDs bounds the number of file descriptors any single frame may carry.
const MaxFDs = 8

// EncodeHeader writes h into a HeaderSize-byte buffer.
func EncodeHeader(h *Header) []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Cmd)
	binary.LittleEndian.PutUint32(b[4:8], h.Bytestream)
	binary.LittleEndian.PutUint64(b[8:16], h.Size)
	binary.LittleEndian.PutUint64(b[16:24], h.ID)
	binary.LittleEndian.PutUint64(b[24:32], h.SizeID)
	b[32] = h.NumFDs
	return b
}

// DecodeHeader reads a Header from a HeaderSize-byte buffer.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, ErrShortHeader
	}
	var h Header
	h.Cmd = binary.LittleEndian.Uint32(b[0:4])
	h.Bytestream = binary.LittleEndian.Uint32(b[4:8])
	h.Size = binary.LittleEndian.Uint64(b[8:16])
	h.ID = binary.LittleEndian.Uint64(b[16:24])
	h.SizeID = binary.LittleEndian.Uint64(b[24:32])
	h.NumFDs = b[32]
	return h, nil
}

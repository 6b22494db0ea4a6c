package wire

import "encoding/binary"

// PCIConfigAccess is the out-of-line bytestream payload for
// PCI_CONFIG_WRITE and PCI_CONFIG_READ.
type PCIConfigAccess struct {
	Addr uint32
	Val  uint32
	Len  uint8
}

func (p PCIConfigAccess) Encode() []byte {
	b := make([]byte, 9)
	binary.LittleEndian.PutUint32(b[0:4], p.Addr)
	binary.LittleEndian.PutUint32(b[4:8], p.Val)
	b[8] = p.Len
	return b
}

func DecodePCIConfigAccess(b []byte) PCIConfigAccess {
	return PCIConfigAccess{
		Addr: binary.LittleEndian.Uint32(b[0:4]),
		Val:  binary.LittleEndian.Uint32(b[4:8]),
		Len:  b[8],
	}
}

// BARAccess is the inline union payload for BAR_WRITE and BAR_READ.
type BARAccess struct {
	Memory bool // true = memory BAR, false = I/O BAR
	Bar    uint8
	Addr   uint64
	Val    uint64
	Size   uint32
}

func (p BARAccess) Encode() []byte {
	b := make([]byte, UnionSize)
	if p.Memory {
		b[0] = 1
	}
	b[1] = p.Bar
	binary.LittleEndian.PutUint64(b[4:12], p.Addr)
	binary.LittleEndian.PutUint64(b[12:20], p.Val)
	binary.LittleEndian.PutUint32(b[20:24], p.Size)
	return b
}

func DecodeBARAccess(b []byte) BARAccess {
	return BARAccess{
		Memory: b[0] != 0,
		Bar:    b[1],
		Addr:   binary.LittleEndian.Uint64(b[4:12]),
		Val:    binary.LittleEndian.Uint64(b[12:20]),
		Size:   binary.LittleEndian.Uint32(b[20:24]),
	}
}

// MMIOReturn is the inline union payload for the MMIO_RETURN reply to
// BAR_READ.
type MMIOReturn struct {
	Val uint64
}

func (p MMIOReturn) Encode() []byte {
	b := make([]byte, UnionSize)
	binary.LittleEndian.PutUint64(b[0:8], p.Val)
	return b
}

func DecodeMMIOReturn(b []byte) MMIOReturn {
	return MMIOReturn{Val: binary.LittleEndian.Uint64(b[0:8])}
}

// IRQFDInfo is the inline union payload for SET_IRQFD. The irqfd and
// resample-fd themselves travel as ancillary FDs, not inline.
type IRQFDInfo struct {
	Vector int32
}

func (p IRQFDInfo) Encode() []byte {
	b := make([]byte, UnionSize)
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.Vector))
	return b
}

func DecodeIRQFDInfo(b []byte) IRQFDInfo {
	return IRQFDInfo{Vector: int32(binary.LittleEndian.Uint32(b[0:4]))}
}

// RunstateInfo is the inline union payload for RUNSTATE_SET.
type RunstateInfo struct {
	State uint32
}

func (p RunstateInfo) Encode() []byte {
	b := make([]byte, UnionSize)
	binary.LittleEndian.PutUint32(b[0:4], p.State)
	return b
}

func DecodeRunstateInfo(b []byte) RunstateInfo {
	return RunstateInfo{State: binary.LittleEndian.Uint32(b[0:4])}
}

// PCIInfo is the inline union payload for RET_PCI_INFO.
type PCIInfo struct {
	Vendor          uint16
	Device          uint16
	Class           uint16
	SubsystemVendor uint16
	SubsystemDevice uint16
}

func (p PCIInfo) Encode() []byte {
	b := make([]byte, UnionSize)
	binary.LittleEndian.PutUint16(b[0:2], p.Vendor)
	binary.LittleEndian.PutUint16(b[2:4], p.Device)
	binary.LittleEndian.PutUint16(b[4:6], p.Class)
	binary.LittleEndian.PutUint16(b[6:8], p.SubsystemVendor)
	binary.LittleEndian.PutUint16(b[8:10], p.SubsystemDevice)
	return b
}

func DecodePCIInfo(b []byte) PCIInfo {
	return PCIInfo{
		Vendor:          binary.LittleEndian.Uint16(b[0:2]),
		Device:          binary.LittleEndian.Uint16(b[2:4]),
		Class:           binary.LittleEndian.Uint16(b[4:6]),
		SubsystemVendor: binary.LittleEndian.Uint16(b[6:8]),
		SubsystemDevice: binary.LittleEndian.Uint16(b[8:10]),
	}
}

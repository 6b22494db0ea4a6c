package pcidev

// lsiDevice is a minimal stand-in for an LSI 53C895A SCSI HBA: enough
// config space and two BARs (I/O and MMIO) to exercise every Device
// method the dispatcher calls, without emulating real SCSI behavior.
type lsiDevice struct {
	cfg      *regFile
	bars     [2]*regFile
	irqFD    int
	resample int
}

const lsiConfigSpaceSize = 256
const lsiBAR0Size = 256   // I/O BAR
const lsiBAR1Size = 16384 // MMIO BAR

type lsiFactory struct{}

// NewLSI53C895AFactory returns a Factory producing lsiDevice instances.
func NewLSI53C895AFactory() Factory { return lsiFactory{} }

func (lsiFactory) TypeInfo() Info {
	return Info{Vendor: 0x1000, Device: 0x0012, Class: 0x0100}
}

func (f lsiFactory) Create(opts map[string]any) (Device, error) {
	d := &lsiDevice{
		cfg:      newRegFile(lsiConfigSpaceSize),
		irqFD:    -1,
		resample: -1,
	}
	d.bars[0] = newRegFile(lsiBAR0Size)
	d.bars[1] = newRegFile(lsiBAR1Size)
	info := f.TypeInfo()
	d.cfg.write(0x00, uint64(info.Vendor), 2)
	d.cfg.write(0x02, uint64(info.Device), 2)
	d.cfg.write(0x0a, uint64(info.Class), 2)
	return d, nil
}

func (d *lsiDevice) Info() Info { return lsiFactory{}.TypeInfo() }

func (d *lsiDevice) ConfigRead(addr uint32, length uint8) (uint32, error) {
	return uint32(maskWidth(d.cfg.read(addr, uint32(length)), uint32(length))), nil
}

func (d *lsiDevice) ConfigWrite(addr uint32, val uint32, length uint8) error {
	d.cfg.write(addr, uint64(val), uint32(length))
	return nil
}

func (d *lsiDevice) BARRead(bar int, memory bool, addr uint64, size uint32) (uint64, error) {
	if bar < 0 || bar > 1 {
		return 0, ErrUnsupportedBAR{BAR: bar}
	}
	return maskWidth(d.bars[bar].read(uint32(addr), size), size), nil
}

func (d *lsiDevice) BARWrite(bar int, memory bool, addr uint64, val uint64, size uint32) error {
	if bar < 0 || bar > 1 {
		return ErrUnsupportedBAR{BAR: bar}
	}
	d.bars[bar].write(uint32(addr), val, size)
	return nil
}

func (d *lsiDevice) SetIRQFD(vector int, irqFD, resampleFD int) error {
	d.irqFD = irqFD
	d.resample = resampleFD
	return nil
}

func (d *lsiDevice) Reset() error {
	d.bars[0] = newRegFile(lsiBAR0Size)
	d.bars[1] = newRegFile(lsiBAR1Size)
	return nil
}

func (d *lsiDevice) Unplug() error { return nil }

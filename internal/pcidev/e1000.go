package pcidev

// e1000Device is a minimal stand-in for an Intel e1000 NIC: a single
// memory BAR holding the register window, enough to exercise config
// space and BAR access end to end.
type e1000Device struct {
	cfg      *regFile
	bar0     *regFile
	irqFD    int
	resample int
}

const e1000ConfigSpaceSize = 256
const e1000BAR0Size = 128 * 1024

type e1000Factory struct{}

// NewE1000Factory returns a Factory producing e1000Device instances.
func NewE1000Factory() Factory { return e1000Factory{} }

func (e1000Factory) TypeInfo() Info {
	return Info{Vendor: 0x8086, Device: 0x100e, Class: 0x0200}
}

func (f e1000Factory) Create(opts map[string]any) (Device, error) {
	d := &e1000Device{
		cfg:      newRegFile(e1000ConfigSpaceSize),
		bar0:     newRegFile(e1000BAR0Size),
		irqFD:    -1,
		resample: -1,
	}
	info := f.TypeInfo()
	d.cfg.write(0x00, uint64(info.Vendor), 2)
	d.cfg.write(0x02, uint64(info.Device), 2)
	d.cfg.write(0x0a, uint64(info.Class), 2)
	return d, nil
}

func (d *e1000Device) Info() Info { return e1000Factory{}.TypeInfo() }

func (d *e1000Device) ConfigRead(addr uint32, length uint8) (uint32, error) {
	return uint32(maskWidth(d.cfg.read(addr, uint32(length)), uint32(length))), nil
}

func (d *e1000Device) ConfigWrite(addr uint32, val uint32, length uint8) error {
	d.cfg.write(addr, uint64(val), uint32(length))
	return nil
}

func (d *e1000Device) BARRead(bar int, memory bool, addr uint64, size uint32) (uint64, error) {
	if bar != 0 {
		return 0, ErrUnsupportedBAR{BAR: bar}
	}
	return maskWidth(d.bar0.read(uint32(addr), size), size), nil
}

func (d *e1000Device) BARWrite(bar int, memory bool, addr uint64, val uint64, size uint32) error {
	if bar != 0 {
		return ErrUnsupportedBAR{BAR: bar}
	}
	d.bar0.write(uint32(addr), val, size)
	return nil
}

func (d *e1000Device) SetIRQFD(vector int, irqFD, resampleFD int) error {
	d.irqFD = irqFD
	d.resample = resampleFD
	return nil
}

func (d *e1000Device) Reset() error {
	d.bar0 = newRegFile(e1000BAR0Size)
	return nil
}

func (d *e1000Device) Unplug() error { return nil }

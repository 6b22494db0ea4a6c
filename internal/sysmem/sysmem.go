// Package sysmem models the guest system-memory regions the proxy hands
// over via SYNC_SYSMEM: each region is split into shards with their own
// lock so parallel BAR-driven DMA-style access across regions doesn't
// serialize on a single mutex.
package sysmem

import "sync"

// shardSize is the per-region locking granularity.
const shardSize = 64 * 1024

// Region is one guest-memory region: a file descriptor (owned by the
// caller, sysmem never closes it), its guest physical offset, and a
// local shadow buffer standing in for the mmap'd contents (this repo
// does not perform the actual mmap of the peer's fd into remote address
// space; a real implementation would mmap fd directly and this shadow
// buffer would not exist).
type Region struct {
	FD     int
	Offset uint64
	Size   uint64

	shards []sync.RWMutex
	data   []byte
}

func newRegion(fd int, offset, size uint64) *Region {
	n := (size + shardSize - 1) / shardSize
	if n == 0 {
		n = 1
	}
	return &Region{
		FD:     fd,
		Offset: offset,
		Size:   size,
		shards: make([]sync.RWMutex, n),
		data:   make([]byte, size),
	}
}

func (r *Region) shardRange(off, length uint64) (int, int) {
	start := int(off / shardSize)
	end := int((off + length - 1) / shardSize)
	if end >= len(r.shards) {
		end = len(r.shards) - 1
	}
	return start, end
}

// ReadAt reads length bytes at off within the region.
func (r *Region) ReadAt(off, length uint64) []byte {
	if off >= r.Size {
		return nil
	}
	if off+length > r.Size {
		length = r.Size - off
	}
	start, end := r.shardRange(off, length)
	for i := start; i <= end; i++ {
		r.shards[i].RLock()
	}
	out := make([]byte, length)
	copy(out, r.data[off:off+length])
	for i := start; i <= end; i++ {
		r.shards[i].RUnlock()
	}
	return out
}

// WriteAt writes p at off within the region.
func (r *Region) WriteAt(off uint64, p []byte) {
	if off >= r.Size {
		return
	}
	length := uint64(len(p))
	if off+length > r.Size {
		length = r.Size - off
		p = p[:length]
	}
	start, end := r.shardRange(off, length)
	for i := start; i <= end; i++ {
		r.shards[i].Lock()
	}
	copy(r.data[off:off+length], p)
	for i := start; i <= end; i++ {
		r.shards[i].Unlock()
	}
}

// Table tracks all currently registered memory regions, replaced whole
// on every SYNC_SYSMEM call: the proxy resends its complete memory map,
// not a diff.
type Table struct {
	mu      sync.Mutex
	regions []*Region
}

// NewTable returns an empty region table.
func NewTable() *Table { return &Table{} }

// Sync replaces the table's contents with the given descriptors. It
// performs no DMA quiescence of its own — the proxy is responsible for
// ensuring no in-flight DMA races the region swap; the remote only
// stores whatever it is handed.
func (t *Table) Sync(descs []Descriptor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	regions := make([]*Region, len(descs))
	for i, d := range descs {
		regions[i] = newRegion(d.FD, d.Offset, d.Size)
	}
	t.regions = regions
}

// Descriptor is one region as parsed from a SYNC_SYSMEM bytestream
// payload: offset/size plus the matching ancillary fd itself.
type Descriptor struct {
	FD     int
	Offset uint64
	Size   uint64
}

// Find returns the region covering guest physical address addr, if any.
func (t *Table) Find(addr uint64) *Region {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.regions {
		if addr >= r.Offset && addr < r.Offset+r.Size {
			return r
		}
	}
	return nil
}

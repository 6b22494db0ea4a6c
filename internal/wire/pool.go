package wire

import "sync"

// Bytestream payloads (DEV_OPTS/DEVICE_ADD/DEVICE_DEL JSON blobs,
// SYNC_SYSMEM region descriptors, migration chunks) are pooled by
// size-bucketed sync.Pools to avoid a fresh allocation per frame on the
// hot dispatch path. Buckets mirror the sizes a device-options JSON blob
// or a migration chunk realistically needs; larger payloads fall through
// to a plain allocation.
const (
	size4k  = 4 * 1024
	size16k = 16 * 1024
	size64k = 64 * 1024
)

var bufPool = struct {
	p4k, p16k, p64k sync.Pool
}{
	p4k:  sync.Pool{New: func() any { b := make([]byte, size4k); return &b }},
	p16k: sync.Pool{New: func() any { b := make([]byte, size16k); return &b }},
	p64k: sync.Pool{New: func() any { b := make([]byte, size64k); return &b }},
}

// GetBuffer returns a buffer of at least size bytes from the pool, or a
// fresh allocation if size exceeds the largest bucket.
func GetBuffer(size uint64) []byte {
	switch {
	case size <= size4k:
		return (*bufPool.p4k.Get().(*[]byte))[:size]
	case size <= size16k:
		return (*bufPool.p16k.Get().(*[]byte))[:size]
	case size <= size64k:
		return (*bufPool.p64k.Get().(*[]byte))[:size]
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns buf to the pool it came from, identified by capacity.
// Buffers with a non-standard capacity are simply dropped.
func PutBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case size4k:
		bufPool.p4k.Put(&buf)
	case size16k:
		bufPool.p16k.Put(&buf)
	case size64k:
		bufPool.p64k.Put(&buf)
	}
}

package gofat

import (
	"encoding/binary"

	"github.com/roundwheel/gofat/checkpoint"
)

// sector is a fixed-capacity little-endian buffer mirroring one on-disk
// sector-sized region at a fixed device offset. It tracks its own dirty bit:
// any setter marks it dirty, read/write clear it. Reading a clean sector is
// skipped only by the caller (read() always re-fetches); writing a clean
// sector is a no-op, matching the Java Sector.write()/read() pair.
type sector struct {
	device BlockDevice
	offset int64
	buffer []byte
	dirty  bool
}

func newSector(device BlockDevice, offset int64, size int) *sector {
	return &sector{
		device: device,
		offset: offset,
		buffer: make([]byte, size),
		dirty:  true,
	}
}

// read loads the sector's contents from the device, clearing the dirty bit.
func (s *sector) read() error {
	if _, err := s.device.ReadAt(s.buffer, s.offset); err != nil {
		return checkpoint.From(err)
	}
	s.dirty = false
	return nil
}

// write persists the sector if (and only if) it is dirty.
func (s *sector) write() error {
	if !s.dirty {
		return nil
	}
	if _, err := s.device.WriteAt(s.buffer, s.offset); err != nil {
		return checkpoint.From(err)
	}
	s.dirty = false
	return nil
}

func (s *sector) isDirty() bool {
	return s.dirty
}

func (s *sector) markDirty() {
	s.dirty = true
}

func (s *sector) size() int {
	return len(s.buffer)
}

func (s *sector) get8(off int) uint8 {
	return s.buffer[off]
}

func (s *sector) set8(off int, v uint8) {
	s.buffer[off] = v
	s.dirty = true
}

func (s *sector) get16(off int) uint16 {
	return binary.LittleEndian.Uint16(s.buffer[off : off+2])
}

func (s *sector) set16(off int, v uint16) {
	binary.LittleEndian.PutUint16(s.buffer[off:off+2], v)
	s.dirty = true
}

func (s *sector) get32(off int) uint32 {
	return binary.LittleEndian.Uint32(s.buffer[off : off+4])
}

func (s *sector) set32(off int, v uint32) {
	binary.LittleEndian.PutUint32(s.buffer[off:off+4], v)
	s.dirty = true
}

func (s *sector) getBytes(off, n int) []byte {
	out := make([]byte, n)
	copy(out, s.buffer[off:off+n])
	return out
}

// setBytes copies min(len(data), n) bytes of data into the sector at off.
func (s *sector) setBytes(off int, data []byte, n int) {
	if n > len(data) {
		n = len(data)
	}
	copy(s.buffer[off:off+n], data[:n])
	s.dirty = true
}

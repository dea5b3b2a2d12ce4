package gofat

import (
	"encoding/binary"

	"github.com/roundwheel/gofat/checkpoint"
)

// MinCluster is the first valid, allocatable cluster number. 0 and 1 are
// reserved by the format.
const MinCluster = 2

// fatEntry is one raw 32-bit FAT slot together with the type of the table it
// came from, which governs how the reserved value ranges are interpreted.
// For FAT12/16 only the low 12/16 bits are meaningful; for FAT32 the high
// nibble of the word is reserved and must be preserved verbatim on write.
type fatEntry struct {
	fatType FATType
	raw     uint32
}

// Value returns the entry's payload, masked to the width of its FAT type.
func (e fatEntry) Value() uint32 {
	switch e.fatType {
	case FAT12:
		return e.raw & 0x0FFF
	case FAT16:
		return e.raw & 0xFFFF
	default:
		return e.raw & 0x0FFFFFFF
	}
}

// IsFree reports whether the entry marks its cluster as unallocated.
func (e fatEntry) IsFree() bool {
	return e.Value() == 0
}

// IsReservedTemp reports the "reserved, do not use" value 0x1. The check is
// the same for FAT12, FAT16 and FAT32.
func (e fatEntry) IsReservedTemp() bool {
	return e.Value() == 1
}

// IsBad reports whether the entry marks its cluster as a bad sector.
func (e fatEntry) IsBad() bool {
	switch e.fatType {
	case FAT12:
		return e.Value() == 0xFF7
	case FAT16:
		return e.Value() == 0xFFF7
	default:
		return e.Value() == 0x0FFFFFF7
	}
}

// eocThreshold returns the smallest value considered end-of-chain for the
// entry's FAT type.
func (e fatEntry) eocThreshold() uint32 {
	switch e.fatType {
	case FAT12:
		return 0xFF8
	case FAT16:
		return 0xFFF8
	default:
		return 0x0FFFFFF8
	}
}

// IsEOF reports whether the entry marks the end of a cluster chain.
func (e fatEntry) IsEOF() bool {
	return e.Value() >= e.eocThreshold()
}

// IsReservedSometimes reports the sentinel values between "bad" and the EOC
// range that the spec leaves undefined but which must round-trip unharmed.
func (e fatEntry) IsReservedSometimes() bool {
	v := e.Value()
	return v > 1 && v < MinCluster
}

// IsReserved reports any of the temp, bad or sometimes-reserved states.
func (e fatEntry) IsReserved() bool {
	return e.IsReservedTemp() || e.IsBad() || e.IsReservedSometimes()
}

// IsNextCluster reports whether the entry's value is an ordinary pointer to
// another allocated cluster, i.e. neither free, reserved, bad nor EOF.
func (e fatEntry) IsNextCluster() bool {
	return !e.IsFree() && !e.IsReserved() && !e.IsEOF()
}

// ReadAsNextCluster reports the same as IsNextCluster; the cluster number
// itself is read with Value.
func (e fatEntry) ReadAsNextCluster() bool {
	return e.IsNextCluster()
}

// ReadAsEOF reports the same as IsEOF; kept as a distinct accessor to mirror
// the read-path naming used by ClusterChain's chain walk.
func (e fatEntry) ReadAsEOF() bool {
	return e.IsEOF()
}

// Fat is the in-memory allocation table for one mounted volume. It owns the
// entire table as a flat []uint32 regardless of on-disk width, converting to
// the packed 12-bit representation only in readFat/writeCopy.
type Fat struct {
	fatType       FATType
	entries       []uint32
	totalClusters uint32
	lastAllocated uint32
	freeCount     uint32
	dirty         bool
}

// newFat allocates an empty (all-zero) Fat able to hold totalClusters
// clusters numbered [0, totalClusters+2).
func newFat(fatType FATType, totalClusters uint32) *Fat {
	f := &Fat{
		fatType:       fatType,
		entries:       make([]uint32, totalClusters+MinCluster),
		totalClusters: totalClusters,
		lastAllocated: MinCluster,
		freeCount:     totalClusters,
	}
	return f
}

// readFat decodes nrClusters+2 entries from a FAT12/16/32-packed byte slice
// starting at the table's device offset, according to spec §4.5's FAT12
// packing rule and the natural 16/32-bit layouts.
func readFat(fatType FATType, totalClusters uint32, raw []byte) (*Fat, error) {
	f := newFat(fatType, totalClusters)

	switch fatType {
	case FAT12:
		for i := uint32(0); i < uint32(len(f.entries)); i++ {
			byteOff := (i * 3) / 2
			if int(byteOff)+1 >= len(raw) {
				break
			}
			if i%2 == 0 {
				f.entries[i] = uint32(raw[byteOff]) | (uint32(raw[byteOff+1]&0x0F) << 8)
			} else {
				f.entries[i] = uint32(raw[byteOff]>>4) | (uint32(raw[byteOff+1]) << 4)
			}
		}
	case FAT16:
		for i := uint32(0); i < uint32(len(f.entries)); i++ {
			off := i * 2
			if int(off)+2 > len(raw) {
				break
			}
			f.entries[i] = uint32(binary.LittleEndian.Uint16(raw[off : off+2]))
		}
	case FAT32:
		for i := uint32(0); i < uint32(len(f.entries)); i++ {
			off := i * 4
			if int(off)+4 > len(raw) {
				break
			}
			f.entries[i] = binary.LittleEndian.Uint32(raw[off : off+4])
		}
	}

	f.recount()
	return f, nil
}

// recount recomputes freeCount from the current entry table, used right
// after loading from disk.
func (f *Fat) recount() {
	free := uint32(0)
	for i := uint32(MinCluster); i < uint32(len(f.entries)); i++ {
		if (fatEntry{f.fatType, f.entries[i]}).IsFree() {
			free++
		}
	}
	f.freeCount = free
}

// serialize packs the in-memory table back into its on-disk byte
// representation, mirroring readFat's layout exactly.
func (f *Fat) serialize() []byte {
	switch f.fatType {
	case FAT12:
		out := make([]byte, (len(f.entries)*3+1)/2)
		for i := uint32(0); i < uint32(len(f.entries)); i++ {
			byteOff := (i * 3) / 2
			v := f.entries[i] & 0x0FFF
			if i%2 == 0 {
				out[byteOff] = byte(v & 0xFF)
				out[byteOff+1] = (out[byteOff+1] & 0xF0) | byte(v>>8)
			} else {
				out[byteOff] = (out[byteOff] & 0x0F) | byte(v<<4)
				out[byteOff+1] = byte(v >> 4)
			}
		}
		return out
	case FAT16:
		out := make([]byte, len(f.entries)*2)
		for i, v := range f.entries {
			binary.LittleEndian.PutUint16(out[i*2:i*2+2], uint16(v))
		}
		return out
	default:
		out := make([]byte, len(f.entries)*4)
		for i, v := range f.entries {
			binary.LittleEndian.PutUint32(out[i*4:i*4+4], v)
		}
		return out
	}
}

// writeCopy persists the whole table to device at the given byte offset.
func (f *Fat) writeCopy(device BlockDevice, offset int64) error {
	if _, err := device.WriteAt(f.serialize(), offset); err != nil {
		return checkpoint.From(err)
	}
	return nil
}

// get returns the raw entry for cluster n.
func (f *Fat) get(n uint32) fatEntry {
	return fatEntry{f.fatType, f.entries[n]}
}

// set writes v into cluster n's entry, preserving the reserved high nibble
// for FAT32 as required by spec §4.5. Entries 0 and 1 are reserved
// bookkeeping slots (media descriptor / EOC marker), not data clusters, and
// never affect freeCount.
func (f *Fat) set(n, v uint32) {
	wasFree := n >= MinCluster && f.get(n).IsFree()

	if f.fatType == FAT32 {
		f.entries[n] = (f.entries[n] & 0xF0000000) | (v & 0x0FFFFFFF)
	} else {
		f.entries[n] = v
	}
	f.dirty = true

	if n < MinCluster {
		return
	}

	isFree := f.get(n).IsFree()
	switch {
	case wasFree && !isFree:
		f.freeCount--
	case !wasFree && isFree:
		f.freeCount++
	}
}

func (f *Fat) eocValue() uint32 {
	switch f.fatType {
	case FAT12:
		return 0xFFF
	case FAT16:
		return 0xFFFF
	default:
		return 0x0FFFFFFF
	}
}

// allocNew finds a free cluster, starting the scan just after the
// last-allocated hint and wrapping once, marks it EOC and returns its index.
func (f *Fat) allocNew() (uint32, error) {
	total := uint32(len(f.entries))
	start := f.lastAllocated + 1
	for i := uint32(0); i < f.totalClusters; i++ {
		n := start + i
		if n >= total {
			n = MinCluster + (n - total)
		}
		if f.get(n).IsFree() {
			f.set(n, f.eocValue())
			f.lastAllocated = n
			return n, nil
		}
	}
	return 0, checkpoint.From(ErrNoFreeCluster)
}

// allocAppend allocates a new cluster and links prev to it.
func (f *Fat) allocAppend(prev uint32) (uint32, error) {
	n, err := f.allocNew()
	if err != nil {
		return 0, err
	}
	f.set(prev, n)
	return n, nil
}

// getChain walks the chain starting at head, returning the cluster sequence
// in order. It fails with ErrFatChainCycle if a cluster repeats and
// ErrBadClusterInChain if a reserved/bad entry is encountered.
func (f *Fat) getChain(head uint32) ([]uint32, error) {
	if head == 0 {
		return nil, nil
	}

	seen := make(map[uint32]bool)
	var chain []uint32
	cur := head
	for {
		if seen[cur] {
			return nil, checkpoint.From(ErrFatChainCycle)
		}
		seen[cur] = true
		chain = append(chain, cur)

		entry := f.get(cur)
		if entry.IsEOF() {
			return chain, nil
		}
		if entry.IsReserved() || entry.IsFree() {
			return nil, checkpoint.From(ErrBadClusterInChain)
		}
		cur = entry.Value()
	}
}

func (f *Fat) getChainLength(head uint32) (uint32, error) {
	chain, err := f.getChain(head)
	if err != nil {
		return 0, err
	}
	return uint32(len(chain)), nil
}

func (f *Fat) getLastCluster(head uint32) (uint32, error) {
	chain, err := f.getChain(head)
	if err != nil {
		return 0, err
	}
	if len(chain) == 0 {
		return 0, nil
	}
	return chain[len(chain)-1], nil
}

// freeChain walks the chain from head, zeroing every entry.
func (f *Fat) freeChain(head uint32) error {
	chain, err := f.getChain(head)
	if err != nil {
		return err
	}
	for _, c := range chain {
		f.set(c, 0)
	}
	return nil
}

func (f *Fat) freeClusterCount() uint32 {
	return f.freeCount
}

func (f *Fat) lastAllocatedCluster() uint32 {
	return f.lastAllocated
}

// equal reports whether two Fat tables (as read from separate FAT copies on
// disk) agree entry-for-entry, used to enforce the FAT-mirroring invariant.
func (f *Fat) equal(other *Fat) bool {
	if len(f.entries) != len(other.entries) {
		return false
	}
	for i := range f.entries {
		if f.get(uint32(i)).Value() != other.get(uint32(i)).Value() {
			return false
		}
	}
	return true
}

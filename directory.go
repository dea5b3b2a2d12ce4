package gofat

import (
	"encoding/binary"

	"github.com/roundwheel/gofat/checkpoint"
)

const directoryEntrySize = 32

// abstractDirectory is a sequence of 32-byte slots, either the fixed FAT12/16
// root area or a growable cluster chain (spec §4.7).
type abstractDirectory interface {
	getEntry(i int) (EntryHeader, error)
	setEntry(i int, h EntryHeader) error
	getRawEntry(i int) ([]byte, error)
	setRawEntry(i int, raw []byte) error
	getCapacity() int
	changeSize(newCount int) error
	flush() error
}

func decodeEntry(raw []byte) EntryHeader {
	var h EntryHeader
	copy(h.Name[:], raw[0:11])
	h.Attribute = raw[11]
	h.NTReserved = raw[12]
	h.CreateTimeTenth = raw[13]
	h.CreateTime = binary.LittleEndian.Uint16(raw[14:16])
	h.CreateDate = binary.LittleEndian.Uint16(raw[16:18])
	h.LastAccessDate = binary.LittleEndian.Uint16(raw[18:20])
	h.FirstClusterHI = binary.LittleEndian.Uint16(raw[20:22])
	h.WriteTime = binary.LittleEndian.Uint16(raw[22:24])
	h.WriteDate = binary.LittleEndian.Uint16(raw[24:26])
	h.FirstClusterLO = binary.LittleEndian.Uint16(raw[26:28])
	h.FileSize = binary.LittleEndian.Uint32(raw[28:32])
	return h
}

func encodeEntry(h EntryHeader) []byte {
	raw := make([]byte, directoryEntrySize)
	copy(raw[0:11], h.Name[:])
	raw[11] = h.Attribute
	raw[12] = h.NTReserved
	raw[13] = h.CreateTimeTenth
	binary.LittleEndian.PutUint16(raw[14:16], h.CreateTime)
	binary.LittleEndian.PutUint16(raw[16:18], h.CreateDate)
	binary.LittleEndian.PutUint16(raw[18:20], h.LastAccessDate)
	binary.LittleEndian.PutUint16(raw[20:22], h.FirstClusterHI)
	binary.LittleEndian.PutUint16(raw[22:24], h.WriteTime)
	binary.LittleEndian.PutUint16(raw[24:26], h.WriteDate)
	binary.LittleEndian.PutUint16(raw[26:28], h.FirstClusterLO)
	binary.LittleEndian.PutUint32(raw[28:32], h.FileSize)
	return raw
}

// fat16RootDirectory backs the fixed-size FAT12/16 root area: it cannot grow
// past its boot-sector-declared entry count.
type fat16RootDirectory struct {
	device   BlockDevice
	offset   int64
	capacity int
	readOnly bool
}

func newFat16RootDirectory(device BlockDevice, offset int64, capacity int, readOnly bool) *fat16RootDirectory {
	return &fat16RootDirectory{device: device, offset: offset, capacity: capacity, readOnly: readOnly}
}

func (d *fat16RootDirectory) getCapacity() int { return d.capacity }

func (d *fat16RootDirectory) changeSize(newCount int) error {
	if newCount > d.capacity {
		return checkpoint.From(ErrRootDirFull)
	}
	return nil
}

func (d *fat16RootDirectory) getRawEntry(i int) ([]byte, error) {
	if i < 0 || i >= d.capacity {
		return nil, checkpoint.From(ErrRootDirFull)
	}
	raw := make([]byte, directoryEntrySize)
	if _, err := d.device.ReadAt(raw, d.offset+int64(i)*directoryEntrySize); err != nil {
		return nil, checkpoint.From(err)
	}
	return raw, nil
}

func (d *fat16RootDirectory) setRawEntry(i int, raw []byte) error {
	if d.readOnly {
		return checkpoint.From(ErrReadOnly)
	}
	if i < 0 || i >= d.capacity {
		return checkpoint.From(ErrRootDirFull)
	}
	if _, err := d.device.WriteAt(raw, d.offset+int64(i)*directoryEntrySize); err != nil {
		return checkpoint.From(err)
	}
	return nil
}

func (d *fat16RootDirectory) getEntry(i int) (EntryHeader, error) {
	raw, err := d.getRawEntry(i)
	if err != nil {
		return EntryHeader{}, err
	}
	return decodeEntry(raw), nil
}

func (d *fat16RootDirectory) setEntry(i int, h EntryHeader) error {
	return d.setRawEntry(i, encodeEntry(h))
}

func (d *fat16RootDirectory) flush() error {
	return d.device.Flush()
}

// clusterChainDirectory backs every non-fixed directory (FAT32 root and
// every subdirectory): capacity grows on demand via its cluster chain.
type clusterChainDirectory struct {
	chain *clusterChain
}

func newClusterChainDirectory(chain *clusterChain) *clusterChainDirectory {
	return &clusterChainDirectory{chain: chain}
}

func (d *clusterChainDirectory) getCapacity() int {
	length, err := d.chain.length()
	if err != nil {
		return 0
	}
	return int(length / directoryEntrySize)
}

func (d *clusterChainDirectory) changeSize(newCount int) error {
	return d.chain.setChainLength(int64(newCount) * directoryEntrySize)
}

func (d *clusterChainDirectory) getRawEntry(i int) ([]byte, error) {
	raw := make([]byte, directoryEntrySize)
	if _, err := d.chain.read(int64(i)*directoryEntrySize, raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (d *clusterChainDirectory) setRawEntry(i int, raw []byte) error {
	_, err := d.chain.write(int64(i)*directoryEntrySize, raw)
	return err
}

func (d *clusterChainDirectory) getEntry(i int) (EntryHeader, error) {
	raw, err := d.getRawEntry(i)
	if err != nil {
		return EntryHeader{}, err
	}
	return decodeEntry(raw), nil
}

func (d *clusterChainDirectory) setEntry(i int, h EntryHeader) error {
	return d.setRawEntry(i, encodeEntry(h))
}

func (d *clusterChainDirectory) flush() error {
	return nil
}

// readAllRaw reads every occupied slot up to (and not including) the
// terminator, per spec §3's "first 0x00 byte past the last live entry"
// rule. If no terminator is found before capacity runs out, the missing
// terminator is reported as a soft condition by the caller via the bool.
func readAllRaw(dir abstractDirectory) ([][]byte, bool, error) {
	var out [][]byte
	terminated := false
	for i := 0; i < dir.getCapacity(); i++ {
		raw, err := dir.getRawEntry(i)
		if err != nil {
			return nil, false, err
		}
		if raw[0] == 0x00 {
			terminated = true
			break
		}
		out = append(out, raw)
	}
	return out, terminated, nil
}

// writeAllRaw writes back a full set of live slots followed by a 0x00
// terminator, growing the directory first if it doesn't already fit.
func writeAllRaw(dir abstractDirectory, slots [][]byte) error {
	needed := len(slots) + 1
	if dir.getCapacity() < needed {
		if err := dir.changeSize(needed); err != nil {
			return err
		}
	}

	i := 0
	for ; i < len(slots); i++ {
		if err := dir.setRawEntry(i, slots[i]); err != nil {
			return err
		}
	}

	terminator := make([]byte, directoryEntrySize)
	if err := dir.setRawEntry(i, terminator); err != nil {
		return err
	}

	return dir.flush()
}

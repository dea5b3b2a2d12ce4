package gofat

import (
	"golang.org/x/text/encoding/unicode"

	"github.com/roundwheel/gofat/checkpoint"
)

// lfnCodeUnitsPerSlot is the number of UCS-2 code units packed per long-name
// directory slot: 5 + 6 + 2, per spec §4.8.
const lfnCodeUnitsPerSlot = 13

// maxLongNameLength is the largest name, in UCS-2 code units, representable
// across the maximum 20 slots (spec §4.8).
const maxLongNameLength = 255

var ucs2 = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// encodeUTF16 converts a Go string to UCS-2/UTF-16LE code units using the
// ecosystem x/text codec rather than a hand-rolled pack.
func encodeUTF16(s string) ([]uint16, error) {
	encoded, err := ucs2.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, checkpoint.From(err)
	}
	units := make([]uint16, len(encoded)/2)
	for i := range units {
		units[i] = uint16(encoded[i*2]) | uint16(encoded[i*2+1])<<8
	}
	return units, nil
}

// decodeUTF16 is the inverse of encodeUTF16.
func decodeUTF16(units []uint16) (string, error) {
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		raw[i*2] = byte(u)
		raw[i*2+1] = byte(u >> 8)
	}
	decoded, err := ucs2.NewDecoder().Bytes(raw)
	if err != nil {
		return "", checkpoint.From(err)
	}
	return string(decoded), nil
}

// packLongName splits name into the LongFilenameEntry slots required to
// store it, null-terminated (unless the name exactly fills its last slot) and
// 0xFFFF-padded per spec §4.8, with ordinals running from slotCount|0x40 down
// to 1 and the given checksum (derived from the paired short name) stamped on
// every slot.
func packLongName(name string, checksum byte) ([]LongFilenameEntry, error) {
	units, err := encodeUTF16(name)
	if err != nil {
		return nil, err
	}
	if len(units) > maxLongNameLength {
		return nil, checkpoint.From(ErrNameTooLong)
	}

	// Null-terminate unless the name exactly fills its last slot, then pad to
	// a whole number of slots with 0xFFFF.
	if len(units) == 0 || len(units)%lfnCodeUnitsPerSlot != 0 {
		units = append(units, 0x0000)
	}
	slotCount := (len(units) + lfnCodeUnitsPerSlot - 1) / lfnCodeUnitsPerSlot
	if slotCount == 0 {
		slotCount = 1
	}
	padded := make([]uint16, slotCount*lfnCodeUnitsPerSlot)
	for i := range padded {
		padded[i] = 0xFFFF
	}
	copy(padded, units)

	entries := make([]LongFilenameEntry, slotCount)
	for i := 0; i < slotCount; i++ {
		seq := byte(slotCount - i)
		if i == 0 {
			seq |= 0x40
		}
		chunk := padded[i*lfnCodeUnitsPerSlot : (i+1)*lfnCodeUnitsPerSlot]

		var e LongFilenameEntry
		e.Sequence = seq
		copy(e.First[:], chunk[0:5])
		e.Attribute = AttrLongName
		e.EntryType = 0
		e.Checksum = checksum
		copy(e.Second[:], chunk[5:11])
		copy(e.Third[:], chunk[11:13])
		entries[i] = e
	}

	return entries, nil
}

// unpackLongName reassembles the name from slots in the order packLongName
// emits them (the 0x40-tagged, highest-ordinal slot first, carrying the start
// of the name), stopping at the first 0x0000 code unit or at the end of the
// last slot.
func unpackLongName(entries []LongFilenameEntry) (string, error) {
	var units []uint16
	for _, e := range entries {
		units = append(units, e.First[:]...)
		units = append(units, e.Second[:]...)
		units = append(units, e.Third[:]...)
	}

	for i, u := range units {
		if u == 0x0000 {
			units = units[:i]
			break
		}
	}

	return decodeUTF16(units)
}

// verifyLfnChain checks that every slot's checksum byte agrees with the
// expected value and ordinals form an unbroken N..1 descending sequence
// (spec §4.7's "break in the sequence invalidates the chain" rule).
func verifyLfnChain(entries []LongFilenameEntry, expectedChecksum byte) bool {
	if len(entries) == 0 {
		return false
	}
	n := len(entries)
	if entries[0].Sequence&0x40 == 0 || entries[0].Sequence&0x1F != byte(n) {
		return false
	}
	for i, e := range entries {
		if e.Checksum != expectedChecksum {
			return false
		}
		wantSeq := byte(n - i)
		if e.Sequence&0x1F != wantSeq {
			return false
		}
	}
	return true
}

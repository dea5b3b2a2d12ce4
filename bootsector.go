package gofat

import (
	"github.com/roundwheel/gofat/checkpoint"
)

// bootSectorSize is the fixed size of every boot sector variant.
const bootSectorSize = 512

// Offsets shared by every FAT boot sector dialect (BPB, bytes 0x00-0x24).
const (
	offJumpBoot          = 0x00
	offOEMName           = 0x03
	offBytesPerSector    = 0x0B
	offSectorsPerCluster = 0x0D
	offReservedSectors   = 0x0E
	offNumFATs           = 0x10
	offRootEntryCount    = 0x11
	offTotalSectors16    = 0x13
	offMedia             = 0x15
	offFATSize16         = 0x16
	offSectorsPerTrack   = 0x18
	offNumberOfHeads     = 0x1A
	offHiddenSectors     = 0x1C
	offTotalSectors32    = 0x20
	offBPBEnd            = 0x24

	offSignature = 0x1FE

	// FAT12/16 tail, from offBPBEnd.
	off16DriveNumber = offBPBEnd + 0
	off16BootSig     = offBPBEnd + 2
	off16VolumeID    = offBPBEnd + 3
	off16VolumeLabel = offBPBEnd + 7
	off16FSType      = offBPBEnd + 18

	// FAT32 tail, from offBPBEnd.
	off32FATSize      = offBPBEnd + 0
	off32ExtFlags     = offBPBEnd + 4
	off32FSVersion    = offBPBEnd + 6
	off32RootCluster  = offBPBEnd + 8
	off32FSInfo       = offBPBEnd + 12
	off32BkBootSector = offBPBEnd + 14
	off32DriveNumber  = offBPBEnd + 28
	off32BootSig      = offBPBEnd + 30
	off32VolumeID     = offBPBEnd + 31
	off32VolumeLabel  = offBPBEnd + 35
	off32FSType       = offBPBEnd + 46

	bootSignature = 0x29
)

// dialect names the vendor variant a boot sector was recognized as. Only PC
// is fully supported for writing; MSX and Atari TOS are read/validate only
// per spec's Open Question.
type dialect int

const (
	dialectPC dialect = iota
	dialectMSX
	dialectAtariTOS
)

// BootSector exposes the geometry and identity fields common to every FAT
// boot sector, regardless of type or dialect.
type BootSector interface {
	FatType() FATType
	Dialect() dialect
	BytesPerSector() uint16
	SectorsPerCluster() uint8
	BytesPerCluster() uint32
	ReservedSectorCount() uint16
	NumFATs() uint8
	RootDirEntryCount() uint16
	SectorsPerFat() uint32
	SectorCount() uint32
	MediumDescriptor() byte
	OEMName() string
	VolumeLabel() string
	SetVolumeLabel(label string)
	RootDirFirstCluster() uint32
	FSInfoSectorNr() uint16
	FileSystemTypeLabel() string
	VolumeID() uint32

	sector() *sector
	setFatType(FATType)
}

type bootSector struct {
	buf     *sector
	fatType FATType
	dlct    dialect
}

func (b *bootSector) sector() *sector { return b.buf }

func (b *bootSector) setFatType(t FATType) { b.fatType = t }

func (b *bootSector) FatType() FATType    { return b.fatType }
func (b *bootSector) Dialect() dialect    { return b.dlct }
func (b *bootSector) BytesPerSector() uint16 {
	return b.buf.get16(offBytesPerSector)
}
func (b *bootSector) SectorsPerCluster() uint8 {
	return b.buf.get8(offSectorsPerCluster)
}
func (b *bootSector) BytesPerCluster() uint32 {
	return uint32(b.BytesPerSector()) * uint32(b.SectorsPerCluster())
}
func (b *bootSector) ReservedSectorCount() uint16 {
	return b.buf.get16(offReservedSectors)
}
func (b *bootSector) NumFATs() uint8 {
	return b.buf.get8(offNumFATs)
}
func (b *bootSector) RootDirEntryCount() uint16 {
	return b.buf.get16(offRootEntryCount)
}
func (b *bootSector) MediumDescriptor() byte {
	return b.buf.get8(offMedia)
}
func (b *bootSector) OEMName() string {
	return trimFixed(b.buf.getBytes(offOEMName, 8))
}
func (b *bootSector) SectorCount() uint32 {
	if v := b.buf.get16(offTotalSectors16); v != 0 {
		return uint32(v)
	}
	return b.buf.get32(offTotalSectors32)
}

func trimFixed(raw []byte) string {
	end := len(raw)
	for end > 0 && raw[end-1] == ' ' {
		end--
	}
	return string(raw[:end])
}

// fat16BootSector is the FAT12/16 tail view (offset 0x24+).
type fat16BootSector struct {
	bootSector
}

func (b *fat16BootSector) SectorsPerFat() uint32 {
	return uint32(b.buf.get16(offFATSize16))
}
func (b *fat16BootSector) RootDirFirstCluster() uint32 {
	panic("RootDirFirstCluster is only valid for FAT32 boot sectors")
}
func (b *fat16BootSector) FSInfoSectorNr() uint16 {
	panic("FSInfoSectorNr is only valid for FAT32 boot sectors")
}
func (b *fat16BootSector) VolumeLabel() string {
	return trimFixed(b.buf.getBytes(off16VolumeLabel, 11))
}
func (b *fat16BootSector) SetVolumeLabel(label string) {
	writeFixed(b.buf, off16VolumeLabel, 11, label)
}
func (b *fat16BootSector) FileSystemTypeLabel() string {
	return trimFixed(b.buf.getBytes(off16FSType, 8))
}
func (b *fat16BootSector) VolumeID() uint32 {
	return b.buf.get32(off16VolumeID)
}

// fat32BootSector is the FAT32 tail view (offset 0x24+).
type fat32BootSector struct {
	bootSector
}

func (b *fat32BootSector) SectorsPerFat() uint32 {
	return b.buf.get32(off32FATSize)
}
func (b *fat32BootSector) RootDirFirstCluster() uint32 {
	return b.buf.get32(off32RootCluster)
}
func (b *fat32BootSector) FSInfoSectorNr() uint16 {
	return b.buf.get16(off32FSInfo)
}
func (b *fat32BootSector) BackupBootSector() uint16 {
	return b.buf.get16(off32BkBootSector)
}
func (b *fat32BootSector) VolumeLabel() string {
	return trimFixed(b.buf.getBytes(off32VolumeLabel, 11))
}
func (b *fat32BootSector) SetVolumeLabel(label string) {
	writeFixed(b.buf, off32VolumeLabel, 11, label)
}
func (b *fat32BootSector) FileSystemTypeLabel() string {
	return trimFixed(b.buf.getBytes(off32FSType, 8))
}
func (b *fat32BootSector) VolumeID() uint32 {
	return b.buf.get32(off32VolumeID)
}

func writeFixed(s *sector, off, width int, value string) {
	buf := make([]byte, width)
	for i := range buf {
		buf[i] = ' '
	}
	copy(buf, value)
	s.setBytes(off, buf, width)
}

// readBootSector loads and validates the boot sector at device offset 0,
// trying the PC, MSX and Atari TOS dialects in that order per spec §4.3.
// skipChecks disables the 0xAA55 signature, jump-instruction, Atari TOS
// checksum, bytes-per-sector and sectors-per-cluster checks; the Atari TOS
// dialect still requires its leading 0x60 byte. This matches the teacher's
// NewSkipChecks escape hatch.
func readBootSector(device BlockDevice, skipChecks bool) (BootSector, error) {
	s := newSector(device, 0, bootSectorSize)
	if err := s.read(); err != nil {
		return nil, err
	}

	if !skipChecks && s.get16(offSignature) != 0xAA55 {
		return nil, checkpoint.From(ErrUnrecognizedFormat)
	}

	for _, d := range []dialect{dialectPC, dialectMSX, dialectAtariTOS} {
		bs, err := tryDialect(s, d, skipChecks)
		if err == nil {
			return bs, nil
		}
	}

	return nil, checkpoint.From(ErrUnrecognizedFormat)
}

func tryDialect(s *sector, d dialect, skipChecks bool) (BootSector, error) {
	switch d {
	case dialectPC, dialectMSX:
		jump := s.get8(offJumpBoot)
		if !skipChecks {
			jumpOk := (jump == 0xEB && s.get8(offJumpBoot+2) == 0x90) || jump == 0xE9
			if !jumpOk {
				return nil, checkpoint.From(ErrUnrecognizedFormat)
			}
		}
		return decodeCommon(s, d, skipChecks)

	case dialectAtariTOS:
		if s.get8(0) != 0x60 {
			return nil, checkpoint.From(ErrUnrecognizedFormat)
		}
		if !skipChecks {
			checksum := uint16(0)
			for i := 0; i < bootSectorSize; i += 2 {
				checksum += s.get16(i)
			}
			if checksum != 0x1234 {
				return nil, checkpoint.From(ErrUnrecognizedFormat)
			}
		}
		return decodeCommon(s, d, skipChecks)
	}

	return nil, checkpoint.From(ErrUnrecognizedFormat)
}

// decodeCommon builds the FAT32 variant when the 16-bit sectors-per-FAT field
// (offset 0x16) is zero and the FAT16 variant otherwise; the small and large
// total-sector-count fields are not consulted for this choice.
func decodeCommon(s *sector, d dialect, skipChecks bool) (BootSector, error) {
	bytesPerSector := s.get16(offBytesPerSector)
	if !skipChecks {
		switch bytesPerSector {
		case 512, 1024, 2048, 4096:
		default:
			return nil, checkpoint.From(ErrUnrecognizedFormat)
		}
	}

	spc := s.get8(offSectorsPerCluster)
	if !skipChecks && (spc == 0 || (spc&(spc-1)) != 0) {
		return nil, checkpoint.From(ErrUnrecognizedFormat)
	}

	fatSize16 := s.get16(offFATSize16)

	base := bootSector{buf: s, dlct: d}

	if fatSize16 == 0 {
		base.fatType = FAT32
		return &fat32BootSector{base}, nil
	}

	base.fatType = FAT16 // corrected to FAT12 by the caller once cluster count is known
	return &fat16BootSector{base}, nil
}

// classifyFatType applies spec §3's authoritative cluster-count decision,
// overriding the provisional type guessed while parsing the boot sector.
func classifyFatType(dataClusterCount uint32) FATType {
	switch {
	case dataClusterCount < 4085:
		return FAT12
	case dataClusterCount <= 65524:
		return FAT16
	default:
		return FAT32
	}
}

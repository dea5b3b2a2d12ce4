package gofat

import (
	"math/rand"
	"time"

	"github.com/roundwheel/gofat/checkpoint"
)

// Standard sectors-per-cluster tables from spec §6, keyed by total sector
// count, one per FAT type.
var fat32SpcTable = []struct {
	maxSectors uint32
	spc        uint8
}{
	{532_480, 1},
	{16_777_216, 8},
	{33_554_432, 16},
	{67_108_864, 32},
	{^uint32(0), 64},
}

var fat16SpcTable = []struct {
	maxSectors uint32
	spc        uint8
}{
	{32_680, 2},
	{262_144, 4},
	{524_288, 8},
	{1_048_576, 16},
	{2_097_152, 32},
	{4_194_304, 64},
}

const (
	maxFat12Clusters = 4084
	maxDirectory     = 512
)

// SuperFloppyFormatter creates a fresh, partition-table-less FAT volume on a
// block device (spec §4.12). PC is the only dialect this formatter writes;
// MSX/Atari TOS init() remains unimplemented per the source's Open Question.
type SuperFloppyFormatter struct {
	device BlockDevice
	label  string
	fsType FATType
	hasFsType bool
	rand   *rand.Rand
}

// NewSuperFloppyFormatter builds a formatter targeting device. The FAT type
// is picked automatically from device size unless WithFatType overrides it.
// source defaults to a time-seeded generator when nil, replacing the
// mutable global Random the original implementation relied on for volume
// serial numbers (spec §9).
func NewSuperFloppyFormatter(device BlockDevice, source rand.Source) *SuperFloppyFormatter {
	if source == nil {
		source = rand.NewSource(time.Now().UnixNano())
	}
	return &SuperFloppyFormatter{device: device, rand: rand.New(source)}
}

func (f *SuperFloppyFormatter) WithFatType(t FATType) *SuperFloppyFormatter {
	f.fsType = t
	f.hasFsType = true
	return f
}

func (f *SuperFloppyFormatter) WithLabel(label string) *SuperFloppyFormatter {
	f.label = label
	return f
}

func pickSpc(table []struct {
	maxSectors uint32
	spc        uint8
}, totalSectors uint32) uint8 {
	for _, row := range table {
		if totalSectors <= row.maxSectors {
			return row.spc
		}
	}
	return table[len(table)-1].spc
}

func pickFat12Spc(totalSectors uint32, bytesPerSector uint16) (uint8, error) {
	spc := uint8(1)
	for totalSectors/uint32(spc) > maxFat12Clusters {
		spc *= 2
		if uint32(spc)*uint32(bytesPerSector) > 4096 {
			return 0, checkpoint.From(ErrDeviceTooLarge)
		}
	}
	return spc, nil
}

// Format writes a brand-new volume to the device and remounts it, returning
// the mounted Fs on success.
func (f *SuperFloppyFormatter) Format() (*Fs, error) {
	size, err := f.device.Size()
	if err != nil {
		return nil, err
	}
	bytesPerSector := uint16(f.device.SectorSize())
	if bytesPerSector == 0 {
		bytesPerSector = 512
	}
	totalSectors := uint32(size / int64(bytesPerSector))

	fatType := f.fsType
	if !f.hasFsType {
		switch {
		case size < 5*1024*1024:
			fatType = FAT12
		case size < 512*1024*1024:
			fatType = FAT16
		default:
			fatType = FAT32
		}
	}

	var spc uint8
	switch fatType {
	case FAT12:
		spc, err = pickFat12Spc(totalSectors, bytesPerSector)
		if err != nil {
			return nil, err
		}
	case FAT16:
		if totalSectors <= 8400 {
			return nil, checkpoint.From(ErrDeviceTooSmall)
		}
		if totalSectors > 4_194_304 {
			return nil, checkpoint.From(ErrDeviceTooLarge)
		}
		spc = pickSpc(fat16SpcTable, totalSectors)
	default:
		if totalSectors <= 66_600 {
			return nil, checkpoint.From(ErrDeviceTooSmall)
		}
		spc = pickSpc(fat32SpcTable, totalSectors)
	}

	reservedSectors := uint16(1)
	if fatType == FAT32 {
		reservedSectors = 32
	}
	numFATs := uint8(2)

	rootEntryCount := uint16(0)
	rootDirSectors := uint32(0)
	if fatType != FAT32 {
		rootEntryCount = uint16(maxDirectory)
		if maxEntries := uint32(size) / (5 * 32); maxEntries < uint32(rootEntryCount) {
			rootEntryCount = uint16(maxEntries)
		}
		rootDirSectors = (uint32(rootEntryCount)*32 + uint32(bytesPerSector) - 1) / uint32(bytesPerSector)
	}

	tmp1 := totalSectors - (uint32(reservedSectors) + rootDirSectors)
	tmp2 := uint32(256)*uint32(spc) + uint32(numFATs)
	if fatType == FAT32 {
		tmp2 /= 2
	}
	sectorsPerFat := (tmp1 + tmp2 - 1) / tmp2

	s := newSector(f.device, 0, bootSectorSize)
	s.set8(offJumpBoot, 0xEB)
	s.set8(offJumpBoot+1, 0x3C)
	s.set8(offJumpBoot+2, 0x90)
	writeFixed(s, offOEMName, 8, "GOFAT1.0")
	s.set16(offBytesPerSector, bytesPerSector)
	s.set8(offSectorsPerCluster, spc)
	s.set16(offReservedSectors, reservedSectors)
	s.set8(offNumFATs, numFATs)
	s.set16(offRootEntryCount, rootEntryCount)
	if totalSectors <= 0xFFFF {
		s.set16(offTotalSectors16, uint16(totalSectors))
	} else {
		s.set32(offTotalSectors32, totalSectors)
	}
	s.set8(offMedia, 0xF8)
	s.set16(offSectorsPerTrack, 0)
	s.set16(offNumberOfHeads, 0)
	s.set32(offHiddenSectors, 0)

	volumeID := f.rand.Uint32()

	if fatType == FAT32 {
		s.set32(off32FATSize, sectorsPerFat)
		s.set16(off32ExtFlags, 0)
		s.set16(off32FSVersion, 0)
		s.set32(off32RootCluster, MinCluster)
		s.set16(off32FSInfo, 1)
		s.set16(off32BkBootSector, 6)
		s.set8(off32DriveNumber, 0x80)
		s.set8(off32BootSig, bootSignature)
		s.set32(off32VolumeID, volumeID)
		writeFixed(s, off32VolumeLabel, 11, f.label)
		writeFixed(s, off32FSType, 8, "FAT32")
	} else {
		s.set16(offFATSize16, uint16(sectorsPerFat))
		s.set8(off16DriveNumber, 0x00)
		s.set8(off16BootSig, bootSignature)
		s.set32(off16VolumeID, volumeID)
		writeFixed(s, off16VolumeLabel, 11, f.label)
		writeFixed(s, off16FSType, 8, fatType.String())
	}
	s.set16(offSignature, 0xAA55)

	if err := s.write(); err != nil {
		return nil, err
	}
	if fatType == FAT32 {
		backup := newSector(f.device, int64(6)*int64(bytesPerSector), bootSectorSize)
		copy(backup.buffer, s.buffer)
		backup.markDirty()
		if err := backup.write(); err != nil {
			return nil, err
		}
	}

	fatOffset := int64(reservedSectors) * int64(bytesPerSector)
	filesOffset := fatOffset + int64(numFATs)*int64(sectorsPerFat)*int64(bytesPerSector)
	if fatType != FAT32 {
		filesOffset += int64(rootEntryCount) * directoryEntrySize
	}

	dataClusterCount := uint32((size - filesOffset) / (int64(spc) * int64(bytesPerSector)))
	fat := newFat(fatType, dataClusterCount)
	fat.set(0, (fat.eocValue()&^0xFF)|0xF8)
	fat.set(1, fat.eocValue())

	if fatType == FAT32 {
		fat.set(MinCluster, fat.eocValue())
		fat.lastAllocated = MinCluster

		rootBytes := make([]byte, int64(spc)*int64(bytesPerSector))
		if _, err := f.device.WriteAt(rootBytes, filesOffset); err != nil {
			return nil, checkpoint.From(err)
		}
	} else {
		rootBytes := make([]byte, int64(rootEntryCount)*directoryEntrySize)
		if _, err := f.device.WriteAt(rootBytes, fatOffset+int64(numFATs)*int64(sectorsPerFat)*int64(bytesPerSector)); err != nil {
			return nil, checkpoint.From(err)
		}
	}

	for i := 0; i < int(numFATs); i++ {
		off := fatOffset + int64(i)*int64(sectorsPerFat)*int64(bytesPerSector)
		if err := fat.writeCopy(f.device, off); err != nil {
			return nil, err
		}
	}

	if fatType == FAT32 {
		fsInfo := newFsInfo(f.device, 1, bytesPerSector)
		fsInfo.refresh(fat)
		if err := fsInfo.write(); err != nil {
			return nil, err
		}
	}

	if err := f.device.Flush(); err != nil {
		return nil, checkpoint.From(err)
	}

	fs, err := Mount(f.device, MountOptions{})
	if err != nil {
		return nil, err
	}

	if f.label != "" {
		if err := fs.SetVolumeLabel(f.label); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

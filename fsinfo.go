package gofat

import "github.com/roundwheel/gofat/checkpoint"

// FAT32 FSInfo sector layout, spec §4.4.
const (
	fsInfoLeadSignature  = 0x41615252
	fsInfoStructSignature = 0x61417272
	fsInfoTrailSignature  = 0xAA550000

	offFsInfoLeadSig   = 0
	offFsInfoStructSig = 484
	offFsInfoFreeCount = 488
	offFsInfoNextFree  = 492
	offFsInfoTrailSig  = 508

	fsInfoUnknown = 0xFFFFFFFF
)

// fsInfoSector caches the FAT32 free-cluster count and allocation hint so a
// remount doesn't need a full FAT scan. It is only present on FAT32 volumes.
type fsInfoSector struct {
	buf *sector
}

func readFsInfo(device BlockDevice, sectorNr uint16, bytesPerSector uint16) (*fsInfoSector, error) {
	s := newSector(device, int64(sectorNr)*int64(bytesPerSector), int(bytesPerSector))
	if err := s.read(); err != nil {
		return nil, err
	}
	if s.get32(offFsInfoLeadSig) != fsInfoLeadSignature || s.get32(offFsInfoStructSig) != fsInfoStructSignature {
		return nil, checkpoint.From(ErrUnrecognizedFormat)
	}
	return &fsInfoSector{buf: s}, nil
}

func newFsInfo(device BlockDevice, sectorNr uint16, bytesPerSector uint16) *fsInfoSector {
	s := newSector(device, int64(sectorNr)*int64(bytesPerSector), int(bytesPerSector))
	s.set32(offFsInfoLeadSig, fsInfoLeadSignature)
	s.set32(offFsInfoStructSig, fsInfoStructSignature)
	s.set32(offFsInfoTrailSig, fsInfoTrailSignature)
	s.set32(offFsInfoFreeCount, fsInfoUnknown)
	s.set32(offFsInfoNextFree, fsInfoUnknown)
	return &fsInfoSector{buf: s}
}

func (f *fsInfoSector) freeClusterCount() uint32 {
	return f.buf.get32(offFsInfoFreeCount)
}

func (f *fsInfoSector) lastAllocatedCluster() uint32 {
	return f.buf.get32(offFsInfoNextFree)
}

// checkAgainst compares the cached free-cluster count against the FAT's own
// count, per spec §4.4: a cache claiming fewer free clusters than the FAT
// actually has is stale and rejected as ErrFsInfoStale, unless the cache is
// still carrying the "unknown" sentinel.
func (f *fsInfoSector) checkAgainst(fat *Fat) error {
	cached := f.freeClusterCount()
	if cached == fsInfoUnknown {
		return nil
	}
	if cached < fat.freeClusterCount() {
		return checkpoint.From(ErrFsInfoStale)
	}
	return nil
}

// refresh rewrites both counters from the authoritative in-memory FAT state.
func (f *fsInfoSector) refresh(fat *Fat) {
	f.buf.set32(offFsInfoFreeCount, fat.freeClusterCount())
	f.buf.set32(offFsInfoNextFree, fat.lastAllocatedCluster())
}

func (f *fsInfoSector) write() error {
	return f.buf.write()
}

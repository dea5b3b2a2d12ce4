package gofat

import "testing"

func newTestFsInfo(t *testing.T) (*fsInfoSector, BlockDevice) {
	t.Helper()
	device, err := NewMemBlockDevice(64*1024, 512)
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	info := newFsInfo(device, 1, 512)
	return info, device
}

func TestFsInfoWriteReadRoundTrip(t *testing.T) {
	info, device := newTestFsInfo(t)
	info.buf.set32(offFsInfoFreeCount, 42)
	info.buf.set32(offFsInfoNextFree, 7)

	if err := info.write(); err != nil {
		t.Fatalf("write: %v", err)
	}

	reloaded, err := readFsInfo(device, 1, 512)
	if err != nil {
		t.Fatalf("readFsInfo: %v", err)
	}
	if reloaded.freeClusterCount() != 42 {
		t.Fatalf("freeClusterCount() = %d, want 42", reloaded.freeClusterCount())
	}
	if reloaded.lastAllocatedCluster() != 7 {
		t.Fatalf("lastAllocatedCluster() = %d, want 7", reloaded.lastAllocatedCluster())
	}
}

func TestReadFsInfoRejectsBadSignature(t *testing.T) {
	device, err := NewMemBlockDevice(64*1024, 512)
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	if _, err := readFsInfo(device, 1, 512); err == nil {
		t.Fatalf("expected ErrUnrecognizedFormat for an unwritten FSInfo sector")
	}
}

func TestFsInfoRefreshMatchesFat(t *testing.T) {
	info, _ := newTestFsInfo(t)
	fat := newFat(FAT32, 100)
	if _, err := fat.allocNew(); err != nil {
		t.Fatalf("allocNew: %v", err)
	}

	info.refresh(fat)
	if info.freeClusterCount() != fat.freeClusterCount() {
		t.Fatalf("freeClusterCount() = %d, want %d", info.freeClusterCount(), fat.freeClusterCount())
	}
	if info.lastAllocatedCluster() != fat.lastAllocatedCluster() {
		t.Fatalf("lastAllocatedCluster() = %d, want %d", info.lastAllocatedCluster(), fat.lastAllocatedCluster())
	}
}

func TestFsInfoCheckAgainstAcceptsUnknownSentinel(t *testing.T) {
	info, _ := newTestFsInfo(t)
	fat := newFat(FAT32, 100)
	if err := info.checkAgainst(fat); err != nil {
		t.Fatalf("checkAgainst() with unknown sentinel: %v", err)
	}
}

func TestFsInfoCheckAgainstRejectsStaleLow(t *testing.T) {
	info, _ := newTestFsInfo(t)
	fat := newFat(FAT32, 100)
	info.buf.set32(offFsInfoFreeCount, fat.freeClusterCount()-1)

	if err := info.checkAgainst(fat); err == nil {
		t.Fatalf("expected ErrFsInfoStale when the cache claims fewer free clusters than the FAT has")
	}
}

func TestFsInfoCheckAgainstAcceptsStaleHigh(t *testing.T) {
	info, _ := newTestFsInfo(t)
	fat := newFat(FAT32, 100)
	info.buf.set32(offFsInfoFreeCount, fat.freeClusterCount()+1)

	if err := info.checkAgainst(fat); err != nil {
		t.Fatalf("checkAgainst() with a cache claiming more free clusters than the FAT has: %v", err)
	}
}

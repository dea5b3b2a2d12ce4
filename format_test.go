package gofat

import (
	"errors"
	"math/rand"
	"testing"
)

func TestPickSpcFallsBackToLargestRow(t *testing.T) {
	got := pickSpc(fat16SpcTable, ^uint32(0))
	want := fat16SpcTable[len(fat16SpcTable)-1].spc
	if got != want {
		t.Fatalf("pickSpc() = %d, want %d", got, want)
	}
}

func TestPickSpcPicksSmallestFittingRow(t *testing.T) {
	got := pickSpc(fat16SpcTable, 30_000)
	if got != 2 {
		t.Fatalf("pickSpc(30000) = %d, want 2", got)
	}
}

func TestPickFat12SpcRejectsTooLarge(t *testing.T) {
	if _, err := pickFat12Spc(10_000_000, 512); err == nil {
		t.Fatalf("expected ErrDeviceTooLarge for a sector count FAT12 cannot address")
	}
}

func TestPickFat12SpcGrowsWithSectorCount(t *testing.T) {
	spc, err := pickFat12Spc(8000, 512)
	if err != nil {
		t.Fatalf("pickFat12Spc: %v", err)
	}
	if spc < 2 {
		t.Fatalf("pickFat12Spc(8000) = %d, want at least 2", spc)
	}
}

func TestFormatRejectsFAT16DeviceTooSmall(t *testing.T) {
	device, err := NewMemBlockDevice(1024*1024, 512) // 2048 sectors, below the 8400 FAT16 floor
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	_, err = NewSuperFloppyFormatter(device, rand.NewSource(1)).WithFatType(FAT16).Format()
	if !errors.Is(err, ErrDeviceTooSmall) {
		t.Fatalf("Format() error = %v, want ErrDeviceTooSmall", err)
	}
}

func TestFormatRejectsFAT32DeviceTooSmall(t *testing.T) {
	device, err := NewMemBlockDevice(8*1024*1024, 512) // well under FAT32's 66600-sector floor
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	_, err = NewSuperFloppyFormatter(device, rand.NewSource(1)).WithFatType(FAT32).Format()
	if !errors.Is(err, ErrDeviceTooSmall) {
		t.Fatalf("Format() error = %v, want ErrDeviceTooSmall", err)
	}
}

func TestFormatAutoSelectsFatTypeBySize(t *testing.T) {
	device, err := NewMemBlockDevice(2*1024*1024, 512) // under 5MiB -> FAT12
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	fs, err := NewSuperFloppyFormatter(device, rand.NewSource(1)).Format()
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if fs.FSType() != FAT12 {
		t.Fatalf("FSType() = %v, want FAT12", fs.FSType())
	}
}

func TestFormatAppliesLabel(t *testing.T) {
	device, err := NewMemBlockDevice(32*1024*1024, 512)
	if err != nil {
		t.Fatalf("NewMemBlockDevice: %v", err)
	}
	fs, err := NewSuperFloppyFormatter(device, rand.NewSource(1)).WithFatType(FAT16).WithLabel("MYLABEL").Format()
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if fs.Label() != "MYLABEL" {
		t.Fatalf("Label() = %q, want MYLABEL", fs.Label())
	}
}

package gofat

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFatAllocAndChain(t *testing.T) {
	fat := newFat(FAT16, 10)

	first, err := fat.allocNew()
	if err != nil {
		t.Fatalf("allocNew: %v", err)
	}
	second, err := fat.allocAppend(first)
	if err != nil {
		t.Fatalf("allocAppend: %v", err)
	}

	chain, err := fat.getChain(first)
	if err != nil {
		t.Fatalf("getChain: %v", err)
	}
	if len(chain) != 2 || chain[0] != first || chain[1] != second {
		t.Fatalf("getChain() = %v, want [%d %d]", chain, first, second)
	}

	if !fat.get(second).IsEOF() {
		t.Fatalf("last cluster in chain is not marked EOF")
	}
}

func TestFatFreeChain(t *testing.T) {
	fat := newFat(FAT16, 10)
	before := fat.freeClusterCount()

	first, err := fat.allocNew()
	if err != nil {
		t.Fatalf("allocNew: %v", err)
	}
	if _, err := fat.allocAppend(first); err != nil {
		t.Fatalf("allocAppend: %v", err)
	}
	if fat.freeClusterCount() != before-2 {
		t.Fatalf("freeClusterCount() = %d, want %d", fat.freeClusterCount(), before-2)
	}

	if err := fat.freeChain(first); err != nil {
		t.Fatalf("freeChain: %v", err)
	}
	if fat.freeClusterCount() != before {
		t.Fatalf("freeClusterCount() after freeChain = %d, want %d", fat.freeClusterCount(), before)
	}
}

func TestFatDetectsCycle(t *testing.T) {
	fat := newFat(FAT16, 10)
	// Manually wire cluster 2 -> 3 -> 2, a cycle.
	fat.set(2, 3)
	fat.set(3, 2)

	if _, err := fat.getChain(2); err == nil {
		t.Fatalf("expected ErrFatChainCycle, got nil")
	}
}

func TestFatSetEntryZeroAndOneDoNotAffectFreeCount(t *testing.T) {
	fat := newFat(FAT16, 10)
	before := fat.freeClusterCount()

	fat.set(0, (fat.eocValue()&^0xFF)|0xF8)
	fat.set(1, fat.eocValue())

	if fat.freeClusterCount() != before {
		t.Fatalf("freeClusterCount() = %d, want %d (entries 0/1 are not data clusters)", fat.freeClusterCount(), before)
	}
}

func TestFatSerializeRoundTripFAT12(t *testing.T) {
	fat := newFat(FAT12, 10)
	fat.set(2, 5)
	fat.set(5, fat.eocValue())

	raw := fat.serialize()
	reloaded, err := readFat(FAT12, 10, raw)
	if err != nil {
		t.Fatalf("readFat: %v", err)
	}
	if diff := cmp.Diff(fat.entries, reloaded.entries); diff != "" {
		t.Fatalf("FAT12 table did not round-trip through serialize/readFat (-want +got):\n%s", diff)
	}
}

func TestFatSerializeRoundTripFAT32(t *testing.T) {
	fat := newFat(FAT32, 10)
	fat.set(2, 5)
	fat.set(5, fat.eocValue())

	raw := fat.serialize()
	reloaded, err := readFat(FAT32, 10, raw)
	if err != nil {
		t.Fatalf("readFat: %v", err)
	}
	if diff := cmp.Diff(fat.entries, reloaded.entries); diff != "" {
		t.Fatalf("FAT32 table did not round-trip through serialize/readFat (-want +got):\n%s", diff)
	}
}

func TestFatEntryEOCThresholds(t *testing.T) {
	tests := []struct {
		fatType FATType
		value   uint32
		wantEOF bool
	}{
		{FAT12, 0xFF7, false},
		{FAT12, 0xFF8, true},
		{FAT16, 0xFFF7, false},
		{FAT16, 0xFFF8, true},
		{FAT32, 0x0FFFFFF7, false},
		{FAT32, 0x0FFFFFF8, true},
	}
	for _, tt := range tests {
		e := fatEntry{fatType: tt.fatType, raw: tt.value}
		if got := e.IsEOF(); got != tt.wantEOF {
			t.Errorf("fatEntry{%v, %#x}.IsEOF() = %v, want %v", tt.fatType, tt.value, got, tt.wantEOF)
		}
	}
}

func TestClassifyFatType(t *testing.T) {
	tests := []struct {
		clusters uint32
		want     FATType
	}{
		{100, FAT12},
		{4084, FAT12},
		{4085, FAT16},
		{65524, FAT16},
		{65525, FAT32},
	}
	for _, tt := range tests {
		if got := classifyFatType(tt.clusters); got != tt.want {
			t.Errorf("classifyFatType(%d) = %v, want %v", tt.clusters, got, tt.want)
		}
	}
}

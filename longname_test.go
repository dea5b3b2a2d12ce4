package gofat

import "testing"

func TestPackUnpackLongNameRoundTrip(t *testing.T) {
	name := "a rather long file name with spaces.txt"
	slots, err := packLongName(name, 0x42)
	if err != nil {
		t.Fatalf("packLongName: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("packLongName returned no slots")
	}

	// unpackLongName expects slots ordered first-logical-first (same order
	// packLongName emits them in).
	got, err := unpackLongName(slots)
	if err != nil {
		t.Fatalf("unpackLongName: %v", err)
	}
	if got != name {
		t.Fatalf("unpackLongName() = %q, want %q", got, name)
	}
}

func TestPackLongNameOrdinalsDescend(t *testing.T) {
	// A name needing exactly two slots: 13 units fit one slot, so 14+ forces two.
	name := "123456789012345"
	slots, err := packLongName(name, 0x10)
	if err != nil {
		t.Fatalf("packLongName: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("packLongName produced %d slots, want 2", len(slots))
	}
	if slots[0].Sequence != 2|0x40 {
		t.Fatalf("slots[0].Sequence = %x, want %x", slots[0].Sequence, 2|0x40)
	}
	if slots[1].Sequence != 1 {
		t.Fatalf("slots[1].Sequence = %x, want 1", slots[1].Sequence)
	}
}

func TestPackLongNameRejectsTooLong(t *testing.T) {
	tooLong := make([]byte, maxLongNameLength+1)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	if _, err := packLongName(string(tooLong), 0); err == nil {
		t.Fatalf("expected ErrNameTooLong for a name exceeding the limit")
	}
}

func TestVerifyLfnChainAccepts(t *testing.T) {
	slots, err := packLongName("checksum-me.bin", 0x7A)
	if err != nil {
		t.Fatalf("packLongName: %v", err)
	}
	if !verifyLfnChain(slots, 0x7A) {
		t.Fatalf("verifyLfnChain() = false, want true for a freshly packed chain")
	}
}

func TestVerifyLfnChainRejectsWrongChecksum(t *testing.T) {
	slots, err := packLongName("checksum-me.bin", 0x7A)
	if err != nil {
		t.Fatalf("packLongName: %v", err)
	}
	if verifyLfnChain(slots, 0x00) {
		t.Fatalf("verifyLfnChain() = true, want false for a mismatched checksum")
	}
}

func TestVerifyLfnChainRejectsBrokenSequence(t *testing.T) {
	slots, err := packLongName("123456789012345", 0x11)
	if err != nil {
		t.Fatalf("packLongName: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	broken := []LongFilenameEntry{slots[1]} // drop the first (highest-ordinal) slot
	if verifyLfnChain(broken, 0x11) {
		t.Fatalf("verifyLfnChain() = true, want false for a truncated chain")
	}
}

func TestEncodeDecodeUTF16RoundTrip(t *testing.T) {
	want := "long name.txt"
	units, err := encodeUTF16(want)
	if err != nil {
		t.Fatalf("encodeUTF16: %v", err)
	}
	got, err := decodeUTF16(units)
	if err != nil {
		t.Fatalf("decodeUTF16: %v", err)
	}
	if got != want {
		t.Fatalf("decodeUTF16() = %q, want %q", got, want)
	}
}

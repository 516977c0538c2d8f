/*
 * rsu - Metadata codec test cases.
 *
 * Copyright 2025, SOCFPGA Tools authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func testSPT() *SPT {
	return &SPT{
		Version: 1,
		Partitions: []Partition{
			{Name: "BOOT_INFO", Offset: 0x0, Length: 0x10000, Flags: FlagReserved},
			{Name: "SPT0", Offset: 0x10000, Length: 0x8000},
			{Name: "SPT1", Offset: 0x18000, Length: 0x8000},
			{Name: "CPB0", Offset: 0x20000, Length: 0x8000},
			{Name: "CPB1", Offset: 0x28000, Length: 0x8000},
			{Name: "P1", Offset: 0x100000, Length: 0x100000},
		},
	}
}

func TestSPTRoundTrip(t *testing.T) {
	spt := testSPT()

	block := spt.Marshal()
	if len(block) != BlockSize {
		t.Fatalf("marshaled block is %d bytes", len(block))
	}

	parsed, err := UnmarshalSPT(block)
	if err != nil {
		t.Fatalf("UnmarshalSPT failed: %v", err)
	}
	if err := parsed.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if len(parsed.Partitions) != len(spt.Partitions) {
		t.Fatalf("partition count got %d want %d", len(parsed.Partitions), len(spt.Partitions))
	}
	for i := range spt.Partitions {
		if parsed.Partitions[i] != spt.Partitions[i] {
			t.Errorf("partition %d got %+v want %+v", i, parsed.Partitions[i], spt.Partitions[i])
		}
	}
}

func TestSPTBadMagic(t *testing.T) {
	block := testSPT().Marshal()
	binary.LittleEndian.PutUint32(block[0:4], StampedMagic)

	if _, err := UnmarshalSPT(block); !errors.Is(err, ErrBadMagic) {
		t.Errorf("want ErrBadMagic, got %v", err)
	}
}

func TestSPTNameTruncation(t *testing.T) {
	block := testSPT().Marshal()
	// Overwrite the P1 entry name with 16 non-NUL bytes.
	copy(block[sptEntriesOffset+5*sptEntrySize:], "ABCDEFGHIJKLMNOP")

	parsed, err := UnmarshalSPT(block)
	if err != nil {
		t.Fatalf("UnmarshalSPT failed: %v", err)
	}
	if got := parsed.Partitions[5].Name; got != "ABCDEFGHIJKLMNO" {
		t.Errorf("name not truncated, got %q", got)
	}
}

func TestSPTValidateOverlap(t *testing.T) {
	spt := testSPT()
	spt.Partitions = append(spt.Partitions, Partition{Name: "P2", Offset: 0x180000, Length: 0x100000})

	if err := spt.Validate(); err == nil {
		t.Error("overlapping partitions not detected")
	}
}

func TestSPTValidateDuplicateName(t *testing.T) {
	spt := testSPT()
	spt.Partitions = append(spt.Partitions, Partition{Name: "P1", Offset: 0x300000, Length: 0x1000})

	if err := spt.Validate(); err == nil {
		t.Error("duplicate name not detected")
	}
}

func TestSPTValidateMissingCritical(t *testing.T) {
	spt := testSPT()
	spt.Partitions = spt.Partitions[:3] // drop CPB0/CPB1

	if err := spt.Validate(); err == nil {
		t.Error("missing CPB entries not detected")
	}
}

func TestSPTChecksumRoundTrip(t *testing.T) {
	block := testSPT().Marshal()

	StampSPTChecksum(block)
	if err := VerifySPTChecksum(block); err != nil {
		t.Fatalf("checksum does not verify after stamping: %v", err)
	}

	// Any payload flip must break it.
	block[sptEntriesOffset] ^= 0x01
	if err := VerifySPTChecksum(block); err == nil {
		t.Error("corrupted block still verifies")
	}
}

func TestCPBEmpty(t *testing.T) {
	cpb := NewEmptyCPB()

	if cpb.HeaderSize() != CPBHeaderSize {
		t.Errorf("header size got %d", cpb.HeaderSize())
	}
	if cpb.ImagePtrOffset() != CPBImagePtrOffset {
		t.Errorf("image pointer offset got %d", cpb.ImagePtrOffset())
	}
	if cpb.ImagePtrSlots() != CPBImagePtrSlots {
		t.Errorf("image pointer slots got %d", cpb.ImagePtrSlots())
	}
	for i := 0; i < cpb.ImagePtrSlots(); i++ {
		if cpb.Slot(i) != Erased {
			t.Fatalf("slot %d not erased", i)
		}
	}
}

func TestCPBRoundTrip(t *testing.T) {
	cpb := NewEmptyCPB()
	cpb.SetSlot(0, 0x100000)
	cpb.SetSlot(1, Spent)

	parsed, err := UnmarshalCPB(cpb.Marshal())
	if err != nil {
		t.Fatalf("UnmarshalCPB failed: %v", err)
	}

	if parsed.Slot(0) != 0x100000 || parsed.Slot(1) != Spent || parsed.Slot(2) != Erased {
		t.Errorf("slots not preserved: %X %X %X", parsed.Slot(0), parsed.Slot(1), parsed.Slot(2))
	}
	if !bytes.Equal(parsed.Marshal(), cpb.Marshal()) {
		t.Error("CPB round trip is not bit exact")
	}
}

func TestCPBBadGeometry(t *testing.T) {
	block := NewEmptyCPB().Marshal()
	binary.LittleEndian.PutUint32(block[16:20], BlockSize) // pointer array past the block

	if _, err := UnmarshalCPB(block); err == nil {
		t.Error("bad pointer array geometry not detected")
	}
}

func TestReservedNames(t *testing.T) {
	for _, name := range []string{"BOOT_INFO", "FACTORY_IMAGE", "SPT", "SPT0", "SPT1", "CPB", "CPB0", "CPB1"} {
		if !IsReservedName(name) {
			t.Errorf("%q should be reserved", name)
		}
	}
	if IsReservedName("P1") {
		t.Error("P1 should not be reserved")
	}
}

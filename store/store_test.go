/*
 * rsu - Metadata store test cases.
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

package store

import (
	"bytes"
	"errors"
	"testing"

	"github.com/socfpga-tools/rsu/hal"
	"github.com/socfpga-tools/rsu/hal/memflash"
	"github.com/socfpga-tools/rsu/metadata"
)

// Test flash layout.
const (
	flashSize = 8 * 1024 * 1024

	spt0Addr = 0x10000
	spt1Addr = 0x18000
	cpb0Addr = 0x20000
	cpb1Addr = 0x28000

	p1Addr = 0x100000
	p2Addr = 0x200000
	p3Addr = 0x300000

	slotSize = 0x100000
)

type fakeMbox struct {
	status   hal.StatusInfo
	addr     hal.SPTAddresses
	updates  []uint64
	notifies []uint32
}

func (m *fakeMbox) Status() (hal.StatusInfo, error) {
	return m.status, nil
}

func (m *fakeMbox) SendUpdate(addr uint64) error {
	m.updates = append(m.updates, addr)
	return nil
}

func (m *fakeMbox) SPTAddresses() (hal.SPTAddresses, error) {
	return m.addr, nil
}

func (m *fakeMbox) Notify(value uint32) error {
	m.notifies = append(m.notifies, value)
	return nil
}

func (m *fakeMbox) Terminate() error {
	return nil
}

func testTable() *metadata.SPT {
	return &metadata.SPT{
		Version: 1,
		Partitions: []metadata.Partition{
			{Name: "BOOT_INFO", Offset: 0, Length: 0x10000, Flags: metadata.FlagReserved},
			{Name: "SPT0", Offset: spt0Addr, Length: 0x8000, Flags: metadata.FlagReserved},
			{Name: "SPT1", Offset: spt1Addr, Length: 0x8000, Flags: metadata.FlagReserved},
			{Name: "CPB0", Offset: cpb0Addr, Length: 0x8000, Flags: metadata.FlagReserved},
			{Name: "CPB1", Offset: cpb1Addr, Length: 0x8000, Flags: metadata.FlagReserved},
			{Name: "FACTORY_IMAGE", Offset: 0x30000, Length: 0x10000, Flags: metadata.FlagReserved},
			{Name: "P1", Offset: p1Addr, Length: slotSize},
			{Name: "P2", Offset: p2Addr, Length: slotSize},
			{Name: "P3", Offset: p3Addr, Length: slotSize},
		},
	}
}

// testCPB gives P1 priority 1, P2 priority 2 and P3 priority 3.
func testCPB() *metadata.CPB {
	cpb := metadata.NewEmptyCPB()
	cpb.SetSlot(0, p3Addr)
	cpb.SetSlot(1, p2Addr)
	cpb.SetSlot(2, p1Addr)
	return cpb
}

// buildFlash writes the metadata pair onto a fresh device.
func buildFlash(t *testing.T, spt *metadata.SPT, cpb *metadata.CPB) *memflash.Device {
	t.Helper()
	flash := memflash.New(flashSize)

	block := spt.Marshal()
	if err := flash.Write(spt0Addr, block); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(spt1Addr, block); err != nil {
		t.Fatal(err)
	}

	block = cpb.Marshal()
	if err := flash.Write(cpb0Addr, block); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(cpb1Addr, block); err != nil {
		t.Fatal(err)
	}
	return flash
}

func testMbox() *fakeMbox {
	return &fakeMbox{addr: hal.SPTAddresses{SPT0: spt0Addr, SPT1: spt1Addr}}
}

func openStore(t *testing.T) (*Store, *memflash.Device) {
	t.Helper()
	flash := buildFlash(t, testTable(), testCPB())
	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s, flash
}

// readRegion is a test convenience for raw flash inspection.
func readRegion(t *testing.T, flash *memflash.Device, off int64, length int) []byte {
	t.Helper()
	buf := make([]byte, length)
	if err := flash.Read(off, buf); err != nil {
		t.Fatal(err)
	}
	return buf
}

func TestOpenCleanImage(t *testing.T) {
	s, _ := openStore(t)

	if s.SPTCorrupted() || s.CPBCorrupted() {
		t.Fatal("clean image flagged corrupted")
	}
	if got := s.PartitionCount(); got != 9 {
		t.Errorf("partition count got %d want 9", got)
	}

	p3 := s.spt.FindPartition("P3")
	if priority, _ := s.Priority(p3); priority != 3 {
		t.Errorf("P3 priority got %d want 3", priority)
	}
	p1 := s.spt.FindPartition("P1")
	if priority, _ := s.Priority(p1); priority != 1 {
		t.Errorf("P1 priority got %d want 1", priority)
	}
}

func TestOpenRestoresSPT1(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	if err := flash.Erase(spt1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.SPTCorrupted() {
		t.Fatal("SPT flagged corrupted after single copy loss")
	}

	raw0 := readRegion(t, flash, spt0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, spt1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("SPT1 not restored from SPT0")
	}
}

func TestOpenRestoresSPT0(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	// Trash SPT0 with a partial write pattern rather than an erase.
	if err := flash.Write(spt0Addr, make([]byte, 64)); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.SPTCorrupted() {
		t.Fatal("SPT flagged corrupted after single copy loss")
	}

	raw0 := readRegion(t, flash, spt0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, spt1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("SPT0 not restored from SPT1")
	}
}

func TestOpenBothSPTBad(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	if err := flash.Erase(spt0Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Erase(spt1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open must survive a double SPT loss: %v", err)
	}
	if !s.SPTCorrupted() {
		t.Error("SPT not flagged corrupted")
	}
	if !s.CPBCorrupted() {
		t.Error("CPB must be unusable while the SPT is corrupted")
	}
}

func TestOpenUnmatchedSPTPair(t *testing.T) {
	spt := testTable()
	flash := buildFlash(t, spt, testCPB())

	// Write a different but valid table into SPT1.
	spt.Partitions[8].Name = "P9"
	if err := flash.Erase(spt1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(spt1Addr, spt.Marshal()); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !s.SPTCorrupted() {
		t.Error("disagreeing SPT pair not flagged corrupted")
	}
}

func TestOpenChecksummedSPT(t *testing.T) {
	spt := testTable()
	spt.Version = 2
	flash := memflash.New(flashSize)

	block := spt.Marshal()
	metadata.StampSPTChecksum(block)
	if err := flash.Write(spt0Addr, block); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(spt1Addr, block); err != nil {
		t.Fatal(err)
	}
	cpb := testCPB().Marshal()
	if err := flash.Write(cpb0Addr, cpb); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(cpb1Addr, cpb); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.SPTCorrupted() {
		t.Fatal("checksummed table flagged corrupted")
	}

	// The same image with checksum verification must reject a table
	// whose checksum field was zeroed.
	bad := spt.Marshal()
	if err := flash.Erase(spt0Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(spt0Addr, bad); err != nil {
		t.Fatal(err)
	}
	if err := flash.Erase(spt1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Write(spt1Addr, bad); err != nil {
		t.Fatal(err)
	}

	s, err = Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !s.SPTCorrupted() {
		t.Error("bad checksum not detected")
	}
}

func TestOpenFirmwareVetoesCPB(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	mbox := testMbox()
	mbox.status.State = hal.StateCPB0CPB1Corrupted

	s, err := Open(flash, mbox, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !s.CPBCorrupted() {
		t.Error("firmware CPB verdict not honored")
	}
	if s.SPTCorrupted() {
		t.Error("SPT must stay usable")
	}
}

func TestOpenFirmwareSkipsCPB0(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	mbox := testMbox()
	mbox.status.State = hal.StateCPB0Corrupted

	// Make CPB0 differ; it must be ignored and rewritten from CPB1.
	if err := flash.Erase(cpb0Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, mbox, true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.CPBCorrupted() {
		t.Fatal("CPB flagged corrupted despite good CPB1")
	}

	raw0 := readRegion(t, flash, cpb0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, cpb1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("CPB0 not restored from CPB1")
	}
}

func TestOpenRestoresCPB1(t *testing.T) {
	flash := buildFlash(t, testTable(), testCPB())
	if err := flash.Erase(cpb1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if s.CPBCorrupted() {
		t.Fatal("CPB flagged corrupted after single copy loss")
	}

	raw0 := readRegion(t, flash, cpb0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, cpb1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("CPB1 not restored from CPB0")
	}
}

func TestPriorityAddRemove(t *testing.T) {
	s, flash := openStore(t)
	p2 := s.spt.FindPartition("P2")
	p3 := s.spt.FindPartition("P3")

	if err := s.PriorityRemove(p2); err != nil {
		t.Fatalf("PriorityRemove failed: %v", err)
	}
	if priority, _ := s.Priority(p2); priority != 0 {
		t.Errorf("P2 priority got %d want 0", priority)
	}
	if priority, _ := s.Priority(p3); priority != 2 {
		t.Errorf("P3 priority got %d want 2 after removing P2", priority)
	}

	if err := s.PriorityAdd(p2); err != nil {
		t.Fatalf("PriorityAdd failed: %v", err)
	}
	if priority, _ := s.Priority(p2); priority != 1 {
		t.Errorf("P2 priority got %d want 1 after re-adding", priority)
	}

	// Both flash copies must agree after the mutations.
	raw0 := readRegion(t, flash, cpb0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, cpb1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("CPB copies differ after priority changes")
	}
}

func TestPriorityAddCompacts(t *testing.T) {
	cpb := testCPB()
	// Exhaust the array: every remaining slot spent.
	for i := 3; i < cpb.ImagePtrSlots(); i++ {
		cpb.SetSlot(i, metadata.Spent)
	}
	flash := buildFlash(t, testTable(), cpb)

	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p2 := s.spt.FindPartition("P2")
	if err := s.PriorityRemove(p2); err != nil {
		t.Fatalf("PriorityRemove failed: %v", err)
	}
	if err := s.PriorityAdd(p2); err != nil {
		t.Fatalf("PriorityAdd with compaction failed: %v", err)
	}

	if priority, _ := s.Priority(p2); priority != 1 {
		t.Errorf("P2 priority got %d want 1 after compaction", priority)
	}
	// Compaction moved the live entries to the low end.
	if s.cpb.Slot(0) != p3Addr || s.cpb.Slot(1) != p1Addr || s.cpb.Slot(2) != p2Addr {
		t.Errorf("unexpected compacted layout: %X %X %X",
			s.cpb.Slot(0), s.cpb.Slot(1), s.cpb.Slot(2))
	}
	if s.cpb.Slot(3) != metadata.Erased {
		t.Error("tail not erased after compaction")
	}
}

func TestPriorityAddExhausted(t *testing.T) {
	// A full array of live pointers cannot be compacted; the add
	// must fail without overwriting anything.
	cpb := metadata.NewEmptyCPB()
	for i := 0; i < cpb.ImagePtrSlots(); i++ {
		cpb.SetSlot(i, p1Addr)
	}

	flash := buildFlash(t, testTable(), cpb)
	s, err := Open(flash, testMbox(), true)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	p2 := s.spt.FindPartition("P2")
	if err := s.PriorityAdd(p2); err == nil {
		t.Error("add into an exhausted CPB not rejected")
	}
	if priority, _ := s.Priority(p2); priority != 0 {
		t.Error("exhausted add must not assign a priority")
	}
}

func TestPartitionCreateDeleteRename(t *testing.T) {
	s, flash := openStore(t)

	if err := s.PartitionCreate("P4", 0x640000, slotSize); err != nil {
		t.Fatalf("PartitionCreate failed: %v", err)
	}
	if got := s.PartitionCount(); got != 10 {
		t.Errorf("partition count got %d want 10", got)
	}

	p4 := s.spt.FindPartition("P4")
	if p4 < 0 {
		t.Fatal("P4 not found after create")
	}
	if offset, _ := s.PartitionOffset(p4); offset != 0x640000 {
		t.Errorf("P4 offset got 0x%X", offset)
	}

	if err := s.PartitionRename(p4, "P5"); err != nil {
		t.Fatalf("PartitionRename failed: %v", err)
	}
	if s.spt.FindPartition("P4") >= 0 || s.spt.FindPartition("P5") < 0 {
		t.Error("rename not applied")
	}

	if err := s.PartitionDelete(s.spt.FindPartition("P5")); err != nil {
		t.Fatalf("PartitionDelete failed: %v", err)
	}
	if got := s.PartitionCount(); got != 9 {
		t.Errorf("partition count got %d want 9 after delete", got)
	}

	// Every mutation must leave the two table copies identical.
	raw0 := readRegion(t, flash, spt0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, spt1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("SPT copies differ after mutations")
	}
}

func TestPartitionCreateOverlap(t *testing.T) {
	s, _ := openStore(t)

	if err := s.PartitionCreate("P4", p3Addr+0x1000, slotSize); err == nil {
		t.Error("overlapping create not rejected")
	}
	if err := s.PartitionCreate("P1", 0x640000, slotSize); err == nil {
		t.Error("duplicate name create not rejected")
	}
}

func TestSaveRestoreSPT(t *testing.T) {
	s, flash := openStore(t)

	blob, err := s.SaveSPT()
	if err != nil {
		t.Fatalf("SaveSPT failed: %v", err)
	}

	// Corrupt both copies, then restore.
	if err := flash.Erase(spt0Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Erase(spt1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := s.loadSPT(); !errors.Is(err, ErrCorruptedSPT) {
		t.Fatalf("want ErrCorruptedSPT, got %v", err)
	}

	if err := s.RestoreSPT(blob); err != nil {
		t.Fatalf("RestoreSPT failed: %v", err)
	}
	if s.SPTCorrupted() || s.CPBCorrupted() {
		t.Error("corruption flags not cleared by restore")
	}

	raw0 := readRegion(t, flash, spt0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, spt1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("SPT copies differ after restore")
	}
	if got := s.PartitionCount(); got != 9 {
		t.Errorf("partition count got %d want 9 after restore", got)
	}
}

func TestRestoreSPTBadBlob(t *testing.T) {
	s, _ := openStore(t)

	blob, err := s.SaveSPT()
	if err != nil {
		t.Fatalf("SaveSPT failed: %v", err)
	}
	blob[100] ^= 0x01

	if err := s.RestoreSPT(blob); !errors.Is(err, ErrBadSaveBlob) {
		t.Errorf("want ErrBadSaveBlob, got %v", err)
	}
}

func TestSaveRestoreCPB(t *testing.T) {
	s, flash := openStore(t)

	blob, err := s.SaveCPB()
	if err != nil {
		t.Fatalf("SaveCPB failed: %v", err)
	}

	if err := flash.Erase(cpb0Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := flash.Erase(cpb1Addr, memflash.EraseSize); err != nil {
		t.Fatal(err)
	}
	if err := s.loadCPB(); !errors.Is(err, ErrCorruptedCPB) {
		t.Fatalf("want ErrCorruptedCPB, got %v", err)
	}

	if err := s.RestoreCPB(blob); err != nil {
		t.Fatalf("RestoreCPB failed: %v", err)
	}
	if s.CPBCorrupted() {
		t.Error("corruption flag not cleared by restore")
	}
	if !s.cpbFixed {
		t.Error("cpbFixed not set by restore")
	}

	p3 := s.spt.FindPartition("P3")
	if priority, _ := s.Priority(p3); priority != 3 {
		t.Errorf("P3 priority got %d want 3 after restore", priority)
	}
}

func TestEmptyCPB(t *testing.T) {
	s, flash := openStore(t)

	if err := s.EmptyCPB(); err != nil {
		t.Fatalf("EmptyCPB failed: %v", err)
	}

	for _, name := range []string{"P1", "P2", "P3"} {
		part := s.spt.FindPartition(name)
		if priority, _ := s.Priority(part); priority != 0 {
			t.Errorf("%s priority got %d want 0 after empty CPB", name, priority)
		}
	}

	raw0 := readRegion(t, flash, cpb0Addr, metadata.BlockSize)
	raw1 := readRegion(t, flash, cpb1Addr, metadata.BlockSize)
	if !bytes.Equal(raw0, raw1) {
		t.Error("CPB copies differ after empty CPB")
	}
}

func TestFactoryOffset(t *testing.T) {
	s, _ := openStore(t)

	offset, err := s.FactoryOffset()
	if err != nil {
		t.Fatalf("FactoryOffset failed: %v", err)
	}
	if offset != 0x30000 {
		t.Errorf("factory offset got 0x%X want 0x30000", offset)
	}
}

func TestDataReadWriteErase(t *testing.T) {
	s, _ := openStore(t)
	p1 := s.spt.FindPartition("P1")

	payload := bytes.Repeat([]byte{0xA5}, 4096)
	if err := s.DataWrite(p1, 8192, payload); err != nil {
		t.Fatalf("DataWrite failed: %v", err)
	}

	got := make([]byte, 4096)
	if err := s.DataRead(p1, 8192, got); err != nil {
		t.Fatalf("DataRead failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("read back data differs")
	}

	if err := s.DataErase(p1); err != nil {
		t.Fatalf("DataErase failed: %v", err)
	}
	if err := s.DataRead(p1, 8192, got); err != nil {
		t.Fatal(err)
	}
	for _, b := range got {
		if b != 0xFF {
			t.Fatal("partition not erased")
		}
	}

	// Out of bounds access must be refused.
	if err := s.DataRead(p1, slotSize-100, got); err == nil {
		t.Error("out of bounds read not rejected")
	}
}

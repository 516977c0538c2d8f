/*
 * rsu - Slot enumeration and lifecycle.
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

package rsu

import (
	"log/slog"

	"github.com/socfpga-tools/rsu/metadata"
)

// SlotInfo describes one application image slot.
type SlotInfo struct {
	Name     string // Partition name.
	Offset   uint64 // Flash offset.
	Size     int64  // Slot size in bytes.
	Priority int    // Boot priority, 0 when unassigned.
}

// isSlot reports whether a partition is user addressable: neither
// flagged reserved or read-only, nor carrying a reserved name.
func (s *Session) isSlot(part int) bool {
	if s.st.PartitionReserved(part) || s.st.PartitionReadonly(part) {
		return false
	}
	return !metadata.IsReservedName(s.st.PartitionName(part))
}

// slot2Part maps a user slot index onto its partition number. The
// mapping is derived fresh on every call; it is never cached across
// mutations.
func (s *Session) slot2Part(slot int) (int, error) {
	cnt := 0
	for part := 0; part < s.st.PartitionCount(); part++ {
		if !s.isSlot(part) {
			continue
		}
		if cnt == slot {
			return part, nil
		}
		cnt++
	}
	return 0, ErrSlotNum
}

func (s *Session) slotInfo(part int) (SlotInfo, error) {
	offset, err := s.st.PartitionOffset(part)
	if err != nil {
		return SlotInfo{}, ErrLowLevel
	}
	size, err := s.st.PartitionSize(part)
	if err != nil {
		return SlotInfo{}, ErrLowLevel
	}
	priority, err := s.st.Priority(part)
	if err != nil {
		return SlotInfo{}, ErrLowLevel
	}
	return SlotInfo{
		Name:     s.st.PartitionName(part),
		Offset:   offset,
		Size:     size,
		Priority: priority,
	}, nil
}

// SlotCount returns the number of user addressable slots.
func (s *Session) SlotCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if err := s.checkSPT(); err != nil {
		return 0, err
	}

	cnt := 0
	for part := 0; part < s.st.PartitionCount(); part++ {
		if s.isSlot(part) {
			cnt++
		}
	}
	return cnt, nil
}

// SlotByName returns the slot index of the named slot.
func (s *Session) SlotByName(name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if name == "" {
		return 0, ErrArgs
	}
	if err := s.checkSPT(); err != nil {
		return 0, err
	}

	cnt := 0
	for part := 0; part < s.st.PartitionCount(); part++ {
		if !s.isSlot(part) {
			continue
		}
		if s.st.PartitionName(part) == name {
			return cnt, nil
		}
		cnt++
	}
	return 0, ErrName
}

// SlotGetInfo returns the slot description.
func (s *Session) SlotGetInfo(slot int) (SlotInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return SlotInfo{}, err
	}
	if err := s.checkSPT(); err != nil {
		return SlotInfo{}, err
	}
	if err := s.checkCPB(); err != nil {
		return SlotInfo{}, err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return SlotInfo{}, err
	}
	return s.slotInfo(part)
}

// SlotSize returns the slot size in bytes.
func (s *Session) SlotSize(slot int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if err := s.checkSPT(); err != nil {
		return 0, err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return 0, err
	}
	size, err := s.st.PartitionSize(part)
	if err != nil {
		return 0, ErrLowLevel
	}
	return size, nil
}

// SlotPriority returns the slot boot priority, 0 when unassigned.
func (s *Session) SlotPriority(slot int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if err := s.checkSPT(); err != nil {
		return 0, err
	}
	if err := s.checkCPB(); err != nil {
		return 0, err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return 0, err
	}
	priority, err := s.st.Priority(part)
	if err != nil {
		return 0, ErrLowLevel
	}
	return priority, nil
}

// SlotErase removes the slot from the boot priority scheme and erases
// its flash contents.
func (s *Session) SlotErase(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}
	if s.cfg.WriteProtected(slot) {
		slog.Error("rsu: trying to erase a write protected slot", "slot", slot)
		return ErrWrProt
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	if err := s.st.PriorityRemove(part); err != nil {
		return ErrLowLevel
	}
	if err := s.st.DataErase(part); err != nil {
		return ErrLowLevel
	}
	return nil
}

// SlotEnable puts the slot at the highest boot priority.
func (s *Session) SlotEnable(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	if err := s.st.PriorityRemove(part); err != nil {
		return ErrLowLevel
	}
	if err := s.st.PriorityAdd(part); err != nil {
		return ErrLowLevel
	}
	return nil
}

// SlotDisable removes the slot from the boot priority scheme without
// touching its contents.
func (s *Session) SlotDisable(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	if err := s.st.PriorityRemove(part); err != nil {
		return ErrLowLevel
	}
	return nil
}

// SlotRename renames the slot. Reserved names are refused.
func (s *Session) SlotRename(slot int, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if name == "" {
		return ErrArgs
	}
	if err := s.checkSPT(); err != nil {
		return err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	if metadata.IsReservedName(name) {
		slog.Error("rsu: slot rename uses a reserved name", "name", name)
		return ErrName
	}
	if err := s.st.PartitionRename(part, name); err != nil {
		slog.Error("rsu: failed to rename slot", "err", err)
		return ErrName
	}
	return nil
}

// SlotDelete removes the slot from the priority scheme, erases it and
// deletes its partition.
func (s *Session) SlotDelete(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}
	if s.cfg.WriteProtected(slot) {
		slog.Error("rsu: trying to delete a write protected slot", "slot", slot)
		return ErrWrProt
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	if err := s.st.PriorityRemove(part); err != nil {
		slog.Error("rsu: failed to remove priority", "err", err)
		return ErrLowLevel
	}
	if err := s.st.DataErase(part); err != nil {
		slog.Error("rsu: failed to erase partition", "err", err)
		return ErrLowLevel
	}
	if err := s.st.PartitionDelete(part); err != nil {
		slog.Error("rsu: failed to delete partition", "err", err)
		return ErrLowLevel
	}
	return nil
}

// SlotCreate adds a new slot over the given flash region. Reserved
// names are refused; the region must not overlap an existing
// partition.
func (s *Session) SlotCreate(name string, address uint64, size uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if name == "" {
		return ErrArgs
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if metadata.IsReservedName(name) {
		slog.Error("rsu: slot create uses a reserved name", "name", name)
		return ErrName
	}
	if err := s.st.PartitionCreate(name, address, size); err != nil {
		slog.Error("rsu: failed to create slot", "err", err)
		return ErrLowLevel
	}
	return nil
}

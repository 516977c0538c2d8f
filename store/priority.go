/*
 * rsu - Priority model.
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
	"log/slog"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/metadata"
)

// Priority returns the 1-based boot priority of a partition, counted
// from the end of the pointer array, or 0 when the partition is not
// assigned.
func (s *Store) Priority(part int) (int, error) {
	if err := s.checkPart(part); err != nil {
		return 0, err
	}

	priority := 0
	for i := s.cpb.ImagePtrSlots(); i > 0; i-- {
		value := s.cpb.Slot(i - 1)
		if value == metadata.Erased || value == metadata.Spent {
			continue
		}
		priority++
		if value == s.spt.Partitions[part].Offset {
			return priority, nil
		}
	}
	return 0, nil
}

// updateCPB programs a single slot in both flash copies without an
// erase cycle. NOR flash only clears bits, so the new value must be
// reachable from the current one.
func (s *Store) updateCPB(slot int, value uint64) error {
	slog.Debug("store: updating CPB", "slot", slot, "value", value)

	if slot < 0 || slot >= s.cpb.ImagePtrSlots() {
		return errors.Errorf("store: invalid CPB slot %d", slot)
	}
	if s.cpb.Slot(slot)&value != value {
		return errors.Errorf("store: CPB slot %d cannot be programmed to 0x%016X", slot, value)
	}

	s.cpb.SetSlot(slot, value)
	block := s.cpb.Marshal()

	updates := 0
	for part, p := range s.spt.Partitions {
		if p.Name != "CPB0" && p.Name != "CPB1" {
			continue
		}
		if err := s.writePart(part, 0, block); err != nil {
			return errors.Wrapf(err, "store: unable to update %s", p.Name)
		}
		updates++
	}

	if updates != 2 {
		return errors.Errorf("store: found %d CPB copies, want 2", updates)
	}
	return nil
}

// PriorityAdd assigns a partition the highest priority by filling the
// first erased slot. With no erased slot left the live entries are
// compacted to the low end first; an array still full after compaction
// fails without touching flash.
func (s *Store) PriorityAdd(part int) error {
	if err := s.checkPart(part); err != nil {
		return err
	}
	offset := s.spt.Partitions[part].Offset

	for i := 0; i < s.cpb.ImagePtrSlots(); i++ {
		if s.cpb.Slot(i) == metadata.Erased {
			if err := s.updateCPB(i, offset); err != nil {
				slog.Error("store: error updating CPB", "err", err)
				s.loadCPB()
				return err
			}
			return s.loadCPB()
		}
	}

	slog.Info("store: compressing CPB")

	live := 0
	for i := 0; i < s.cpb.ImagePtrSlots(); i++ {
		if value := s.cpb.Slot(i); value != metadata.Erased && value != metadata.Spent {
			s.cpb.SetSlot(live, value)
			live++
		}
	}

	if live >= s.cpb.ImagePtrSlots() {
		return errors.New("store: CPB is full")
	}
	s.cpb.SetSlot(live, offset)
	live++

	for i := live; i < s.cpb.ImagePtrSlots(); i++ {
		s.cpb.SetSlot(i, metadata.Erased)
	}

	if err := s.writebackCPB(); err != nil {
		return err
	}
	return s.loadCPB()
}

// PriorityRemove marks the partition's slot spent and reloads the
// cache.
func (s *Store) PriorityRemove(part int) error {
	if err := s.checkPart(part); err != nil {
		return err
	}
	offset := s.spt.Partitions[part].Offset

	for i := 0; i < s.cpb.ImagePtrSlots(); i++ {
		if s.cpb.Slot(i) == offset {
			if err := s.updateCPB(i, metadata.Spent); err != nil {
				s.loadCPB()
				return err
			}
			break
		}
	}
	return s.loadCPB()
}

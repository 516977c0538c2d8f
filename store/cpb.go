/*
 * rsu - Configuration pointer block engine.
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
	"encoding/binary"
	"hash/crc32"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/hal"
	"github.com/socfpga-tools/rsu/metadata"
)

// checkCPB verifies that every live slot pointer resolves to a
// non-reserved partition of the cached table.
func (s *Store) checkCPB(cpb *metadata.CPB) error {
	for i := 0; i < cpb.ImagePtrSlots(); i++ {
		value := cpb.Slot(i)
		if value == metadata.Erased || value == metadata.Spent {
			continue
		}

		part := -1
		for j, p := range s.spt.Partitions {
			if value == p.Offset {
				part = j
				break
			}
		}
		if part < 0 {
			return errors.Errorf("store: CPB slot %d = 0x%016X is not in the SPT", i, value)
		}
		if s.spt.Partitions[part].IsReserved() {
			return errors.Errorf("store: CPB slot %d points at reserved partition %q",
				i, s.spt.Partitions[part].Name)
		}
	}
	return nil
}

// restoreCPBCopy rewrites one CPB partition from the cached block.
func (s *Store) restoreCPBCopy(part int) error {
	if err := s.erasePart(part); err != nil {
		return errors.Wrap(err, "store: failed to erase CPB partition")
	}

	block := s.cpb.Marshal()
	binary.LittleEndian.PutUint32(block[0:4], metadata.StampedMagic)
	if err := s.writePart(part, 0, block); err != nil {
		return errors.Wrap(err, "store: unable to write CPB table")
	}

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], metadata.CPBMagic)
	if err := s.writePart(part, 0, magic[:]); err != nil {
		return errors.Wrap(err, "store: unable to write CPB magic")
	}
	return nil
}

// loadCPB checks CPB1 and then CPB0, consulting the firmware verdict
// first. A single bad copy is restored from its twin; disagreement or
// a double failure raises the sticky corruption flag. Once a user has
// recovered the CPB, the firmware verdict is ignored.
func (s *Store) loadCPB() error {
	info, err := s.mbox.Status()
	if err != nil {
		return errors.Wrap(err, "store: error retrieving RSU status")
	}
	slog.Info("store: firmware state", "state", info.State)

	if !s.cpbFixed && info.State == hal.StateCPB0CPB1Corrupted {
		slog.Error("store: firmware detects both CPBs corrupted")
		s.cpbCorrupted = true
		return ErrCorruptedCPB
	}

	cpb0Skip := false
	if !s.cpbFixed && info.State == hal.StateCPB0Corrupted {
		slog.Error("store: firmware detects corrupted CPB0, fine CPB1")
		cpb0Skip = true
	}

	s.cpb0Part = s.spt.FindPartition("CPB0")
	s.cpb1Part = s.spt.FindPartition("CPB1")
	if s.cpb0Part < 0 || s.cpb1Part < 0 {
		return errors.New("store: missing CPB0/1 partition")
	}

	raw0 := make([]byte, metadata.BlockSize)
	raw1 := make([]byte, metadata.BlockSize)

	var cpb0, cpb1 *metadata.CPB

	if err := s.readPart(s.cpb1Part, 0, raw1); err == nil {
		if parsed, err := metadata.UnmarshalCPB(raw1); err == nil && s.checkCPB(parsed) == nil {
			cpb1 = parsed
		}
	}
	if cpb1 == nil {
		slog.Error("store: CPB1 is bad")
	}

	if !cpb0Skip {
		if err := s.readPart(s.cpb0Part, 0, raw0); err == nil {
			if parsed, err := metadata.UnmarshalCPB(raw0); err == nil && s.checkCPB(parsed) == nil {
				cpb0 = parsed
			}
		}
		if cpb0 == nil {
			slog.Error("store: CPB0 is bad")
		}
	}

	switch {
	case cpb0 != nil && cpb1 != nil:
		if !bytes.Equal(raw0, raw1) {
			slog.Error("store: unmatched CPB0/1 data")
			s.cpbCorrupted = true
			return ErrCorruptedCPB
		}
		s.cpb = cpb0
		return nil

	case cpb0 != nil:
		slog.Warn("store: restoring CPB1")
		s.cpb = cpb0
		return s.restoreCPBCopy(s.cpb1Part)

	case cpb1 != nil:
		slog.Warn("store: restoring CPB0")
		s.cpb = cpb1
		return s.restoreCPBCopy(s.cpb0Part)
	}

	slog.Error("store: found both CPBs corrupted")
	s.cpbCorrupted = true
	return ErrCorruptedCPB
}

// writebackCPB rewrites both CPB partitions from the cached block.
// Fewer than two updated copies is a hard failure.
func (s *Store) writebackCPB() error {
	updates := 0
	for part, p := range s.spt.Partitions {
		if p.Name != "CPB0" && p.Name != "CPB1" {
			continue
		}
		if err := s.restoreCPBCopy(part); err != nil {
			return err
		}
		updates++
	}

	if updates != 2 {
		return errors.Errorf("store: found %d CPB copies, want 2", updates)
	}
	return nil
}

// EmptyCPB builds a pointer block with only the header and writes it
// to both copies, clearing the corruption flag.
func (s *Store) EmptyCPB() error {
	if s.sptCorrupted {
		return ErrCorruptedSPT
	}

	s.cpb = metadata.NewEmptyCPB()
	if err := s.writebackCPB(); err != nil {
		return err
	}

	s.cpb0Part = s.spt.FindPartition("CPB0")
	s.cpb1Part = s.spt.FindPartition("CPB1")
	s.cpbCorrupted = false
	s.cpbFixed = true
	return nil
}

// SaveCPB reads the primary pointer block copy from flash and returns
// it with a trailing CRC32.
func (s *Store) SaveCPB() ([]byte, error) {
	block := make([]byte, metadata.BlockSize)
	if err := s.readPart(s.cpb0Part, 0, block); err != nil {
		return nil, errors.Wrap(err, "store: failed to read CPB0")
	}

	blob := make([]byte, metadata.BlockSize+4)
	copy(blob, block)
	binary.LittleEndian.PutUint32(blob[metadata.BlockSize:], crc32.ChecksumIEEE(block))
	return blob, nil
}

// RestoreCPB validates a save blob, installs it as the cached block
// and rewrites both flash copies, clearing the corruption flag.
func (s *Store) RestoreCPB(blob []byte) error {
	if s.sptCorrupted {
		return ErrCorruptedSPT
	}
	if len(blob) < metadata.BlockSize+4 {
		return errors.Errorf("store: CPB blob is %d bytes, want %d", len(blob), metadata.BlockSize+4)
	}

	block := blob[:metadata.BlockSize]
	want := binary.LittleEndian.Uint32(blob[metadata.BlockSize:])
	if crc32.ChecksumIEEE(block) != want {
		return ErrBadSaveBlob
	}

	cpb, err := metadata.UnmarshalCPB(block)
	if err != nil {
		return ErrBadSaveBlob
	}

	s.cpb = cpb
	if err := s.writebackCPB(); err != nil {
		return err
	}

	s.cpb0Part = s.spt.FindPartition("CPB0")
	s.cpb1Part = s.spt.FindPartition("CPB1")
	s.cpbCorrupted = false
	s.cpbFixed = true
	return nil
}

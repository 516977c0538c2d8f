/*
 * rsu - Sub-partition table engine.
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

	"github.com/socfpga-tools/rsu/metadata"
)

// checkSPT runs the full validity check on a parsed table and its raw
// block: optional checksum, entry invariants, and derivation of the
// device window base from the SPT0 entry.
func (s *Store) checkSPT(spt *metadata.SPT, raw []byte) error {
	if spt.Version > metadata.SPTVersion && s.sptChecksum {
		if err := metadata.VerifySPTChecksum(raw); err != nil {
			return err
		}
	}
	if err := spt.Validate(); err != nil {
		return err
	}
	return s.loadBaseOffset(spt)
}

// loadBaseOffset derives the device window base. When the SPT0 entry
// already matches the firmware reported address the device maps the
// whole flash; otherwise the window starts at SPT0.
func (s *Store) loadBaseOffset(spt *metadata.SPT) error {
	part := spt.FindPartition("SPT0")
	if part < 0 {
		return errors.New("store: no SPT0 entry")
	}
	if spt.Partitions[part].Offset == s.sptAddr.SPT0 {
		s.basePartOffset = 0
	} else {
		s.basePartOffset = spt.Partitions[part].Offset
	}
	return nil
}

// restoreSPTCopy rewrites one SPT copy, by device address, from the
// serialized table: erase, write with a stamped magic, then the real
// magic word.
func (s *Store) restoreSPTCopy(addr uint64, block []byte) error {
	if err := s.eraseDev(int64(addr), sptRegionEraseSize); err != nil {
		return errors.Wrap(err, "store: erase SPT region failed")
	}

	stamped := append([]byte{}, block...)
	binary.LittleEndian.PutUint32(stamped[0:4], metadata.StampedMagic)
	if err := s.writeDev(int64(addr), stamped); err != nil {
		return errors.Wrap(err, "store: unable to write SPT table")
	}

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], metadata.SPTMagic)
	if err := s.writeDev(int64(addr), magic[:]); err != nil {
		return errors.Wrap(err, "store: unable to write SPT magic")
	}
	return nil
}

// loadSPT checks SPT1 and then SPT0. If both pass they must be byte
// identical, and SPT0 is used. If only one passes, the bad copy is
// restored from it. If both are bad, the sticky corruption flag is
// raised.
func (s *Store) loadSPT() error {
	raw0 := make([]byte, metadata.BlockSize)
	raw1 := make([]byte, metadata.BlockSize)

	slog.Info("store: reading SPT1")
	if err := s.readDev(int64(s.sptAddr.SPT1), raw1); err != nil {
		return errors.Wrap(err, "store: failed to read SPT1")
	}
	spt1, err := metadata.UnmarshalSPT(raw1)
	if err == nil {
		err = s.checkSPT(spt1, raw1)
	}
	spt1Good := err == nil
	if !spt1Good {
		slog.Error("store: SPT1 validity check failed", "err", err)
	}

	slog.Info("store: reading SPT0")
	if err := s.readDev(int64(s.sptAddr.SPT0), raw0); err != nil {
		return errors.Wrap(err, "store: failed to read SPT0")
	}
	spt0, err := metadata.UnmarshalSPT(raw0)
	if err == nil {
		err = s.checkSPT(spt0, raw0)
	}
	spt0Good := err == nil
	if !spt0Good {
		slog.Error("store: SPT0 validity check failed", "err", err)
	}

	switch {
	case spt0Good && spt1Good:
		if !bytes.Equal(raw0, raw1) {
			slog.Error("store: unmatched SPT0/1 data")
			s.sptCorrupted = true
			return ErrCorruptedSPT
		}
		s.spt = spt0
		return nil

	case spt0Good:
		slog.Warn("store: restoring SPT1")
		if err := s.restoreSPTCopy(s.sptAddr.SPT1, raw0); err != nil {
			return err
		}
		s.spt = spt0
		return nil

	case spt1Good:
		slog.Warn("store: restoring SPT0")
		if err := s.restoreSPTCopy(s.sptAddr.SPT0, raw1); err != nil {
			return err
		}
		s.spt = spt1
		return nil
	}

	slog.Error("store: no valid SPT0 or SPT1 found")
	s.sptCorrupted = true
	return ErrCorruptedSPT
}

// writebackSPT serializes the cached table and rewrites both flash
// copies through their partitions. Fewer than two updated copies is a
// hard failure.
func (s *Store) writebackSPT() error {
	block := s.spt.Marshal()
	if s.spt.Version > metadata.SPTVersion && s.sptChecksum {
		metadata.StampSPTChecksum(block)
		s.spt.Checksum = binary.LittleEndian.Uint32(block[0x0C:0x10])
	}

	stamped := append([]byte{}, block...)
	binary.LittleEndian.PutUint32(stamped[0:4], metadata.StampedMagic)

	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], metadata.SPTMagic)

	updates := 0
	for part, p := range s.spt.Partitions {
		if p.Name != "SPT0" && p.Name != "SPT1" {
			continue
		}

		if err := s.erasePart(part); err != nil {
			return errors.Wrapf(err, "store: unable to erase %s", p.Name)
		}
		if err := s.writePart(part, 0, stamped); err != nil {
			return errors.Wrapf(err, "store: unable to write %s table", p.Name)
		}
		if err := s.writePart(part, 0, magic[:]); err != nil {
			return errors.Wrapf(err, "store: unable to write %s magic", p.Name)
		}
		updates++
	}

	if updates != 2 {
		return errors.Errorf("store: found %d SPT copies, want 2", updates)
	}
	return nil
}

// SaveSPT reads the primary table copy from flash and returns it with
// a trailing CRC32.
func (s *Store) SaveSPT() ([]byte, error) {
	block := make([]byte, metadata.BlockSize)
	if err := s.readDev(int64(s.sptAddr.SPT0), block); err != nil {
		return nil, errors.Wrap(err, "store: failed to read SPT0")
	}

	blob := make([]byte, metadata.BlockSize+4)
	copy(blob, block)
	binary.LittleEndian.PutUint32(blob[metadata.BlockSize:], crc32.ChecksumIEEE(block))
	return blob, nil
}

// RestoreSPT validates a save blob, installs it as the cached table
// and rewrites both flash copies. On success the SPT corruption flag
// is cleared and the CPB is reloaded against the new table.
func (s *Store) RestoreSPT(blob []byte) error {
	if len(blob) < metadata.BlockSize+4 {
		return errors.Errorf("store: SPT blob is %d bytes, want %d", len(blob), metadata.BlockSize+4)
	}

	block := blob[:metadata.BlockSize]
	want := binary.LittleEndian.Uint32(blob[metadata.BlockSize:])
	if crc32.ChecksumIEEE(block) != want {
		return ErrBadSaveBlob
	}

	spt, err := metadata.UnmarshalSPT(block)
	if err != nil {
		return ErrBadSaveBlob
	}

	s.spt = spt
	if err := s.loadBaseOffset(spt); err != nil {
		return err
	}
	if err := s.writebackSPT(); err != nil {
		return err
	}
	s.sptCorrupted = false

	// The new table may point at different CPB partitions.
	s.cpbCorrupted = false
	if err := s.loadCPB(); err != nil && !s.cpbCorrupted {
		slog.Error("store: failed to load CPB after restoring SPT", "err", err)
	}
	return nil
}

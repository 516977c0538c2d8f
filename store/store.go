/*
 * rsu - Flash metadata store.
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

// Package store owns the on-flash metadata: it loads and reconciles
// the two copies of the sub-partition table and the configuration
// pointer block, mediates every metadata mutation through the
// write-both protocol, and provides partition relative data access.
//
// Both tables live twice in flash. On load the two copies are
// validated and byte compared; a single bad copy is restored from its
// twin, while disagreement or a double failure raises the sticky
// corruption flag for that table. While a flag is set all mutations
// touching the table are refused; only the restore and empty-CPB
// operations clear it.
package store

import (
	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/hal"
	"github.com/socfpga-tools/rsu/metadata"
)

// sptRegionEraseSize is the erase span used when restoring an SPT copy
// directly by device address.
const sptRegionEraseSize = 32 * 1024

// Sentinel errors the facade maps onto the public error codes.
var (
	// ErrCorruptedSPT reports that both SPT copies are unusable.
	ErrCorruptedSPT = errors.New("store: corrupted SPT")

	// ErrCorruptedCPB reports that both CPB copies are unusable.
	ErrCorruptedCPB = errors.New("store: corrupted CPB")

	// ErrBadSaveBlob reports a save blob failing its CRC or magic
	// check on restore.
	ErrBadSaveBlob = errors.New("store: saved data is corrupted")
)

// Store is the metadata database bound to one flash device.
type Store struct {
	flash hal.Flash
	mbox  hal.Mailbox

	// sptChecksum enables generation and verification of the table
	// checksum for SPT versions above metadata.SPTVersion.
	sptChecksum bool

	sptAddr hal.SPTAddresses

	// basePartOffset translates SPT partition offsets into device
	// offsets. It is zero when the device maps the whole flash and
	// the SPT0 offset when the device window starts at SPT0.
	basePartOffset uint64

	spt *metadata.SPT
	cpb *metadata.CPB

	cpb0Part int
	cpb1Part int

	sptCorrupted bool
	cpbCorrupted bool

	// cpbFixed records a user driven CPB recovery, which overrides
	// the firmware's corruption verdict on later loads.
	cpbFixed bool
}

// Open queries the firmware for the SPT locations and loads both
// metadata tables. A table whose both copies are bad leaves the
// corresponding corruption flag set without failing the open; any
// other load failure is returned.
func Open(flash hal.Flash, mbox hal.Mailbox, sptChecksum bool) (*Store, error) {
	s := &Store{
		flash:       flash,
		mbox:        mbox,
		sptChecksum: sptChecksum,
	}

	addr, err := mbox.SPTAddresses()
	if err != nil {
		return nil, errors.Wrap(err, "store: retrieving SPT addresses")
	}
	s.sptAddr = addr

	if err := s.loadSPT(); err != nil && !s.sptCorrupted {
		return nil, err
	}

	if s.sptCorrupted {
		s.cpbCorrupted = true
	} else if err := s.loadCPB(); err != nil && !s.cpbCorrupted {
		return nil, err
	}

	return s, nil
}

// SPTCorrupted reports the sticky SPT corruption flag.
func (s *Store) SPTCorrupted() bool {
	return s.sptCorrupted
}

// CPBCorrupted reports the sticky CPB corruption flag.
func (s *Store) CPBCorrupted() bool {
	return s.cpbCorrupted
}

func (s *Store) readDev(off int64, buf []byte) error {
	return s.flash.Read(off, buf)
}

func (s *Store) writeDev(off int64, buf []byte) error {
	return s.flash.Write(off, buf)
}

func (s *Store) eraseDev(off, length int64) error {
	return s.flash.Erase(off, length)
}

// partDevOffset translates a partition's flash offset into a device
// offset.
func (s *Store) partDevOffset(part int) (int64, error) {
	if part < 0 || part >= len(s.spt.Partitions) {
		return 0, errors.Errorf("store: invalid partition number %d", part)
	}
	offset := s.spt.Partitions[part].Offset
	if offset < s.basePartOffset {
		return 0, errors.Errorf("store: partition %d below the device window", part)
	}
	return int64(offset - s.basePartOffset), nil
}

func (s *Store) readPart(part int, off int64, buf []byte) error {
	devOff, err := s.partDevOffset(part)
	if err != nil {
		return err
	}
	if off < 0 || off+int64(len(buf)) > int64(s.spt.Partitions[part].Length) {
		return errors.Errorf("store: read outside partition %d", part)
	}
	return s.readDev(devOff+off, buf)
}

func (s *Store) writePart(part int, off int64, buf []byte) error {
	devOff, err := s.partDevOffset(part)
	if err != nil {
		return err
	}
	if off < 0 || off+int64(len(buf)) > int64(s.spt.Partitions[part].Length) {
		return errors.Errorf("store: write outside partition %d", part)
	}
	return s.writeDev(devOff+off, buf)
}

func (s *Store) erasePart(part int) error {
	devOff, err := s.partDevOffset(part)
	if err != nil {
		return err
	}
	return s.eraseDev(devOff, int64(s.spt.Partitions[part].Length))
}

// DataRead reads from a partition at a partition relative offset.
func (s *Store) DataRead(part int, off int64, buf []byte) error {
	return s.readPart(part, off, buf)
}

// DataWrite writes to a partition at a partition relative offset.
func (s *Store) DataWrite(part int, off int64, buf []byte) error {
	return s.writePart(part, off, buf)
}

// DataErase erases a whole partition.
func (s *Store) DataErase(part int) error {
	return s.erasePart(part)
}

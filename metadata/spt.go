/*
 * rsu - Sub-partition table codec.
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

// Package metadata parses and serializes the two 4 KiB on-flash
// metadata blocks: the sub-partition table (SPT) and the configuration
// pointer block (CPB). All scalars are little endian.
package metadata

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/util/bitswap"
)

// Sub-partition table layout.
const (
	// BlockSize is the size of each metadata block in flash.
	BlockSize = 4096

	// SPTMagic identifies a valid sub-partition table.
	SPTMagic = 0x57713427

	// SPTVersion is the highest table version without a checksum.
	SPTVersion = 1

	// MaxPartitions is the entry capacity of the table.
	MaxPartitions = 127

	// NameLength is the partition name field size, including the
	// terminating NUL.
	NameLength = 16

	// StampedMagic is the magic written first during the
	// write-then-stamp protocol. A crash mid-write leaves a copy
	// carrying it, which fails the magic check and is restored from
	// its twin at the next load.
	StampedMagic = 0xFFFFFFFF

	sptChecksumOffset = 0x0C
	sptEntriesOffset  = 0x20
	sptEntrySize      = 32
)

// Partition entry flags.
const (
	FlagReserved = 0x1
	FlagReadonly = 0x2
)

// ErrBadMagic reports a block whose magic number did not match.
var ErrBadMagic = errors.New("metadata: bad magic number")

// Partition is one sub-partition table entry.
type Partition struct {
	Name   string
	Offset uint64
	Length uint32
	Flags  uint32
}

// IsReserved reports the reserved flag bit.
func (p Partition) IsReserved() bool {
	return p.Flags&FlagReserved != 0
}

// IsReadonly reports the read-only flag bit.
func (p Partition) IsReadonly() bool {
	return p.Flags&FlagReadonly != 0
}

// SPT is a parsed sub-partition table.
type SPT struct {
	Version    uint32
	Checksum   uint32
	Partitions []Partition
}

// UnmarshalSPT parses a table block. Names without a terminating NUL
// are truncated at the last byte. Entry level validity is checked by
// Validate.
func UnmarshalSPT(block []byte) (*SPT, error) {
	if len(block) != BlockSize {
		return nil, errors.Errorf("metadata: SPT block is %d bytes, want %d", len(block), BlockSize)
	}
	if binary.LittleEndian.Uint32(block[0:4]) != SPTMagic {
		return nil, ErrBadMagic
	}

	count := binary.LittleEndian.Uint32(block[8:12])
	if count > MaxPartitions {
		return nil, errors.Errorf("metadata: SPT has %d partitions, max is %d", count, MaxPartitions)
	}

	spt := &SPT{
		Version:  binary.LittleEndian.Uint32(block[4:8]),
		Checksum: binary.LittleEndian.Uint32(block[sptChecksumOffset : sptChecksumOffset+4]),
	}

	for i := 0; i < int(count); i++ {
		entry := block[sptEntriesOffset+i*sptEntrySize:]
		name := entry[:NameLength]
		end := bytes.IndexByte(name, 0)
		if end < 0 {
			end = NameLength - 1
		}
		spt.Partitions = append(spt.Partitions, Partition{
			Name:   string(name[:end]),
			Offset: binary.LittleEndian.Uint64(entry[16:24]),
			Length: binary.LittleEndian.Uint32(entry[24:28]),
			Flags:  binary.LittleEndian.Uint32(entry[28:32]),
		})
	}

	return spt, nil
}

// Marshal serializes the table into a fresh block carrying the real
// magic number. Unused entries are left erased.
func (s *SPT) Marshal() []byte {
	block := make([]byte, BlockSize)

	binary.LittleEndian.PutUint32(block[0:4], SPTMagic)
	binary.LittleEndian.PutUint32(block[4:8], s.Version)
	binary.LittleEndian.PutUint32(block[8:12], uint32(len(s.Partitions)))
	binary.LittleEndian.PutUint32(block[sptChecksumOffset:], s.Checksum)

	for i, p := range s.Partitions {
		entry := block[sptEntriesOffset+i*sptEntrySize:]
		copy(entry[:NameLength-1], p.Name)
		binary.LittleEndian.PutUint64(entry[16:24], p.Offset)
		binary.LittleEndian.PutUint32(entry[24:28], p.Length)
		binary.LittleEndian.PutUint32(entry[28:32], p.Flags)
	}

	return block
}

// Validate checks the table invariants: entry count, unique names, no
// overlapping partitions, and the presence of the SPT0/SPT1/CPB0/CPB1
// entries.
func (s *SPT) Validate() error {
	if len(s.Partitions) > MaxPartitions {
		return errors.Errorf("metadata: SPT has %d partitions, max is %d",
			len(s.Partitions), MaxPartitions)
	}

	var spt0, spt1, cpb0, cpb1 bool
	for i, p := range s.Partitions {
		start := p.Offset
		end := p.Offset + uint64(p.Length)

		for j, q := range s.Partitions {
			if i == j {
				continue
			}
			if p.Name == q.Name {
				return errors.Errorf("metadata: partition name %q appears more than once", p.Name)
			}
			if start < q.Offset+uint64(q.Length) && end > q.Offset {
				return errors.Errorf("metadata: partitions %q and %q overlap", p.Name, q.Name)
			}
		}

		switch p.Name {
		case "SPT0":
			spt0 = true
		case "SPT1":
			spt1 = true
		case "CPB0":
			cpb0 = true
		case "CPB1":
			cpb1 = true
		}
	}

	if !spt0 || !spt1 || !cpb0 || !cpb1 {
		return errors.New("metadata: missing a critical entry in the SPT")
	}
	return nil
}

// FindPartition returns the index of the named partition, or -1.
func (s *SPT) FindPartition(name string) int {
	for i, p := range s.Partitions {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// SPTChecksum computes the table checksum over a serialized block:
// the checksum field is zeroed, every byte is bit reversed, and an
// IEEE CRC32 with initial value zero runs over the whole block.
func SPTChecksum(block []byte) uint32 {
	scratch := bitswap.Swapped(block)
	// The checksum field was bit reversed along with the rest;
	// zeroing it afterwards has the same effect.
	for i := sptChecksumOffset; i < sptChecksumOffset+4; i++ {
		scratch[i] = 0
	}
	return crc32.ChecksumIEEE(scratch)
}

// VerifySPTChecksum checks the stored checksum of a serialized block.
// The stored value is kept byte swapped in flash.
func VerifySPTChecksum(block []byte) error {
	stored := binary.LittleEndian.Uint32(block[sptChecksumOffset:])
	if bitswap.Endian32(stored) != SPTChecksum(block) {
		return errors.New("metadata: bad SPT checksum")
	}
	return nil
}

// StampSPTChecksum recomputes the checksum of a serialized block and
// stores it in place, byte swapped.
func StampSPTChecksum(block []byte) {
	binary.LittleEndian.PutUint32(block[sptChecksumOffset:], bitswap.Endian32(SPTChecksum(block)))
}

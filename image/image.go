/*
 * rsu - Bitstream block state machine.
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

// Package image processes application bitstreams in 4 KiB blocks.
//
// A bitstream is a recurrent structure composed of sections. The first
// block of a section is its descriptor; a first word of 0x62294895
// marks a CMF section, whose second block is a signature block. The
// last 256 bytes of a signature block hold up to four 64-bit pointers
// to other sections, protected together with the rest of the block by
// a 32-bit CRC computed over a bit-reversed view of the block.
//
// Blocks are processed either for updating before writing to flash
// (relocating the section pointers of non-absolute images to the
// destination slot) or for comparison with verification data read
// back from flash.
package image

import (
	"encoding/binary"
	"hash/crc32"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/util/bitswap"
)

const (
	// BlockSize is the bitstream block size.
	BlockSize = 4096

	// CMFMagic is the first word of a CMF section descriptor.
	CMFMagic = 0x62294895

	sigBlockPtrOffs = 0x0F00 // Signature block pointer area.
	sigBlockCRCOffs = 0x0FFC // Signature block CRC.

	// The four section pointers follow two reserved words.
	ptrsOffs = sigBlockPtrOffs + 8
	numPtrs  = 4

	maxSections = 64
)

type blockType int

const (
	sectionBlock blockType = iota
	signatureBlock
	regularBlock
)

// ErrCompare reports a difference between the expected and the
// verification block.
var ErrCompare = errors.New("image: verification data differs")

// Slot describes the destination slot of the bitstream.
type Slot struct {
	Offset uint64 // Flash offset of the slot.
	Size   int64  // Slot size in bytes.
}

// State tracks bitstream parsing across blocks, both when relocating
// an image into flash and when verifying one already stored there.
type State struct {
	offset    int64
	blockType blockType
	sections  []uint64
	absolute  bool
}

// NewState returns a state machine positioned before the first block.
func NewState() *State {
	return &State{
		offset:    -BlockSize,
		blockType: regularBlock,
		sections:  []uint64{0},
	}
}

// Absolute reports whether the image was identified as absolute.
func (st *State) Absolute() bool {
	return st.absolute
}

func (st *State) findSection(section uint64) bool {
	for _, s := range st.sections {
		if s == section {
			return true
		}
	}
	return false
}

func (st *State) addSection(section uint64) {
	if st.findSection(section) {
		return
	}
	if len(st.sections) >= maxSections {
		slog.Warn("image: section table full, pointer ignored",
			"section", section)
		return
	}
	st.sections = append(st.sections, section)
}

func blockPtr(block []byte, i int) uint64 {
	return binary.LittleEndian.Uint64(block[ptrsOffs+8*i:])
}

func setBlockPtr(block []byte, i int, value uint64) {
	binary.LittleEndian.PutUint64(block[ptrsOffs+8*i:], value)
}

// sigBlockCRC computes the CRC of a signature block: all bytes are
// bit reversed, then an IEEE CRC32 with initial value zero covers
// everything before the CRC field. The stored value lives byte
// swapped inside the bit-reversed view.
func sigBlockCRC(block []byte) (calc, stored uint32) {
	scratch := bitswap.Swapped(block)
	calc = crc32.ChecksumIEEE(scratch[:sigBlockCRCOffs])
	stored = bitswap.Endian32(binary.LittleEndian.Uint32(scratch[sigBlockCRCOffs:]))
	return calc, stored
}

// StampSignatureCRC recomputes a signature block's CRC and stores it
// in place. Image build tooling uses it when assembling bitstreams.
func StampSignatureCRC(block []byte) {
	stampSigBlockCRC(block)
}

// stampSigBlockCRC recomputes the CRC and stores it in block.
func stampSigBlockCRC(block []byte) {
	scratch := bitswap.Swapped(block)
	calc := crc32.ChecksumIEEE(scratch[:sigBlockCRCOffs])
	binary.LittleEndian.PutUint32(scratch[sigBlockCRCOffs:], bitswap.Endian32(calc))
	copy(block[sigBlockCRCOffs:], bitswap.Swapped(scratch[sigBlockCRCOffs:]))
}

// sigBlockProcess decides whether the image is absolute and collects
// the section pointers. The absolute decision is only taken on the
// second block of the image, which is always a signature block.
func (st *State) sigBlockProcess(block []byte, slot Slot) {
	if st.offset == BlockSize {
		for i := 0; i < numPtrs; i++ {
			if blockPtr(block, i) > uint64(slot.Size) {
				st.absolute = true
				slog.Info("image: identified absolute image")
				break
			}
		}
	}

	for i := 0; i < numPtrs; i++ {
		ptr := blockPtr(block, i)
		if ptr == 0 {
			continue
		}
		if st.absolute {
			st.addSection(ptr - slot.Offset)
		} else {
			st.addSection(ptr)
		}
	}
}

// sigBlockAdjust checks the section pointers and, for non-absolute
// images, relocates them to the destination slot and recomputes the
// CRC in place.
func (st *State) sigBlockAdjust(block []byte, slot Slot) error {
	calc, stored := sigBlockCRC(block)
	if calc != stored {
		return errors.Errorf("image: bad signature block CRC32, calc %08X stored %08X", calc, stored)
	}

	for i := 0; i < numPtrs; i++ {
		ptr := int64(blockPtr(block, i))
		if ptr == 0 {
			continue
		}
		if st.absolute {
			ptr -= int64(slot.Offset)
		}
		if ptr > slot.Size {
			return errors.Errorf("image: section pointer 0x%X not within the slot", blockPtr(block, i))
		}
	}

	// Absolute images are written verbatim.
	if st.absolute {
		return nil
	}

	for i := 0; i < numPtrs; i++ {
		if ptr := blockPtr(block, i); ptr != 0 {
			setBlockPtr(block, i, ptr+slot.Offset)
			slog.Debug("image: adjusting section pointer",
				"from", ptr, "to", ptr+slot.Offset)
		}
	}
	stampSigBlockCRC(block)

	return nil
}

// sigBlockCompare builds the flash form of a user signature block and
// compares it against the verification block.
func (st *State) sigBlockCompare(block, vblock []byte, slot Slot) error {
	expect := make([]byte, BlockSize)
	copy(expect, block)

	if !st.absolute {
		for i := 0; i < numPtrs; i++ {
			if ptr := blockPtr(expect, i); ptr != 0 {
				setBlockPtr(expect, i, ptr+slot.Offset)
			}
		}
		stampSigBlockCRC(expect)
	}

	return st.blockCompare(expect, vblock)
}

func (st *State) blockCompare(block, vblock []byte) error {
	for i := range block {
		if vblock[i] != block[i] {
			slog.Error("image: verify mismatch",
				"offset", st.offset+int64(i), "expect", block[i], "got", vblock[i])
			return ErrCompare
		}
	}
	return nil
}

// Process handles the next 4 KiB block. With a nil vblock the block is
// prepared for programming and may be modified in place; otherwise it
// is compared against the verification block read from flash.
func (st *State) Process(block, vblock []byte, slot Slot) error {
	st.offset += BlockSize

	if st.findSection(uint64(st.offset)) {
		st.blockType = sectionBlock
	}

	switch st.blockType {
	case sectionBlock:
		if binary.LittleEndian.Uint32(block[0:4]) == CMFMagic {
			slog.Debug("image: found CMF section", "offset", st.offset)
			st.blockType = signatureBlock
		} else {
			st.blockType = regularBlock
		}

		if vblock != nil {
			return st.blockCompare(block, vblock)
		}

	case signatureBlock:
		slog.Debug("image: found signature block", "offset", st.offset)

		st.sigBlockProcess(block, slot)
		st.blockType = regularBlock

		if vblock != nil {
			return st.sigBlockCompare(block, vblock, slot)
		}
		return st.sigBlockAdjust(block, slot)

	case regularBlock:
	}

	if vblock != nil {
		return st.blockCompare(block, vblock)
	}
	return nil
}

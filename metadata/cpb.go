/*
 * rsu - Configuration pointer block codec.
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
	"encoding/binary"

	"github.com/pkg/errors"
)

// Configuration pointer block layout.
const (
	// CPBMagic identifies a valid configuration pointer block.
	CPBMagic = 0x57789609

	// CPBHeaderSize is the fixed header length.
	CPBHeaderSize = 24

	// CPBImagePtrOffset is where the slot pointer array starts.
	CPBImagePtrOffset = 32

	// CPBImagePtrSlots is the slot pointer array capacity.
	CPBImagePtrSlots = 508
)

// Slot pointer sentinel values.
const (
	// Erased marks a never used slot.
	Erased = ^uint64(0)

	// Spent marks a formerly used, now invalid slot.
	Spent = uint64(0)
)

// CPB is a configuration pointer block. The raw block bytes are kept
// so a restored or loaded block writes back bit exact.
type CPB struct {
	data [BlockSize]byte
}

// UnmarshalCPB parses a pointer block, checking the magic number and
// the header geometry.
func UnmarshalCPB(block []byte) (*CPB, error) {
	if len(block) != BlockSize {
		return nil, errors.Errorf("metadata: CPB block is %d bytes, want %d", len(block), BlockSize)
	}
	if binary.LittleEndian.Uint32(block[0:4]) != CPBMagic {
		return nil, ErrBadMagic
	}

	c := &CPB{}
	copy(c.data[:], block)

	if c.HeaderSize() < CPBHeaderSize {
		return nil, errors.Errorf("metadata: CPB header size %d below minimum %d",
			c.HeaderSize(), CPBHeaderSize)
	}
	offset := uint64(c.ImagePtrOffset())
	slots := uint64(c.ImagePtrSlots())
	if offset+8*slots > BlockSize {
		return nil, errors.Errorf("metadata: CPB pointer array [%d, +8*%d) outside block", offset, slots)
	}

	return c, nil
}

// NewEmptyCPB builds a pointer block with only the header populated
// and every slot erased.
func NewEmptyCPB() *CPB {
	c := &CPB{}
	for i := range c.data {
		c.data[i] = 0xFF
	}
	binary.LittleEndian.PutUint32(c.data[0:4], CPBMagic)
	binary.LittleEndian.PutUint32(c.data[4:8], CPBHeaderSize)
	binary.LittleEndian.PutUint32(c.data[8:12], BlockSize)
	binary.LittleEndian.PutUint32(c.data[12:16], 0)
	binary.LittleEndian.PutUint32(c.data[16:20], CPBImagePtrOffset)
	binary.LittleEndian.PutUint32(c.data[20:24], CPBImagePtrSlots)
	return c
}

// Marshal returns a copy of the block carrying the real magic number.
func (c *CPB) Marshal() []byte {
	block := make([]byte, BlockSize)
	copy(block, c.data[:])
	binary.LittleEndian.PutUint32(block[0:4], CPBMagic)
	return block
}

// HeaderSize returns the header length field.
func (c *CPB) HeaderSize() uint32 {
	return binary.LittleEndian.Uint32(c.data[4:8])
}

// ImagePtrOffset returns the slot pointer array offset.
func (c *CPB) ImagePtrOffset() uint32 {
	return binary.LittleEndian.Uint32(c.data[16:20])
}

// ImagePtrSlots returns the slot pointer array capacity.
func (c *CPB) ImagePtrSlots() int {
	return int(binary.LittleEndian.Uint32(c.data[20:24]))
}

// Slot returns the pointer stored in slot i.
func (c *CPB) Slot(i int) uint64 {
	off := int(c.ImagePtrOffset()) + 8*i
	return binary.LittleEndian.Uint64(c.data[off : off+8])
}

// SetSlot stores a pointer in slot i.
func (c *CPB) SetSlot(i int, value uint64) {
	off := int(c.ImagePtrOffset()) + 8*i
	binary.LittleEndian.PutUint64(c.data[off:off+8], value)
}

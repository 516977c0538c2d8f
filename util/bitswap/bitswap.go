/*
 * rsu - Bit and byte order helpers.
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

// Package bitswap provides the byte-wise bit reversal and 32-bit byte
// order swap used by the signature block and table checksum formats.
package bitswap

import "math/bits"

// Swap reverses the bits of every byte of b in place.
func Swap(b []byte) {
	for i, v := range b {
		b[i] = bits.Reverse8(v)
	}
}

// Swapped returns a copy of src with the bits of every byte reversed.
// The input is left untouched, which matters when the same block is
// also headed for the flash device.
func Swapped(src []byte) []byte {
	dst := make([]byte, len(src))
	for i, v := range src {
		dst[i] = bits.Reverse8(v)
	}
	return dst
}

// Endian32 swaps the byte order of a 32-bit value.
func Endian32(v uint32) uint32 {
	return bits.ReverseBytes32(v)
}

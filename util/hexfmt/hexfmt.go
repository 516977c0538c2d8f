/*
 * rsu - Convert hex to strings.
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

package hexfmt

import (
	"io"
	"strings"
)

var hexMap = "0123456789ABCDEF"

func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

func FormatBytes(str *strings.Builder, space bool, data []uint8) {
	for _, by := range data {
		str.WriteByte(hexMap[(by>>4)&0xf])
		str.WriteByte(hexMap[by&0xf])
		if space {
			str.WriteByte(' ')
		}
	}
}

func FormatWord(str *strings.Builder, word uint32) {
	shift := 28
	for range 8 {
		str.WriteByte(hexMap[(word>>shift)&0xf])
		shift -= 4
	}
}

func FormatOffset(str *strings.Builder, offset int64) {
	shift := 28
	for range 8 {
		str.WriteByte(hexMap[(offset>>shift)&0xf])
		shift -= 4
	}
}

// Dump writes data as a classic 16 bytes per line hex dump with an
// ASCII column, offsets starting at base.
func Dump(w io.Writer, base int64, data []byte) error {
	var str strings.Builder

	for pos := 0; pos < len(data); pos += 16 {
		str.Reset()
		FormatOffset(&str, base+int64(pos))
		str.WriteByte(':')
		str.WriteByte(' ')

		end := pos + 16
		if end > len(data) {
			end = len(data)
		}
		line := data[pos:end]
		FormatBytes(&str, true, line)
		for range 16 - len(line) {
			str.WriteString("   ")
		}

		str.WriteByte(' ')
		for _, by := range line {
			if by < 0x20 || by > 0x7e {
				by = '.'
			}
			str.WriteByte(by)
		}
		str.WriteByte('\n')

		if _, err := io.WriteString(w, str.String()); err != nil {
			return err
		}
	}
	return nil
}

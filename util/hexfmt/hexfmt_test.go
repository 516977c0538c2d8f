/*
 * rsu - Hex formatting test cases.
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
	"strings"
	"testing"
)

func TestFormatByte(t *testing.T) {
	var str strings.Builder
	FormatByte(&str, 0xA5)
	if str.String() != "A5" {
		t.Errorf("got %q", str.String())
	}
}

func TestFormatWord(t *testing.T) {
	var str strings.Builder
	FormatWord(&str, 0xDEADBEEF)
	if str.String() != "DEADBEEF" {
		t.Errorf("got %q", str.String())
	}
}

func TestDump(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(0x41 + i)
	}

	var out strings.Builder
	if err := Dump(&out, 0x100000, data); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "00100000: 41 42 43") {
		t.Errorf("first line %q", lines[0])
	}
	if !strings.Contains(lines[0], "ABCDEFGHIJKLMNOP") {
		t.Errorf("ASCII column missing in %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "00100010:") {
		t.Errorf("second line %q", lines[1])
	}
}

/*
 * rsu - In-memory flash device.
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

// Package memflash implements an in-memory flash device with erase
// block semantics. It is the substrate for tests and for platforms
// that stage the image store in RAM.
package memflash

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/hal"
)

// EraseSize is the simulated erase block.
const EraseSize = 4096

// Device is an in-memory hal.Flash.
type Device struct {
	mu   sync.Mutex
	data []byte
}

var _ hal.Flash = (*Device)(nil)

// New returns a device of the given size, fully erased.
func New(size int64) *Device {
	data := make([]byte, size)
	for i := range data {
		data[i] = 0xFF
	}
	return &Device{data: data}
}

// Size returns the device size in bytes.
func (d *Device) Size() int64 {
	return int64(len(d.data))
}

func (d *Device) check(off int64, length int) error {
	if off < 0 || off+int64(length) > int64(len(d.data)) {
		return errors.Errorf("memflash: access [0x%X, 0x%X) outside device of size 0x%X",
			off, off+int64(length), len(d.data))
	}
	return nil
}

func (d *Device) Read(off int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(off, len(buf)); err != nil {
		return err
	}
	copy(buf, d.data[off:])
	return nil
}

func (d *Device) Write(off int64, buf []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.check(off, len(buf)); err != nil {
		return err
	}
	copy(d.data[off:], buf)
	return nil
}

func (d *Device) Erase(off, length int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if off%EraseSize != 0 || length%EraseSize != 0 {
		return errors.Errorf("memflash: erase [0x%X, +0x%X) not erase block aligned", off, length)
	}
	if err := d.check(off, int(length)); err != nil {
		return err
	}
	for i := off; i < off+length; i++ {
		d.data[i] = 0xFF
	}
	return nil
}

func (d *Device) Terminate() error {
	return nil
}

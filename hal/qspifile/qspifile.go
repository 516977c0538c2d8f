/*
 * rsu - File backed flash device.
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

// Package qspifile implements hal.Flash over a plain file or an mtd
// character device node. Erase is modeled by programming 0xFF.
package qspifile

import (
	"os"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/hal"
)

// EraseSize is the erase block presented to the library.
const EraseSize = 4096

// Device is a file backed hal.Flash.
type Device struct {
	file *os.File
	size int64
}

var _ hal.Flash = (*Device)(nil)

// Open opens the device node or image file read-write.
func Open(path string) (*Device, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "qspifile: unable to open %q", path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrapf(err, "qspifile: unable to stat %q", path)
	}

	return &Device{file: file, size: info.Size()}, nil
}

// Size returns the device size in bytes.
func (d *Device) Size() int64 {
	return d.size
}

func (d *Device) check(off int64, length int) error {
	if off < 0 || off+int64(length) > d.size {
		return errors.Errorf("qspifile: access [0x%X, 0x%X) outside device of size 0x%X",
			off, off+int64(length), d.size)
	}
	return nil
}

func (d *Device) Read(off int64, buf []byte) error {
	if err := d.check(off, len(buf)); err != nil {
		return err
	}
	_, err := d.file.ReadAt(buf, off)
	return errors.Wrap(err, "qspifile: read failed")
}

func (d *Device) Write(off int64, buf []byte) error {
	if err := d.check(off, len(buf)); err != nil {
		return err
	}
	_, err := d.file.WriteAt(buf, off)
	return errors.Wrap(err, "qspifile: write failed")
}

func (d *Device) Erase(off, length int64) error {
	if off%EraseSize != 0 || length%EraseSize != 0 {
		return errors.Errorf("qspifile: erase [0x%X, +0x%X) not erase block aligned", off, length)
	}
	if err := d.check(off, int(length)); err != nil {
		return err
	}

	fill := make([]byte, EraseSize)
	for i := range fill {
		fill[i] = 0xFF
	}
	for pos := off; pos < off+length; pos += EraseSize {
		if _, err := d.file.WriteAt(fill, pos); err != nil {
			return errors.Wrap(err, "qspifile: erase failed")
		}
	}
	return nil
}

func (d *Device) Terminate() error {
	return d.file.Close()
}

/*
 * rsu - Mailbox and misc firmware access through device attributes.
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

// Package sysfsmbox implements hal.Mailbox and hal.Misc over a
// directory of device attribute files, as exported by the platform
// RSU driver. Each attribute is a single numeric value; writes to
// "notify" and "reboot_image" reach the manager firmware.
package sysfsmbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/socfpga-tools/rsu/hal"
)

// maxRetryLimit is the highest max_retry value the platform accepts.
const maxRetryLimit = 16

// Mailbox reads and writes the firmware mailbox attributes.
type Mailbox struct {
	dir string
}

var _ hal.Mailbox = (*Mailbox)(nil)

// New binds a mailbox to the attribute directory.
func New(dir string) (*Mailbox, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "sysfsmbox: unable to access %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("sysfsmbox: %q is not a directory", dir)
	}
	return &Mailbox{dir: dir}, nil
}

func readAttr(dir, name string) (uint64, error) {
	raw, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return 0, errors.Wrapf(err, "sysfsmbox: reading attribute %q", name)
	}

	text := strings.TrimSpace(string(raw))
	value, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "sysfsmbox: attribute %q is not a number", name)
	}
	return value, nil
}

func writeAttr(dir, name string, value uint64) error {
	text := fmt.Sprintf("0x%x", value)
	err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644)
	return errors.Wrapf(err, "sysfsmbox: writing attribute %q", name)
}

func (m *Mailbox) Status() (hal.StatusInfo, error) {
	var info hal.StatusInfo
	fields := []struct {
		name string
		dst  *uint64
	}{
		{"version", &info.Version},
		{"state", &info.State},
		{"current_image", &info.CurrentImage},
		{"fail_image", &info.FailImage},
		{"error_location", &info.ErrorLocation},
		{"error_details", &info.ErrorDetails},
		{"retry_counter", &info.RetryCounter},
	}
	for _, f := range fields {
		value, err := readAttr(m.dir, f.name)
		if err != nil {
			return hal.StatusInfo{}, err
		}
		*f.dst = value
	}
	return info, nil
}

func (m *Mailbox) SendUpdate(addr uint64) error {
	return writeAttr(m.dir, "reboot_image", addr)
}

func (m *Mailbox) SPTAddresses() (hal.SPTAddresses, error) {
	spt0, err := readAttr(m.dir, "spt0_address")
	if err != nil {
		return hal.SPTAddresses{}, err
	}
	spt1, err := readAttr(m.dir, "spt1_address")
	if err != nil {
		return hal.SPTAddresses{}, err
	}
	return hal.SPTAddresses{SPT0: spt0, SPT1: spt1}, nil
}

func (m *Mailbox) Notify(value uint32) error {
	return writeAttr(m.dir, "notify", uint64(value))
}

func (m *Mailbox) Terminate() error {
	return nil
}

// Misc reads the decision firmware attributes.
type Misc struct {
	dir string
}

var _ hal.Misc = (*Misc)(nil)

// NewMisc binds the misc accessors to the attribute directory.
func NewMisc(dir string) (*Misc, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "sysfsmbox: unable to access %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("sysfsmbox: %q is not a directory", dir)
	}
	return &Misc{dir: dir}, nil
}

func (m *Misc) DCMFStatus() (hal.DCMFStatus, error) {
	var status hal.DCMFStatus
	for i := range status {
		value, err := readAttr(m.dir, fmt.Sprintf("dcmf%d_status", i))
		if err != nil {
			return hal.DCMFStatus{}, err
		}
		status[i] = int32(value)
	}
	return status, nil
}

func (m *Misc) DCMFVersions() (hal.DCMFVersions, error) {
	var versions hal.DCMFVersions
	for i := range versions {
		value, err := readAttr(m.dir, fmt.Sprintf("dcmf%d", i))
		if err != nil {
			return hal.DCMFVersions{}, err
		}
		versions[i] = uint32(value)
	}
	return versions, nil
}

func (m *Misc) MaxRetryCount() (uint8, error) {
	value, err := readAttr(m.dir, "max_retry")
	if err != nil {
		return 0, err
	}
	if value > maxRetryLimit {
		return 0, errors.Errorf("sysfsmbox: max_retry %d above platform limit %d", value, maxRetryLimit)
	}
	return uint8(value), nil
}

func (m *Misc) Terminate() error {
	return nil
}

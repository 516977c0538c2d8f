/*
 * rsu - Platform collaborator interfaces.
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

// Package hal declares the platform collaborators the library is bound
// to at session open: the QSPI flash, the firmware mailbox and the
// misc firmware accessors. Implementations for common platforms live
// in the subpackages; anything satisfying these interfaces can be
// substituted.
package hal

// Firmware state words reported through the mailbox status query.
const (
	StateDCIOCorrupted     = 0xF004D00F // Decision firmware I/O section corrupted.
	StateCPB0Corrupted     = 0xF004D010 // CPB0 corrupted, CPB1 fine.
	StateCPB0CPB1Corrupted = 0xF004D011 // Both CPB copies corrupted.
)

// StatusInfo is the firmware status log.
type StatusInfo struct {
	Version       uint64 // Reporting firmware version.
	State         uint64 // State of the RSU system.
	CurrentImage  uint64 // Address of the currently running image.
	FailImage     uint64 // Address of the latest image to fail.
	ErrorLocation uint64 // Error location within the failing image.
	ErrorDetails  uint64 // Firmware specific error details.
	RetryCounter  uint64 // Current image retry counter.
}

// ACMFVersion extracts the ACMF version field of the status word.
func (s StatusInfo) ACMFVersion() uint8 {
	return uint8((s.Version >> 8) & 0xFF)
}

// DCMFVersion extracts the DCMF version field of the status word.
func (s StatusInfo) DCMFVersion() uint8 {
	return uint8(s.Version & 0xFF)
}

// ErrorSource extracts the error source field of the status word.
func (s StatusInfo) ErrorSource() uint16 {
	return uint16((s.Version >> 16) & 0x0FFF)
}

// SPTAddresses holds the flash locations of the two sub-partition
// table copies, as reported by the firmware.
type SPTAddresses struct {
	SPT0 uint64
	SPT1 uint64
}

// DCMFVersions holds the version of each of the four decision
// firmware copies.
type DCMFVersions [4]uint32

// DCMFStatus holds the corruption status of each of the four decision
// firmware copies. Zero means the copy is fine.
type DCMFStatus [4]int32

// Flash is the byte addressed QSPI device holding the image store.
// Offsets are device relative.
type Flash interface {
	// Read fills buf from the device starting at off.
	Read(off int64, buf []byte) error
	// Write programs buf at off. Only 1->0 bit transitions are
	// guaranteed without a prior erase.
	Write(off int64, buf []byte) error
	// Erase resets the given range to 0xFF. Offset and length must
	// be multiples of the device erase block.
	Erase(off, length int64) error
	// Terminate releases the device.
	Terminate() error
}

// Mailbox is the out-of-band transport to the platform manager
// firmware.
type Mailbox interface {
	// Status queries the firmware status log.
	Status() (StatusInfo, error)
	// SendUpdate hands the firmware the flash address to boot from
	// after the next reboot.
	SendUpdate(addr uint64) error
	// SPTAddresses reports where the firmware expects the two SPT
	// copies.
	SPTAddresses() (SPTAddresses, error)
	// Notify sends an application notify word to the firmware.
	Notify(value uint32) error
	// Terminate releases the transport.
	Terminate() error
}

// Misc exposes the remaining firmware accessors.
type Misc interface {
	// DCMFStatus reports the corruption status of the decision
	// firmware copies.
	DCMFStatus() (DCMFStatus, error)
	// DCMFVersions reports the decision firmware versions.
	DCMFVersions() (DCMFVersions, error)
	// MaxRetryCount reports the configured maximum retry parameter.
	MaxRetryCount() (uint8, error)
	// Terminate releases the accessors.
	Terminate() error
}

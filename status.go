/*
 * rsu - Firmware status and notify operations.
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

package rsu

import (
	"log/slog"

	"github.com/socfpga-tools/rsu/hal"
	"github.com/socfpga-tools/rsu/metadata"
)

// Notify word layout.
const (
	notifyResetRetryCounter = 1 << 16
	notifyClearErrorStatus  = 1 << 17
	notifyIgnoreStage       = 1 << 18
	notifyValueMask         = 0xFFFF
)

// Notify sends the low 16 bits of value to the firmware.
func (s *Session) Notify(value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.mbox.Notify(uint32(value) & notifyValueMask); err != nil {
		slog.Error("rsu: notify failed", "err", err)
		return ErrFileIO
	}
	return nil
}

func (s *Session) statusLog() (hal.StatusInfo, error) {
	info, err := s.mbox.Status()
	if err != nil {
		slog.Error("rsu: status query failed", "err", err)
		return hal.StatusInfo{}, ErrFileIO
	}

	// The retry counter is only reported by firmware carrying both
	// version fields.
	if info.ACMFVersion() == 0 || info.DCMFVersion() == 0 {
		info.RetryCounter = 0
	}
	return info, nil
}

// StatusLog queries the firmware status log.
func (s *Session) StatusLog() (hal.StatusInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return hal.StatusInfo{}, err
	}
	return s.statusLog()
}

// ClearErrorStatus asks the firmware to clear its error status.
func (s *Session) ClearErrorStatus() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}

	info, err := s.statusLog()
	if err != nil {
		return err
	}
	if info.ACMFVersion() == 0 {
		return ErrFileIO
	}

	if err := s.mbox.Notify(notifyIgnoreStage | notifyClearErrorStatus); err != nil {
		slog.Error("rsu: notify failed", "err", err)
		return ErrFileIO
	}
	return nil
}

// ResetRetryCounter asks the firmware to reset the image retry
// counter.
func (s *Session) ResetRetryCounter() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}

	info, err := s.statusLog()
	if err != nil {
		return err
	}
	if info.ACMFVersion() == 0 || info.DCMFVersion() == 0 {
		return ErrFileIO
	}

	if err := s.mbox.Notify(notifyIgnoreStage | notifyResetRetryCounter); err != nil {
		slog.Error("rsu: notify failed", "err", err)
		return ErrFileIO
	}
	return nil
}

// RunningFactory reports whether the currently running image is the
// factory image.
func (s *Session) RunningFactory() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return false, err
	}
	if err := s.checkSPT(); err != nil {
		return false, err
	}

	factoryOffset, err := s.st.FactoryOffset()
	if err != nil {
		return false, ErrLowLevel
	}

	info, err := s.mbox.Status()
	if err != nil {
		return false, ErrFileIO
	}

	slog.Info("rsu: factory image check",
		"factory", factoryOffset, "current", info.CurrentImage)
	return factoryOffset == info.CurrentImage, nil
}

// SlotLoadAfterReboot requests the slot's image as the boot target of
// the next reboot.
func (s *Session) SlotLoadAfterReboot(slot int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	offset, err := s.st.PartitionOffset(part)
	if err != nil {
		slog.Error("rsu: error in getting the partition offset", "err", err)
		return ErrSlotNum
	}

	if err := s.mbox.SendUpdate(offset); err != nil {
		return ErrFileIO
	}
	return nil
}

// SlotLoadFactoryAfterReboot requests the factory image as the boot
// target of the next reboot.
func (s *Session) SlotLoadFactoryAfterReboot() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}

	offset, err := s.st.FactoryOffset()
	if err != nil {
		slog.Error("rsu: no FACTORY_IMAGE partition defined")
		return ErrFormat
	}

	if err := s.mbox.SendUpdate(offset); err != nil {
		return ErrFileIO
	}
	return nil
}

// DCMFVersions retrieves the version of each of the four decision
// firmware copies in flash.
func (s *Session) DCMFVersions() (hal.DCMFVersions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return hal.DCMFVersions{}, err
	}

	versions, err := s.misc.DCMFVersions()
	if err != nil {
		slog.Error("rsu: error while getting DCMF versions", "err", err)
		return hal.DCMFVersions{}, ErrFileIO
	}
	return versions, nil
}

// DCMFStatus reports which decision firmware copies are corrupted in
// flash; zero means the copy is fine.
func (s *Session) DCMFStatus() (hal.DCMFStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return hal.DCMFStatus{}, err
	}

	status, err := s.misc.DCMFStatus()
	if err != nil {
		slog.Error("rsu: error while getting DCMF status", "err", err)
		return hal.DCMFStatus{}, ErrFileIO
	}
	return status, nil
}

// MaxRetry retrieves the max_retry parameter from flash.
func (s *Session) MaxRetry() (uint8, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return 0, err
	}

	value, err := s.misc.MaxRetryCount()
	if err != nil {
		slog.Error("rsu: error while getting max retry", "err", err)
		return 0, ErrFileIO
	}
	return value, nil
}

// FactoryImageName is re-exported for callers resolving the factory
// partition by name.
const FactoryImageName = metadata.FactoryImageName

/*
 * rsu - Metadata backup and restore.
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
	"errors"
	"log/slog"
	"os"

	"github.com/socfpga-tools/rsu/store"
)

// The save format for both tables is the 4096 byte block followed by
// its CRC32. Restores recompute and compare before touching flash.

// SaveSPTToBuf returns the sub-partition table as a save blob.
func (s *Session) SaveSPTToBuf() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if err := s.checkSPT(); err != nil {
		return nil, err
	}

	blob, err := s.st.SaveSPT()
	if err != nil {
		slog.Error("rsu: failed to save SPT", "err", err)
		return nil, ErrLowLevel
	}
	return blob, nil
}

// RestoreSPTFromBuf rewrites both table copies from a save blob and
// clears the SPT corruption flag.
func (s *Session) RestoreSPTFromBuf(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return ErrArgs
	}

	if err := s.st.RestoreSPT(blob); err != nil {
		slog.Error("rsu: failed to restore SPT", "err", err)
		if errors.Is(err, store.ErrBadSaveBlob) {
			return ErrCorruptedSPT
		}
		return ErrLowLevel
	}
	return nil
}

// SaveSPT writes the sub-partition table save blob to a file.
func (s *Session) SaveSPT(filename string) error {
	if filename == "" {
		return ErrArgs
	}

	blob, err := s.SaveSPTToBuf()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, blob, 0o644); err != nil {
		slog.Error("rsu: failed to write SPT file", "file", filename, "err", err)
		return ErrFileIO
	}
	return nil
}

// RestoreSPT rewrites both table copies from a save file.
func (s *Session) RestoreSPT(filename string) error {
	if filename == "" {
		return ErrArgs
	}

	blob, err := os.ReadFile(filename)
	if err != nil {
		slog.Error("rsu: failed to open file for restoring SPT", "file", filename, "err", err)
		return ErrFileIO
	}
	return s.RestoreSPTFromBuf(blob)
}

// SaveCPBToBuf returns the configuration pointer block as a save
// blob.
func (s *Session) SaveCPBToBuf() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if err := s.checkCPB(); err != nil {
		return nil, err
	}

	blob, err := s.st.SaveCPB()
	if err != nil {
		slog.Error("rsu: failed to save CPB", "err", err)
		return nil, ErrLowLevel
	}
	return blob, nil
}

// RestoreCPBFromBuf rewrites both pointer block copies from a save
// blob and clears the CPB corruption flag.
func (s *Session) RestoreCPBFromBuf(blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if len(blob) == 0 {
		return ErrArgs
	}

	if err := s.st.RestoreCPB(blob); err != nil {
		slog.Error("rsu: failed to restore CPB", "err", err)
		switch {
		case errors.Is(err, store.ErrBadSaveBlob):
			return ErrCorruptedCPB
		case errors.Is(err, store.ErrCorruptedSPT):
			return ErrCorruptedSPT
		}
		return ErrLowLevel
	}
	return nil
}

// SaveCPB writes the configuration pointer block save blob to a file.
func (s *Session) SaveCPB(filename string) error {
	if filename == "" {
		return ErrArgs
	}

	blob, err := s.SaveCPBToBuf()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filename, blob, 0o644); err != nil {
		slog.Error("rsu: failed to write CPB file", "file", filename, "err", err)
		return ErrFileIO
	}
	return nil
}

// RestoreCPB rewrites both pointer block copies from a save file.
func (s *Session) RestoreCPB(filename string) error {
	if filename == "" {
		return ErrArgs
	}

	blob, err := os.ReadFile(filename)
	if err != nil {
		slog.Error("rsu: failed to open file for restoring CPB", "file", filename, "err", err)
		return ErrFileIO
	}
	return s.RestoreCPBFromBuf(blob)
}

// CreateEmptyCPB rebuilds the configuration pointer block with only
// its header, dropping every priority assignment, and clears the CPB
// corruption flag.
func (s *Session) CreateEmptyCPB() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}

	if err := s.st.EmptyCPB(); err != nil {
		slog.Error("rsu: failed to create empty CPB", "err", err)
		if errors.Is(err, store.ErrCorruptedSPT) {
			return ErrCorruptedSPT
		}
		return ErrLowLevel
	}
	return nil
}

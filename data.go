/*
 * rsu - Slot data operations.
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
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/socfpga-tools/rsu/image"
)

// DataCallback pulls bitstream data: it fills buf and returns the
// number of bytes produced, zero at end of stream, or an error.
type DataCallback func(buf []byte) (int, error)

// errCallbackFailed marks a failure coming out of a user callback so
// the data loop can map it to the right public code.
var errCallbackFailed = errors.New("rsu: data callback failed")

// callbackReader adapts a DataCallback to io.Reader.
type callbackReader struct {
	cb DataCallback
}

func (r callbackReader) Read(buf []byte) (int, error) {
	n, err := r.cb(buf)
	if err != nil {
		return 0, errCallbackFailed
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// readBlock accumulates reads until the block is full or the stream
// ends. It returns the number of bytes gathered.
func readBlock(r io.Reader, block []byte) (int, error) {
	cnt := 0
	for cnt < len(block) {
		n, err := r.Read(block[cnt:])
		cnt += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return cnt, err
		}
		if n == 0 {
			break
		}
	}
	return cnt, nil
}

// programCommon streams 4 KiB blocks from r into a slot, with
// read-back verification of every block. Unless raw, the image
// pipeline relocates signature blocks on the way in and the slot is
// appended to the boot priority scheme at the end.
func (s *Session) programCommon(slot int, r io.Reader, raw bool) error {
	if s.cfg.WriteProtected(slot) {
		slog.Error("rsu: trying to program a write protected slot", "slot", slot)
		return ErrWrProt
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	info, err := s.slotInfo(part)
	if err != nil {
		return err
	}
	if info.Priority > 0 {
		slog.Error("rsu: trying to program a slot already in use", "slot", slot)
		return ErrProgram
	}

	state := image.NewState()
	imageSlot := image.Slot{Offset: info.Offset, Size: info.Size}

	buf := make([]byte, image.BlockSize)
	vbuf := make([]byte, image.BlockSize)
	offset := int64(0)

	for {
		clear(buf)
		cnt, err := readBlock(r, buf)
		if err != nil {
			slog.Error("rsu: data source failure", "err", err)
			return ErrCallback
		}
		if cnt == 0 {
			break
		}

		if !raw {
			slog.Info("rsu: programming bitstream block", "offset", offset)
			if err := state.Process(buf, nil, imageSlot); err != nil {
				slog.Error("rsu: image block processing failed", "err", err)
				return ErrProgram
			}
		}

		if offset+int64(cnt) > info.Size {
			slog.Error("rsu: trying to program too much data into slot", "slot", slot)
			return ErrSize
		}

		if err := s.st.DataWrite(part, offset, buf[:cnt]); err != nil {
			slog.Error("rsu: error in writing to slot", "err", err)
			return ErrLowLevel
		}
		if err := s.st.DataRead(part, offset, vbuf[:cnt]); err != nil {
			slog.Error("rsu: error in reading from slot", "err", err)
			return ErrLowLevel
		}
		if !bytes.Equal(buf[:cnt], vbuf[:cnt]) {
			slog.Error("rsu: read back mismatch", "offset", offset)
			return ErrCmp
		}

		offset += int64(cnt)

		if cnt < image.BlockSize {
			break
		}
	}

	if !raw {
		if err := s.st.PriorityAdd(part); err != nil {
			return ErrLowLevel
		}
	}
	return nil
}

// verifyCommon streams 4 KiB blocks from r and compares them against
// the slot contents. Unless raw, signature blocks are compared in
// their relocated form.
func (s *Session) verifyCommon(slot int, r io.Reader, raw bool) error {
	part, err := s.slot2Part(slot)
	if err != nil {
		return err
	}
	info, err := s.slotInfo(part)
	if err != nil {
		return err
	}
	if !raw && info.Priority <= 0 {
		slog.Error("rsu: trying to verify a slot not in use", "slot", slot)
		return ErrErase
	}

	state := image.NewState()
	imageSlot := image.Slot{Offset: info.Offset, Size: info.Size}

	buf := make([]byte, image.BlockSize)
	vbuf := make([]byte, image.BlockSize)
	offset := int64(0)

	for {
		clear(buf)
		clear(vbuf)
		cnt, err := readBlock(r, buf)
		if err != nil {
			slog.Error("rsu: data source failure", "err", err)
			return ErrCallback
		}
		if cnt == 0 {
			break
		}

		if offset+int64(cnt) > info.Size {
			slog.Error("rsu: more data than the slot holds", "slot", slot)
			return ErrSize
		}
		if err := s.st.DataRead(part, offset, vbuf[:cnt]); err != nil {
			return ErrLowLevel
		}

		if !raw {
			if err := state.Process(buf, vbuf, imageSlot); err != nil {
				return ErrCmp
			}
		} else if !bytes.Equal(buf[:cnt], vbuf[:cnt]) {
			slog.Error("rsu: verify mismatch", "offset", offset)
			return ErrCmp
		}

		offset += int64(cnt)

		if cnt < image.BlockSize {
			break
		}
	}
	return nil
}

// dataOp wraps the common gating of program and verify entry points.
func (s *Session) dataOp(needCPB bool, f func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if needCPB {
		if err := s.checkCPB(); err != nil {
			return err
		}
	}
	return f()
}

// SlotProgramBuf programs a slot from an in-memory image.
func (s *Session) SlotProgramBuf(slot int, buf []byte) error {
	return s.dataOp(true, func() error {
		if len(buf) == 0 {
			return ErrArgs
		}
		return s.programCommon(slot, bytes.NewReader(buf), false)
	})
}

// SlotProgramFactoryUpdateBuf programs a factory update image from an
// in-memory buffer. The image pipeline handles both regular and
// factory update images.
func (s *Session) SlotProgramFactoryUpdateBuf(slot int, buf []byte) error {
	return s.SlotProgramBuf(slot, buf)
}

// SlotProgramBufRaw programs raw data without image processing or a
// priority assignment.
func (s *Session) SlotProgramBufRaw(slot int, buf []byte) error {
	return s.dataOp(false, func() error {
		if len(buf) == 0 {
			return ErrArgs
		}
		return s.programCommon(slot, bytes.NewReader(buf), true)
	})
}

// SlotProgramFile programs a slot from an image file.
func (s *Session) SlotProgramFile(slot int, filename string) error {
	return s.dataOp(true, func() error {
		file, err := os.Open(filename)
		if err != nil {
			slog.Error("rsu: unable to open file", "file", filename, "err", err)
			return ErrFileIO
		}
		defer file.Close()
		return s.programCommon(slot, file, false)
	})
}

// SlotProgramFactoryUpdateFile programs a factory update image from a
// file. The image pipeline handles both regular and factory update
// images.
func (s *Session) SlotProgramFactoryUpdateFile(slot int, filename string) error {
	return s.SlotProgramFile(slot, filename)
}

// SlotProgramFileRaw programs raw file data without image processing
// or a priority assignment.
func (s *Session) SlotProgramFileRaw(slot int, filename string) error {
	return s.dataOp(false, func() error {
		file, err := os.Open(filename)
		if err != nil {
			slog.Error("rsu: unable to open file", "file", filename, "err", err)
			return ErrFileIO
		}
		defer file.Close()
		return s.programCommon(slot, file, true)
	})
}

// SlotProgramCallback programs a slot pulling data from a callback.
func (s *Session) SlotProgramCallback(slot int, cb DataCallback) error {
	return s.dataOp(true, func() error {
		if cb == nil {
			return ErrArgs
		}
		return s.programCommon(slot, callbackReader{cb}, false)
	})
}

// SlotProgramCallbackRaw programs raw callback data without image
// processing or a priority assignment.
func (s *Session) SlotProgramCallbackRaw(slot int, cb DataCallback) error {
	return s.dataOp(false, func() error {
		if cb == nil {
			return ErrArgs
		}
		return s.programCommon(slot, callbackReader{cb}, true)
	})
}

// SlotVerifyBuf verifies a slot against an in-memory image.
func (s *Session) SlotVerifyBuf(slot int, buf []byte) error {
	return s.dataOp(true, func() error {
		if len(buf) == 0 {
			return ErrArgs
		}
		return s.verifyCommon(slot, bytes.NewReader(buf), false)
	})
}

// SlotVerifyBufRaw verifies a slot byte for byte against a buffer.
func (s *Session) SlotVerifyBufRaw(slot int, buf []byte) error {
	return s.dataOp(false, func() error {
		if len(buf) == 0 {
			return ErrArgs
		}
		return s.verifyCommon(slot, bytes.NewReader(buf), true)
	})
}

// SlotVerifyFile verifies a slot against an image file.
func (s *Session) SlotVerifyFile(slot int, filename string) error {
	return s.dataOp(true, func() error {
		file, err := os.Open(filename)
		if err != nil {
			slog.Error("rsu: unable to open file", "file", filename, "err", err)
			return ErrFileIO
		}
		defer file.Close()
		return s.verifyCommon(slot, file, false)
	})
}

// SlotVerifyFileRaw verifies a slot byte for byte against a file.
func (s *Session) SlotVerifyFileRaw(slot int, filename string) error {
	return s.dataOp(false, func() error {
		file, err := os.Open(filename)
		if err != nil {
			slog.Error("rsu: unable to open file", "file", filename, "err", err)
			return ErrFileIO
		}
		defer file.Close()
		return s.verifyCommon(slot, file, true)
	})
}

// SlotVerifyCallback verifies a slot against callback data.
func (s *Session) SlotVerifyCallback(slot int, cb DataCallback) error {
	return s.dataOp(true, func() error {
		if cb == nil {
			return ErrArgs
		}
		return s.verifyCommon(slot, callbackReader{cb}, false)
	})
}

// SlotVerifyCallbackRaw verifies a slot byte for byte against
// callback data.
func (s *Session) SlotVerifyCallbackRaw(slot int, cb DataCallback) error {
	return s.dataOp(false, func() error {
		if cb == nil {
			return ErrArgs
		}
		return s.verifyCommon(slot, callbackReader{cb}, true)
	})
}

// isFill reports an all 0xFF chunk.
func isFill(buf []byte) bool {
	for _, b := range buf {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// SlotCopyToFile reads the slot contents into a file. Chunks of all
// 0xFF are treated as holes: they are not written unless later data
// needs the offset, in which case the gap is filled with 0xFF.
func (s *Session) SlotCopyToFile(slot int, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if filename == "" {
		slog.Error("rsu: filename is empty")
		return ErrArgs
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		slog.Error("rsu: slot is not usable", "slot", slot)
		return err
	}
	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}

	priority, err := s.st.Priority(part)
	if err != nil {
		return ErrLowLevel
	}
	if priority <= 0 {
		slog.Error("rsu: trying to read an erased slot", "slot", slot)
		return ErrErase
	}

	file, err := os.Create(filename)
	if err != nil {
		slog.Error("rsu: unable to open output file", "file", filename, "err", err)
		return ErrFileIO
	}
	defer file.Close()

	size, err := s.st.PartitionSize(part)
	if err != nil {
		return ErrLowLevel
	}

	buf := make([]byte, image.BlockSize)
	fill := bytes.Repeat([]byte{0xFF}, image.BlockSize)
	lastWrite := int64(0)

	for offset := int64(0); offset < size; offset += image.BlockSize {
		if err := s.st.DataRead(part, offset, buf); err != nil {
			slog.Error("rsu: unable to read slot", "slot", slot, "offset", offset)
			return ErrLowLevel
		}
		if isFill(buf) {
			continue
		}

		for lastWrite < offset {
			if _, err := file.Write(fill); err != nil {
				slog.Error("rsu: unable to write file", "file", filename, "err", err)
				return ErrFileIO
			}
			lastWrite += image.BlockSize
		}
		if _, err := file.Write(buf); err != nil {
			slog.Error("rsu: unable to write file", "file", filename, "err", err)
			return ErrFileIO
		}
		lastWrite += image.BlockSize
	}

	return nil
}

// SlotCopyToBuf reads the whole slot verbatim into buf, which must
// hold at least the slot size.
func (s *Session) SlotCopyToBuf(slot int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkReady(); err != nil {
		return err
	}
	if len(buf) == 0 {
		slog.Error("rsu: buffer is empty")
		return ErrArgs
	}

	part, err := s.slot2Part(slot)
	if err != nil {
		slog.Error("rsu: slot is not usable", "slot", slot)
		return err
	}

	size, err := s.st.PartitionSize(part)
	if err != nil {
		return ErrLowLevel
	}
	if int64(len(buf)) < size {
		slog.Error("rsu: buffer size is not adequate", "size", len(buf))
		return ErrArgs
	}

	if err := s.checkSPT(); err != nil {
		return err
	}
	if err := s.checkCPB(); err != nil {
		return err
	}

	priority, err := s.st.Priority(part)
	if err != nil {
		return ErrLowLevel
	}
	if priority <= 0 {
		slog.Error("rsu: trying to read an erased slot", "slot", slot)
		return ErrErase
	}

	if err := s.st.DataRead(part, 0, buf[:size]); err != nil {
		slog.Error("rsu: error in reading data from flash", "err", err)
		return ErrLowLevel
	}
	return nil
}

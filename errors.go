/*
 * rsu - Stable error code contract.
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

import "errors"

// Stable integer error codes. Code reports the negative of one of
// these for every error returned by a public operation.
const (
	CodeLib          = 1  // Library state or internal failure.
	CodeCfg          = 2  // Configuration or initialization failure.
	CodeSlotNum      = 3  // Unknown slot number.
	CodeFormat       = 4  // Format or layout failure.
	CodeErase        = 5  // Operation on an erased slot.
	CodeProgram      = 6  // Programming failure or slot in use.
	CodeCmp          = 7  // Verification compare mismatch.
	CodeSize         = 8  // Data does not fit the slot.
	CodeName         = 9  // Bad or reserved name.
	CodeFileIO       = 10 // File or firmware transport failure.
	CodeCallback     = 11 // Data callback reported an error.
	CodeLowLevel     = 12 // Low level flash or table failure.
	CodeWrProt       = 13 // Slot is write protected.
	CodeArgs         = 14 // Bad argument.
	CodeCorruptedCPB = 15 // Both CPB copies unusable.
	CodeCorruptedSPT = 16 // Both SPT copies unusable.
)

// Error is a public operation failure carrying a stable code.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

// Code returns the positive stable code.
func (e *Error) Code() int {
	return e.code
}

// The sentinel errors returned by public operations. Compare with
// errors.Is.
var (
	ErrLib          = &Error{CodeLib, "library not initialized"}
	ErrCfg          = &Error{CodeCfg, "configuration failure"}
	ErrSlotNum      = &Error{CodeSlotNum, "unknown slot"}
	ErrFormat       = &Error{CodeFormat, "format failure"}
	ErrErase        = &Error{CodeErase, "slot is erased"}
	ErrProgram      = &Error{CodeProgram, "programming failure"}
	ErrCmp          = &Error{CodeCmp, "verification mismatch"}
	ErrSize         = &Error{CodeSize, "data too big for slot"}
	ErrName         = &Error{CodeName, "bad slot name"}
	ErrFileIO       = &Error{CodeFileIO, "file or firmware access failure"}
	ErrCallback     = &Error{CodeCallback, "data callback failure"}
	ErrLowLevel     = &Error{CodeLowLevel, "low level failure"}
	ErrWrProt       = &Error{CodeWrProt, "slot is write protected"}
	ErrArgs         = &Error{CodeArgs, "bad argument"}
	ErrCorruptedCPB = &Error{CodeCorruptedCPB, "corrupted CPB"}
	ErrCorruptedSPT = &Error{CodeCorruptedSPT, "corrupted SPT"}
)

// Code maps an error returned by a public operation onto the stable
// integer contract: zero for nil, otherwise the negated code.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return -e.code
	}
	return -CodeLib
}

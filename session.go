/*
 * rsu - Library session.
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

// Package rsu is a library for remote system update on SoC-FPGA
// platforms whose boot image store lives in an external QSPI flash.
// It enumerates application image slots, programs and verifies
// bitstreams, adjusts boot priorities, recovers the redundant
// metadata tables, and hands boot addresses to the platform firmware
// through its mailbox.
//
// A Session is opened once against a configuration file and holds the
// flash, mailbox and misc collaborators for its lifetime. All
// operations are serialized by the session mutex. Only one live
// session is allowed per process.
package rsu

import (
	"log/slog"
	"os"
	"sync"

	"github.com/socfpga-tools/rsu/config"
	"github.com/socfpga-tools/rsu/hal"
	"github.com/socfpga-tools/rsu/hal/qspifile"
	"github.com/socfpga-tools/rsu/hal/sysfsmbox"
	"github.com/socfpga-tools/rsu/store"
	"github.com/socfpga-tools/rsu/util/logger"
)

// DefaultConfigPath is used when Open is given an empty path.
const DefaultConfigPath = "/etc/librsu.rc"

const (
	versionMajor = 1
	versionMinor = 0
)

// Version returns the library version, major in the upper 16 bits.
func Version() uint32 {
	return (versionMajor&0xFFFF)<<16 | (versionMinor & 0xFFFF)
}

// Only one live session per process; re-entrant initialization is
// refused.
var (
	liveMu sync.Mutex
	live   bool
)

// Session is an initialized library instance.
type Session struct {
	mu     sync.Mutex
	active bool

	cfg   *config.Config
	flash hal.Flash
	mbox  hal.Mailbox
	misc  hal.Misc
	st    *store.Store

	logFile *os.File
}

// Open initializes the library: the configuration file is parsed (the
// defaults are used when it does not exist), logging is set up, the
// platform collaborators are bound, and both metadata tables are
// loaded. A metadata table whose both copies are corrupted does not
// fail the open; the corresponding operations report it instead.
func Open(cfgPath string) (*Session, error) {
	if cfgPath == "" {
		cfgPath = DefaultConfigPath
	}

	cfg, err := config.ParseFile(cfgPath)
	if err != nil {
		slog.Error("rsu: error in configuration", "err", err)
		return nil, ErrCfg
	}

	logFile, err := logger.Setup(cfg.LogLevel, cfg.LogPath)
	if err != nil {
		slog.Error("rsu: error in setting log information", "err", err)
		return nil, ErrCfg
	}

	flash, err := qspifile.Open(cfg.Root)
	if err != nil {
		slog.Error("rsu: error during initializing QSPI", "err", err)
		closeFile(logFile)
		return nil, ErrCfg
	}

	mbox, err := sysfsmbox.New(cfg.Dev)
	if err != nil {
		slog.Error("rsu: error during initializing mailbox", "err", err)
		flash.Terminate()
		closeFile(logFile)
		return nil, ErrCfg
	}

	misc, err := sysfsmbox.NewMisc(cfg.Dev)
	if err != nil {
		slog.Error("rsu: error during initializing misc firmware access", "err", err)
		mbox.Terminate()
		flash.Terminate()
		closeFile(logFile)
		return nil, ErrCfg
	}

	session, err := open(cfg, flash, mbox, misc)
	if err != nil {
		mbox.Terminate()
		flash.Terminate()
		misc.Terminate()
		closeFile(logFile)
		return nil, err
	}
	session.logFile = logFile
	return session, nil
}

// OpenPlatform initializes the library against caller supplied
// collaborators, for platforms without the default device bindings.
// The caller keeps ownership of logging.
func OpenPlatform(cfg *config.Config, flash hal.Flash, mbox hal.Mailbox, misc hal.Misc) (*Session, error) {
	if cfg == nil || flash == nil || mbox == nil || misc == nil {
		return nil, ErrArgs
	}
	return open(cfg, flash, mbox, misc)
}

func open(cfg *config.Config, flash hal.Flash, mbox hal.Mailbox, misc hal.Misc) (*Session, error) {
	liveMu.Lock()
	defer liveMu.Unlock()

	if live {
		slog.Error("rsu: library already initialized or ongoing initialization")
		return nil, ErrLib
	}

	st, err := store.Open(flash, mbox, cfg.SPTChecksum)
	if err != nil {
		slog.Error("rsu: error in opening the image store", "err", err)
		return nil, ErrCfg
	}

	live = true
	slog.Debug("rsu: initialization completed")

	return &Session{
		active: true,
		cfg:    cfg,
		flash:  flash,
		mbox:   mbox,
		misc:   misc,
		st:     st,
	}, nil
}

// Close tears the session down in reverse order of initialization.
// Closing an already closed session does nothing.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		slog.Error("rsu: library not initialized")
		return
	}
	slog.Debug("rsu: exit started")

	s.misc.Terminate()
	s.mbox.Terminate()
	s.flash.Terminate()
	closeFile(s.logFile)

	s.active = false
	liveMu.Lock()
	live = false
	liveMu.Unlock()

	slog.Debug("rsu: exit completed")
}

func closeFile(file *os.File) {
	if file != nil {
		file.Close()
	}
}

// checkReady gates a public operation on the session state. The
// caller must hold the session mutex.
func (s *Session) checkReady() error {
	if !s.active {
		slog.Error("rsu: library not initialized")
		return ErrLib
	}
	return nil
}

// checkSPT refuses operations while the SPT is corrupted.
func (s *Session) checkSPT() error {
	if s.st.SPTCorrupted() {
		slog.Error("rsu: corrupted SPT")
		return ErrCorruptedSPT
	}
	return nil
}

// checkCPB refuses operations while the CPB is corrupted.
func (s *Session) checkCPB() error {
	if s.st.CPBCorrupted() {
		slog.Error("rsu: corrupted CPB")
		return ErrCorruptedCPB
	}
	return nil
}

/*
 * rsu - Configuration file parser test cases.
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

package config

import (
	"strings"
	"testing"

	"github.com/socfpga-tools/rsu/util/logger"
)

func TestParseFull(t *testing.T) {
	input := `# librsu configuration
log high /tmp/rsu.log
root qspi /dev/mtd3
rsu-dev /sys/devices/platform/test-rsu
write-protect 0
write-protect 17
rsu-spt-checksum 0
`
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.LogLevel != logger.LevelHigh {
		t.Errorf("log level got %v want high", cfg.LogLevel)
	}
	if cfg.LogPath != "/tmp/rsu.log" {
		t.Errorf("log path got %q", cfg.LogPath)
	}
	if cfg.Root != "/dev/mtd3" {
		t.Errorf("root got %q", cfg.Root)
	}
	if cfg.Dev != "/sys/devices/platform/test-rsu" {
		t.Errorf("rsu-dev got %q", cfg.Dev)
	}
	if !cfg.WriteProtected(0) || !cfg.WriteProtected(17) {
		t.Error("write-protect bits not set")
	}
	if cfg.WriteProtected(1) {
		t.Error("unexpected write-protect bit")
	}
	if cfg.SPTChecksum {
		t.Error("rsu-spt-checksum 0 not honored")
	}
}

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(strings.NewReader("# nothing here\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Root != DefaultQSPIDevice || cfg.Dev != DefaultRSUDevice {
		t.Errorf("default devices wrong: %q %q", cfg.Root, cfg.Dev)
	}
	if !cfg.SPTChecksum {
		t.Error("SPT checksum should default to enabled")
	}
	if cfg.WriteProtect != 0 {
		t.Error("write protect should default to empty")
	}
}

func TestParseIgnoresUnknown(t *testing.T) {
	input := "frobnicate all the things\nshort\nlog med stderr\n"
	cfg, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.LogLevel != logger.LevelMed {
		t.Errorf("log level got %v want med", cfg.LogLevel)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"write-protect 32\n",
		"write-protect pineapple\n",
		"root floppy /dev/fd0\n",
		"log loud stderr\n",
		"rsu-spt-checksum maybe\n",
	}
	for _, input := range cases {
		if _, err := Parse(strings.NewReader(input)); err == nil {
			t.Errorf("Parse(%q) should have failed", input)
		}
	}
}

func TestWriteProtectedRange(t *testing.T) {
	cfg := Default()
	cfg.WriteProtect = 0xFFFFFFFF
	if cfg.WriteProtected(-1) || cfg.WriteProtected(32) {
		t.Error("slots outside the bitmap must never be protected")
	}
	if !cfg.WriteProtected(31) {
		t.Error("slot 31 should be protected")
	}
}

/*
 * rsu - Configuration file parser.
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

// Package config parses the librsu.rc style configuration file.
//
// Configuration file format:
//
//	A line whose first field starts with '#' is a comment.
//	log {off|err|low|med|high} {stderr|<path>}
//	root qspi <device-path>
//	rsu-dev <sysfs-path>
//	write-protect <slot-number 0..31>
//	rsu-spt-checksum <0|1>
//
// Records are whitespace separated. Unknown directives and lines with
// fewer than two fields are ignored.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/socfpga-tools/rsu/util/logger"
)

const (
	// DefaultQSPIDevice is used when no "root qspi" record is present.
	DefaultQSPIDevice = "/dev/mtd0"

	// DefaultRSUDevice is used when no "rsu-dev" record is present.
	DefaultRSUDevice = "/sys/devices/platform/stratix10-rsu.0"
)

// Config holds the parsed configuration.
type Config struct {
	LogLevel     logger.Level // Log filter level.
	LogPath      string       // Log destination, "stderr" or a path.
	Root         string       // QSPI device path.
	Dev          string       // RSU device attribute directory.
	WriteProtect uint32       // Write protect bitmap over slots 0..31.
	SPTChecksum  bool         // Verify and generate the SPT checksum.
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LogLevel:    logger.LevelErr,
		LogPath:     "stderr",
		Root:        DefaultQSPIDevice,
		Dev:         DefaultRSUDevice,
		SPTChecksum: true,
	}
}

// ParseFile reads the configuration from path. A missing file is not
// an error; the defaults are returned.
func ParseFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads the configuration records from r.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	scanner := bufio.NewScanner(r)
	lineNumber := 0

	for scanner.Scan() {
		lineNumber++
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "log":
			level, ok := logger.ParseLevel(fields[1])
			if !ok {
				return nil, fmt.Errorf("line %d: unknown log level %q", lineNumber, fields[1])
			}
			cfg.LogLevel = level
			if len(fields) > 2 {
				cfg.LogPath = fields[2]
			}

		case "root":
			if fields[1] != "qspi" || len(fields) < 3 {
				return nil, fmt.Errorf("line %d: root device is not qspi", lineNumber)
			}
			cfg.Root = fields[2]

		case "rsu-dev":
			cfg.Dev = fields[1]

		case "write-protect":
			slot, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad write-protect slot %q", lineNumber, fields[1])
			}
			if slot > 31 {
				return nil, fmt.Errorf("line %d: write protection only works on the first 32 slots", lineNumber)
			}
			cfg.WriteProtect |= 1 << slot

		case "rsu-spt-checksum":
			value, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad rsu-spt-checksum value %q", lineNumber, fields[1])
			}
			cfg.SPTChecksum = value != 0
		}
	}

	return cfg, scanner.Err()
}

// WriteProtected reports whether slot is covered by the write protect
// bitmap. Slots past the bitmap are never protected.
func (c *Config) WriteProtected(slot int) bool {
	if slot < 0 || slot > 31 {
		return false
	}
	return c.WriteProtect&(1<<slot) != 0
}

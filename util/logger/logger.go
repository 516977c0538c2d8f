/*
 * rsu - Wrapper for slog.
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

// Package logger maps the library's five log levels onto slog and
// directs output to stderr or a log file as selected by the
// configuration.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Level is a library log level. The names follow the configuration
// file keywords, not slog's.
type Level int

const (
	LevelOff Level = iota // No output.
	LevelErr              // Errors only.
	LevelLow              // Errors and warnings.
	LevelMed              // Informational.
	LevelHigh             // Everything, including debug.
)

var levelNames = map[string]Level{
	"off":  LevelOff,
	"err":  LevelErr,
	"low":  LevelLow,
	"med":  LevelMed,
	"high": LevelHigh,
}

// ParseLevel converts a configuration keyword to a level.
func ParseLevel(name string) (Level, bool) {
	level, ok := levelNames[strings.ToLower(name)]
	return level, ok
}

func (l Level) String() string {
	for name, level := range levelNames {
		if level == l {
			return name
		}
	}
	return "unknown"
}

// slogLevel returns the minimum slog level enabled for l.
func (l Level) slogLevel() slog.Level {
	switch l {
	case LevelErr:
		return slog.LevelError
	case LevelLow:
		return slog.LevelWarn
	case LevelMed:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

type Handler struct {
	out   io.Writer
	mu    *sync.Mutex
	level Level
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	if h.level == LevelOff {
		return false
	}
	return level >= h.level.slogLevel()
}

func (h *Handler) WithAttrs(_ []slog.Attr) slog.Handler {
	return &Handler{out: h.out, mu: h.mu, level: h.level}
}

func (h *Handler) WithGroup(_ string) slog.Handler {
	return &Handler{out: h.out, mu: h.mu, level: h.level}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	formattedTime := r.Time.Format("2006/01/02 15:04:05")

	strs := []string{formattedTime, level, r.Message}

	if r.NumAttrs() != 0 {
		r.Attrs(func(a slog.Attr) bool {
			strs = append(strs, a.Key+"="+a.Value.String())
			return true
		})
	}
	result := strings.Join(strs, " ") + "\n"

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.out.Write([]byte(result))
	return err
}

// New returns a logger filtering at the given level and writing to out.
// A nil writer selects stderr.
func New(out io.Writer, level Level) *slog.Logger {
	if out == nil {
		out = os.Stderr
	}
	return slog.New(&Handler{out: out, mu: &sync.Mutex{}, level: level})
}

// Setup installs a logger as the process default. The destination
// "stderr" (or "") selects stderr, anything else is opened as a file.
// The returned file, if any, is owned by the caller.
func Setup(level Level, destination string) (*os.File, error) {
	if destination == "" || destination == "stderr" {
		slog.SetDefault(New(nil, level))
		return nil, nil
	}

	file, err := os.Create(destination)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(New(file, level))
	return file, nil
}

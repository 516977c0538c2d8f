/*
 * rsu - Logger test cases.
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

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"off":  LevelOff,
		"err":  LevelErr,
		"low":  LevelLow,
		"med":  LevelMed,
		"HIGH": LevelHigh,
	}
	for name, want := range cases {
		got, ok := ParseLevel(name)
		if !ok || got != want {
			t.Errorf("ParseLevel(%q) got %v %v", name, got, ok)
		}
	}
	if _, ok := ParseLevel("loud"); ok {
		t.Error("unknown level accepted")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelErr)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("hidden warning")
	log.Error("visible error")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("filtered records leaked: %q", out)
	}
	if !strings.Contains(out, "visible error") {
		t.Errorf("error record missing: %q", out)
	}
}

func TestLevelOff(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelOff)

	log.Error("nothing")
	if buf.Len() != 0 {
		t.Errorf("off level still wrote: %q", buf.String())
	}
}

func TestAttrFormatting(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, LevelHigh)

	log.Info("message", "slot", 3)
	out := buf.String()
	if !strings.Contains(out, "message") || !strings.Contains(out, "slot=3") {
		t.Errorf("unexpected record %q", out)
	}
}

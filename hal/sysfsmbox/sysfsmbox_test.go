/*
 * rsu - Device attribute mailbox test cases.
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

package sysfsmbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeAttrFile(t *testing.T, dir, name, value string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(value+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	writeAttrFile(t, dir, "version", "0x0101")
	writeAttrFile(t, dir, "state", "0")
	writeAttrFile(t, dir, "current_image", "0x300000")
	writeAttrFile(t, dir, "fail_image", "0")
	writeAttrFile(t, dir, "error_location", "0")
	writeAttrFile(t, dir, "error_details", "0")
	writeAttrFile(t, dir, "retry_counter", "2")
	writeAttrFile(t, dir, "spt0_address", "0x10000")
	writeAttrFile(t, dir, "spt1_address", "0x18000")
	writeAttrFile(t, dir, "max_retry", "3")
	for i := 0; i < 4; i++ {
		writeAttrFile(t, dir, fmt.Sprintf("dcmf%d", i), "0x01010000")
		writeAttrFile(t, dir, fmt.Sprintf("dcmf%d_status", i), "0")
	}
	return dir
}

func TestMailboxStatus(t *testing.T) {
	dir := testDir(t)
	mbox, err := New(dir)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	info, err := mbox.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if info.Version != 0x0101 || info.CurrentImage != 0x300000 || info.RetryCounter != 2 {
		t.Errorf("unexpected status %+v", info)
	}

	addr, err := mbox.SPTAddresses()
	if err != nil {
		t.Fatalf("SPTAddresses failed: %v", err)
	}
	if addr.SPT0 != 0x10000 || addr.SPT1 != 0x18000 {
		t.Errorf("unexpected addresses %+v", addr)
	}
}

func TestMailboxWrites(t *testing.T) {
	dir := testDir(t)
	mbox, err := New(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := mbox.SendUpdate(0x300000); err != nil {
		t.Fatalf("SendUpdate failed: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, "reboot_image"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "0x300000" {
		t.Errorf("reboot_image got %q", raw)
	}

	if err := mbox.Notify(0x2345); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	raw, err = os.ReadFile(filepath.Join(dir, "notify"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "0x2345" {
		t.Errorf("notify got %q", raw)
	}
}

func TestMisc(t *testing.T) {
	dir := testDir(t)
	misc, err := NewMisc(dir)
	if err != nil {
		t.Fatalf("NewMisc failed: %v", err)
	}

	versions, err := misc.DCMFVersions()
	if err != nil {
		t.Fatalf("DCMFVersions failed: %v", err)
	}
	if versions[2] != 0x01010000 {
		t.Errorf("version got 0x%X", versions[2])
	}

	status, err := misc.DCMFStatus()
	if err != nil {
		t.Fatalf("DCMFStatus failed: %v", err)
	}
	if status != [4]int32{} {
		t.Errorf("status got %v", status)
	}

	retry, err := misc.MaxRetryCount()
	if err != nil {
		t.Fatalf("MaxRetryCount failed: %v", err)
	}
	if retry != 3 {
		t.Errorf("max retry got %d", retry)
	}

	// Values above the platform limit are refused.
	writeAttrFile(t, dir, "max_retry", "250")
	if _, err := misc.MaxRetryCount(); err == nil {
		t.Error("max_retry above the limit not refused")
	}
}

func TestMissingDirectory(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("missing directory not refused")
	}
}

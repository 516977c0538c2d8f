/*
 * rsu - Client command reader.
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

package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	rsu "github.com/socfpga-tools/rsu"
	"github.com/socfpga-tools/rsu/util/hexfmt"
)

var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(s *rsu.Session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"count":   {"count", "Number of application slots", cmdCount},
		"list":    {"list", "List all slots with priority and size", cmdList},
		"info":    {"info <slot>", "Show one slot", cmdInfo},
		"create":  {"create <name> <address> <size>", "Create a slot", cmdCreate},
		"delete":  {"delete <slot>", "Delete a slot", cmdDelete},
		"rename":  {"rename <slot> <name>", "Rename a slot", cmdRename},
		"erase":   {"erase <slot>", "Erase a slot", cmdErase},
		"enable":  {"enable <slot>", "Set a slot to highest priority", cmdEnable},
		"disable": {"disable <slot>", "Remove a slot from the priority scheme", cmdDisable},
		"program": {"program <slot> <file> [raw|factory]", "Program a slot from a file", cmdProgram},
		"verify":  {"verify <slot> <file> [raw]", "Verify a slot against a file", cmdVerify},
		"save-to": {"save-to <slot> <file>", "Copy slot contents to a file", cmdSaveTo},
		"dump":    {"dump <slot> [bytes]", "Hex dump the start of a slot", cmdDump},

		"request":         {"request <slot>", "Boot this slot after the next reboot", cmdRequest},
		"request-factory": {"request-factory", "Boot the factory image after the next reboot", cmdRequestFactory},

		"status":      {"status", "Show the firmware status log", cmdStatus},
		"notify":      {"notify <value>", "Send a notify value to the firmware", cmdNotify},
		"clear-error": {"clear-error", "Clear the firmware error status", cmdClearError},
		"reset-retry": {"reset-retry", "Reset the image retry counter", cmdResetRetry},
		"dcmf":        {"dcmf", "Show decision firmware versions and status", cmdDCMF},
		"max-retry":   {"max-retry", "Show the max_retry parameter", cmdMaxRetry},

		"save-spt":    {"save-spt <file>", "Save the sub-partition table", cmdSaveSPT},
		"restore-spt": {"restore-spt <file>", "Restore the sub-partition table", cmdRestoreSPT},
		"save-cpb":    {"save-cpb <file>", "Save the configuration pointer block", cmdSaveCPB},
		"restore-cpb": {"restore-cpb <file>", "Restore the configuration pointer block", cmdRestoreCPB},
		"empty-cpb":   {"empty-cpb", "Rebuild an empty configuration pointer block", cmdEmptyCPB},

		"help": {"help", "Show this text", cmdHelp},
		"quit": {"quit", "Leave the client", cmdQuit},
	}
}

func completeCmd(line string) []string {
	var matches []string
	for name := range commands {
		if strings.HasPrefix(name, strings.ToLower(line)) {
			matches = append(matches, name)
		}
	}
	return matches
}

func runCommand(s *rsu.Session, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command %q, try help", fields[0])
	}
	return cmd.run(s, fields[1:])
}

func consoleLoop(s *rsu.Session) {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(completeCmd)

	for {
		input, err := line.Prompt("rsu> ")
		if err == nil {
			line.AppendHistory(input)
			err = runCommand(s, input)
			if errors.Is(err, errQuit) {
				return
			}
			if err != nil {
				fmt.Printf("Error: %v (%d)\n", err, rsu.Code(err))
			}
			continue
		}

		if errors.Is(err, liner.ErrPromptAborted) {
			return
		}
		fmt.Fprintln(os.Stderr, "error reading line: "+err.Error())
		return
	}
}

func parseSlot(s *rsu.Session, arg string) (int, error) {
	if slot, err := strconv.Atoi(arg); err == nil {
		return slot, nil
	}
	return s.SlotByName(arg)
}

func parseNumber(arg string) (uint64, error) {
	return strconv.ParseUint(arg, 0, 64)
}

func cmdCount(s *rsu.Session, _ []string) error {
	cnt, err := s.SlotCount()
	if err != nil {
		return err
	}
	fmt.Printf("%d slots\n", cnt)
	return nil
}

func cmdList(s *rsu.Session, _ []string) error {
	cnt, err := s.SlotCount()
	if err != nil {
		return err
	}

	for slot := 0; slot < cnt; slot++ {
		info, err := s.SlotGetInfo(slot)
		if err != nil {
			return err
		}
		fmt.Printf("%2d  %-15s 0x%08X %10d priority %d\n",
			slot, info.Name, info.Offset, info.Size, info.Priority)
	}
	return nil
}

func cmdInfo(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["info"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}

	info, err := s.SlotGetInfo(slot)
	if err != nil {
		return err
	}
	fmt.Printf("name:     %s\n", info.Name)
	fmt.Printf("offset:   0x%08X\n", info.Offset)
	fmt.Printf("size:     %d\n", info.Size)
	fmt.Printf("priority: %d\n", info.Priority)
	return nil
}

func cmdCreate(s *rsu.Session, args []string) error {
	if len(args) != 3 {
		return errors.New("usage: " + commands["create"].usage)
	}
	address, err := parseNumber(args[1])
	if err != nil {
		return err
	}
	size, err := parseNumber(args[2])
	if err != nil {
		return err
	}
	return s.SlotCreate(args[0], address, uint32(size))
}

func cmdDelete(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["delete"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotDelete(slot)
}

func cmdRename(s *rsu.Session, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: " + commands["rename"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotRename(slot, args[1])
}

func cmdErase(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["erase"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotErase(slot)
}

func cmdEnable(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["enable"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotEnable(slot)
}

func cmdDisable(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["disable"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotDisable(slot)
}

func cmdProgram(s *rsu.Session, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: " + commands["program"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}

	mode := ""
	if len(args) == 3 {
		mode = args[2]
	}
	switch mode {
	case "":
		return s.SlotProgramFile(slot, args[1])
	case "raw":
		return s.SlotProgramFileRaw(slot, args[1])
	case "factory":
		return s.SlotProgramFactoryUpdateFile(slot, args[1])
	}
	return fmt.Errorf("unknown program mode %q", mode)
}

func cmdVerify(s *rsu.Session, args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return errors.New("usage: " + commands["verify"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}

	if len(args) == 3 {
		if args[2] != "raw" {
			return fmt.Errorf("unknown verify mode %q", args[2])
		}
		return s.SlotVerifyFileRaw(slot, args[1])
	}
	return s.SlotVerifyFile(slot, args[1])
}

func cmdSaveTo(s *rsu.Session, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: " + commands["save-to"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotCopyToFile(slot, args[1])
}

func cmdDump(s *rsu.Session, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: " + commands["dump"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}

	length := uint64(256)
	if len(args) == 2 {
		if length, err = parseNumber(args[1]); err != nil {
			return err
		}
	}

	info, err := s.SlotGetInfo(slot)
	if err != nil {
		return err
	}
	if length > uint64(info.Size) {
		length = uint64(info.Size)
	}

	buf := make([]byte, info.Size)
	if err := s.SlotCopyToBuf(slot, buf); err != nil {
		return err
	}
	return hexfmt.Dump(os.Stdout, int64(info.Offset), buf[:length])
}

func cmdRequest(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["request"].usage)
	}
	slot, err := parseSlot(s, args[0])
	if err != nil {
		return err
	}
	return s.SlotLoadAfterReboot(slot)
}

func cmdRequestFactory(s *rsu.Session, _ []string) error {
	return s.SlotLoadFactoryAfterReboot()
}

func cmdStatus(s *rsu.Session, _ []string) error {
	info, err := s.StatusLog()
	if err != nil {
		return err
	}

	fmt.Printf("version:        0x%08X\n", info.Version)
	fmt.Printf("state:          0x%08X\n", info.State)
	fmt.Printf("current image:  0x%08X\n", info.CurrentImage)
	fmt.Printf("fail image:     0x%08X\n", info.FailImage)
	fmt.Printf("error location: 0x%08X\n", info.ErrorLocation)
	fmt.Printf("error details:  0x%08X\n", info.ErrorDetails)
	fmt.Printf("retry counter:  %d\n", info.RetryCounter)

	running, err := s.RunningFactory()
	if err == nil && running {
		fmt.Println("running factory image")
	}
	return nil
}

func cmdNotify(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["notify"].usage)
	}
	value, err := parseNumber(args[0])
	if err != nil {
		return err
	}
	return s.Notify(int(value))
}

func cmdClearError(s *rsu.Session, _ []string) error {
	return s.ClearErrorStatus()
}

func cmdResetRetry(s *rsu.Session, _ []string) error {
	return s.ResetRetryCounter()
}

func cmdDCMF(s *rsu.Session, _ []string) error {
	versions, err := s.DCMFVersions()
	if err != nil {
		return err
	}
	status, err := s.DCMFStatus()
	if err != nil {
		return err
	}

	for i := range versions {
		state := "ok"
		if status[i] != 0 {
			state = "corrupted"
		}
		fmt.Printf("dcmf%d: version 0x%08X %s\n", i, versions[i], state)
	}
	return nil
}

func cmdMaxRetry(s *rsu.Session, _ []string) error {
	value, err := s.MaxRetry()
	if err != nil {
		return err
	}
	fmt.Printf("max retry: %d\n", value)
	return nil
}

func cmdSaveSPT(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["save-spt"].usage)
	}
	return s.SaveSPT(args[0])
}

func cmdRestoreSPT(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["restore-spt"].usage)
	}
	return s.RestoreSPT(args[0])
}

func cmdSaveCPB(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["save-cpb"].usage)
	}
	return s.SaveCPB(args[0])
}

func cmdRestoreCPB(s *rsu.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["restore-cpb"].usage)
	}
	return s.RestoreCPB(args[0])
}

func cmdEmptyCPB(s *rsu.Session, _ []string) error {
	return s.CreateEmptyCPB()
}

func cmdHelp(_ *rsu.Session, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		cmd := commands[name]
		fmt.Printf("  %-40s %s\n", cmd.usage, cmd.help)
	}
	return nil
}

func cmdQuit(_ *rsu.Session, _ []string) error {
	return errQuit
}

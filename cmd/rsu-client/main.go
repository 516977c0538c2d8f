/*
 * rsu - Client main process.
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
	"fmt"
	"os"

	getopt "github.com/pborman/getopt/v2"

	rsu "github.com/socfpga-tools/rsu"
)

func main() {
	optConfig := getopt.StringLong("config", 'c', rsu.DefaultConfigPath, "Configuration file")
	optExec := getopt.StringLong("exec", 'e', "", "Execute a single command and exit")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	session, err := rsu.Open(*optConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rsu-client: open failed: %v (%d)\n", err, rsu.Code(err))
		os.Exit(1)
	}
	defer session.Close()

	fmt.Printf("librsu %d.%d\n", rsu.Version()>>16, rsu.Version()&0xFFFF)

	if *optExec != "" {
		if err := runCommand(session, *optExec); err != nil {
			fmt.Fprintf(os.Stderr, "rsu-client: %v (%d)\n", err, rsu.Code(err))
			os.Exit(1)
		}
		return
	}

	consoleLoop(session)
}

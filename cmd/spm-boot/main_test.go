// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("could not find sleep binary: %+v", err)
	}

	for _, tc := range []struct {
		name string
		mon  bool
		args [][]string
		stop time.Duration
		want string
	}{
		{
			name: "simple",
			args: [][]string{{"0.3"}, {"0.3"}},
		},
		{
			name: "simple-pmon",
			mon:  true,
			args: [][]string{{"1"}, {"1"}},
		},
		{
			name: "simple-stop",
			args: [][]string{{"10"}, {"10"}},
			stop: 500 * time.Millisecond,
		},
		{
			name: "fail",
			args: [][]string{{"not-a-duration"}, {"10"}},
			want: "could not boot SPM acquisition",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()

			// processes need unique names: the boot sequence starts
			// with a killall pass over the supervised commands.
			cmds := make([]*exec.Cmd, len(tc.args))
			for i, args := range tc.args {
				bin := filepath.Join(dir, fmt.Sprintf("spm-proc-%d", i))
				if err := copyFile(bin, sleep); err != nil {
					t.Fatalf("could not stage %q: %+v", bin, err)
				}
				cmds[i] = exec.Command(bin, args...)
			}

			stop := make(chan os.Signal, 1)
			if tc.stop > 0 {
				go func() {
					time.Sleep(tc.stop)
					stop <- os.Interrupt
				}()
			}

			start := time.Now()
			err := run(tc.mon, 200*time.Millisecond, cmds, dir, stop)
			delta := time.Since(start)

			switch {
			case tc.want == "" && err != nil:
				t.Fatalf("could not run: %+v", err)
			case tc.want != "" && err == nil:
				t.Fatalf("expected an error (containing %q)", tc.want)
			case tc.want != "" && !strings.Contains(err.Error(), tc.want):
				t.Fatalf("invalid error:\ngot= %v\nwant=*%s*", err, tc.want)
			}

			if tc.name == "fail" && delta > 5*time.Second {
				t.Fatalf("siblings were not brought down: run took %v", delta)
			}
		})
	}
}

func copyFile(dst, src string) error {
	raw, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, raw, 0755)
}

// Copyright 2023 The go-spm Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spmc holds client code for scanning-probe-microscope
// controllers: interpreting raw sample streams (package meta),
// acquiring and buffering frames (package daq) and writing them
// out (package scanio).
package spmc // import "github.com/go-spm/spmc"

import (
	"fmt"
	"runtime/debug"
)

// Version returns the version of spmc and its checksum, as recorded
// in the binary's build information. Binaries built without module
// support yield empty strings.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok || b == nil {
		return "", ""
	}

	const root = "github.com/go-spm/spmc"
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		r := m.Replace
		if r == nil {
			return m.Version, m.Sum
		}
		switch {
		case r.Path == "" && r.Version == "":
			return m.Version + "*", ""
		case r.Path == "":
			return r.Version, r.Sum
		case r.Version == "":
			return r.Path, r.Sum
		}
		return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
	}
	return "", ""
}
